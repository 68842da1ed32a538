// ABOUTME: Keyword and context-suggestion tables used by auto-route hints
// ABOUTME: Loadable from a TOML rules file, with built-in defaults

package routing

import (
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/pulsedesk/pulsedesk/internal/protocol"
)

// Rules holds the advisory lookup tables for auto mode: per-agent keyword
// sets and dashboard-context suggestions. Order matters: the first matching
// agent wins.
type Rules struct {
	// Keywords maps an agent to tokens that suggest it should answer.
	Keywords map[protocol.AgentIdentity][]string `toml:"keywords"`

	// Contexts maps a dashboard context label to suggested agents, most
	// relevant first.
	Contexts map[string][]protocol.AgentIdentity `toml:"contexts"`
}

// DefaultRules returns the built-in tables for the three known agents.
func DefaultRules() *Rules {
	return &Rules{
		Keywords: map[protocol.AgentIdentity][]string{
			protocol.AgentSales:     {"budget", "revenue", "sales", "deal", "pipeline", "quota", "forecast", "pricing"},
			protocol.AgentTalent:    {"team", "resource", "talent", "hiring", "recruit", "headcount", "candidate"},
			protocol.AgentAnalytics: {"metric", "metrics", "performance", "report", "trend", "kpi", "conversion"},
		},
		Contexts: map[string][]protocol.AgentIdentity{
			"sales-pipeline":   {protocol.AgentSales, protocol.AgentAnalytics},
			"talent-discovery": {protocol.AgentTalent},
			"analytics":        {protocol.AgentAnalytics},
			"overview":         {protocol.AgentAnalytics, protocol.AgentSales},
		},
	}
}

// LoadRules reads a TOML rules file. Missing sections fall back to the
// built-in defaults so a partial file only overrides what it names.
func LoadRules(path string) (*Rules, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading rules file: %w", err)
	}

	var loaded Rules
	if err := toml.Unmarshal(data, &loaded); err != nil {
		return nil, fmt.Errorf("parsing rules file: %w", err)
	}

	rules := DefaultRules()
	if len(loaded.Keywords) > 0 {
		rules.Keywords = loaded.Keywords
	}
	if len(loaded.Contexts) > 0 {
		rules.Contexts = loaded.Contexts
	}
	return rules, nil
}

// MatchKeyword scans text for the first agent whose keyword set matches.
// Agents are checked in canonical order so results are deterministic.
// Returns false when nothing matches.
func (r *Rules) MatchKeyword(text string) (protocol.AgentIdentity, bool) {
	lowered := strings.ToLower(text)
	for _, agent := range protocol.KnownAgents() {
		for _, kw := range r.Keywords[agent] {
			if strings.Contains(lowered, kw) {
				return agent, true
			}
		}
	}
	return "", false
}

// SuggestForContext returns the first suggested agent for a dashboard
// context label, or false if the context has no suggestions.
func (r *Rules) SuggestForContext(context string) (protocol.AgentIdentity, bool) {
	agents, ok := r.Contexts[context]
	if !ok || len(agents) == 0 {
		return "", false
	}
	return agents[0], true
}

// ABOUTME: Router decides which agents must answer each outbound user message
// ABOUTME: single/multi use the explicit selection; auto only produces an advisory hint

package routing

import (
	"errors"
	"log/slog"

	"github.com/pulsedesk/pulsedesk/internal/protocol"
)

// ErrNoAgentsSelected means a message was about to be sent in single/multi
// mode with an empty selection. This is a configuration bug: the send fails
// synchronously rather than transmitting an ambiguous request.
var ErrNoAgentsSelected = errors.New("no agents selected")

// Decision is the router's verdict for one outbound user message.
type Decision struct {
	// Targets are the explicit responder identities (single/multi modes).
	// Nil in auto mode, where the backend picks the responder.
	Targets []protocol.AgentIdentity

	// Suggestion is the optimistic hint used purely for the transient
	// processing indicator. It never blocks or alters delivery; the actual
	// responder is whatever identity arrives on the inbound response.
	Suggestion protocol.AgentIdentity

	// Auto reports whether selection was delegated to the backend.
	Auto bool
}

// Router maps outbound queries to responder targets under the current
// preferences, and infers responders for inbound messages that lack one.
type Router struct {
	rules  *Rules
	logger *slog.Logger

	// lastActive is the most recently seen responder, used as the final
	// auto-mode fallback. Re-derivable from the thread's message list.
	lastActive protocol.AgentIdentity
}

// NewRouter creates a router with the given rule tables. Pass nil rules for
// the built-in defaults and nil logger for slog.Default.
func NewRouter(rules *Rules, logger *slog.Logger) *Router {
	if rules == nil {
		rules = DefaultRules()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		rules:  rules,
		logger: logger.With("component", "router"),
	}
}

// Route decides the responder set for an outbound user message given the
// current preferences, the message text, and the active dashboard context.
func (r *Router) Route(prefs *Preferences, text, dashContext string) (*Decision, error) {
	switch prefs.Mode() {
	case ModeSingle, ModeMulti:
		targets := prefs.Selected()
		if len(targets) == 0 {
			return nil, ErrNoAgentsSelected
		}
		if prefs.Mode() == ModeSingle {
			targets = targets[:1]
		}
		return &Decision{Targets: targets, Suggestion: targets[0]}, nil

	case ModeAuto:
		suggestion := r.suggest(prefs, text, dashContext)
		r.logger.Debug("auto-route hint",
			"suggestion", suggestion,
			"context", dashContext)
		return &Decision{Suggestion: suggestion, Auto: true}, nil
	}

	return nil, ErrInvalidMode
}

// suggest computes the optimistic auto-mode hint: context suggestion when
// context-aware, then keyword scan, then context again, then last active.
func (r *Router) suggest(prefs *Preferences, text, dashContext string) protocol.AgentIdentity {
	if prefs.ContextAware() {
		if agent, ok := r.rules.SuggestForContext(dashContext); ok {
			return agent
		}
	}
	if agent, ok := r.rules.MatchKeyword(text); ok {
		return agent
	}
	if agent, ok := r.rules.SuggestForContext(dashContext); ok {
		return agent
	}
	return r.lastActive
}

// ObserveResponder records the identity of an inbound response so the
// last-active fallback tracks the conversation. Safe to call with the zero
// identity (ignored).
func (r *Router) ObserveResponder(agent protocol.AgentIdentity) {
	if agent != "" {
		r.lastActive = agent
	}
}

// InferResponder fills in an identity for an inbound message that lacks one
// (ai_response frames), keeping the handoff chain consistent. Falls back to
// the most recently active agent, then the keyword scan.
func (r *Router) InferResponder(msg *protocol.Message) protocol.AgentIdentity {
	if msg.Agent != "" {
		return msg.Agent
	}
	if r.lastActive != "" {
		return r.lastActive
	}
	if agent, ok := r.rules.MatchKeyword(msg.Content); ok {
		return agent
	}
	return ""
}

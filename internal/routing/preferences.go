// ABOUTME: AgentPreferences with validated setters enforcing routing-mode invariants
// ABOUTME: single needs exactly one agent, multi at least one, auto forces the full set

package routing

import (
	"errors"
	"fmt"
	"slices"

	"github.com/pulsedesk/pulsedesk/internal/protocol"
)

// Mode is the routing policy governing how many agents answer a query.
type Mode string

const (
	ModeSingle Mode = "single"
	ModeMulti  Mode = "multi"
	ModeAuto   Mode = "auto"
)

// Valid reports whether m is a recognized routing mode.
func (m Mode) Valid() bool {
	return m == ModeSingle || m == ModeMulti || m == ModeAuto
}

// Preference errors. All are configuration errors: rejected synchronously,
// never silently corrected.
var (
	ErrInvalidMode       = errors.New("invalid routing mode")
	ErrSingleRequiresOne = errors.New("single mode requires exactly one selected agent")
	ErrEmptySelection    = errors.New("selection cannot be empty")
)

// Preferences holds the current routing policy. All mutation goes through
// validated setters; components that need the policy receive it explicitly
// rather than reading ambient global state.
type Preferences struct {
	mode         Mode
	selected     map[protocol.AgentIdentity]struct{}
	contextAware bool
}

// NewPreferences returns defaults: auto mode, full agent set, context-aware.
func NewPreferences() *Preferences {
	p := &Preferences{
		mode:         ModeAuto,
		selected:     make(map[protocol.AgentIdentity]struct{}),
		contextAware: true,
	}
	p.selectAll()
	return p
}

func (p *Preferences) selectAll() {
	p.selected = make(map[protocol.AgentIdentity]struct{})
	for _, a := range protocol.KnownAgents() {
		p.selected[a] = struct{}{}
	}
}

// Mode returns the current routing mode.
func (p *Preferences) Mode() Mode { return p.mode }

// ContextAware reports whether dashboard context biases auto-route hints.
func (p *Preferences) ContextAware() bool { return p.contextAware }

// AutoRouteEnabled is derived: true iff the mode is auto.
func (p *Preferences) AutoRouteEnabled() bool { return p.mode == ModeAuto }

// Selected returns the selected agents in deterministic order: built-in
// agents in their canonical order first, then any others sorted by name.
func (p *Preferences) Selected() []protocol.AgentIdentity {
	out := make([]protocol.AgentIdentity, 0, len(p.selected))
	for _, a := range protocol.KnownAgents() {
		if _, ok := p.selected[a]; ok {
			out = append(out, a)
		}
	}
	var extra []protocol.AgentIdentity
	for a := range p.selected {
		if !a.Known() {
			extra = append(extra, a)
		}
	}
	slices.Sort(extra)
	return append(out, extra...)
}

// IsSelected reports whether the agent is in the current selection.
func (p *Preferences) IsSelected(a protocol.AgentIdentity) bool {
	_, ok := p.selected[a]
	return ok
}

// SetMode switches the routing mode, re-establishing the mode's selection
// invariant. Switching to single keeps the first currently selected agent;
// switching to auto forces the full known set.
func (p *Preferences) SetMode(m Mode) error {
	if !m.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidMode, m)
	}
	switch m {
	case ModeAuto:
		p.selectAll()
	case ModeSingle:
		sel := p.Selected()
		if len(sel) == 0 {
			return ErrSingleRequiresOne
		}
		p.selected = map[protocol.AgentIdentity]struct{}{sel[0]: {}}
	case ModeMulti:
		if len(p.selected) == 0 {
			return ErrEmptySelection
		}
	}
	p.mode = m
	return nil
}

// Select adds an agent to the selection. In single mode the new agent
// replaces the previous one.
func (p *Preferences) Select(a protocol.AgentIdentity) error {
	if p.mode == ModeAuto {
		// Auto owns the selection; the router picks per message.
		return fmt.Errorf("%w: selection is fixed in auto mode", ErrInvalidMode)
	}
	if p.mode == ModeSingle {
		p.selected = map[protocol.AgentIdentity]struct{}{a: {}}
		return nil
	}
	p.selected[a] = struct{}{}
	return nil
}

// Deselect removes an agent from the selection. A toggle that would empty
// the selection is rejected and the previous set is kept.
func (p *Preferences) Deselect(a protocol.AgentIdentity) error {
	if p.mode == ModeAuto {
		return fmt.Errorf("%w: selection is fixed in auto mode", ErrInvalidMode)
	}
	if _, ok := p.selected[a]; !ok {
		return nil
	}
	if len(p.selected) == 1 {
		return ErrEmptySelection
	}
	delete(p.selected, a)
	return nil
}

// SetContextAware toggles context-biased suggestions.
func (p *Preferences) SetContextAware(v bool) { p.contextAware = v }

// Frame builds the preferences sync frame sent to the backend whenever the
// policy changes or immediately after reconnect.
func (p *Preferences) Frame() *protocol.Frame {
	return &protocol.Frame{
		Type:           protocol.KindPreferences,
		RoutingMode:    string(p.mode),
		SelectedAgents: p.Selected(),
		ContextAware:   p.contextAware,
	}
}

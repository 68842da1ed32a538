// ABOUTME: Tracks the current responder per conversation and emits handoff records
// ABOUTME: Keeps one cursor per agent stream in multi mode, one global cursor otherwise

package handoff

import (
	"log/slog"

	"github.com/google/uuid"

	"github.com/pulsedesk/pulsedesk/internal/protocol"
)

// globalStream is the cursor key used outside multi mode, where all
// responses share one logical stream.
const globalStream protocol.AgentIdentity = ""

// Tracker maintains the "current responder" cursor for one conversation.
// States: no-responder-yet (nil cursor) and responding(agent). Transitions
// fire only on non-typing agent responses. The tracker holds no state that
// cannot be re-derived by replaying the thread's message list.
type Tracker struct {
	cursors map[protocol.AgentIdentity]protocol.AgentIdentity
	multi   bool
	logger  *slog.Logger
}

// NewTracker creates a tracker for one conversation. multi selects per-stream
// cursors, since parallel responses in multi routing are not handoffs from
// each other.
func NewTracker(multi bool, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{
		cursors: make(map[protocol.AgentIdentity]protocol.AgentIdentity),
		multi:   multi,
		logger:  logger.With("component", "handoff"),
	}
}

// Current returns the current responder on the global stream, or false while
// no agent has responded yet.
func (t *Tracker) Current() (protocol.AgentIdentity, bool) {
	cur, ok := t.cursors[globalStream]
	return cur, ok
}

// Observe inspects an inbound message and returns a handoff record when the
// responder changed, or nil. The first responder on a stream sets the cursor
// without emitting a record: the conversation's opening answer is not a
// handoff. reason and contextShift are optional backend-supplied hints.
func (t *Tracker) Observe(msg *protocol.Message, reason, contextShift string) *protocol.AgentHandoff {
	if msg.Kind != protocol.KindAgentResponse || msg.Agent == "" {
		return nil
	}

	key := globalStream
	if t.multi {
		key = msg.Agent
	}

	prev, seen := t.cursors[key]
	t.cursors[key] = msg.Agent
	if !seen || prev == msg.Agent {
		return nil
	}

	from := prev
	h := &protocol.AgentHandoff{
		ID:           uuid.New().String(),
		FromAgent:    &from,
		ToAgent:      msg.Agent,
		Timestamp:    msg.Timestamp,
		Reason:       reason,
		ContextShift: contextShift,
	}
	t.logger.Debug("responder changed",
		"from", prev,
		"to", msg.Agent,
		"message_id", msg.ID)
	return h
}

// Replay re-derives cursor state from a thread's message list, in order.
// Used on reload so the cursor never needs separate persistence.
func (t *Tracker) Replay(messages []*protocol.Message) {
	t.cursors = make(map[protocol.AgentIdentity]protocol.AgentIdentity)
	for _, msg := range messages {
		if msg.Kind != protocol.KindAgentResponse || msg.Agent == "" {
			continue
		}
		key := globalStream
		if t.multi {
			key = msg.Agent
		}
		t.cursors[key] = msg.Agent
	}
}

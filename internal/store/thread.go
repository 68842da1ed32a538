// ABOUTME: ConversationThread with incrementally maintained derived fields
// ABOUTME: Messages are kept sorted by timestamp regardless of arrival order

package store

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/pulsedesk/pulsedesk/internal/protocol"
)

// previewMaxLen is the rune budget for last_message_preview.
const previewMaxLen = 120

// Thread is one conversation: its persisted messages, handoffs, and the
// derived fields the dashboard lists. Mutation goes through the Index, which
// is the single owner of thread state.
type Thread struct {
	ID       string
	Title    string
	Subtitle string
	Context  string

	CreatedAt time.Time
	UpdatedAt time.Time

	Messages []*protocol.Message
	Handoffs []*protocol.AgentHandoff

	// Derived from Messages; maintained incrementally on append.
	MessageCount        int
	ParticipatingAgents []protocol.AgentIdentity
	PrimaryAgent        protocol.AgentIdentity
	UsageStats          map[protocol.AgentIdentity]*AgentUsage
	LastMessagePreview  string

	Tags       []string
	UserRating *int
	IsPinned   bool
	IsArchived bool

	// Typing is the transient typing indicator, superseded by the next
	// non-typing message. Never persisted.
	Typing *protocol.Message

	responseSeq int
}

// NewThread creates an empty thread. created_at doubles as updated_at until
// the first message arrives.
func NewThread(id, title, context string, createdAt time.Time) *Thread {
	if id == "" {
		id = uuid.New().String()
	}
	return &Thread{
		ID:         id,
		Title:      title,
		Context:    context,
		CreatedAt:  createdAt,
		UpdatedAt:  createdAt,
		UsageStats: make(map[protocol.AgentIdentity]*AgentUsage),
	}
}

// validate checks a message against the thread invariants.
func validate(msg *protocol.Message) error {
	if !msg.Kind.Conversational() {
		return fmt.Errorf("%w: kind %q does not belong in a thread", ErrInvalidMessage, msg.Kind)
	}
	if msg.Agent != "" && msg.Kind != protocol.KindAgentResponse && msg.Kind != protocol.KindTyping {
		return fmt.Errorf("%w: agent set on %q message", ErrInvalidMessage, msg.Kind)
	}
	if msg.Metadata != nil && msg.Kind != protocol.KindAgentResponse && msg.Kind != protocol.KindAIResponse {
		return fmt.Errorf("%w: metadata set on %q message", ErrInvalidMessage, msg.Kind)
	}
	return nil
}

// append inserts a message in timestamp order and refreshes derived fields.
// Typing messages only update the transient indicator. Re-delivered message
// ids (reconnect replay) are ignored.
func (t *Thread) append(msg *protocol.Message) error {
	if err := validate(msg); err != nil {
		return err
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}

	if msg.Kind.Ephemeral() {
		t.Typing = msg
		return nil
	}
	t.Typing = nil

	for _, existing := range t.Messages {
		if existing.ID == msg.ID {
			return nil
		}
	}

	t.insertSorted(msg)
	t.MessageCount = len(t.Messages)
	if msg.Timestamp.After(t.UpdatedAt) {
		t.UpdatedAt = msg.Timestamp
	}
	t.LastMessagePreview = truncatePreview(t.Messages[len(t.Messages)-1].Content)

	if msg.Kind == protocol.KindAgentResponse && msg.Agent != "" {
		t.recordUsage(msg)
	}
	return nil
}

// insertSorted places msg so the list stays sorted by timestamp. Equal
// timestamps keep arrival order (stable insert from the back).
func (t *Thread) insertSorted(msg *protocol.Message) {
	i := len(t.Messages)
	for i > 0 && t.Messages[i-1].Timestamp.After(msg.Timestamp) {
		i--
	}
	t.Messages = append(t.Messages, nil)
	copy(t.Messages[i+1:], t.Messages[i:])
	t.Messages[i] = msg
}

// recordUsage updates per-agent usage stats and the primary agent.
func (t *Thread) recordUsage(msg *protocol.Message) {
	usage, ok := t.UsageStats[msg.Agent]
	if !ok {
		usage = &AgentUsage{firstSeen: t.responseSeq}
		t.UsageStats[msg.Agent] = usage
		t.ParticipatingAgents = append(t.ParticipatingAgents, msg.Agent)
	}
	t.responseSeq++
	usage.MessageCount++

	if md := msg.Metadata; md != nil {
		if md.Confidence != nil {
			if score, ok := md.Confidence.Score(); ok {
				usage.confidenceSum += score
				usage.confidenceN++
				usage.AvgConfidence = usage.confidenceSum / float64(usage.confidenceN)
			}
		}
		if md.ProcessingTime != nil {
			usage.processingSum += *md.ProcessingTime
			usage.processingN++
			usage.AvgProcessingTime = usage.processingSum / time.Duration(usage.processingN)
		}
	}

	t.PrimaryAgent = t.primaryAgent()
}

// primaryAgent is the agent with the most responses; ties go to the agent
// that appeared first.
func (t *Thread) primaryAgent() protocol.AgentIdentity {
	var best protocol.AgentIdentity
	bestCount, bestSeen := -1, -1
	for _, agent := range t.ParticipatingAgents {
		u := t.UsageStats[agent]
		if u.MessageCount > bestCount || (u.MessageCount == bestCount && u.firstSeen < bestSeen) {
			best, bestCount, bestSeen = agent, u.MessageCount, u.firstSeen
		}
	}
	return best
}

// appendHandoff records a handoff. Message-derived fields are untouched.
func (t *Thread) appendHandoff(h *protocol.AgentHandoff) {
	t.Handoffs = append(t.Handoffs, h)
}

// rate sets the user rating, rejecting values outside 1..5.
func (t *Thread) rate(rating int) error {
	if rating < 1 || rating > 5 {
		return fmt.Errorf("%w: got %d", ErrInvalidRating, rating)
	}
	t.UserRating = &rating
	return nil
}

// addTag adds a conversation tag; duplicates are ignored.
func (t *Thread) addTag(tag string) {
	for _, existing := range t.Tags {
		if existing == tag {
			return
		}
	}
	t.Tags = append(t.Tags, tag)
}

// truncatePreview shortens content to the preview budget on a rune boundary.
func truncatePreview(content string) string {
	runes := []rune(content)
	if len(runes) <= previewMaxLen {
		return content
	}
	return string(runes[:previewMaxLen]) + "…"
}

// ABOUTME: Core message and handoff types shared by the session, router, and store
// ABOUTME: Defines Kind, AgentMetadata ordinals, Message, and AgentHandoff

package protocol

import (
	"time"
)

// Kind identifies what a message or frame represents.
type Kind string

// Conversation message kinds.
const (
	KindUserMessage   Kind = "user_message"
	KindAgentResponse Kind = "agent_response"
	KindAIResponse    Kind = "ai_response"
	KindTyping        Kind = "typing"
	KindSystem        Kind = "system"
)

// Wire-only frame kinds. These never enter a conversation thread.
const (
	KindAuth        Kind = "auth"
	KindAuthAck     Kind = "auth_ack"
	KindPreferences Kind = "preferences"
)

// Valid reports whether k is a recognized kind.
func (k Kind) Valid() bool {
	switch k {
	case KindUserMessage, KindAgentResponse, KindAIResponse, KindTyping, KindSystem,
		KindAuth, KindAuthAck, KindPreferences:
		return true
	}
	return false
}

// Conversational reports whether messages of this kind belong in a thread.
// Wire-only kinds (auth, auth_ack, preferences) are session plumbing.
func (k Kind) Conversational() bool {
	switch k {
	case KindUserMessage, KindAgentResponse, KindAIResponse, KindTyping, KindSystem:
		return true
	}
	return false
}

// Ephemeral reports whether messages of this kind are never persisted.
func (k Kind) Ephemeral() bool {
	return k == KindTyping
}

// Confidence is the backend's self-reported answer confidence.
type Confidence string

const (
	ConfidenceLow    Confidence = "low"
	ConfidenceMedium Confidence = "medium"
	ConfidenceHigh   Confidence = "high"
)

// Score returns the numeric encoding used for averaging (low=1 .. high=3).
// The second return is false for unrecognized values.
func (c Confidence) Score() (float64, bool) {
	switch c {
	case ConfidenceLow:
		return 1, true
	case ConfidenceMedium:
		return 2, true
	case ConfidenceHigh:
		return 3, true
	}
	return 0, false
}

// Complexity classifies how hard the backend judged the query.
type Complexity string

const (
	ComplexitySimple   Complexity = "simple"
	ComplexityModerate Complexity = "moderate"
	ComplexityComplex  Complexity = "complex"
)

// AgentMetadata is optional detail attached to a response message.
// Every field is a pointer or nil-able slice: absence means unknown, not zero.
type AgentMetadata struct {
	Confidence      *Confidence    `json:"confidence,omitempty"`
	ProcessingTime  *time.Duration `json:"processing_time,omitempty"`
	Sources         []string       `json:"sources,omitempty"`
	QueryComplexity *Complexity    `json:"query_complexity,omitempty"`
}

// AgentHandoff records a transition of the responding agent within one
// conversation. FromAgent is nil only for the very first responder, meaning
// the turn was handed off from the user.
type AgentHandoff struct {
	ID           string         `json:"id"`
	FromAgent    *AgentIdentity `json:"from_agent,omitempty"`
	ToAgent      AgentIdentity  `json:"to_agent"`
	Timestamp    time.Time      `json:"timestamp"`
	Reason       string         `json:"reason,omitempty"`
	ContextShift string         `json:"context_shift,omitempty"`
}

// Message is one turn in a conversation.
type Message struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Kind      Kind      `json:"kind"`
	Content   string    `json:"content,omitempty"`

	// Agent is set only for agent_response messages.
	Agent AgentIdentity `json:"agent,omitempty"`

	// Metadata is set only for agent_response / ai_response messages.
	Metadata *AgentMetadata `json:"agent_metadata,omitempty"`

	IsHandoff bool          `json:"is_handoff,omitempty"`
	Handoff   *AgentHandoff `json:"handoff_data,omitempty"`
}

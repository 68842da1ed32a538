// ABOUTME: JSON wire codec for session frames with a "type" discriminator
// ABOUTME: Unknown kinds decode to ErrUnknownKind so the channel can drop them

package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Version is the protocol version carried on every outbound frame.
const Version = 1

// Codec errors
var (
	// ErrUnknownKind means the frame's type discriminator is not recognized.
	// The channel drops such frames and logs a protocol violation.
	ErrUnknownKind = errors.New("unknown frame kind")

	// ErrMalformedFrame means the payload was not valid JSON or was missing
	// required fields for its kind.
	ErrMalformedFrame = errors.New("malformed frame")
)

// Frame is the flat wire envelope. Message fields are inlined next to the
// type discriminator; wire-only kinds use their own field subset.
type Frame struct {
	Type    Kind `json:"type"`
	Version int  `json:"v,omitempty"`

	// Message fields (conversational kinds)
	ID        string         `json:"id,omitempty"`
	Timestamp time.Time      `json:"timestamp,omitzero"`
	Content   string         `json:"content,omitempty"`
	Agent     AgentIdentity  `json:"agent,omitempty"`
	Metadata  *AgentMetadata `json:"agent_metadata,omitempty"`

	// Handoff hints supplied by the backend on a response frame.
	HandoffReason       string `json:"handoff_reason,omitempty"`
	HandoffContextShift string `json:"context_shift,omitempty"`

	// Auth fields
	Token string `json:"token,omitempty"`

	// AuthAck fields
	OK       bool   `json:"ok,omitempty"`
	Error    string `json:"error,omitempty"`
	Terminal bool   `json:"terminal,omitempty"`

	// Preferences fields
	RoutingMode    string          `json:"routingMode,omitempty"`
	SelectedAgents []AgentIdentity `json:"selectedAgents,omitempty"`
	ContextAware   bool            `json:"contextAware,omitempty"`
}

// EncodeFrame serializes a frame, stamping the protocol version.
func EncodeFrame(f *Frame) ([]byte, error) {
	if !f.Type.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, f.Type)
	}
	f.Version = Version
	data, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("encoding %s frame: %w", f.Type, err)
	}
	return data, nil
}

// DecodeFrame parses a wire payload. Returns ErrUnknownKind for unrecognized
// type discriminators and ErrMalformedFrame for invalid JSON.
func DecodeFrame(data []byte) (*Frame, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if !f.Type.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, f.Type)
	}
	return &f, nil
}

// Message converts a conversational frame into a Message. Returns
// ErrUnknownKind for wire-only kinds, which never become messages.
func (f *Frame) Message() (*Message, error) {
	if !f.Type.Conversational() {
		return nil, fmt.Errorf("%w: %q is not conversational", ErrUnknownKind, f.Type)
	}
	ts := f.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	return &Message{
		ID:        f.ID,
		Timestamp: ts,
		Kind:      f.Type,
		Content:   f.Content,
		Agent:     f.Agent,
		Metadata:  f.Metadata,
	}, nil
}

// MessageFrame builds the wire frame for an outbound conversational message.
func MessageFrame(msg *Message) *Frame {
	return &Frame{
		Type:      msg.Kind,
		ID:        msg.ID,
		Timestamp: msg.Timestamp,
		Content:   msg.Content,
		Agent:     msg.Agent,
		Metadata:  msg.Metadata,
	}
}

// AuthFrame builds the first frame sent after connect.
func AuthFrame(token string) *Frame {
	return &Frame{Type: KindAuth, Token: token, Timestamp: time.Now()}
}

// SystemNotice builds a locally synthesized system message, used by the
// session channel to surface transport state to subscribers.
func SystemNotice(content string) *Frame {
	return &Frame{Type: KindSystem, Content: content, Timestamp: time.Now()}
}

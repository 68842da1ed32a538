// ABOUTME: Tests for the JSON frame codec
// ABOUTME: Covers round-trips, unknown kinds, malformed payloads, and metadata

package protocol

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeFrame_UserMessage(t *testing.T) {
	data := []byte(`{"type":"user_message","id":"m1","content":"what's our Q4 revenue?","timestamp":"2026-08-01T10:00:00Z"}`)

	f, err := DecodeFrame(data)
	require.NoError(t, err)
	assert.Equal(t, KindUserMessage, f.Type)
	assert.Equal(t, "m1", f.ID)
	assert.Equal(t, "what's our Q4 revenue?", f.Content)
}

func TestDecodeFrame_UnknownKind(t *testing.T) {
	data := []byte(`{"type":"telemetry","payload":"x"}`)

	_, err := DecodeFrame(data)
	assert.ErrorIs(t, err, ErrUnknownKind)
}

func TestDecodeFrame_Malformed(t *testing.T) {
	_, err := DecodeFrame([]byte(`{not json`))
	assert.ErrorIs(t, err, ErrMalformedFrame)
}

func TestEncodeFrame_StampsVersion(t *testing.T) {
	f := AuthFrame("tok-123")
	data, err := EncodeFrame(f)
	require.NoError(t, err)

	decoded, err := DecodeFrame(data)
	require.NoError(t, err)
	assert.Equal(t, Version, decoded.Version)
	assert.Equal(t, "tok-123", decoded.Token)
}

func TestEncodeFrame_RejectsUnknownKind(t *testing.T) {
	_, err := EncodeFrame(&Frame{Type: "bogus"})
	assert.ErrorIs(t, err, ErrUnknownKind)
}

func TestFrame_Message_RoundTrip(t *testing.T) {
	conf := ConfidenceHigh
	procTime := 420 * time.Millisecond
	msg := &Message{
		ID:        "m2",
		Timestamp: time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC),
		Kind:      KindAgentResponse,
		Content:   "Q4 revenue is up 12%",
		Agent:     AgentSales,
		Metadata: &AgentMetadata{
			Confidence:     &conf,
			ProcessingTime: &procTime,
			Sources:        []string{"crm:deals", "billing:q4"},
		},
	}

	data, err := EncodeFrame(MessageFrame(msg))
	require.NoError(t, err)

	f, err := DecodeFrame(data)
	require.NoError(t, err)

	got, err := f.Message()
	require.NoError(t, err)
	assert.Equal(t, msg.ID, got.ID)
	assert.Equal(t, msg.Kind, got.Kind)
	assert.Equal(t, msg.Agent, got.Agent)
	require.NotNil(t, got.Metadata)
	assert.Equal(t, ConfidenceHigh, *got.Metadata.Confidence)
	assert.Equal(t, []string{"crm:deals", "billing:q4"}, got.Metadata.Sources)
}

func TestFrame_Message_WireOnlyKindRejected(t *testing.T) {
	f := &Frame{Type: KindAuthAck, OK: true}
	_, err := f.Message()
	assert.ErrorIs(t, err, ErrUnknownKind)
}

func TestFrame_Message_FillsMissingTimestamp(t *testing.T) {
	f := &Frame{Type: KindTyping, Agent: AgentAnalytics}
	msg, err := f.Message()
	require.NoError(t, err)
	assert.False(t, msg.Timestamp.IsZero())
}

func TestConfidence_Score(t *testing.T) {
	tests := []struct {
		conf  Confidence
		score float64
		ok    bool
	}{
		{ConfidenceLow, 1, true},
		{ConfidenceMedium, 2, true},
		{ConfidenceHigh, 3, true},
		{Confidence("certain"), 0, false},
	}

	for _, tt := range tests {
		score, ok := tt.conf.Score()
		assert.Equal(t, tt.score, score, "confidence %q", tt.conf)
		assert.Equal(t, tt.ok, ok, "confidence %q", tt.conf)
	}
}

func TestKind_Classification(t *testing.T) {
	assert.True(t, KindTyping.Ephemeral())
	assert.False(t, KindUserMessage.Ephemeral())
	assert.True(t, KindSystem.Conversational())
	assert.False(t, KindPreferences.Conversational())
	assert.False(t, Kind("nope").Valid())
}

func TestAgentIdentity_Info(t *testing.T) {
	assert.Equal(t, "Sales", AgentSales.Info().DisplayName)
	assert.True(t, AgentTalent.Known())

	// Unknown identities still resolve to a usable entry.
	custom := AgentIdentity("legal")
	assert.False(t, custom.Known())
	assert.Equal(t, "legal", custom.Info().DisplayName)
}

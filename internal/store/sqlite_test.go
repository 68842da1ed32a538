// ABOUTME: Tests for SQLite persistence round-trips
// ABOUTME: Saved threads reload with derived fields recomputed by replay

package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulsedesk/pulsedesk/internal/protocol"
)

func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "conversations.db")

	s, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteStore_RoundTrip(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)

	th := NewThread("c1", "Q4 planning", "sales-pipeline", base)
	th.Subtitle = "revenue and staffing"
	th.IsPinned = true
	require.NoError(t, th.rate(5))
	th.addTag("quarterly")

	require.NoError(t, s.SaveThread(ctx, th))

	high := protocol.ConfidenceHigh
	procTime := 300 * time.Millisecond
	msgs := []*protocol.Message{
		{ID: "m1", Kind: protocol.KindUserMessage, Content: "what's our Q4 revenue?", Timestamp: base},
		{ID: "m2", Kind: protocol.KindAgentResponse, Agent: protocol.AgentSales, Content: "up 12%",
			Timestamp: base.Add(time.Second),
			Metadata:  &protocol.AgentMetadata{Confidence: &high, ProcessingTime: &procTime, Sources: []string{"crm:deals"}}},
		{ID: "m3", Kind: protocol.KindAgentResponse, Agent: protocol.AgentTalent, Content: "team is stretched",
			Timestamp: base.Add(2 * time.Second)},
	}
	for _, m := range msgs {
		require.NoError(t, s.SaveMessage(ctx, "c1", m))
	}

	from := protocol.AgentSales
	require.NoError(t, s.SaveHandoff(ctx, "c1", &protocol.AgentHandoff{
		ID: "h1", FromAgent: &from, ToAgent: protocol.AgentTalent,
		Timestamp: base.Add(2 * time.Second), Reason: "staffing question",
	}))

	threads, err := s.LoadThreads(ctx)
	require.NoError(t, err)
	require.Len(t, threads, 1)

	got := threads[0]
	assert.Equal(t, "Q4 planning", got.Title)
	assert.Equal(t, "sales-pipeline", got.Context)
	assert.True(t, got.IsPinned)
	require.NotNil(t, got.UserRating)
	assert.Equal(t, 5, *got.UserRating)
	assert.Equal(t, []string{"quarterly"}, got.Tags)

	// Derived fields were recomputed by replay, not trusted from disk.
	assert.Equal(t, 3, got.MessageCount)
	assert.Equal(t, []protocol.AgentIdentity{protocol.AgentSales, protocol.AgentTalent}, got.ParticipatingAgents)
	assert.Equal(t, protocol.AgentSales, got.PrimaryAgent)
	assert.Equal(t, "team is stretched", got.LastMessagePreview)

	require.NotNil(t, got.Messages[1].Metadata)
	assert.Equal(t, protocol.ConfidenceHigh, *got.Messages[1].Metadata.Confidence)
	assert.Equal(t, 300*time.Millisecond, *got.Messages[1].Metadata.ProcessingTime)

	require.Len(t, got.Handoffs, 1)
	assert.Equal(t, protocol.AgentSales, *got.Handoffs[0].FromAgent)
	assert.Equal(t, "staffing question", got.Handoffs[0].Reason)
}

func TestSQLiteStore_TypingNeverWritten(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	base := time.Now().UTC()

	th := NewThread("c1", "t", "", base)
	require.NoError(t, s.SaveThread(ctx, th))
	require.NoError(t, s.SaveMessage(ctx, "c1", &protocol.Message{
		ID: "t1", Kind: protocol.KindTyping, Agent: protocol.AgentSales, Timestamp: base,
	}))

	threads, err := s.LoadThreads(ctx)
	require.NoError(t, err)
	require.Len(t, threads, 1)
	assert.Zero(t, threads[0].MessageCount)
}

func TestSQLiteStore_DuplicateSavesIgnored(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	base := time.Now().UTC()

	th := NewThread("c1", "t", "", base)
	require.NoError(t, s.SaveThread(ctx, th))

	msg := &protocol.Message{ID: "m1", Kind: protocol.KindUserMessage, Content: "hi", Timestamp: base}
	require.NoError(t, s.SaveMessage(ctx, "c1", msg))
	require.NoError(t, s.SaveMessage(ctx, "c1", msg))

	threads, err := s.LoadThreads(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, threads[0].MessageCount)
}

func TestSQLiteStore_SaveThreadUpsert(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	base := time.Now().UTC()

	th := NewThread("c1", "before", "", base)
	require.NoError(t, s.SaveThread(ctx, th))

	th.Title = "after"
	th.IsArchived = true
	require.NoError(t, s.SaveThread(ctx, th))

	threads, err := s.LoadThreads(ctx)
	require.NoError(t, err)
	require.Len(t, threads, 1)
	assert.Equal(t, "after", threads[0].Title)
	assert.True(t, threads[0].IsArchived)
}

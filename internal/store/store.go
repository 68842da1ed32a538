// ABOUTME: Store types and errors for conversation history
// ABOUTME: Defines search params, sort keys, and aggregate stats

package store

import (
	"errors"
	"time"

	"github.com/pulsedesk/pulsedesk/internal/protocol"
)

// Store errors
var (
	// ErrNotFound is returned for operations referencing an unknown
	// conversation id. The store never silently creates a thread.
	ErrNotFound = errors.New("conversation not found")

	// ErrDuplicateThread is returned when creating a thread whose id exists.
	ErrDuplicateThread = errors.New("conversation already exists")

	// ErrInvalidRating is returned for ratings outside 1..5. The prior
	// rating is left unchanged; values are never clamped silently.
	ErrInvalidRating = errors.New("rating must be between 1 and 5")

	// ErrInvalidMessage is returned when a message violates thread
	// invariants (wire-only kind, agent on a non-response, and so on).
	ErrInvalidMessage = errors.New("invalid message")
)

// DateRange bounds a search by conversation activity time. Zero bounds are
// open ends.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// SearchParams are the optional constraints of a conversation search.
// Absent fields (nil pointers, empty slices, empty strings) mean "no
// constraint", never "match nothing". Present constraints combine as a
// logical AND.
type SearchParams struct {
	Query         string
	AgentFilter   []protocol.AgentIdentity
	ContextFilter []string
	DateRange     *DateRange
	IsPinned      *bool
	IsArchived    *bool
	HasHandoffs   *bool
	MinRating     *int
}

// SortField names a thread attribute results can be ordered by.
type SortField string

const (
	SortUpdatedAt    SortField = "updated_at"
	SortCreatedAt    SortField = "created_at"
	SortTitle        SortField = "title"
	SortMessageCount SortField = "message_count"
	SortRating       SortField = "rating"
)

// SortKey is the separately supplied result ordering for a search.
type SortKey struct {
	Field      SortField
	Descending bool
}

// DefaultSort orders by most recent activity first.
func DefaultSort() SortKey {
	return SortKey{Field: SortUpdatedAt, Descending: true}
}

// AgentUsage is the per-agent derived usage entry of a thread.
// Averages cover only messages whose metadata carried the field: absent
// metadata never drags an average toward zero.
type AgentUsage struct {
	MessageCount      int
	AvgConfidence     float64
	AvgProcessingTime time.Duration

	confidenceSum float64
	confidenceN   int
	processingSum time.Duration
	processingN   int
	firstSeen     int
}

// ConversationStats is the aggregate view over a working set of threads.
// It is recomputed over whatever subset is currently visible so displayed
// statistics always match the displayed list.
type ConversationStats struct {
	TotalConversations         int
	ActiveConversations        int
	ArchivedConversations      int
	PinnedConversations        int
	TotalMessages              int
	AvgMessagesPerConversation float64
	AgentUsageDistribution     map[protocol.AgentIdentity]int
	ContextDistribution        map[string]int
	MostUsedAgent              protocol.AgentIdentity
	HandoffFrequency           float64
}

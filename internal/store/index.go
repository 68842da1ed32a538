// ABOUTME: In-memory working set of conversation threads with search and setters
// ABOUTME: Single owner of thread state; router and tracker only feed events in

package store

import (
	"cmp"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/pulsedesk/pulsedesk/internal/protocol"
)

// Index holds the working set of conversation threads. All operations are
// synchronous over in-memory state; persistence is layered separately (see
// SQLiteStore). Threads from different conversations are independent units
// of mutation, guarded here by one lock for simplicity.
type Index struct {
	mu      sync.RWMutex
	threads map[string]*Thread
	order   []string // creation order, the stable base for sorting
	logger  *slog.Logger
}

// NewIndex creates an empty index. Pass nil logger for slog.Default.
func NewIndex(logger *slog.Logger) *Index {
	if logger == nil {
		logger = slog.Default()
	}
	return &Index{
		threads: make(map[string]*Thread),
		logger:  logger.With("component", "store"),
	}
}

// CreateThread adds a thread to the working set.
func (ix *Index) CreateThread(t *Thread) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if _, exists := ix.threads[t.ID]; exists {
		return ErrDuplicateThread
	}
	ix.threads[t.ID] = t
	ix.order = append(ix.order, t.ID)
	ix.logger.Debug("thread created", "thread_id", t.ID, "context", t.Context)
	return nil
}

// Get returns the thread with the given id or ErrNotFound.
func (ix *Index) Get(id string) (*Thread, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	t, ok := ix.threads[id]
	if !ok {
		return nil, ErrNotFound
	}
	return t, nil
}

// Append validates and stores a message on a thread, refreshing derived
// fields. Unknown conversation ids fail; a thread is never created here.
func (ix *Index) Append(conversationID string, msg *protocol.Message) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	t, ok := ix.threads[conversationID]
	if !ok {
		return ErrNotFound
	}
	return t.append(msg)
}

// AppendHandoff records a handoff on a thread.
func (ix *Index) AppendHandoff(conversationID string, h *protocol.AgentHandoff) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	t, ok := ix.threads[conversationID]
	if !ok {
		return ErrNotFound
	}
	t.appendHandoff(h)
	return nil
}

// SetPinned is an idempotent pin setter.
func (ix *Index) SetPinned(conversationID string, pinned bool) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	t, ok := ix.threads[conversationID]
	if !ok {
		return ErrNotFound
	}
	t.IsPinned = pinned
	return nil
}

// SetArchived is an idempotent archive setter.
func (ix *Index) SetArchived(conversationID string, archived bool) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	t, ok := ix.threads[conversationID]
	if !ok {
		return ErrNotFound
	}
	t.IsArchived = archived
	return nil
}

// Rate sets the user rating (1..5). Out-of-range values are rejected with
// ErrInvalidRating and the prior rating stands.
func (ix *Index) Rate(conversationID string, rating int) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	t, ok := ix.threads[conversationID]
	if !ok {
		return ErrNotFound
	}
	return t.rate(rating)
}

// Tag adds a conversation tag.
func (ix *Index) Tag(conversationID, tag string) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	t, ok := ix.threads[conversationID]
	if !ok {
		return ErrNotFound
	}
	t.addTag(tag)
	return nil
}

// ClearTyping drops a thread's transient typing indicator, used when the
// active context switches away before a real message supersedes it.
func (ix *Index) ClearTyping(conversationID string) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	t, ok := ix.threads[conversationID]
	if !ok {
		return ErrNotFound
	}
	t.Typing = nil
	return nil
}

// List returns all threads in creation order.
func (ix *Index) List() []*Thread {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	out := make([]*Thread, 0, len(ix.order))
	for _, id := range ix.order {
		out = append(out, ix.threads[id])
	}
	return out
}

// Search applies every present constraint as a logical AND and returns the
// matches ordered by the sort key. The zero SortKey means updated_at
// descending. Ordering is stable over creation order.
func (ix *Index) Search(params SearchParams, sort SortKey) []*Thread {
	matches := make([]*Thread, 0)
	for _, t := range ix.List() {
		if matchThread(t, &params) {
			matches = append(matches, t)
		}
	}
	sortThreads(matches, sort)
	return matches
}

// matchThread checks one thread against all present constraints.
func matchThread(t *Thread, p *SearchParams) bool {
	if p.Query != "" && !matchQuery(t, p.Query) {
		return false
	}
	if len(p.AgentFilter) > 0 && !slices.ContainsFunc(p.AgentFilter, func(a protocol.AgentIdentity) bool {
		return slices.Contains(t.ParticipatingAgents, a)
	}) {
		return false
	}
	if len(p.ContextFilter) > 0 && !slices.Contains(p.ContextFilter, t.Context) {
		return false
	}
	if p.DateRange != nil {
		if !p.DateRange.Start.IsZero() && t.UpdatedAt.Before(p.DateRange.Start) {
			return false
		}
		if !p.DateRange.End.IsZero() && t.UpdatedAt.After(p.DateRange.End) {
			return false
		}
	}
	if p.IsPinned != nil && t.IsPinned != *p.IsPinned {
		return false
	}
	if p.IsArchived != nil && t.IsArchived != *p.IsArchived {
		return false
	}
	if p.HasHandoffs != nil && (len(t.Handoffs) > 0) != *p.HasHandoffs {
		return false
	}
	if p.MinRating != nil && (t.UserRating == nil || *t.UserRating < *p.MinRating) {
		return false
	}
	return true
}

// matchQuery does a case-insensitive free-text match over title, subtitle,
// tags, and message content.
func matchQuery(t *Thread, query string) bool {
	q := strings.ToLower(query)
	if strings.Contains(strings.ToLower(t.Title), q) ||
		strings.Contains(strings.ToLower(t.Subtitle), q) {
		return true
	}
	for _, tag := range t.Tags {
		if strings.Contains(strings.ToLower(tag), q) {
			return true
		}
	}
	for _, msg := range t.Messages {
		if strings.Contains(strings.ToLower(msg.Content), q) {
			return true
		}
	}
	return false
}

// sortThreads orders threads by the sort key, stably.
func sortThreads(threads []*Thread, key SortKey) {
	if key.Field == "" {
		key = DefaultSort()
	}
	slices.SortStableFunc(threads, func(a, b *Thread) int {
		var c int
		switch key.Field {
		case SortCreatedAt:
			c = a.CreatedAt.Compare(b.CreatedAt)
		case SortTitle:
			c = strings.Compare(strings.ToLower(a.Title), strings.ToLower(b.Title))
		case SortMessageCount:
			c = cmp.Compare(a.MessageCount, b.MessageCount)
		case SortRating:
			c = cmp.Compare(ratingOf(a), ratingOf(b))
		default:
			c = a.UpdatedAt.Compare(b.UpdatedAt)
		}
		if key.Descending {
			return -c
		}
		return c
	})
}

func ratingOf(t *Thread) int {
	if t.UserRating == nil {
		return 0
	}
	return *t.UserRating
}

// Stats aggregates over the given working set (typically a Search result),
// not the whole store, so displayed statistics match the displayed list.
func Stats(threads []*Thread) ConversationStats {
	stats := ConversationStats{
		AgentUsageDistribution: make(map[protocol.AgentIdentity]int),
		ContextDistribution:    make(map[string]int),
	}

	totalHandoffs := 0
	for _, t := range threads {
		stats.TotalConversations++
		if t.IsArchived {
			stats.ArchivedConversations++
		} else {
			stats.ActiveConversations++
		}
		if t.IsPinned {
			stats.PinnedConversations++
		}
		stats.TotalMessages += t.MessageCount
		totalHandoffs += len(t.Handoffs)
		if t.Context != "" {
			stats.ContextDistribution[t.Context]++
		}
		for agent, usage := range t.UsageStats {
			stats.AgentUsageDistribution[agent] += usage.MessageCount
		}
	}

	if stats.TotalConversations > 0 {
		stats.AvgMessagesPerConversation = float64(stats.TotalMessages) / float64(stats.TotalConversations)
		stats.HandoffFrequency = float64(totalHandoffs) / float64(stats.TotalConversations)
	}

	stats.MostUsedAgent = mostUsed(stats.AgentUsageDistribution)
	return stats
}

// mostUsed picks the agent with the highest message count, checking built-in
// agents in canonical order first so ties are deterministic.
func mostUsed(dist map[protocol.AgentIdentity]int) protocol.AgentIdentity {
	var best protocol.AgentIdentity
	bestCount := 0

	consider := func(agent protocol.AgentIdentity) {
		if count := dist[agent]; count > bestCount {
			best, bestCount = agent, count
		}
	}
	for _, agent := range protocol.KnownAgents() {
		consider(agent)
	}
	var extra []protocol.AgentIdentity
	for agent := range dist {
		if !agent.Known() {
			extra = append(extra, agent)
		}
	}
	slices.Sort(extra)
	for _, agent := range extra {
		consider(agent)
	}
	return best
}

// Replace swaps in a fully built thread, used when loading persisted state.
func (ix *Index) Replace(t *Thread) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if _, exists := ix.threads[t.ID]; !exists {
		ix.order = append(ix.order, t.ID)
	}
	ix.threads[t.ID] = t
}

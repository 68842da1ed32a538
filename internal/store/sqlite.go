// ABOUTME: SQLite persistence for conversation history using modernc.org/sqlite
// ABOUTME: Mirrors the in-memory index; threads are rebuilt by replaying messages

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/pulsedesk/pulsedesk/internal/protocol"
)

// SQLiteStore is the persistence boundary for conversation history.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore opens (or creates) the conversation database at path.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLiteStore{db: db, logger: logger}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS threads (
			id          TEXT PRIMARY KEY,
			title       TEXT NOT NULL,
			subtitle    TEXT NOT NULL DEFAULT '',
			context     TEXT NOT NULL DEFAULT '',
			created_at  TEXT NOT NULL,
			updated_at  TEXT NOT NULL,
			tags_json   TEXT NOT NULL DEFAULT '[]',
			user_rating INTEGER,
			is_pinned   INTEGER NOT NULL DEFAULT 0,
			is_archived INTEGER NOT NULL DEFAULT 0
		);

		CREATE TABLE IF NOT EXISTS messages (
			id            TEXT PRIMARY KEY,
			thread_id     TEXT NOT NULL REFERENCES threads(id),
			kind          TEXT NOT NULL,
			content       TEXT NOT NULL DEFAULT '',
			agent         TEXT NOT NULL DEFAULT '',
			metadata_json TEXT,
			timestamp     TEXT NOT NULL,

			CHECK (kind IN ('user_message', 'agent_response', 'ai_response', 'system'))
		);

		CREATE INDEX IF NOT EXISTS idx_messages_thread_ts
			ON messages(thread_id, timestamp);

		CREATE TABLE IF NOT EXISTS handoffs (
			id            TEXT PRIMARY KEY,
			thread_id     TEXT NOT NULL REFERENCES threads(id),
			from_agent    TEXT,
			to_agent      TEXT NOT NULL,
			timestamp     TEXT NOT NULL,
			reason        TEXT NOT NULL DEFAULT '',
			context_shift TEXT NOT NULL DEFAULT ''
		);

		CREATE INDEX IF NOT EXISTS idx_handoffs_thread
			ON handoffs(thread_id, timestamp);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return err
	}
	return nil
}

// SaveThread upserts thread metadata and user-set flags.
func (s *SQLiteStore) SaveThread(ctx context.Context, t *Thread) error {
	tags, err := json.Marshal(t.Tags)
	if err != nil {
		return fmt.Errorf("encoding tags: %w", err)
	}

	var rating sql.NullInt64
	if t.UserRating != nil {
		rating = sql.NullInt64{Int64: int64(*t.UserRating), Valid: true}
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO threads (id, title, subtitle, context, created_at, updated_at, tags_json, user_rating, is_pinned, is_archived)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			subtitle = excluded.subtitle,
			context = excluded.context,
			updated_at = excluded.updated_at,
			tags_json = excluded.tags_json,
			user_rating = excluded.user_rating,
			is_pinned = excluded.is_pinned,
			is_archived = excluded.is_archived`,
		t.ID, t.Title, t.Subtitle, t.Context,
		formatTime(t.CreatedAt), formatTime(t.UpdatedAt),
		string(tags), rating, boolInt(t.IsPinned), boolInt(t.IsArchived))
	if err != nil {
		return fmt.Errorf("saving thread: %w", err)
	}
	return nil
}

// SaveMessage persists one message. Typing messages are never written.
// Re-delivered ids are ignored, matching the index's replay behavior.
func (s *SQLiteStore) SaveMessage(ctx context.Context, threadID string, msg *protocol.Message) error {
	if msg.Kind.Ephemeral() {
		return nil
	}

	var metadata sql.NullString
	if msg.Metadata != nil {
		data, err := json.Marshal(msg.Metadata)
		if err != nil {
			return fmt.Errorf("encoding metadata: %w", err)
		}
		metadata = sql.NullString{String: string(data), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (id, thread_id, kind, content, agent, metadata_json, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING`,
		msg.ID, threadID, string(msg.Kind), msg.Content, string(msg.Agent),
		metadata, formatTime(msg.Timestamp))
	if err != nil {
		return fmt.Errorf("saving message: %w", err)
	}
	return nil
}

// SaveHandoff persists one handoff record.
func (s *SQLiteStore) SaveHandoff(ctx context.Context, threadID string, h *protocol.AgentHandoff) error {
	var from sql.NullString
	if h.FromAgent != nil {
		from = sql.NullString{String: string(*h.FromAgent), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO handoffs (id, thread_id, from_agent, to_agent, timestamp, reason, context_shift)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING`,
		h.ID, threadID, from, string(h.ToAgent), formatTime(h.Timestamp), h.Reason, h.ContextShift)
	if err != nil {
		return fmt.Errorf("saving handoff: %w", err)
	}
	return nil
}

// LoadThreads rebuilds the full working set. Derived fields are recomputed
// by replaying each thread's messages in timestamp order, so the invariants
// hold regardless of what was on disk.
func (s *SQLiteStore) LoadThreads(ctx context.Context) ([]*Thread, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, subtitle, context, created_at, updated_at, tags_json, user_rating, is_pinned, is_archived
		FROM threads ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("loading threads: %w", err)
	}
	defer rows.Close()

	var threads []*Thread
	for rows.Next() {
		t, err := scanThread(rows)
		if err != nil {
			return nil, err
		}
		threads = append(threads, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("loading threads: %w", err)
	}

	for _, t := range threads {
		if err := s.loadMessages(ctx, t); err != nil {
			return nil, err
		}
		if err := s.loadHandoffs(ctx, t); err != nil {
			return nil, err
		}
	}
	return threads, nil
}

func scanThread(rows *sql.Rows) (*Thread, error) {
	var (
		t                    Thread
		createdAt, updatedAt string
		tagsJSON             string
		rating               sql.NullInt64
		pinned, archived     int
	)
	if err := rows.Scan(&t.ID, &t.Title, &t.Subtitle, &t.Context,
		&createdAt, &updatedAt, &tagsJSON, &rating, &pinned, &archived); err != nil {
		return nil, fmt.Errorf("scanning thread: %w", err)
	}

	var err error
	if t.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("thread %s created_at: %w", t.ID, err)
	}
	if t.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("thread %s updated_at: %w", t.ID, err)
	}
	if err := json.Unmarshal([]byte(tagsJSON), &t.Tags); err != nil {
		return nil, fmt.Errorf("thread %s tags: %w", t.ID, err)
	}
	if rating.Valid {
		r := int(rating.Int64)
		t.UserRating = &r
	}
	t.IsPinned = pinned != 0
	t.IsArchived = archived != 0
	t.UsageStats = make(map[protocol.AgentIdentity]*AgentUsage)
	return &t, nil
}

func (s *SQLiteStore) loadMessages(ctx context.Context, t *Thread) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, kind, content, agent, metadata_json, timestamp
		FROM messages WHERE thread_id = ? ORDER BY timestamp`, t.ID)
	if err != nil {
		return fmt.Errorf("loading messages for %s: %w", t.ID, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			msg      protocol.Message
			kind     string
			agent    string
			metadata sql.NullString
			ts       string
		)
		if err := rows.Scan(&msg.ID, &kind, &msg.Content, &agent, &metadata, &ts); err != nil {
			return fmt.Errorf("scanning message: %w", err)
		}
		msg.Kind = protocol.Kind(kind)
		msg.Agent = protocol.AgentIdentity(agent)
		if msg.Timestamp, err = parseTime(ts); err != nil {
			return fmt.Errorf("message %s timestamp: %w", msg.ID, err)
		}
		if metadata.Valid {
			var md protocol.AgentMetadata
			if err := json.Unmarshal([]byte(metadata.String), &md); err != nil {
				return fmt.Errorf("message %s metadata: %w", msg.ID, err)
			}
			msg.Metadata = &md
		}
		if err := t.append(&msg); err != nil {
			// A row that violates invariants is skipped, not fatal.
			s.logger.Warn("skipping invalid persisted message",
				"thread_id", t.ID,
				"message_id", msg.ID,
				"error", err)
		}
	}
	return rows.Err()
}

func (s *SQLiteStore) loadHandoffs(ctx context.Context, t *Thread) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, from_agent, to_agent, timestamp, reason, context_shift
		FROM handoffs WHERE thread_id = ? ORDER BY timestamp`, t.ID)
	if err != nil {
		return fmt.Errorf("loading handoffs for %s: %w", t.ID, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			h    protocol.AgentHandoff
			from sql.NullString
			to   string
			ts   string
		)
		if err := rows.Scan(&h.ID, &from, &to, &ts, &h.Reason, &h.ContextShift); err != nil {
			return fmt.Errorf("scanning handoff: %w", err)
		}
		if from.Valid {
			agent := protocol.AgentIdentity(from.String)
			h.FromAgent = &agent
		}
		h.ToAgent = protocol.AgentIdentity(to)
		if h.Timestamp, err = parseTime(ts); err != nil {
			return fmt.Errorf("handoff %s timestamp: %w", h.ID, err)
		}
		t.appendHandoff(&h)
	}
	return rows.Err()
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/agentdeck/agentdeck/pkg/api"
	"github.com/agentdeck/agentdeck/pkg/sqliteutil"
	"github.com/agentdeck/agentdeck/pkg/thread"
)

// SQLiteStore persists the thread cache on disk.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteStore opens (or creates) the cache database at path and runs
// pending migrations.
func NewSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	db, err := sqliteutil.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening thread cache: %w", err)
	}

	if err := migrate(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating thread cache: %w", err)
	}

	return &SQLiteStore{db: db, now: time.Now}, nil
}

func (s *SQLiteStore) UpsertThread(ctx context.Context, t api.Thread) error {
	if t.ThreadID == "" {
		return ErrEmptyID
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO threads (thread_id, project_id, created_at, updated_at, synced_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(thread_id) DO UPDATE SET
			project_id = excluded.project_id,
			updated_at = excluded.updated_at,
			synced_at = excluded.synced_at`,
		t.ThreadID,
		t.ProjectID,
		t.CreatedAt.UTC().Format(time.RFC3339Nano),
		t.UpdatedAt.UTC().Format(time.RFC3339Nano),
		s.now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("upserting thread %s: %w", t.ThreadID, err)
	}
	return nil
}

func (s *SQLiteStore) ReplaceMessages(ctx context.Context, threadID string, messages []thread.Message) error {
	if threadID == "" {
		return ErrEmptyID
	}

	var exists int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM threads WHERE thread_id = ?`, threadID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("checking thread %s: %w", threadID, err)
	}
	if exists == 0 {
		return ErrNotFound
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE thread_id = ?`, threadID); err != nil {
		return fmt.Errorf("clearing messages for %s: %w", threadID, err)
	}

	for i, m := range messages {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO messages (thread_id, position, message_id, type, is_llm_message, content, metadata, created_at, updated_at, agent_id)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			threadID,
			i,
			m.ID,
			string(m.Kind),
			m.IsLLM,
			m.Content,
			m.Metadata,
			m.CreatedAt.UTC().Format(time.RFC3339Nano),
			m.UpdatedAt.UTC().Format(time.RFC3339Nano),
			m.AgentID,
		)
		if err != nil {
			return fmt.Errorf("inserting message %d for %s: %w", i, threadID, err)
		}
	}

	if _, err := tx.ExecContext(ctx, `UPDATE threads SET synced_at = ? WHERE thread_id = ?`,
		s.now().UTC().Format(time.RFC3339Nano), threadID); err != nil {
		return fmt.Errorf("updating sync time for %s: %w", threadID, err)
	}

	return tx.Commit()
}

func (s *SQLiteStore) GetMessages(ctx context.Context, threadID string) ([]thread.Message, error) {
	if threadID == "" {
		return nil, ErrEmptyID
	}

	var exists int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM threads WHERE thread_id = ?`, threadID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("checking thread %s: %w", threadID, err)
	}
	if exists == 0 {
		return nil, ErrNotFound
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT message_id, type, is_llm_message, content, metadata, created_at, updated_at, agent_id
		FROM messages WHERE thread_id = ? ORDER BY position`, threadID)
	if err != nil {
		return nil, fmt.Errorf("querying messages for %s: %w", threadID, err)
	}
	defer rows.Close()

	var messages []thread.Message
	for rows.Next() {
		var m thread.Message
		var kind, createdAt, updatedAt string
		if err := rows.Scan(&m.ID, &kind, &m.IsLLM, &m.Content, &m.Metadata, &createdAt, &updatedAt, &m.AgentID); err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		m.ThreadID = threadID
		m.Kind = thread.Kind(kind)
		m.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		m.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

func (s *SQLiteStore) ListThreads(ctx context.Context) ([]Summary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT t.thread_id, t.project_id, t.updated_at, t.synced_at,
		       (SELECT COUNT(*) FROM messages m WHERE m.thread_id = t.thread_id)
		FROM threads t
		ORDER BY t.updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("listing threads: %w", err)
	}
	defer rows.Close()

	var summaries []Summary
	for rows.Next() {
		var s Summary
		var updatedAt, syncedAt string
		if err := rows.Scan(&s.ThreadID, &s.ProjectID, &updatedAt, &syncedAt, &s.MessageCount); err != nil {
			return nil, fmt.Errorf("scanning thread summary: %w", err)
		}
		s.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
		s.SyncedAt, _ = time.Parse(time.RFC3339Nano, syncedAt)
		summaries = append(summaries, s)
	}
	return summaries, rows.Err()
}

func (s *SQLiteStore) DeleteThread(ctx context.Context, threadID string) error {
	if threadID == "" {
		return ErrEmptyID
	}

	res, err := s.db.ExecContext(ctx, `DELETE FROM threads WHERE thread_id = ?`, threadID)
	if err != nil {
		return fmt.Errorf("deleting thread %s: %w", threadID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

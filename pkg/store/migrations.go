package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"
)

// migration is one schema step, applied at most once and tracked in the
// migrations table.
type migration struct {
	Name string
	SQL  string
}

var migrations = []migration{
	{
		Name: "001_create_threads",
		SQL: `
			CREATE TABLE IF NOT EXISTS threads (
				thread_id TEXT PRIMARY KEY,
				project_id TEXT NOT NULL DEFAULT '',
				created_at TEXT NOT NULL,
				updated_at TEXT NOT NULL,
				synced_at TEXT NOT NULL
			)`,
	},
	{
		Name: "002_create_messages",
		SQL: `
			CREATE TABLE IF NOT EXISTS messages (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				thread_id TEXT NOT NULL REFERENCES threads(thread_id) ON DELETE CASCADE,
				position INTEGER NOT NULL,
				message_id TEXT NOT NULL DEFAULT '',
				type TEXT NOT NULL,
				is_llm_message INTEGER NOT NULL DEFAULT 0,
				content TEXT NOT NULL DEFAULT '',
				metadata TEXT NOT NULL DEFAULT '{}',
				created_at TEXT NOT NULL,
				updated_at TEXT NOT NULL,
				agent_id TEXT NOT NULL DEFAULT ''
			)`,
	},
	{
		Name: "003_index_messages_thread",
		SQL:  `CREATE INDEX IF NOT EXISTS idx_messages_thread ON messages(thread_id, position)`,
	},
}

func migrate(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS migrations (
			name TEXT PRIMARY KEY,
			applied_at TEXT NOT NULL
		)`)
	if err != nil {
		return fmt.Errorf("creating migrations table: %w", err)
	}

	for _, m := range migrations {
		var count int
		if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM migrations WHERE name = ?`, m.Name).Scan(&count); err != nil {
			return fmt.Errorf("checking migration %s: %w", m.Name, err)
		}
		if count > 0 {
			continue
		}

		slog.Debug("Applying migration", "name", m.Name)
		if _, err := db.ExecContext(ctx, m.SQL); err != nil {
			return fmt.Errorf("applying migration %s: %w", m.Name, err)
		}
		if _, err := db.ExecContext(ctx, `INSERT INTO migrations (name, applied_at) VALUES (?, ?)`,
			m.Name, time.Now().UTC().Format(time.RFC3339)); err != nil {
			return fmt.Errorf("recording migration %s: %w", m.Name, err)
		}
	}

	return nil
}

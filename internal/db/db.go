package db

import (
	"context"
	"database/sql"

	_ "github.com/lib/pq"
)

func Connect(connString string) (*sql.DB, error) {
	db, err := sql.Open("postgres", connString)
	if err != nil {
		return nil, err
	}

	err = db.Ping()
	if err != nil {
		return nil, err
	}

	return db, nil
}

// Migrate creates the schema if it does not exist yet. Statements are
// idempotent so boot is safe to repeat.
func Migrate(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS monuments (
			id       TEXT PRIMARY KEY,
			slug     TEXT NOT NULL UNIQUE,
			name     TEXT NOT NULL,
			total_xp INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS sessions (
			id                   TEXT PRIMARY KEY,
			flow_type            TEXT NOT NULL,
			selected_monument_id TEXT REFERENCES monuments(id),
			current_step         INTEGER NOT NULL DEFAULT 0,
			created_at           TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS session_messages (
			session_id TEXT NOT NULL REFERENCES sessions(id),
			seq        INTEGER NOT NULL,
			role       TEXT NOT NULL,
			content    TEXT NOT NULL,
			tool_calls JSONB,
			PRIMARY KEY (session_id, seq)
		)`,
		`CREATE SEQUENCE IF NOT EXISTS task_sort_seq`,
		`CREATE TABLE IF NOT EXISTS tasks (
			id           TEXT PRIMARY KEY,
			parent_id    TEXT REFERENCES tasks(id),
			monument_id  TEXT REFERENCES monuments(id),
			session_id   TEXT REFERENCES sessions(id),
			content      TEXT NOT NULL,
			status       TEXT NOT NULL DEFAULT 'pending',
			type         TEXT NOT NULL DEFAULT 'action',
			category     TEXT,
			xp_value     INTEGER NOT NULL DEFAULT 0,
			sort_order   INTEGER NOT NULL DEFAULT 0,
			is_draft     BOOLEAN NOT NULL DEFAULT FALSE,
			completed_at TIMESTAMPTZ,
			created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_parent ON tasks(parent_id)`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_session ON tasks(session_id)`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_monument ON tasks(monument_id)`,
		`CREATE TABLE IF NOT EXISTS events (
			id         BIGSERIAL PRIMARY KEY,
			event_name TEXT NOT NULL,
			event_time TIMESTAMPTZ NOT NULL,
			session_id TEXT,
			properties JSONB
		)`,
	}

	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

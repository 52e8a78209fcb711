// Package db provides the sqlite-backed audit trail and agent session
// registry. The decision core never requires it; callers attach it as an
// optional sink.
package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// DB wraps the sqlite connection.
type DB struct {
	*sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id             TEXT PRIMARY KEY,
	agent_name     TEXT NOT NULL,
	program        TEXT NOT NULL DEFAULT '',
	project_path   TEXT NOT NULL,
	started_at     TEXT NOT NULL,
	last_active_at TEXT NOT NULL,
	ended_at       TEXT
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_sessions_active
	ON sessions(agent_name, project_path) WHERE ended_at IS NULL;

CREATE TABLE IF NOT EXISTS decisions (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	command         TEXT NOT NULL,
	verdict         TEXT NOT NULL,
	risk            TEXT NOT NULL,
	matched_pattern TEXT NOT NULL DEFAULT '',
	approved        INTEGER NOT NULL,
	session_id      TEXT NOT NULL DEFAULT '',
	created_at      TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_decisions_created_at ON decisions(created_at);
`

// OpenAndMigrate opens (creating if necessary) the database at path and
// applies the schema.
func OpenAndMigrate(path string) (*DB, error) {
	if path == "" {
		return nil, fmt.Errorf("db path is required")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating db dir: %w", err)
		}
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening db: %w", err)
	}

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	} {
		if _, err := conn.Exec(pragma); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("applying %s: %w", pragma, err)
		}
	}

	if _, err := conn.Exec(schema); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("migrating schema: %w", err)
	}

	return &DB{DB: conn}, nil
}

package db

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrActiveSessionExists is returned when creating a session that would
// duplicate an active session for the same agent+project combination.
var ErrActiveSessionExists = errors.New("active session already exists for this agent and project")

// ErrSessionNotFound is returned when a session is not found.
var ErrSessionNotFound = errors.New("session not found")

// Session identifies one agent working in one project. Session-scoped
// approvals are keyed by the session ID and cleaned up when the session ends.
type Session struct {
	ID           string     `json:"id"`
	AgentName    string     `json:"agent_name"`
	Program      string     `json:"program,omitempty"`
	ProjectPath  string     `json:"project_path"`
	StartedAt    time.Time  `json:"started_at"`
	LastActiveAt time.Time  `json:"last_active_at"`
	EndedAt      *time.Time `json:"ended_at,omitempty"`
}

// CreateSession creates a new session, generating a UUID when none is set.
// Returns ErrActiveSessionExists if an active session already exists for the
// agent+project.
func (db *DB) CreateSession(s *Session) error {
	if s.AgentName == "" {
		return fmt.Errorf("agent_name is required")
	}
	if s.ProjectPath == "" {
		return fmt.Errorf("project_path is required")
	}

	if s.ID == "" {
		s.ID = uuid.New().String()
	}

	now := time.Now().UTC()
	s.StartedAt = now
	s.LastActiveAt = now
	s.EndedAt = nil

	_, err := db.Exec(`
		INSERT INTO sessions (id, agent_name, program, project_path, started_at, last_active_at, ended_at)
		VALUES (?, ?, ?, ?, ?, ?, NULL)
	`, s.ID, s.AgentName, s.Program, s.ProjectPath, s.StartedAt.Format(time.RFC3339), s.LastActiveAt.Format(time.RFC3339))

	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrActiveSessionExists
		}
		return fmt.Errorf("creating session: %w", err)
	}
	return nil
}

// GetSession retrieves a session by ID.
func (db *DB) GetSession(id string) (*Session, error) {
	row := db.QueryRow(`
		SELECT id, agent_name, program, project_path, started_at, last_active_at, ended_at
		FROM sessions WHERE id = ?
	`, id)
	return scanSession(row)
}

// GetActiveSession retrieves the active session for an agent and project.
// Returns ErrSessionNotFound if no active session exists.
func (db *DB) GetActiveSession(agentName, projectPath string) (*Session, error) {
	row := db.QueryRow(`
		SELECT id, agent_name, program, project_path, started_at, last_active_at, ended_at
		FROM sessions
		WHERE agent_name = ? AND project_path = ? AND ended_at IS NULL
	`, agentName, projectPath)
	return scanSession(row)
}

// ListActiveSessions returns all active sessions, most recently active first.
func (db *DB) ListActiveSessions() ([]*Session, error) {
	rows, err := db.Query(`
		SELECT id, agent_name, program, project_path, started_at, last_active_at, ended_at
		FROM sessions
		WHERE ended_at IS NULL
		ORDER BY last_active_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("querying active sessions: %w", err)
	}
	defer rows.Close()

	return scanSessions(rows)
}

// UpdateSessionHeartbeat updates the last_active_at timestamp for a session.
func (db *DB) UpdateSessionHeartbeat(id string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	result, err := db.Exec(`
		UPDATE sessions SET last_active_at = ? WHERE id = ? AND ended_at IS NULL
	`, now, id)
	if err != nil {
		return fmt.Errorf("updating session heartbeat: %w", err)
	}
	return requireRowAffected(result)
}

// EndSession marks a session as ended by setting ended_at.
func (db *DB) EndSession(id string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	result, err := db.Exec(`
		UPDATE sessions SET ended_at = ? WHERE id = ? AND ended_at IS NULL
	`, now, id)
	if err != nil {
		return fmt.Errorf("ending session: %w", err)
	}
	return requireRowAffected(result)
}

// FindStaleSessions returns active sessions that haven't been active within
// the threshold.
func (db *DB) FindStaleSessions(threshold time.Duration) ([]*Session, error) {
	cutoff := time.Now().UTC().Add(-threshold).Format(time.RFC3339)
	rows, err := db.Query(`
		SELECT id, agent_name, program, project_path, started_at, last_active_at, ended_at
		FROM sessions
		WHERE ended_at IS NULL AND last_active_at < ?
		ORDER BY last_active_at ASC
	`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("finding stale sessions: %w", err)
	}
	defer rows.Close()

	return scanSessions(rows)
}

func requireRowAffected(result sql.Result) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrSessionNotFound
	}
	return nil
}

func scanSession(row *sql.Row) (*Session, error) {
	s := &Session{}
	var startedAt, lastActiveAt string
	var endedAt sql.NullString

	err := row.Scan(&s.ID, &s.AgentName, &s.Program, &s.ProjectPath, &startedAt, &lastActiveAt, &endedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("scanning session: %w", err)
	}
	return fillSessionTimes(s, startedAt, lastActiveAt, endedAt)
}

func scanSessions(rows *sql.Rows) ([]*Session, error) {
	var sessions []*Session
	for rows.Next() {
		s := &Session{}
		var startedAt, lastActiveAt string
		var endedAt sql.NullString

		if err := rows.Scan(&s.ID, &s.AgentName, &s.Program, &s.ProjectPath, &startedAt, &lastActiveAt, &endedAt); err != nil {
			return nil, fmt.Errorf("scanning session row: %w", err)
		}
		filled, err := fillSessionTimes(s, startedAt, lastActiveAt, endedAt)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, filled)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating sessions: %w", err)
	}
	return sessions, nil
}

func fillSessionTimes(s *Session, startedAt, lastActiveAt string, endedAt sql.NullString) (*Session, error) {
	var err error
	s.StartedAt, err = time.Parse(time.RFC3339, startedAt)
	if err != nil {
		return nil, fmt.Errorf("parsing started_at: %w", err)
	}
	s.LastActiveAt, err = time.Parse(time.RFC3339, lastActiveAt)
	if err != nil {
		return nil, fmt.Errorf("parsing last_active_at: %w", err)
	}
	if endedAt.Valid {
		t, err := time.Parse(time.RFC3339, endedAt.String)
		if err != nil {
			return nil, fmt.Errorf("parsing ended_at: %w", err)
		}
		s.EndedAt = &t
	}
	return s, nil
}

// isUniqueConstraintError checks if the error is a unique constraint
// violation. FOREIGN KEY errors also contain "constraint failed" and are
// explicitly excluded.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "foreign key") {
		return false
	}
	return strings.Contains(msg, "constraint failed")
}

package db

import (
	"fmt"
	"time"

	"github.com/Dicklesworthstone/cmdgate/internal/gate"
)

// RecordDecision appends one Authorize outcome to the audit trail. DB
// satisfies gate.AuditSink.
func (db *DB) RecordDecision(d gate.Decision) error {
	at := d.At
	if at.IsZero() {
		at = time.Now().UTC()
	}
	_, err := db.Exec(`
		INSERT INTO decisions (command, verdict, risk, matched_pattern, approved, session_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, d.Command, string(d.Verdict), string(d.Risk), d.MatchedPattern, boolToInt(d.Approved), d.SessionID, at.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("recording decision: %w", err)
	}
	return nil
}

// ListDecisions returns the most recent decisions, newest first. A limit of
// zero or less returns everything.
func (db *DB) ListDecisions(limit int) ([]gate.Decision, error) {
	query := `
		SELECT command, verdict, risk, matched_pattern, approved, session_id, created_at
		FROM decisions
		ORDER BY id DESC
	`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying decisions: %w", err)
	}
	defer rows.Close()

	var decisions []gate.Decision
	for rows.Next() {
		var d gate.Decision
		var verdict, risk, createdAt string
		var approved int
		if err := rows.Scan(&d.Command, &verdict, &risk, &d.MatchedPattern, &approved, &d.SessionID, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning decision row: %w", err)
		}
		d.Verdict = gate.Verdict(verdict)
		d.Risk = gate.RiskLevel(risk)
		d.Approved = approved != 0
		d.At, err = time.Parse(time.RFC3339Nano, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing decision created_at: %w", err)
		}
		decisions = append(decisions, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating decisions: %w", err)
	}
	return decisions, nil
}

// PruneDecisions deletes audit entries older than the cutoff and reports how
// many were removed.
func (db *DB) PruneDecisions(olderThan time.Time) (int64, error) {
	result, err := db.Exec(`
		DELETE FROM decisions WHERE created_at < ?
	`, olderThan.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return 0, fmt.Errorf("pruning decisions: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("getting rows affected: %w", err)
	}
	return n, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Package ledger records every decision in the SQLite decisions table.
package ledger

import (
	"database/sql"
	"fmt"
	"time"
)

// Entry is one row of the decisions table.
type Entry struct {
	ID         string
	LogID      string
	LogSource  string
	Verdict    string
	Guard      string
	Reason     string
	ActionJSON string
	Fallback   bool
	CreatedAt  time.Time
}

// Ledger writes decisions to a database opened by state.OpenSQLite.
type Ledger struct {
	db *sql.DB
}

func New(db *sql.DB) *Ledger {
	return &Ledger{db: db}
}

// Record implements the decision service's ledger hook.
func (l *Ledger) Record(entry Entry) error {
	return LogDecision(l.db, entry)
}

// Recent returns up to limit entries, newest first.
func (l *Ledger) Recent(limit int) ([]Entry, error) {
	return Recent(l.db, limit)
}

// Counts returns the number of recorded decisions per verdict.
func (l *Ledger) Counts() (map[string]int, error) {
	return Counts(l.db)
}

// LogDecision inserts one decision row.
func LogDecision(db *sql.DB, entry Entry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	fallback := 0
	if entry.Fallback {
		fallback = 1
	}

	_, err := db.Exec(
		`INSERT INTO decisions (id, log_id, log_source, verdict, guard, reason, action_json, fallback, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID,
		nullIfEmpty(entry.LogID),
		nullIfEmpty(entry.LogSource),
		entry.Verdict,
		nullIfEmpty(entry.Guard),
		entry.Reason,
		nullIfEmpty(entry.ActionJSON),
		fallback,
		entry.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("log decision: %w", err)
	}
	return nil
}

// Recent returns up to limit entries, newest first. A limit <= 0 returns all.
func Recent(db *sql.DB, limit int) ([]Entry, error) {
	query := `SELECT id, log_id, log_source, verdict, guard, reason, action_json, fallback, created_at
		FROM decisions ORDER BY created_at DESC, rowid DESC`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query decisions: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e                                   Entry
			logID, logSource, guard, actionJSON sql.NullString
			fallback                            int
			createdAt                           string
		)
		if err := rows.Scan(&e.ID, &logID, &logSource, &e.Verdict, &guard, &e.Reason, &actionJSON, &fallback, &createdAt); err != nil {
			return nil, fmt.Errorf("scan decision: %w", err)
		}
		e.LogID = logID.String
		e.LogSource = logSource.String
		e.Guard = guard.String
		e.ActionJSON = actionJSON.String
		e.Fallback = fallback != 0
		if t, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
			e.CreatedAt = t
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Counts returns the number of recorded decisions per verdict.
func Counts(db *sql.DB) (map[string]int, error) {
	rows, err := db.Query(`SELECT verdict, COUNT(*) FROM decisions GROUP BY verdict`)
	if err != nil {
		return nil, fmt.Errorf("count decisions: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var verdict string
		var n int
		if err := rows.Scan(&verdict, &n); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		out[verdict] = n
	}
	return out, rows.Err()
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

package state

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS trust_scores (
	source      TEXT PRIMARY KEY,
	score       REAL NOT NULL CHECK (score >= 0 AND score <= 1),
	updated_at  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS decisions (
	id           TEXT PRIMARY KEY,
	log_id       TEXT,
	log_source   TEXT,
	verdict      TEXT NOT NULL,
	guard        TEXT,
	reason       TEXT NOT NULL,
	action_json  TEXT,
	fallback     INTEGER NOT NULL DEFAULT 0,
	created_at   TEXT NOT NULL
);
`

// SQLite persists trust scores in a SQLite database. It also owns the
// decisions table written by package ledger.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens a SQLite database and runs migrations.
func OpenSQLite(dbPath string) (*SQLite, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if dbPath == ":memory:" {
		// each pooled connection would otherwise get its own empty database
		db.SetMaxOpenConns(1)
	} else if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &SQLite{db: db}, nil
}

// Close closes the underlying database connection.
func (p *SQLite) Close() error {
	return p.db.Close()
}

// DB returns the underlying *sql.DB for use by other packages (e.g. ledger).
func (p *SQLite) DB() *sql.DB {
	return p.db
}

// LoadTrust reads every persisted trust score.
func (p *SQLite) LoadTrust() (map[string]float64, error) {
	rows, err := p.db.Query(`SELECT source, score FROM trust_scores`)
	if err != nil {
		return nil, fmt.Errorf("load trust: %w", err)
	}
	defer rows.Close()

	out := make(map[string]float64)
	for rows.Next() {
		var src string
		var score float64
		if err := rows.Scan(&src, &score); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		out[src] = score
	}
	return out, rows.Err()
}

// SaveTrust upserts the score of one source.
func (p *SQLite) SaveTrust(source string, score float64) error {
	_, err := p.db.Exec(
		`INSERT INTO trust_scores (source, score, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(source) DO UPDATE SET score = excluded.score, updated_at = excluded.updated_at`,
		source, score, time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("save trust %s: %w", source, err)
	}
	return nil
}

// Package store keeps a local journal of mutating command runs so
// `opsctl history` can show what was done and when.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id      INTEGER PRIMARY KEY AUTOINCREMENT,
	ts      TEXT NOT NULL,
	command TEXT NOT NULL,
	summary TEXT NOT NULL,
	ok      INTEGER NOT NULL
);
`

// Run is one journal entry.
type Run struct {
	ID      int64
	Time    time.Time
	Command string
	Summary string
	OK      bool
}

type Store struct {
	db *sql.DB
}

// DefaultPath is ~/.local/share/opsctl/history.db.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	return filepath.Join(home, ".local", "share", "opsctl", "history.db"), nil
}

// Open opens (creating if needed) the journal at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating journal dir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening journal %s: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing journal schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Record appends one run to the journal.
func (s *Store) Record(ctx context.Context, command, summary string, ok bool) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (ts, command, summary, ok) VALUES (?, ?, ?, ?)`,
		time.Now().UTC().Format(time.RFC3339), command, summary, ok,
	)
	if err != nil {
		return fmt.Errorf("recording run: %w", err)
	}
	return nil
}

// List returns the most recent runs, newest first.
func (s *Store) List(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, ts, command, summary, ok FROM runs ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var run Run
		var ts string
		var ok int
		if err := rows.Scan(&run.ID, &ts, &run.Command, &run.Summary, &ok); err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		run.Time, _ = time.Parse(time.RFC3339, ts)
		run.OK = ok != 0
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// Package history keeps the dispatch log: one row per file handed to the
// dispatcher, whatever the outcome.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const maxErrorBytes = 4 * 1024

// Fixed-width so completed_at sorts lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Entry is a single dispatch outcome.
type Entry struct {
	ID              string    `json:"id"`
	Path            string    `json:"path"`
	Origin          string    `json:"origin"`
	Printer         string    `json:"printer"`
	BlocksTotal     int       `json:"blocks_total"`
	BlocksSucceeded int       `json:"blocks_succeeded"`
	Error           string    `json:"error,omitempty"`
	ContentHash     string    `json:"content_hash,omitempty"`
	StartedAt       time.Time `json:"started_at"`
	CompletedAt     time.Time `json:"completed_at"`
}

// Succeeded reports whether every block reached the printer.
func (e Entry) Succeeded() bool {
	return e.Error == "" && e.BlocksSucceeded == e.BlocksTotal
}

// Store reads and writes the dispatch_log table.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

func New(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// Record appends e to the log.
func (s *Store) Record(ctx context.Context, e Entry) error {
	if e.ID == "" {
		return fmt.Errorf("entry id is empty")
	}
	if e.Path == "" {
		return fmt.Errorf("entry path is empty")
	}

	var errVal any
	if e.Error != "" {
		msg := e.Error
		if len(msg) > maxErrorBytes {
			msg = msg[:maxErrorBytes]
		}
		errVal = msg
	}
	var hashVal any
	if e.ContentHash != "" {
		hashVal = e.ContentHash
	}

	_, err := s.db.ExecContext(ctx, `
INSERT INTO dispatch_log(
  id, path, origin, printer, blocks_total, blocks_succeeded, error, content_hash, started_at, completed_at
)
VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?);
`, e.ID, e.Path, e.Origin, e.Printer, e.BlocksTotal, e.BlocksSucceeded, errVal, hashVal,
		e.StartedAt.UTC().Format(timeLayout), e.CompletedAt.UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("insert dispatch_log: %w", err)
	}
	return nil
}

// Recent returns up to limit entries, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT id, path, origin, printer, blocks_total, blocks_succeeded, error, content_hash, started_at, completed_at
FROM dispatch_log
ORDER BY completed_at DESC, id DESC
LIMIT ?;
`, limit)
	if err != nil {
		return nil, fmt.Errorf("query dispatch_log: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e                      Entry
			errS, hashS            sql.NullString
			startedAtS, completedS string
		)
		if err := rows.Scan(&e.ID, &e.Path, &e.Origin, &e.Printer, &e.BlocksTotal, &e.BlocksSucceeded,
			&errS, &hashS, &startedAtS, &completedS); err != nil {
			return nil, fmt.Errorf("scan dispatch_log: %w", err)
		}
		e.Error = errS.String
		e.ContentHash = hashS.String
		if t, err := time.Parse(time.RFC3339Nano, startedAtS); err == nil {
			e.StartedAt = t
		}
		if t, err := time.Parse(time.RFC3339Nano, completedS); err == nil {
			e.CompletedAt = t
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate dispatch_log: %w", err)
	}
	return out, nil
}

// Prune deletes entries completed more than retention ago. A zero retention
// keeps everything.
func (s *Store) Prune(ctx context.Context, retention time.Duration) (int64, error) {
	if retention <= 0 {
		return 0, nil
	}
	cutoff := s.now().Add(-retention).UTC().Format(timeLayout)
	res, err := s.db.ExecContext(ctx, `DELETE FROM dispatch_log WHERE completed_at < ?;`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune dispatch_log: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune dispatch_log: %w", err)
	}
	return n, nil
}

package memory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/scttfrdmn/agenkit/research-go/agenkit"
)

// SQLiteScratch keeps notes in a scratch table. It shares the database handle
// with the session store; the caller owns the handle and its driver import.
type SQLiteScratch struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteScratch creates the scratch table if needed.
func NewSQLiteScratch(db *sql.DB) (*SQLiteScratch, error) {
	_, err := db.Exec(`
	CREATE TABLE IF NOT EXISTS scratch (
		session_id TEXT NOT NULL,
		key TEXT NOT NULL,
		value TEXT NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		PRIMARY KEY (session_id, key)
	);`)
	if err != nil {
		return nil, fmt.Errorf("failed to create scratch table: %w", err)
	}
	return &SQLiteScratch{db: db, now: time.Now}, nil
}

func (s *SQLiteScratch) Get(ctx context.Context, sessionID, key string) (Entry, bool, error) {
	var entry Entry
	err := s.db.QueryRowContext(ctx,
		`SELECT value, updated_at FROM scratch WHERE session_id = ? AND key = ?`,
		sessionID, key).Scan(&entry.Value, &entry.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, &agenkit.StoreError{Op: "scratch get", SessionID: sessionID, Err: err}
	}
	return entry, true, nil
}

func (s *SQLiteScratch) Set(ctx context.Context, sessionID, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO scratch (session_id, key, value, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(session_id, key) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at`,
		sessionID, key, value, s.now().UTC())
	if err != nil {
		return &agenkit.StoreError{Op: "scratch set", SessionID: sessionID, Err: err}
	}
	return nil
}

func (s *SQLiteScratch) All(ctx context.Context, sessionID string) (map[string]Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT key, value, updated_at FROM scratch WHERE session_id = ?`, sessionID)
	if err != nil {
		return nil, &agenkit.StoreError{Op: "scratch all", SessionID: sessionID, Err: err}
	}
	defer rows.Close()

	entries := make(map[string]Entry)
	for rows.Next() {
		var key string
		var entry Entry
		if err := rows.Scan(&key, &entry.Value, &entry.UpdatedAt); err != nil {
			return nil, &agenkit.StoreError{Op: "scratch all", SessionID: sessionID, Err: err}
		}
		entries[key] = entry
	}
	if err := rows.Err(); err != nil {
		return nil, &agenkit.StoreError{Op: "scratch all", SessionID: sessionID, Err: err}
	}
	return entries, nil
}

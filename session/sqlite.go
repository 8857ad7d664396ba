package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore persists sessions in a SQLite database, one row per session.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens or creates the database at path with settings suited to a
// single writer and concurrent readers.
func OpenSQLite(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}
	return db, nil
}

// NewSQLiteStore creates the sessions table if needed.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, err
	}
	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		payload BLOB NOT NULL,
		version INTEGER NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create sessions table: %w", err)
	}
	return nil
}

// Load reads the session row, or returns a new session if none exists.
func (s *SQLiteStore) Load(ctx context.Context, sessionID string) (*Session, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM sessions WHERE id = ?`, sessionID).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return New(sessionID), nil
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, storeErr("load", sessionID, err)
	}

	sess, err := decode(payload)
	if err != nil {
		return nil, storeErr("load", sessionID, err)
	}
	return sess, nil
}

// Save upserts the session row inside a transaction.
func (s *SQLiteStore) Save(ctx context.Context, sess *Session) error {
	sess.Version++
	if err := s.save(ctx, sess); err != nil {
		sess.Version--
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return storeErr("save", sess.ID, err)
	}
	return nil
}

func (s *SQLiteStore) save(ctx context.Context, sess *Session) error {
	payload, err := encode(sess)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO sessions (id, payload, version, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			payload = excluded.payload,
			version = excluded.version,
			updated_at = excluded.updated_at`,
		sess.ID, payload, sess.Version, time.Now().UTC())
	if err != nil {
		return err
	}
	return tx.Commit()
}

// List returns stored session ids in sorted order.
func (s *SQLiteStore) List(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM sessions ORDER BY id`)
	if err != nil {
		return nil, storeErr("list", "", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, storeErr("list", "", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("list", "", err)
	}
	return ids, nil
}

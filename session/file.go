package session

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const fileExt = ".json"

// FileStore keeps one JSON file per session under a directory.
//
// Saves write a temporary file in the same directory, sync it, and rename it
// over the previous file.
type FileStore struct {
	dir string
}

// NewFileStore creates the directory if needed and returns a store rooted there.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create session directory: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

// Session ids are arbitrary strings, so file names use their URL-safe encoding.
func (s *FileStore) path(sessionID string) string {
	return filepath.Join(s.dir, base64.RawURLEncoding.EncodeToString([]byte(sessionID))+fileExt)
}

// Load reads the session file, or returns a new session if none exists.
func (s *FileStore) Load(ctx context.Context, sessionID string) (*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(s.path(sessionID))
	if errors.Is(err, os.ErrNotExist) {
		return New(sessionID), nil
	}
	if err != nil {
		return nil, storeErr("load", sessionID, err)
	}

	sess, err := decode(data)
	if err != nil {
		return nil, storeErr("load", sessionID, err)
	}
	return sess, nil
}

// Save atomically replaces the session file.
func (s *FileStore) Save(ctx context.Context, sess *Session) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	sess.Version++
	if err := s.write(sess); err != nil {
		sess.Version--
		return storeErr("save", sess.ID, err)
	}
	return nil
}

func (s *FileStore) write(sess *Session) error {
	data, err := encode(sess)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(s.dir, ".session-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, s.path(sess.ID)); err != nil {
		return fmt.Errorf("replace session file: %w", err)
	}
	return nil
}

// List returns the ids of all stored sessions in sorted order.
func (s *FileStore) List(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, storeErr("list", "", err)
	}

	ids := make([]string, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, fileExt) {
			continue
		}
		raw, err := base64.RawURLEncoding.DecodeString(strings.TrimSuffix(name, fileExt))
		if err != nil {
			continue
		}
		ids = append(ids, string(raw))
	}
	sort.Strings(ids)
	return ids, nil
}

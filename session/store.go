package session

import (
	"context"
	"sort"
	"sync"

	"github.com/scttfrdmn/agenkit/research-go/agenkit"
)

// Store loads and saves sessions.
//
// Load never fails because a session is absent: it returns a new empty
// session instead. Save replaces the stored session atomically, so a
// concurrent Load sees either the old or the new state. Failures are
// reported as *agenkit.StoreError.
type Store interface {
	Load(ctx context.Context, sessionID string) (*Session, error)
	Save(ctx context.Context, s *Session) error
}

// Lister is implemented by stores that can enumerate their sessions.
type Lister interface {
	List(ctx context.Context) ([]string, error)
}

func storeErr(op, sessionID string, err error) error {
	return &agenkit.StoreError{Op: op, SessionID: sessionID, Err: err}
}

// InMemoryStore keeps sessions in process memory.
//
// Sessions are stored encoded, so callers never share state with the store.
type InMemoryStore struct {
	mu       sync.RWMutex
	sessions map[string][]byte
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		sessions: make(map[string][]byte),
	}
}

// Load returns the stored session or a new one.
func (s *InMemoryStore) Load(ctx context.Context, sessionID string) (*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	data, ok := s.sessions[sessionID]
	s.mu.RUnlock()

	if !ok {
		return New(sessionID), nil
	}
	sess, err := decode(data)
	if err != nil {
		return nil, storeErr("load", sessionID, err)
	}
	return sess, nil
}

// Save replaces the stored session and bumps its version.
func (s *InMemoryStore) Save(ctx context.Context, sess *Session) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	sess.Version++
	data, err := encode(sess)
	if err != nil {
		sess.Version--
		return storeErr("save", sess.ID, err)
	}

	s.mu.Lock()
	s.sessions[sess.ID] = data
	s.mu.Unlock()
	return nil
}

// List returns stored session ids in sorted order.
func (s *InMemoryStore) List(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

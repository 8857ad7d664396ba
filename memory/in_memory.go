package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultMaxSessions bounds the number of sessions an InMemoryScratch keeps.
const DefaultMaxSessions = 1024

// InMemoryScratch keeps scratch notes in process memory.
//
// The least recently used sessions are evicted once more than maxSessions
// are held.
type InMemoryScratch struct {
	mu       sync.Mutex
	sessions *lru.Cache[string, map[string]Entry]
	now      func() time.Time
}

// NewInMemoryScratch creates a scratch store holding at most maxSessions sessions.
func NewInMemoryScratch(maxSessions int) (*InMemoryScratch, error) {
	if maxSessions <= 0 {
		maxSessions = DefaultMaxSessions
	}
	cache, err := lru.New[string, map[string]Entry](maxSessions)
	if err != nil {
		return nil, fmt.Errorf("failed to create scratch cache: %w", err)
	}
	return &InMemoryScratch{
		sessions: cache,
		now:      time.Now,
	}, nil
}

func (s *InMemoryScratch) Get(ctx context.Context, sessionID, key string) (Entry, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, ok := s.sessions.Get(sessionID)
	if !ok {
		return Entry{}, false, nil
	}
	entry, ok := entries[key]
	return entry, ok, nil
}

func (s *InMemoryScratch) Set(ctx context.Context, sessionID, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, ok := s.sessions.Get(sessionID)
	if !ok {
		entries = make(map[string]Entry)
		s.sessions.Add(sessionID, entries)
	}
	entries[key] = Entry{Value: value, UpdatedAt: s.now().UTC()}
	return nil
}

func (s *InMemoryScratch) All(ctx context.Context, sessionID string) (map[string]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]Entry)
	if entries, ok := s.sessions.Get(sessionID); ok {
		for k, v := range entries {
			out[k] = v
		}
	}
	return out, nil
}

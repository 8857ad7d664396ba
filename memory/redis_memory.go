package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/scttfrdmn/agenkit/research-go/agenkit"
)

// RedisScratch keeps each session's notes in one Redis hash.
type RedisScratch struct {
	client    redis.UniversalClient
	keyPrefix string
	now       func() time.Time
}

// NewRedisScratch returns a scratch store using client.
func NewRedisScratch(client redis.UniversalClient, keyPrefix string) *RedisScratch {
	if keyPrefix == "" {
		keyPrefix = "research"
	}
	return &RedisScratch{
		client:    client,
		keyPrefix: keyPrefix,
		now:       time.Now,
	}
}

func (r *RedisScratch) sessionKey(sessionID string) string {
	return fmt.Sprintf("%s:scratch:%s", r.keyPrefix, sessionID)
}

func (r *RedisScratch) Get(ctx context.Context, sessionID, key string) (Entry, bool, error) {
	raw, err := r.client.HGet(ctx, r.sessionKey(sessionID), key).Result()
	if errors.Is(err, redis.Nil) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, &agenkit.StoreError{Op: "scratch get", SessionID: sessionID, Err: err}
	}

	var entry Entry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		return Entry{}, false, &agenkit.StoreError{Op: "scratch get", SessionID: sessionID, Err: err}
	}
	return entry, true, nil
}

func (r *RedisScratch) Set(ctx context.Context, sessionID, key, value string) error {
	data, err := json.Marshal(Entry{Value: value, UpdatedAt: r.now().UTC()})
	if err != nil {
		return fmt.Errorf("failed to serialize scratch entry: %w", err)
	}
	if err := r.client.HSet(ctx, r.sessionKey(sessionID), key, data).Err(); err != nil {
		return &agenkit.StoreError{Op: "scratch set", SessionID: sessionID, Err: err}
	}
	return nil
}

func (r *RedisScratch) All(ctx context.Context, sessionID string) (map[string]Entry, error) {
	values, err := r.client.HGetAll(ctx, r.sessionKey(sessionID)).Result()
	if err != nil {
		return nil, &agenkit.StoreError{Op: "scratch all", SessionID: sessionID, Err: err}
	}

	entries := make(map[string]Entry, len(values))
	for key, raw := range values {
		var entry Entry
		if err := json.Unmarshal([]byte(raw), &entry); err != nil {
			return nil, &agenkit.StoreError{Op: "scratch all", SessionID: sessionID, Err: err}
		}
		entries[key] = entry
	}
	return entries, nil
}

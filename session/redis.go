package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/redis/go-redis/v9"
)

// DefaultKeyPrefix namespaces all keys written by the Redis-backed stores.
const DefaultKeyPrefix = "research"

// RedisStore keeps each session as a single JSON value.
type RedisStore struct {
	client    redis.UniversalClient
	keyPrefix string
}

// NewRedisClient parses a redis:// URL and returns a client.
func NewRedisClient(redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid Redis URL: %w", err)
	}
	return redis.NewClient(opts), nil
}

// NewRedisStore returns a store using client. An empty keyPrefix uses DefaultKeyPrefix.
func NewRedisStore(client redis.UniversalClient, keyPrefix string) *RedisStore {
	if keyPrefix == "" {
		keyPrefix = DefaultKeyPrefix
	}
	return &RedisStore{client: client, keyPrefix: keyPrefix}
}

func (s *RedisStore) sessionKey(sessionID string) string {
	return fmt.Sprintf("%s:session:%s", s.keyPrefix, sessionID)
}

// Load reads the session value, or returns a new session if none exists.
func (s *RedisStore) Load(ctx context.Context, sessionID string) (*Session, error) {
	data, err := s.client.Get(ctx, s.sessionKey(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return New(sessionID), nil
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, storeErr("load", sessionID, err)
	}

	sess, err := decode(data)
	if err != nil {
		return nil, storeErr("load", sessionID, err)
	}
	return sess, nil
}

// Save writes the session with a single SET, which Redis applies atomically.
func (s *RedisStore) Save(ctx context.Context, sess *Session) error {
	sess.Version++
	data, err := encode(sess)
	if err == nil {
		err = s.client.Set(ctx, s.sessionKey(sess.ID), data, 0).Err()
	}
	if err != nil {
		sess.Version--
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return storeErr("save", sess.ID, err)
	}
	return nil
}

// List scans for session keys and returns their ids in sorted order.
func (s *RedisStore) List(ctx context.Context) ([]string, error) {
	prefix := s.sessionKey("")
	var ids []string

	iter := s.client.Scan(ctx, 0, prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		ids = append(ids, strings.TrimPrefix(iter.Val(), prefix))
	}
	if err := iter.Err(); err != nil {
		return nil, storeErr("list", "", err)
	}
	sort.Strings(ids)
	return ids, nil
}

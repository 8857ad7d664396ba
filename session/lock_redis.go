package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/scttfrdmn/agenkit/research-go/agenkit"
)

// releaseScript deletes the lock only if it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// RedisLocker serializes runs across processes sharing one Redis.
//
// The lock expires after ttl so a crashed holder cannot wedge a session; ttl
// must exceed the longest expected run.
type RedisLocker struct {
	client       redis.UniversalClient
	keyPrefix    string
	policy       BusyPolicy
	ttl          time.Duration
	pollInterval time.Duration
	logger       *slog.Logger
}

// RedisLockerOption configures a RedisLocker.
type RedisLockerOption func(*RedisLocker)

// WithLockLogger sets the logger used to report failed releases.
func WithLockLogger(logger *slog.Logger) RedisLockerOption {
	return func(l *RedisLocker) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// NewRedisLocker creates a distributed locker.
func NewRedisLocker(client redis.UniversalClient, keyPrefix string, policy BusyPolicy, ttl time.Duration, opts ...RedisLockerOption) *RedisLocker {
	if keyPrefix == "" {
		keyPrefix = DefaultKeyPrefix
	}
	if policy == "" {
		policy = PolicyQueue
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	l := &RedisLocker{
		client:       client,
		keyPrefix:    keyPrefix,
		policy:       policy,
		ttl:          ttl,
		pollInterval: 50 * time.Millisecond,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *RedisLocker) lockKey(sessionID string) string {
	return fmt.Sprintf("%s:lock:%s", l.keyPrefix, sessionID)
}

// Acquire takes the session's lock according to the busy policy.
func (l *RedisLocker) Acquire(ctx context.Context, sessionID string) (func(), error) {
	key := l.lockKey(sessionID)
	token := uuid.NewString()

	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, &agenkit.StoreError{Op: "lock", SessionID: sessionID, Err: err}
		}
		if ok {
			break
		}
		if l.policy == PolicyFailFast {
			return nil, agenkit.ErrSessionBusy
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(l.pollInterval):
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			// Release must run even when the run's ctx was cancelled.
			releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			// A failed release leaves the session locked until the ttl expires.
			if err := releaseScript.Run(releaseCtx, l.client, []string{key}, token).Err(); err != nil && !errors.Is(err, redis.Nil) {
				l.logger.Warn("session lock release failed",
					"session_id", sessionID,
					"expires_in", l.ttl,
					"error", err)
			}
		})
	}, nil
}

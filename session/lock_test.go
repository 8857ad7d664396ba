package session

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scttfrdmn/agenkit/research-go/agenkit"
)

func TestLocalLockerFailFast(t *testing.T) {
	locker := NewLocalLocker(PolicyFailFast)
	ctx := context.Background()

	release, err := locker.Acquire(ctx, "s1")
	require.NoError(t, err)

	_, err = locker.Acquire(ctx, "s1")
	assert.ErrorIs(t, err, agenkit.ErrSessionBusy)

	other, err := locker.Acquire(ctx, "s2")
	require.NoError(t, err, "different sessions must not block each other")
	other()

	release()
	again, err := locker.Acquire(ctx, "s1")
	require.NoError(t, err)
	again()
}

func TestLocalLockerQueueSerializes(t *testing.T) {
	locker := NewLocalLocker(PolicyQueue)
	ctx := context.Background()

	var active, maxActive int32
	done := make(chan struct{})

	for i := 0; i < 5; i++ {
		go func() {
			release, err := locker.Acquire(ctx, "s1")
			if !assert.NoError(t, err) {
				done <- struct{}{}
				return
			}
			n := atomic.AddInt32(&active, 1)
			for {
				m := atomic.LoadInt32(&maxActive)
				if n <= m || atomic.CompareAndSwapInt32(&maxActive, m, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			atomic.AddInt32(&active, -1)
			release()
			done <- struct{}{}
		}()
	}
	for i := 0; i < 5; i++ {
		<-done
	}

	assert.Equal(t, int32(1), maxActive)
	assert.Empty(t, locker.locks, "lock entries should be dropped once free")
}

func TestLocalLockerQueueHonoursContext(t *testing.T) {
	locker := NewLocalLocker(PolicyQueue)

	release, err := locker.Acquire(context.Background(), "s1")
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = locker.Acquire(ctx, "s1")
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestLocalLockerReleaseIsIdempotent(t *testing.T) {
	locker := NewLocalLocker(PolicyFailFast)

	release, err := locker.Acquire(context.Background(), "s1")
	require.NoError(t, err)
	release()
	release()

	a, err := locker.Acquire(context.Background(), "s1")
	require.NoError(t, err)
	_, err = locker.Acquire(context.Background(), "s1")
	assert.ErrorIs(t, err, agenkit.ErrSessionBusy, "double release must not free a later holder")
	a()
}

func TestParseBusyPolicy(t *testing.T) {
	p, err := ParseBusyPolicy("fail_fast")
	require.NoError(t, err)
	assert.Equal(t, PolicyFailFast, p)

	_, err = ParseBusyPolicy("drop")
	assert.Error(t, err)
}

func TestRedisLockerFailFast(t *testing.T) {
	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("REDIS_URL not set")
	}
	client, err := NewRedisClient(url)
	require.NoError(t, err)
	defer client.Close()

	locker := NewRedisLocker(client, "research-test-lock", PolicyFailFast, time.Minute)
	ctx := context.Background()

	release, err := locker.Acquire(ctx, "s1")
	require.NoError(t, err)

	_, err = locker.Acquire(ctx, "s1")
	assert.ErrorIs(t, err, agenkit.ErrSessionBusy)

	release()
	again, err := locker.Acquire(ctx, "s1")
	require.NoError(t, err)
	again()
}

// failingReleaseHook answers SET NX locally and fails every script call, so
// the locker runs without a server.
type failingReleaseHook struct{}

func (failingReleaseHook) DialHook(next redis.DialHook) redis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		return nil, errors.New("dial disabled")
	}
}

func (failingReleaseHook) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		switch strings.ToLower(cmd.Name()) {
		case "set":
			cmd.(*redis.BoolCmd).SetVal(true)
			return nil
		case "evalsha", "eval":
			err := errors.New("READONLY You can't write against a read only replica.")
			cmd.SetErr(err)
			return err
		default:
			return next(ctx, cmd)
		}
	}
}

func (failingReleaseHook) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return next
}

func TestRedisLockerLogsFailedRelease(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})
	client.AddHook(failingReleaseHook{})
	defer client.Close()

	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))
	locker := NewRedisLocker(client, "research-test-lock", PolicyFailFast, time.Minute, WithLockLogger(logger))

	release, err := locker.Acquire(context.Background(), "s1")
	require.NoError(t, err)
	release()

	out := logs.String()
	assert.Contains(t, out, "session lock release failed")
	assert.Contains(t, out, "session_id=s1")
	assert.Contains(t, out, "READONLY")
}

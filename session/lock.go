package session

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/scttfrdmn/agenkit/research-go/agenkit"
)

// BusyPolicy decides what happens when a run targets a session that already
// has a run in progress.
type BusyPolicy string

const (
	// PolicyQueue waits for the session to become free or for ctx to end.
	PolicyQueue BusyPolicy = "queue"

	// PolicyFailFast returns agenkit.ErrSessionBusy immediately.
	PolicyFailFast BusyPolicy = "fail_fast"
)

// ParseBusyPolicy validates a policy name.
func ParseBusyPolicy(s string) (BusyPolicy, error) {
	switch BusyPolicy(s) {
	case PolicyQueue, PolicyFailFast:
		return BusyPolicy(s), nil
	default:
		return "", fmt.Errorf("unknown busy policy %q (want %q or %q)", s, PolicyQueue, PolicyFailFast)
	}
}

// Locker serializes runs per session. The returned release func must be
// called exactly once; extra calls are ignored.
type Locker interface {
	Acquire(ctx context.Context, sessionID string) (release func(), err error)
}

// LocalLocker serializes runs within one process.
type LocalLocker struct {
	policy BusyPolicy

	mu    sync.Mutex
	locks map[string]*sessionLock
}

type sessionLock struct {
	sem  *semaphore.Weighted
	refs int
}

// NewLocalLocker creates a process-local locker with the given policy.
func NewLocalLocker(policy BusyPolicy) *LocalLocker {
	if policy == "" {
		policy = PolicyQueue
	}
	return &LocalLocker{
		policy: policy,
		locks:  make(map[string]*sessionLock),
	}
}

// Acquire takes the session's lock according to the busy policy.
func (l *LocalLocker) Acquire(ctx context.Context, sessionID string) (func(), error) {
	lock := l.ref(sessionID)

	if l.policy == PolicyFailFast {
		if !lock.sem.TryAcquire(1) {
			l.unref(sessionID)
			return nil, agenkit.ErrSessionBusy
		}
	} else if err := lock.sem.Acquire(ctx, 1); err != nil {
		l.unref(sessionID)
		return nil, err
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			lock.sem.Release(1)
			l.unref(sessionID)
		})
	}, nil
}

func (l *LocalLocker) ref(sessionID string) *sessionLock {
	l.mu.Lock()
	defer l.mu.Unlock()

	lock, ok := l.locks[sessionID]
	if !ok {
		lock = &sessionLock{sem: semaphore.NewWeighted(1)}
		l.locks[sessionID] = lock
	}
	lock.refs++
	return lock
}

// unref drops the lock entry once no run holds or waits on it.
func (l *LocalLocker) unref(sessionID string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	lock, ok := l.locks[sessionID]
	if !ok {
		return
	}
	lock.refs--
	if lock.refs == 0 {
		delete(l.locks, sessionID)
	}
}

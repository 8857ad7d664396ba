package middleware

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestWithTimeoutSuccess(t *testing.T) {
	got, err := WithTimeout(context.Background(), "fast", 100*time.Millisecond, func(ctx context.Context) (int, error) {
		return 42, nil
	})
	if err != nil {
		t.Fatalf("Expected success, got %v", err)
	}
	if got != 42 {
		t.Errorf("Expected 42, got %d", got)
	}
}

func TestWithTimeoutExceeded(t *testing.T) {
	_, err := WithTimeout(context.Background(), "slow tool", 10*time.Millisecond, func(ctx context.Context) (int, error) {
		<-ctx.Done()
		return 0, ctx.Err()
	})

	var timeoutErr *TimeoutError
	if !errors.As(err, &timeoutErr) {
		t.Fatalf("Expected TimeoutError, got %v", err)
	}
	if timeoutErr.Operation != "slow tool" {
		t.Errorf("Expected operation 'slow tool', got %q", timeoutErr.Operation)
	}
	if !timeoutErr.Temporary() {
		t.Errorf("Expected timeout to be temporary")
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected errors.Is DeadlineExceeded")
	}
}

func TestWithTimeoutIgnoringContext(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	start := time.Now()
	_, err := WithTimeout(context.Background(), "stubborn", 10*time.Millisecond, func(ctx context.Context) (string, error) {
		<-release
		return "late", nil
	})

	var timeoutErr *TimeoutError
	if !errors.As(err, &timeoutErr) {
		t.Fatalf("Expected TimeoutError, got %v", err)
	}
	if time.Since(start) > 500*time.Millisecond {
		t.Errorf("WithTimeout waited for a call that ignored its context")
	}
}

func TestWithTimeoutParentCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := WithTimeout(ctx, "op", time.Second, func(ctx context.Context) (int, error) {
		<-ctx.Done()
		return 0, ctx.Err()
	})

	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
	var timeoutErr *TimeoutError
	if errors.As(err, &timeoutErr) {
		t.Errorf("Parent cancellation must not be reported as a timeout")
	}
}

func TestWithTimeoutDisabled(t *testing.T) {
	got, err := WithTimeout(context.Background(), "op", 0, func(ctx context.Context) (string, error) {
		if _, ok := ctx.Deadline(); ok {
			t.Errorf("Expected no deadline")
		}
		return "ok", nil
	})
	if err != nil || got != "ok" {
		t.Errorf("Expected ok, got %q, %v", got, err)
	}
}

package middleware

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

// flakyCall fails a specified number of times before succeeding.
type flakyCall struct {
	failCount int
	attempts  int
	err       error
}

func (f *flakyCall) call(ctx context.Context) (string, error) {
	f.attempts++
	if f.attempts <= f.failCount {
		return "", f.err
	}
	return "ok", nil
}

func TestRetrySuccess(t *testing.T) {
	call := &flakyCall{failCount: 2, err: errors.New("temporary failure")}

	result, attempts, err := Retry(context.Background(), RetryConfig{
		MaxAttempts:       3,
		InitialBackoff:    time.Millisecond,
		BackoffMultiplier: 2.0,
	}, call.call)

	if err != nil {
		t.Fatalf("Expected success after retries, got error: %v", err)
	}
	if result != "ok" {
		t.Errorf("Expected result 'ok', got '%s'", result)
	}
	if attempts != 3 {
		t.Errorf("Expected 3 attempts, got %d", attempts)
	}
}

func TestRetryMaxAttemptsExceeded(t *testing.T) {
	cause := errors.New("persistent failure")
	call := &flakyCall{failCount: 10, err: cause}

	_, attempts, err := Retry(context.Background(), RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
	}, call.call)

	if err == nil {
		t.Fatal("Expected error after max attempts")
	}
	if !errors.Is(err, cause) {
		t.Errorf("Expected wrapped cause, got %v", err)
	}
	if !strings.Contains(err.Error(), "max retry attempts (3) exceeded") {
		t.Errorf("Unexpected error message: %v", err)
	}
	if attempts != 3 || call.attempts != 3 {
		t.Errorf("Expected 3 attempts, got %d (calls %d)", attempts, call.attempts)
	}
}

func TestRetrySingleAttemptReturnsRawError(t *testing.T) {
	cause := errors.New("nope")
	call := &flakyCall{failCount: 1, err: cause}

	_, attempts, err := Retry(context.Background(), RetryConfig{MaxAttempts: 1}, call.call)
	if err != cause {
		t.Errorf("Expected raw cause, got %v", err)
	}
	if attempts != 1 {
		t.Errorf("Expected 1 attempt, got %d", attempts)
	}
}

func TestRetryShouldRetryStopsEarly(t *testing.T) {
	permanent := errors.New("permanent")
	call := &flakyCall{failCount: 5, err: permanent}

	_, attempts, err := Retry(context.Background(), RetryConfig{
		MaxAttempts:    5,
		InitialBackoff: time.Millisecond,
		ShouldRetry:    func(err error) bool { return err != permanent },
	}, call.call)

	if err != permanent {
		t.Errorf("Expected permanent error, got %v", err)
	}
	if attempts != 1 {
		t.Errorf("Expected 1 attempt, got %d", attempts)
	}
}

func TestRetryContextCancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	call := &flakyCall{failCount: 10, err: errors.New("fail")}

	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, _, err := Retry(ctx, RetryConfig{
		MaxAttempts:    5,
		InitialBackoff: time.Second,
	}, call.call)

	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
	if time.Since(start) > 500*time.Millisecond {
		t.Errorf("Retry did not stop promptly on cancellation")
	}
}

func TestRetryBackoffIsCapped(t *testing.T) {
	call := &flakyCall{failCount: 3, err: errors.New("fail")}

	start := time.Now()
	_, _, err := Retry(context.Background(), RetryConfig{
		MaxAttempts:       4,
		InitialBackoff:    5 * time.Millisecond,
		MaxBackoff:        5 * time.Millisecond,
		BackoffMultiplier: 100,
	}, call.call)

	if err != nil {
		t.Fatalf("Expected success, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 200*time.Millisecond {
		t.Errorf("Backoff not capped, took %v", elapsed)
	}
}

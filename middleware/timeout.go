package middleware

import (
	"context"
	"fmt"
	"time"
)

// TimeoutError is returned when a call exceeds its deadline.
type TimeoutError struct {
	Operation string
	Timeout   time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s timed out after %v", e.Operation, e.Timeout)
}

// Temporary marks timeouts as retryable.
func (e *TimeoutError) Temporary() bool {
	return true
}

// Unwrap lets errors.Is match context.DeadlineExceeded.
func (e *TimeoutError) Unwrap() error {
	return context.DeadlineExceeded
}

// WithTimeout runs fn with a deadline of timeout. A non-positive timeout runs fn
// without a deadline.
//
// fn runs on its own goroutine so that calls which ignore ctx still return to
// the caller on time. Cancellation of the parent ctx is reported as ctx.Err(),
// never as a TimeoutError.
func WithTimeout[T any](ctx context.Context, operation string, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	if timeout <= 0 {
		return fn(ctx)
	}

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		value T
		err   error
	}
	done := make(chan result, 1)

	go func() {
		value, err := fn(callCtx)
		done <- result{value: value, err: err}
	}()

	var zero T
	select {
	case r := <-done:
		if r.err != nil && ctx.Err() == nil && callCtx.Err() == context.DeadlineExceeded {
			return zero, &TimeoutError{Operation: operation, Timeout: timeout}
		}
		return r.value, r.err
	case <-callCtx.Done():
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		return zero, &TimeoutError{Operation: operation, Timeout: timeout}
	}
}

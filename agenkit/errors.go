package agenkit

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrSessionBusy is returned when a run targets a session that already has a
	// run in progress and the busy policy is fail-fast.
	ErrSessionBusy = errors.New("session busy")

	// ErrInvalidRequest is returned for runs with a missing session id or question.
	ErrInvalidRequest = errors.New("invalid request")
)

// ToolInvocationError describes a failed tool call.
type ToolInvocationError struct {
	Tool    string
	Message string

	// Transient marks failures worth retrying, such as upstream timeouts.
	Transient bool

	Err error
}

func (e *ToolInvocationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("tool %q: %s: %v", e.Tool, e.Message, e.Err)
	}
	return fmt.Sprintf("tool %q: %s", e.Tool, e.Message)
}

func (e *ToolInvocationError) Unwrap() error {
	return e.Err
}

// AgentInvocationError wraps a failure to obtain an action from an agent.
type AgentInvocationError struct {
	Role     AgentRole
	Attempts int
	Err      error
}

func (e *AgentInvocationError) Error() string {
	return fmt.Sprintf("%s invocation failed after %d attempt(s): %v", e.Role, e.Attempts, e.Err)
}

func (e *AgentInvocationError) Unwrap() error {
	return e.Err
}

// StoreError wraps a failure of the session store or scratch store.
type StoreError struct {
	Op        string
	SessionID string
	Err       error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s for session %q: %v", e.Op, e.SessionID, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// IsTransient reports whether err is worth retrying.
//
// Cancellation of the caller's context is never transient. Tool errors are
// transient only when marked so. Errors exposing Temporary() bool (timeouts
// from the middleware package) are consulted last.
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}

	var toolErr *ToolInvocationError
	if errors.As(err, &toolErr) {
		if toolErr.Transient {
			return true
		}
		if toolErr.Err == nil {
			return false
		}
	}

	var temp interface{ Temporary() bool }
	if errors.As(err, &temp) {
		return temp.Temporary()
	}

	return errors.Is(err, context.DeadlineExceeded)
}

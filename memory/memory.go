// Package memory provides session-scoped scratch notes for agents.
//
// Scratch memory is independent of session checkpoints: notes are written as
// soon as an agent produces them and survive runs that end without a
// checkpoint. Writes are last-write-wins per key.
package memory

import (
	"context"
	"time"
)

// Entry is a stored scratch value.
type Entry struct {
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Scratch stores key/value notes per session.
type Scratch interface {
	// Get returns the entry for key and whether it exists.
	Get(ctx context.Context, sessionID, key string) (Entry, bool, error)

	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, sessionID, key, value string) error

	// All returns every entry of the session.
	All(ctx context.Context, sessionID string) (map[string]Entry, error)
}

// Values flattens entries to their values.
func Values(entries map[string]Entry) map[string]string {
	values := make(map[string]string, len(entries))
	for k, e := range entries {
		values[k] = e.Value
	}
	return values
}

// Package session persists research sessions: an append-only list of turns
// per session id, written once per run.
package session

import (
	"encoding/json"
	"fmt"
	"time"
)

// Outcome is how a run ended.
type Outcome string

const (
	OutcomeDone             Outcome = "done"
	OutcomeIncomplete       Outcome = "incomplete"
	OutcomeRejectedInput    Outcome = "rejected-input"
	OutcomeGuardrailBlocked Outcome = "guardrail-blocked"
)

// ToolCall records one tool invocation made during a run.
type ToolCall struct {
	Tool      string                 `json:"tool"`
	Input     map[string]interface{} `json:"input,omitempty"`
	Output    interface{}            `json:"output,omitempty"`
	Error     string                 `json:"error,omitempty"`
	Attempts  int                    `json:"attempts"`
	Duration  time.Duration          `json:"duration_ns"`
	Timestamp time.Time              `json:"timestamp"`
}

// Succeeded reports whether the call returned an output.
func (c ToolCall) Succeeded() bool {
	return c.Error == ""
}

// Verdict records one reviewer decision.
type Verdict struct {
	Round    int    `json:"round"`
	Accepted bool   `json:"accepted"`
	Feedback string `json:"feedback,omitempty"`
}

// GuardrailOutcome records what the validator did on both passes.
type GuardrailOutcome struct {
	Preflight  string   `json:"preflight"`
	Postflight string   `json:"postflight,omitempty"`
	Flags      []string `json:"flags,omitempty"`
}

// Turn is one completed run. Turns are never modified once appended.
type Turn struct {
	ID           string            `json:"id"`
	Question     string            `json:"question"`
	Answer       string            `json:"answer"`
	Outcome      Outcome           `json:"outcome"`
	Warning      string            `json:"warning,omitempty"`
	ToolCalls    []ToolCall        `json:"tool_calls,omitempty"`
	Verdicts     []Verdict         `json:"verdicts,omitempty"`
	Guardrail    GuardrailOutcome  `json:"guardrail"`
	ScratchDelta map[string]string `json:"scratch_delta,omitempty"`
	Timestamp    time.Time         `json:"timestamp"`
}

// Session is the durable state of one conversation.
type Session struct {
	ID        string    `json:"id"`
	Turns     []Turn    `json:"turns"`
	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// New returns an empty session.
func New(id string) *Session {
	ts := time.Now().UTC()
	return &Session{
		ID:        id,
		Turns:     []Turn{},
		CreatedAt: ts,
		UpdatedAt: ts,
	}
}

// Append adds a turn to the end of the session.
func (s *Session) Append(turn Turn) {
	s.Turns = append(s.Turns, turn)
	s.UpdatedAt = time.Now().UTC()
}

// Recent returns up to n of the latest turns, oldest first.
func (s *Session) Recent(n int) []Turn {
	if n <= 0 || len(s.Turns) == 0 {
		return nil
	}
	if n > len(s.Turns) {
		n = len(s.Turns)
	}
	return s.Turns[len(s.Turns)-n:]
}

func encode(s *Session) ([]byte, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to encode session: %w", err)
	}
	return data, nil
}

func decode(data []byte) (*Session, error) {
	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to decode session: %w", err)
	}
	if s.Turns == nil {
		s.Turns = []Turn{}
	}
	return &s, nil
}

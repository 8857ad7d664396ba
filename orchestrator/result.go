package orchestrator

import (
	"github.com/scttfrdmn/agenkit/research-go/session"
)

// Result is what a run returns to its caller.
type Result struct {
	SessionID string          `json:"session_id"`
	TurnID    string          `json:"turn_id"`
	Answer    string          `json:"answer"`
	Outcome   session.Outcome `json:"outcome"`

	// Warning explains a partial answer or a failed best-effort save.
	Warning string `json:"warning,omitempty"`

	ToolCalls   []session.ToolCall `json:"tool_calls"`
	Verdicts    []session.Verdict  `json:"verdicts"`
	Flags       []string           `json:"guardrail_flags"`
	Transitions []Transition       `json:"transitions"`

	// Persisted reports whether the turn reached the session store.
	Persisted bool `json:"persisted"`
}

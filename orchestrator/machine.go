package orchestrator

import (
	"fmt"
	"time"
)

// State is a step of an orchestration run.
type State string

const (
	// StatePreflight is the entry state: the question is validated and the
	// session loaded before any agent runs.
	StatePreflight      State = "preflight"
	StateResearch       State = "research"
	StateReviewing      State = "reviewing"
	StateGuardrailCheck State = "guardrail_check"
	StatePersisting     State = "persisting"
	StateDone           State = "done"
	StateAborted        State = "aborted"
)

// Terminal reports whether no transition leaves s.
func (s State) Terminal() bool {
	return s == StateDone || s == StateAborted
}

var allowedTransitions = map[State][]State{
	StatePreflight:      {StateResearch, StatePersisting, StateAborted},
	StateResearch:       {StateResearch, StateReviewing, StateAborted},
	StateReviewing:      {StateResearch, StateGuardrailCheck, StateAborted},
	StateGuardrailCheck: {StatePersisting, StateAborted},
	StatePersisting:     {StateDone, StateAborted},
}

// Transition records a state change of a run.
type Transition struct {
	From   State     `json:"from"`
	To     State     `json:"to"`
	Reason string    `json:"reason,omitempty"`
	At     time.Time `json:"at"`
}

// Observer receives every transition of a run as it happens. It is called
// synchronously from the run's goroutine.
type Observer func(Transition)

type machine struct {
	state       State
	transitions []Transition
	observers   []Observer
}

func newMachine(observers []Observer) *machine {
	return &machine{state: StatePreflight, observers: observers}
}

// to moves the machine to next. Illegal transitions are programming errors.
func (m *machine) to(next State, reason string) {
	if !canTransition(m.state, next) {
		panic(fmt.Sprintf("orchestrator: illegal transition %s -> %s", m.state, next))
	}
	t := Transition{From: m.state, To: next, Reason: reason, At: time.Now().UTC()}
	m.state = next
	m.transitions = append(m.transitions, t)
	for _, observe := range m.observers {
		observe(t)
	}
}

func canTransition(from, to State) bool {
	for _, s := range allowedTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

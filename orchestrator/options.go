package orchestrator

import (
	"errors"
	"time"
)

// Options bounds a run. Options is a value: a running Orchestrator never sees
// later changes.
type Options struct {
	// IterationCap is the maximum number of researcher calls per research pass.
	IterationCap int

	// RevisionCap is the maximum number of revise verdicts honoured per run.
	RevisionCap int

	AgentTimeout time.Duration
	ToolTimeout  time.Duration

	// ToolRetries and AgentRetries count extra attempts after the first.
	ToolRetries  int
	AgentRetries int

	// RetryBackoff is the first backoff delay; it doubles per attempt.
	RetryBackoff time.Duration

	// HistoryWindow is how many prior turns the researcher sees.
	HistoryWindow int
}

// DefaultOptions returns the default bounds.
func DefaultOptions() Options {
	return Options{
		IterationCap:  5,
		RevisionCap:   2,
		AgentTimeout:  60 * time.Second,
		ToolTimeout:   15 * time.Second,
		ToolRetries:   2,
		AgentRetries:  1,
		RetryBackoff:  200 * time.Millisecond,
		HistoryWindow: 3,
	}
}

// Validate rejects options that could not bound a run.
func (o Options) Validate() error {
	var errs []error
	if o.IterationCap <= 0 {
		errs = append(errs, errors.New("iteration cap must be positive"))
	}
	if o.RevisionCap < 0 {
		errs = append(errs, errors.New("revision cap must not be negative"))
	}
	if o.ToolRetries < 0 || o.AgentRetries < 0 {
		errs = append(errs, errors.New("retry bounds must not be negative"))
	}
	if o.HistoryWindow < 0 {
		errs = append(errs, errors.New("history window must not be negative"))
	}
	return errors.Join(errs...)
}

// RunOption customises a single run.
type RunOption func(*runConfig)

type runConfig struct {
	observers []Observer
}

// WithObserver registers an observer for the run's transitions.
func WithObserver(o Observer) RunOption {
	return func(c *runConfig) {
		if o != nil {
			c.observers = append(c.observers, o)
		}
	}
}

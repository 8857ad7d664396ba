// Package orchestrator runs one research question through the researcher,
// reviewer and guardrail stages and persists the resulting turn.
//
// A run is an explicit state machine:
//
//	preflight -> research <-> reviewing -> guardrail_check -> persisting -> done
//
// with aborted reachable from every non-terminal state. Research passes are
// bounded by Options.IterationCap and review rounds by Options.RevisionCap, so
// every run terminates.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/scttfrdmn/agenkit/research-go/agenkit"
	"github.com/scttfrdmn/agenkit/research-go/guardrail"
	"github.com/scttfrdmn/agenkit/research-go/memory"
	"github.com/scttfrdmn/agenkit/research-go/observability"
	"github.com/scttfrdmn/agenkit/research-go/session"
	"github.com/scttfrdmn/agenkit/research-go/tools"
)

// Deps are the collaborators of an Orchestrator. Gateway, Tools, Store and
// Guardrail are required.
type Deps struct {
	Gateway   agenkit.Gateway
	Tools     *tools.Registry
	Store     session.Store
	Guardrail *guardrail.Validator

	// Scratch defaults to an in-memory store.
	Scratch memory.Scratch

	// Locker defaults to a queueing LocalLocker.
	Locker session.Locker

	Logger      *slog.Logger
	Tracer      trace.Tracer
	Instruments *observability.Instruments
}

// Orchestrator runs questions against sessions. It is safe for concurrent
// use; runs on the same session are serialized by the Locker.
type Orchestrator struct {
	gateway     agenkit.Gateway
	tools       *tools.Registry
	store       session.Store
	scratch     memory.Scratch
	locker      session.Locker
	guard       *guardrail.Validator
	opts        Options
	logger      *slog.Logger
	tracer      trace.Tracer
	instruments *observability.Instruments
}

// New creates an Orchestrator.
func New(deps Deps, opts Options) (*Orchestrator, error) {
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("invalid options: %w", err)
	}
	switch {
	case deps.Gateway == nil:
		return nil, errors.New("gateway is required")
	case deps.Tools == nil:
		return nil, errors.New("tool registry is required")
	case deps.Store == nil:
		return nil, errors.New("session store is required")
	case deps.Guardrail == nil:
		return nil, errors.New("guardrail validator is required")
	}

	o := &Orchestrator{
		tools:       deps.Tools,
		store:       deps.Store,
		scratch:     deps.Scratch,
		locker:      deps.Locker,
		guard:       deps.Guardrail,
		opts:        opts,
		logger:      deps.Logger,
		tracer:      deps.Tracer,
		instruments: deps.Instruments,
	}
	if o.scratch == nil {
		scratch, err := memory.NewInMemoryScratch(memory.DefaultMaxSessions)
		if err != nil {
			return nil, err
		}
		o.scratch = scratch
	}
	if o.locker == nil {
		o.locker = session.NewLocalLocker(session.PolicyQueue)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.tracer == nil {
		o.tracer = observability.Tracer()
	}
	o.gateway = observability.InstrumentGateway(deps.Gateway, o.tracer, o.instruments)
	return o, nil
}

// Options returns the bounds the orchestrator was built with.
func (o *Orchestrator) Options() Options {
	return o.opts
}

// Run answers question within sessionID and appends the turn to the session.
//
// Controlled terminations (caps reached, agent failures, guardrail blocks,
// rejected questions) return a Result with the matching outcome and a nil
// error. Errors are returned for invalid input (agenkit.ErrInvalidRequest),
// a busy session under the fail-fast policy (agenkit.ErrSessionBusy), store
// failures (*agenkit.StoreError) and cancellation of ctx, in which case
// nothing is persisted.
func (o *Orchestrator) Run(ctx context.Context, sessionID, question string, opts ...RunOption) (*Result, error) {
	if strings.TrimSpace(sessionID) == "" || strings.TrimSpace(question) == "" {
		return nil, fmt.Errorf("%w: session id and question are required", agenkit.ErrInvalidRequest)
	}
	var cfg runConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	turnID := uuid.NewString()
	ctx, span := o.tracer.Start(ctx, "orchestrator.run", trace.WithAttributes(
		attribute.String("session.id", sessionID),
		attribute.String("turn.id", turnID),
	))
	start := time.Now()

	r := &run{
		o:            o,
		sessionID:    sessionID,
		turnID:       turnID,
		question:     question,
		machine:      newMachine(cfg.observers),
		scratchDelta: map[string]string{},
		logger:       o.logger.With("session_id", sessionID, "turn_id", turnID),
	}
	result, err := r.execute(ctx)

	if result != nil {
		span.SetAttributes(attribute.String("run.outcome", string(result.Outcome)))
		o.instruments.RecordRun(ctx, string(result.Outcome), time.Since(start))
		r.logger.InfoContext(ctx, "run finished",
			"outcome", result.Outcome,
			"tool_calls", len(result.ToolCalls),
			"verdicts", len(result.Verdicts),
			"persisted", result.Persisted,
			"duration", time.Since(start),
		)
	} else {
		r.logger.WarnContext(ctx, "run failed", "state", r.machine.state, "error", err)
	}
	observability.EndSpan(span, err)
	return result, err
}

// stop is a controlled early end of the research or review stage.
type stop struct {
	reason  string
	warning string
	err     error
}

func (s *stop) Error() string {
	if s.err != nil {
		return s.reason + ": " + s.err.Error()
	}
	return s.reason
}

func (s *stop) Unwrap() error { return s.err }

// run holds the state of a single Run call. It is owned by one goroutine.
type run struct {
	o         *Orchestrator
	sessionID string
	turnID    string
	question  string
	machine   *machine
	logger    *slog.Logger

	session      *session.Session
	scratch      map[string]string
	scratchDelta map[string]string

	observations []agenkit.Observation
	toolCalls    []session.ToolCall
	lastThought  string

	draft     string
	feedback  []string
	verdicts  []session.Verdict
	revisions int

	answer    string
	outcome   session.Outcome
	warning   string
	guardrail session.GuardrailOutcome
	flags     []string
}

func (r *run) execute(ctx context.Context) (*Result, error) {
	pre := r.o.guard.Preflight(r.question)
	r.guardrail.Preflight = string(pre.Decision)
	r.flags = append(r.flags, pre.Flags...)

	release, err := r.o.locker.Acquire(ctx, r.sessionID)
	if err != nil {
		return nil, err
	}
	defer release()

	sess, err := r.o.store.Load(ctx, r.sessionID)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		r.machine.to(StateAborted, "session load failed")
		return nil, err
	}
	r.session = sess

	if pre.Decision == guardrail.DecisionReject {
		r.logger.InfoContext(ctx, "question rejected", "flags", pre.Flags)
		r.outcome = session.OutcomeRejectedInput
		r.answer = pre.Refusal
		r.machine.to(StatePersisting, string(session.OutcomeRejectedInput))
		return r.persist(ctx)
	}
	r.question = pre.Question

	r.loadScratch(ctx)
	r.machine.to(StateResearch, "")
	return r.drive(ctx)
}

func (r *run) drive(ctx context.Context) (*Result, error) {
	for {
		draft, err := r.research(ctx)
		if err != nil {
			return r.stopped(ctx, err)
		}
		r.draft = draft
		r.machine.to(StateReviewing, "draft ready")

		accepted, feedback, err := r.review(ctx, draft)
		if err != nil {
			return r.stopped(ctx, err)
		}
		if accepted {
			break
		}
		if r.revisions >= r.o.opts.RevisionCap {
			return r.abort(ctx, &stop{
				reason:  "revision cap reached",
				warning: fmt.Sprintf("Revision cap (%d) reached; this is the last draft and may be incomplete.", r.o.opts.RevisionCap),
			})
		}
		r.revisions++
		r.feedback = append(r.feedback, feedback)
		r.machine.to(StateResearch, "revise")
	}

	r.machine.to(StateGuardrailCheck, "accepted")
	post := r.o.guard.Postflight(r.draft)
	r.applyPostflight(post)
	if post.Decision == guardrail.DecisionBlock {
		r.outcome = session.OutcomeGuardrailBlocked
		r.machine.to(StateAborted, "guardrail blocked")
		return r.persistBestEffort(ctx)
	}

	r.outcome = session.OutcomeDone
	r.machine.to(StatePersisting, string(post.Decision))
	return r.persist(ctx)
}

// stopped turns a stage error into a controlled abort, or returns it as is
// when the run was cancelled.
func (r *run) stopped(ctx context.Context, err error) (*Result, error) {
	var s *stop
	if errors.As(err, &s) {
		return r.abort(ctx, s)
	}
	return nil, err
}

func (r *run) abort(ctx context.Context, s *stop) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.err != nil {
		r.logger.ErrorContext(ctx, "run aborted", "reason", s.reason, "error", s.err)
	} else {
		r.logger.WarnContext(ctx, "run aborted", "reason", s.reason)
	}

	r.outcome = session.OutcomeIncomplete
	r.warning = s.warning

	post := r.o.guard.Postflight(r.partialAnswer())
	r.applyPostflight(post)
	if post.Decision == guardrail.DecisionBlock {
		r.outcome = session.OutcomeGuardrailBlocked
	}

	r.machine.to(StateAborted, s.reason)
	return r.persistBestEffort(ctx)
}

// partialAnswer is the best text available when a run stops early: the last
// draft, else the researcher's last thought, else a summary of what the
// tools returned.
func (r *run) partialAnswer() string {
	if strings.TrimSpace(r.draft) != "" {
		return r.draft
	}
	if r.lastThought != "" {
		return r.lastThought
	}

	var b strings.Builder
	for _, obs := range r.observations {
		if obs.Failed() {
			continue
		}
		if b.Len() == 0 {
			b.WriteString("Partial findings:\n")
		}
		fmt.Fprintf(&b, "- %s: %v\n", obs.Tool, obs.Output)
	}
	if b.Len() == 0 {
		return "No answer could be produced for this question."
	}
	return strings.TrimRight(b.String(), "\n")
}

func (r *run) applyPostflight(post guardrail.PostflightResult) {
	r.answer = post.Text
	r.guardrail.Postflight = string(post.Decision)
	r.flags = append(r.flags, post.Flags...)
}

func (r *run) loadScratch(ctx context.Context) {
	r.scratch = map[string]string{}
	entries, err := r.o.scratch.All(ctx, r.sessionID)
	if err != nil {
		r.logger.WarnContext(ctx, "scratch read failed; continuing without notes", "error", err)
		return
	}
	r.scratch = memory.Values(entries)
}

// persist is the single checkpoint of a successful or rejected run. A store
// failure aborts the run and is returned.
func (r *run) persist(ctx context.Context) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := r.save(ctx); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		r.machine.to(StateAborted, "checkpoint failed")
		return nil, err
	}
	r.machine.to(StateDone, "")
	return r.result(true), nil
}

// persistBestEffort saves the turn of an aborted run. A store failure is
// logged and reported as a warning.
func (r *run) persistBestEffort(ctx context.Context) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := r.save(ctx); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		r.logger.ErrorContext(ctx, "failed to save aborted turn", "error", err)
		r.warning = strings.TrimSpace(r.warning + " This turn could not be saved.")
		return r.result(false), nil
	}
	return r.result(true), nil
}

func (r *run) save(ctx context.Context) error {
	ctx, span := r.o.tracer.Start(ctx, "session.save", trace.WithAttributes(
		attribute.String("session.id", r.sessionID),
		attribute.String("turn.outcome", string(r.outcome)),
	))
	r.session.Append(r.turn())
	err := r.o.store.Save(ctx, r.session)
	observability.EndSpan(span, err)
	return err
}

func (r *run) turn() session.Turn {
	guard := r.guardrail
	guard.Flags = r.flags

	var delta map[string]string
	if len(r.scratchDelta) > 0 {
		delta = r.scratchDelta
	}
	return session.Turn{
		ID:           r.turnID,
		Question:     r.question,
		Answer:       r.answer,
		Outcome:      r.outcome,
		Warning:      r.warning,
		ToolCalls:    r.toolCalls,
		Verdicts:     r.verdicts,
		Guardrail:    guard,
		ScratchDelta: delta,
		Timestamp:    time.Now().UTC(),
	}
}

func (r *run) result(persisted bool) *Result {
	res := &Result{
		SessionID:   r.sessionID,
		TurnID:      r.turnID,
		Answer:      r.answer,
		Outcome:     r.outcome,
		Warning:     r.warning,
		ToolCalls:   r.toolCalls,
		Verdicts:    r.verdicts,
		Flags:       r.flags,
		Transitions: r.machine.transitions,
		Persisted:   persisted,
	}
	if res.ToolCalls == nil {
		res.ToolCalls = []session.ToolCall{}
	}
	if res.Verdicts == nil {
		res.Verdicts = []session.Verdict{}
	}
	if res.Flags == nil {
		res.Flags = []string{}
	}
	return res
}

package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/scttfrdmn/agenkit/research-go/agenkit"
	"github.com/scttfrdmn/agenkit/research-go/middleware"
	"github.com/scttfrdmn/agenkit/research-go/observability"
	"github.com/scttfrdmn/agenkit/research-go/session"
)

// research runs one research pass: up to IterationCap researcher calls, each
// either producing the draft or a tool call whose observation feeds the next
// call. Errors are *stop for controlled ends or the context error.
func (r *run) research(ctx context.Context) (string, error) {
	for i := 1; i <= r.o.opts.IterationCap; i++ {
		action, err := r.invokeAgent(ctx, r.request(agenkit.RoleResearcher, i))
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			return "", &stop{
				reason:  "researcher failed",
				warning: "The research agent could not be reached; the answer is partial.",
				err:     err,
			}
		}
		r.remember(ctx, agenkit.NotesOf(action))

		switch a := concrete(action).(type) {
		case agenkit.FinalAnswer:
			return a.Text, nil
		case agenkit.ToolInvocation:
			if a.Thought != "" {
				r.lastThought = a.Thought
			}
			for _, inv := range append([]agenkit.ToolInvocation{a}, a.Then...) {
				if err := r.callTool(ctx, inv); err != nil {
					return "", err
				}
				r.machine.to(StateResearch, "tool:"+inv.Tool)
			}
		default:
			r.logger.WarnContext(ctx, "researcher returned an unexpected action", "action", agenkit.ActionKind(action))
		}
	}

	return "", &stop{
		reason:  "iteration cap reached",
		warning: fmt.Sprintf("Iteration cap (%d) reached without a final answer; the answer is partial.", r.o.opts.IterationCap),
	}
}

// invokeAgent calls the gateway with the per-call timeout, retrying up to
// AgentRetries times.
func (r *run) invokeAgent(ctx context.Context, req agenkit.Request) (agenkit.Action, error) {
	cfg := middleware.RetryConfig{
		MaxAttempts:    1 + r.o.opts.AgentRetries,
		InitialBackoff: r.o.opts.RetryBackoff,
	}
	action, attempts, err := middleware.Retry(ctx, cfg, func(ctx context.Context) (agenkit.Action, error) {
		return middleware.WithTimeout(ctx, string(req.Role), r.o.opts.AgentTimeout, func(ctx context.Context) (agenkit.Action, error) {
			action, err := r.o.gateway.Invoke(ctx, req)
			if err == nil && concrete(action) == nil {
				err = errors.New("gateway returned no action")
			}
			return action, err
		})
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &agenkit.AgentInvocationError{Role: req.Role, Attempts: attempts, Err: err}
	}
	return action, nil
}

// callTool resolves and runs a tool invocation and records the outcome as a
// tool call and an observation. Tool failures never end the pass; only
// cancellation is returned.
func (r *run) callTool(ctx context.Context, inv agenkit.ToolInvocation) error {
	ctx, span := r.o.tracer.Start(ctx, "tool.invoke", trace.WithAttributes(attribute.String("tool.name", inv.Tool)))
	start := time.Now()
	call := session.ToolCall{Tool: inv.Tool, Input: inv.Arguments, Timestamp: start.UTC()}

	var output interface{}
	tool, err := r.o.tools.Resolve(inv.Tool, inv.Arguments)
	if err == nil {
		cfg := middleware.RetryConfig{
			MaxAttempts:    1 + r.o.opts.ToolRetries,
			InitialBackoff: r.o.opts.RetryBackoff,
			ShouldRetry:    agenkit.IsTransient,
		}
		output, call.Attempts, err = middleware.Retry(ctx, cfg, func(ctx context.Context) (interface{}, error) {
			return middleware.WithTimeout(ctx, "tool "+inv.Tool, r.o.opts.ToolTimeout, func(ctx context.Context) (interface{}, error) {
				return tool.Invoke(ctx, inv.Arguments)
			})
		})
	}
	call.Duration = time.Since(start)

	if ctxErr := ctx.Err(); err != nil && ctxErr != nil {
		observability.EndSpan(span, ctxErr)
		return ctxErr
	}

	obs := agenkit.Observation{Tool: inv.Tool, Input: inv.Arguments}
	status := "ok"
	if err != nil {
		status = "error"
		call.Error = err.Error()
		obs.Error = call.Error
		r.logger.WarnContext(ctx, "tool call failed", "tool", inv.Tool, "attempts", call.Attempts, "error", err)
	} else {
		call.Output = output
		obs.Output = output
	}
	r.toolCalls = append(r.toolCalls, call)
	r.observations = append(r.observations, obs)

	span.SetAttributes(attribute.Int("tool.attempts", call.Attempts), attribute.String("tool.status", status))
	r.o.instruments.RecordToolCall(ctx, inv.Tool, status, call.Attempts)
	observability.EndSpan(span, err)
	return nil
}

// remember writes agent notes to scratch memory as soon as they arrive. A
// failed write is logged and the note is still visible for the rest of the run.
func (r *run) remember(ctx context.Context, notes map[string]string) {
	if len(notes) == 0 {
		return
	}
	keys := make([]string, 0, len(notes))
	for k := range notes {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		if err := r.o.scratch.Set(ctx, r.sessionID, k, notes[k]); err != nil {
			r.logger.WarnContext(ctx, "scratch write failed", "key", k, "error", err)
		}
		r.scratch[k] = notes[k]
		r.scratchDelta[k] = notes[k]
	}
}

// request builds the gateway request for role from the run so far.
func (r *run) request(role agenkit.AgentRole, iteration int) agenkit.Request {
	req := agenkit.Request{
		Role:         role,
		SessionID:    r.sessionID,
		Question:     r.question,
		Observations: append([]agenkit.Observation(nil), r.observations...),
		Iteration:    iteration,
	}
	if role != agenkit.RoleResearcher {
		return req
	}

	req.History = r.history()
	req.Feedback = append([]string(nil), r.feedback...)
	req.Tools = r.o.tools.Describe()
	req.Scratch = make(map[string]string, len(r.scratch))
	for k, v := range r.scratch {
		req.Scratch[k] = v
	}
	return req
}

// history returns the answered turns among the last HistoryWindow turns.
func (r *run) history() []agenkit.Exchange {
	var out []agenkit.Exchange
	for _, t := range r.session.Recent(r.o.opts.HistoryWindow) {
		if t.Outcome == session.OutcomeRejectedInput {
			continue
		}
		out = append(out, agenkit.Exchange{Question: t.Question, Answer: t.Answer})
	}
	return out
}

// concrete dereferences pointer actions so callers can switch on values. A
// nil action, including a typed nil pointer, yields nil.
func concrete(a agenkit.Action) agenkit.Action {
	switch v := a.(type) {
	case *agenkit.ToolInvocation:
		if v == nil {
			return nil
		}
		return *v
	case *agenkit.FinalAnswer:
		if v == nil {
			return nil
		}
		return *v
	case *agenkit.ReviseRequest:
		if v == nil {
			return nil
		}
		return *v
	case *agenkit.Accept:
		if v == nil {
			return nil
		}
		return *v
	default:
		return a
	}
}

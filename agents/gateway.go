// Package agents implements the agent gateway: it renders researcher and
// reviewer prompts, calls a model, and parses the reply into an action.
package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/scttfrdmn/agenkit/research-go/agenkit"
	"github.com/scttfrdmn/agenkit/research-go/llm"
)

const defaultTemperature = 0.2

// LLMGateway serves both agent roles from a single model.
type LLMGateway struct {
	model       llm.LLM
	temperature float64
	maxTokens   int
	logger      *slog.Logger
}

// GatewayOption configures an LLMGateway.
type GatewayOption func(*LLMGateway)

// WithTemperature overrides the sampling temperature.
func WithTemperature(t float64) GatewayOption {
	return func(g *LLMGateway) { g.temperature = t }
}

// WithMaxTokens caps the length of each reply.
func WithMaxTokens(n int) GatewayOption {
	return func(g *LLMGateway) { g.maxTokens = n }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) GatewayOption {
	return func(g *LLMGateway) { g.logger = logger }
}

// NewLLMGateway creates a gateway backed by model.
func NewLLMGateway(model llm.LLM, opts ...GatewayOption) *LLMGateway {
	g := &LLMGateway{
		model:       model,
		temperature: defaultTemperature,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Invoke renders the prompt for req.Role, calls the model and parses the reply.
func (g *LLMGateway) Invoke(ctx context.Context, req agenkit.Request) (agenkit.Action, error) {
	var messages []*agenkit.Message
	switch req.Role {
	case agenkit.RoleResearcher:
		messages = ResearcherMessages(req)
	case agenkit.RoleReviewer:
		messages = ReviewerMessages(req)
	default:
		return nil, fmt.Errorf("unknown agent role %q", req.Role)
	}

	callOpts := []llm.CallOption{llm.WithTemperature(g.temperature)}
	if g.maxTokens > 0 {
		callOpts = append(callOpts, llm.WithMaxTokens(g.maxTokens))
	}

	reply, err := g.model.Complete(ctx, messages, callOpts...)
	if err != nil {
		return nil, err
	}

	var action agenkit.Action
	if req.Role == agenkit.RoleReviewer {
		action = ParseReviewer(reply.Content)
	} else {
		action = ParseResearcher(reply.Content)
	}

	g.logger.DebugContext(ctx, "agent replied",
		"role", string(req.Role),
		"session_id", req.SessionID,
		"model", g.model.Model(),
		"action", agenkit.ActionKind(action),
	)
	return action, nil
}

// ResearcherMessages builds the researcher conversation: system prompt, the
// prior exchanges of the session, then one message describing the task.
func ResearcherMessages(req agenkit.Request) []*agenkit.Message {
	messages := []*agenkit.Message{agenkit.NewMessage(agenkit.RoleSystem, ResearcherPrompt)}
	for _, ex := range req.History {
		messages = append(messages,
			agenkit.NewMessage(agenkit.RoleUser, ex.Question),
			agenkit.NewMessage(agenkit.RoleAgent, ex.Answer),
		)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Task: %s\n", req.Question)
	if req.Tools != "" {
		fmt.Fprintf(&b, "\n%s\n", strings.TrimRight(req.Tools, "\n"))
	}
	if len(req.Scratch) > 0 {
		b.WriteString("\nNotes from earlier in this session:\n")
		keys := make([]string, 0, len(req.Scratch))
		for k := range req.Scratch {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, "- %s: %s\n", k, req.Scratch[k])
		}
	}
	if len(req.Observations) > 0 {
		b.WriteString("\nObservations so far:\n")
		for _, obs := range req.Observations {
			fmt.Fprintf(&b, "- %s\n", FormatObservation(obs))
		}
	}
	if len(req.Feedback) > 0 {
		b.WriteString("\nReviewer feedback to address:\n")
		for _, fb := range req.Feedback {
			fmt.Fprintf(&b, "- %s\n", fb)
		}
	}
	fmt.Fprintf(&b, "\nStep %d. Call a tool or give your final answer.", req.Iteration)

	return append(messages, agenkit.NewMessage(agenkit.RoleUser, b.String()))
}

// ReviewerMessages builds the reviewer conversation for req.Draft.
func ReviewerMessages(req agenkit.Request) []*agenkit.Message {
	checklist := "- No additional notes."
	if notes := Checklist(req.Draft); len(notes) > 0 {
		checklist = "- " + strings.Join(notes, "\n- ")
	}
	prompt := fmt.Sprintf("QUESTION:\n%s\n\nDRAFT:\n%s\n\nCHECKLIST:\n%s\n\n"+
		"Ask for a revision if any checklist item is unmet or a claim is unsupported.",
		req.Question, req.Draft, checklist)

	return []*agenkit.Message{
		agenkit.NewMessage(agenkit.RoleSystem, ReviewerPrompt),
		agenkit.NewMessage(agenkit.RoleUser, prompt),
	}
}

// FormatObservation renders an observation as a single line.
func FormatObservation(obs agenkit.Observation) string {
	args := "{}"
	if data, err := json.Marshal(obs.Input); err == nil && obs.Input != nil {
		args = string(data)
	}
	if obs.Failed() {
		return fmt.Sprintf("%s(%s) failed: %s", obs.Tool, args, obs.Error)
	}
	out := fmt.Sprint(obs.Output)
	if data, err := json.Marshal(obs.Output); err == nil {
		out = string(data)
	}
	return fmt.Sprintf("%s(%s) -> %s", obs.Tool, args, out)
}

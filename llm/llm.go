// Package llm provides the model adapters behind the agent gateway.
//
// Every provider implements the same small LLM interface so the gateway
// never depends on a provider SDK directly.
package llm

import (
	"context"

	"github.com/scttfrdmn/agenkit/research-go/agenkit"
)

// LLM is the minimal interface for agent-LLM interaction.
//
// Example:
//
//	model := NewOpenAILLM(OpenAIConfig{APIKey: "sk-...", Model: "gpt-4o-mini"})
//	messages := []*agenkit.Message{
//	    agenkit.NewMessage(agenkit.RoleSystem, "You are a research analyst."),
//	    agenkit.NewMessage(agenkit.RoleUser, "Summarize ACME's last quarter."),
//	}
//	response, err := model.Complete(ctx, messages, WithTemperature(0.2))
type LLM interface {
	// Complete generates a single completion. The response has role "agent"
	// and provider details (model, usage, finish reason) in its metadata.
	Complete(ctx context.Context, messages []*agenkit.Message, opts ...CallOption) (*agenkit.Message, error)

	// Model returns the model identifier for this LLM instance.
	Model() string
}

// CallOptions holds provider-specific options for LLM calls.
type CallOptions struct {
	Temperature *float64
	MaxTokens   *int
	TopP        *float64

	// Provider-specific options
	Extra map[string]interface{}
}

// CallOption is a functional option for configuring LLM calls.
type CallOption func(*CallOptions)

// WithTemperature sets the sampling temperature (typically 0.0-2.0).
func WithTemperature(temperature float64) CallOption {
	return func(opts *CallOptions) {
		opts.Temperature = &temperature
	}
}

// WithMaxTokens sets the maximum number of tokens to generate.
func WithMaxTokens(maxTokens int) CallOption {
	return func(opts *CallOptions) {
		opts.MaxTokens = &maxTokens
	}
}

// WithTopP sets the nucleus sampling parameter.
func WithTopP(topP float64) CallOption {
	return func(opts *CallOptions) {
		opts.TopP = &topP
	}
}

// WithExtra adds a provider-specific option.
func WithExtra(key string, value interface{}) CallOption {
	return func(opts *CallOptions) {
		if opts.Extra == nil {
			opts.Extra = make(map[string]interface{})
		}
		opts.Extra[key] = value
	}
}

// BuildCallOptions creates CallOptions from functional options.
func BuildCallOptions(opts ...CallOption) *CallOptions {
	options := &CallOptions{
		Extra: make(map[string]interface{}),
	}
	for _, opt := range opts {
		opt(options)
	}
	return options
}

// splitSystem separates system messages from the conversation, for providers
// that take the system prompt as a separate field.
func splitSystem(messages []*agenkit.Message) ([]string, []*agenkit.Message) {
	var system []string
	rest := make([]*agenkit.Message, 0, len(messages))
	for _, msg := range messages {
		if msg.Role == agenkit.RoleSystem {
			system = append(system, msg.Content)
			continue
		}
		rest = append(rest, msg)
	}
	return system, rest
}

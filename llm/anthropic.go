package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/scttfrdmn/agenkit/research-go/agenkit"
)

const defaultAnthropicMaxTokens = 4096

// AnthropicConfig configures the Anthropic adapter.
type AnthropicConfig struct {
	APIKey string
	Model  string
}

// AnthropicLLM is an adapter for Anthropic's Claude models.
type AnthropicLLM struct {
	client *anthropic.Client
	model  string
}

// NewAnthropicLLM creates a new Anthropic LLM adapter. An empty API key falls
// back to the SDK's ANTHROPIC_API_KEY lookup.
func NewAnthropicLLM(cfg AnthropicConfig) *AnthropicLLM {
	var clientOpts []option.RequestOption
	if cfg.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(cfg.APIKey))
	}
	client := anthropic.NewClient(clientOpts...)

	model := cfg.Model
	if model == "" {
		model = string(anthropic.ModelClaude3_5Sonnet20241022)
	}
	return &AnthropicLLM{
		client: &client,
		model:  model,
	}
}

// Model returns the model identifier.
func (a *AnthropicLLM) Model() string {
	return a.model
}

// Complete generates a completion from Claude.
func (a *AnthropicLLM) Complete(ctx context.Context, messages []*agenkit.Message, opts ...CallOption) (*agenkit.Message, error) {
	options := BuildCallOptions(opts...)
	system, conversation := splitSystem(messages)

	maxTokens := int64(defaultAnthropicMaxTokens)
	if options.MaxTokens != nil {
		maxTokens = int64(*options.MaxTokens)
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(a.model),
		MaxTokens: maxTokens,
		Messages:  a.convertMessages(conversation),
	}
	if len(system) > 0 {
		params.System = []anthropic.TextBlockParam{{Text: strings.Join(system, "\n\n")}}
	}
	if options.Temperature != nil {
		params.Temperature = anthropic.Float(*options.Temperature)
	}
	if options.TopP != nil {
		params.TopP = anthropic.Float(*options.TopP)
	}

	resp, err := a.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("anthropic api error: %w", err)
	}

	var content strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			content.WriteString(block.AsText().Text)
		}
	}

	response := agenkit.NewMessage(agenkit.RoleAgent, content.String())
	response.Metadata["model"] = string(resp.Model)
	response.Metadata["usage"] = map[string]interface{}{
		"prompt_tokens":     resp.Usage.InputTokens,
		"completion_tokens": resp.Usage.OutputTokens,
		"total_tokens":      resp.Usage.InputTokens + resp.Usage.OutputTokens,
	}
	response.Metadata["stop_reason"] = string(resp.StopReason)
	return response, nil
}

// convertMessages maps agent messages to assistant turns and everything else
// to user turns.
func (a *AnthropicLLM) convertMessages(messages []*agenkit.Message) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(messages))
	for _, msg := range messages {
		block := anthropic.NewTextBlock(msg.Content)
		if msg.Role == agenkit.RoleAgent {
			out = append(out, anthropic.NewAssistantMessage(block))
		} else {
			out = append(out, anthropic.NewUserMessage(block))
		}
	}
	return out
}

package llm

import (
	"context"
	"fmt"
)

// Supported providers.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderBedrock   = "bedrock"
	ProviderGemini    = "gemini"
)

// Config selects and configures a provider.
type Config struct {
	Provider string
	Model    string
	APIKey   string

	// BaseURL applies to the OpenAI provider only.
	BaseURL string

	// Region and Profile apply to the Bedrock provider only.
	Region  string
	Profile string
}

// New builds the adapter for cfg.Provider.
func New(ctx context.Context, cfg Config) (LLM, error) {
	switch cfg.Provider {
	case ProviderOpenAI:
		return NewOpenAILLM(OpenAIConfig{APIKey: cfg.APIKey, Model: cfg.Model, BaseURL: cfg.BaseURL}), nil
	case ProviderAnthropic:
		return NewAnthropicLLM(AnthropicConfig{APIKey: cfg.APIKey, Model: cfg.Model}), nil
	case ProviderBedrock:
		return NewBedrockLLM(ctx, BedrockConfig{ModelID: cfg.Model, Region: cfg.Region, Profile: cfg.Profile})
	case ProviderGemini:
		return NewGeminiLLM(ctx, GeminiConfig{APIKey: cfg.APIKey, Model: cfg.Model})
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}

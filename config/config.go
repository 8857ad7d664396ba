// Package config loads the service configuration from defaults, an optional
// config file and the environment.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable, e.g. RESEARCH_ITERATION_CAP.
const EnvPrefix = "RESEARCH"

// Provider names.
const (
	ProviderOffline   = "offline"
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderBedrock   = "bedrock"
	ProviderGemini    = "gemini"
)

// Backend names for the session and scratch stores.
const (
	BackendSQLite = "sqlite"
	BackendFile   = "file"
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Config is the immutable service configuration. Load returns it by value and
// components receive the fields they need at construction time.
type Config struct {
	Provider        string  `mapstructure:"provider"`
	Model           string  `mapstructure:"model"`
	OpenAIAPIKey    string  `mapstructure:"openai_api_key"`
	OpenAIBaseURL   string  `mapstructure:"openai_base_url"`
	AnthropicAPIKey string  `mapstructure:"anthropic_api_key"`
	GeminiAPIKey    string  `mapstructure:"gemini_api_key"`
	SearchAPIKey    string  `mapstructure:"search_api_key"`
	AWSRegion       string  `mapstructure:"aws_region"`
	AWSProfile      string  `mapstructure:"aws_profile"`
	DevNoLLM        bool    `mapstructure:"dev_no_llm"`
	Temperature     float64 `mapstructure:"temperature"`

	IterationCap  int           `mapstructure:"iteration_cap"`
	RevisionCap   int           `mapstructure:"revision_cap"`
	AgentTimeout  time.Duration `mapstructure:"agent_timeout"`
	ToolTimeout   time.Duration `mapstructure:"tool_timeout"`
	ToolRetries   int           `mapstructure:"tool_retries"`
	AgentRetries  int           `mapstructure:"agent_retries"`
	RetryBackoff  time.Duration `mapstructure:"retry_backoff"`
	HistoryWindow int           `mapstructure:"history_window"`
	BusyPolicy    string        `mapstructure:"busy_policy"`

	CircuitFailureThreshold int           `mapstructure:"circuit_failure_threshold"`
	CircuitRecoveryTimeout  time.Duration `mapstructure:"circuit_recovery_timeout"`

	Store        string `mapstructure:"store"`
	CheckpointDB string `mapstructure:"checkpoint_db"`
	PersistDir   string `mapstructure:"persist_dir"`
	RedisURL     string `mapstructure:"redis_url"`
	Scratch      string `mapstructure:"scratch"`

	GuardrailPolicy string `mapstructure:"guardrail_policy"`

	ListenAddr      string        `mapstructure:"listen_addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`

	LogLevel     string `mapstructure:"log_level"`
	LogFormat    string `mapstructure:"log_format"`
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
	TraceStdout  bool   `mapstructure:"trace_stdout"`
}

var defaults = map[string]interface{}{
	"provider":                  "",
	"model":                     "",
	"openai_api_key":            "",
	"openai_base_url":           "",
	"anthropic_api_key":         "",
	"gemini_api_key":            "",
	"search_api_key":            "",
	"aws_region":                "us-east-1",
	"aws_profile":               "",
	"dev_no_llm":                false,
	"temperature":               0.2,
	"iteration_cap":             5,
	"revision_cap":              2,
	"agent_timeout":             "60s",
	"tool_timeout":              "15s",
	"tool_retries":              2,
	"agent_retries":             1,
	"retry_backoff":             "200ms",
	"history_window":            3,
	"busy_policy":               "queue",
	"circuit_failure_threshold": 5,
	"circuit_recovery_timeout":  "30s",
	"store":                     BackendSQLite,
	"checkpoint_db":             "research.db",
	"persist_dir":               "sessions",
	"redis_url":                 "redis://localhost:6379/0",
	"scratch":                   BackendSQLite,
	"guardrail_policy":          "",
	"listen_addr":               ":8080",
	"shutdown_timeout":          "10s",
	"log_level":                 "info",
	"log_format":                "text",
	"otlp_endpoint":             "",
	"trace_stdout":              false,
}

// Environment variables honoured in addition to the RESEARCH_ names.
var envAliases = map[string][]string{
	"openai_api_key":    {"OPENAI_API_KEY"},
	"anthropic_api_key": {"ANTHROPIC_API_KEY"},
	"gemini_api_key":    {"GEMINI_API_KEY", "GOOGLE_API_KEY"},
	"search_api_key":    {"TAVILY_API_KEY"},
	"aws_region":        {"AWS_REGION"},
	"aws_profile":       {"AWS_PROFILE"},
	"dev_no_llm":        {"DEV_NO_LLM"},
	"otlp_endpoint":     {"OTEL_EXPORTER_OTLP_ENDPOINT"},
}

// Load reads the configuration. A nil v uses a fresh viper instance. When
// configFile is set it must exist; its format follows the file extension.
func Load(v *viper.Viper, configFile string) (Config, error) {
	if v == nil {
		v = viper.New()
	}
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	for key, aliases := range envAliases {
		names := append([]string{EnvPrefix + "_" + strings.ToUpper(key)}, aliases...)
		if err := v.BindEnv(append([]string{key}, names...)...); err != nil {
			return Config{}, fmt.Errorf("bind env for %s: %w", key, err)
		}
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	cfg.Provider = strings.ToLower(strings.TrimSpace(cfg.Provider))
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports every invalid setting.
func (c Config) Validate() error {
	var errs []error
	if c.IterationCap <= 0 {
		errs = append(errs, errors.New("iteration_cap must be positive"))
	}
	if c.RevisionCap < 0 {
		errs = append(errs, errors.New("revision_cap must not be negative"))
	}
	if c.ToolRetries < 0 || c.AgentRetries < 0 {
		errs = append(errs, errors.New("tool_retries and agent_retries must not be negative"))
	}
	if c.AgentTimeout < 0 || c.ToolTimeout < 0 {
		errs = append(errs, errors.New("timeouts must not be negative"))
	}
	if c.HistoryWindow < 0 {
		errs = append(errs, errors.New("history_window must not be negative"))
	}
	if c.CircuitFailureThreshold <= 0 || c.CircuitRecoveryTimeout <= 0 {
		errs = append(errs, errors.New("circuit_failure_threshold and circuit_recovery_timeout must be positive"))
	}
	if !oneOf(c.Provider, "", ProviderOffline, ProviderOpenAI, ProviderAnthropic, ProviderBedrock, ProviderGemini) {
		errs = append(errs, fmt.Errorf("unknown provider %q", c.Provider))
	}
	if !oneOf(c.BusyPolicy, "queue", "fail_fast") {
		errs = append(errs, fmt.Errorf("unknown busy_policy %q", c.BusyPolicy))
	}
	if !oneOf(c.Store, BackendSQLite, BackendFile, BackendMemory, BackendRedis) {
		errs = append(errs, fmt.Errorf("unknown store %q", c.Store))
	}
	if !oneOf(c.Scratch, BackendSQLite, BackendMemory, BackendRedis) {
		errs = append(errs, fmt.Errorf("unknown scratch %q", c.Scratch))
	}
	if !oneOf(strings.ToLower(c.LogFormat), "text", "json") {
		errs = append(errs, fmt.Errorf("unknown log_format %q", c.LogFormat))
	}
	return errors.Join(errs...)
}

// EffectiveProvider resolves which model provider to use. dev_no_llm forces
// offline mode; with no provider set, OpenAI is used when its key is present
// and offline mode otherwise.
func (c Config) EffectiveProvider() string {
	if c.DevNoLLM {
		return ProviderOffline
	}
	if c.Provider != "" {
		return c.Provider
	}
	if c.OpenAIAPIKey != "" {
		return ProviderOpenAI
	}
	return ProviderOffline
}

// APIKey returns the credential for provider.
func (c Config) APIKey(provider string) string {
	switch provider {
	case ProviderOpenAI:
		return c.OpenAIAPIKey
	case ProviderAnthropic:
		return c.AnthropicAPIKey
	case ProviderGemini:
		return c.GeminiAPIKey
	default:
		return ""
	}
}

func oneOf(s string, options ...string) bool {
	for _, o := range options {
		if s == o {
			return true
		}
	}
	return false
}

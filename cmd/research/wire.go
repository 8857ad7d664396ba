package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/scttfrdmn/agenkit/research-go/agenkit"
	"github.com/scttfrdmn/agenkit/research-go/agents"
	"github.com/scttfrdmn/agenkit/research-go/config"
	"github.com/scttfrdmn/agenkit/research-go/guardrail"
	"github.com/scttfrdmn/agenkit/research-go/llm"
	"github.com/scttfrdmn/agenkit/research-go/memory"
	"github.com/scttfrdmn/agenkit/research-go/middleware"
	"github.com/scttfrdmn/agenkit/research-go/observability"
	"github.com/scttfrdmn/agenkit/research-go/orchestrator"
	"github.com/scttfrdmn/agenkit/research-go/session"
	"github.com/scttfrdmn/agenkit/research-go/tools"
)

const serviceName = "research"

// app holds the wired dependencies of one process.
type app struct {
	cfg          config.Config
	logger       *slog.Logger
	store        session.Store
	scratch      memory.Scratch
	orchestrator *orchestrator.Orchestrator
	metrics      http.Handler

	closers []func(context.Context) error
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i](ctx))
	}
	return errors.Join(errs...)
}

func (a *app) onClose(fn func(context.Context) error) {
	a.closers = append(a.closers, fn)
}

// wireApp builds every component from cfg. Logs go to logOut.
func wireApp(ctx context.Context, cfg config.Config, logOut io.Writer) (_ *app, err error) {
	a := &app{cfg: cfg}
	defer func() {
		if err != nil {
			_ = a.Close(ctx)
		}
	}()

	level, err := observability.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	if a.logger, err = observability.ConfigureLogging(logOut, level, cfg.LogFormat); err != nil {
		return nil, err
	}

	if cfg.OTLPEndpoint != "" || cfg.TraceStdout {
		tp, err := observability.InitTracing(ctx, serviceName, cfg.OTLPEndpoint, cfg.TraceStdout)
		if err != nil {
			return nil, err
		}
		a.onClose(tp.Shutdown)
	}

	registry := prometheus.NewRegistry()
	mp, err := observability.InitMetrics(ctx, serviceName, registry)
	if err != nil {
		return nil, err
	}
	a.onClose(mp.Shutdown)
	a.metrics = observability.MetricsHandler(registry)
	instruments, err := observability.NewInstruments(mp.Meter(observability.TracerName))
	if err != nil {
		return nil, err
	}

	conns, err := openBackends(a, cfg)
	if err != nil {
		return nil, err
	}
	if a.store, err = newStore(cfg, conns); err != nil {
		return nil, err
	}
	if a.scratch, err = newScratch(cfg, conns); err != nil {
		return nil, err
	}
	locker, err := newLocker(cfg, conns, a.logger)
	if err != nil {
		return nil, err
	}

	validator, err := newValidator(cfg)
	if err != nil {
		return nil, err
	}
	gateway, err := newGateway(ctx, a, cfg)
	if err != nil {
		return nil, err
	}

	a.orchestrator, err = orchestrator.New(orchestrator.Deps{
		Gateway:     gateway,
		Tools:       tools.NewDefaultRegistry(tools.WithSearchAPIKey(cfg.SearchAPIKey)),
		Store:       a.store,
		Guardrail:   validator,
		Scratch:     a.scratch,
		Locker:      locker,
		Logger:      a.logger,
		Tracer:      observability.Tracer(),
		Instruments: instruments,
	}, orchestratorOptions(cfg))
	if err != nil {
		return nil, err
	}

	a.logger.Debug("application wired",
		"provider", cfg.EffectiveProvider(),
		"store", cfg.Store,
		"scratch", cfg.Scratch,
		"busy_policy", cfg.BusyPolicy,
		"search_api_key_set", cfg.SearchAPIKey != "",
	)
	return a, nil
}

// backends are the shared connections stores are built on. Only those the
// config selects are opened.
type backends struct {
	db    *sql.DB
	redis *redis.Client
}

func openBackends(a *app, cfg config.Config) (backends, error) {
	var b backends
	if cfg.Store == config.BackendSQLite || cfg.Scratch == config.BackendSQLite {
		db, err := session.OpenSQLite(cfg.CheckpointDB)
		if err != nil {
			return b, err
		}
		a.onClose(func(context.Context) error { return db.Close() })
		b.db = db
	}
	if cfg.Store == config.BackendRedis || cfg.Scratch == config.BackendRedis {
		client, err := session.NewRedisClient(cfg.RedisURL)
		if err != nil {
			return b, err
		}
		a.onClose(func(context.Context) error { return client.Close() })
		b.redis = client
	}
	return b, nil
}

func newStore(cfg config.Config, b backends) (session.Store, error) {
	switch cfg.Store {
	case config.BackendSQLite:
		return session.NewSQLiteStore(b.db)
	case config.BackendFile:
		return session.NewFileStore(cfg.PersistDir)
	case config.BackendRedis:
		return session.NewRedisStore(b.redis, session.DefaultKeyPrefix), nil
	case config.BackendMemory:
		return session.NewInMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown store %q", cfg.Store)
	}
}

func newScratch(cfg config.Config, b backends) (memory.Scratch, error) {
	switch cfg.Scratch {
	case config.BackendSQLite:
		return memory.NewSQLiteScratch(b.db)
	case config.BackendRedis:
		return memory.NewRedisScratch(b.redis, session.DefaultKeyPrefix), nil
	case config.BackendMemory:
		return memory.NewInMemoryScratch(memory.DefaultMaxSessions)
	default:
		return nil, fmt.Errorf("unknown scratch %q", cfg.Scratch)
	}
}

// newLocker uses a Redis lock when sessions live in Redis, so replicas
// sharing the store also share the busy policy.
func newLocker(cfg config.Config, b backends, logger *slog.Logger) (session.Locker, error) {
	policy, err := session.ParseBusyPolicy(cfg.BusyPolicy)
	if err != nil {
		return nil, err
	}
	if cfg.Store == config.BackendRedis {
		return session.NewRedisLocker(b.redis, session.DefaultKeyPrefix, policy, lockTTL(cfg), session.WithLockLogger(logger)), nil
	}
	return session.NewLocalLocker(policy), nil
}

// lockTTL bounds how long a crashed holder can keep a session locked: the
// longest run the configured caps and timeouts allow.
func lockTTL(cfg config.Config) time.Duration {
	passes := time.Duration(cfg.RevisionCap + 1)
	research := time.Duration(cfg.IterationCap) *
		(time.Duration(cfg.AgentRetries+1)*cfg.AgentTimeout + time.Duration(cfg.ToolRetries+1)*cfg.ToolTimeout)
	review := time.Duration(cfg.AgentRetries+1) * cfg.AgentTimeout
	return passes*(research+review) + time.Minute
}

func newValidator(cfg config.Config) (*guardrail.Validator, error) {
	policy := guardrail.DefaultPolicy()
	if cfg.GuardrailPolicy != "" {
		loaded, err := guardrail.LoadPolicy(cfg.GuardrailPolicy)
		if err != nil {
			return nil, err
		}
		policy = loaded
	}
	return guardrail.New(policy)
}

func newGateway(ctx context.Context, a *app, cfg config.Config) (agenkit.Gateway, error) {
	provider := cfg.EffectiveProvider()
	if provider == config.ProviderOffline {
		a.logger.Info("no model provider configured; using the offline gateway")
		return agents.NewOfflineGateway(), nil
	}

	model, err := llm.New(ctx, llm.Config{
		Provider: provider,
		Model:    cfg.Model,
		APIKey:   cfg.APIKey(provider),
		BaseURL:  cfg.OpenAIBaseURL,
		Region:   cfg.AWSRegion,
		Profile:  cfg.AWSProfile,
	})
	if err != nil {
		return nil, err
	}
	if closer, ok := model.(io.Closer); ok {
		a.onClose(func(context.Context) error { return closer.Close() })
	}
	gateway := agents.NewLLMGateway(model,
		agents.WithTemperature(cfg.Temperature),
		agents.WithLogger(a.logger),
	)
	breaker := middleware.CircuitBreakerConfig{
		FailureThreshold: cfg.CircuitFailureThreshold,
		RecoveryTimeout:  cfg.CircuitRecoveryTimeout,
	}
	logger := a.logger.With("provider", provider, "model", model.Model())
	return middleware.NewCircuitBreakerGateway(gateway, breaker, func(from, to middleware.CircuitState) {
		logger.Warn("model provider circuit changed", "from", from, "to", to)
	}), nil
}

func orchestratorOptions(cfg config.Config) orchestrator.Options {
	return orchestrator.Options{
		IterationCap:  cfg.IterationCap,
		RevisionCap:   cfg.RevisionCap,
		AgentTimeout:  cfg.AgentTimeout,
		ToolTimeout:   cfg.ToolTimeout,
		ToolRetries:   cfg.ToolRetries,
		AgentRetries:  cfg.AgentRetries,
		RetryBackoff:  cfg.RetryBackoff,
		HistoryWindow: cfg.HistoryWindow,
	}
}

package observability

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
)

// InitMetrics installs a global meter provider whose readings are exposed
// through reg in Prometheus format.
func InitMetrics(ctx context.Context, serviceName string, reg prometheus.Registerer) (*sdkmetric.MeterProvider, error) {
	res, err := resource.New(ctx, resource.WithAttributes(semconv.ServiceName(serviceName)))
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	exporter, err := otelprom.New(otelprom.WithRegisterer(reg))
	if err != nil {
		return nil, fmt.Errorf("failed to create Prometheus exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(exporter),
	)
	otel.SetMeterProvider(provider)
	return provider, nil
}

// MetricsHandler serves the metrics gathered by g.
func MetricsHandler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// Instruments holds the service's metric instruments. A nil *Instruments is
// valid and records nothing.
type Instruments struct {
	runs          metric.Int64Counter
	runDuration   metric.Float64Histogram
	toolCalls     metric.Int64Counter
	agentCalls    metric.Int64Counter
	agentDuration metric.Float64Histogram
}

// NewInstruments creates the instruments on meter. A nil meter uses the
// global provider.
func NewInstruments(meter metric.Meter) (*Instruments, error) {
	if meter == nil {
		meter = otel.Meter(TracerName)
	}

	runs, err := meter.Int64Counter("research.runs",
		metric.WithDescription("Completed orchestration runs by outcome"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create run counter: %w", err)
	}

	runDuration, err := meter.Float64Histogram("research.run.duration",
		metric.WithDescription("Orchestration run latency"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create run histogram: %w", err)
	}

	toolCalls, err := meter.Int64Counter("research.tool_calls",
		metric.WithDescription("Tool invocations by tool and status"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create tool counter: %w", err)
	}

	agentCalls, err := meter.Int64Counter("research.agent_calls",
		metric.WithDescription("Agent gateway calls by role and status"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create agent counter: %w", err)
	}

	agentDuration, err := meter.Float64Histogram("research.agent_call.duration",
		metric.WithDescription("Agent gateway call latency"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create agent histogram: %w", err)
	}

	return &Instruments{
		runs:          runs,
		runDuration:   runDuration,
		toolCalls:     toolCalls,
		agentCalls:    agentCalls,
		agentDuration: agentDuration,
	}, nil
}

// RecordRun counts a finished run.
func (i *Instruments) RecordRun(ctx context.Context, outcome string, d time.Duration) {
	if i == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	i.runs.Add(ctx, 1, attrs)
	i.runDuration.Record(ctx, d.Seconds(), attrs)
}

// RecordToolCall counts a tool invocation, including all its retries.
func (i *Instruments) RecordToolCall(ctx context.Context, tool, status string, attempts int) {
	if i == nil {
		return
	}
	i.toolCalls.Add(ctx, 1, metric.WithAttributes(
		attribute.String("tool", tool),
		attribute.String("status", status),
		attribute.Int("attempts", attempts),
	))
}

// RecordAgentCall counts a single gateway call.
func (i *Instruments) RecordAgentCall(ctx context.Context, role, status string, d time.Duration) {
	if i == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("role", role),
		attribute.String("status", status),
	)
	i.agentCalls.Add(ctx, 1, attrs)
	i.agentDuration.Record(ctx, float64(d.Microseconds())/1000.0, attrs)
}

// Package observability wires logging, tracing and metrics for the research
// service.
package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/scttfrdmn/agenkit/research-go/agenkit"
)

// TracerName is the instrumentation scope used by the research service.
const TracerName = "github.com/scttfrdmn/agenkit/research-go"

// InitTracing installs a global tracer provider. Spans are exported over OTLP
// gRPC when otlpEndpoint is set and pretty-printed to stdout when
// consoleExport is true; with neither, spans are recorded but dropped.
func InitTracing(ctx context.Context, serviceName, otlpEndpoint string, consoleExport bool) (*sdktrace.TracerProvider, error) {
	res, err := resource.New(ctx, resource.WithAttributes(semconv.ServiceName(serviceName)))
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	opts := []sdktrace.TracerProviderOption{sdktrace.WithResource(res)}

	if otlpEndpoint != "" {
		exporter, err := otlptracegrpc.New(ctx,
			otlptracegrpc.WithEndpoint(otlpEndpoint),
			otlptracegrpc.WithInsecure(),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
		}
		opts = append(opts, sdktrace.WithBatcher(exporter))
	}

	if consoleExport {
		exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, fmt.Errorf("failed to create console exporter: %w", err)
		}
		opts = append(opts, sdktrace.WithBatcher(exporter))
	}

	tp := sdktrace.NewTracerProvider(opts...)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	return tp, nil
}

// Tracer returns the service tracer from the current global provider, so tests
// can swap in their own provider.
func Tracer() trace.Tracer {
	return otel.Tracer(TracerName)
}

// EndSpan records err on span, if any, and ends it.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// InstrumentedGateway wraps a gateway with an "agent.invoke" span and agent
// call metrics.
type InstrumentedGateway struct {
	gateway     agenkit.Gateway
	tracer      trace.Tracer
	instruments *Instruments
}

// InstrumentGateway wraps gateway. A nil tracer uses Tracer(); nil
// instruments disables metrics.
func InstrumentGateway(gateway agenkit.Gateway, tracer trace.Tracer, instruments *Instruments) *InstrumentedGateway {
	if tracer == nil {
		tracer = Tracer()
	}
	return &InstrumentedGateway{gateway: gateway, tracer: tracer, instruments: instruments}
}

// Invoke implements agenkit.Gateway.
func (g *InstrumentedGateway) Invoke(ctx context.Context, req agenkit.Request) (agenkit.Action, error) {
	ctx, span := g.tracer.Start(ctx, "agent.invoke", trace.WithSpanKind(trace.SpanKindClient))
	span.SetAttributes(
		attribute.String("agent.role", string(req.Role)),
		attribute.String("session.id", req.SessionID),
		attribute.Int("agent.iteration", req.Iteration),
	)

	start := time.Now()
	action, err := g.gateway.Invoke(ctx, req)

	status := "ok"
	if err != nil {
		status = "error"
	} else {
		span.SetAttributes(attribute.String("agent.action", agenkit.ActionKind(action)))
	}
	g.instruments.RecordAgentCall(ctx, string(req.Role), status, time.Since(start))
	EndSpan(span, err)
	return action, err
}

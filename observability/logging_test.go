package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestTraceContextHandlerAddsTraceContext(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	defer provider.Shutdown(context.Background())

	var buf bytes.Buffer
	logger := slog.New(NewTraceContextHandler(slog.NewTextHandler(&buf, nil)))

	ctx, span := provider.Tracer("test").Start(context.Background(), "test-span")
	logger.InfoContext(ctx, "inside span")
	span.End()

	output := buf.String()
	if !strings.Contains(output, "trace_id="+span.SpanContext().TraceID().String()) {
		t.Errorf("Output missing trace_id: %s", output)
	}
	if !strings.Contains(output, "span_id="+span.SpanContext().SpanID().String()) {
		t.Errorf("Output missing span_id: %s", output)
	}
}

func TestTraceContextHandlerWithoutSpan(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewTraceContextHandler(slog.NewTextHandler(&buf, nil)))

	logger.With("component", "test").WithGroup("g").Info("no span", "k", "v")

	output := buf.String()
	if strings.Contains(output, "trace_id") {
		t.Errorf("Unexpected trace_id without span: %s", output)
	}
	if !strings.Contains(output, "component=test") || !strings.Contains(output, "g.k=v") {
		t.Errorf("Attributes or group lost: %s", output)
	}
}

func TestConfigureLoggingJSON(t *testing.T) {
	previous := slog.Default()
	defer slog.SetDefault(previous)

	var buf bytes.Buffer
	logger, err := ConfigureLogging(&buf, slog.LevelWarn, FormatJSON)
	if err != nil {
		t.Fatalf("ConfigureLogging failed: %v", err)
	}

	logger.Info("dropped")
	logger.Warn("kept", "session_id", "s1")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("Expected 1 line, got %d: %q", len(lines), buf.String())
	}
	var entry map[string]interface{}
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("Output is not JSON: %v", err)
	}
	if entry["msg"] != "kept" || entry["session_id"] != "s1" {
		t.Errorf("Unexpected entry %v", entry)
	}
	if slog.Default() != logger {
		t.Error("Expected logger to be installed as default")
	}
}

func TestConfigureLoggingUnknownFormat(t *testing.T) {
	if _, err := ConfigureLogging(&bytes.Buffer{}, slog.LevelInfo, "xml"); err == nil {
		t.Error("Expected error for unknown format")
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"":      slog.LevelInfo,
		"debug": slog.LevelDebug,
		"WARN":  slog.LevelWarn,
		"error": slog.LevelError,
	}
	for in, want := range tests {
		got, err := ParseLevel(in)
		if err != nil {
			t.Errorf("ParseLevel(%q) failed: %v", in, err)
		}
		if got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}

	if _, err := ParseLevel("loud"); err == nil {
		t.Error("Expected error for invalid level")
	}
}

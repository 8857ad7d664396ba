package observability

import (
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/scttfrdmn/agenkit/research-go/agenkit"
)

// setupTestMetrics sets up a meter provider with an in-memory reader.
func setupTestMetrics(t *testing.T) (*Instruments, *metric.ManualReader) {
	reader := metric.NewManualReader()
	provider := metric.NewMeterProvider(metric.WithReader(reader))
	t.Cleanup(func() { provider.Shutdown(context.Background()) })

	instruments, err := NewInstruments(provider.Meter("test"))
	if err != nil {
		t.Fatalf("NewInstruments failed: %v", err)
	}
	return instruments, reader
}

func collect(t *testing.T, reader *metric.ManualReader) map[string]metricdata.Metrics {
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	out := map[string]metricdata.Metrics{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m
		}
	}
	return out
}

func sumByAttr(t *testing.T, m metricdata.Metrics, key string) map[string]int64 {
	sum, ok := m.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("Expected Sum[int64] for %s, got %T", m.Name, m.Data)
	}
	out := map[string]int64{}
	for _, dp := range sum.DataPoints {
		v, _ := dp.Attributes.Value(attribute.Key(key))
		out[v.AsString()] += dp.Value
	}
	return out
}

func TestInstrumentsRecordRunsAndTools(t *testing.T) {
	instruments, reader := setupTestMetrics(t)
	ctx := context.Background()

	instruments.RecordRun(ctx, "done", 2*time.Second)
	instruments.RecordRun(ctx, "done", time.Second)
	instruments.RecordRun(ctx, "incomplete", time.Second)
	instruments.RecordToolCall(ctx, "get_price", "ok", 1)
	instruments.RecordToolCall(ctx, "get_price", "error", 3)

	metrics := collect(t, reader)

	runs, ok := metrics["research.runs"]
	if !ok {
		t.Fatal("research.runs not found")
	}
	byOutcome := sumByAttr(t, runs, "outcome")
	if byOutcome["done"] != 2 || byOutcome["incomplete"] != 1 {
		t.Errorf("Unexpected run counts %v", byOutcome)
	}

	tools, ok := metrics["research.tool_calls"]
	if !ok {
		t.Fatal("research.tool_calls not found")
	}
	byStatus := sumByAttr(t, tools, "status")
	if byStatus["ok"] != 1 || byStatus["error"] != 1 {
		t.Errorf("Unexpected tool counts %v", byStatus)
	}

	hist, ok := metrics["research.run.duration"].Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatalf("Expected Histogram[float64], got %T", metrics["research.run.duration"].Data)
	}
	var count uint64
	for _, dp := range hist.DataPoints {
		count += dp.Count
	}
	if count != 3 {
		t.Errorf("Expected 3 duration samples, got %d", count)
	}
}

func TestInstrumentedGatewayRecordsAgentCalls(t *testing.T) {
	instruments, reader := setupTestMetrics(t)
	provider, _ := setupTestTracing(t)

	inner := agenkit.GatewayFunc(func(ctx context.Context, req agenkit.Request) (agenkit.Action, error) {
		return agenkit.Accept{}, nil
	})
	gw := InstrumentGateway(inner, provider.Tracer("test"), instruments)
	if _, err := gw.Invoke(context.Background(), agenkit.Request{Role: agenkit.RoleReviewer}); err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}

	calls, ok := collect(t, reader)["research.agent_calls"]
	if !ok {
		t.Fatal("research.agent_calls not found")
	}
	if got := sumByAttr(t, calls, "role")["reviewer"]; got != 1 {
		t.Errorf("Expected 1 reviewer call, got %d", got)
	}
}

func TestNilInstrumentsAreNoOps(t *testing.T) {
	var instruments *Instruments
	ctx := context.Background()
	instruments.RecordRun(ctx, "done", time.Second)
	instruments.RecordToolCall(ctx, "get_price", "ok", 1)
	instruments.RecordAgentCall(ctx, "researcher", "ok", time.Millisecond)
}

func TestInitMetricsServesPrometheus(t *testing.T) {
	reg := prometheus.NewRegistry()
	provider, err := InitMetrics(context.Background(), "research-test", reg)
	if err != nil {
		t.Fatalf("InitMetrics failed: %v", err)
	}
	defer provider.Shutdown(context.Background())

	instruments, err := NewInstruments(provider.Meter("test"))
	if err != nil {
		t.Fatalf("NewInstruments failed: %v", err)
	}
	instruments.RecordRun(context.Background(), "done", time.Second)

	rec := httptest.NewRecorder()
	MetricsHandler(reg).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, _ := io.ReadAll(rec.Body)
	if rec.Code != 200 {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if !strings.Contains(string(body), "research_runs") {
		t.Errorf("Expected research_runs in exposition, got:\n%s", body)
	}
}

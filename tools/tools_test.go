package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/scttfrdmn/agenkit/research-go/agenkit"
)

// mockTool is a test tool that returns predefined results.
type mockTool struct {
	name      string
	schema    Schema
	result    interface{}
	err       error
	callCount int
}

func (m *mockTool) Name() string        { return m.name }
func (m *mockTool) Description() string { return "mock tool " + m.name }
func (m *mockTool) Schema() Schema      { return m.schema }

func (m *mockTool) Invoke(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	m.callCount++
	if m.err != nil {
		return nil, m.err
	}
	return m.result, nil
}

func TestRegistryRegister(t *testing.T) {
	registry := NewRegistry()

	if err := registry.Register(&mockTool{name: "calc"}); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if err := registry.Register(&mockTool{name: "calc"}); err == nil {
		t.Error("Expected error registering duplicate tool")
	}
	if err := registry.Register(&mockTool{name: ""}); err == nil {
		t.Error("Expected error registering tool with empty name")
	}
	if err := registry.Register(nil); err == nil {
		t.Error("Expected error registering nil tool")
	}

	if _, ok := registry.Get("calc"); !ok {
		t.Error("Expected to find registered tool")
	}
	if _, ok := registry.Get("missing"); ok {
		t.Error("Expected missing tool lookup to fail")
	}
}

func TestRegistryListSorted(t *testing.T) {
	registry := NewRegistry()
	for _, name := range []string{"zeta", "alpha", "mid"} {
		if err := registry.Register(&mockTool{name: name}); err != nil {
			t.Fatalf("Register failed: %v", err)
		}
	}

	got := strings.Join(registry.List(), ",")
	if got != "alpha,mid,zeta" {
		t.Errorf("Expected sorted names, got %s", got)
	}
}

func TestRegistryResolveUnknownTool(t *testing.T) {
	registry := NewDefaultRegistry()

	_, err := registry.Resolve("get_weather", nil)

	var toolErr *agenkit.ToolInvocationError
	if !errors.As(err, &toolErr) {
		t.Fatalf("Expected ToolInvocationError, got %v", err)
	}
	if toolErr.Transient {
		t.Error("Unknown tool must not be transient")
	}
	if !strings.Contains(toolErr.Message, "get_price") {
		t.Errorf("Expected available tools in message, got %q", toolErr.Message)
	}
}

func TestRegistryResolveSchemaMismatch(t *testing.T) {
	registry := NewDefaultRegistry()

	_, err := registry.Resolve("get_price", map[string]interface{}{"symbol": 42})

	var toolErr *agenkit.ToolInvocationError
	if !errors.As(err, &toolErr) {
		t.Fatalf("Expected ToolInvocationError, got %v", err)
	}
	if !strings.Contains(toolErr.Message, "wrong type") {
		t.Errorf("Unexpected message: %q", toolErr.Message)
	}
	if agenkit.IsTransient(err) {
		t.Error("Schema mismatch must not be transient")
	}
}

func TestSchemaValidate(t *testing.T) {
	schema := Schema{
		Fields:   map[string]string{"query": TypeString, "top_k": TypeInt, "weight": TypeFloat},
		Required: []string{"query"},
	}

	tests := []struct {
		name    string
		args    map[string]interface{}
		wantErr string
	}{
		{"valid", map[string]interface{}{"query": "acme"}, ""},
		{"json int", map[string]interface{}{"query": "acme", "top_k": float64(5)}, ""},
		{"fractional int", map[string]interface{}{"query": "acme", "top_k": 2.5}, "wrong type"},
		{"int as float", map[string]interface{}{"query": "acme", "weight": 3}, ""},
		{"missing", map[string]interface{}{"top_k": 3}, "missing required argument: query"},
		{"extra", map[string]interface{}{"query": "acme", "lang": "en"}, "unexpected argument: lang"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := schema.Validate(tt.args)
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Expected valid, got %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestDescribeIncludesArguments(t *testing.T) {
	desc := NewDefaultRegistry().Describe()

	for _, want := range []string{"get_price(symbol: string)", "key_metrics", "search_news(query: string, top_k?: int)"} {
		if !strings.Contains(desc, want) {
			t.Errorf("Expected description to contain %q, got:\n%s", want, desc)
		}
	}
}

func TestPriceTool(t *testing.T) {
	out, err := NewPriceTool().Invoke(context.Background(), map[string]interface{}{"symbol": " acme "})
	if err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}

	quote := out.(map[string]interface{})
	if quote["symbol"] != "ACME" {
		t.Errorf("Expected upper-cased symbol, got %v", quote["symbol"])
	}
	if quote["price"] != placeholderPrice {
		t.Errorf("Unexpected price %v", quote["price"])
	}
}

func TestPriceToolEmptySymbol(t *testing.T) {
	_, err := NewPriceTool().Invoke(context.Background(), map[string]interface{}{"symbol": "  "})
	var toolErr *agenkit.ToolInvocationError
	if !errors.As(err, &toolErr) {
		t.Fatalf("Expected ToolInvocationError, got %v", err)
	}
}

func TestNewsToolClampsResults(t *testing.T) {
	tool := NewNewsTool()

	out, err := tool.Invoke(context.Background(), map[string]interface{}{"query": "acme earnings", "top_k": float64(50)})
	if err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}
	items := out.(map[string]interface{})["items"].([]interface{})
	if len(items) != maxNewsResults {
		t.Errorf("Expected %d items, got %d", maxNewsResults, len(items))
	}

	out, err = tool.Invoke(context.Background(), map[string]interface{}{"query": "acme"})
	if err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}
	items = out.(map[string]interface{})["items"].([]interface{})
	if len(items) != defaultNewsResults {
		t.Errorf("Expected %d default items, got %d", defaultNewsResults, len(items))
	}
}

func TestNewsToolReportsCredential(t *testing.T) {
	args := map[string]interface{}{"query": "acme"}

	out, err := NewNewsTool().Invoke(context.Background(), args)
	if err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}
	if out.(map[string]interface{})["credentialed"] != false {
		t.Errorf("Expected no credential, got %v", out)
	}

	registry := NewDefaultRegistry(WithSearchAPIKey("tvly-test"))
	tool, ok := registry.Get("search_news")
	if !ok {
		t.Fatal("search_news not registered")
	}
	out, err = tool.Invoke(context.Background(), args)
	if err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}
	result := out.(map[string]interface{})
	if result["credentialed"] != true {
		t.Errorf("Expected credentialed result, got %v", result)
	}
	if strings.Contains(fmt.Sprint(result), "tvly-test") {
		t.Errorf("Credential leaked into tool output: %v", result)
	}
}

func TestFixedAndFailingTools(t *testing.T) {
	fixed := NewFixed("quote", Schema{}, map[string]interface{}{"price": 1.5})
	out, err := fixed.Invoke(context.Background(), map[string]interface{}{"anything": true})
	if err != nil {
		t.Fatalf("Fixed tool failed: %v", err)
	}
	if out.(map[string]interface{})["price"] != 1.5 {
		t.Errorf("Unexpected output %v", out)
	}
	if err := fixed.Schema().Validate(map[string]interface{}{"extra": 1}); err != nil {
		t.Errorf("Zero schema should accept any arguments: %v", err)
	}

	boom := errors.New("upstream down")
	_, err = NewFailing("quote", boom).Invoke(context.Background(), nil)
	var toolErr *agenkit.ToolInvocationError
	if !errors.As(err, &toolErr) || toolErr.Transient || !errors.Is(err, boom) {
		t.Errorf("Expected permanent tool error wrapping cause, got %v", err)
	}

	transient := &agenkit.ToolInvocationError{Tool: "quote", Message: "timeout", Transient: true}
	_, err = NewFailing("quote", transient).Invoke(context.Background(), nil)
	if !agenkit.IsTransient(err) {
		t.Errorf("Expected transient error to pass through, got %v", err)
	}
}

package tools

import (
	"context"
	"strings"
	"time"

	"github.com/scttfrdmn/agenkit/research-go/agenkit"
)

// Placeholder market data. A real deployment swaps these tools for ones backed
// by a market data provider without touching the orchestrator.
const (
	placeholderPrice     = 123.45
	placeholderPE        = 28.7
	placeholderMarketCap = 250.1
	placeholderRevGrowth = 22.5
)

var now = time.Now

// Builtin returns the research tools registered by default.
func Builtin(news ...NewsOption) []Tool {
	return []Tool{
		NewPriceTool(),
		NewMetricsTool(),
		NewNewsTool(news...),
	}
}

var symbolSchema = Schema{
	Fields:   map[string]string{"symbol": TypeString},
	Required: []string{"symbol"},
}

// NewPriceTool returns the get_price tool.
func NewPriceTool() *Func {
	return NewFunc(
		"get_price",
		"Latest price for a ticker symbol.",
		symbolSchema,
		func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
			symbol, err := symbolArg("get_price", args)
			if err != nil {
				return nil, err
			}
			return map[string]interface{}{
				"symbol":   symbol,
				"price":    placeholderPrice,
				"currency": "USD",
				"as_of":    now().UTC().Format(time.RFC3339),
				"source":   "placeholder",
			}, nil
		},
	)
}

// NewMetricsTool returns the key_metrics tool.
func NewMetricsTool() *Func {
	return NewFunc(
		"key_metrics",
		"Valuation and growth metrics for a ticker symbol.",
		symbolSchema,
		func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
			symbol, err := symbolArg("key_metrics", args)
			if err != nil {
				return nil, err
			}
			return map[string]interface{}{
				"symbol":             symbol,
				"pe_ratio":           placeholderPE,
				"market_cap_usd_b":   placeholderMarketCap,
				"rev_growth_yoy_pct": placeholderRevGrowth,
				"notes":              "placeholder metrics",
			}, nil
		},
	)
}

func symbolArg(tool string, args map[string]interface{}) (string, error) {
	symbol, _ := args["symbol"].(string)
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return "", &agenkit.ToolInvocationError{Tool: tool, Message: "symbol must not be empty"}
	}
	return symbol, nil
}

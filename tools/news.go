package tools

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/scttfrdmn/agenkit/research-go/agenkit"
)

const (
	defaultNewsResults = 3
	maxNewsResults     = 10
)

// NewsOption configures the search_news tool.
type NewsOption func(*newsSearch)

// WithSearchAPIKey sets the news provider credential. The built-in provider
// returns placeholder headlines and only reports whether a key is set.
func WithSearchAPIKey(key string) NewsOption {
	return func(n *newsSearch) {
		n.apiKey = strings.TrimSpace(key)
	}
}

type newsSearch struct {
	apiKey string
}

// NewNewsTool returns the search_news tool.
func NewNewsTool(opts ...NewsOption) *Func {
	n := &newsSearch{}
	for _, opt := range opts {
		opt(n)
	}
	return NewFunc(
		"search_news",
		"Recent news headlines matching a query.",
		Schema{
			Fields:   map[string]string{"query": TypeString, "top_k": TypeInt},
			Required: []string{"query"},
		},
		n.search,
	)
}

func (n *newsSearch) search(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	query, _ := args["query"].(string)
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, &agenkit.ToolInvocationError{Tool: "search_news", Message: "query must not be empty"}
	}

	topK := intArg(args, "top_k", defaultNewsResults)
	if topK < 1 {
		topK = 1
	}
	if topK > maxNewsResults {
		topK = maxNewsResults
	}

	items := make([]interface{}, 0, topK)
	for i := 1; i <= topK; i++ {
		items = append(items, map[string]interface{}{
			"title":   fmt.Sprintf("%s: headline %d", query, i),
			"url":     fmt.Sprintf("https://news.example.com/search?q=%s&item=%d", url.QueryEscape(query), i),
			"snippet": fmt.Sprintf("Placeholder coverage of %s (item %d).", query, i),
		})
	}

	return map[string]interface{}{
		"query":        query,
		"items":        items,
		"source":       "placeholder",
		"credentialed": n.apiKey != "",
	}, nil
}

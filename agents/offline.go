package agents

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/scttfrdmn/agenkit/research-go/agenkit"
)

var tickerPattern = regexp.MustCompile(`\b[A-Z]{2,5}\b`)

// OfflineGateway answers both roles deterministically without a model. It
// exercises the whole pipeline in development and tests: the researcher makes
// one tool call and then drafts; the reviewer applies the checklist.
type OfflineGateway struct{}

// NewOfflineGateway creates an offline gateway.
func NewOfflineGateway() *OfflineGateway {
	return &OfflineGateway{}
}

// Invoke implements agenkit.Gateway.
func (g *OfflineGateway) Invoke(ctx context.Context, req agenkit.Request) (agenkit.Action, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	switch req.Role {
	case agenkit.RoleResearcher:
		return g.research(req), nil
	case agenkit.RoleReviewer:
		if notes := Checklist(req.Draft); len(notes) > 0 {
			return agenkit.ReviseRequest{Feedback: strings.Join(notes, " ")}, nil
		}
		return agenkit.Accept{Feedback: "Reviewed offline."}, nil
	default:
		return nil, fmt.Errorf("unknown agent role %q", req.Role)
	}
}

func (g *OfflineGateway) research(req agenkit.Request) agenkit.Action {
	if len(req.Observations) == 0 {
		if symbol := tickerPattern.FindString(req.Question); symbol != "" {
			return agenkit.ToolInvocation{
				Tool:      "get_price",
				Arguments: map[string]interface{}{"symbol": symbol},
				Thought:   "Look up the latest price first.",
				Notes:     map[string]string{"last_symbol": symbol},
			}
		}
		return agenkit.ToolInvocation{
			Tool:      "search_news",
			Arguments: map[string]interface{}{"query": req.Question},
			Thought:   "Search recent news first.",
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# Draft (offline)\n\nTask: %s\n\n", req.Question)
	b.WriteString("- Key drivers: [placeholder]\n")
	b.WriteString("- Catalysts: [placeholder]\n")
	b.WriteString("- Risks: [placeholder]\n")

	var sources []string
	b.WriteString("\nObservations:\n")
	for _, obs := range req.Observations {
		fmt.Fprintf(&b, "- %s\n", FormatObservation(obs))
		if !obs.Failed() {
			sources = append(sources, obs.Tool)
		}
	}
	if len(req.Feedback) > 0 {
		b.WriteString("\nRevisions:\n")
		for _, fb := range req.Feedback {
			fmt.Fprintf(&b, "- %s\n", fb)
		}
	}
	if len(sources) == 0 {
		sources = []string{"N/A"}
	}
	fmt.Fprintf(&b, "\nSources: %s", strings.Join(sources, ", "))

	return agenkit.FinalAnswer{Text: b.String()}
}

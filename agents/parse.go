package agents

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/kaptinlin/jsonrepair"

	"github.com/scttfrdmn/agenkit/research-go/agenkit"
)

var (
	toolCallsMarker   = regexp.MustCompile(`(?i)TOOL_CALLS\s*:\s*`)
	notesMarker       = regexp.MustCompile(`(?i)NOTES\s*:\s*`)
	finalAnswerMarker = regexp.MustCompile(`(?i)final answer\s*:`)
)

type toolCall struct {
	Tool     string                 `json:"tool"`
	ToolName string                 `json:"tool_name"`
	Args     map[string]interface{} `json:"args"`
}

type reviewVerdict struct {
	Verdict  string `json:"verdict"`
	Feedback string `json:"feedback"`
}

// ParseResearcher turns a researcher reply into an action.
//
// Recognised forms, in order of precedence: a TOOL_CALLS JSON list (the
// first valid call, with the rest queued in Then), a "Final Answer:" marker,
// ReAct "Action:" and "Action Input:" lines. Anything else is treated as the
// answer itself. A NOTES JSON object anywhere in the reply is attached to the
// action.
func ParseResearcher(text string) agenkit.Action {
	text, notes := extractNotes(text)

	if loc := toolCallsMarker.FindStringIndex(text); loc != nil {
		thought := strings.TrimSpace(text[:loc[0]])
		raw, end := extractBalanced(text, loc[1], '[', ']')
		var calls []toolCall
		if raw != "" && decodeJSON(raw, &calls) == nil {
			var invs []agenkit.ToolInvocation
			for _, c := range calls {
				name := c.Tool
				if name == "" {
					name = c.ToolName
				}
				if name == "" {
					continue
				}
				args := c.Args
				if args == nil {
					args = map[string]interface{}{}
				}
				invs = append(invs, agenkit.ToolInvocation{Tool: name, Arguments: args})
			}
			if len(invs) > 0 {
				first := invs[0]
				first.Thought = thought
				first.Notes = notes
				if len(invs) > 1 {
					first.Then = invs[1:]
				}
				return first
			}
		}
		// An empty or unusable call list means the reply is a draft.
		text = strings.TrimSpace(text[:loc[0]] + text[end:])
	}

	if loc := finalAnswerMarker.FindStringIndex(text); loc != nil {
		return agenkit.FinalAnswer{Text: strings.TrimSpace(text[loc[1]:]), Notes: notes}
	}

	if inv, ok := parseReActAction(text); ok {
		inv.Notes = notes
		return inv
	}

	return agenkit.FinalAnswer{Text: strings.TrimSpace(text), Notes: notes}
}

func parseReActAction(text string) (agenkit.ToolInvocation, bool) {
	var inv agenkit.ToolInvocation
	var input string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "Thought:"):
			inv.Thought = strings.TrimSpace(strings.TrimPrefix(line, "Thought:"))
		case strings.HasPrefix(line, "Action Input:"):
			input = strings.TrimSpace(strings.TrimPrefix(line, "Action Input:"))
		case strings.HasPrefix(line, "Action:"):
			inv.Tool = strings.TrimSpace(strings.TrimPrefix(line, "Action:"))
		}
	}
	if inv.Tool == "" {
		return inv, false
	}

	inv.Arguments = map[string]interface{}{}
	if input != "" {
		if !strings.HasPrefix(input, "{") || decodeJSON(input, &inv.Arguments) != nil {
			inv.Arguments = map[string]interface{}{"input": input}
		}
	}
	return inv, true
}

// ParseReviewer turns a reviewer reply into Accept or ReviseRequest. Replies
// that match neither the JSON verdict nor ACCEPT/REVISE lines are accepted.
func ParseReviewer(text string) agenkit.Action {
	if start := strings.IndexByte(text, '{'); start >= 0 {
		raw, _ := extractBalanced(text, start, '{', '}')
		var v reviewVerdict
		if raw != "" && decodeJSON(raw, &v) == nil {
			switch strings.ToLower(strings.TrimSpace(v.Verdict)) {
			case "revise":
				return revise(v.Feedback)
			case "accept":
				return agenkit.Accept{Feedback: strings.TrimSpace(v.Feedback)}
			}
		}
	}

	lines := strings.Split(strings.TrimSpace(text), "\n")
	for i, line := range lines {
		upper := strings.ToUpper(strings.TrimSpace(line))
		switch {
		case strings.HasPrefix(upper, "REVISE"):
			first := strings.TrimSpace(line)[len("REVISE"):]
			first = strings.TrimLeft(first, ": ")
			rest := append([]string{first}, lines[i+1:]...)
			return revise(strings.Join(rest, "\n"))
		case strings.HasPrefix(upper, "ACCEPT"):
			return agenkit.Accept{}
		}
	}
	return agenkit.Accept{}
}

func revise(feedback string) agenkit.ReviseRequest {
	feedback = strings.TrimSpace(feedback)
	if feedback == "" {
		feedback = "Revise the draft."
	}
	return agenkit.ReviseRequest{Feedback: feedback}
}

func extractNotes(text string) (string, map[string]string) {
	loc := notesMarker.FindStringIndex(text)
	if loc == nil {
		return text, nil
	}
	start := loc[1]
	if start >= len(text) || text[start] != '{' {
		return text, nil
	}
	raw, end := extractBalanced(text, start, '{', '}')
	var values map[string]interface{}
	if decodeJSON(raw, &values) != nil || len(values) == 0 {
		return text, nil
	}

	notes := make(map[string]string, len(values))
	for k, v := range values {
		if s, ok := v.(string); ok {
			notes[k] = s
		} else {
			notes[k] = fmt.Sprint(v)
		}
	}
	return strings.TrimSpace(text[:loc[0]] + text[end:]), notes
}

// extractBalanced returns the bracketed value starting at or after start and
// the offset just past it. Brackets inside JSON strings are ignored. An
// unterminated value runs to the end of s.
func extractBalanced(s string, start int, open, close byte) (string, int) {
	i := strings.IndexByte(s[start:], open)
	if i < 0 {
		return "", start
	}
	i += start

	depth := 0
	inString := false
	escaped := false
	for j := i; j < len(s); j++ {
		c := s[j]
		switch {
		case escaped:
			escaped = false
		case inString && c == '\\':
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == open:
			depth++
		case c == close:
			depth--
			if depth == 0 {
				return s[i : j+1], j + 1
			}
		}
	}
	return s[i:], len(s)
}

// decodeJSON unmarshals raw, repairing it first if it is not valid JSON.
func decodeJSON(raw string, v interface{}) error {
	err := json.Unmarshal([]byte(raw), v)
	if err == nil {
		return nil
	}
	repaired, repairErr := jsonrepair.JSONRepair(raw)
	if repairErr != nil {
		return err
	}
	return json.Unmarshal([]byte(repaired), v)
}

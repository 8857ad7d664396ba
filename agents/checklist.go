package agents

import "strings"

type checklistItem struct {
	keyword string
	note    string
}

var checklistItems = []checklistItem{
	{keyword: "risks", note: "Add a 'Risks' section with 2-4 bullets."},
	{keyword: "sources", note: "Add a 'Sources' line with at least 2 citations or 'N/A'."},
	{keyword: "catalyst", note: "Mention near-term catalysts (earnings, product launches)."},
}

// Checklist returns the critique notes a draft still needs addressed, in a
// fixed order. An empty result means the draft has every expected section.
func Checklist(draft string) []string {
	lower := strings.ToLower(draft)
	var notes []string
	for _, item := range checklistItems {
		if !strings.Contains(lower, item.keyword) {
			notes = append(notes, item.note)
		}
	}
	return notes
}

package guardrail

import (
	"regexp"
	"strings"
)

var (
	wordRe         = regexp.MustCompile(`\w+`)
	specialCharsRe = regexp.MustCompile(`[<>{}[\]|]`)
	insistenceRe   = regexp.MustCompile(`(?i)(please|must|you (should|will|must))`)
)

// Patterns are word-anchored so ordinary prose ("ecosystem:", "operating
// system:") does not score.
var injectionPatterns = []string{
	`\bignore\s+(all\s+)?(previous|all|above|prior)\s+instructions?\b`,
	`\bdisregard\s+(all\s+)?(previous|all|above|prior)\b`,
	`\bforget\s+(everything|all|previous)\b`,
	`\bnew\s+instructions?\s*:`,
	`\bsystem\s*(prompt|message)\s*:`,
	`(?m)^\s*system\s*:`,
	`\byou\s+are\s+now\s+(a|an|in|my|the|no\s+longer)\b`,
	`\bpretend\s+(you|to)\s+(are|be)\b`,
	`^sudo\s+`,
	`\b(admin|developer|god)\s+mode\b`,
	`\b(enable|enter|activate)\s+jailbreak\b`,
	`</?\s*system\s*>`,
	`<\|.*?\|>`,
	`\[INST\]`,
}

// Keywords that raise the score without proving intent on their own.
var injectionKeywords = map[string]int{
	"ignore":       3,
	"disregard":    3,
	"override":     2,
	"bypass":       3,
	"jailbreak":    5,
	"prompt":       2,
	"injection":    4,
	"sudo":         3,
	"instructions": 2,
}

// injectionDetector scores text for prompt-injection attempts.
type injectionDetector struct {
	patterns  []*regexp.Regexp
	sources   []string
	threshold int
}

func newInjectionDetector(threshold int) *injectionDetector {
	d := &injectionDetector{threshold: threshold}
	for _, p := range injectionPatterns {
		d.patterns = append(d.patterns, regexp.MustCompile("(?i)"+p))
		d.sources = append(d.sources, p)
	}
	return d
}

// detect returns whether text crosses the threshold, its score, and the
// patterns that matched, in declaration order.
func (d *injectionDetector) detect(text string) (bool, int, []string) {
	lower := strings.ToLower(text)
	score := 0
	var matched []string

	for i, re := range d.patterns {
		if re.MatchString(lower) {
			score += 10
			matched = append(matched, d.sources[i])
		}
	}

	for _, word := range wordRe.FindAllString(lower, -1) {
		score += injectionKeywords[word]
	}

	if len(specialCharsRe.FindAllString(text, -1)) > 5 {
		score += 2
	}
	if len(insistenceRe.FindAllString(lower, -1)) > 5 {
		score += 2
	}

	return score >= d.threshold, score, matched
}

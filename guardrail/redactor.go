package guardrail

import (
	"regexp"
)

const redactionText = "***REDACTED***"

type sensitivePattern struct {
	re   *regexp.Regexp
	kind string
}

// Order matters: more specific patterns run first so a card number is not
// half-consumed by the phone pattern.
var secretPatterns = []sensitivePattern{
	{regexp.MustCompile(`\bsk-[a-zA-Z0-9_-]{20,}`), "API_KEY"},
	{regexp.MustCompile(`AKIA[0-9A-Z]{16}`), "AWS_ACCESS_KEY"},
	{regexp.MustCompile(`ghp_[a-zA-Z0-9]{36}`), "GITHUB_TOKEN"},
	{regexp.MustCompile(`eyJ[a-zA-Z0-9_-]+\.eyJ[a-zA-Z0-9_-]+\.[a-zA-Z0-9_-]+`), "JWT"},
}

var piiPatterns = []sensitivePattern{
	{regexp.MustCompile(`\b\d{4}[-\s]?\d{4}[-\s]?\d{4}[-\s]?\d{4}\b`), "CREDIT_CARD"},
	{regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`), "SSN"},
	{regexp.MustCompile(`(?i)\b[A-Z0-9._%+-]+@[A-Z0-9.-]+\.[A-Z]{2,}\b`), "EMAIL"},
	{regexp.MustCompile(`\(?\b\d{3}\)?[-.\s]\d{3}[-.]\d{4}\b`), "PHONE"},
}

// redact replaces every match of patterns and returns the kinds found, in
// pattern order, each at most once.
func redact(text string, patterns []sensitivePattern) (string, []string) {
	var kinds []string
	for _, p := range patterns {
		if !p.re.MatchString(text) {
			continue
		}
		text = p.re.ReplaceAllString(text, redactionText+"_"+p.kind)
		kinds = append(kinds, p.kind)
	}
	return text, kinds
}

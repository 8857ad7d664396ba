package guardrail

import (
	"fmt"
	"os"
	"regexp"
	"unicode/utf8"

	"gopkg.in/yaml.v3"
)

// Severity decides what a forbidden claim does to a draft.
type Severity string

const (
	SeverityBlock   Severity = "block"
	SeverityRewrite Severity = "rewrite"
)

// IntentRule rejects questions matching Pattern.
type IntentRule struct {
	Name    string `yaml:"name"`
	Pattern string `yaml:"pattern"`
}

// ClaimRule handles a forbidden claim in a draft answer. Rewrite rules replace
// each match with Replacement; block rules withhold the whole draft.
type ClaimRule struct {
	Name        string   `yaml:"name"`
	Pattern     string   `yaml:"pattern"`
	Severity    Severity `yaml:"severity"`
	Replacement string   `yaml:"replacement,omitempty"`
}

// Policy configures the validator. Rule slices are evaluated in order.
type Policy struct {
	MaxQuestionLength  int          `yaml:"max_question_length"`
	MaxAnswerLength    int          `yaml:"max_answer_length"`
	InjectionThreshold int          `yaml:"injection_threshold"`
	RedactQuestionPII  bool         `yaml:"redact_question_pii"`
	DisallowedIntents  []IntentRule `yaml:"disallowed_intents"`
	ForbiddenClaims    []ClaimRule  `yaml:"forbidden_claims"`

	// Disclaimer is appended to answers that do not contain DisclaimerMarker.
	Disclaimer       string `yaml:"disclaimer"`
	DisclaimerMarker string `yaml:"disclaimer_marker"`

	// Refusal is returned for rejected questions.
	Refusal string `yaml:"refusal"`

	// Fallback replaces blocked answers.
	Fallback string `yaml:"fallback"`
}

// DefaultPolicy returns the built-in financial research policy.
func DefaultPolicy() Policy {
	return Policy{
		MaxQuestionLength:  4000,
		MaxAnswerLength:    20000,
		InjectionThreshold: 10,
		RedactQuestionPII:  true,
		DisallowedIntents: []IntentRule{
			{Name: "insider_trading", Pattern: `\b(insider|inside)\s+(information|info|tips?)\b|\btrade\s+on\s+(material\s+)?non-?public\b`},
			{Name: "market_manipulation", Pattern: `\bpump\s*(and|&|n)\s*dump\b|\bmanipulat\w*\s+(the\s+)?(stock|share|market|price)s?\b|\bspoof(ing)?\s+orders?\b|\bwash\s+trad\w*`},
			{Name: "front_running", Pattern: `\bfront[-\s]?run\w*`},
		},
		ForbiddenClaims: []ClaimRule{
			{Name: "inside information", Pattern: `\binsider?\s+information\b`, Severity: SeverityBlock},
			{Name: "guaranteed returns", Pattern: `\bguaranteed\s+(returns?|profits?|gains?)\b`, Severity: SeverityRewrite, Replacement: "potential returns (not guaranteed)"},
			{Name: "cannot lose", Pattern: `\b(can(no|')t|will\s+not|won't)\s+lose\b`, Severity: SeverityRewrite, Replacement: "could still lose"},
			{Name: "sure thing", Pattern: `\b(sure|certain)\s+(thing|bet)\b`, Severity: SeverityRewrite, Replacement: "speculative position"},
		},
		Disclaimer:       "This content is for informational purposes only and is not financial advice. Do your own research and consider consulting a licensed professional.",
		DisclaimerMarker: "not financial advice",
		Refusal:          "I can't help with that request. I can research publicly available information about companies and markets instead.",
		Fallback:         "I'm unable to share an answer to this question that meets the content policy. Please rephrase or ask about publicly available information.",
	}
}

// LoadPolicy reads a YAML policy file. Fields absent from the file keep their
// default values; rule lists present in the file replace the defaults.
func LoadPolicy(path string) (Policy, error) {
	policy := DefaultPolicy()

	data, err := os.ReadFile(path)
	if err != nil {
		return Policy{}, fmt.Errorf("read guardrail policy: %w", err)
	}
	if err := yaml.Unmarshal(data, &policy); err != nil {
		return Policy{}, fmt.Errorf("parse guardrail policy: %w", err)
	}
	if err := policy.Validate(); err != nil {
		return Policy{}, err
	}
	return policy, nil
}

// Validate checks rule patterns and severities.
func (p Policy) Validate() error {
	if p.MaxQuestionLength <= 0 || p.MaxAnswerLength <= 0 {
		return fmt.Errorf("guardrail policy: length limits must be positive")
	}
	if p.Disclaimer != "" && p.MaxAnswerLength <= utf8.RuneCountInString(disclaimerSeparator+p.Disclaimer+truncatedMarker) {
		return fmt.Errorf("guardrail policy: max_answer_length leaves no room for the disclaimer")
	}
	for _, rule := range p.DisallowedIntents {
		if _, err := regexp.Compile(rule.Pattern); err != nil {
			return fmt.Errorf("guardrail policy: intent %q: %w", rule.Name, err)
		}
	}
	for _, rule := range p.ForbiddenClaims {
		if _, err := regexp.Compile(rule.Pattern); err != nil {
			return fmt.Errorf("guardrail policy: claim %q: %w", rule.Name, err)
		}
		if rule.Severity != SeverityBlock && rule.Severity != SeverityRewrite {
			return fmt.Errorf("guardrail policy: claim %q: unknown severity %q", rule.Name, rule.Severity)
		}
	}
	return nil
}

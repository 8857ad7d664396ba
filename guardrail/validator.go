// Package guardrail validates questions before research and answers before
// they are returned.
//
// Both checks are pure functions of their input and the policy: the same
// input always produces the same decision, text and flags.
package guardrail

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	disclaimerSeparator = "\n\n"
	truncatedMarker     = "\n\n[truncated]"
)

// Decision is the outcome of a guardrail check.
type Decision string

const (
	DecisionPass    Decision = "pass"
	DecisionRewrite Decision = "rewrite"
	DecisionReject  Decision = "reject"
	DecisionBlock   Decision = "block"
)

// PreflightResult is the outcome of checking a question.
type PreflightResult struct {
	Decision Decision

	// Question is the text to research: the original or its rewrite.
	Question string

	// Refusal is the message returned to the caller when Decision is reject.
	Refusal string

	Flags []string
}

// PostflightResult is the outcome of checking a draft answer.
type PostflightResult struct {
	Decision Decision

	// Text is the answer to return: the draft, its rewrite, or the fallback
	// message when Decision is block.
	Text string

	Flags []string
}

type compiledIntent struct {
	name string
	re   *regexp.Regexp
}

type compiledClaim struct {
	rule ClaimRule
	re   *regexp.Regexp
}

// Validator applies a Policy. It is immutable and safe for concurrent use.
type Validator struct {
	policy   Policy
	intents  []compiledIntent
	claims   []compiledClaim
	detector *injectionDetector
}

// New compiles policy into a validator.
func New(policy Policy) (*Validator, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}

	v := &Validator{
		policy:   policy,
		detector: newInjectionDetector(policy.InjectionThreshold),
	}
	for _, rule := range policy.DisallowedIntents {
		v.intents = append(v.intents, compiledIntent{name: rule.Name, re: regexp.MustCompile("(?i)" + rule.Pattern)})
	}
	for _, rule := range policy.ForbiddenClaims {
		v.claims = append(v.claims, compiledClaim{rule: rule, re: regexp.MustCompile("(?i)" + rule.Pattern)})
	}
	return v, nil
}

// Policy returns the policy the validator was built from.
func (v *Validator) Policy() Policy {
	return v.policy
}

// Preflight checks a question before any agent sees it.
func (v *Validator) Preflight(question string) PreflightResult {
	if utf8.RuneCountInString(question) > v.policy.MaxQuestionLength {
		return v.reject(question, "question_too_long")
	}

	var flags []string
	for _, intent := range v.intents {
		if intent.re.MatchString(question) {
			flags = append(flags, "disallowed_intent:"+intent.name)
		}
	}
	if len(flags) > 0 {
		return v.reject(question, flags...)
	}

	if v.policy.InjectionThreshold > 0 {
		if injection, _, _ := v.detector.detect(question); injection {
			return v.reject(question, "prompt_injection")
		}
	}

	if v.policy.RedactQuestionPII {
		rewritten, kinds := redact(question, piiPatterns)
		if len(kinds) > 0 {
			for _, kind := range kinds {
				flags = append(flags, "pii:"+kind)
			}
			return PreflightResult{Decision: DecisionRewrite, Question: rewritten, Flags: flags}
		}
	}

	return PreflightResult{Decision: DecisionPass, Question: question}
}

func (v *Validator) reject(question string, flags ...string) PreflightResult {
	return PreflightResult{
		Decision: DecisionReject,
		Question: question,
		Refusal:  v.policy.Refusal,
		Flags:    flags,
	}
}

// Postflight checks a draft answer before it is returned or persisted.
func (v *Validator) Postflight(draft string) PostflightResult {
	if strings.TrimSpace(draft) == "" {
		return v.block("empty_answer")
	}

	text := draft
	var flags []string

	for _, claim := range v.claims {
		if !claim.re.MatchString(text) {
			continue
		}
		flag := "disallowed_phrase:" + claim.rule.Name
		if claim.rule.Severity == SeverityBlock {
			return v.block(append(flags, flag)...)
		}
		text = claim.re.ReplaceAllLiteralString(text, claim.rule.Replacement)
		flags = append(flags, flag)
	}

	var kinds []string
	text, kinds = redact(text, append(append([]sensitivePattern{}, secretPatterns...), piiPatterns...))
	for _, kind := range kinds {
		flags = append(flags, "redacted:"+kind)
	}

	// MaxAnswerLength bounds the returned text, disclaimer included. Room is
	// reserved whenever the disclaimer may be appended, which includes a cut
	// that drops the marker.
	limit := v.policy.MaxAnswerLength
	if v.policy.Disclaimer != "" && (!v.hasDisclaimer(text) || utf8.RuneCountInString(text) > limit) {
		limit -= utf8.RuneCountInString(disclaimerSeparator + v.policy.Disclaimer)
	}
	if utf8.RuneCountInString(text) > limit {
		text = truncate(text, limit)
		flags = append(flags, "truncated")
	}

	if v.policy.Disclaimer != "" && !v.hasDisclaimer(text) {
		text = strings.TrimRight(text, "\n ") + disclaimerSeparator + v.policy.Disclaimer
		flags = append(flags, "disclaimer_added")
	}

	decision := DecisionPass
	if text != draft {
		decision = DecisionRewrite
	}
	return PostflightResult{Decision: decision, Text: text, Flags: flags}
}

func (v *Validator) block(flags ...string) PostflightResult {
	return PostflightResult{
		Decision: DecisionBlock,
		Text:     v.policy.Fallback,
		Flags:    flags,
	}
}

func (v *Validator) hasDisclaimer(text string) bool {
	return strings.Contains(strings.ToLower(text), strings.ToLower(v.policy.DisclaimerMarker))
}

// truncate cuts s so that the result, marker included, is at most n runes.
func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	keep := n - utf8.RuneCountInString(truncatedMarker)
	if keep <= 0 {
		return string(runes[:n])
	}
	return strings.TrimRight(string(runes[:keep]), " \n") + truncatedMarker
}

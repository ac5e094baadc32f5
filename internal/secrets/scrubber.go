// Package secrets redacts credentials from code snippets before they are
// embedded, prompted or echoed back in a diff.
package secrets

import (
	"cmp"
	"slices"
	"strings"
)

// DefaultRedaction replaces every detected secret.
const DefaultRedaction = "[REDACTED]"

// Finding reports one redaction without the secret itself.
type Finding struct {
	RuleID string `json:"rule_id"`
	// Line is 1-indexed.
	Line int `json:"line"`
}

// Result is the scrubbed text plus what was removed.
type Result struct {
	Scrubbed string
	Findings []Finding
}

// HasFindings reports whether anything was redacted.
func (r Result) HasFindings() bool {
	return len(r.Findings) > 0
}

// RuleIDs returns the distinct rule IDs that fired, sorted.
func (r Result) RuleIDs() []string {
	ids := make([]string, 0, len(r.Findings))
	for _, f := range r.Findings {
		ids = append(ids, f.RuleID)
	}
	slices.Sort(ids)
	return slices.Compact(ids)
}

// Scrubber applies a fixed rule set. It is immutable and safe for concurrent
// use.
type Scrubber struct {
	rules     []Rule
	redaction string
}

// Option configures a Scrubber.
type Option func(*Scrubber)

// WithRules replaces the default rules.
func WithRules(rules ...Rule) Option {
	return func(s *Scrubber) { s.rules = rules }
}

// WithRedaction sets the replacement text.
func WithRedaction(r string) Option {
	return func(s *Scrubber) { s.redaction = r }
}

// New returns a scrubber with DefaultRules.
func New(opts ...Option) *Scrubber {
	s := &Scrubber{rules: DefaultRules(), redaction: DefaultRedaction}
	for _, o := range opts {
		o(s)
	}
	return s
}

type span struct {
	start, end int
}

// Scrub redacts every match. Overlapping matches collapse into one
// redaction.
func (s *Scrubber) Scrub(content string) Result {
	var (
		spans    []span
		findings []Finding
	)
	for _, rule := range s.rules {
		for _, m := range rule.Pattern.FindAllStringSubmatchIndex(content, -1) {
			start, end := m[0], m[1]
			if len(m) >= 4 && m[2] >= 0 {
				start, end = m[2], m[3]
			}
			if start >= end {
				continue
			}
			spans = append(spans, span{start, end})
			findings = append(findings, Finding{
				RuleID: rule.ID,
				Line:   strings.Count(content[:start], "\n") + 1,
			})
		}
	}
	if len(spans) == 0 {
		return Result{Scrubbed: content}
	}

	slices.SortFunc(findings, func(a, b Finding) int {
		if c := cmp.Compare(a.Line, b.Line); c != 0 {
			return c
		}
		return cmp.Compare(a.RuleID, b.RuleID)
	})

	var b strings.Builder
	b.Grow(len(content))
	last := 0
	for _, sp := range merge(spans) {
		b.WriteString(content[last:sp.start])
		b.WriteString(s.redaction)
		last = sp.end
	}
	b.WriteString(content[last:])

	return Result{Scrubbed: b.String(), Findings: findings}
}

// merge sorts spans and joins overlapping or touching ones.
func merge(spans []span) []span {
	slices.SortFunc(spans, func(a, b span) int { return cmp.Compare(a.start, b.start) })
	out := spans[:1]
	for _, sp := range spans[1:] {
		last := &out[len(out)-1]
		if sp.start <= last.end {
			last.end = max(last.end, sp.end)
			continue
		}
		out = append(out, sp)
	}
	return out
}

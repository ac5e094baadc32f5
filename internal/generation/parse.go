package generation

import (
	"regexp"
	"strings"
)

const (
	sectionFixedCode   = "FIXED_CODE"
	sectionExplanation = "EXPLANATION"

	parseErrorPrefix   = "// Parsing error. Model output:\n"
	missingExplanation = "No structured explanation was parsed from the model output."
)

var sectionPatterns = map[string]*regexp.Regexp{
	sectionFixedCode:   compileSection(sectionFixedCode),
	sectionExplanation: compileSection(sectionExplanation),
}

func compileSection(name string) *regexp.Regexp {
	q := regexp.QuoteMeta(name)
	return regexp.MustCompile(`(?is)<<<` + q + `>>>(.*?)<<<END_` + q + `>>>`)
}

func sectionPattern(name string) *regexp.Regexp {
	if re, ok := sectionPatterns[name]; ok {
		return re
	}
	return compileSection(name)
}

// ExtractSection returns the text between <<<NAME>>> and <<<END_NAME>>>.
// Matching is case-insensitive and spans newlines; the first pair wins.
// ok is false when the markers are absent or enclose nothing.
func ExtractSection(text, name string) (section string, ok bool) {
	m := sectionPattern(name).FindStringSubmatch(text)
	if m == nil || m[1] == "" {
		return "", false
	}
	return m[1], true
}

// parsed is the best-effort result of reading raw model output.
type parsed struct {
	fixedCode   string
	explanation string
	// fixedFound is false when the fixed code fell back to the raw output.
	fixedFound bool
}

func parseOutput(raw string) parsed {
	p := parsed{}

	fixed, ok := ExtractSection(raw, sectionFixedCode)
	if ok {
		p.fixedFound = true
	} else {
		fixed = parseErrorPrefix + raw
	}

	explanation, ok := ExtractSection(raw, sectionExplanation)
	if !ok {
		explanation = missingExplanation
	}

	p.fixedCode = strings.TrimSpace(fixed)
	p.explanation = strings.TrimSpace(explanation)
	return p
}

package generation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractSection(t *testing.T) {
	tests := []struct {
		name   string
		text   string
		marker string
		want   string
		wantOK bool
	}{
		{"simple", "<<<FIXED_CODE>>>x<<<END_FIXED_CODE>>>", "FIXED_CODE", "x", true},
		{"multiline", "a\n<<<FIXED_CODE>>>\nline1\nline2\n<<<END_FIXED_CODE>>>\nb", "FIXED_CODE", "\nline1\nline2\n", true},
		{"case insensitive", "<<<fixed_code>>>y<<<End_Fixed_Code>>>", "FIXED_CODE", "y", true},
		{"first match wins", "<<<EXPLANATION>>>one<<<END_EXPLANATION>>><<<EXPLANATION>>>two<<<END_EXPLANATION>>>", "EXPLANATION", "one", true},
		{"non greedy", "<<<EXPLANATION>>>a<<<END_EXPLANATION>>> b <<<END_EXPLANATION>>>", "EXPLANATION", "a", true},
		{"missing end", "<<<FIXED_CODE>>>x", "FIXED_CODE", "", false},
		{"missing start", "x<<<END_FIXED_CODE>>>", "FIXED_CODE", "", false},
		{"empty section", "<<<FIXED_CODE>>><<<END_FIXED_CODE>>>", "FIXED_CODE", "", false},
		{"whitespace section", "<<<FIXED_CODE>>>  <<<END_FIXED_CODE>>>", "FIXED_CODE", "  ", true},
		{"no markers", "plain prose", "EXPLANATION", "", false},
		{"unknown marker", "<<<NOTE>>>n<<<END_NOTE>>>", "NOTE", "n", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ExtractSection(tt.text, tt.marker)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseOutput(t *testing.T) {
	p := parseOutput("<<<FIXED_CODE>>>\n  fixed()\n<<<END_FIXED_CODE>>>\n<<<EXPLANATION>>>\n why \n<<<END_EXPLANATION>>>")
	assert.True(t, p.fixedFound)
	assert.Equal(t, "fixed()", p.fixedCode)
	assert.Equal(t, "why", p.explanation)
}

func TestParseOutput_WhitespaceFixedCodeIsKept(t *testing.T) {
	p := parseOutput("<<<FIXED_CODE>>>   <<<END_FIXED_CODE>>>")
	assert.True(t, p.fixedFound)
	assert.Equal(t, "", p.fixedCode)
}

func TestParseOutput_FallbackIsTrimmed(t *testing.T) {
	p := parseOutput("  garbage output \n")
	assert.False(t, p.fixedFound)
	assert.Equal(t, "// Parsing error. Model output:\n  garbage output", p.fixedCode)
	assert.Equal(t, missingExplanation, p.explanation)
}

func TestBuildPrompt(t *testing.T) {
	prompt := BuildPrompt(Input{Language: "python", CWE: "CWE-89", Code: "q = 'a' + b", Guidelines: "Use params."})

	assert.True(t, strings.HasPrefix(prompt, "\nYou MUST output EXACTLY AND ONLY the following format."))
	assert.Contains(t, prompt, "Language: python\nCWE: CWE-89\n")
	assert.Contains(t, prompt, "Guidelines:\nUse params.\n")
	assert.Contains(t, prompt, "<<<VULNERABLE_CODE>>>\nq = 'a' + b\n<<<END_VULNERABLE_CODE>>>\n")
	assert.Contains(t, prompt, "DO NOT wrap code in ``` fencing.")
}

func TestBuildPrompt_EmptyGuidelinesAndPercentSigns(t *testing.T) {
	prompt := BuildPrompt(Input{Language: "c", CWE: "CWE-134", Code: `printf("%s %d", a)`})

	assert.Contains(t, prompt, "Guidelines:\n\n\n<<<VULNERABLE_CODE>>>")
	assert.Contains(t, prompt, `printf("%s %d", a)`)
	assert.NotContains(t, prompt, "%!")
}

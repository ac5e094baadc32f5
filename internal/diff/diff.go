// Package diff renders unified diffs between a snippet and its fix.
package diff

import (
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/pmezard/go-difflib/difflib"
)

const (
	fromFile = "vulnerable"
	toFile   = "fixed"
)

// Unified returns a unified diff of original against fixed with three lines
// of context. Lines are joined by "\n" with no trailing newline; identical
// inputs produce "".
func Unified(original, fixed string) string {
	a := splitLines(original)
	b := splitLines(fixed)
	if slices.Equal(a, b) {
		return ""
	}

	out, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        terminate(a),
		B:        terminate(b),
		FromFile: fromFile,
		ToFile:   toFile,
		Context:  3,
		Eol:      "\n",
	})
	if err != nil {
		// Writes go to a strings.Builder and cannot fail.
		return ""
	}
	return strings.TrimSuffix(out, "\n")
}

// terminate appends "\n" to each line; difflib writes lines verbatim.
func terminate(lines []string) []string {
	out := make([]string, len(lines))
	for i, l := range lines {
		out[i] = l + "\n"
	}
	return out
}

// splitLines splits on universal line boundaries (\n, \r\n, \r, \v, \f,
// the C0 separators, NEL, LS and PS) and drops the terminators. A trailing
// terminator does not start a new line.
func splitLines(s string) []string {
	var lines []string
	start := 0
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		if !isLineBreak(r) {
			i += size
			continue
		}
		lines = append(lines, s[start:i])
		i += size
		if r == '\r' && i < len(s) && s[i] == '\n' {
			i++
		}
		start = i
	}
	if start < len(s) {
		lines = append(lines, s[start:])
	}
	return lines
}

func isLineBreak(r rune) bool {
	switch r {
	case '\n', '\r', '\v', '\f', 0x1c, 0x1d, 0x1e, 0x85, 0x2028, 0x2029:
		return true
	}
	return false
}

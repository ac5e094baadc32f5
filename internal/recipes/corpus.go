// Package recipes builds the remediation recipe index and retrieves the
// recipe nearest to a vulnerable snippet.
//
// The corpus is a directory of plain-text files, one recipe per file. It is
// embedded once at startup and never changes afterwards; position i in the
// index, the recipe text and the recipe name always refer to the same file.
package recipes

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"
)

// ErrNoRecipes is returned when the recipe directory is missing or holds no
// matching files. Callers treat it as "retrieval disabled", not a failure.
var ErrNoRecipes = errors.New("no recipes found")

// Recipe is one remediation guideline document.
type Recipe struct {
	// Name is the file name, e.g. "cwe-89-sql-injection.txt".
	Name string
	Text string
}

// LoadCorpus reads every file in dir matching pattern, ordered by file name.
func LoadCorpus(dir, pattern string) ([]Recipe, error) {
	info, err := os.Stat(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: directory %s does not exist", ErrNoRecipes, dir)
		}
		return nil, fmt.Errorf("stat recipes directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrNoRecipes, dir)
	}

	paths, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil {
		return nil, fmt.Errorf("bad recipe pattern %q: %w", pattern, err)
	}
	sort.Slice(paths, func(i, j int) bool {
		return filepath.Base(paths[i]) < filepath.Base(paths[j])
	})

	recipes := make([]Recipe, 0, len(paths))
	for _, path := range paths {
		fi, err := os.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("stat recipe %s: %w", path, err)
		}
		if fi.IsDir() {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading recipe %s: %w", path, err)
		}
		if !utf8.Valid(data) {
			return nil, fmt.Errorf("recipe %s is not valid UTF-8", path)
		}

		recipes = append(recipes, Recipe{
			Name: filepath.Base(path),
			Text: normalizeNewlines(string(data)),
		})
	}

	if len(recipes) == 0 {
		return nil, fmt.Errorf("%w: no files matching %q in %s", ErrNoRecipes, pattern, dir)
	}
	return recipes, nil
}

// normalizeNewlines converts CRLF and lone CR line endings to LF.
func normalizeNewlines(s string) string {
	if !strings.Contains(s, "\r") {
		return s
	}
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\r", "\n")
}

package recipes

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/fyrsmithlabs/codefixd/internal/logging"
	"github.com/fyrsmithlabs/codefixd/internal/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

// keywordEmbedder maps text to normalized keyword counts.
type keywordEmbedder struct {
	vocab []string

	mu        sync.Mutex
	queries   []string
	docCalls  int
	failDocs  error
	failQuery error
}

func newKeywordEmbedder() *keywordEmbedder {
	return &keywordEmbedder{vocab: []string{"sql", "query", "xss", "html", "path", "file"}}
}

func (e *keywordEmbedder) vector(text string) []float32 {
	lower := strings.ToLower(text)
	v := make([]float32, len(e.vocab)+1)
	var norm float64
	for i, w := range e.vocab {
		v[i] = float32(strings.Count(lower, w))
		norm += float64(v[i] * v[i])
	}
	// Bias component keeps every vector non-zero.
	v[len(e.vocab)] = 0.1
	norm += 0.01
	n := float32(math.Sqrt(norm))
	for i := range v {
		v[i] /= n
	}
	return v
}

func (e *keywordEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	e.docCalls++
	e.mu.Unlock()
	if e.failDocs != nil {
		return nil, e.failDocs
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = e.vector(t)
	}
	return out, nil
}

func (e *keywordEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	e.mu.Lock()
	e.queries = append(e.queries, text)
	e.mu.Unlock()
	if e.failQuery != nil {
		return nil, e.failQuery
	}
	return e.vector(text), nil
}

func writeRecipes(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
	return dir
}

var sampleRecipes = map[string]string{
	"b-sql.txt":  "Use parameterized SQL query placeholders; never build SQL by concatenation.",
	"a-xss.txt":  "Escape HTML output to prevent XSS; use contextual HTML encoding.",
	"c-path.txt": "Canonicalize file path input and reject path traversal outside the base file root.",
	"notes.md":   "not a recipe",
}

func TestLoadCorpus(t *testing.T) {
	dir := writeRecipes(t, sampleRecipes)

	corpus, err := LoadCorpus(dir, "*.txt")
	require.NoError(t, err)
	require.Len(t, corpus, 3)

	assert.Equal(t, "a-xss.txt", corpus[0].Name)
	assert.Equal(t, "b-sql.txt", corpus[1].Name)
	assert.Equal(t, "c-path.txt", corpus[2].Name)
	assert.Equal(t, sampleRecipes["b-sql.txt"], corpus[1].Text)
}

func TestLoadCorpus_NormalizesNewlines(t *testing.T) {
	dir := writeRecipes(t, map[string]string{"r.txt": "line one\r\nline two\rline three\n"})

	corpus, err := LoadCorpus(dir, "*.txt")
	require.NoError(t, err)
	assert.Equal(t, "line one\nline two\nline three\n", corpus[0].Text)
}

func TestLoadCorpus_SkipsDirectories(t *testing.T) {
	dir := writeRecipes(t, map[string]string{"real.txt": "x"})
	require.NoError(t, os.Mkdir(filepath.Join(dir, "dir.txt"), 0o755))

	corpus, err := LoadCorpus(dir, "*.txt")
	require.NoError(t, err)
	require.Len(t, corpus, 1)
	assert.Equal(t, "real.txt", corpus[0].Name)
}

func TestLoadCorpus_NoRecipes(t *testing.T) {
	tests := []struct {
		name string
		dir  func(t *testing.T) string
	}{
		{"missing dir", func(t *testing.T) string { return filepath.Join(t.TempDir(), "absent") }},
		{"empty dir", func(t *testing.T) string { return t.TempDir() }},
		{"no matching files", func(t *testing.T) string { return writeRecipes(t, map[string]string{"x.md": "x"}) }},
		{"file not dir", func(t *testing.T) string {
			dir := writeRecipes(t, map[string]string{"f.txt": "x"})
			return filepath.Join(dir, "f.txt")
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadCorpus(tt.dir(t), "*.txt")
			assert.ErrorIs(t, err, ErrNoRecipes)
		})
	}
}

func TestLoadCorpus_InvalidUTF8(t *testing.T) {
	dir := writeRecipes(t, map[string]string{"bad.txt": "ok \xff\xfe"})

	_, err := LoadCorpus(dir, "*.txt")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoRecipes)
}

func TestFlatIndex(t *testing.T) {
	idx := NewFlatIndex()
	require.NoError(t, idx.Build([][]float32{
		{0, 0},
		{3, 4},
		{1, 1},
	}))
	assert.Equal(t, 3, idx.Len())

	matches, err := idx.Nearest([]float32{3, 3}, 2)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, 1, matches[0].Position)
	assert.InDelta(t, 1.0, matches[0].Distance, 1e-9)
	assert.Equal(t, 2, matches[1].Position)

	matches, err = idx.Nearest([]float32{0, 0}, 10)
	require.NoError(t, err)
	assert.Len(t, matches, 3)
	assert.Zero(t, matches[0].Distance)
}

func TestFlatIndex_TieKeepsLowestPosition(t *testing.T) {
	idx := NewFlatIndex()
	require.NoError(t, idx.Build([][]float32{{1, 0}, {0, 1}, {1, 0}}))

	for i := 0; i < 5; i++ {
		matches, err := idx.Nearest([]float32{1, 0}, 1)
		require.NoError(t, err)
		assert.Equal(t, 0, matches[0].Position)
	}

	// Equidistant from both axes.
	matches, err := idx.Nearest([]float32{1, 1}, 3)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2}, positions(matches))
}

func TestFlatIndex_Errors(t *testing.T) {
	idx := NewFlatIndex()

	_, err := idx.Nearest([]float32{1}, 1)
	assert.ErrorIs(t, err, ErrEmptyIndex)

	assert.ErrorIs(t, idx.Build(nil), ErrEmptyIndex)
	assert.ErrorIs(t, idx.Build([][]float32{{1, 2}, {1}}), ErrDimensionMismatch)
	assert.ErrorIs(t, idx.Build([][]float32{{}}), ErrDimensionMismatch)

	require.NoError(t, idx.Build([][]float32{{1, 2}}))
	_, err = idx.Nearest([]float32{1, 2, 3}, 1)
	assert.ErrorIs(t, err, ErrDimensionMismatch)

	matches, err := idx.Nearest([]float32{1, 2}, 0)
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestChromemIndex_AgreesWithFlatOnUnitVectors(t *testing.T) {
	e := newKeywordEmbedder()
	var texts []string
	for _, name := range []string{"a-xss.txt", "b-sql.txt", "c-path.txt"} {
		texts = append(texts, sampleRecipes[name])
	}
	docs, err := e.EmbedDocuments(context.Background(), texts)
	require.NoError(t, err)

	flat := NewFlatIndex()
	require.NoError(t, flat.Build(docs))
	chr := NewChromemIndex()
	require.NoError(t, chr.Build(docs))
	assert.Equal(t, 3, chr.Len())

	for _, q := range []string{"sql query", "html xss", "file path", "sql html path"} {
		qv := e.vector(q)
		fm, err := flat.Nearest(qv, 3)
		require.NoError(t, err)
		cm, err := chr.Nearest(qv, 3)
		require.NoError(t, err)

		assert.Equal(t, positions(fm), positions(cm), "query %q", q)
		for i := range fm {
			assert.InDelta(t, fm[i].Distance, cm[i].Distance, 1e-3, "query %q", q)
		}
	}
}

func TestChromemIndex_Errors(t *testing.T) {
	idx := NewChromemIndex()
	_, err := idx.Nearest([]float32{1}, 1)
	assert.ErrorIs(t, err, ErrEmptyIndex)

	require.NoError(t, idx.Build([][]float32{{1, 0}, {0, 1}}))
	_, err = idx.Nearest([]float32{1, 0, 0}, 1)
	assert.ErrorIs(t, err, ErrDimensionMismatch)

	matches, err := idx.Nearest([]float32{1, 0}, 5)
	require.NoError(t, err)
	assert.Len(t, matches, 2)
}

func TestNewIndex(t *testing.T) {
	idx, err := NewIndex("flat")
	require.NoError(t, err)
	assert.IsType(t, &FlatIndex{}, idx)

	idx, err = NewIndex("chromem")
	require.NoError(t, err)
	assert.IsType(t, &ChromemIndex{}, idx)

	_, err = NewIndex("faiss")
	assert.Error(t, err)
}

func TestBuildQuery(t *testing.T) {
	assert.Equal(t,
		"Language: python\nCWE: CWE-89\nCode:\ncursor.execute(q)",
		BuildQuery("python", "CWE-89", "cursor.execute(q)"),
	)
	assert.Equal(t, "Language: \nCWE: \nCode:\n", BuildQuery("", "", ""))
}

func TestRetriever_Retrieve(t *testing.T) {
	for _, kind := range []string{"flat", "chromem"} {
		t.Run(kind, func(t *testing.T) {
			dir := writeRecipes(t, sampleRecipes)
			e := newKeywordEmbedder()
			idx, err := NewIndex(kind)
			require.NoError(t, err)

			r, err := Build(context.Background(), Options{Dir: dir, Embedder: e, Index: idx})
			require.NoError(t, err)
			assert.Equal(t, 3, r.Len())
			assert.Equal(t, []string{"a-xss.txt", "b-sql.txt", "c-path.txt"}, r.Names())

			code := `cursor.execute("SELECT * FROM users WHERE id=" + uid)  # sql query`
			rec, err := r.Retrieve(context.Background(), "python", "CWE-89", code)
			require.NoError(t, err)
			require.NotNil(t, rec)
			assert.Equal(t, "b-sql.txt", rec.Name)
			assert.Equal(t, sampleRecipes["b-sql.txt"], rec.Text)

			// The query string, not the raw code, is embedded.
			require.Len(t, e.queries, 1)
			assert.Equal(t, BuildQuery("python", "CWE-89", code), e.queries[0])

			again, err := r.Retrieve(context.Background(), "python", "CWE-89", code)
			require.NoError(t, err)
			assert.Equal(t, rec, again)
		})
	}
}

func TestRetriever_SingleRecipeAlwaysReturned(t *testing.T) {
	dir := writeRecipes(t, map[string]string{"only.txt": "generic secure coding advice"})
	r, err := Build(context.Background(), Options{Dir: dir, Embedder: newKeywordEmbedder()})
	require.NoError(t, err)

	rec, err := r.Retrieve(context.Background(), "go", "CWE-22", "os.Open(userPath)")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "only.txt", rec.Name)
}

func TestRetriever_DisabledWhenNoRecipes(t *testing.T) {
	logger := logging.NewTestLogger()
	e := newKeywordEmbedder()

	r, err := Build(context.Background(), Options{
		Dir:      filepath.Join(t.TempDir(), "missing"),
		Embedder: e,
		Logger:   logger.Logger,
	})
	require.NoError(t, err)
	require.NotNil(t, r)
	assert.Zero(t, r.Len())
	logger.AssertLogged(t, zapcore.WarnLevel, "recipe retrieval disabled")

	rec, err := r.Retrieve(context.Background(), "python", "CWE-89", "x")
	require.NoError(t, err)
	assert.Nil(t, rec)

	// Nothing is embedded when retrieval is disabled.
	assert.Zero(t, e.docCalls)
	assert.Empty(t, e.queries)
}

func TestRetriever_BuildErrors(t *testing.T) {
	dir := writeRecipes(t, sampleRecipes)

	_, err := Build(context.Background(), Options{Dir: dir})
	assert.Error(t, err)

	e := newKeywordEmbedder()
	e.failDocs = errors.New("model not loaded")
	_, err = Build(context.Background(), Options{Dir: dir, Embedder: e})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model not loaded")
}

func TestRetriever_QueryEmbeddingError(t *testing.T) {
	dir := writeRecipes(t, sampleRecipes)
	e := newKeywordEmbedder()
	tel := telemetry.NewTestTelemetry()

	r, err := Build(context.Background(), Options{Dir: dir, Embedder: e, Tracer: tel.Tracer("test")})
	require.NoError(t, err)

	e.failQuery = errors.New("encoder crashed")
	rec, err := r.Retrieve(context.Background(), "c", "CWE-787", "strcpy(buf, in)")
	require.Error(t, err)
	assert.Nil(t, rec)
	tel.AssertSpanExists(t, "recipes.Retrieve")
}

func TestRetriever_ConcurrentRetrieve(t *testing.T) {
	dir := writeRecipes(t, sampleRecipes)
	r, err := Build(context.Background(), Options{Dir: dir, Embedder: newKeywordEmbedder()})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec, err := r.Retrieve(context.Background(), "js", "CWE-79", "el.innerHTML = html; // xss")
			assert.NoError(t, err)
			if assert.NotNil(t, rec) {
				assert.Equal(t, "a-xss.txt", rec.Name)
			}
		}()
	}
	wg.Wait()
}

func positions(ms []Match) []int {
	out := make([]int, len(ms))
	for i, m := range ms {
		out[i] = m.Position
	}
	return out
}

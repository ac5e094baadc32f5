package http

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/fyrsmithlabs/codefixd/internal/generation"
	"github.com/fyrsmithlabs/codefixd/internal/metrics"
	"github.com/fyrsmithlabs/codefixd/internal/recipes"
	"github.com/fyrsmithlabs/codefixd/internal/remediation"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
)

// keywordEmbedder places text on one axis per vulnerability family.
type keywordEmbedder struct{}

func (keywordEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		v, err := keywordEmbedder{}.EmbedQuery(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (keywordEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	lower := strings.ToLower(text)
	v := []float32{0, 0}
	if strings.Contains(lower, "sql") || strings.Contains(lower, "cwe-89") {
		v[0] = 1
	}
	if strings.Contains(lower, "path") || strings.Contains(lower, "cwe-22") {
		v[1] = 1
	}
	return v, nil
}

// cannedModel answers every prompt with the same marked-up fix.
type cannedModel struct {
	mu      sync.Mutex
	prompts []string
}

func (m *cannedModel) GenerateContent(_ context.Context, messages []llms.MessageContent, _ ...llms.CallOption) (*llms.ContentResponse, error) {
	m.mu.Lock()
	for _, msg := range messages {
		for _, part := range msg.Parts {
			if text, ok := part.(llms.TextContent); ok {
				m.prompts = append(m.prompts, text.Text)
			}
		}
	}
	m.mu.Unlock()
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{
		Content: "<<<FIXED_CODE>>>\n" +
			"cursor.execute(\"SELECT * FROM users WHERE id = %s\", (user_id,))\n" +
			"<<<END_FIXED_CODE>>>\n" +
			"<<<EXPLANATION>>>\nUse a parameterized query.\n<<<END_EXPLANATION>>>",
		GenerationInfo: map[string]any{"PromptTokens": 120, "CompletionTokens": 40},
	}}}, nil
}

func (m *cannedModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, options...)
}

func TestLocalFix_ComposedPipeline(t *testing.T) {
	ctx := context.Background()

	recipeDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(recipeDir, "sql_injection.txt"),
		[]byte("CWE-89 SQL injection: use parameterized queries, never string formatting."), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(recipeDir, "path_traversal.txt"),
		[]byte("CWE-22 path traversal: clean the path and check it stays under the base."), 0o644))

	retriever, err := recipes.Build(ctx, recipes.Options{
		Dir:      recipeDir,
		Embedder: keywordEmbedder{},
		Index:    recipes.NewFlatIndex(),
	})
	require.NoError(t, err)

	model := &cannedModel{}
	gen, err := generation.NewLLMGenerator(model, generation.Options{
		ModelName:   "pipeline-coder",
		MaxTokens:   512,
		CountTokens: func(text string) int { return len(strings.Fields(text)) },
	})
	require.NoError(t, err)

	logsDir := t.TempDir()
	sink, err := metrics.NewCSVSink(logsDir)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sink.Close() })

	svc, err := remediation.NewService(remediation.Deps{Retriever: retriever, Generator: gen, Sink: sink})
	require.NoError(t, err)

	s, err := NewServer(nil, Options{Fixer: svc, Recipes: retriever, Gatherer: prometheus.NewRegistry()})
	require.NoError(t, err)

	body := `{"language":"python","cwe":"CWE-89","code":"query = f\"SELECT * FROM users WHERE id = {user_id}\""}`
	const n = 3
	for i := 0; i < n; i++ {
		rec := do(s, http.MethodPost, "/local_fix", body)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var fields map[string]json.RawMessage
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &fields))
		for _, key := range []string{"fixed_code", "diff", "explanation", "model_used", "token_usage", "latency_ms"} {
			assert.Contains(t, fields, key)
		}

		var resp remediation.Response
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Contains(t, resp.FixedCode, "%s")
		assert.Contains(t, resp.Diff, "-query = f\"SELECT")
		assert.Equal(t, "Use a parameterized query.", resp.Explanation)
		assert.Equal(t, "pipeline-coder", resp.ModelUsed)
		assert.Equal(t, 120, resp.TokenUsage.InputTokens)
		assert.Equal(t, 40, resp.TokenUsage.OutputTokens)
		assert.GreaterOrEqual(t, resp.LatencyMS, int64(0))
	}

	require.Len(t, model.prompts, n)
	assert.Contains(t, model.prompts[0], "parameterized queries")
	assert.NotContains(t, model.prompts[0], "path traversal")

	f, err := os.Open(filepath.Join(logsDir, metrics.CSVFileName))
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, n+1)
	assert.Equal(t, []string{"language", "cwe", "model_used", "input_tokens", "output_tokens", "latency_ms"}, rows[0])
	for _, row := range rows[1:] {
		assert.Equal(t, []string{"python", "CWE-89", "pipeline-coder", "120", "40"}, row[:5])
		latency, err := strconv.Atoi(row[5])
		require.NoError(t, err)
		assert.GreaterOrEqual(t, latency, 0)
	}
}

package remediation

import (
	"context"

	"github.com/fyrsmithlabs/codefixd/internal/recipes"
	"github.com/fyrsmithlabs/codefixd/internal/secrets"
)

// Request asks for a fix of one snippet.
type Request struct {
	Language string `json:"language"`
	CWE      string `json:"cwe"`
	Code     string `json:"code"`
}

// TokenUsage reports model token counts.
type TokenUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Response is the result of a fix.
type Response struct {
	FixedCode   string     `json:"fixed_code"`
	Diff        string     `json:"diff"`
	Explanation string     `json:"explanation"`
	ModelUsed   string     `json:"model_used"`
	TokenUsage  TokenUsage `json:"token_usage"`
	// LatencyMS is the generation latency in milliseconds.
	LatencyMS int64 `json:"latency_ms"`
}

// Retriever selects guidance for a request. A nil recipe means none.
type Retriever interface {
	Retrieve(ctx context.Context, language, cwe, code string) (*recipes.Recipe, error)
}

// Scrubber redacts secrets from code.
type Scrubber interface {
	Scrub(content string) secrets.Result
}

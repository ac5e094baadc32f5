// Package generation prompts a code model for a secure rewrite of a snippet
// and parses its marker-delimited answer.
package generation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fyrsmithlabs/codefixd/internal/logging"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/schema"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const instrumentationName = "github.com/fyrsmithlabs/codefixd/internal/generation"

// ErrEmptyResponse is returned when the runtime answers with no choices.
var ErrEmptyResponse = errors.New("model returned no choices")

// Input is one remediation request as seen by the model.
type Input struct {
	Language string
	CWE      string
	Code     string
	// Guidelines is the retrieved recipe text, or "" when none was found.
	Guidelines string
}

// Output is the parsed model answer.
type Output struct {
	FixedCode    string
	Explanation  string
	InputTokens  int
	OutputTokens int
	// Latency covers the model call only.
	Latency time.Duration
}

// Generator produces a fix for one snippet.
type Generator interface {
	Generate(ctx context.Context, in Input) (*Output, error)
	// Model is the identifier reported as model_used.
	Model() string
}

// TokenCounter counts tokens in text for runtimes that report no usage.
type TokenCounter func(text string) int

// Options configures an LLMGenerator.
type Options struct {
	// ModelName is reported by Model() and used for token counting.
	ModelName   string
	MaxTokens   int
	Temperature float64
	// CountTokens defaults to llms.CountTokens for ModelName.
	CountTokens TokenCounter
	Logger      *logging.Logger
	Tracer      trace.Tracer
}

// LLMGenerator runs generation through a langchaingo model. It holds no
// per-request state and is safe for concurrent use.
type LLMGenerator struct {
	llm         llms.Model
	name        string
	maxTokens   int
	temperature float64
	countTokens TokenCounter
	logger      *logging.Logger
	tracer      trace.Tracer
}

// NewLLMGenerator wraps llm.
func NewLLMGenerator(llm llms.Model, opts Options) (*LLMGenerator, error) {
	if llm == nil {
		return nil, errors.New("generation: model is required")
	}
	if opts.MaxTokens <= 0 {
		return nil, fmt.Errorf("generation: max tokens must be positive, got %d", opts.MaxTokens)
	}
	if opts.CountTokens == nil {
		name := opts.ModelName
		opts.CountTokens = func(text string) int { return llms.CountTokens(name, text) }
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewNop()
	}
	if opts.Tracer == nil {
		opts.Tracer = otel.Tracer(instrumentationName)
	}
	return &LLMGenerator{
		llm:         llm,
		name:        opts.ModelName,
		maxTokens:   opts.MaxTokens,
		temperature: opts.Temperature,
		countTokens: opts.CountTokens,
		logger:      opts.Logger,
		tracer:      opts.Tracer,
	}, nil
}

// Model returns the configured model identifier.
func (g *LLMGenerator) Model() string {
	return g.name
}

// Generate prompts the model once and parses the answer. Runtime errors are
// returned as is; unparseable output is not an error.
func (g *LLMGenerator) Generate(ctx context.Context, in Input) (*Output, error) {
	ctx, span := g.tracer.Start(ctx, "generation.Generate",
		trace.WithAttributes(
			attribute.String("model", g.name),
			attribute.String("language", in.Language),
			attribute.String("cwe", in.CWE),
			attribute.Bool("guidelines", in.Guidelines != ""),
		),
	)
	defer span.End()

	prompt := BuildPrompt(in)
	messages := []llms.MessageContent{
		llms.TextParts(schema.ChatMessageTypeHuman, prompt),
	}

	g.logger.Trace(ctx, "model prompt", zap.String("model", g.name), zap.String("prompt", prompt))

	start := time.Now()
	resp, err := g.llm.GenerateContent(ctx, messages,
		llms.WithMaxTokens(g.maxTokens),
		llms.WithTemperature(g.temperature),
	)
	latency := time.Since(start)
	if err == nil && (resp == nil || len(resp.Choices) == 0 || resp.Choices[0] == nil) {
		err = ErrEmptyResponse
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	choice := resp.Choices[0]
	raw := choice.Content
	g.logger.Trace(ctx, "model output",
		zap.String("model", g.name),
		zap.String("output", raw),
		zap.Duration("latency", latency),
	)

	inputTokens := g.tokens(choice.GenerationInfo, "PromptTokens", prompt)
	outputTokens := g.tokens(choice.GenerationInfo, "CompletionTokens", raw)

	p := parseOutput(raw)
	if !p.fixedFound {
		g.logger.Warn(ctx, "failed to parse FIXED_CODE from model output",
			zap.String("model", g.name),
			zap.Int("output_len", len(raw)),
		)
	}

	span.SetAttributes(
		attribute.Int("tokens.input", inputTokens),
		attribute.Int("tokens.output", outputTokens),
		attribute.Bool("parsed", p.fixedFound),
	)

	return &Output{
		FixedCode:    p.fixedCode,
		Explanation:  p.explanation,
		InputTokens:  inputTokens,
		OutputTokens: outputTokens,
		Latency:      latency,
	}, nil
}

// tokens prefers the runtime's usage report. Servers that omit usage report
// zero, which is impossible for non-empty text, so zero falls back too.
func (g *LLMGenerator) tokens(info map[string]any, key, text string) int {
	if n, ok := usage(info, key); ok && (n > 0 || text == "") {
		return n
	}
	if n := g.countTokens(text); n > 0 {
		return n
	}
	return 0
}

// usage reads a non-negative token count from generation info. Runtimes
// report these as int or, after a JSON round trip, float64.
func usage(info map[string]any, key string) (int, bool) {
	v, ok := info[key]
	if !ok {
		return 0, false
	}
	var n int
	switch t := v.(type) {
	case int:
		n = t
	case int32:
		n = int(t)
	case int64:
		n = int(t)
	case float64:
		n = int(t)
	default:
		return 0, false
	}
	if n < 0 {
		return 0, false
	}
	return n, true
}

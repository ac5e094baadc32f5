// Package remediation runs the fix pipeline: retrieve a recipe, prompt the
// model, diff the answer and record usage.
package remediation

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/fyrsmithlabs/codefixd/internal/diff"
	"github.com/fyrsmithlabs/codefixd/internal/generation"
	"github.com/fyrsmithlabs/codefixd/internal/logging"
	"github.com/fyrsmithlabs/codefixd/internal/metrics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const instrumentationName = "github.com/fyrsmithlabs/codefixd/internal/remediation"

var (
	// ErrServiceClosed is returned by Fix after Close.
	ErrServiceClosed = errors.New("remediation service is closed")

	// Stage errors wrap whatever failed inside Fix.
	ErrRetrieval  = errors.New("retrieving recipe")
	ErrGeneration = errors.New("generating fix")
	ErrMetrics    = errors.New("recording metrics")
)

// Deps are the collaborators of a Service. Retriever, Generator and Sink are
// required.
type Deps struct {
	Retriever Retriever
	Generator generation.Generator
	Sink      metrics.Sink
	// Scrubber, when set, redacts secrets from code before anything else
	// sees it.
	Scrubber Scrubber
	Logger   *logging.Logger
	Tracer   trace.Tracer
	Meter    metric.Meter
}

// Service handles fix requests. All collaborators are read-only after
// construction, so Fix may run concurrently.
type Service struct {
	retriever Retriever
	generator generation.Generator
	sink      metrics.Sink
	scrubber  Scrubber
	logger    *logging.Logger

	tracer       trace.Tracer
	meter        metric.Meter
	fixCounter   metric.Int64Counter
	redactions   metric.Int64Counter
	recipeLookup metric.Int64Counter

	mu     sync.RWMutex
	closed bool
}

// NewService validates deps and returns a Service.
func NewService(deps Deps) (*Service, error) {
	if deps.Retriever == nil {
		return nil, errors.New("retriever is required")
	}
	if deps.Generator == nil {
		return nil, errors.New("generator is required")
	}
	if deps.Sink == nil {
		return nil, errors.New("metrics sink is required")
	}
	if deps.Logger == nil {
		deps.Logger = logging.NewNop()
	}
	if deps.Tracer == nil {
		deps.Tracer = otel.Tracer(instrumentationName)
	}
	if deps.Meter == nil {
		deps.Meter = otel.Meter(instrumentationName)
	}

	s := &Service{
		retriever: deps.Retriever,
		generator: deps.Generator,
		sink:      deps.Sink,
		scrubber:  deps.Scrubber,
		logger:    deps.Logger,
		tracer:    deps.Tracer,
		meter:     deps.Meter,
	}
	s.initMetrics()
	return s, nil
}

func (s *Service) initMetrics() {
	var err error

	s.fixCounter, err = s.meter.Int64Counter(
		"codefix.remediation.fixes_total",
		metric.WithDescription("Total number of fix requests by outcome"),
		metric.WithUnit("{fix}"),
	)
	if err != nil {
		s.logger.Warn(context.Background(), "failed to create fix counter", zap.Error(err))
	}

	s.redactions, err = s.meter.Int64Counter(
		"codefix.remediation.redactions_total",
		metric.WithDescription("Total number of secrets redacted from submitted code"),
		metric.WithUnit("{secret}"),
	)
	if err != nil {
		s.logger.Warn(context.Background(), "failed to create redaction counter", zap.Error(err))
	}

	s.recipeLookup, err = s.meter.Int64Counter(
		"codefix.remediation.recipe_lookups_total",
		metric.WithDescription("Total number of recipe lookups by whether a recipe was found"),
		metric.WithUnit("{lookup}"),
	)
	if err != nil {
		s.logger.Warn(context.Background(), "failed to create recipe lookup counter", zap.Error(err))
	}
}

// Model reports the generator's model identifier.
func (s *Service) Model() string {
	return s.generator.Model()
}

// Fix runs retrieval, generation, diffing and metrics recording in order.
// Any failure aborts the request; nothing is retried.
func (s *Service) Fix(ctx context.Context, req Request) (*Response, error) {
	ctx, span := s.tracer.Start(ctx, "remediation.Fix")
	defer span.End()

	span.SetAttributes(
		attribute.String("language", req.Language),
		attribute.String("cwe", req.CWE),
		attribute.Int("code.length", len(req.Code)),
	)

	s.mu.RLock()
	closed := s.closed
	s.mu.RUnlock()
	if closed {
		return nil, ErrServiceClosed
	}

	resp, err := s.fix(ctx, req)
	outcome := "ok"
	if err != nil {
		outcome = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.logger.Error(ctx, "local_fix failed",
			zap.String("language", req.Language),
			zap.String("cwe", req.CWE),
			zap.Error(err),
		)
	}
	if s.fixCounter != nil {
		s.fixCounter.Add(ctx, 1, metric.WithAttributes(
			attribute.String("outcome", outcome),
		))
	}
	return resp, err
}

func (s *Service) fix(ctx context.Context, req Request) (*Response, error) {
	code := req.Code
	if s.scrubber != nil {
		res := s.scrubber.Scrub(code)
		if res.HasFindings() {
			s.logger.Warn(ctx, "redacted secrets from submitted code",
				zap.Int("count", len(res.Findings)),
				zap.Strings("rules", res.RuleIDs()),
			)
			if s.redactions != nil {
				s.redactions.Add(ctx, int64(len(res.Findings)))
			}
		}
		code = res.Scrubbed
	}

	recipe, err := s.retriever.Retrieve(ctx, req.Language, req.CWE, code)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRetrieval, err)
	}

	var guidelines, recipeName string
	if recipe != nil {
		guidelines, recipeName = recipe.Text, recipe.Name
	}
	if s.recipeLookup != nil {
		s.recipeLookup.Add(ctx, 1, metric.WithAttributes(attribute.Bool("found", recipe != nil)))
	}
	trace.SpanFromContext(ctx).SetAttributes(attribute.String("recipe.name", recipeName))

	s.logger.Info(ctx, "received local_fix request",
		zap.String("language", req.Language),
		zap.String("cwe", req.CWE),
		zap.String("rag_recipe", recipeName),
	)

	out, err := s.generator.Generate(ctx, generation.Input{
		Language:   req.Language,
		CWE:        req.CWE,
		Code:       code,
		Guidelines: guidelines,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrGeneration, err)
	}

	resp := &Response{
		FixedCode:   out.FixedCode,
		Diff:        diff.Unified(code, out.FixedCode),
		Explanation: out.Explanation,
		ModelUsed:   s.generator.Model(),
		TokenUsage: TokenUsage{
			InputTokens:  out.InputTokens,
			OutputTokens: out.OutputTokens,
		},
		LatencyMS: out.Latency.Milliseconds(),
	}

	record := metrics.Record{
		Language:     req.Language,
		CWE:          req.CWE,
		ModelUsed:    resp.ModelUsed,
		InputTokens:  resp.TokenUsage.InputTokens,
		OutputTokens: resp.TokenUsage.OutputTokens,
		LatencyMS:    resp.LatencyMS,
	}
	if err := s.sink.Write(ctx, record); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMetrics, err)
	}
	s.logger.Info(ctx, "metrics recorded", record.Field())

	return resp, nil
}

// Close stops accepting requests. Collaborators are owned by the caller.
func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

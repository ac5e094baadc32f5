package recipes

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fyrsmithlabs/codefixd/internal/embeddings"
	"github.com/fyrsmithlabs/codefixd/internal/logging"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const instrumentationName = "github.com/fyrsmithlabs/codefixd/internal/recipes"

// Options configures Build.
type Options struct {
	Dir     string
	Pattern string
	// Embedder embeds the corpus and every query.
	Embedder embeddings.Embedder
	// Index defaults to a FlatIndex.
	Index  Index
	Logger *logging.Logger
	Tracer trace.Tracer
}

// Retriever returns the nearest recipe for a query. It is read-only after
// Build and safe for concurrent use.
type Retriever struct {
	embedder embeddings.Embedder
	index    Index
	recipes  []Recipe
	logger   *logging.Logger
	tracer   trace.Tracer
}

// Build loads and embeds the corpus. A missing or empty corpus is logged as
// a warning and yields a Retriever that always returns no recipe; embedding
// and index failures are returned.
func Build(ctx context.Context, opts Options) (*Retriever, error) {
	if opts.Embedder == nil {
		return nil, errors.New("recipes: embedder is required")
	}
	if opts.Pattern == "" {
		opts.Pattern = "*.txt"
	}
	if opts.Index == nil {
		opts.Index = NewFlatIndex()
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewNop()
	}
	if opts.Tracer == nil {
		opts.Tracer = otel.Tracer(instrumentationName)
	}

	r := &Retriever{
		embedder: opts.Embedder,
		logger:   opts.Logger,
		tracer:   opts.Tracer,
	}

	corpus, err := LoadCorpus(opts.Dir, opts.Pattern)
	if errors.Is(err, ErrNoRecipes) {
		opts.Logger.Warn(ctx, "recipe retrieval disabled", zap.String("dir", opts.Dir), zap.Error(err))
		RecipesLoaded.Set(0)
		return r, nil
	}
	if err != nil {
		return nil, err
	}

	texts := make([]string, len(corpus))
	for i, rec := range corpus {
		texts[i] = rec.Text
	}
	vectors, err := opts.Embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embedding recipes: %w", err)
	}
	if len(vectors) != len(corpus) {
		return nil, fmt.Errorf("embedding recipes: got %d vectors for %d recipes", len(vectors), len(corpus))
	}
	if err := opts.Index.Build(vectors); err != nil {
		return nil, fmt.Errorf("building recipe index: %w", err)
	}

	r.index = opts.Index
	r.recipes = corpus
	RecipesLoaded.Set(float64(len(corpus)))

	opts.Logger.Info(ctx, "recipe index built",
		zap.Int("recipes", len(corpus)),
		zap.Int("dimension", len(vectors[0])),
	)
	return r, nil
}

// BuildQuery formats the retrieval query for a request.
func BuildQuery(language, cwe, code string) string {
	return "Language: " + language + "\nCWE: " + cwe + "\nCode:\n" + code
}

// Retrieve returns the single nearest recipe, or nil when retrieval is
// disabled. There is no relevance threshold.
func (r *Retriever) Retrieve(ctx context.Context, language, cwe, code string) (*Recipe, error) {
	if r == nil || r.index == nil || r.index.Len() == 0 {
		RetrievalsTotal.WithLabelValues("disabled").Inc()
		return nil, nil
	}

	ctx, span := r.tracer.Start(ctx, "recipes.Retrieve")
	defer span.End()

	start := time.Now()
	defer func() { RetrievalDuration.Observe(time.Since(start).Seconds()) }()

	rec, dist, err := r.nearest(ctx, BuildQuery(language, cwe, code))
	if err != nil {
		RetrievalsTotal.WithLabelValues("error").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	RetrievalsTotal.WithLabelValues("hit").Inc()
	span.SetAttributes(
		attribute.String("recipe.name", rec.Name),
		attribute.Float64("recipe.distance", dist),
	)
	r.logger.Debug(ctx, "recipe retrieved", zap.String("recipe", rec.Name), zap.Float64("distance", dist))
	return rec, nil
}

func (r *Retriever) nearest(ctx context.Context, query string) (*Recipe, float64, error) {
	vec, err := r.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, 0, fmt.Errorf("embedding query: %w", err)
	}
	matches, err := r.index.Nearest(vec, 1)
	if err != nil {
		return nil, 0, fmt.Errorf("searching recipe index: %w", err)
	}
	if len(matches) == 0 {
		return nil, 0, ErrEmptyIndex
	}
	m := matches[0]
	if m.Position < 0 || m.Position >= len(r.recipes) {
		return nil, 0, fmt.Errorf("index returned position %d outside corpus of %d", m.Position, len(r.recipes))
	}
	rec := r.recipes[m.Position]
	return &rec, m.Distance, nil
}

// Len returns the number of indexed recipes.
func (r *Retriever) Len() int {
	if r == nil {
		return 0
	}
	return len(r.recipes)
}

// Names returns recipe names in index order.
func (r *Retriever) Names() []string {
	if r == nil {
		return nil
	}
	names := make([]string, len(r.recipes))
	for i, rec := range r.recipes {
		names[i] = rec.Name
	}
	return names
}

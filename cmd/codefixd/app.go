package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/codefixd/internal/config"
	"github.com/fyrsmithlabs/codefixd/internal/embeddings"
	"github.com/fyrsmithlabs/codefixd/internal/generation"
	"github.com/fyrsmithlabs/codefixd/internal/logging"
	"github.com/fyrsmithlabs/codefixd/internal/metrics"
	"github.com/fyrsmithlabs/codefixd/internal/recipes"
	"github.com/fyrsmithlabs/codefixd/internal/remediation"
	"github.com/fyrsmithlabs/codefixd/internal/secrets"
	"github.com/fyrsmithlabs/codefixd/internal/telemetry"
)

const serviceLogName = "service.log"

// app holds the process-wide dependencies. Closers run in reverse order of
// construction.
type app struct {
	cfg       *config.Config
	logger    *logging.Logger
	telemetry *telemetry.Telemetry
	retriever *recipes.Retriever
	service   *remediation.Service

	closers []func(context.Context) error
}

type appOptions struct {
	// stdout disables console logging when false, regardless of config.
	stdout bool
	// retrievalOnly stops after the recipe index is built.
	retrievalOnly bool
}

// loggingConfig maps the logging and logs sections onto a logger config.
func loggingConfig(cfg *config.Config, stdout bool) (*logging.Config, error) {
	level, err := logging.LevelFromString(cfg.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Logging.Level, err)
	}
	lc := logging.NewDefaultConfig()
	lc.Level = level
	lc.Format = cfg.Logging.Format
	lc.Output.Stdout = cfg.Logging.Stdout && stdout
	lc.Output.File = filepath.Join(cfg.Logs.Dir, serviceLogName)
	return lc, nil
}

// newApp loads configuration and builds every dependency of the pipeline.
//
// Initialization order:
//  1. Configuration
//  2. Logger and telemetry
//  3. Embedding provider and recipe index
//  4. Model backend and generator
//  5. Metrics sinks (CSV, Prometheus, optional NATS)
//  6. Remediation service
func newApp(ctx context.Context, opts appOptions) (_ *app, err error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg}
	defer func() {
		if err != nil {
			_ = a.close(context.Background())
		}
	}()

	lc, err := loggingConfig(cfg, opts.stdout)
	if err != nil {
		return nil, err
	}
	a.logger, err = logging.NewLogger(lc, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	a.onClose(func(context.Context) error { return a.logger.Close() })

	a.telemetry, err = telemetry.New(ctx, telemetry.FromAppConfig(cfg.Telemetry, version))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	a.onClose(a.telemetry.Shutdown)

	a.logger.Info(ctx, "starting codefixd",
		zap.String("version", version),
		zap.String("model_provider", cfg.Model.Provider),
		zap.String("model", cfg.Model.Name),
		zap.String("embeddings", cfg.Embeddings.Provider),
		zap.Bool("telemetry", a.telemetry.IsEnabled()),
	)

	embedder, err := embeddings.NewProvider(embeddings.ProviderConfig{
		Provider: cfg.Embeddings.Provider,
		Model:    cfg.Embeddings.Model,
		BaseURL:  cfg.Embeddings.BaseURL,
		APIKey:   cfg.Embeddings.APIKey.Value(),
		CacheDir: cfg.Embeddings.CacheDir,
		Meter:    a.telemetry.Meter("github.com/fyrsmithlabs/codefixd/internal/embeddings"),
		Logger:   a.logger.Underlying(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embeddings: %w", err)
	}
	a.onClose(func(context.Context) error { return embedder.Close() })

	index, err := recipes.NewIndex(cfg.Recipes.Index)
	if err != nil {
		return nil, err
	}
	a.retriever, err = recipes.Build(ctx, recipes.Options{
		Dir:      cfg.Recipes.Dir,
		Pattern:  cfg.Recipes.Pattern,
		Embedder: embedder,
		Index:    index,
		Logger:   a.logger,
		Tracer:   a.telemetry.Tracer("github.com/fyrsmithlabs/codefixd/internal/recipes"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build recipe index: %w", err)
	}
	if opts.retrievalOnly {
		return a, nil
	}

	llm, err := generation.NewModel(cfg.Model)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize model: %w", err)
	}
	generator, err := generation.NewLLMGenerator(llm, generation.Options{
		ModelName:   cfg.Model.Name,
		MaxTokens:   cfg.Model.MaxNewTokens,
		Temperature: cfg.Model.Temperature,
		Logger:      a.logger,
		Tracer:      a.telemetry.Tracer("github.com/fyrsmithlabs/codefixd/internal/generation"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize generator: %w", err)
	}

	sink, err := newSink(cfg, prometheus.DefaultRegisterer)
	if err != nil {
		return nil, err
	}
	a.onClose(func(context.Context) error { return sink.Close() })

	var scrubber remediation.Scrubber
	if cfg.Remediation.ScrubSecrets {
		scrubber = secrets.New()
	}

	a.service, err = remediation.NewService(remediation.Deps{
		Retriever: a.retriever,
		Generator: generator,
		Sink:      sink,
		Scrubber:  scrubber,
		Logger:    a.logger,
		Tracer:    a.telemetry.Tracer("github.com/fyrsmithlabs/codefixd/internal/remediation"),
		Meter:     a.telemetry.Meter("github.com/fyrsmithlabs/codefixd/internal/remediation"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize remediation service: %w", err)
	}
	a.onClose(func(context.Context) error { return a.service.Close() })

	a.logger.Info(ctx, "dependencies initialized",
		zap.Int("recipes", a.retriever.Len()),
		zap.String("recipe_index", cfg.Recipes.Index),
		zap.Bool("nats_metrics", cfg.Metrics.NATSURL != ""),
		zap.Bool("sqlite_metrics", cfg.Metrics.SQLitePath != ""),
		zap.Bool("scrub_secrets", cfg.Remediation.ScrubSecrets),
	)
	return a, nil
}

// newSink fans metrics records out to metrics.csv, Prometheus and, when
// configured, NATS and SQLite.
func newSink(cfg *config.Config, reg prometheus.Registerer) (metrics.Sink, error) {
	csvSink, err := metrics.NewCSVSink(cfg.Logs.Dir)
	if err != nil {
		return nil, fmt.Errorf("failed to open metrics csv: %w", err)
	}
	sinks := metrics.Fanout{csvSink, metrics.NewPrometheusSink(reg)}

	if cfg.Metrics.NATSURL != "" {
		natsSink, err := metrics.DialNATS(cfg.Metrics.NATSURL, cfg.Metrics.NATSSubject)
		if err != nil {
			_ = sinks.Close()
			return nil, fmt.Errorf("failed to connect to NATS: %w", err)
		}
		sinks = append(sinks, natsSink)
	}

	if cfg.Metrics.SQLitePath != "" {
		sqliteSink, err := metrics.OpenSQLiteSink(cfg.Metrics.SQLitePath)
		if err != nil {
			_ = sinks.Close()
			return nil, fmt.Errorf("failed to open metrics database: %w", err)
		}
		sinks = append(sinks, sqliteSink)
	}
	return sinks, nil
}

func (a *app) onClose(fn func(context.Context) error) {
	a.closers = append(a.closers, fn)
}

// close releases dependencies in reverse order of construction.
func (a *app) close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func (a *app) shutdownTimeout() time.Duration {
	if d := a.cfg.Server.ShutdownTimeout.Duration(); d > 0 {
		return d
	}
	return 10 * time.Second
}

// Package http serves the remediation API over HTTP.
package http

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/fyrsmithlabs/codefixd/internal/logging"
	"github.com/fyrsmithlabs/codefixd/internal/remediation"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// Fixer runs the remediation pipeline.
type Fixer interface {
	Fix(ctx context.Context, req remediation.Request) (*remediation.Response, error)
	Model() string
}

// RecipeCounter reports the size of the recipe index.
type RecipeCounter interface {
	Len() int
}

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int
}

// Options are the server's collaborators. Fixer is required.
type Options struct {
	Fixer   Fixer
	Recipes RecipeCounter
	// Gatherer backs GET /metrics; defaults to prometheus.DefaultGatherer.
	Gatherer prometheus.Gatherer
	Meter    metric.Meter
	Logger   *logging.Logger
}

// Server provides the HTTP endpoints.
type Server struct {
	echo    *echo.Echo
	fixer   Fixer
	recipes RecipeCounter
	logger  *logging.Logger
	config  *Config
}

// NewServer creates a new HTTP server.
func NewServer(cfg *Config, opts Options) (*Server, error) {
	if opts.Fixer == nil {
		return nil, fmt.Errorf("fixer cannot be nil")
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewNop()
	}
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}
	if cfg == nil {
		cfg = &Config{
			Host: "0.0.0.0",
			Port: 8000,
		}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:    e,
		fixer:   opts.Fixer,
		recipes: opts.Recipes,
		logger:  opts.Logger,
		config:  cfg,
	}

	e.Use(middleware.Recover())
	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: uuid.NewString,
		RequestIDHandler: func(c echo.Context, id string) {
			req := c.Request()
			c.SetRequest(req.WithContext(logging.WithRequestID(req.Context(), id)))
		},
	}))
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"*"},
		AllowHeaders: []string{"*"},
	}))
	e.Use(s.accessLog)
	e.Use(NewHTTPMetrics(opts.Meter, opts.Logger).MetricsMiddleware())

	s.registerRoutes(opts.Gatherer)
	return s, nil
}

func (s *Server) accessLog(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		err := next(c)
		if err != nil {
			c.Error(err)
		}

		s.logger.Info(c.Request().Context(), "http request",
			zap.String("method", c.Request().Method),
			zap.String("uri", c.Request().RequestURI),
			zap.Int("status", c.Response().Status),
			zap.Duration("duration", time.Since(start)),
		)
		return err
	}
}

func (s *Server) registerRoutes(gatherer prometheus.Gatherer) {
	s.echo.GET("/health", s.handleHealth)
	s.echo.POST("/local_fix", s.handleLocalFix)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
}

// ServeHTTP lets the server be mounted or exercised with httptest.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return net.JoinHostPort(s.config.Host, strconv.Itoa(s.config.Port))
}

// Start serves until Shutdown. It returns nil after a graceful shutdown.
func (s *Server) Start() error {
	addr := s.Addr()
	s.logger.Info(context.Background(), "starting http server", zap.String("addr", addr))
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info(ctx, "shutting down http server")
	return s.echo.Shutdown(ctx)
}

// Package mcp exposes the remediation pipeline as a Model Context Protocol
// tool.
package mcp

import (
	"context"
	"fmt"
	"time"

	"github.com/fyrsmithlabs/codefixd/internal/logging"
	"github.com/fyrsmithlabs/codefixd/internal/remediation"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

const toolLocalFix = "local_fix"

// Fixer runs the remediation pipeline.
type Fixer interface {
	Fix(ctx context.Context, req remediation.Request) (*remediation.Response, error)
}

// Config configures the MCP server.
type Config struct {
	// Name is the server implementation name (default: "codefixd")
	Name string

	// Version is the server version
	Version string

	// Logger for structured logging
	Logger *logging.Logger

	// Meter receives tool metrics; the global provider is used when nil.
	Meter metric.Meter
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Name:    "codefixd",
		Version: "dev",
		Logger:  logging.NewNop(),
	}
}

// Server is an MCP server backed by a Fixer.
type Server struct {
	mcp     *mcp.Server
	fixer   Fixer
	metrics *Metrics
	logger  *logging.Logger
}

// NewServer creates an MCP server with the local_fix tool registered.
func NewServer(cfg *Config, fixer Fixer) (*Server, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NewNop()
	}
	if fixer == nil {
		return nil, fmt.Errorf("fixer is required")
	}

	s := &Server{
		mcp: mcp.NewServer(
			&mcp.Implementation{
				Name:    cfg.Name,
				Version: cfg.Version,
			},
			nil,
		),
		fixer:   fixer,
		metrics: NewMetrics(cfg.Meter, cfg.Logger),
		logger:  cfg.Logger,
	}
	s.registerTools()
	return s, nil
}

type localFixInput struct {
	Language string `json:"language" jsonschema:"Programming language of the snippet, e.g. python"`
	CWE      string `json:"cwe" jsonschema:"CWE identifier of the vulnerability, e.g. CWE-89"`
	Code     string `json:"code" jsonschema:"Vulnerable source code to fix"`
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        toolLocalFix,
		Description: "Rewrite a vulnerable code snippet securely using a local code model guided by a retrieved remediation recipe. Returns the fixed code, a unified diff, an explanation, the model used, token usage and generation latency.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args localFixInput) (*mcp.CallToolResult, remediation.Response, error) {
		start := time.Now()
		s.metrics.IncrementActive(ctx, toolLocalFix)
		var toolErr error
		defer func() {
			s.metrics.DecrementActive(ctx, toolLocalFix)
			s.metrics.RecordInvocation(ctx, toolLocalFix, time.Since(start), toolErr)
		}()

		resp, err := s.fixer.Fix(ctx, remediation.Request{
			Language: args.Language,
			CWE:      args.CWE,
			Code:     args.Code,
		})
		if err != nil {
			toolErr = err
			s.logger.Warn(ctx, "local_fix tool failed", zap.Error(err))
			return nil, remediation.Response{}, fmt.Errorf("local_fix failed: %s", categorizeError(err))
		}

		return &mcp.CallToolResult{
			Content: []mcp.Content{
				&mcp.TextContent{Text: resp.Diff},
			},
		}, *resp, nil
	})
}

// Connect serves one session on t. Used for in-process transports.
func (s *Server) Connect(ctx context.Context, t mcp.Transport) (*mcp.ServerSession, error) {
	return s.mcp.Connect(ctx, t, nil)
}

// Run serves the MCP server on the stdio transport until ctx is done or the
// client disconnects.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info(ctx, "starting MCP server on stdio transport")
	if err := s.mcp.Run(ctx, &mcp.StdioTransport{}); err != nil {
		return fmt.Errorf("server run failed: %w", err)
	}
	return nil
}

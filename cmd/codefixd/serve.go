package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	httpserver "github.com/fyrsmithlabs/codefixd/internal/http"
	"github.com/fyrsmithlabs/codefixd/internal/mcp"
)

// runServe starts the HTTP service and blocks until ctx is cancelled.
func runServe(ctx context.Context) (err error) {
	a, err := newApp(ctx, appOptions{stdout: true})
	if err != nil {
		return err
	}
	defer func() {
		if cerr := a.close(context.Background()); cerr != nil && err == nil {
			err = cerr
		}
	}()

	srv, err := httpserver.NewServer(&httpserver.Config{
		Host: a.cfg.Server.Host,
		Port: a.cfg.Server.Port,
	}, httpserver.Options{
		Fixer:    a.service,
		Recipes:  a.retriever,
		Gatherer: prometheus.DefaultGatherer,
		Meter:    a.telemetry.Meter("github.com/fyrsmithlabs/codefixd/internal/http"),
		Logger:   a.logger,
	})
	if err != nil {
		return fmt.Errorf("failed to create http server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	a.logger.Info(ctx, "received shutdown signal", zap.Duration("timeout", a.shutdownTimeout()))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout())
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return <-errCh
}

// runMCP serves the local_fix tool on stdio until the client disconnects or
// ctx is cancelled.
func runMCP(ctx context.Context) (err error) {
	a, err := newApp(ctx, appOptions{stdout: false})
	if err != nil {
		return err
	}
	defer func() {
		if cerr := a.close(context.Background()); cerr != nil && err == nil {
			err = cerr
		}
	}()

	srv, err := mcp.NewServer(&mcp.Config{
		Name:    "codefixd",
		Version: version,
		Logger:  a.logger,
		Meter:   a.telemetry.Meter("github.com/fyrsmithlabs/codefixd/internal/mcp"),
	}, a.service)
	if err != nil {
		return fmt.Errorf("failed to create mcp server: %w", err)
	}
	return srv.Run(ctx)
}

type retrieveFlags struct {
	language string
	cwe      string
}

func newRetrieveCmd() *cobra.Command {
	var flags retrieveFlags
	cmd := &cobra.Command{
		Use:   "retrieve [file|-]",
		Short: "Print the recipe retrieved for a snippet",
		Long: `Build the recipe index and print the recipe that would guide a fix of
the given snippet. The snippet is read from a file, or stdin when the
argument is "-" or omitted.

Examples:
  codefixd retrieve --language python --cwe CWE-89 query.py
  cat handler.go | codefixd retrieve --language go --cwe CWE-22 -`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRetrieve(cmd, args, flags)
		},
	}
	cmd.Flags().StringVar(&flags.language, "language", "", "programming language of the snippet")
	cmd.Flags().StringVar(&flags.cwe, "cwe", "", "CWE identifier, e.g. CWE-89")
	return cmd
}

func runRetrieve(cmd *cobra.Command, args []string, flags retrieveFlags) (err error) {
	code, err := readSnippet(cmd.InOrStdin(), args)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	a, err := newApp(ctx, appOptions{stdout: false, retrievalOnly: true})
	if err != nil {
		return err
	}
	defer func() {
		if cerr := a.close(context.Background()); cerr != nil && err == nil {
			err = cerr
		}
	}()

	recipe, err := a.retriever.Retrieve(ctx, flags.language, flags.cwe, code)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if recipe == nil {
		fmt.Fprintln(out, "no recipe available")
		return nil
	}
	fmt.Fprintf(out, "%s\n\n%s\n", recipe.Name, strings.TrimRight(recipe.Text, "\n"))
	return nil
}

// readSnippet reads the named file, or stdin for "-" or no argument.
func readSnippet(stdin io.Reader, args []string) (string, error) {
	if len(args) == 0 || args[0] == "-" {
		b, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("failed to read from stdin: %w", err)
		}
		return string(b), nil
	}
	b, err := os.ReadFile(args[0])
	if err != nil {
		return "", fmt.Errorf("failed to read file %s: %w", args[0], err)
	}
	return string(b), nil
}

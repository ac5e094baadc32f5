// Codefixd rewrites vulnerable code snippets with a local code model.
//
// The default command serves POST /local_fix over HTTP. The mcp command
// serves the same pipeline as an MCP tool on stdio.
//
// Usage:
//
//	# Start the HTTP service with defaults
//	codefixd
//
//	# Use a config file and a different port
//	CODEFIX_SERVER_PORT=9000 codefixd --config codefixd.yaml
//
//	# Serve over MCP stdio
//	codefixd mcp
//
//	# Show which recipe a snippet would retrieve
//	codefixd retrieve --language python --cwe CWE-89 query.py
//
//	# Summarize recorded fixes (needs metrics.sqlite_path)
//	codefixd stats
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

// configPath is the optional YAML config file.
var configPath string

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "codefixd",
		Short: "AI code remediation service",
		Long: `codefixd rewrites vulnerable code snippets securely using a locally
hosted code model, guided by remediation recipes retrieved for the
snippet's language and CWE.

Running codefixd without a subcommand starts the HTTP service.`,
		Version:       version,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context())
		},
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML config file")

	root.AddCommand(newServeCmd())
	root.AddCommand(newMCPCmd())
	root.AddCommand(newRetrieveCmd())
	root.AddCommand(newStatsCmd())
	root.AddCommand(newVersionCmd())
	return root
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context())
		},
	}
}

func newMCPCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the local_fix tool over MCP stdio",
		Long: `Serve the remediation pipeline as the MCP tool local_fix on stdin/stdout.

Logs go to logs/service.log only, since stdout carries the protocol.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runMCP(cmd.Context())
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			printVersion(cmd)
		},
	}
}

func printVersion(cmd *cobra.Command) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "codefixd by Fyrsmith Labs\n")
	fmt.Fprintf(out, "Version:    %s\n", version)
	fmt.Fprintf(out, "Commit:     %s\n", gitCommit)
	fmt.Fprintf(out, "Build Date: %s\n", buildDate)
}

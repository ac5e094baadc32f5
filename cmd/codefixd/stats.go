package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/codefixd/internal/config"
	"github.com/fyrsmithlabs/codefixd/internal/metrics"
)

func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Summarize recorded fixes per CWE",
		Long: `Print per-CWE totals from the SQLite metrics database.

Requires metrics.sqlite_path (CODEFIX_METRICS_SQLITE_PATH) to be set.`,
		Args: cobra.NoArgs,
		RunE: runStats,
	}
}

func runStats(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if cfg.Metrics.SQLitePath == "" {
		return fmt.Errorf("metrics.sqlite_path is not configured")
	}

	sink, err := metrics.OpenSQLiteSink(cfg.Metrics.SQLitePath)
	if err != nil {
		return err
	}
	defer sink.Close()

	summary, err := sink.SummaryByCWE(cmd.Context())
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CWE\tFIXES\tINPUT TOKENS\tOUTPUT TOKENS\tAVG LATENCY (ms)")
	for _, s := range summary {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%.1f\n", s.CWE, s.Fixes, s.InputTokens, s.OutputTokens, s.AvgLatencyMS)
	}
	return tw.Flush()
}

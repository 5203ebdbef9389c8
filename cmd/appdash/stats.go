package main

import (
	"context"
	"encoding/json"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/jonathan/applications-dashboard/internal/config"
	"github.com/jonathan/applications-dashboard/internal/dashboard"
	"github.com/jonathan/applications-dashboard/internal/fetch"
	"github.com/jonathan/applications-dashboard/internal/rendering"
)

var (
	statsSource string
	statsJSON   bool
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print the dashboard summary once",
	Long:  "Load and parse the applications source once and print the summary and recent applications as a table, or as the JSON view with --json.",
	Args:  cobra.NoArgs,
	RunE:  runStats,
}

func init() {
	statsCmd.Flags().StringVar(&statsSource, "source", "", "Applications file path or http(s) URL")
	statsCmd.Flags().BoolVar(&statsJSON, "json", false, "Print the view as JSON")
	rootCmd.AddCommand(statsCmd)
}

func runStats(cmd *cobra.Command, _ []string) error {
	cfg, err := settings()
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("source") {
		cfg.Source = statsSource
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	return printStats(cmd.Context(), cmd.OutOrStdout(), cfg, statsJSON, time.Now)
}

// printStats loads the source once and writes the view. A failed load is returned as the error.
func printStats(ctx context.Context, out io.Writer, cfg *config.Config, asJSON bool, clock dashboard.Clock) error {
	if ctx == nil {
		ctx = context.Background()
	}
	parseOpts, err := parseOptions(cfg)
	if err != nil {
		return err
	}
	logger, err := quietLogger(cfg)
	if err != nil {
		return err
	}

	dash := dashboard.New(fetch.NewLoader(cfg.Source, loaderOptions(cfg)), dashboard.Options{Parse: parseOpts}, clock, logger)
	if err := dash.Refresh(ctx); err != nil {
		return err
	}
	view := rendering.BuildView(dash.Snapshot(), renderOptions(cfg))

	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(view)
	}
	return rendering.WriteTerminal(out, view)
}

package main

import (
	"context"
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/jonathan/applications-dashboard/internal/config"
	"github.com/jonathan/applications-dashboard/internal/fetch"
	"github.com/jonathan/applications-dashboard/internal/parsing"
)

var checkSource string

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate the applications source",
	Long:  "Load and parse the applications source with the configured pipeline options. Exits non-zero with the parse error when the source is invalid.",
	Args:  cobra.NoArgs,
	RunE:  runCheck,
}

func init() {
	checkCmd.Flags().StringVar(&checkSource, "source", "", "Applications file path or http(s) URL")
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, _ []string) error {
	cfg, err := settings()
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("source") {
		cfg.Source = checkSource
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	return checkSourceText(cmd.Context(), cmd.OutOrStdout(), cfg)
}

func checkSourceText(ctx context.Context, out io.Writer, cfg *config.Config) error {
	if ctx == nil {
		ctx = context.Background()
	}
	parseOpts, err := parseOptions(cfg)
	if err != nil {
		return err
	}

	result, err := fetch.Source(ctx, cfg.Source, loaderOptions(cfg))
	if err != nil {
		return err
	}
	records, err := parsing.Parse(result.Text, parseOpts)
	if err != nil {
		return err
	}

	invalid := 0
	for _, r := range records {
		if !r.Date.Valid() {
			invalid++
		}
	}

	msg := fmt.Sprintf("%s: %s applications (%s mode)", result.Source, humanize.Comma(int64(len(records))), parseOpts.DateMode)
	if invalid > 0 {
		msg += fmt.Sprintf(", %d with unreadable dates", invalid)
	}
	_, err = fmt.Fprint(out, pterm.Success.Sprintln(msg))
	return err
}

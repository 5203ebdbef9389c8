package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/jonathan/applications-dashboard/internal/config"
	"github.com/jonathan/applications-dashboard/internal/db"
)

var (
	historyLimit int
	historyDSN   string
	historyJSON  bool
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List stored summary snapshots",
	Long:  "List the summary snapshots recorded by the server after each successful load, newest first.",
	Args:  cobra.NoArgs,
	RunE:  runHistory,
}

func init() {
	historyCmd.Flags().IntVar(&historyLimit, "limit", db.DefaultListLimit, "Maximum number of snapshots")
	historyCmd.Flags().StringVar(&historyDSN, "history-dsn", "", "Snapshot history database (postgres:// URL or SQLite path)")
	historyCmd.Flags().BoolVar(&historyJSON, "json", false, "Print snapshots as JSON")
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, _ []string) error {
	cfg, err := settings()
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("history-dsn") {
		cfg.History.DSN = historyDSN
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	return printHistory(cmd.Context(), cmd.OutOrStdout(), cfg, historyLimit, historyJSON)
}

func printHistory(ctx context.Context, out io.Writer, cfg *config.Config, limit int, asJSON bool) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if limit <= 0 {
		return fmt.Errorf("--limit must be positive, got %d", limit)
	}

	store, err := db.Open(ctx, cfg.History.DSN)
	if errors.Is(err, db.ErrDisabled) {
		return fmt.Errorf("%w: set history.dsn, %s or --history-dsn", err, config.EnvHistoryDSN)
	}
	if err != nil {
		return fmt.Errorf("failed to open history: %w", err)
	}
	defer store.Close() //nolint:errcheck

	snapshots, err := store.ListSnapshots(ctx, limit)
	if err != nil {
		return err
	}

	if asJSON {
		if snapshots == nil {
			snapshots = []db.Snapshot{}
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(snapshots)
	}

	if len(snapshots) == 0 {
		_, err := fmt.Fprintln(out, pterm.Gray("No snapshots recorded"))
		return err
	}

	data := pterm.TableData{{"Taken at", "Total", "Weekly", "Monthly", "Daily avg", "Range"}}
	for _, s := range snapshots {
		dateRange := "N/A"
		if s.Earliest.Valid() && s.Latest.Valid() {
			dateRange = s.Earliest.Format() + " - " + s.Latest.Format()
		}
		data = append(data, []string{
			s.TakenAt.Local().Format("2006-01-02 15:04:05"),
			strconv.Itoa(s.Total),
			strconv.Itoa(s.Weekly),
			strconv.Itoa(s.Monthly),
			strconv.FormatFloat(s.DailyAverage, 'f', 1, 64),
			dateRange,
		})
	}
	table, err := pterm.DefaultTable.WithHasHeader().WithData(data).Srender()
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, table)
	return err
}

package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/jonathan/applications-dashboard/internal/config"
	"github.com/jonathan/applications-dashboard/internal/dashboard"
	"github.com/jonathan/applications-dashboard/internal/db"
	"github.com/jonathan/applications-dashboard/internal/fetch"
	"github.com/jonathan/applications-dashboard/internal/server"
	"github.com/jonathan/applications-dashboard/internal/server/ratelimit"
	"github.com/jonathan/applications-dashboard/internal/watch"
)

var (
	servePort       int
	serveSource     string
	serveWatch      bool
	serveHistoryDSN string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the dashboard web server",
	Long: `Start an HTTP server that renders the dashboard page, a JSON API and a live event stream.
The source is reloaded on every page load and refresh click, and on file changes with --watch.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 8080, "Port to listen on")
	serveCmd.Flags().StringVar(&serveSource, "source", "", "Applications file path or http(s) URL")
	serveCmd.Flags().BoolVar(&serveWatch, "watch", false, "Reload when the local applications file changes")
	serveCmd.Flags().StringVar(&serveHistoryDSN, "history-dsn", "", "Snapshot history database (postgres:// URL or SQLite path)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := settings()
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	if flags.Changed("port") {
		cfg.Server.Port = servePort
	}
	if flags.Changed("source") {
		cfg.Source = serveSource
	}
	if flags.Changed("watch") {
		cfg.Server.Watch = serveWatch
	}
	if flags.Changed("history-dsn") {
		cfg.History.DSN = serveHistoryDSN
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return serve(ctx, cfg, logger, nil)
}

// serve runs the server, and the watcher when enabled, until ctx is cancelled.
// A nil listener listens on the configured port.
func serve(ctx context.Context, cfg *config.Config, logger *zap.Logger, ln net.Listener) error {
	parseOpts, err := parseOptions(cfg)
	if err != nil {
		return err
	}
	loader := fetch.NewCachedLoader(cfg.Source, loaderOptions(cfg))

	dashOpts := dashboard.Options{Parse: parseOpts}
	srvCfg := server.Config{
		Port:             cfg.Server.Port,
		Render:           renderOptions(cfg),
		Parse:            parseOpts,
		SourcePath:       loader.Path(),
		AuthUser:         cfg.Auth.User,
		AuthPasswordHash: cfg.Auth.PasswordHash,
		RateLimit:        ratelimit.RefreshConfig(cfg.Server.RefreshRate, cfg.Server.RefreshBurst),
	}

	store, err := db.Open(ctx, cfg.History.DSN)
	switch {
	case errors.Is(err, db.ErrDisabled):
		logger.Debug("snapshot history disabled")
	case err != nil:
		return fmt.Errorf("failed to open history: %w", err)
	default:
		defer store.Close() //nolint:errcheck
		dashOpts.Recorder = db.Recorder{Store: store}
		srvCfg.History = store
		logger.Info("snapshot history enabled", zap.Bool("postgres", db.IsPostgres(cfg.History.DSN)))
	}

	dash := dashboard.New(loader, dashOpts, time.Now, logger.Named("dashboard"))
	srvCfg.Dashboard = dash

	var watcher *watch.Watcher
	if cfg.Server.Watch {
		if path := loader.Path(); path == "" {
			logger.Warn("--watch ignored for URL sources", zap.String("source", cfg.Source))
		} else {
			watcher, err = watch.New(path, watch.DefaultDebounce, func(ctx context.Context) {
				_ = dash.Refresh(ctx)
			}, logger.Named("watch"))
			if err != nil {
				return err
			}
		}
	}

	srv, err := server.New(srvCfg, logger.Named("http"))
	if err != nil {
		if watcher != nil {
			watcher.Stop()
		}
		return fmt.Errorf("failed to create server: %w", err)
	}

	if err := dash.Refresh(ctx); err != nil {
		logger.Warn("initial load failed", zap.String("source", cfg.Source), zap.Error(err))
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if ln != nil {
			return srv.Serve(ln)
		}
		return srv.Start()
	})
	if watcher != nil {
		g.Go(func() error { return watcher.Run(gctx) })
	}

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), server.DefaultShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

package main

import (
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/jonathan/applications-dashboard/internal/config"
	"github.com/jonathan/applications-dashboard/internal/fetch"
	"github.com/jonathan/applications-dashboard/internal/logging"
	"github.com/jonathan/applications-dashboard/internal/parsing"
	"github.com/jonathan/applications-dashboard/internal/rendering"
)

// loadSettings builds the configuration from defaults, the --config file and APPDASH_* variables.
// Command flags are applied by the caller, which then calls Validate.
func loadSettings(path string, getenv func(string) string) (*config.Config, error) {
	cfg := config.Default()
	if path != "" {
		loaded, err := config.LoadConfig(path)
		if err != nil {
			return nil, err
		}
		cfg = *loaded
	}
	if err := cfg.ApplyEnv(getenv); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// settings is loadSettings for the current process.
func settings() (*config.Config, error) {
	return loadSettings(configPath, os.Getenv)
}

// newLogger returns the service logger. --verbose forces debug.
func newLogger(cfg *config.Config) (*zap.Logger, error) {
	level := cfg.Log.Level
	if verbose {
		level = "debug"
	}
	logger, err := logging.New(level)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return logger, nil
}

// quietLogger is used by one-shot commands, whose output is the result itself.
func quietLogger(cfg *config.Config) (*zap.Logger, error) {
	if verbose {
		return newLogger(cfg)
	}
	return zap.NewNop(), nil
}

func parseOptions(cfg *config.Config) (parsing.Options, error) {
	mode, err := parsing.ParseDateMode(cfg.Pipeline.DateParseMode)
	if err != nil {
		return parsing.Options{}, err
	}
	return parsing.Options{
		ValidateHeader: cfg.Pipeline.ValidateHeader,
		DateMode:       mode,
		Dedupe:         cfg.Pipeline.Dedupe,
		SortDescending: cfg.Pipeline.SortDescending,
		Location:       time.Local,
	}, nil
}

func renderOptions(cfg *config.Config) rendering.Options {
	return rendering.Options{
		ShowDaysAgo: cfg.Display.ShowDaysAgo,
		RowLimit:    cfg.Display.RowLimit,
	}
}

func loaderOptions(cfg *config.Config) *fetch.Options {
	opts := fetch.DefaultOptions()
	if cfg.Server.LoadTimeout > 0 {
		opts.Timeout = time.Duration(cfg.Server.LoadTimeout)
	}
	return opts
}

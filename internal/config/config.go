// Package config provides configuration loading and validation for the dashboard.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/jonathan/applications-dashboard/internal/schemas"
	bundled "github.com/jonathan/applications-dashboard/schemas"
)

// Config is the full dashboard configuration.
// Values come from defaults, then a config file, then APPDASH_* environment variables;
// command-line flags are applied last by the caller.
type Config struct {
	Source   string         `json:"source" yaml:"source" validate:"required"`
	Server   ServerConfig   `json:"server" yaml:"server"`
	Pipeline PipelineConfig `json:"pipeline" yaml:"pipeline"`
	Display  DisplayConfig  `json:"display" yaml:"display"`
	History  HistoryConfig  `json:"history" yaml:"history"`
	Auth     AuthConfig     `json:"auth" yaml:"auth"`
	Log      LogConfig      `json:"log" yaml:"log"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port  int  `json:"port" yaml:"port" validate:"min=1,max=65535"`
	Watch bool `json:"watch" yaml:"watch"`
	// RefreshRate and RefreshBurst bound POST /api/refresh per client.
	RefreshRate  float64  `json:"refreshRate" yaml:"refreshRate" validate:"gt=0"`
	RefreshBurst int      `json:"refreshBurst" yaml:"refreshBurst" validate:"min=1"`
	LoadTimeout  Duration `json:"loadTimeout" yaml:"loadTimeout"`
}

// PipelineConfig mirrors parsing.Options.
type PipelineConfig struct {
	ValidateHeader bool   `json:"validateHeader" yaml:"validateHeader"`
	DateParseMode  string `json:"dateParseMode" yaml:"dateParseMode" validate:"oneof=strict lenient"`
	Dedupe         bool   `json:"dedupe" yaml:"dedupe"`
	SortDescending bool   `json:"sortDescending" yaml:"sortDescending"`
}

// DisplayConfig controls the rendered table.
type DisplayConfig struct {
	ShowDaysAgo bool `json:"showDaysAgo" yaml:"showDaysAgo"`
	// RowLimit caps the recent-applications table; 0 shows every record.
	RowLimit int `json:"rowLimit" yaml:"rowLimit" validate:"min=0"`
}

// HistoryConfig enables snapshot history. An empty DSN disables it.
type HistoryConfig struct {
	DSN string `json:"dsn" yaml:"dsn"`
}

// AuthConfig enables HTTP basic auth on the API when both fields are set.
type AuthConfig struct {
	User         string `json:"user" yaml:"user" validate:"required_with=PasswordHash"`
	PasswordHash string `json:"passwordHash" yaml:"passwordHash" validate:"required_with=User"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	Level string `json:"level" yaml:"level" validate:"oneof=debug info warn error"`
}

// Duration is a time.Duration that reads and writes strings such as "10s".
type Duration time.Duration

// UnmarshalText parses a Go duration string.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(text), err)
	}
	*d = Duration(v)
	return nil
}

// MarshalText renders the duration as a Go duration string.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Default returns the configuration used when nothing else is provided.
func Default() Config {
	return Config{
		Source: "applications.txt",
		Server: ServerConfig{
			Port:         8080,
			RefreshRate:  2,
			RefreshBurst: 5,
			LoadTimeout:  Duration(30 * time.Second),
		},
		Pipeline: PipelineConfig{
			ValidateHeader: true,
			DateParseMode:  "strict",
			SortDescending: true,
		},
		Display: DisplayConfig{
			ShowDaysAgo: true,
			RowLimit:    10,
		},
		Log: LogConfig{Level: "info"},
	}
}

// LoadConfig loads configuration from a YAML (.yaml, .yml) or JSON (.json) file.
// Keys missing from the file keep their default values.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("config path is empty")
	}

	if !filepath.IsAbs(path) {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get current directory: %w", err)
		}
		path = filepath.Join(cwd, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	cfg := Default()
	var doc map[string]any

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("failed to parse config YAML: %w", err)
		}
		if err := checkSchema(doc); err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config YAML: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("failed to parse config JSON: %w", err)
		}
		if err := checkSchema(doc); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config JSON: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config file extension %q (want .yaml, .yml or .json)", ext)
	}

	return &cfg, nil
}

// checkSchema validates the raw document; an empty file is accepted.
func checkSchema(doc map[string]any) error {
	if doc == nil {
		return nil
	}
	if err := schemas.ValidateDocument(bundled.Config, doc); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	return nil
}

// Environment variable names read by ApplyEnv.
const (
	EnvSource           = "APPDASH_SOURCE"
	EnvPort             = "APPDASH_PORT"
	EnvDateMode         = "APPDASH_DATE_MODE"
	EnvDedupe           = "APPDASH_DEDUPE"
	EnvRowLimit         = "APPDASH_ROW_LIMIT"
	EnvHistoryDSN       = "APPDASH_HISTORY_DSN"
	EnvAuthUser         = "APPDASH_AUTH_USER"
	EnvAuthPasswordHash = "APPDASH_AUTH_PASSWORD_HASH"
	EnvLogLevel         = "APPDASH_LOG_LEVEL"
)

// ApplyEnv overrides fields from environment variables. getenv is usually os.Getenv.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	if v := getenv(EnvSource); v != "" {
		c.Source = v
	}
	if v := getenv(EnvPort); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config error: invalid %s %q: %w", EnvPort, v, err)
		}
		c.Server.Port = port
	}
	if v := getenv(EnvDateMode); v != "" {
		c.Pipeline.DateParseMode = strings.ToLower(strings.TrimSpace(v))
	}
	if v := getenv(EnvDedupe); v != "" {
		dedupe, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("config error: invalid %s %q: %w", EnvDedupe, v, err)
		}
		c.Pipeline.Dedupe = dedupe
	}
	if v := getenv(EnvRowLimit); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config error: invalid %s %q: %w", EnvRowLimit, v, err)
		}
		c.Display.RowLimit = limit
	}
	if v := getenv(EnvHistoryDSN); v != "" {
		c.History.DSN = v
	}
	if v := getenv(EnvAuthUser); v != "" {
		c.Auth.User = v
	}
	if v := getenv(EnvAuthPasswordHash); v != "" {
		c.Auth.PasswordHash = v
	}
	if v := getenv(EnvLogLevel); v != "" {
		c.Log.Level = strings.ToLower(strings.TrimSpace(v))
	}
	return nil
}

// Validate checks that the configuration has valid values.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config error: %s", describeValidationErrors(err))
	}
	return nil
}

// AuthEnabled reports whether basic auth is configured.
func (c *Config) AuthEnabled() bool {
	return c.Auth.User != "" && c.Auth.PasswordHash != ""
}

func describeValidationErrors(err error) string {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) || len(validationErrors) == 0 {
		return err.Error()
	}
	parts := make([]string, 0, len(validationErrors))
	for _, fe := range validationErrors {
		field := strings.TrimPrefix(fe.Namespace(), "Config.")
		if fe.Param() != "" {
			parts = append(parts, fmt.Sprintf("%s failed %s=%s (got %v)", field, fe.Tag(), fe.Param(), fe.Value()))
		} else {
			parts = append(parts, fmt.Sprintf("%s failed %s", field, fe.Tag()))
		}
	}
	return strings.Join(parts, "; ")
}

package fetch

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
)

// File reads the applications text from a local path.
func File(ctx context.Context, path string) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, &LoadError{Source: path, Message: "load cancelled", Cause: err}
	}

	info, err := os.Stat(path)
	if err != nil {
		msg := "failed to stat file"
		if errors.Is(err, fs.ErrNotExist) {
			msg = "file not found"
		}
		return nil, &LoadError{Source: path, Message: msg, Cause: err}
	}
	if info.IsDir() {
		return nil, &LoadError{Source: path, Message: "path is a directory"}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{Source: path, Message: "failed to read file", Cause: err}
	}

	return &Result{
		Source:      path,
		Text:        string(data),
		ContentType: "text/plain; charset=utf-8",
		ModTime:     info.ModTime(),
	}, nil
}

// Loader loads one configured source on demand.
type Loader struct {
	source  string
	options *Options
}

// NewLoader creates a loader for source. An empty source means DefaultSource.
func NewLoader(source string, opts *Options) *Loader {
	if source == "" {
		source = DefaultSource
	}
	if opts == nil {
		opts = DefaultOptions()
	}
	return &Loader{source: source, options: opts}
}

// Load fetches the current text of the source.
func (l *Loader) Load(ctx context.Context) (*Result, error) {
	return Source(ctx, l.source, l.options)
}

// Source returns the configured source string.
func (l *Loader) Source() string {
	return l.source
}

// Path returns the absolute file path of a local source, or "" for URL sources.
func (l *Loader) Path() string {
	if IsURL(l.source) {
		return ""
	}
	abs, err := filepath.Abs(l.source)
	if err != nil {
		return l.source
	}
	return abs
}

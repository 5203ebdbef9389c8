// Package watch refreshes the dashboard when the local applications file changes.
package watch

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// DefaultDebounce collapses bursts of editor writes into one refresh.
const DefaultDebounce = 500 * time.Millisecond

// pollInterval is how often pending changes are checked against the debounce window.
const pollInterval = 50 * time.Millisecond

// Stats counts watcher activity.
type Stats struct {
	Events   int
	Triggers int
	Errors   int
}

// Watcher calls onChange after the watched file has been quiet for the debounce window.
// The parent directory is watched so editors that replace the file by rename are seen.
type Watcher struct {
	mu       sync.Mutex
	watcher  *fsnotify.Watcher
	path     string
	dir      string
	onChange func(context.Context)
	debounce time.Duration
	logger   *zap.Logger

	pending   bool
	lastEvent time.Time
	stats     Stats

	stopCh  chan struct{}
	doneCh  chan struct{}
	running bool
	stopped bool
}

// New creates a watcher for path. It does not start watching until Start is called.
func New(path string, debounce time.Duration, onChange func(context.Context), logger *zap.Logger) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", path, err)
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	return &Watcher{
		watcher:  fw,
		path:     abs,
		dir:      filepath.Dir(abs),
		onChange: onChange,
		debounce: debounce,
		logger:   logger.With(zap.String("path", abs)),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}, nil
}

// Start begins watching. It is non-blocking; the event loop runs until Stop or ctx is done.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running || w.stopped {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	if err := w.watcher.Add(w.dir); err != nil {
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
		return fmt.Errorf("failed to watch %s: %w", w.dir, err)
	}
	w.logger.Info("watching applications file")

	go w.run(ctx)
	return nil
}

// Stop ends the event loop and releases the watcher. It is safe to call more than once.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return
	}
	w.stopped = true
	wasRunning := w.running
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	if wasRunning {
		<-w.doneCh
	}
	if err := w.watcher.Close(); err != nil {
		w.logger.Warn("error closing watcher", zap.Error(err))
	}
	w.logger.Debug("watcher stopped")
}

// Run starts the watcher and blocks until ctx is done, then stops it.
// The watcher is released on every return path.
func (w *Watcher) Run(ctx context.Context) error {
	if err := w.Start(ctx); err != nil {
		w.Stop()
		return err
	}
	select {
	case <-ctx.Done():
	case <-w.doneCh:
	}
	w.Stop()
	return nil
}

// Stats returns a copy of the activity counters.
func (w *Watcher) Stats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stats
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-w.stopCh:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watcher error", zap.Error(err))
			w.mu.Lock()
			w.stats.Errors++
			w.mu.Unlock()

		case now := <-ticker.C:
			if w.due(now) {
				w.logger.Debug("applications file changed, refreshing")
				if w.onChange != nil {
					w.onChange(ctx)
				}
			}
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if filepath.Clean(event.Name) != w.path {
		return
	}
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) && !event.Has(fsnotify.Remove) {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.stats.Events++
	w.pending = true
	w.lastEvent = time.Now()
}

// due reports whether a pending change has been quiet long enough, and clears it if so.
func (w *Watcher) due(now time.Time) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.pending || now.Sub(w.lastEvent) < w.debounce {
		return false
	}
	w.pending = false
	w.stats.Triggers++
	return true
}

// Package dashboard holds the application state behind the page: the loaded records,
// their summary, and the transient status message.
package dashboard

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/jonathan/applications-dashboard/internal/fetch"
	"github.com/jonathan/applications-dashboard/internal/parsing"
	"github.com/jonathan/applications-dashboard/internal/stats"
	"github.com/jonathan/applications-dashboard/internal/types"
)

// State is the lifecycle phase of the dashboard data.
type State string

const (
	StateIdle    State = "idle"
	StateLoading State = "loading"
	StateLoaded  State = "loaded"
	StateErrored State = "errored"
)

// Severity classifies a status message.
type Severity string

const (
	SeveritySuccess Severity = "success"
	SeverityError   Severity = "error"
	SeverityInfo    Severity = "info"
)

// DefaultStatusTTL is how long a status message stays visible.
const DefaultStatusTTL = 5 * time.Second

// Status messages set by Refresh.
const (
	MessageLoaded  = "Data loaded successfully"
	MessageNoRows  = "No applications found"
	messageErrorAt = "Error: "
)

// Status is a transient message shown to the user.
type Status struct {
	Message   string    `json:"message"`
	Severity  Severity  `json:"severity"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Snapshot is a consistent copy of the dashboard state.
type Snapshot struct {
	Version uint64
	State   State
	Source  string
	Records []types.Application
	Summary stats.Summary
	// Status is nil when no message is set or the last one has expired.
	Status *Status
	// LastUpdated is the time of the last successful load; zero before the first one.
	LastUpdated   time.Time
	SourceModTime time.Time
	// Now is the clock reading the snapshot was taken at.
	Now time.Time
}

// Loader supplies the raw applications text.
type Loader interface {
	Load(ctx context.Context) (*fetch.Result, error)
}

// Recorder persists a summary after each successful load.
type Recorder interface {
	RecordSummary(ctx context.Context, takenAt time.Time, summary stats.Summary) error
}

// Clock returns the current time. time.Now satisfies it.
type Clock func() time.Time

// Options configures a Dashboard.
type Options struct {
	Parse     parsing.Options
	StatusTTL time.Duration
	// Recorder is optional.
	Recorder Recorder
}

// Dashboard owns the records and summary. All methods are safe for concurrent use.
type Dashboard struct {
	loader Loader
	opts   Options
	clock  Clock
	logger *zap.Logger

	mu          sync.RWMutex
	version     uint64
	state       State
	records     []types.Application
	summary     stats.Summary
	status      *Status
	lastUpdated time.Time
	modTime     time.Time
	source      string

	subMu       sync.Mutex
	subscribers map[int]chan Snapshot
	nextSub     int
}

// New creates a dashboard in the idle state. Nothing is loaded until Refresh is called.
func New(loader Loader, opts Options, clock Clock, logger *zap.Logger) *Dashboard {
	if clock == nil {
		clock = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.StatusTTL <= 0 {
		opts.StatusTTL = DefaultStatusTTL
	}
	d := &Dashboard{
		loader:      loader,
		opts:        opts,
		clock:       clock,
		logger:      logger,
		state:       StateIdle,
		records:     []types.Application{},
		subscribers: make(map[int]chan Snapshot),
	}
	if s, ok := loader.(interface{ Source() string }); ok {
		d.source = s.Source()
	}
	d.summary = stats.Compute(nil, clock())
	return d
}

// Refresh reloads and reparses the source, replacing records and summary on success.
// On failure the previous records and summary are kept and the error status is set.
// Concurrent calls are allowed; the one that finishes last determines the state.
func (d *Dashboard) Refresh(ctx context.Context) error {
	d.mu.Lock()
	d.state = StateLoading
	d.version++
	d.mu.Unlock()
	d.publish()

	start := d.clock()
	records, result, err := d.load(ctx)
	now := d.clock()

	d.mu.Lock()
	d.version++
	if err != nil {
		d.state = StateErrored
		d.setStatusLocked(messageErrorAt+err.Error(), SeverityError, now)
		d.mu.Unlock()
		d.publish()

		d.logger.Warn("refresh failed",
			zap.String("source", d.source),
			zap.Duration("duration", now.Sub(start)),
			zap.Error(err))
		return err
	}

	summary := stats.Compute(records, now)
	d.state = StateLoaded
	d.records = records
	d.summary = summary
	d.lastUpdated = now
	d.modTime = result.ModTime
	if result.Source != "" {
		d.source = result.Source
	}
	if len(records) == 0 {
		d.setStatusLocked(MessageNoRows, SeverityError, now)
	} else {
		d.setStatusLocked(MessageLoaded, SeveritySuccess, now)
	}
	d.mu.Unlock()
	d.publish()

	d.logger.Info("refresh complete",
		zap.String("source", d.source),
		zap.Int("records", summary.Total),
		zap.Int("weekly", summary.Weekly),
		zap.Int("monthly", summary.Monthly),
		zap.Duration("duration", now.Sub(start)))

	if d.opts.Recorder != nil {
		if err := d.opts.Recorder.RecordSummary(ctx, now, summary); err != nil {
			d.logger.Warn("failed to record snapshot", zap.Error(err))
		}
	}
	return nil
}

func (d *Dashboard) load(ctx context.Context) ([]types.Application, *fetch.Result, error) {
	if d.loader == nil {
		return nil, nil, fmt.Errorf("no loader configured")
	}
	result, err := d.loader.Load(ctx)
	if err != nil {
		return nil, nil, err
	}
	records, err := parsing.Parse(result.Text, d.opts.Parse)
	if err != nil {
		return nil, nil, err
	}
	return records, result, nil
}

// SetStatus shows message with the given severity for the status TTL.
func (d *Dashboard) SetStatus(message string, severity Severity) {
	d.mu.Lock()
	d.version++
	d.setStatusLocked(message, severity, d.clock())
	d.mu.Unlock()
	d.publish()
}

func (d *Dashboard) setStatusLocked(message string, severity Severity, now time.Time) {
	d.status = &Status{
		Message:   message,
		Severity:  severity,
		ExpiresAt: now.Add(d.opts.StatusTTL),
	}
}

// Snapshot returns a copy of the current state.
func (d *Dashboard) Snapshot() Snapshot {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.snapshotLocked(d.clock())
}

func (d *Dashboard) snapshotLocked(now time.Time) Snapshot {
	records := make([]types.Application, len(d.records))
	copy(records, d.records)

	snap := Snapshot{
		Version:       d.version,
		State:         d.state,
		Source:        d.source,
		Records:       records,
		Summary:       d.summary,
		LastUpdated:   d.lastUpdated,
		SourceModTime: d.modTime,
		Now:           now,
	}
	if d.status != nil && now.Before(d.status.ExpiresAt) {
		status := *d.status
		snap.Status = &status
	}
	return snap
}

// Subscribe returns a channel that receives a snapshot after every state change.
// A slow subscriber only ever holds the most recent snapshot. Call cancel to stop.
func (d *Dashboard) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 1)

	d.subMu.Lock()
	id := d.nextSub
	d.nextSub++
	d.subscribers[id] = ch
	d.subMu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			d.subMu.Lock()
			delete(d.subscribers, id)
			d.subMu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

func (d *Dashboard) publish() {
	d.subMu.Lock()
	defer d.subMu.Unlock()
	if len(d.subscribers) == 0 {
		return
	}

	// Taken under subMu so subscribers see versions in order.
	snap := d.Snapshot()
	for _, ch := range d.subscribers {
		select {
		case ch <- snap:
			continue
		default:
		}
		// Replace the stale pending snapshot.
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- snap:
		default:
		}
	}
}

// Package db stores dashboard summary snapshots in PostgreSQL or SQLite.
package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jonathan/applications-dashboard/internal/stats"
	"github.com/jonathan/applications-dashboard/internal/types"
)

// DefaultListLimit is used when ListSnapshots is called with a non-positive limit.
const DefaultListLimit = 50

// ErrDisabled is returned by Open when no DSN is configured.
var ErrDisabled = errors.New("history is disabled")

// Snapshot is one stored summary.
type Snapshot struct {
	ID           uuid.UUID  `json:"id"`
	TakenAt      time.Time  `json:"taken_at"`
	Total        int        `json:"total"`
	Weekly       int        `json:"weekly"`
	Monthly      int        `json:"monthly"`
	DailyAverage float64    `json:"daily_average"`
	Earliest     types.Date `json:"earliest"`
	Latest       types.Date `json:"latest"`
}

// NewSnapshot builds a snapshot row for summary with a fresh ID.
func NewSnapshot(takenAt time.Time, summary stats.Summary) Snapshot {
	return Snapshot{
		ID:           uuid.New(),
		TakenAt:      takenAt.UTC(),
		Total:        summary.Total,
		Weekly:       summary.Weekly,
		Monthly:      summary.Monthly,
		DailyAverage: summary.DailyAverage,
		Earliest:     summary.Earliest,
		Latest:       summary.Latest,
	}
}

// Store persists snapshots.
type Store interface {
	Migrate(ctx context.Context) error
	RecordSnapshot(ctx context.Context, s Snapshot) error
	// ListSnapshots returns the newest snapshots first.
	ListSnapshots(ctx context.Context, limit int) ([]Snapshot, error)
	Close() error
}

// Open connects to dsn and runs migrations. postgres:// and postgresql:// URLs use PostgreSQL;
// anything else is treated as a SQLite file path (or ":memory:").
func Open(ctx context.Context, dsn string) (Store, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, ErrDisabled
	}

	var (
		store Store
		err   error
	)
	if IsPostgres(dsn) {
		store, err = Connect(ctx, dsn)
	} else {
		store, err = OpenSQLite(ctx, dsn)
	}
	if err != nil {
		return nil, err
	}

	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, err
	}
	return store, nil
}

// IsPostgres reports whether dsn names a PostgreSQL database.
func IsPostgres(dsn string) bool {
	lower := strings.ToLower(dsn)
	return strings.HasPrefix(lower, "postgres://") || strings.HasPrefix(lower, "postgresql://")
}

// Recorder adapts a Store to the dashboard's summary hook.
type Recorder struct {
	Store Store
}

// RecordSummary stores summary as a new snapshot.
func (r Recorder) RecordSummary(ctx context.Context, takenAt time.Time, summary stats.Summary) error {
	if err := r.Store.RecordSnapshot(ctx, NewSnapshot(takenAt, summary)); err != nil {
		return fmt.Errorf("failed to record snapshot: %w", err)
	}
	return nil
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	return limit
}

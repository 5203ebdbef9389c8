package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS summary_snapshots (
	id            TEXT PRIMARY KEY,
	taken_at      TEXT NOT NULL,
	total         INTEGER NOT NULL,
	weekly        INTEGER NOT NULL,
	monthly       INTEGER NOT NULL,
	daily_average REAL NOT NULL,
	earliest      TEXT NOT NULL DEFAULT '',
	latest        TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS summary_snapshots_taken_at_idx ON summary_snapshots (taken_at DESC);
`

// takenAtLayout sorts lexically in time order for UTC values.
const takenAtLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SQLite stores snapshots in a local SQLite file.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the SQLite database at path.
func OpenSQLite(ctx context.Context, path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database %s: %w", path, err)
	}
	// A single connection keeps ":memory:" databases alive and serializes writers.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to open sqlite database %s: %w", path, err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout = 5000;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to configure sqlite database: %w", err)
	}
	return &SQLite{db: db}, nil
}

// Close closes the database.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// Migrate creates the snapshot table if needed.
func (s *SQLite) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, sqliteSchema); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	return nil
}

// RecordSnapshot inserts snap.
func (s *SQLite) RecordSnapshot(ctx context.Context, snap Snapshot) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO summary_snapshots (id, taken_at, total, weekly, monthly, daily_average, earliest, latest)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		snap.ID.String(), snap.TakenAt.UTC().Format(takenAtLayout), snap.Total, snap.Weekly, snap.Monthly,
		snap.DailyAverage, snap.Earliest.String(), snap.Latest.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert snapshot: %w", err)
	}
	return nil
}

// ListSnapshots returns up to limit snapshots, newest first.
func (s *SQLite) ListSnapshots(ctx context.Context, limit int) ([]Snapshot, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, taken_at, total, weekly, monthly, daily_average, earliest, latest
		 FROM summary_snapshots
		 ORDER BY taken_at DESC
		 LIMIT ?`,
		normalizeLimit(limit),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	defer func() { _ = rows.Close() }()

	snapshots := []Snapshot{}
	for rows.Next() {
		var (
			snap             Snapshot
			id, takenAt      string
			earliest, latest string
		)
		if err := rows.Scan(&id, &takenAt, &snap.Total, &snap.Weekly, &snap.Monthly, &snap.DailyAverage, &earliest, &latest); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}
		if snap.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("snapshot has invalid id %q: %w", id, err)
		}
		if snap.TakenAt, err = time.Parse(takenAtLayout, takenAt); err != nil {
			return nil, fmt.Errorf("snapshot %s has invalid time %q: %w", id, takenAt, err)
		}
		if err := decodeDates(&snap, earliest, latest); err != nil {
			return nil, err
		}
		snapshots = append(snapshots, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate snapshots: %w", err)
	}
	return snapshots, nil
}

var _ Store = (*SQLite)(nil)

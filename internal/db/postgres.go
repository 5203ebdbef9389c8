package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS summary_snapshots (
	id            UUID PRIMARY KEY,
	taken_at      TIMESTAMPTZ NOT NULL,
	total         INTEGER NOT NULL,
	weekly        INTEGER NOT NULL,
	monthly       INTEGER NOT NULL,
	daily_average DOUBLE PRECISION NOT NULL,
	earliest      TEXT NOT NULL DEFAULT '',
	latest        TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS summary_snapshots_taken_at_idx ON summary_snapshots (taken_at DESC);
`

// DB wraps a PostgreSQL connection pool
type DB struct {
	pool *pgxpool.Pool
}

// Connect establishes a connection pool to the database
func Connect(ctx context.Context, databaseURL string) (*DB, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{pool: pool}, nil
}

// Close closes the connection pool
func (db *DB) Close() error {
	if db.pool != nil {
		db.pool.Close()
	}
	return nil
}

// Migrate creates the snapshot table if needed.
func (db *DB) Migrate(ctx context.Context) error {
	if _, err := db.pool.Exec(ctx, postgresSchema); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	return nil
}

// RecordSnapshot inserts s.
func (db *DB) RecordSnapshot(ctx context.Context, s Snapshot) error {
	_, err := db.pool.Exec(ctx,
		`INSERT INTO summary_snapshots (id, taken_at, total, weekly, monthly, daily_average, earliest, latest)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		s.ID, s.TakenAt, s.Total, s.Weekly, s.Monthly, s.DailyAverage, s.Earliest.String(), s.Latest.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert snapshot: %w", err)
	}
	return nil
}

// ListSnapshots returns up to limit snapshots, newest first.
func (db *DB) ListSnapshots(ctx context.Context, limit int) ([]Snapshot, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, taken_at, total, weekly, monthly, daily_average, earliest, latest
		 FROM summary_snapshots
		 ORDER BY taken_at DESC
		 LIMIT $1`,
		normalizeLimit(limit),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	defer rows.Close()

	snapshots := []Snapshot{}
	for rows.Next() {
		var (
			s                Snapshot
			earliest, latest string
		)
		if err := rows.Scan(&s.ID, &s.TakenAt, &s.Total, &s.Weekly, &s.Monthly, &s.DailyAverage, &earliest, &latest); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}
		if err := decodeDates(&s, earliest, latest); err != nil {
			return nil, err
		}
		s.TakenAt = s.TakenAt.UTC()
		snapshots = append(snapshots, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate snapshots: %w", err)
	}
	return snapshots, nil
}

func decodeDates(s *Snapshot, earliest, latest string) error {
	if err := s.Earliest.UnmarshalText([]byte(earliest)); err != nil {
		return fmt.Errorf("snapshot %s: %w", s.ID, err)
	}
	if err := s.Latest.UnmarshalText([]byte(latest)); err != nil {
		return fmt.Errorf("snapshot %s: %w", s.ID, err)
	}
	return nil
}

var _ Store = (*DB)(nil)

// Greeting - Visit Counter and Profile Card Badges
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/greeting

package storage

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tomtom215/greeting/internal/logging"
)

// Compile-time interface check.
var _ Sink = (*PostgresSink)(nil)

const postgresSchema = `CREATE TABLE IF NOT EXISTS counters (
	id    TEXT PRIMARY KEY,
	count BIGINT NOT NULL DEFAULT 0
)`

const postgresUpsert = `INSERT INTO counters (id, count) VALUES ($1, $2)
ON CONFLICT (id) DO UPDATE SET count = EXCLUDED.count`

// PostgresSink persists counters in a PostgreSQL table.
type PostgresSink struct {
	pool   *pgxpool.Pool
	closed atomic.Bool
}

// OpenPostgres connects to dsn and creates the counters table.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresSink, error) {
	if dsn == "" {
		return nil, errors.New("storage: postgres dsn is empty")
	}

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("storage: parse postgres dsn: %w", err)
	}
	cfg.MaxConns = 2

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("storage: connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("storage: ping postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("storage: create postgres table: %w", err)
	}

	logging.Info().Str("host", cfg.ConnConfig.Host).Msg("PostgreSQL sink opened")
	return &PostgresSink{pool: pool}, nil
}

// Write upserts the count for id.
func (s *PostgresSink) Write(ctx context.Context, id string, count uint64) error {
	if s.closed.Load() {
		return ErrSinkClosed
	}
	if _, err := s.pool.Exec(ctx, postgresUpsert, id, int64(count)); err != nil { //nolint:gosec // stored bit-for-bit
		return fmt.Errorf("storage: postgres write %q: %w", id, err)
	}
	return nil
}

// WriteBatch upserts rows with a single pipelined batch.
func (s *PostgresSink) WriteBatch(ctx context.Context, rows []Row) error {
	if s.closed.Load() {
		return ErrSinkClosed
	}
	if len(rows) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(postgresUpsert, r.ID, int64(r.Count)) //nolint:gosec // see Write
	}

	br := s.pool.SendBatch(ctx, batch)
	for _, r := range rows {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			return fmt.Errorf("storage: postgres batch write %q: %w", r.ID, err)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("storage: postgres batch close: %w", err)
	}
	return nil
}

// Delete removes the row for id.
func (s *PostgresSink) Delete(ctx context.Context, id string) error {
	if s.closed.Load() {
		return ErrSinkClosed
	}
	if _, err := s.pool.Exec(ctx, `DELETE FROM counters WHERE id = $1`, id); err != nil {
		return fmt.Errorf("storage: postgres delete %q: %w", id, err)
	}
	return nil
}

// ReadAll returns every row in the counters table.
func (s *PostgresSink) ReadAll(ctx context.Context) ([]Row, error) {
	if s.closed.Load() {
		return nil, ErrSinkClosed
	}

	rows, err := s.pool.Query(ctx, `SELECT id, count FROM counters`)
	if err != nil {
		return nil, fmt.Errorf("storage: postgres read all: %w", err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var id string
		var count int64
		if err := rows.Scan(&id, &count); err != nil {
			return nil, fmt.Errorf("storage: postgres scan: %w", err)
		}
		out = append(out, Row{ID: id, Count: uint64(count)}) //nolint:gosec // see Write
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("storage: postgres iterate: %w", err)
	}
	return out, nil
}

// Driver returns "postgres".
func (s *PostgresSink) Driver() string { return DriverPostgres }

// Close closes the connection pool.
func (s *PostgresSink) Close() error {
	if s.closed.CompareAndSwap(false, true) {
		s.pool.Close()
	}
	return nil
}

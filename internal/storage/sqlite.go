// Greeting - Visit Counter and Profile Card Badges
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/greeting

package storage

import (
	"context"
	"database/sql"
	"fmt"
	"sync/atomic"

	_ "modernc.org/sqlite" // registers the "sqlite" database/sql driver

	"github.com/tomtom215/greeting/internal/logging"
)

// Compile-time interface check.
var _ Sink = (*SQLiteSink)(nil)

const sqliteSchema = `CREATE TABLE IF NOT EXISTS counters (
	id    TEXT PRIMARY KEY,
	count INTEGER NOT NULL DEFAULT 0
)`

// SQLiteSink persists counters in a SQLite database file.
type SQLiteSink struct {
	db     *sql.DB
	closed atomic.Bool
}

// OpenSQLite opens (or creates) the database at path and creates the
// counters table. Use ":memory:" for a throwaway database.
func OpenSQLite(ctx context.Context, path string) (*SQLiteSink, error) {
	if path == "" {
		path = "db.sqlite3"
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage: open sqlite: %w", err)
	}
	// One connection: the write-behind queue is the only writer and an
	// in-memory database only exists on a single connection.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("storage: create sqlite table: %w", err)
	}

	logging.Info().Str("path", path).Msg("SQLite sink opened")
	return &SQLiteSink{db: db}, nil
}

// Write upserts the count for id.
func (s *SQLiteSink) Write(ctx context.Context, id string, count uint64) error {
	if s.closed.Load() {
		return ErrSinkClosed
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO counters (id, count) VALUES (?, ?)`,
		id, int64(count), //nolint:gosec // stored bit-for-bit, read back as uint64
	)
	if err != nil {
		return fmt.Errorf("storage: sqlite write %q: %w", id, err)
	}
	return nil
}

// WriteBatch upserts rows inside a single transaction.
func (s *SQLiteSink) WriteBatch(ctx context.Context, rows []Row) error {
	if s.closed.Load() {
		return ErrSinkClosed
	}
	if len(rows) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage: sqlite begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `INSERT OR REPLACE INTO counters (id, count) VALUES (?, ?)`)
	if err != nil {
		return fmt.Errorf("storage: sqlite prepare: %w", err)
	}
	defer stmt.Close()

	for _, r := range rows {
		if _, err := stmt.ExecContext(ctx, r.ID, int64(r.Count)); err != nil { //nolint:gosec // see Write
			return fmt.Errorf("storage: sqlite batch write %q: %w", r.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("storage: sqlite commit: %w", err)
	}
	return nil
}

// Delete removes the row for id.
func (s *SQLiteSink) Delete(ctx context.Context, id string) error {
	if s.closed.Load() {
		return ErrSinkClosed
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM counters WHERE id = ?`, id); err != nil {
		return fmt.Errorf("storage: sqlite delete %q: %w", id, err)
	}
	return nil
}

// ReadAll returns every row in the counters table.
func (s *SQLiteSink) ReadAll(ctx context.Context) ([]Row, error) {
	if s.closed.Load() {
		return nil, ErrSinkClosed
	}

	rows, err := s.db.QueryContext(ctx, `SELECT id, count FROM counters`)
	if err != nil {
		return nil, fmt.Errorf("storage: sqlite read all: %w", err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var id string
		var count int64
		if err := rows.Scan(&id, &count); err != nil {
			logging.Warn().Err(err).Msg("Skipping unreadable sqlite row")
			continue
		}
		out = append(out, Row{ID: id, Count: uint64(count)}) //nolint:gosec // see Write
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("storage: sqlite iterate: %w", err)
	}
	return out, nil
}

// Driver returns "sqlite".
func (s *SQLiteSink) Driver() string { return DriverSQLite }

// Close closes the database.
func (s *SQLiteSink) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	return s.db.Close()
}

// Greeting - Visit Counter and Profile Card Badges
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/greeting

// Package storage provides the durable sinks that hold an eventually
// consistent copy of the in-memory counter table.
//
// Every backend stores the same logical table: one row per counter id with
// a single count column. Counts are unsigned 64-bit values; SQL backends
// store them bit-for-bit in a signed BIGINT/INTEGER column.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Supported drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
	DriverBadger   = "badger"
	DriverNone     = "none"
)

var (
	// ErrSinkClosed is returned by operations on a closed sink.
	ErrSinkClosed = errors.New("storage: sink closed")

	// ErrUnknownDriver is returned by Open for an unsupported driver name.
	ErrUnknownDriver = errors.New("storage: unknown driver")

	// ErrDisabled is returned by Open when persistence is turned off.
	ErrDisabled = errors.New("storage: persistence disabled")
)

// Row is one persisted counter.
type Row struct {
	ID    string
	Count uint64
}

// Sink is a durable store for counters. Implementations are safe for
// concurrent use, although the write-behind queue only ever issues one
// write at a time.
type Sink interface {
	// Write upserts the count for id.
	Write(ctx context.Context, id string, count uint64) error

	// WriteBatch upserts many rows in as few round trips as the backend
	// allows. Used for the shutdown flush.
	WriteBatch(ctx context.Context, rows []Row) error

	// Delete removes the row for id. Deleting a missing row is not an error.
	Delete(ctx context.Context, id string) error

	// ReadAll returns every persisted row.
	ReadAll(ctx context.Context) ([]Row, error)

	// Driver returns the backend name, used for metrics and logs.
	Driver() string

	// Close releases the underlying resources.
	Close() error
}

// Config selects and configures a sink backend.
type Config struct {
	Driver string

	SQLitePath string

	PostgresDSN string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisKey      string

	BadgerDir      string
	BadgerInMemory bool
}

// Open creates the sink named by cfg.Driver and initialises its schema.
func Open(ctx context.Context, cfg Config) (Sink, error) {
	switch strings.ToLower(cfg.Driver) {
	case DriverSQLite, "":
		return OpenSQLite(ctx, cfg.SQLitePath)
	case DriverPostgres:
		return OpenPostgres(ctx, cfg.PostgresDSN)
	case DriverRedis:
		return OpenRedis(ctx, RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Key:      cfg.RedisKey,
		})
	case DriverBadger:
		return OpenBadger(cfg.BadgerDir, cfg.BadgerInMemory)
	case DriverNone:
		return nil, ErrDisabled
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, cfg.Driver)
	}
}

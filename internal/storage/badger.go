// Greeting - Visit Counter and Profile Card Badges
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/greeting

package storage

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/dgraph-io/badger/v4"

	"github.com/tomtom215/greeting/internal/logging"
)

// Compile-time interface check.
var _ Sink = (*BadgerSink)(nil)

const badgerPrefix = "counter:"

// BadgerSink stores counters in an embedded BadgerDB, one key per counter
// with the count encoded as 8 big-endian bytes.
type BadgerSink struct {
	db     *badger.DB
	closed atomic.Bool
}

// OpenBadger opens (or creates) the database in dir. With inMemory set the
// directory is ignored and nothing touches disk.
func OpenBadger(dir string, inMemory bool) (*BadgerSink, error) {
	if dir == "" && !inMemory {
		dir = "data/badger"
	}

	opts := badger.DefaultOptions(dir).WithSyncWrites(true)
	if inMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("storage: open badger: %w", err)
	}

	logging.Info().Str("dir", dir).Bool("in_memory", inMemory).Msg("Badger sink opened")
	return &BadgerSink{db: db}, nil
}

func badgerKey(id string) []byte {
	return []byte(badgerPrefix + id)
}

func badgerValue(count uint64) []byte {
	val := make([]byte, 8)
	binary.BigEndian.PutUint64(val, count)
	return val
}

// Write stores the count for id.
func (s *BadgerSink) Write(_ context.Context, id string, count uint64) error {
	if s.closed.Load() {
		return ErrSinkClosed
	}

	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(badgerKey(id), badgerValue(count))
	})
	if err != nil {
		return fmt.Errorf("storage: badger write %q: %w", id, err)
	}
	return nil
}

// WriteBatch stores rows through a badger WriteBatch.
func (s *BadgerSink) WriteBatch(_ context.Context, rows []Row) error {
	if s.closed.Load() {
		return ErrSinkClosed
	}

	wb := s.db.NewWriteBatch()
	defer wb.Cancel()

	for _, r := range rows {
		if err := wb.Set(badgerKey(r.ID), badgerValue(r.Count)); err != nil {
			return fmt.Errorf("storage: badger batch write %q: %w", r.ID, err)
		}
	}
	if err := wb.Flush(); err != nil {
		return fmt.Errorf("storage: badger batch flush: %w", err)
	}
	return nil
}

// Delete removes the key for id.
func (s *BadgerSink) Delete(_ context.Context, id string) error {
	if s.closed.Load() {
		return ErrSinkClosed
	}

	err := s.db.Update(func(txn *badger.Txn) error {
		err := txn.Delete(badgerKey(id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("storage: badger delete %q: %w", id, err)
	}
	return nil
}

// ReadAll iterates every counter key.
func (s *BadgerSink) ReadAll(ctx context.Context) ([]Row, error) {
	if s.closed.Load() {
		return nil, ErrSinkClosed
	}

	var out []Row
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(badgerPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}

			item := it.Item()
			id := string(item.Key()[len(prefix):])
			err := item.Value(func(val []byte) error {
				if len(val) != 8 {
					return fmt.Errorf("bad value length %d", len(val))
				}
				out = append(out, Row{ID: id, Count: binary.BigEndian.Uint64(val)})
				return nil
			})
			if err != nil {
				logging.Warn().Err(err).Str("id", id).Msg("Skipping unreadable badger counter")
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("storage: badger read all: %w", err)
	}
	return out, nil
}

// Driver returns "badger".
func (s *BadgerSink) Driver() string { return DriverBadger }

// Close closes the database.
func (s *BadgerSink) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	return s.db.Close()
}

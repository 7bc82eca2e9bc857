// Greeting - Visit Counter and Profile Card Badges
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/greeting

package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/greeting/internal/counter"
	"github.com/tomtom215/greeting/internal/logging"
	"github.com/tomtom215/greeting/internal/metrics"
	"github.com/tomtom215/greeting/internal/storage"
)

// SinkOpener opens the configured sink. storage.ErrDisabled means
// persistence is turned off.
type SinkOpener func(ctx context.Context) (storage.Sink, error)

// CounterLoader receives the persisted counters. Satisfied by *counter.Store.
type CounterLoader interface {
	BulkLoad(entries []counter.Entry)
}

// SinkAttacher takes ownership of an opened sink. Satisfied by
// *writebehind.Queue.
type SinkAttacher interface {
	Attach(sink storage.Sink)
}

// SinkLoaderService opens the sink, loads its rows into the counter store
// and hands the sink to the write-behind queue. Once that has succeeded it
// idles until shutdown; a restart after success does not load again.
// Loaded is closed at that point, and the HTTP listeners wait on it.
type SinkLoaderService struct {
	open        SinkOpener
	store       CounterLoader
	queue       SinkAttacher
	openTimeout time.Duration
	loaded      chan struct{}
	loadedOnce  sync.Once
	logger      zerolog.Logger
}

// NewSinkLoaderService creates the loader. openTimeout bounds opening the
// sink and reading every row.
func NewSinkLoaderService(open SinkOpener, store CounterLoader, queue SinkAttacher, openTimeout time.Duration) *SinkLoaderService {
	if openTimeout <= 0 {
		openTimeout = 30 * time.Second
	}
	return &SinkLoaderService{
		open:        open,
		store:       store,
		queue:       queue,
		openTimeout: openTimeout,
		loaded:      make(chan struct{}),
		logger:      logging.WithComponent("sink-loader"),
	}
}

// Ready reports whether persisted counters have been loaded, or
// persistence is disabled.
func (s *SinkLoaderService) Ready() bool {
	select {
	case <-s.loaded:
		return true
	default:
		return false
	}
}

// Loaded returns a channel that is closed once Ready would report true.
func (s *SinkLoaderService) Loaded() <-chan struct{} {
	return s.loaded
}

func (s *SinkLoaderService) markLoaded() {
	s.loadedOnce.Do(func() { close(s.loaded) })
}

// Serve implements suture.Service.
func (s *SinkLoaderService) Serve(ctx context.Context) error {
	if !s.Ready() {
		if err := s.load(ctx); err != nil {
			s.logger.Error().Err(err).Msg("Failed to load counters from sink")
			return err
		}
	}

	<-ctx.Done()
	return ctx.Err()
}

func (s *SinkLoaderService) load(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.openTimeout)
	defer cancel()

	sink, err := s.open(ctx)
	if errors.Is(err, storage.ErrDisabled) {
		s.logger.Warn().Msg("Persistence disabled, counters are kept in memory only")
		s.markLoaded()
		return nil
	}
	if err != nil {
		return fmt.Errorf("open sink: %w", err)
	}

	start := time.Now()
	rows, err := sink.ReadAll(ctx)
	metrics.RecordSinkWrite(sink.Driver(), "read_all", time.Since(start), err)
	if err != nil {
		if cerr := sink.Close(); cerr != nil {
			s.logger.Warn().Err(cerr).Msg("Failed to close sink after read error")
		}
		return fmt.Errorf("read counters from %s: %w", sink.Driver(), err)
	}

	entries := make([]counter.Entry, len(rows))
	for i, row := range rows {
		entries[i] = counter.Entry{ID: row.ID, Count: row.Count}
	}
	s.store.BulkLoad(entries)
	s.queue.Attach(sink)
	s.markLoaded()

	s.logger.Info().
		Str("driver", sink.Driver()).
		Int("counters", len(entries)).
		Dur("duration", time.Since(start)).
		Msg("Counters loaded from sink")
	return nil
}

// String implements fmt.Stringer.
func (s *SinkLoaderService) String() string {
	return "sink-loader"
}

// Greeting - Visit Counter and Profile Card Badges
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/greeting

package counter

import (
	"context"

	"github.com/tomtom215/greeting/internal/logging"
	"github.com/tomtom215/greeting/internal/metrics"
)

// checkCapacity starts a sweep when the table has grown past MaxCounters.
// Only one sweep runs at a time and the caller never waits for it.
func (s *Store) checkCapacity(size int64) {
	if s.cfg.MaxCounters <= 0 || !s.cfg.SweepSingletons || size <= int64(s.cfg.MaxCounters) {
		return
	}
	if !s.sweeping.CompareAndSwap(false, true) {
		return
	}

	logging.Warn().
		Int64("size", size).
		Int("max_counters", s.cfg.MaxCounters).
		Msg("Too many counters, starting cleanup sweep")
	metrics.CounterSweeps.Inc()

	run := func(ctx context.Context) {
		defer s.sweeping.Store(false)
		s.SweepSingletons(ctx)
	}

	if s.tasks == nil {
		go run(context.Background())
		return
	}
	if !s.tasks.Go("capacity-sweep", run) {
		s.sweeping.Store(false)
		logging.Warn().Msg("Shutting down, capacity sweep skipped")
	}
}

// SweepSingletons removes every counter whose count is exactly 1 and returns
// how many were removed. Counters that were visited more than once are
// never touched. Each removal is persisted as a tombstone.
func (s *Store) SweepSingletons(ctx context.Context) int {
	var removed []string

	for _, sh := range s.shards {
		if ctx.Err() != nil {
			break
		}

		sh.mu.Lock()
		for id, c := range sh.counters {
			if c.Load() == 1 {
				delete(sh.counters, id)
				removed = append(removed, id)
			}
		}
		sh.mu.Unlock()
	}

	if len(removed) == 0 {
		return 0
	}

	size := s.size.Add(-int64(len(removed)))
	metrics.CountersTotal.Set(float64(size))
	metrics.CounterSwept.Add(float64(len(removed)))

	for _, id := range removed {
		s.emit(id, nil)
	}

	logging.Info().Int("removed", len(removed)).Int64("size", size).Msg("Counter cleanup sweep finished")
	return len(removed)
}

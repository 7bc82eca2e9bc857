// Greeting - Visit Counter and Profile Card Badges
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/greeting

// Package tasks runs short-lived background work that is triggered by
// requests (capacity sweeps, profile fetches, cache retention) and keeps
// track of it so shutdown can wait for the work to finish.
//
// Long-running loops do not belong here; they are suture services in the
// supervisor tree.
package tasks

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/tomtom215/greeting/internal/logging"
	"github.com/tomtom215/greeting/internal/metrics"
)

// ErrClosed is returned by Drain when called twice and reported by Go
// (as false) after Drain has started.
var ErrClosed = errors.New("task supervisor closed")

// Supervisor records every task it starts. The zero value is not usable;
// call New.
type Supervisor struct {
	mu     sync.RWMutex
	wg     sync.WaitGroup
	closed bool

	ctx    context.Context
	cancel context.CancelFunc

	running atomic.Int64
	started atomic.Uint64
}

// New creates a Supervisor whose tasks receive a context that is cancelled
// when Drain gives up waiting.
func New() *Supervisor {
	ctx, cancel := context.WithCancel(context.Background())
	return &Supervisor{ctx: ctx, cancel: cancel}
}

// Go starts fn in a new goroutine and returns true. After Drain has been
// called no new tasks are accepted and Go returns false without running fn.
// A panic inside fn is recovered and logged.
func (s *Supervisor) Go(name string, fn func(ctx context.Context)) bool {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		logging.Debug().Str("task", name).Msg("Task rejected, supervisor draining")
		return false
	}
	s.wg.Add(1)
	s.mu.RUnlock()

	s.running.Add(1)
	s.started.Add(1)
	metrics.TasksRunning.Inc()
	metrics.TasksStarted.WithLabelValues(name).Inc()

	go func() {
		defer func() {
			if r := recover(); r != nil {
				logging.Error().
					Str("task", name).
					Str("panic", fmt.Sprint(r)).
					Msg("Background task panicked")
			}
			s.running.Add(-1)
			metrics.TasksRunning.Dec()
			s.wg.Done()
		}()

		fn(s.ctx)
	}()

	return true
}

// Running returns the number of tasks currently executing.
func (s *Supervisor) Running() int64 {
	return s.running.Load()
}

// Started returns the total number of tasks started.
func (s *Supervisor) Started() uint64 {
	return s.started.Load()
}

// Drain stops accepting new tasks and waits for running ones to finish.
// If ctx expires first the task context is cancelled and ctx.Err() is
// returned; tasks that ignore their context keep running detached.
func (s *Supervisor) Drain(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.closed = true
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.cancel()
		return nil
	case <-ctx.Done():
		s.cancel()
		logging.Warn().
			Int64("running", s.running.Load()).
			Msg("Background tasks still running after drain timeout")
		return ctx.Err()
	}
}

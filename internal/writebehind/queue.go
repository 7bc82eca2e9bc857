// Greeting - Visit Counter and Profile Card Badges
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/greeting

// Package writebehind mirrors counter mutations into a durable sink without
// coupling request latency to sink latency.
//
// The counter store hands every mutation to Queue.Persist, which never
// blocks: when the channel is full the message is dropped and logged. A
// single consumer (Serve, run as a suture service) applies messages to the
// sink one at a time. Until a sink has been attached, consumed messages are
// discarded rather than buffered. The sink is advisory; the final Flush at
// shutdown writes every counter once.
package writebehind

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/tomtom215/greeting/internal/counter"
	"github.com/tomtom215/greeting/internal/logging"
	"github.com/tomtom215/greeting/internal/metrics"
	"github.com/tomtom215/greeting/internal/storage"
)

// Compile-time interface check.
var _ counter.Persister = (*Queue)(nil)

// ErrSinkUnavailable is returned by Flush when no sink has been attached.
var ErrSinkUnavailable = errors.New("writebehind: sink not attached")

// DefaultCapacity is the channel size used when Config.Capacity is zero.
const DefaultCapacity = 1024

// Config holds queue settings.
type Config struct {
	// Capacity is the number of messages buffered between the store and
	// the sink writer. Default: 1024
	Capacity int

	// WriteTimeout bounds a single sink write. Default: 5s
	WriteTimeout time.Duration
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		Capacity:     DefaultCapacity,
		WriteTimeout: 5 * time.Second,
	}
}

type sinkRef struct {
	sink storage.Sink
}

// Queue is a bounded write-behind queue. Create it with New.
type Queue struct {
	cfg    Config
	ch     chan counter.PersistMessage
	sink   atomic.Pointer[sinkRef]
	gate   *semaphore.Weighted
	logger zerolog.Logger

	dropped atomic.Uint64
	written atomic.Uint64
}

// New creates a queue with no sink attached.
func New(cfg Config) *Queue {
	if cfg.Capacity <= 0 {
		cfg.Capacity = DefaultCapacity
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}

	return &Queue{
		cfg:    cfg,
		ch:     make(chan counter.PersistMessage, cfg.Capacity),
		gate:   semaphore.NewWeighted(1),
		logger: logging.WithComponent("writebehind"),
	}
}

// Persist enqueues msg. It never blocks; a full channel drops the message.
func (q *Queue) Persist(msg counter.PersistMessage) {
	select {
	case q.ch <- msg:
		metrics.PersistMessages.WithLabelValues("queued").Inc()
		metrics.PersistQueueDepth.Set(float64(len(q.ch)))
	default:
		q.dropped.Add(1)
		metrics.PersistMessages.WithLabelValues("dropped_full").Inc()
		q.logger.Warn().Str("id", msg.ID).Msg("Persist queue full, message dropped")
	}
}

// Attach makes sink the write target. Messages consumed before the first
// Attach are discarded.
func (q *Queue) Attach(sink storage.Sink) {
	q.sink.Store(&sinkRef{sink: sink})
	q.logger.Info().Str("driver", sink.Driver()).Msg("Sink attached")
}

// Ready reports whether a sink is attached.
func (q *Queue) Ready() bool {
	return q.sink.Load() != nil
}

// Pending returns the number of messages waiting in the channel.
func (q *Queue) Pending() int {
	return len(q.ch)
}

// Dropped returns how many messages were dropped because the channel was full
// or no sink was attached.
func (q *Queue) Dropped() uint64 {
	return q.dropped.Load()
}

// Written returns how many messages reached the sink.
func (q *Queue) Written() uint64 {
	return q.written.Load()
}

// Serve consumes messages until ctx is cancelled. It implements
// suture.Service.
func (q *Queue) Serve(ctx context.Context) error {
	q.logger.Debug().Int("capacity", cap(q.ch)).Msg("Write-behind worker started")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg := <-q.ch:
			metrics.PersistQueueDepth.Set(float64(len(q.ch)))
			q.apply(ctx, msg)
		}
	}
}

// String implements fmt.Stringer for suture logs.
func (q *Queue) String() string {
	return "writebehind"
}

func (q *Queue) apply(ctx context.Context, msg counter.PersistMessage) {
	ref := q.sink.Load()
	if ref == nil {
		q.dropped.Add(1)
		metrics.PersistMessages.WithLabelValues("dropped_not_ready").Inc()
		q.logger.Debug().Str("id", msg.ID).Msg("Sink not ready, message discarded")
		return
	}

	if err := q.gate.Acquire(ctx, 1); err != nil {
		return
	}
	defer q.gate.Release(1)

	wctx, cancel := context.WithTimeout(ctx, q.cfg.WriteTimeout)
	defer cancel()

	if err := q.write(wctx, ref.sink, msg); err != nil {
		q.logger.Error().Err(err).Str("id", msg.ID).Msg("Failed to persist counter")
		return
	}
	q.written.Add(1)
}

func (q *Queue) write(ctx context.Context, sink storage.Sink, msg counter.PersistMessage) error {
	start := time.Now()
	var err error
	op := "write"
	if msg.IsTombstone() {
		op = "delete"
		err = sink.Delete(ctx, msg.ID)
	} else {
		err = sink.Write(ctx, msg.ID, *msg.Count)
	}
	metrics.RecordSinkWrite(sink.Driver(), op, time.Since(start), err)
	return err
}

// Flush applies any messages still in the channel and then writes every
// entry in one batch. It is called once at shutdown after the request
// servers have stopped, so entries reflect the final counter state.
func (q *Queue) Flush(ctx context.Context, entries []counter.Entry) error {
	ref := q.sink.Load()
	if ref == nil {
		return ErrSinkUnavailable
	}

	if err := q.gate.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("writebehind: flush: %w", err)
	}
	defer q.gate.Release(1)

	var errs []error
	drained := 0
drain:
	for {
		select {
		case msg := <-q.ch:
			drained++
			if err := q.write(ctx, ref.sink, msg); err != nil {
				errs = append(errs, err)
			}
		default:
			break drain
		}
	}
	metrics.PersistQueueDepth.Set(0)

	rows := make([]storage.Row, len(entries))
	for i, e := range entries {
		rows[i] = storage.Row{ID: e.ID, Count: e.Count}
	}

	start := time.Now()
	err := ref.sink.WriteBatch(ctx, rows)
	metrics.RecordSinkWrite(ref.sink.Driver(), "batch", time.Since(start), err)
	if err != nil {
		errs = append(errs, err)
	}

	q.logger.Info().
		Int("drained", drained).
		Int("counters", len(rows)).
		Dur("duration", time.Since(start)).
		Msg("Counters flushed to sink")

	if len(errs) > 0 {
		return fmt.Errorf("writebehind: flush: %w", errors.Join(errs...))
	}
	return nil
}

// Close closes the attached sink, if any.
func (q *Queue) Close() error {
	ref := q.sink.Swap(nil)
	if ref == nil {
		return nil
	}
	return ref.sink.Close()
}

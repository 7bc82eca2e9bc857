// Greeting - Visit Counter and Profile Card Badges
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/greeting

// Package counter implements the in-memory visit counter table.
//
// Counters live in a sharded map of atomic uint64 values. Existing counters
// are incremented without taking a write lock; creating and deleting a
// counter requires the caller to pass the Authorizer. Every mutation emits a
// PersistMessage to the configured Persister (the write-behind queue), which
// never blocks the caller.
package counter

import (
	"context"
	"net/netip"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/sync/errgroup"

	"github.com/tomtom215/greeting/internal/logging"
	"github.com/tomtom215/greeting/internal/metrics"
	"github.com/tomtom215/greeting/internal/tasks"
)

// DefaultMaxCounters is the table size above which the capacity sweep runs.
const DefaultMaxCounters = 131072

const defaultShards = 64

// Entry is one counter.
type Entry struct {
	ID    string
	Count uint64
}

// PersistMessage describes a change to be mirrored into the durable sink.
// A nil Count means the row must be deleted.
type PersistMessage struct {
	ID    string
	Count *uint64
}

// IsTombstone reports whether the message deletes the row.
func (m PersistMessage) IsTombstone() bool {
	return m.Count == nil
}

// Persister receives persist messages. Persist must not block.
type Persister interface {
	Persist(msg PersistMessage)
}

// Config holds counter store settings.
type Config struct {
	// MaxCounters is the table size that triggers a capacity sweep.
	// Zero disables the sweep.
	MaxCounters int

	// SweepSingletons enables removal of counters whose count is exactly 1
	// when the table grows past MaxCounters.
	SweepSingletons bool

	// Shards is the number of map shards. Default: 64
	Shards int
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		MaxCounters:     DefaultMaxCounters,
		SweepSingletons: true,
		Shards:          defaultShards,
	}
}

type shard struct {
	mu       sync.RWMutex
	counters map[string]*atomic.Uint64
}

// Store is the counter table. Create it with NewStore.
type Store struct {
	cfg     Config
	shards  []*shard
	size    atomic.Int64
	auth    *Authorizer
	persist Persister
	tasks   *tasks.Supervisor

	sweeping atomic.Bool
}

// NewStore creates an empty store. persist and tasks may be nil: without a
// Persister mutations are not mirrored, without a task supervisor sweeps
// run on plain goroutines.
func NewStore(cfg Config, auth *Authorizer, persist Persister, ts *tasks.Supervisor) *Store {
	if cfg.Shards <= 0 {
		cfg.Shards = defaultShards
	}
	if auth == nil {
		auth = NewAuthorizer("", nil)
	}

	shards := make([]*shard, cfg.Shards)
	for i := range shards {
		shards[i] = &shard{counters: make(map[string]*atomic.Uint64)}
	}

	return &Store{
		cfg:     cfg,
		shards:  shards,
		auth:    auth,
		persist: persist,
		tasks:   ts,
	}
}

// Authorizer returns the store's authorizer.
func (s *Store) Authorizer() *Authorizer {
	return s.auth
}

func (s *Store) shardFor(id string) *shard {
	return s.shards[xxhash.Sum64String(id)%uint64(len(s.shards))]
}

func (s *Store) emit(id string, count *uint64) {
	if s.persist == nil {
		return
	}
	s.persist.Persist(PersistMessage{ID: id, Count: count})
}

// IncrementOrCreate increments the counter for id and returns the new value.
//
// When debug is set an existing counter is read without being changed and
// nothing is persisted. When id does not exist it is created with count 1,
// but only if the caller passes the Authorizer; otherwise (0, false) is
// returned and the table is left untouched.
func (s *Store) IncrementOrCreate(ctx context.Context, id, credential string, origin netip.Addr, debug bool) (uint64, bool) {
	sh := s.shardFor(id)

	// The increment happens under the read lock so a concurrent capacity
	// sweep (write lock) never removes a counter mid-increment.
	sh.mu.RLock()
	c, ok := sh.counters[id]
	var n uint64
	if ok {
		if debug {
			n = c.Load()
		} else {
			n = c.Add(1)
		}
	}
	sh.mu.RUnlock()

	if ok {
		if debug {
			logging.Ctx(ctx).Debug().Str("id", id).Msg("Debug mode, count not increased")
			metrics.RecordCounterOperation("read", true)
			return n, true
		}
		s.emit(id, &n)
		metrics.RecordCounterOperation("increment", true)
		return n, true
	}

	if debug {
		return 0, false
	}

	if !s.auth.Authorized(credential, origin) {
		logging.Ctx(ctx).Warn().
			Str("id", id).
			Str("origin", origin.String()).
			Msg("Access key incorrect or not configured, counter not created")
		metrics.RecordCounterOperation("create", false)
		return 0, false
	}

	return s.create(ctx, sh, id), true
}

// create inserts id with count 1, or increments it if another caller won
// the race to create it.
func (s *Store) create(ctx context.Context, sh *shard, id string) uint64 {
	sh.mu.Lock()
	if c, ok := sh.counters[id]; ok {
		n := c.Add(1)
		sh.mu.Unlock()
		s.emit(id, &n)
		metrics.RecordCounterOperation("increment", true)
		return n
	}
	c := &atomic.Uint64{}
	c.Store(1)
	sh.counters[id] = c
	size := s.size.Add(1)
	sh.mu.Unlock()

	metrics.CountersTotal.Set(float64(size))
	metrics.RecordCounterOperation("create", true)
	logging.Ctx(ctx).Info().Str("id", id).Msg("New counter")

	one := uint64(1)
	s.emit(id, &one)
	s.checkCapacity(size)
	return 1
}

// Delete removes the counter for id. The caller must pass the Authorizer.
func (s *Store) Delete(ctx context.Context, id, credential string, origin netip.Addr) error {
	if !s.auth.Authorized(credential, origin) {
		logging.Ctx(ctx).Warn().Str("id", id).Msg("Access key incorrect or not configured, counter not deleted")
		metrics.RecordCounterOperation("delete", false)
		return ErrUnauthorized
	}

	sh := s.shardFor(id)
	sh.mu.Lock()
	c, ok := sh.counters[id]
	if ok {
		delete(sh.counters, id)
	}
	sh.mu.Unlock()

	if !ok {
		logging.Ctx(ctx).Debug().Str("id", id).Msg("Counter not found")
		metrics.RecordCounterOperation("delete", false)
		return ErrNotFound
	}

	size := s.size.Add(-1)
	metrics.CountersTotal.Set(float64(size))
	metrics.RecordCounterOperation("delete", true)
	logging.Ctx(ctx).Info().Str("id", id).Uint64("count", c.Load()).Msg("Deleted counter")

	s.emit(id, nil)
	return nil
}

// Get returns the current count for id without changing it.
func (s *Store) Get(id string) (uint64, bool) {
	sh := s.shardFor(id)
	sh.mu.RLock()
	defer sh.mu.RUnlock()

	c, ok := sh.counters[id]
	if !ok {
		return 0, false
	}
	return c.Load(), true
}

// Len returns the number of counters.
func (s *Store) Len() int {
	return int(s.size.Load())
}

// BulkLoad inserts entries, one goroutine per shard. An existing counter is
// only raised, never lowered, so requests served before the load are kept.
// Nothing is persisted.
func (s *Store) BulkLoad(entries []Entry) {
	s.load(entries, false)
}

// EnsureAll makes sure every id exists, inserting missing ones at 0.
func (s *Store) EnsureAll(ids []string) {
	entries := make([]Entry, 0, len(ids))
	for _, id := range ids {
		if id != "" {
			entries = append(entries, Entry{ID: id})
		}
	}
	s.load(entries, true)
}

func (s *Store) load(entries []Entry, onlyMissing bool) {
	if len(entries) == 0 {
		return
	}

	byShard := make(map[*shard][]Entry, len(s.shards))
	for _, e := range entries {
		sh := s.shardFor(e.ID)
		byShard[sh] = append(byShard[sh], e)
	}

	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for sh, batch := range byShard {
		g.Go(func() error {
			var added int64
			sh.mu.Lock()
			for _, e := range batch {
				c, ok := sh.counters[e.ID]
				if !ok {
					c = &atomic.Uint64{}
					c.Store(e.Count)
					sh.counters[e.ID] = c
					added++
					continue
				}
				if onlyMissing {
					continue
				}
				for {
					cur := c.Load()
					if cur >= e.Count || c.CompareAndSwap(cur, e.Count) {
						break
					}
				}
			}
			sh.mu.Unlock()
			s.size.Add(added)
			return nil
		})
	}
	_ = g.Wait()

	metrics.CountersTotal.Set(float64(s.size.Load()))
	logging.Debug().Int("entries", len(entries)).Bool("only_missing", onlyMissing).Msg("Counters loaded")
}

// SnapshotAll returns a copy of every counter.
func (s *Store) SnapshotAll() []Entry {
	out := make([]Entry, 0, s.Len())
	for _, sh := range s.shards {
		sh.mu.RLock()
		for id, c := range sh.counters {
			out = append(out, Entry{ID: id, Count: c.Load()})
		}
		sh.mu.RUnlock()
	}
	return out
}

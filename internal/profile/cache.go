// Greeting - Visit Counter and Profile Card Badges
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/greeting

// Package profile caches linux.do user profiles in front of the rate
// limited upstream API.
//
// Every key maps to one slot that is either Pending (a fetch has been
// claimed) or Ready (a value and the time it was fetched). Claiming the
// Pending state is what makes fetches single-flight: for any key at most one
// upstream fetch is outstanding no matter how many requests ask for it.
// Stale values are served immediately while one refresh runs in the
// background, and a single refresh worker (Serve) re-fetches entries as
// they expire.
package profile

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/rs/zerolog"

	"github.com/tomtom215/greeting/internal/logging"
	"github.com/tomtom215/greeting/internal/metrics"
	"github.com/tomtom215/greeting/internal/tasks"
)

// Defaults.
const (
	DefaultTTL          = 300 * time.Second
	DefaultMaxKeys      = 5120
	DefaultFetchTimeout = 30 * time.Second

	cacheShards = 16
)

// Config holds cache settings.
type Config struct {
	// TTL is the freshness window of a fetched profile. Default: 300s
	TTL time.Duration

	// MaxKeys is the slot count above which expired entries are swept and
	// the length at which the refresh queue is truncated. Default: 5120
	MaxKeys int

	// FetchTimeout bounds a background fetch, rate limiter waits included.
	// Default: 30s
	FetchTimeout time.Duration
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		TTL:          DefaultTTL,
		MaxKeys:      DefaultMaxKeys,
		FetchTimeout: DefaultFetchTimeout,
	}
}

// Task performs the fetch or refresh handed out by GetOrFetch. It blocks
// until the upstream call has finished and the cache has been updated.
type Task func(ctx context.Context)

type slotState uint8

const (
	statePending slotState = iota
	stateReady
)

type slot struct {
	state      slotState
	value      *UserInfo
	fetchedAt  time.Time
	refreshing bool
}

type cacheShard struct {
	mu    sync.Mutex
	slots map[string]*slot
}

// Cache is the profile cache. Create it with NewCache.
type Cache struct {
	cfg     Config
	fetcher Fetcher
	tasks   *tasks.Supervisor
	logger  zerolog.Logger
	now     func() time.Time

	shards [cacheShards]*cacheShard
	size   atomic.Int64

	queue     refreshQueue
	retaining atomic.Bool
}

// NewCache creates an empty cache. ts may be nil, in which case background
// work runs on plain goroutines.
func NewCache(cfg Config, fetcher Fetcher, ts *tasks.Supervisor) *Cache {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.MaxKeys <= 0 {
		cfg.MaxKeys = DefaultMaxKeys
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = DefaultFetchTimeout
	}

	c := &Cache{
		cfg:     cfg,
		fetcher: fetcher,
		tasks:   ts,
		logger:  logging.WithComponent("profile"),
		now:     time.Now,
	}
	for i := range c.shards {
		c.shards[i] = &cacheShard{slots: make(map[string]*slot)}
	}
	return c
}

func (c *Cache) shardFor(key string) *cacheShard {
	return c.shards[xxhash.Sum64String(key)%cacheShards]
}

// spawn runs fn on the task supervisor. After Drain the work is dropped
// and false is returned.
func (c *Cache) spawn(name string, fn func(ctx context.Context)) bool {
	if c.tasks == nil {
		go fn(context.Background())
		return true
	}
	if !c.tasks.Go(name, fn) {
		c.logger.Warn().Str("task", name).Msg("Shutting down, background task dropped")
		return false
	}
	return true
}

// GetOrFetch looks key up.
//
//   - Fresh hit: (value, nil).
//   - Stale hit: (value, task). The task refreshes the entry; only one
//     refresh task per key is handed out until it completes.
//   - Miss, authorized: the Pending state is claimed and (nil, task) is
//     returned; the task fetches the profile.
//   - Miss, another caller already fetching: (nil, nil).
//   - Miss, not authorized: (nil, nil) and nothing is claimed.
func (c *Cache) GetOrFetch(key string, authorized bool) (*UserInfo, Task) {
	sh := c.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	s, ok := sh.slots[key]
	switch {
	case ok && s.state == stateReady:
		if c.now().Sub(s.fetchedAt) <= c.cfg.TTL {
			metrics.ProfileCacheLookups.WithLabelValues("fresh").Inc()
			return s.value, nil
		}
		metrics.ProfileCacheLookups.WithLabelValues("stale").Inc()
		if s.refreshing {
			return s.value, nil
		}
		s.refreshing = true
		return s.value, c.refreshTask(key, s.fetchedAt)

	case ok:
		metrics.ProfileCacheLookups.WithLabelValues("pending").Inc()
		return nil, nil

	case !authorized:
		metrics.ProfileCacheLookups.WithLabelValues("unauthorized").Inc()
		return nil, nil
	}

	sh.slots[key] = &slot{state: statePending}
	metrics.ProfileCacheSize.Set(float64(c.size.Add(1)))
	metrics.ProfileCacheLookups.WithLabelValues("miss").Inc()
	return nil, c.fetchTask(key)
}

// Peek returns the cached value for key regardless of freshness.
func (c *Cache) Peek(key string) *UserInfo {
	sh := c.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	if s, ok := sh.slots[key]; ok && s.state == stateReady {
		return s.value
	}
	return nil
}

// Get returns the best available value for key. A miss claimed by this
// caller waits for the fetch (bounded by ctx); a stale hit returns at once
// and refreshes in the background. nil means there is nothing to show yet.
func (c *Cache) Get(ctx context.Context, key string, authorized bool) *UserInfo {
	value, task := c.GetOrFetch(key, authorized)
	if task == nil {
		return value
	}

	if value != nil {
		if !c.spawn("profile-refresh", func(ctx context.Context) { task(ctx) }) {
			c.dropRefreshing(key)
		}
		return value
	}

	done := make(chan struct{})
	if !c.spawn("profile-fetch", func(ctx context.Context) {
		defer close(done)
		task(ctx)
	}) {
		c.releasePending(key)
		return nil
	}

	select {
	case <-done:
	case <-ctx.Done():
		logging.Ctx(ctx).Debug().Str("user", key).Msg("Request finished before profile fetch")
	}
	return c.Peek(key)
}

// fetchTask fetches a key whose Pending state the caller owns.
func (c *Cache) fetchTask(key string) Task {
	return func(ctx context.Context) {
		value, err := c.fetch(ctx, key)
		if err != nil {
			c.logger.Warn().Err(err).Str("user", key).Msg("Profile fetch failed")
			c.releasePending(key)
			return
		}
		c.WriteCache(key, value)
	}
}

// refreshTask re-fetches a Ready key. Failure keeps the old value.
func (c *Cache) refreshTask(key string, fetchedAt time.Time) Task {
	return func(ctx context.Context) {
		value, err := c.fetch(ctx, key)
		if err != nil {
			c.logger.Warn().Err(err).Str("user", key).Msg("Profile refresh failed")
			c.clearRefreshing(key, fetchedAt)
			return
		}
		c.WriteCache(key, value)
	}
}

func (c *Cache) fetch(ctx context.Context, key string) (*UserInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.FetchTimeout)
	defer cancel()
	return c.fetcher.Fetch(ctx, key)
}

func (c *Cache) releasePending(key string) {
	sh := c.shardFor(key)
	sh.mu.Lock()
	if s, ok := sh.slots[key]; ok && s.state == statePending {
		delete(sh.slots, key)
		metrics.ProfileCacheSize.Set(float64(c.size.Add(-1)))
	}
	sh.mu.Unlock()
}

func (c *Cache) clearRefreshing(key string, fetchedAt time.Time) {
	sh := c.shardFor(key)
	sh.mu.Lock()
	if s, ok := sh.slots[key]; ok && s.state == stateReady && s.fetchedAt.Equal(fetchedAt) {
		s.refreshing = false
	}
	sh.mu.Unlock()
}

// dropRefreshing clears the refresh claim on key when its task could not be
// started.
func (c *Cache) dropRefreshing(key string) {
	sh := c.shardFor(key)
	sh.mu.Lock()
	if s, ok := sh.slots[key]; ok && s.state == stateReady {
		s.refreshing = false
	}
	sh.mu.Unlock()
}

// WriteCache stores value for key, releasing any Pending claim, and queues
// the key for refresh. When the cache holds more than MaxKeys slots a
// background sweep drops every entry older than the TTL.
func (c *Cache) WriteCache(key string, value *UserInfo) {
	if value == nil {
		return
	}
	fetchedAt := value.FetchedAt
	if fetchedAt.IsZero() {
		fetchedAt = c.now()
	}

	sh := c.shardFor(key)
	sh.mu.Lock()
	if _, ok := sh.slots[key]; !ok {
		metrics.ProfileCacheSize.Set(float64(c.size.Add(1)))
	}
	sh.slots[key] = &slot{state: stateReady, value: value, fetchedAt: fetchedAt}
	sh.mu.Unlock()

	c.queue.pushFront(refreshItem{key: key, fetchedAt: fetchedAt}, c.cfg.MaxKeys)

	if c.Len() > c.cfg.MaxKeys && c.retaining.CompareAndSwap(false, true) {
		if !c.spawn("profile-retain", func(context.Context) {
			defer c.retaining.Store(false)
			c.RetainFresh()
		}) {
			c.retaining.Store(false)
		}
	}
}

// RetainFresh removes every Ready entry older than the TTL and returns how
// many were removed. Pending claims and entries being refreshed are kept.
func (c *Cache) RetainFresh() int {
	now := c.now()
	removed := 0
	for _, sh := range c.shards {
		sh.mu.Lock()
		for key, s := range sh.slots {
			if s.state == stateReady && !s.refreshing && now.Sub(s.fetchedAt) > c.cfg.TTL {
				delete(sh.slots, key)
				removed++
			}
		}
		sh.mu.Unlock()
	}

	if removed > 0 {
		metrics.ProfileCacheSize.Set(float64(c.size.Add(-int64(removed))))
		metrics.ProfileCacheEvictions.Add(float64(removed))
		c.logger.Info().Int("removed", removed).Int("size", c.Len()).Msg("Expired profiles removed")
	}
	return removed
}

// Len returns the number of slots, Pending ones included.
func (c *Cache) Len() int {
	return int(c.size.Load())
}

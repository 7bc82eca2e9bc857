// Greeting - Visit Counter and Profile Card Badges
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/greeting

package profile

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tomtom215/greeting/internal/tasks"
)

// countingFetcher returns a profile for every user and counts calls.
type countingFetcher struct {
	calls atomic.Int32
	delay time.Duration
	fail  atomic.Bool
	now   func() time.Time
}

func (f *countingFetcher) Fetch(ctx context.Context, username string) (*UserInfo, error) {
	f.calls.Add(1)
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.fail.Load() {
		return nil, errors.New("upstream down")
	}
	now := time.Now
	if f.now != nil {
		now = f.now
	}
	return &UserInfo{User: User{Username: username}, FetchedAt: now()}, nil
}

// fakeClock is a settable clock for freshness checks.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newClockedCache(cfg Config, f *countingFetcher) (*Cache, *fakeClock) {
	clock := &fakeClock{t: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	f.now = clock.Now
	c := NewCache(cfg, f, tasks.New())
	c.now = clock.Now
	return c, clock
}

func TestGetOrFetchMissClaimsOnce(t *testing.T) {
	t.Parallel()

	f := &countingFetcher{}
	c, _ := newClockedCache(DefaultConfig(), f)

	value, task := c.GetOrFetch("bob", true)
	if value != nil || task == nil {
		t.Fatalf("first lookup = (%v, task=%v), want (nil, task)", value, task != nil)
	}

	// The claim is held until the task finishes.
	if v, tk := c.GetOrFetch("bob", true); v != nil || tk != nil {
		t.Fatalf("second lookup = (%v, task=%v), want (nil, nil)", v, tk != nil)
	}

	task(context.Background())

	v, tk := c.GetOrFetch("bob", true)
	if v == nil || v.User.Username != "bob" || tk != nil {
		t.Fatalf("lookup after fetch = (%v, task=%v), want fresh value", v, tk != nil)
	}
	if f.calls.Load() != 1 {
		t.Errorf("fetch calls = %d, want 1", f.calls.Load())
	}
}

func TestGetOrFetchUnauthorizedColdKey(t *testing.T) {
	t.Parallel()

	f := &countingFetcher{}
	c, _ := newClockedCache(DefaultConfig(), f)

	if v, tk := c.GetOrFetch("bob", false); v != nil || tk != nil {
		t.Fatalf("GetOrFetch(bob, false) = (%v, task=%v), want (nil, nil)", v, tk != nil)
	}
	if c.Len() != 0 {
		t.Errorf("unauthorized lookup claimed a slot, Len() = %d", c.Len())
	}
	if got := c.Get(context.Background(), "bob", false); got != nil {
		t.Errorf("Get(bob, false) = %v, want nil", got)
	}
	if f.calls.Load() != 0 {
		t.Errorf("fetch calls = %d, want 0", f.calls.Load())
	}
}

func TestUnauthorizedCallerSeesCachedValue(t *testing.T) {
	t.Parallel()

	f := &countingFetcher{}
	c, _ := newClockedCache(DefaultConfig(), f)
	c.WriteCache("carol", &UserInfo{User: User{Username: "carol"}})

	if v, _ := c.GetOrFetch("carol", false); v == nil {
		t.Error("cached value should be visible without authorization")
	}
}

func TestStaleHitHandsOutOneRefresh(t *testing.T) {
	t.Parallel()

	f := &countingFetcher{}
	c, clock := newClockedCache(DefaultConfig(), f)

	original := &UserInfo{User: User{Username: "dave", TrustLevel: 1}, FetchedAt: clock.Now()}
	c.WriteCache("dave", original)

	clock.Advance(DefaultTTL + time.Second)

	v, task := c.GetOrFetch("dave", false)
	if v != original || task == nil {
		t.Fatalf("stale lookup = (%v, task=%v), want (original, task)", v, task != nil)
	}

	// A second stale read still gets the old value but no second task.
	if v2, task2 := c.GetOrFetch("dave", true); v2 != original || task2 != nil {
		t.Fatalf("second stale lookup = (%v, task=%v), want (original, nil)", v2, task2 != nil)
	}

	task(context.Background())

	v3, task3 := c.GetOrFetch("dave", false)
	if v3 == original || task3 != nil {
		t.Errorf("lookup after refresh should return the new fresh value")
	}
	if f.calls.Load() != 1 {
		t.Errorf("fetch calls = %d, want 1", f.calls.Load())
	}
}

func TestFailedRefreshKeepsOldValue(t *testing.T) {
	t.Parallel()

	f := &countingFetcher{}
	f.fail.Store(true)
	c, clock := newClockedCache(DefaultConfig(), f)

	original := &UserInfo{User: User{Username: "erin"}, FetchedAt: clock.Now()}
	c.WriteCache("erin", original)
	clock.Advance(2 * DefaultTTL)

	_, task := c.GetOrFetch("erin", true)
	task(context.Background())

	v, task := c.GetOrFetch("erin", true)
	if v != original {
		t.Errorf("value after failed refresh = %v, want original", v)
	}
	if task == nil {
		t.Error("a new refresh should be handed out after a failed one")
	}
}

func TestFailedFetchReleasesClaim(t *testing.T) {
	t.Parallel()

	f := &countingFetcher{}
	f.fail.Store(true)
	c, _ := newClockedCache(DefaultConfig(), f)

	_, task := c.GetOrFetch("frank", true)
	task(context.Background())

	if c.Len() != 0 {
		t.Errorf("Len() after failed fetch = %d, want 0", c.Len())
	}
	if _, task := c.GetOrFetch("frank", true); task == nil {
		t.Error("claim was not released after a failed fetch")
	}
}

func TestConcurrentColdGetFetchesOnce(t *testing.T) {
	t.Parallel()

	f := &countingFetcher{delay: 20 * time.Millisecond}
	c := NewCache(DefaultConfig(), f, tasks.New())

	const callers = 32
	var wg sync.WaitGroup
	var observed atomic.Int32
	start := make(chan struct{})
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if c.Get(context.Background(), "grace", true) != nil {
				observed.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	if f.calls.Load() != 1 {
		t.Errorf("upstream fetches = %d, want 1", f.calls.Load())
	}
	if observed.Load() < 1 {
		t.Error("no caller observed the fetched value")
	}
	if v := c.Peek("grace"); v == nil || v.User.Username != "grace" {
		t.Errorf("Peek(grace) = %v after fetch", v)
	}
}

func TestGetReturnsStaleWithoutWaiting(t *testing.T) {
	t.Parallel()

	f := &countingFetcher{delay: time.Second}
	c, clock := newClockedCache(DefaultConfig(), f)

	original := &UserInfo{User: User{Username: "heidi"}, FetchedAt: clock.Now()}
	c.WriteCache("heidi", original)
	clock.Advance(DefaultTTL * 2)

	start := time.Now()
	if got := c.Get(context.Background(), "heidi", true); got != original {
		t.Errorf("Get() = %v, want stale original", got)
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("Get() waited %v for a background refresh", elapsed)
	}
}

func TestGetHonoursContext(t *testing.T) {
	t.Parallel()

	f := &countingFetcher{delay: time.Second}
	c := NewCache(DefaultConfig(), f, tasks.New())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if got := c.Get(ctx, "ivan", true); got != nil {
		t.Errorf("Get() = %v, want nil before the fetch finishes", got)
	}
}

func TestGetAfterDrainDropsWork(t *testing.T) {
	t.Parallel()

	f := &countingFetcher{}
	ts := tasks.New()
	if err := ts.Drain(context.Background()); err != nil {
		t.Fatalf("Drain() error = %v", err)
	}
	c := NewCache(DefaultConfig(), f, ts)
	clock := &fakeClock{t: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	c.now = clock.Now

	t.Run("cold key", func(t *testing.T) {
		if got := c.Get(context.Background(), "judy", true); got != nil {
			t.Errorf("Get() = %v, want nil once tasks are drained", got)
		}
		if _, task := c.GetOrFetch("judy", true); task == nil {
			t.Error("pending claim was not released when the fetch was dropped")
		}
	})

	t.Run("stale key", func(t *testing.T) {
		original := &UserInfo{User: User{Username: "kate"}, FetchedAt: clock.Now()}
		c.WriteCache("kate", original)
		clock.Advance(DefaultTTL * 2)

		if got := c.Get(context.Background(), "kate", true); got != original {
			t.Errorf("Get() = %v, want stale original", got)
		}
		if _, task := c.GetOrFetch("kate", true); task == nil {
			t.Error("refresh claim was not released when the refresh was dropped")
		}
	})

	time.Sleep(20 * time.Millisecond)
	if n := f.calls.Load(); n != 0 {
		t.Errorf("upstream fetches = %d, want 0 after Drain", n)
	}
	if ts.Started() != 0 {
		t.Errorf("tasks started = %d, want 0 after Drain", ts.Started())
	}
}

func TestRetainFresh(t *testing.T) {
	t.Parallel()

	f := &countingFetcher{}
	c, clock := newClockedCache(Config{TTL: time.Minute, MaxKeys: 100}, f)

	c.WriteCache("old", &UserInfo{FetchedAt: clock.Now()})
	clock.Advance(2 * time.Minute)
	c.WriteCache("new", &UserInfo{FetchedAt: clock.Now()})
	c.GetOrFetch("pending", true)

	if removed := c.RetainFresh(); removed != 1 {
		t.Errorf("RetainFresh() = %d, want 1", removed)
	}
	if c.Peek("old") != nil {
		t.Error("expired entry survived RetainFresh")
	}
	if c.Peek("new") == nil {
		t.Error("fresh entry was removed")
	}
	if c.Len() != 2 {
		t.Errorf("Len() = %d, want 2 (fresh + pending)", c.Len())
	}
}

func TestWriteCacheTriggersRetention(t *testing.T) {
	t.Parallel()

	f := &countingFetcher{}
	c, clock := newClockedCache(Config{TTL: time.Minute, MaxKeys: 4}, f)

	for i := 0; i < 4; i++ {
		c.WriteCache(fmt.Sprintf("old-%d", i), &UserInfo{FetchedAt: clock.Now()})
	}
	clock.Advance(2 * time.Minute)
	c.WriteCache("trigger", &UserInfo{FetchedAt: clock.Now()})

	deadline := time.Now().Add(2 * time.Second)
	for c.Len() != 1 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if c.Len() != 1 {
		t.Errorf("Len() = %d after retention, want 1", c.Len())
	}
}

func TestRefreshQueueTruncation(t *testing.T) {
	t.Parallel()

	var q refreshQueue
	for i := 0; i < 11; i++ {
		q.pushFront(refreshItem{key: fmt.Sprintf("k%d", i)}, 10)
	}

	if q.len() != 5 {
		t.Fatalf("len() = %d, want 5", q.len())
	}

	// The newest items survive and the oldest leaves first.
	item, _ := q.popBack()
	if item.key != "k6" {
		t.Errorf("popBack() = %s, want k6", item.key)
	}
}

func TestServeRefreshesExpiredEntries(t *testing.T) {
	t.Parallel()

	f := &countingFetcher{}
	c := NewCache(Config{TTL: 30 * time.Millisecond, MaxKeys: 16}, f, tasks.New())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Serve(ctx) }()

	c.WriteCache("judy", &UserInfo{User: User{Username: "judy"}, FetchedAt: time.Now()})

	deadline := time.Now().Add(2 * time.Second)
	for f.calls.Load() < 1 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if f.calls.Load() < 1 {
		t.Error("refresh worker did not refetch the expired entry")
	}

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Serve() error = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not stop after cancel")
	}
}

func TestServeSkipsReplacedEntries(t *testing.T) {
	t.Parallel()

	f := &countingFetcher{}
	c, clock := newClockedCache(DefaultConfig(), f)

	first := clock.Now()
	c.WriteCache("kim", &UserInfo{FetchedAt: first})
	clock.Advance(time.Minute)
	c.WriteCache("kim", &UserInfo{FetchedAt: clock.Now()})

	c.refreshExpired(refreshItem{key: "kim", fetchedAt: first})
	c.refreshExpired(refreshItem{key: "gone", fetchedAt: first})

	time.Sleep(20 * time.Millisecond)
	if f.calls.Load() != 0 {
		t.Errorf("fetch calls = %d, want 0 for replaced or missing entries", f.calls.Load())
	}
}

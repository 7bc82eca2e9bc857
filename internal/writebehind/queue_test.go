// Greeting - Visit Counter and Profile Card Badges
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/greeting

package writebehind

import (
	"context"
	"errors"
	"net/netip"
	"sync"
	"testing"
	"time"

	"github.com/tomtom215/greeting/internal/counter"
	"github.com/tomtom215/greeting/internal/storage"
)

// fakeSink records operations and can be told to fail.
type fakeSink struct {
	mu       sync.Mutex
	rows     map[string]uint64
	ops      []string
	inFlight int
	maxPar   int
	failWith error
	closed   bool
	delay    time.Duration
}

func newFakeSink() *fakeSink {
	return &fakeSink{rows: make(map[string]uint64)}
}

func (f *fakeSink) enter() {
	f.mu.Lock()
	f.inFlight++
	if f.inFlight > f.maxPar {
		f.maxPar = f.inFlight
	}
	f.mu.Unlock()
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
}

func (f *fakeSink) leave() {
	f.mu.Lock()
	f.inFlight--
	f.mu.Unlock()
}

func (f *fakeSink) Write(_ context.Context, id string, count uint64) error {
	f.enter()
	defer f.leave()
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return f.failWith
	}
	f.rows[id] = count
	f.ops = append(f.ops, "write:"+id)
	return nil
}

func (f *fakeSink) WriteBatch(_ context.Context, rows []storage.Row) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return f.failWith
	}
	for _, r := range rows {
		f.rows[r.ID] = r.Count
	}
	f.ops = append(f.ops, "batch")
	return nil
}

func (f *fakeSink) Delete(_ context.Context, id string) error {
	f.enter()
	defer f.leave()
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return f.failWith
	}
	delete(f.rows, id)
	f.ops = append(f.ops, "delete:"+id)
	return nil
}

func (f *fakeSink) ReadAll(context.Context) ([]storage.Row, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]storage.Row, 0, len(f.rows))
	for id, c := range f.rows {
		out = append(out, storage.Row{ID: id, Count: c})
	}
	return out, nil
}

func (f *fakeSink) Driver() string { return "fake" }

func (f *fakeSink) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeSink) snapshot() (map[string]uint64, []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rows := make(map[string]uint64, len(f.rows))
	for k, v := range f.rows {
		rows[k] = v
	}
	return rows, append([]string(nil), f.ops...)
}

func count(n uint64) *uint64 { return &n }

func startQueue(t *testing.T, q *Queue) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- q.Serve(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Error("Serve did not return after cancel")
		}
	})
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before deadline")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestQueueAppliesInOrder(t *testing.T) {
	t.Parallel()

	sink := newFakeSink()
	q := New(DefaultConfig())
	q.Attach(sink)
	startQueue(t, q)

	q.Persist(counter.PersistMessage{ID: "a", Count: count(1)})
	q.Persist(counter.PersistMessage{ID: "a", Count: count(2)})
	q.Persist(counter.PersistMessage{ID: "b", Count: count(1)})
	q.Persist(counter.PersistMessage{ID: "b"})

	waitFor(t, func() bool { return q.Written() == 4 })

	rows, ops := sink.snapshot()
	if rows["a"] != 2 {
		t.Errorf("a = %d, want 2", rows["a"])
	}
	if _, ok := rows["b"]; ok {
		t.Error("b should have been deleted")
	}
	want := []string{"write:a", "write:a", "write:b", "delete:b"}
	for i := range want {
		if ops[i] != want[i] {
			t.Errorf("op %d = %s, want %s", i, ops[i], want[i])
		}
	}
}

func TestQueueDiscardsBeforeAttach(t *testing.T) {
	t.Parallel()

	q := New(DefaultConfig())
	startQueue(t, q)

	if q.Ready() {
		t.Fatal("queue reports ready without a sink")
	}

	q.Persist(counter.PersistMessage{ID: "early", Count: count(1)})
	waitFor(t, func() bool { return q.Pending() == 0 && q.Dropped() == 1 })

	sink := newFakeSink()
	q.Attach(sink)
	q.Persist(counter.PersistMessage{ID: "late", Count: count(5)})
	waitFor(t, func() bool { return q.Written() == 1 })

	rows, _ := sink.snapshot()
	if _, ok := rows["early"]; ok {
		t.Error("message consumed before attach reached the sink")
	}
	if rows["late"] != 5 {
		t.Errorf("late = %d, want 5", rows["late"])
	}
}

func TestPersistNeverBlocks(t *testing.T) {
	t.Parallel()

	// No consumer is running, so the channel fills up.
	q := New(Config{Capacity: 4})

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			q.Persist(counter.PersistMessage{ID: "x", Count: count(uint64(i))})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Persist blocked on a full channel")
	}

	if q.Pending() != 4 {
		t.Errorf("Pending() = %d, want 4", q.Pending())
	}
	if q.Dropped() != 6 {
		t.Errorf("Dropped() = %d, want 6", q.Dropped())
	}
}

func TestWritesAreSerialized(t *testing.T) {
	t.Parallel()

	sink := newFakeSink()
	sink.delay = time.Millisecond
	q := New(DefaultConfig())
	q.Attach(sink)
	startQueue(t, q)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				q.Persist(counter.PersistMessage{ID: "k", Count: count(uint64(j))})
			}
		}()
	}
	wg.Wait()

	// Flush competes with Serve for the gate.
	if err := q.Flush(context.Background(), nil); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
	waitFor(t, func() bool { return q.Pending() == 0 })

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if sink.maxPar != 1 {
		t.Errorf("max concurrent sink writes = %d, want 1", sink.maxPar)
	}
}

func TestWriteFailureIsLogged(t *testing.T) {
	t.Parallel()

	sink := newFakeSink()
	sink.failWith = errors.New("disk full")
	q := New(DefaultConfig())
	q.Attach(sink)
	startQueue(t, q)

	q.Persist(counter.PersistMessage{ID: "a", Count: count(1)})
	waitFor(t, func() bool { return q.Pending() == 0 })
	time.Sleep(10 * time.Millisecond)

	if q.Written() != 0 {
		t.Errorf("Written() = %d, want 0", q.Written())
	}
}

func TestFlush(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	q := New(DefaultConfig())
	if err := q.Flush(ctx, nil); !errors.Is(err, ErrSinkUnavailable) {
		t.Fatalf("Flush() without sink error = %v, want ErrSinkUnavailable", err)
	}

	sink := newFakeSink()
	q.Attach(sink)

	// Pending messages are applied before the snapshot.
	q.Persist(counter.PersistMessage{ID: "gone"})
	q.Persist(counter.PersistMessage{ID: "stale", Count: count(1)})

	entries := []counter.Entry{{ID: "stale", Count: 10}, {ID: "fresh", Count: 3}}
	if err := q.Flush(ctx, entries); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}

	rows, ops := sink.snapshot()
	if rows["stale"] != 10 || rows["fresh"] != 3 {
		t.Errorf("rows after flush = %v", rows)
	}
	if ops[len(ops)-1] != "batch" {
		t.Errorf("last op = %s, want batch", ops[len(ops)-1])
	}
	if q.Pending() != 0 {
		t.Errorf("Pending() = %d after flush", q.Pending())
	}

	if err := q.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if !sink.closed {
		t.Error("Close() did not close the sink")
	}
	if q.Ready() {
		t.Error("queue still ready after Close")
	}
}

func TestFlushReportsSinkError(t *testing.T) {
	t.Parallel()

	sink := newFakeSink()
	sink.failWith = errors.New("read-only")
	q := New(DefaultConfig())
	q.Attach(sink)

	if err := q.Flush(context.Background(), []counter.Entry{{ID: "a", Count: 1}}); err == nil {
		t.Error("Flush() error = nil, want sink error")
	}
}

func TestStoreToSQLite(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	sink, err := storage.OpenSQLite(ctx, ":memory:")
	if err != nil {
		t.Fatalf("OpenSQLite() error = %v", err)
	}

	q := New(DefaultConfig())
	q.Attach(sink)
	startQueue(t, q)

	store := counter.NewStore(counter.DefaultConfig(), counter.NewAuthorizer("key", nil), q, nil)
	store.EnsureAll([]string{"page"})
	for i := 0; i < 5; i++ {
		store.IncrementOrCreate(ctx, "page", "", netip.Addr{}, false)
	}
	waitFor(t, func() bool { return q.Written() == 5 })

	if err := q.Flush(ctx, store.SnapshotAll()); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}

	rows, err := sink.ReadAll(ctx)
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	if len(rows) != 1 || rows[0].ID != "page" || rows[0].Count != 5 {
		t.Errorf("rows = %+v, want [{page 5}]", rows)
	}
	_ = q.Close()
}

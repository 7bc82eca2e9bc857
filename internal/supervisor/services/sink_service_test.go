// Greeting - Visit Counter and Profile Card Badges
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/greeting

package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tomtom215/greeting/internal/counter"
	"github.com/tomtom215/greeting/internal/storage"
)

type fakeSink struct {
	rows    []storage.Row
	readErr error
	closed  bool
}

func (f *fakeSink) Write(context.Context, string, uint64) error     { return nil }
func (f *fakeSink) WriteBatch(context.Context, []storage.Row) error { return nil }
func (f *fakeSink) Delete(context.Context, string) error            { return nil }
func (f *fakeSink) ReadAll(context.Context) ([]storage.Row, error)  { return f.rows, f.readErr }
func (f *fakeSink) Driver() string                                  { return "fake" }
func (f *fakeSink) Close() error                                    { f.closed = true; return nil }

type fakeLoader struct{ entries []counter.Entry }

func (f *fakeLoader) BulkLoad(entries []counter.Entry) { f.entries = append(f.entries, entries...) }

type fakeAttacher struct{ sink storage.Sink }

func (f *fakeAttacher) Attach(sink storage.Sink) { f.sink = sink }

func serveUntilReady(t *testing.T, svc *SinkLoaderService) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- svc.Serve(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for !svc.Ready() {
		if time.Now().After(deadline) {
			t.Fatal("sink loader never became ready")
		}
		time.Sleep(5 * time.Millisecond)
	}

	cancel()
	if err := <-errCh; !errors.Is(err, context.Canceled) {
		t.Errorf("Serve() error = %v, want context.Canceled", err)
	}
}

func TestSinkLoaderLoadsAndAttaches(t *testing.T) {
	t.Parallel()

	sink := &fakeSink{rows: []storage.Row{{ID: "alice", Count: 7}, {ID: "bob", Count: 1}}}
	loader := &fakeLoader{}
	queue := &fakeAttacher{}

	svc := NewSinkLoaderService(func(context.Context) (storage.Sink, error) { return sink, nil }, loader, queue, time.Second)
	serveUntilReady(t, svc)

	if len(loader.entries) != 2 || loader.entries[0] != (counter.Entry{ID: "alice", Count: 7}) {
		t.Errorf("loaded entries = %+v", loader.entries)
	}
	if queue.sink != sink {
		t.Error("sink was not attached to the queue")
	}
}

func TestSinkLoaderDisabled(t *testing.T) {
	t.Parallel()

	loader := &fakeLoader{}
	queue := &fakeAttacher{}
	svc := NewSinkLoaderService(func(context.Context) (storage.Sink, error) { return nil, storage.ErrDisabled }, loader, queue, time.Second)
	serveUntilReady(t, svc)

	if queue.sink != nil {
		t.Error("nothing should be attached when persistence is disabled")
	}
	select {
	case <-svc.Loaded():
	default:
		t.Error("Loaded() should be closed when persistence is disabled")
	}
	if len(loader.entries) != 0 {
		t.Errorf("loaded entries = %+v, want none", loader.entries)
	}
}

func TestSinkLoaderErrors(t *testing.T) {
	t.Parallel()

	t.Run("open failure", func(t *testing.T) {
		t.Parallel()

		svc := NewSinkLoaderService(func(context.Context) (storage.Sink, error) {
			return nil, errors.New("connection refused")
		}, &fakeLoader{}, &fakeAttacher{}, time.Second)

		if err := svc.Serve(context.Background()); err == nil {
			t.Fatal("Serve() error = nil, want open error")
		}
		if svc.Ready() {
			t.Error("loader should not be ready after a failed open")
		}
		select {
		case <-svc.Loaded():
			t.Error("Loaded() should stay open after a failed open")
		default:
		}
	})

	t.Run("read failure closes the sink", func(t *testing.T) {
		t.Parallel()

		sink := &fakeSink{readErr: errors.New("corrupt")}
		queue := &fakeAttacher{}
		svc := NewSinkLoaderService(func(context.Context) (storage.Sink, error) { return sink, nil }, &fakeLoader{}, queue, time.Second)

		if err := svc.Serve(context.Background()); err == nil {
			t.Fatal("Serve() error = nil, want read error")
		}
		if !sink.closed {
			t.Error("sink should be closed after a read failure")
		}
		if queue.sink != nil {
			t.Error("sink should not be attached after a read failure")
		}
	})
}

func TestSinkLoaderWithBadger(t *testing.T) {
	t.Parallel()

	opener := func(ctx context.Context) (storage.Sink, error) {
		sink, err := storage.OpenBadger("", true)
		if err != nil {
			return nil, err
		}
		if err := sink.Write(ctx, "carol", 3); err != nil {
			return nil, err
		}
		return sink, nil
	}

	loader := &fakeLoader{}
	queue := &fakeAttacher{}
	svc := NewSinkLoaderService(opener, loader, queue, 5*time.Second)
	serveUntilReady(t, svc)
	t.Cleanup(func() { _ = queue.sink.Close() })

	if len(loader.entries) != 1 || loader.entries[0].ID != "carol" || loader.entries[0].Count != 3 {
		t.Errorf("loaded entries = %+v, want carol=3", loader.entries)
	}
}

// Greeting - Visit Counter and Profile Card Badges
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/greeting

package profile

import (
	"context"
	"sync"
	"time"

	"github.com/tomtom215/greeting/internal/metrics"
)

type refreshItem struct {
	key       string
	fetchedAt time.Time
}

// refreshQueue is a deque of written keys. Writes push to the front, the
// worker pops from the back, so items leave in the order they will expire.
// items[0] is the back.
type refreshQueue struct {
	mu    sync.Mutex
	items []refreshItem
}

// pushFront adds item. When the queue grows past limit it is cut to limit/2,
// dropping the oldest items.
func (q *refreshQueue) pushFront(item refreshItem, limit int) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.items = append(q.items, item)
	if limit > 0 && len(q.items) > limit {
		keep := limit / 2
		trimmed := make([]refreshItem, keep, limit)
		copy(trimmed, q.items[len(q.items)-keep:])
		q.items = trimmed
	}
	metrics.RefreshQueueLength.Set(float64(len(q.items)))
}

func (q *refreshQueue) popBack() (refreshItem, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return refreshItem{}, false
	}
	item := q.items[0]
	q.items[0] = refreshItem{}
	q.items = q.items[1:]
	metrics.RefreshQueueLength.Set(float64(len(q.items)))
	return item, true
}

func (q *refreshQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// QueueLen returns the number of keys waiting for refresh.
func (c *Cache) QueueLen() int {
	return c.queue.len()
}

// Serve runs the refresh worker until ctx is cancelled. It implements
// suture.Service.
//
// The worker takes the oldest queued key, sleeps until that entry expires
// and then refreshes it in the background. An empty queue is polled again
// after one full TTL. Refresh failures are only logged; the key is picked up
// again by the next stale request.
func (c *Cache) Serve(ctx context.Context) error {
	c.logger.Debug().Dur("ttl", c.cfg.TTL).Msg("Profile refresh worker started")

	timer := time.NewTimer(0)
	defer timer.Stop()
	<-timer.C

	for {
		item, ok := c.queue.popBack()

		wait := c.cfg.TTL
		if ok {
			wait = item.fetchedAt.Add(c.cfg.TTL).Sub(c.now())
		}

		if wait > 0 {
			timer.Reset(wait)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-timer.C:
			}
		} else if err := ctx.Err(); err != nil {
			return err
		}

		if ok {
			c.refreshExpired(item)
		}
	}
}

// String implements fmt.Stringer for suture logs.
func (c *Cache) String() string {
	return "profile-refresh"
}

// refreshExpired starts a refresh for item unless the entry has been
// replaced, evicted or is already being refreshed.
func (c *Cache) refreshExpired(item refreshItem) {
	sh := c.shardFor(item.key)
	sh.mu.Lock()
	s, ok := sh.slots[item.key]
	if !ok || s.state != stateReady || s.refreshing || !s.fetchedAt.Equal(item.fetchedAt) {
		sh.mu.Unlock()
		return
	}
	s.refreshing = true
	sh.mu.Unlock()

	c.logger.Debug().Str("user", item.key).Msg("Profile expired, refreshing")
	task := c.refreshTask(item.key, item.fetchedAt)
	if !c.spawn("profile-refresh", func(ctx context.Context) { task(ctx) }) {
		c.clearRefreshing(item.key, item.fetchedAt)
	}
}

// Greeting - Visit Counter and Profile Card Badges
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/greeting

package storage

import (
	"context"
	"fmt"
	"strconv"
	"sync/atomic"

	"github.com/redis/go-redis/v9"

	"github.com/tomtom215/greeting/internal/logging"
)

// Compile-time interface check.
var _ Sink = (*RedisSink)(nil)

// DefaultRedisKey is the hash that holds all counters.
const DefaultRedisKey = "greeting:counters"

// RedisConfig configures the Redis sink.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Key      string
}

// RedisSink stores every counter as a field of a single Redis hash.
type RedisSink struct {
	client *redis.Client
	key    string
	owned  bool
	closed atomic.Bool
}

// OpenRedis connects to Redis and verifies the connection.
func OpenRedis(ctx context.Context, cfg RedisConfig) (*RedisSink, error) {
	if cfg.Addr == "" {
		cfg.Addr = "127.0.0.1:6379"
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("storage: ping redis: %w", err)
	}

	s := NewRedisSink(client, cfg.Key)
	s.owned = true

	logging.Info().Str("addr", cfg.Addr).Str("key", s.key).Msg("Redis sink opened")
	return s, nil
}

// NewRedisSink wraps an existing client. The client is not closed by Close.
func NewRedisSink(client *redis.Client, key string) *RedisSink {
	if key == "" {
		key = DefaultRedisKey
	}
	return &RedisSink{client: client, key: key}
}

// Write sets the hash field for id.
func (s *RedisSink) Write(ctx context.Context, id string, count uint64) error {
	if s.closed.Load() {
		return ErrSinkClosed
	}
	if err := s.client.HSet(ctx, s.key, id, strconv.FormatUint(count, 10)).Err(); err != nil {
		return fmt.Errorf("storage: redis write %q: %w", id, err)
	}
	return nil
}

// redisBatchFields bounds the field/value pairs sent in one HSET.
const redisBatchFields = 512

// WriteBatch sets many hash fields through one pipeline.
func (s *RedisSink) WriteBatch(ctx context.Context, rows []Row) error {
	if s.closed.Load() {
		return ErrSinkClosed
	}
	if len(rows) == 0 {
		return nil
	}

	_, err := s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for start := 0; start < len(rows); start += redisBatchFields {
			end := min(start+redisBatchFields, len(rows))
			values := make([]any, 0, 2*(end-start))
			for _, r := range rows[start:end] {
				values = append(values, r.ID, strconv.FormatUint(r.Count, 10))
			}
			pipe.HSet(ctx, s.key, values...)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("storage: redis batch write: %w", err)
	}
	return nil
}

// Delete removes the hash field for id.
func (s *RedisSink) Delete(ctx context.Context, id string) error {
	if s.closed.Load() {
		return ErrSinkClosed
	}
	if err := s.client.HDel(ctx, s.key, id).Err(); err != nil {
		return fmt.Errorf("storage: redis delete %q: %w", id, err)
	}
	return nil
}

// ReadAll returns every field of the counters hash.
func (s *RedisSink) ReadAll(ctx context.Context) ([]Row, error) {
	if s.closed.Load() {
		return nil, ErrSinkClosed
	}

	vals, err := s.client.HGetAll(ctx, s.key).Result()
	if err != nil {
		return nil, fmt.Errorf("storage: redis read all: %w", err)
	}

	out := make([]Row, 0, len(vals))
	for id, raw := range vals {
		count, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			logging.Warn().Err(err).Str("id", id).Msg("Skipping unparsable redis counter")
			continue
		}
		out = append(out, Row{ID: id, Count: count})
	}
	return out, nil
}

// Driver returns "redis".
func (s *RedisSink) Driver() string { return DriverRedis }

// Close closes the client if the sink created it.
func (s *RedisSink) Close() error {
	if !s.closed.CompareAndSwap(false, true) || !s.owned {
		return nil
	}
	return s.client.Close()
}

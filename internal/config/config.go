// Greeting - Visit Counter and Profile Card Badges
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/greeting

package config

import (
	"time"

	"github.com/tomtom215/greeting/internal/counter"
	"github.com/tomtom215/greeting/internal/logging"
	"github.com/tomtom215/greeting/internal/profile"
	"github.com/tomtom215/greeting/internal/storage"
	"github.com/tomtom215/greeting/internal/upstream"
	"github.com/tomtom215/greeting/internal/writebehind"
)

// Config is the complete server configuration.
type Config struct {
	Server     ServerConfig     `koanf:"server"`
	Counter    CounterConfig    `koanf:"counter"`
	Storage    StorageConfig    `koanf:"storage"`
	Profile    ProfileConfig    `koanf:"profile"`
	Render     RenderConfig     `koanf:"render"`
	Logging    LoggingConfig    `koanf:"logging"`
	Supervisor SupervisorConfig `koanf:"supervisor"`
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	// Listen addresses: "host:port" or "unix:/path/to.sock".
	Listen []string `koanf:"listen" validate:"min=1,dive,listen"`

	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	IdleTimeout     time.Duration `koanf:"idle_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`

	RateLimitReqs     int           `koanf:"rate_limit_reqs" validate:"gte=0"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
	RateLimitDisabled bool          `koanf:"rate_limit_disabled"`
	CORSOrigins       []string      `koanf:"cors_origins"`
}

// CounterConfig holds counter store and authorization settings.
type CounterConfig struct {
	// MaxCounters triggers the capacity sweep. 0 disables it.
	MaxCounters int `koanf:"max_counters" validate:"gte=0"`

	// AccessKey authorizes counter creation and deletion. Hot-reloadable.
	AccessKey string `koanf:"access_key"`

	// CIDRAllowList origins may create counters without the key. Bare IPs
	// are accepted as single-host prefixes. Hot-reloadable.
	CIDRAllowList []string `koanf:"cidr_allowlist" validate:"dive,cidr_or_ip"`

	// UserIDs are created at startup if missing.
	UserIDs []string `koanf:"user_ids"`

	SweepSingletons bool `koanf:"sweep_singletons"`

	QueueCapacity int           `koanf:"queue_capacity" validate:"gte=1"`
	WriteTimeout  time.Duration `koanf:"write_timeout"`
}

// StorageConfig selects and configures the durable sink.
type StorageConfig struct {
	Driver string `koanf:"driver" validate:"oneof=sqlite postgres redis badger none"`

	SQLitePath  string `koanf:"sqlite_path"`
	PostgresDSN string `koanf:"postgres_dsn"`

	RedisAddr     string `koanf:"redis_addr"`
	RedisPassword string `koanf:"redis_password"`
	RedisDB       int    `koanf:"redis_db" validate:"gte=0"`
	RedisKey      string `koanf:"redis_key"`

	BadgerDir      string `koanf:"badger_dir"`
	BadgerInMemory bool   `koanf:"badger_in_memory"`

	// OpenTimeout bounds opening the sink and reading all rows at startup.
	OpenTimeout time.Duration `koanf:"open_timeout"`
}

// ProfileConfig holds the linux.do profile cache and upstream settings.
type ProfileConfig struct {
	BaseURL      string        `koanf:"base_url" validate:"required,url"`
	TTL          time.Duration `koanf:"ttl"`
	MaxKeys      int           `koanf:"max_keys" validate:"gte=2"`
	FetchTimeout time.Duration `koanf:"fetch_timeout"`
	MinInterval  time.Duration `koanf:"min_interval"`
	Timeout      time.Duration `koanf:"timeout"`
	UserAgent    string        `koanf:"user_agent" validate:"required"`

	BreakerMaxRequests  uint32        `koanf:"breaker_max_requests" validate:"gte=1"`
	BreakerInterval     time.Duration `koanf:"breaker_interval"`
	BreakerTimeout      time.Duration `koanf:"breaker_timeout"`
	BreakerMinRequests  uint32        `koanf:"breaker_min_requests" validate:"gte=1"`
	BreakerFailureRatio float64       `koanf:"breaker_failure_ratio" validate:"gt=0,lte=1"`
}

// RenderConfig holds badge rendering settings.
type RenderConfig struct {
	Timezone      string `koanf:"timezone" validate:"timezone"`
	NoteCacheSize int    `koanf:"note_cache_size" validate:"gte=0"`
	Title         string `koanf:"title"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format" validate:"oneof=json console"`
	Caller bool   `koanf:"caller"`
}

// SupervisorConfig holds supervisor tree and shutdown settings.
type SupervisorConfig struct {
	FailureThreshold float64       `koanf:"failure_threshold" validate:"gt=0"`
	FailureDecay     float64       `koanf:"failure_decay" validate:"gt=0"`
	FailureBackoff   time.Duration `koanf:"failure_backoff"`
	ShutdownTimeout  time.Duration `koanf:"shutdown_timeout"`

	// DrainTimeout bounds the wait for background tasks at shutdown.
	DrainTimeout time.Duration `koanf:"drain_timeout"`
}

// CounterStoreConfig maps the counter section to counter.Config.
func (c *Config) CounterStoreConfig() counter.Config {
	cfg := counter.DefaultConfig()
	cfg.MaxCounters = c.Counter.MaxCounters
	cfg.SweepSingletons = c.Counter.SweepSingletons
	return cfg
}

// QueueConfig maps the counter section to writebehind.Config.
func (c *Config) QueueConfig() writebehind.Config {
	return writebehind.Config{
		Capacity:     c.Counter.QueueCapacity,
		WriteTimeout: c.Counter.WriteTimeout,
	}
}

// SinkConfig maps the storage section to storage.Config.
func (c *Config) SinkConfig() storage.Config {
	return storage.Config{
		Driver:         c.Storage.Driver,
		SQLitePath:     c.Storage.SQLitePath,
		PostgresDSN:    c.Storage.PostgresDSN,
		RedisAddr:      c.Storage.RedisAddr,
		RedisPassword:  c.Storage.RedisPassword,
		RedisDB:        c.Storage.RedisDB,
		RedisKey:       c.Storage.RedisKey,
		BadgerDir:      c.Storage.BadgerDir,
		BadgerInMemory: c.Storage.BadgerInMemory,
	}
}

// CacheConfig maps the profile section to profile.Config.
func (c *Config) CacheConfig() profile.Config {
	return profile.Config{
		TTL:          c.Profile.TTL,
		MaxKeys:      c.Profile.MaxKeys,
		FetchTimeout: c.Profile.FetchTimeout,
	}
}

// UpstreamConfig maps the profile section to upstream.Config. The bio
// filter is wired by the caller.
func (c *Config) UpstreamConfig() upstream.Config {
	return upstream.Config{
		BaseURL:     c.Profile.BaseURL,
		Timeout:     c.Profile.Timeout,
		MinInterval: c.Profile.MinInterval,
		UserAgent:   c.Profile.UserAgent,
		Breaker: upstream.BreakerConfig{
			MaxRequests:  c.Profile.BreakerMaxRequests,
			Interval:     c.Profile.BreakerInterval,
			Timeout:      c.Profile.BreakerTimeout,
			MinRequests:  c.Profile.BreakerMinRequests,
			FailureRatio: c.Profile.BreakerFailureRatio,
		},
	}
}

// LoggingSettings maps the logging section to logging.Config.
func (c *Config) LoggingSettings() logging.Config {
	cfg := logging.DefaultConfig()
	cfg.Level = c.Logging.Level
	cfg.Format = c.Logging.Format
	cfg.Caller = c.Logging.Caller
	return cfg
}

// Greeting - Visit Counter and Profile Card Badges
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/greeting

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/tomtom215/greeting/internal/counter"
	"github.com/tomtom215/greeting/internal/profile"
	"github.com/tomtom215/greeting/internal/render"
	"github.com/tomtom215/greeting/internal/sanitize"
	"github.com/tomtom215/greeting/internal/storage"
	"github.com/tomtom215/greeting/internal/upstream"
	"github.com/tomtom215/greeting/internal/writebehind"
)

// DefaultConfigPaths are searched in order; the first file found is used.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/greeting/config.yaml",
	"/etc/greeting/config.yml",
}

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

func defaultConfig() *Config {
	breaker := upstream.DefaultBreakerConfig()

	return &Config{
		Server: ServerConfig{
			Listen:          []string{"0.0.0.0:8989"},
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    45 * time.Second, // covers a cold card fetch
			IdleTimeout:     120 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			RateLimitReqs:   120,
			RateLimitWindow: time.Minute,
			CORSOrigins:     []string{"*"},
		},
		Counter: CounterConfig{
			MaxCounters:     counter.DefaultMaxCounters,
			CIDRAllowList:   []string{"127.0.0.0/8"},
			SweepSingletons: true,
			QueueCapacity:   writebehind.DefaultCapacity,
			WriteTimeout:    5 * time.Second,
		},
		Storage: StorageConfig{
			Driver:      storage.DriverSQLite,
			SQLitePath:  "greeting.db",
			RedisKey:    storage.DefaultRedisKey,
			BadgerDir:   "data/badger",
			OpenTimeout: 30 * time.Second,
		},
		Profile: ProfileConfig{
			BaseURL:             upstream.DefaultBaseURL,
			TTL:                 profile.DefaultTTL,
			MaxKeys:             profile.DefaultMaxKeys,
			FetchTimeout:        profile.DefaultFetchTimeout,
			MinInterval:         time.Second,
			Timeout:             5 * time.Second,
			UserAgent:           upstream.DefaultUserAgent,
			BreakerMaxRequests:  breaker.MaxRequests,
			BreakerInterval:     breaker.Interval,
			BreakerTimeout:      breaker.Timeout,
			BreakerMinRequests:  breaker.MinRequests,
			BreakerFailureRatio: breaker.FailureRatio,
		},
		Render: RenderConfig{
			Timezone:      render.DefaultTimezone,
			NoteCacheSize: sanitize.DefaultCacheSize,
			Title:         "Greeting | Visit Counter",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Supervisor: SupervisorConfig{
			FailureThreshold: 5.0,
			FailureDecay:     30.0,
			FailureBackoff:   15 * time.Second,
			ShutdownTimeout:  10 * time.Second,
			DrainTimeout:     15 * time.Second,
		},
	}
}

// LoadWithKoanf loads defaults, then the config file if one exists, then
// environment variables, and validates the result.
func LoadWithKoanf() (*Config, error) {
	return load(findConfigFile())
}

// LoadFile loads configuration with path as the file layer. An empty path
// skips the file.
func LoadFile(path string) (*Config, error) {
	return load(path)
}

func load(configPath string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// FindConfigFile returns the config file that LoadWithKoanf would use, or "".
func FindConfigFile() string {
	return findConfigFile()
}

func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// sliceConfigPaths may arrive as comma-separated strings from env vars.
var sliceConfigPaths = []string{
	"server.listen",
	"server.cors_origins",
	"counter.cidr_allowlist",
	"counter.user_ids",
}

func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		strVal, ok := k.Get(path).(string)
		if !ok {
			continue
		}

		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if err := k.Set(path, trimmed); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}

// envMappings maps environment variable names (lower-cased) to koanf paths.
// Unlisted variables are ignored.
var envMappings = map[string]string{
	// Server
	"listen":                "server.listen",
	"http_read_timeout":     "server.read_timeout",
	"http_write_timeout":    "server.write_timeout",
	"http_idle_timeout":     "server.idle_timeout",
	"http_shutdown_timeout": "server.shutdown_timeout",
	"rate_limit_requests":   "server.rate_limit_reqs",
	"rate_limit_window":     "server.rate_limit_window",
	"disable_rate_limit":    "server.rate_limit_disabled",
	"cors_origins":          "server.cors_origins",

	// Counter
	"max_counters":           "counter.max_counters",
	"access_key":             "counter.access_key",
	"cidr_allowlist":         "counter.cidr_allowlist",
	"user_ids":               "counter.user_ids",
	"sweep_singletons":       "counter.sweep_singletons",
	"persist_queue_capacity": "counter.queue_capacity",
	"persist_write_timeout":  "counter.write_timeout",

	// Storage
	"storage_driver":       "storage.driver",
	"sqlite_path":          "storage.sqlite_path",
	"postgres_dsn":         "storage.postgres_dsn",
	"redis_addr":           "storage.redis_addr",
	"redis_password":       "storage.redis_password",
	"redis_db":             "storage.redis_db",
	"redis_key":            "storage.redis_key",
	"badger_dir":           "storage.badger_dir",
	"badger_in_memory":     "storage.badger_in_memory",
	"storage_open_timeout": "storage.open_timeout",

	// Profile cache and upstream
	"linux_do_base_url":     "profile.base_url",
	"profile_ttl":           "profile.ttl",
	"profile_max_keys":      "profile.max_keys",
	"profile_fetch_timeout": "profile.fetch_timeout",
	"upstream_min_interval": "profile.min_interval",
	"upstream_timeout":      "profile.timeout",
	"upstream_user_agent":   "profile.user_agent",
	"breaker_max_requests":  "profile.breaker_max_requests",
	"breaker_interval":      "profile.breaker_interval",
	"breaker_timeout":       "profile.breaker_timeout",
	"breaker_min_requests":  "profile.breaker_min_requests",
	"breaker_failure_ratio": "profile.breaker_failure_ratio",

	// Render
	"default_timezone": "render.timezone",
	"note_cache_size":  "render.note_cache_size",
	"badge_title":      "render.title",

	// Logging
	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",

	// Supervisor
	"supervisor_failure_threshold": "supervisor.failure_threshold",
	"supervisor_failure_decay":     "supervisor.failure_decay",
	"supervisor_failure_backoff":   "supervisor.failure_backoff",
	"supervisor_shutdown_timeout":  "supervisor.shutdown_timeout",
	"task_drain_timeout":           "supervisor.drain_timeout",
}

// envTransformFunc maps an environment variable name to its koanf path, or
// "" to skip it. Keys may carry the GREETING_ prefix.
//
// Examples:
//   - ACCESS_KEY -> counter.access_key
//   - GREETING_STORAGE_DRIVER -> storage.driver
//   - LOG_LEVEL -> logging.level
func envTransformFunc(key string) string {
	key = strings.ToLower(key)
	key = strings.TrimPrefix(key, "greeting_")
	return envMappings[key]
}

// WatchConfigFile calls callback after every change to path.
func WatchConfigFile(path string, callback func()) error {
	provider := file.Provider(path)

	return provider.Watch(func(_ any, err error) {
		if err != nil {
			return
		}
		callback()
	})
}

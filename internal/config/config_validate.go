// Greeting - Visit Counter and Profile Card Badges
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/greeting

package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tomtom215/greeting/internal/logging"
	"github.com/tomtom215/greeting/internal/storage"
	"github.com/tomtom215/greeting/internal/validation"
)

// Validate checks field constraints declared in struct tags, then the
// cross-field rules the tags cannot express.
func (c *Config) Validate() error {
	if err := validation.ValidateStruct(c); err != nil {
		return err
	}

	validators := []func() error{
		c.validateServer,
		c.validateStorage,
		c.validateProfile,
		c.validateLogging,
		c.validateSupervisor,
	}
	for _, validate := range validators {
		if err := validate(); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) validateServer() error {
	seen := make(map[string]struct{}, len(c.Server.Listen))
	for _, addr := range c.Server.Listen {
		if _, dup := seen[addr]; dup {
			return fmt.Errorf("server.listen: duplicate address %q", addr)
		}
		seen[addr] = struct{}{}
	}

	if !c.Server.RateLimitDisabled && c.Server.RateLimitReqs > 0 && c.Server.RateLimitWindow <= 0 {
		return errors.New("server.rate_limit_window must be positive when rate limiting is enabled")
	}
	return requirePositive(map[string]time.Duration{
		"server.read_timeout":     c.Server.ReadTimeout,
		"server.write_timeout":    c.Server.WriteTimeout,
		"server.shutdown_timeout": c.Server.ShutdownTimeout,
		"counter.write_timeout":   c.Counter.WriteTimeout,
	})
}

func (c *Config) validateStorage() error {
	s := c.Storage
	switch strings.ToLower(s.Driver) {
	case storage.DriverSQLite:
		if s.SQLitePath == "" {
			return errors.New("storage.sqlite_path is required for the sqlite driver")
		}
	case storage.DriverPostgres:
		if s.PostgresDSN == "" {
			return errors.New("storage.postgres_dsn is required for the postgres driver")
		}
	case storage.DriverRedis:
		if s.RedisAddr == "" {
			return errors.New("storage.redis_addr is required for the redis driver")
		}
	case storage.DriverBadger:
		if s.BadgerDir == "" && !s.BadgerInMemory {
			return errors.New("storage.badger_dir is required unless storage.badger_in_memory is set")
		}
	}
	return requirePositive(map[string]time.Duration{
		"storage.open_timeout": s.OpenTimeout,
	})
}

func (c *Config) validateProfile() error {
	p := c.Profile
	if err := requirePositive(map[string]time.Duration{
		"profile.ttl":           p.TTL,
		"profile.fetch_timeout": p.FetchTimeout,
		"profile.timeout":       p.Timeout,
	}); err != nil {
		return err
	}
	if p.MinInterval < 0 {
		return errors.New("profile.min_interval must not be negative")
	}
	if p.FetchTimeout < p.Timeout+p.MinInterval {
		return fmt.Errorf("profile.fetch_timeout (%s) must cover one rate-limited request (%s)",
			p.FetchTimeout, p.Timeout+p.MinInterval)
	}
	return nil
}

func (c *Config) validateLogging() error {
	if !logging.ValidLevel(c.Logging.Level) {
		return fmt.Errorf("logging.level %q is not a valid level", c.Logging.Level)
	}
	return nil
}

func (c *Config) validateSupervisor() error {
	return requirePositive(map[string]time.Duration{
		"supervisor.failure_backoff":  c.Supervisor.FailureBackoff,
		"supervisor.shutdown_timeout": c.Supervisor.ShutdownTimeout,
		"supervisor.drain_timeout":    c.Supervisor.DrainTimeout,
	})
}

func requirePositive(fields map[string]time.Duration) error {
	var errs []error
	for name, d := range fields {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %s", name, d))
		}
	}
	return errors.Join(errs...)
}

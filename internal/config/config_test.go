// Greeting - Visit Counter and Profile Card Badges
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/greeting

package config

import (
	"net/netip"
	"strings"
	"testing"
	"time"

	"github.com/tomtom215/greeting/internal/counter"
)

func TestDefaultConfigValidates(t *testing.T) {
	t.Parallel()

	if err := defaultConfig().Validate(); err != nil {
		t.Fatalf("defaultConfig().Validate() error = %v", err)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "no listeners",
			mutate:  func(c *Config) { c.Server.Listen = nil },
			wantErr: "server.listen",
		},
		{
			name:    "duplicate listener",
			mutate:  func(c *Config) { c.Server.Listen = []string{"127.0.0.1:1", "127.0.0.1:1"} },
			wantErr: "duplicate address",
		},
		{
			name:    "zero rate limit window",
			mutate:  func(c *Config) { c.Server.RateLimitWindow = 0 },
			wantErr: "rate_limit_window",
		},
		{
			name:    "zero write timeout",
			mutate:  func(c *Config) { c.Counter.WriteTimeout = 0 },
			wantErr: "counter.write_timeout",
		},
		{
			name: "sqlite without path",
			mutate: func(c *Config) {
				c.Storage.SQLitePath = ""
			},
			wantErr: "sqlite_path",
		},
		{
			name:    "redis without addr",
			mutate:  func(c *Config) { c.Storage.Driver = "redis" },
			wantErr: "redis_addr",
		},
		{
			name: "badger without dir",
			mutate: func(c *Config) {
				c.Storage.Driver = "badger"
				c.Storage.BadgerDir = ""
			},
			wantErr: "badger_dir",
		},
		{
			name:    "negative min interval",
			mutate:  func(c *Config) { c.Profile.MinInterval = -time.Second },
			wantErr: "min_interval",
		},
		{
			name:    "fetch timeout shorter than one request",
			mutate:  func(c *Config) { c.Profile.FetchTimeout = time.Second },
			wantErr: "fetch_timeout",
		},
		{
			name:    "max keys too small",
			mutate:  func(c *Config) { c.Profile.MaxKeys = 1 },
			wantErr: "profile.max_keys",
		},
		{
			name:    "bad base url",
			mutate:  func(c *Config) { c.Profile.BaseURL = "not a url" },
			wantErr: "profile.base_url",
		},
		{
			name:    "bad failure ratio",
			mutate:  func(c *Config) { c.Profile.BreakerFailureRatio = 1.5 },
			wantErr: "breaker_failure_ratio",
		},
		{
			name:    "bad log format",
			mutate:  func(c *Config) { c.Logging.Format = "xml" },
			wantErr: "logging.format",
		},
		{
			name:    "zero drain timeout",
			mutate:  func(c *Config) { c.Supervisor.DrainTimeout = 0 },
			wantErr: "drain_timeout",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := defaultConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if err == nil {
				t.Fatal("Validate() error = nil, want error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want it to mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestValidateAllowsDisabledRateLimit(t *testing.T) {
	t.Parallel()

	cfg := defaultConfig()
	cfg.Server.RateLimitDisabled = true
	cfg.Server.RateLimitWindow = 0
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v, want nil", err)
	}

	cfg = defaultConfig()
	cfg.Storage.Driver = "badger"
	cfg.Storage.BadgerDir = ""
	cfg.Storage.BadgerInMemory = true
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v, want nil for in-memory badger", err)
	}
}

func TestMappers(t *testing.T) {
	t.Parallel()

	cfg := defaultConfig()
	cfg.Counter.MaxCounters = 10
	cfg.Counter.QueueCapacity = 7
	cfg.Storage.Driver = "redis"
	cfg.Storage.RedisAddr = "localhost:6379"
	cfg.Profile.MinInterval = 2 * time.Second
	cfg.Logging.Level = "debug"

	if got := cfg.CounterStoreConfig().MaxCounters; got != 10 {
		t.Errorf("CounterStoreConfig().MaxCounters = %d, want 10", got)
	}
	if got := cfg.QueueConfig().Capacity; got != 7 {
		t.Errorf("QueueConfig().Capacity = %d, want 7", got)
	}
	sink := cfg.SinkConfig()
	if sink.Driver != "redis" || sink.RedisAddr != "localhost:6379" {
		t.Errorf("SinkConfig() = %+v", sink)
	}
	if got := cfg.CacheConfig().TTL; got != cfg.Profile.TTL {
		t.Errorf("CacheConfig().TTL = %v, want %v", got, cfg.Profile.TTL)
	}
	up := cfg.UpstreamConfig()
	if up.MinInterval != 2*time.Second || up.Breaker.FailureRatio != cfg.Profile.BreakerFailureRatio {
		t.Errorf("UpstreamConfig() = %+v", up)
	}
	if got := cfg.LoggingSettings().Level; got != "debug" {
		t.Errorf("LoggingSettings().Level = %q, want debug", got)
	}
}

func TestNewAuthorizer(t *testing.T) {
	t.Parallel()

	cfg := defaultConfig()
	cfg.Counter.AccessKey = "s3cret"

	auth, err := cfg.NewAuthorizer()
	if err != nil {
		t.Fatalf("NewAuthorizer() error = %v", err)
	}

	if !auth.Authorized("", netip.MustParseAddr("127.0.0.1")) {
		t.Error("loopback should be allow-listed by default")
	}
	if !auth.Authorized("s3cret", netip.MustParseAddr("203.0.113.9")) {
		t.Error("valid key should authorize any origin")
	}
	if auth.Authorized("wrong", netip.MustParseAddr("203.0.113.9")) {
		t.Error("wrong key from a foreign origin should be rejected")
	}

	cfg.Counter.CIDRAllowList = []string{"bogus"}
	if _, err := cfg.NewAuthorizer(); err == nil {
		t.Error("NewAuthorizer() error = nil, want error for a bad allow-list")
	}
}

func TestApplyAuthorizer(t *testing.T) {
	t.Parallel()

	foreign := netip.MustParseAddr("203.0.113.9")
	auth := counter.NewAuthorizer("old", []netip.Prefix{netip.MustParsePrefix("127.0.0.0/8")})

	cfg := defaultConfig()
	cfg.Counter.AccessKey = ""
	cfg.Counter.CIDRAllowList = []string{"203.0.113.0/24"}
	if err := cfg.ApplyAuthorizer(auth); err != nil {
		t.Fatalf("ApplyAuthorizer() error = %v", err)
	}

	if !auth.Authorized("", foreign) {
		t.Error("new allow-list should be applied")
	}
	if auth.Authorized("", netip.MustParseAddr("127.0.0.1")) {
		t.Error("old allow-list should be replaced")
	}
	if !auth.CredentialValid("old") {
		t.Error("empty access key should keep the previous key")
	}

	cfg.Counter.AccessKey = "new"
	if err := cfg.ApplyAuthorizer(auth); err != nil {
		t.Fatalf("ApplyAuthorizer() error = %v", err)
	}
	if auth.CredentialValid("old") || !auth.CredentialValid("new") {
		t.Error("non-empty access key should replace the previous key")
	}

	cfg.Counter.CIDRAllowList = []string{"not-a-cidr"}
	if err := cfg.ApplyAuthorizer(auth); err == nil {
		t.Fatal("ApplyAuthorizer() error = nil, want error")
	}
	if !auth.Authorized("", foreign) {
		t.Error("failed apply should leave the allow-list untouched")
	}
}

// Greeting - Visit Counter and Profile Card Badges
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/greeting

package config

import (
	"fmt"

	"github.com/tomtom215/greeting/internal/counter"
	"github.com/tomtom215/greeting/internal/logging"
)

// NewAuthorizer builds the counter authorizer from the counter section.
func (c *Config) NewAuthorizer() (*counter.Authorizer, error) {
	prefixes, err := counter.ParseAllowList(c.Counter.CIDRAllowList)
	if err != nil {
		return nil, fmt.Errorf("counter.cidr_allowlist: %w", err)
	}
	return counter.NewAuthorizer(c.Counter.AccessKey, prefixes), nil
}

// ApplyAuthorizer applies the hot-reloadable settings to auth. The allow
// list is always replaced; an empty access key keeps the current one, so a
// key can only be removed by a restart.
func (c *Config) ApplyAuthorizer(auth *counter.Authorizer) error {
	prefixes, err := counter.ParseAllowList(c.Counter.CIDRAllowList)
	if err != nil {
		return fmt.Errorf("counter.cidr_allowlist: %w", err)
	}

	auth.SetAllowList(prefixes)
	if c.Counter.AccessKey != "" {
		auth.SetSecret(c.Counter.AccessKey)
	}
	return nil
}

// WatchAuthorizer reloads path on every change and applies the access key
// and allow-list to auth. A file that fails to load or validate is logged
// and ignored; the previous settings stay in effect.
func WatchAuthorizer(path string, auth *counter.Authorizer) error {
	log := logging.WithComponent("config")

	return WatchConfigFile(path, func() {
		cfg, err := LoadFile(path)
		if err != nil {
			log.Error().Err(err).Str("path", path).Msg("Config reload failed, keeping previous settings")
			return
		}
		if err := cfg.ApplyAuthorizer(auth); err != nil {
			log.Error().Err(err).Str("path", path).Msg("Config reload failed, keeping previous settings")
			return
		}
		log.Info().
			Str("path", path).
			Int("cidr_allowlist", len(cfg.Counter.CIDRAllowList)).
			Bool("access_key_set", cfg.Counter.AccessKey != "").
			Msg("Access settings reloaded")
	})
}

// Greeting - Visit Counter and Profile Card Badges
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/greeting

// Package sanitize strips markup from user supplied text (badge notes,
// custom bios and upstream profile bios) before it is rendered into SVG.
package sanitize

import (
	"github.com/microcosm-cc/bluemonday"

	"github.com/tomtom215/greeting/internal/cache"
	"github.com/tomtom215/greeting/internal/logging"
)

// DefaultCacheSize is the number of sanitized strings kept in memory.
const DefaultCacheSize = 8192

// Sanitizer removes every HTML element and attribute from its input. The
// output is entity escaped and safe to place inside SVG text nodes as is.
type Sanitizer struct {
	policy *bluemonday.Policy
	cache  *cache.LRU[string, string]
}

// New creates a Sanitizer that remembers up to cacheSize results.
func New(cacheSize int) *Sanitizer {
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	return &Sanitizer{
		policy: bluemonday.StrictPolicy(),
		cache:  cache.NewLRU[string, string](cacheSize, 0),
	}
}

// Clean returns the sanitized form of s.
func (s *Sanitizer) Clean(in string) string {
	if in == "" {
		return ""
	}
	if out, ok := s.cache.Get(in); ok {
		logging.Trace().Str("note", in).Msg("Sanitized note cache hit")
		return out
	}

	out := s.policy.Sanitize(in)
	s.cache.Add(in, out)
	return out
}

// Len returns the number of cached results.
func (s *Sanitizer) Len() int {
	return s.cache.Len()
}

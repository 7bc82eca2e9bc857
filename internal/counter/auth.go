// Greeting - Visit Counter and Profile Card Badges
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/greeting

package counter

import (
	"crypto/subtle"
	"fmt"
	"net/netip"
	"strings"
	"sync/atomic"
)

// Authorizer decides whether a caller may create or delete counters.
//
// The policy is: an origin inside the CIDR allow-list is authorized, otherwise
// the credential must equal the shared secret. An empty secret never matches,
// so without a secret only allow-listed origins can create counters.
// Both the secret and the allow-list can be swapped at runtime.
type Authorizer struct {
	secret    atomic.Pointer[string]
	allowList atomic.Pointer[[]netip.Prefix]
}

// NewAuthorizer creates an Authorizer with the given secret and allow-list.
func NewAuthorizer(secret string, allowList []netip.Prefix) *Authorizer {
	a := &Authorizer{}
	a.SetSecret(secret)
	a.SetAllowList(allowList)
	return a
}

// SetSecret replaces the shared secret. An empty secret disables
// credential-based authorization.
func (a *Authorizer) SetSecret(secret string) {
	a.secret.Store(&secret)
}

// SetAllowList replaces the CIDR allow-list.
func (a *Authorizer) SetAllowList(prefixes []netip.Prefix) {
	cp := make([]netip.Prefix, len(prefixes))
	copy(cp, prefixes)
	a.allowList.Store(&cp)
}

// AllowList returns a copy of the current allow-list.
func (a *Authorizer) AllowList() []netip.Prefix {
	cur := *a.allowList.Load()
	cp := make([]netip.Prefix, len(cur))
	copy(cp, cur)
	return cp
}

// Authorized reports whether a caller from origin presenting credential is
// allowed to mutate the counter table. origin may be the zero Addr when the
// caller has no network address (unix socket).
func (a *Authorizer) Authorized(credential string, origin netip.Addr) bool {
	return a.OriginAllowed(origin) || a.CredentialValid(credential)
}

// OriginAllowed reports whether origin is inside the allow-list.
func (a *Authorizer) OriginAllowed(origin netip.Addr) bool {
	if !origin.IsValid() {
		return false
	}
	origin = origin.Unmap()
	for _, prefix := range *a.allowList.Load() {
		if prefix.Contains(origin) {
			return true
		}
	}
	return false
}

// CredentialValid reports whether credential equals the current secret.
func (a *Authorizer) CredentialValid(credential string) bool {
	secret := *a.secret.Load()
	if secret == "" || credential == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(secret), []byte(credential)) == 1
}

// ParseAllowList parses CIDR strings. A bare address is treated as a single
// host prefix (/32 or /128).
func ParseAllowList(entries []string) ([]netip.Prefix, error) {
	prefixes := make([]netip.Prefix, 0, len(entries))
	for _, raw := range entries {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}

		if !strings.Contains(raw, "/") {
			addr, err := netip.ParseAddr(raw)
			if err != nil {
				return nil, fmt.Errorf("invalid allow-list entry %q: %w", raw, err)
			}
			addr = addr.Unmap()
			prefixes = append(prefixes, netip.PrefixFrom(addr, addr.BitLen()))
			continue
		}

		prefix, err := netip.ParsePrefix(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid allow-list entry %q: %w", raw, err)
		}
		prefixes = append(prefixes, prefix.Masked())
	}
	return prefixes, nil
}

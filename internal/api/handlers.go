// Greeting - Visit Counter and Profile Card Badges
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/greeting

package api

import (
	"net/http"
	"net/netip"
	"net/url"
	"strings"

	"github.com/tomtom215/greeting/internal/counter"
	"github.com/tomtom215/greeting/internal/middleware"
	"github.com/tomtom215/greeting/internal/profile"
	"github.com/tomtom215/greeting/internal/render"
)

// linuxDoHost is the forum whose pages may trigger profile fetches.
const linuxDoHost = "linux.do"

// Handler holds the HTTP handlers.
type Handler struct {
	store     *counter.Store
	profiles  *profile.Cache
	renderer  *render.Renderer
	readiness Readiness
	perf      *middleware.PerformanceMonitor
}

// remoteOrigin returns the client address. chimiddleware.RealIP may have
// replaced RemoteAddr with a bare IP; unix socket peers have no address and
// yield the zero Addr, which no allow-list matches.
func remoteOrigin(r *http.Request) netip.Addr {
	if ap, err := netip.ParseAddrPort(r.RemoteAddr); err == nil {
		return ap.Addr().Unmap()
	}
	if addr, err := netip.ParseAddr(r.RemoteAddr); err == nil {
		return addr.Unmap()
	}
	return netip.Addr{}
}

// fromLinuxDo reports whether the request was referred by a linux.do page.
func fromLinuxDo(r *http.Request) bool {
	ref := r.Referer()
	if ref == "" {
		return false
	}
	u, err := url.Parse(ref)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Hostname(), linuxDoHost)
}

func parseBool(s string) bool {
	return s == "1" || strings.EqualFold(s, "true")
}

// authorized reports whether the request passes the counter authorizer.
func (h *Handler) authorized(r *http.Request) bool {
	return h.store.Authorizer().Authorized(r.URL.Query().Get("access_key"), remoteOrigin(r))
}

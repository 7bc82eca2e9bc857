// Greeting - Visit Counter and Profile Card Badges
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/greeting

package api

import (
	"github.com/tomtom215/greeting/internal/counter"
	"github.com/tomtom215/greeting/internal/middleware"
	"github.com/tomtom215/greeting/internal/profile"
	"github.com/tomtom215/greeting/internal/render"
)

// Readiness reports whether persisted counters have been loaded.
type Readiness interface {
	Ready() bool
}

// Deps are the components the handlers work on.
type Deps struct {
	Store    *counter.Store
	Profiles *profile.Cache
	Renderer *render.Renderer

	// Readiness gates /health/ready. nil means always ready.
	Readiness Readiness

	// Performance backs the Server-Timing header and /stats/requests.
	// nil creates a monitor with default settings.
	Performance *middleware.PerformanceMonitor

	Middleware *ChiMiddlewareConfig
}

// Router wires handlers and middleware.
type Router struct {
	handler       *Handler
	perf          *middleware.PerformanceMonitor
	chiMiddleware *ChiMiddleware
}

// NewRouter creates a router over deps.
func NewRouter(deps Deps) *Router {
	perf := deps.Performance
	if perf == nil {
		perf = middleware.NewPerformanceMonitor(0, 0)
	}

	return &Router{
		handler: &Handler{
			store:     deps.Store,
			profiles:  deps.Profiles,
			renderer:  deps.Renderer,
			readiness: deps.Readiness,
			perf:      perf,
		},
		perf:          perf,
		chiMiddleware: NewChiMiddleware(deps.Middleware),
	}
}

// Greeting - Visit Counter and Profile Card Badges
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/greeting

/*
Package middleware provides the HTTP middleware of the badge server.

All middleware has the chi signature func(http.Handler) http.Handler and is
installed with r.Use in internal/api:

	r.Use(middleware.RequestID)           // X-Request-ID, X-Correlation-ID + logging context
	r.Use(chimiddleware.RealIP)           // origin for the counter authorizer
	r.Use(chimiddleware.Recoverer)        // panics become 500s
	r.Use(middleware.PrometheusMetrics)   // per-route request metrics
	r.Use(perf.Middleware)                // Server-Timing header, slow request log
	r.Use(middleware.Compression)         // gzip for SVG and JSON bodies

Metrics are labelled by the chi route pattern ("/greeting/{id}") rather than
the raw path, so counter ids never become label values.
*/
package middleware

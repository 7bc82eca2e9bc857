// Greeting - Visit Counter and Profile Card Badges
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/greeting

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/greeting/internal/logging"
	"github.com/tomtom215/greeting/internal/middleware"
)

// Setup builds the chi router with the global middleware stack.
func (router *Router) Setup() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.PrometheusMetrics)
	r.Use(router.perf.Middleware)
	r.Use(router.chiMiddleware.CORS())

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", router.handler.HealthLive)
		r.Get("/ready", router.handler.HealthReady)
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(router.chiMiddleware.RateLimit())
		r.Use(middleware.Compression)

		r.Get("/greeting/{id}", router.handler.Greeting)
		r.Delete("/greeting/{id}", router.handler.DeleteGreeting)
		r.Get("/card/{user}", router.handler.Card)
		r.Get("/stats/requests", router.handler.RequestStats)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		logging.Ctx(r.Context()).Warn().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("remote", r.RemoteAddr).
			Msg("No available handler")
		respondError(w, r, http.StatusNotFound, codeNotFound, "Not found")
	})

	return r
}

// Greeting - Visit Counter and Profile Card Badges
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/greeting

package api

import (
	"net/http"
)

// HealthStatus is the body of the health endpoints.
type HealthStatus struct {
	Status     string `json:"status"`
	SinkReady  bool   `json:"sink_ready"`
	Counters   int    `json:"counters"`
	Profiles   int    `json:"profiles"`
	RefreshLen int    `json:"refresh_queue"`
}

// HealthLive answers as long as the process serves HTTP.
func (h *Handler) HealthLive(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, r, http.StatusOK, HealthStatus{Status: "alive"})
}

// HealthReady answers 200 once persisted counters are loaded and 503 before.
func (h *Handler) HealthReady(w http.ResponseWriter, r *http.Request) {
	ready := h.readiness == nil || h.readiness.Ready()

	status := HealthStatus{
		Status:     "ready",
		SinkReady:  ready,
		Counters:   h.store.Len(),
		Profiles:   h.profiles.Len(),
		RefreshLen: h.profiles.QueueLen(),
	}
	if !ready {
		status.Status = "starting"
		respondJSON(w, r, http.StatusServiceUnavailable, status)
		return
	}
	respondJSON(w, r, http.StatusOK, status)
}

// RequestStats returns the per-route latency window. Only callers that pass
// the counter authorizer may read it.
func (h *Handler) RequestStats(w http.ResponseWriter, r *http.Request) {
	if !h.authorized(r) {
		respondError(w, r, http.StatusUnauthorized, codeUnauthorized, "unauthorized")
		return
	}
	respondJSON(w, r, http.StatusOK, h.perf.Stats())
}

// Greeting - Visit Counter and Profile Card Badges
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/greeting

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/greeting/internal/logging"
	"github.com/tomtom215/greeting/internal/render"
)

// Badge types selected with the type query parameter.
const (
	typeGeneral     = "general"
	typeLinuxDoCard = "linux-do-card"
)

// Greeting counts a visit and renders the requested badge.
func (h *Handler) Greeting(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")
	q := r.URL.Query()

	count, exists := h.store.IncrementOrCreate(ctx, id, q.Get("access_key"), remoteOrigin(r), parseBool(q.Get("debug")))
	loc := h.renderer.Location(q.Get("timezone"))

	var (
		body []byte
		err  error
	)
	switch q.Get("type") {
	case typeLinuxDoCard:
		user := q.Get("user")
		if user == "" {
			user = id
		}
		info := h.profiles.Get(ctx, user, exists || fromLinuxDo(r))
		body, err = h.renderer.LinuxDoCard(render.CardOptions{
			Info:     info,
			Location: loc,
			Bio:      q.Get("bio"),
		})
	default:
		body, err = h.renderer.General(render.GeneralOptions{
			Count:      count,
			HasCount:   exists,
			Location:   loc,
			Background: render.ParseBackground(q.Get("bg")),
			Note:       q.Get("note"),
		})
	}
	if err != nil {
		logging.Ctx(ctx).Error().Err(err).Str("id", id).Msg("Failed to render badge")
		respondError(w, r, http.StatusInternalServerError, codeRender, "Failed to render badge")
		return
	}

	respondSVG(w, r, body)
}

// DeleteGreeting deletes a counter. 204 on success.
func (h *Handler) DeleteGreeting(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	err := h.store.Delete(r.Context(), id, r.URL.Query().Get("access_key"), remoteOrigin(r))
	if err != nil {
		status, code := statusFor(err)
		respondError(w, r, status, code, err.Error())
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

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

// Card renders a linux.do profile card without touching any counter. A
// cold profile is only fetched for authorized callers, requests referred by
// linux.do, or users that have a counter.
func (h *Handler) Card(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user := chi.URLParam(r, "user")
	q := r.URL.Query()

	_, hasCounter := h.store.Get(user)
	authorized := hasCounter || fromLinuxDo(r) || h.authorized(r)

	body, err := h.renderer.LinuxDoCard(render.CardOptions{
		Info:     h.profiles.Get(ctx, user, authorized),
		Location: h.renderer.Location(q.Get("timezone")),
		Bio:      q.Get("bio"),
	})
	if err != nil {
		logging.Ctx(ctx).Error().Err(err).Str("user", user).Msg("Failed to render card")
		respondError(w, r, http.StatusInternalServerError, codeRender, "Failed to render card")
		return
	}

	respondSVG(w, r, body)
}

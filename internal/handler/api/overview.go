// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package api

import (
	"net/http"

	"github.com/olegiv/fieldops-go/internal/middleware"
)

// Overview handles GET /api/v1/overview.
// The report aggregates every upstream list source concurrently and degrades
// gracefully: sources that fail are reported in sources_unavailable rather
// than failing the whole request.
func (h *Handler) Overview(w http.ResponseWriter, r *http.Request) {
	report := h.overview.Build(r.Context(), middleware.GetOrgID(r))
	WriteSuccess(w, report, nil)
}

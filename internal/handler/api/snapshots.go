// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/olegiv/fieldops-go/internal/middleware"
	"github.com/olegiv/fieldops-go/internal/snapshot"
)

// GetSnapshot handles GET /api/v1/snapshots/{listType}.
// Returns the cached list snapshot for the org, fetching from the upstream
// backend on a cache miss.
func (h *Handler) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	listType := chi.URLParam(r, "listType")
	if !snapshot.ValidListType(listType) {
		WriteBadRequest(w, "Unknown list type: "+listType, map[string]string{
			"listType": "Must be one of: " + strings.Join(snapshot.ListTypes, ", "),
		})
		return
	}

	snap, err := h.snapshots.Get(r.Context(), middleware.GetOrgID(r), listType)
	if err != nil {
		h.logger.Error("fetching snapshot",
			"category", "sync",
			"org_id", middleware.GetOrgID(r),
			"list_type", listType,
			"error", err)
		WriteBadGateway(w, "Failed to fetch "+listType+" snapshot")
		return
	}

	WriteSuccess(w, snap, nil)
}

// RefreshSnapshot handles POST /api/v1/snapshots/{listType}/refresh.
// Forces a fresh fetch, replacing whatever is cached.
func (h *Handler) RefreshSnapshot(w http.ResponseWriter, r *http.Request) {
	listType := chi.URLParam(r, "listType")
	if !snapshot.ValidListType(listType) {
		WriteBadRequest(w, "Unknown list type: "+listType, nil)
		return
	}

	snap, err := h.snapshots.Refresh(r.Context(), middleware.GetOrgID(r), listType)
	if err != nil {
		h.logger.Error("refreshing snapshot",
			"category", "sync",
			"org_id", middleware.GetOrgID(r),
			"list_type", listType,
			"error", err)
		WriteBadGateway(w, "Failed to refresh "+listType+" snapshot")
		return
	}

	WriteSuccess(w, snap, nil)
}

// RefreshAllSnapshots handles POST /api/v1/snapshots/refresh.
// Refreshes every list type for the org; individual failures are counted,
// not fatal.
func (h *Handler) RefreshAllSnapshots(w http.ResponseWriter, r *http.Request) {
	refreshed, failed := h.snapshots.RefreshAll(r.Context(), middleware.GetOrgID(r))

	type refreshResult struct {
		Refreshed int `json:"refreshed"`
		Failed    int `json:"failed"`
	}
	WriteSuccess(w, refreshResult{Refreshed: refreshed, Failed: failed}, nil)
}

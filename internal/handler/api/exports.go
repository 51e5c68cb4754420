// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package api

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/olegiv/fieldops-go/internal/export"
	"github.com/olegiv/fieldops-go/internal/middleware"
)

// ExportClockings handles GET /api/v1/exports/clockings.csv.
// Clocking records are fetched live from the upstream backend and streamed
// back as RFC 4180 CSV for payroll import.
func (h *Handler) ExportClockings(w http.ResponseWriter, r *http.Request) {
	h.exportCSV(w, r, "clockings", export.ClockingsCSV)
}

// ExportVehicles handles GET /api/v1/exports/vehicles.csv.
func (h *Handler) ExportVehicles(w http.ResponseWriter, r *http.Request) {
	h.exportCSV(w, r, "vehicles", export.VehiclesCSV)
}

func (h *Handler) exportCSV(w http.ResponseWriter, r *http.Request, listType string, write func(w io.Writer, records []map[string]any) error) {
	orgID := middleware.GetOrgID(r)
	records, err := h.backend.FetchList(r.Context(), orgID, listType)
	if err != nil {
		h.writeUpstreamError(w, r, listType, err)
		return
	}

	filename := fmt.Sprintf("%s-%s.csv", listType, time.Now().UTC().Format("2006-01-02"))
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)

	if err := write(w, records); err != nil {
		h.logger.Error("writing csv export",
			"category", "sync",
			"org_id", orgID,
			"list_type", listType,
			"error", err)
	}
}

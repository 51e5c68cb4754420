// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package api

import (
	"database/sql"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/olegiv/fieldops-go/internal/middleware"
	"github.com/olegiv/fieldops-go/internal/model"
)

// Routes builds the /api/v1 route tree. Everything except /status requires
// an API key; write and sync endpoints additionally require the matching
// permission.
func (h *Handler) Routes(db *sql.DB) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.GlobalRateLimit(100, 200))
	r.Use(middleware.Timeout(30 * time.Second))

	// Public endpoints (no authentication required)
	r.Get("/status", h.Status)

	// Protected endpoints (API key required)
	r.Group(func(r chi.Router) {
		r.Use(middleware.APIKeyAuth(db))
		r.Use(middleware.APIRateLimit(10, 20)) // 10 requests per second per API key

		r.Get("/auth", h.AuthInfo)

		// Geofences - normalization, import/export and upstream fetch
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequirePermission(model.PermissionFencesRead))
			r.Post("/geofences/normalize", h.NormalizeGeofences)
			r.Post("/geofences/export", h.ExportGeofences)
			r.Get("/tasks/{taskID}/geofences", h.TaskGeofences)
			r.Get("/projects/{projectID}/geofences", h.ProjectGeofences)
		})
		r.With(middleware.RequirePermission(model.PermissionFencesWrite)).
			Post("/geofences/import", h.ImportGeofences)

		// Outbox - offline event capture and delivery
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequirePermission(model.PermissionOutboxRead))
			r.Get("/outbox", h.ListOutboxEvents)
			r.Get("/outbox/counts", h.OutboxCounts)
			r.Get("/outbox/biometric-enrollments", h.BiometricEnrollments)
		})
		r.With(middleware.RequirePermission(model.PermissionOutboxWrite)).
			Post("/outbox", h.CreateOutboxEvent)
		r.With(middleware.RequirePermission(model.PermissionOutboxSync)).
			Post("/outbox/sync", h.SyncOutbox)

		// Snapshots and the aggregated overview read the same upstream lists
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequirePermission(model.PermissionSnapshotsRead))
			r.Get("/overview", h.Overview)
			r.Get("/snapshots/{listType}", h.GetSnapshot)
			r.Post("/snapshots/refresh", h.RefreshAllSnapshots)
			r.Post("/snapshots/{listType}/refresh", h.RefreshSnapshot)
		})

		// CSV exports
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequirePermission(model.PermissionExportsRead))
			r.Get("/exports/clockings.csv", h.ExportClockings)
			r.Get("/exports/vehicles.csv", h.ExportVehicles)
		})

		// Event log
		r.With(middleware.RequirePermission(model.PermissionEventsRead)).
			Get("/events", h.ListEvents)
	})

	return r
}

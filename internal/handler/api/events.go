// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/olegiv/fieldops-go/internal/model"
)

// EventResponse is the JSON view of a system event log entry.
type EventResponse struct {
	ID        int64           `json:"id"`
	Level     string          `json:"level"`
	Category  string          `json:"category"`
	Message   string          `json:"message"`
	OrgID     string          `json:"org_id,omitempty"`
	UserID    *int64          `json:"user_id,omitempty"`
	Metadata  json.RawMessage `json:"metadata,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

func eventToResponse(e model.Event) EventResponse {
	resp := EventResponse{
		ID:        e.ID,
		Level:     e.Level,
		Category:  e.Category,
		Message:   e.Message,
		CreatedAt: e.CreatedAt,
	}
	if e.OrgID.Valid {
		resp.OrgID = e.OrgID.String
	}
	if e.UserID.Valid {
		resp.UserID = &e.UserID.Int64
	}
	if e.Metadata != "" && e.Metadata != "{}" {
		resp.Metadata = json.RawMessage(e.Metadata)
	}
	return resp
}

// ListEvents handles GET /api/v1/events?level=&category=&page=&per_page=.
// Events are the service's own diagnostics log (auth failures, sync errors,
// skipped fence records), newest first.
func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	level := r.URL.Query().Get("level")
	category := r.URL.Query().Get("category")

	page := parsePageParam(r)
	perPage := parsePerPageParam(r, 50, 200)
	offset := int64((page - 1) * perPage)

	events, err := h.queries.ListEvents(ctx, level, category, int64(perPage), offset)
	if err != nil {
		h.logger.Error("listing events", "error", err)
		WriteInternalError(w, "Failed to list events")
		return
	}
	total, err := h.queries.CountEvents(ctx, level, category)
	if err != nil {
		h.logger.Error("counting events", "error", err)
		WriteInternalError(w, "Failed to count events")
		return
	}

	out := make([]EventResponse, 0, len(events))
	for _, e := range events {
		out = append(out, eventToResponse(e))
	}

	WriteSuccess(w, out, &Meta{
		Total:   total,
		Page:    page,
		PerPage: perPage,
		Pages:   calculatePages(total, perPage),
	})
}

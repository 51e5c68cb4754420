// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/olegiv/fieldops-go/internal/devicemeta"
	"github.com/olegiv/fieldops-go/internal/middleware"
	"github.com/olegiv/fieldops-go/internal/model"
	"github.com/olegiv/fieldops-go/internal/outbox"
)

// maxOutboxBody bounds outbox event payload uploads.
const maxOutboxBody = 4 << 20 // 4 MB

// OutboxEventResponse is the JSON view of a queued event.
type OutboxEventResponse struct {
	ID         int64           `json:"id"`
	UID        string          `json:"uid"`
	EventType  string          `json:"event_type"`
	OrgID      string          `json:"org_id"`
	UserID     *int64          `json:"user_id,omitempty"`
	EntityRef  string          `json:"entity_ref,omitempty"`
	Payload    json.RawMessage `json:"payload"`
	FileURIs   json.RawMessage `json:"file_uris"`
	SyncStatus string          `json:"sync_status"`
	Attempts   int64           `json:"attempts"`
	LastError  string          `json:"last_error,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

func outboxEventToResponse(e model.OutboxEvent) OutboxEventResponse {
	resp := OutboxEventResponse{
		ID:         e.ID,
		UID:        e.UID,
		EventType:  e.EventType,
		OrgID:      e.OrgID,
		Payload:    json.RawMessage(e.Payload),
		FileURIs:   json.RawMessage(e.FileURIs),
		SyncStatus: e.SyncStatus,
		Attempts:   e.Attempts,
		CreatedAt:  e.CreatedAt,
		UpdatedAt:  e.UpdatedAt,
	}
	if e.UserID.Valid {
		resp.UserID = &e.UserID.Int64
	}
	if e.EntityRef.Valid {
		resp.EntityRef = e.EntityRef.String
	}
	if e.LastError.Valid {
		resp.LastError = e.LastError.String
	}
	return resp
}

func outboxEventsToResponse(events []model.OutboxEvent) []OutboxEventResponse {
	out := make([]OutboxEventResponse, 0, len(events))
	for _, e := range events {
		out = append(out, outboxEventToResponse(e))
	}
	return out
}

// CreateOutboxEventRequest is the request body for queueing an event.
type CreateOutboxEventRequest struct {
	EventType string          `json:"event_type"`
	UserID    int64           `json:"user_id,omitempty"`
	EntityRef string          `json:"entity_ref,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	FileURIs  []string        `json:"file_uris,omitempty"`
}

// CreateOutboxEvent handles POST /api/v1/outbox.
// The event is recorded durably and delivered to the upstream backend by the
// next sync pass. Device context is captured from the request headers and
// folded into the payload.
func (h *Handler) CreateOutboxEvent(w http.ResponseWriter, r *http.Request) {
	var req CreateOutboxEventRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxOutboxBody)).Decode(&req); err != nil {
		WriteBadRequest(w, "Invalid JSON body", nil)
		return
	}
	if req.EventType == "" {
		WriteValidationError(w, map[string]string{"event_type": "Event type is required"})
		return
	}

	event, err := h.outbox.Insert(r.Context(), outbox.InsertParams{
		EventType: req.EventType,
		OrgID:     middleware.GetOrgID(r),
		UserID:    req.UserID,
		EntityRef: req.EntityRef,
		Payload:   req.Payload,
		FileURIs:  req.FileURIs,
		Device:    devicemeta.FromRequest(r, h.geo),
	})
	if err != nil {
		if errors.Is(err, outbox.ErrInvalidEventType) {
			WriteValidationError(w, map[string]string{"event_type": "Invalid event type: " + req.EventType})
			return
		}
		if errors.Is(err, outbox.ErrInvalidPayload) {
			WriteValidationError(w, map[string]string{"payload": "Payload must be a JSON object"})
			return
		}
		h.logger.Error("recording outbox event",
			"category", "outbox",
			"org_id", middleware.GetOrgID(r),
			"error", err)
		WriteInternalError(w, "Failed to record event")
		return
	}

	WriteCreated(w, outboxEventToResponse(event))
}

// ListOutboxEvents handles GET /api/v1/outbox?status=&page=&per_page=.
func (h *Handler) ListOutboxEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	orgID := middleware.GetOrgID(r)

	status := r.URL.Query().Get("status")
	if status != "" && !model.ValidOutboxStatus(status) {
		WriteBadRequest(w, "Invalid status: "+status, map[string]string{
			"status": "Must be one of: pending, synced, failed",
		})
		return
	}

	page := parsePageParam(r)
	perPage := parsePerPageParam(r, 20, 100)
	offset := int64((page - 1) * perPage)
	limit := int64(perPage)

	var (
		events []model.OutboxEvent
		total  int64
		err    error
	)
	if status != "" {
		events, err = h.queries.ListOutboxEventsByStatus(ctx, orgID, status, limit, offset)
		if err == nil {
			total, err = h.queries.CountOutboxEventsByStatus(ctx, orgID, status)
		}
	} else {
		events, err = h.queries.ListOutboxEvents(ctx, orgID, limit, offset)
		if err == nil {
			var counts map[string]int64
			counts, err = h.outbox.Counts(ctx, orgID)
			for _, n := range counts {
				total += n
			}
		}
	}
	if err != nil {
		h.logger.Error("listing outbox events", "category", "outbox", "org_id", orgID, "error", err)
		WriteInternalError(w, "Failed to list events")
		return
	}

	WriteSuccess(w, outboxEventsToResponse(events), &Meta{
		Total:   total,
		Page:    page,
		PerPage: perPage,
		Pages:   calculatePages(total, perPage),
	})
}

// OutboxCounts handles GET /api/v1/outbox/counts.
func (h *Handler) OutboxCounts(w http.ResponseWriter, r *http.Request) {
	counts, err := h.outbox.Counts(r.Context(), middleware.GetOrgID(r))
	if err != nil {
		h.logger.Error("counting outbox events", "category", "outbox", "error", err)
		WriteInternalError(w, "Failed to count events")
		return
	}
	WriteSuccess(w, counts, nil)
}

// SyncOutbox handles POST /api/v1/outbox/sync.
// It runs one delivery pass over the queue for the caller's org and reports
// how many events were scanned, synced and failed. Failures stay queued.
func (h *Handler) SyncOutbox(w http.ResponseWriter, r *http.Request) {
	result, err := h.outbox.Sync(r.Context(), middleware.GetOrgID(r))
	if err != nil {
		h.logger.Error("outbox sync pass",
			"category", "outbox",
			"org_id", middleware.GetOrgID(r),
			"error", err)
		WriteInternalError(w, "Sync pass aborted")
		return
	}
	WriteSuccess(w, result, nil)
}

// BiometricEnrollments handles GET /api/v1/outbox/biometric-enrollments.
// Returns the most recent biometric enrollment events for support debugging
// of devices that keep re-enrolling.
func (h *Handler) BiometricEnrollments(w http.ResponseWriter, r *http.Request) {
	limit := int64(parseIntParam(r, "limit", 20, 1, 100))
	events, err := h.outbox.LastBiometricEnrollEvents(r.Context(), middleware.GetOrgID(r), limit)
	if err != nil {
		h.logger.Error("listing biometric enrollments", "category", "outbox", "error", err)
		WriteInternalError(w, "Failed to list enrollments")
		return
	}
	WriteSuccess(w, outboxEventsToResponse(events), nil)
}

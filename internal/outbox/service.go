// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package outbox stores mutations captured by offline devices and replays
// them to the main backend in first-in-first-out order with at-least-once
// delivery. Rows are never deleted before they have synced.
package outbox

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/olegiv/fieldops-go/internal/backend"
	"github.com/olegiv/fieldops-go/internal/devicemeta"
	"github.com/olegiv/fieldops-go/internal/model"
	"github.com/olegiv/fieldops-go/internal/store"
)

var (
	// ErrInvalidEventType is returned for malformed event type tags.
	ErrInvalidEventType = errors.New("outbox: invalid event type")

	// ErrInvalidPayload is returned when the payload cannot carry device
	// context because it is not a JSON object.
	ErrInvalidPayload = errors.New("outbox: payload must be a JSON object")
)

// syncEndpoints maps well-known event types to their dedicated backend
// replay endpoints. Unlisted types go to the generic events endpoint.
var syncEndpoints = map[string]string{
	model.OutboxTypeBiometricEnroll: "/sync/biometric-enrollments",
	model.OutboxTypeAssetCreate:     "/sync/assets",
	model.OutboxTypeAssetLog:        "/sync/asset-logs",
	model.OutboxTypeClocking:        "/sync/clockings",
	model.OutboxTypeInspection:      "/sync/inspections",
}

const genericSyncEndpoint = "/sync/events"

// Service coordinates inserts and upstream replay of offline events.
type Service struct {
	queries   *store.Queries
	client    *backend.Client
	logger    *slog.Logger
	batchSize int64
}

func NewService(queries *store.Queries, client *backend.Client, batchSize int64, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if batchSize <= 0 {
		batchSize = 50
	}
	return &Service{
		queries:   queries,
		client:    client,
		logger:    logger,
		batchSize: batchSize,
	}
}

// InsertParams describes one captured mutation.
type InsertParams struct {
	EventType string
	OrgID     string
	UserID    int64 // 0 when the event is not tied to a user
	EntityRef string
	Payload   json.RawMessage
	FileURIs  []string
	Device    devicemeta.Context
}

// Insert durably records an event as pending. The row gets a fresh UID that
// acts as the idempotency key for every later delivery attempt.
func (s *Service) Insert(ctx context.Context, p InsertParams) (model.OutboxEvent, error) {
	if !model.ValidOutboxEventType(p.EventType) {
		return model.OutboxEvent{}, fmt.Errorf("%w: %q", ErrInvalidEventType, p.EventType)
	}
	if p.OrgID == "" {
		return model.OutboxEvent{}, errors.New("outbox: org id is required")
	}

	payload := p.Payload
	if len(payload) == 0 {
		payload = json.RawMessage(`{}`)
	}
	payload, err := attachDevice(payload, p.Device)
	if err != nil {
		return model.OutboxEvent{}, err
	}

	fileURIs := "[]"
	if len(p.FileURIs) > 0 {
		b, err := json.Marshal(p.FileURIs)
		if err != nil {
			return model.OutboxEvent{}, fmt.Errorf("encoding file uris: %w", err)
		}
		fileURIs = string(b)
	}

	event, err := s.queries.CreateOutboxEvent(ctx, store.CreateOutboxEventParams{
		UID:       uuid.NewString(),
		EventType: p.EventType,
		OrgID:     p.OrgID,
		UserID:    sql.NullInt64{Int64: p.UserID, Valid: p.UserID != 0},
		EntityRef: sql.NullString{String: p.EntityRef, Valid: p.EntityRef != ""},
		Payload:   string(payload),
		FileURIs:  fileURIs,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		return model.OutboxEvent{}, fmt.Errorf("inserting outbox event: %w", err)
	}

	s.logger.Info("outbox event recorded",
		"uid", event.UID,
		"type", event.EventType,
		"org_id", event.OrgID)
	return event, nil
}

// attachDevice merges the device context into the payload under "_device"
// without disturbing the caller's keys.
func attachDevice(payload json.RawMessage, dc devicemeta.Context) (json.RawMessage, error) {
	if dc == (devicemeta.Context{}) {
		return payload, nil
	}

	var body map[string]any
	if err := json.Unmarshal(payload, &body); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	body["_device"] = dc

	merged, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encoding payload: %w", err)
	}
	return merged, nil
}

// Result summarizes one sync pass.
type Result struct {
	Scanned int `json:"scanned"`
	Synced  int `json:"synced"`
	Failed  int `json:"failed"`
}

// Sync replays up to one batch of pending and previously failed events for
// the org, oldest first. Each event succeeds or fails independently; a
// failure never blocks the events behind it, and failed rows stay queued
// for the next pass.
func (s *Service) Sync(ctx context.Context, orgID string) (Result, error) {
	events, err := s.queries.ListPendingOutboxEvents(ctx, orgID, s.batchSize)
	if err != nil {
		return Result{}, fmt.Errorf("listing pending events: %w", err)
	}

	res := Result{Scanned: len(events)}
	for i := range events {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		e := &events[i]

		if err := s.deliver(ctx, e); err != nil {
			res.Failed++
			if markErr := s.queries.MarkOutboxEventFailed(ctx, e.ID, err.Error(), time.Now()); markErr != nil {
				s.logger.Error("failed to mark outbox event failed",
					"error", markErr, "uid", e.UID)
			}
			s.logger.Warn("outbox delivery failed",
				"uid", e.UID,
				"type", e.EventType,
				"attempts", e.Attempts+1,
				"error", err)
			continue
		}

		res.Synced++
		if markErr := s.queries.MarkOutboxEventSynced(ctx, e.ID, time.Now()); markErr != nil {
			// The backend has the event; on a mark failure the row is
			// redelivered next pass, which the UID deduplicates.
			s.logger.Error("failed to mark outbox event synced",
				"error", markErr, "uid", e.UID)
		}
	}

	if res.Scanned > 0 {
		s.logger.Info("outbox sync pass finished",
			"org_id", orgID,
			"scanned", res.Scanned,
			"synced", res.Synced,
			"failed", res.Failed)
	}
	return res, nil
}

// deliveryBody is the wire format for one replayed event.
type deliveryBody struct {
	UID        string          `json:"uid"`
	Type       string          `json:"type"`
	EntityRef  string          `json:"entityRef,omitempty"`
	Payload    json.RawMessage `json:"payload"`
	FileURIs   json.RawMessage `json:"fileUris,omitempty"`
	CapturedAt time.Time       `json:"capturedAt"`
}

func (s *Service) deliver(ctx context.Context, e *model.OutboxEvent) error {
	path, ok := syncEndpoints[e.EventType]
	if !ok {
		path = genericSyncEndpoint
	}

	body := deliveryBody{
		UID:        e.UID,
		Type:       e.EventType,
		EntityRef:  e.EntityRef.String,
		Payload:    json.RawMessage(e.Payload),
		CapturedAt: e.CreatedAt.UTC(),
	}
	if e.FileURIs != "" && e.FileURIs != "[]" {
		body.FileURIs = json.RawMessage(e.FileURIs)
	}

	headers := map[string]string{"Idempotency-Key": e.UID}
	return s.client.PostJSON(ctx, e.OrgID, path, body, headers, nil)
}

// LastBiometricEnrollEvents returns the most recent biometric enrollments
// for the org, regardless of sync status. Kiosk devices poll this to show
// who enrolled on other devices while offline.
func (s *Service) LastBiometricEnrollEvents(ctx context.Context, orgID string, limit int64) ([]model.OutboxEvent, error) {
	if limit <= 0 {
		limit = 20
	}
	return s.queries.ListLastOutboxEventsByType(ctx, orgID, model.OutboxTypeBiometricEnroll, limit)
}

// Counts reports how many events sit in each status for the org.
func (s *Service) Counts(ctx context.Context, orgID string) (map[string]int64, error) {
	out := make(map[string]int64, 3)
	for _, status := range []string{model.OutboxStatusPending, model.OutboxStatusSynced, model.OutboxStatusFailed} {
		n, err := s.queries.CountOutboxEventsByStatus(ctx, orgID, status)
		if err != nil {
			return nil, err
		}
		out[status] = n
	}
	return out, nil
}

// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package service holds business-level helpers above the store layer,
// currently the audit event log.
package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/olegiv/fieldops-go/internal/model"
	"github.com/olegiv/fieldops-go/internal/store"
)

// EventService writes audit entries to the event log.
type EventService struct {
	queries *store.Queries
}

func NewEventService(db *sql.DB) *EventService {
	return &EventService{queries: store.New(db)}
}

// LogEvent creates an event log entry. A nil userID and empty orgID are
// stored as NULL.
func (s *EventService) LogEvent(ctx context.Context, level, category, message, orgID string, userID *int64, metadata map[string]any) error {
	var nullUserID sql.NullInt64
	if userID != nil {
		nullUserID = sql.NullInt64{Int64: *userID, Valid: true}
	}

	metadataJSON := "{}"
	if metadata != nil {
		if b, err := json.Marshal(metadata); err == nil {
			metadataJSON = string(b)
		}
	}

	_, err := s.queries.CreateEvent(ctx, store.CreateEventParams{
		Level:     level,
		Category:  category,
		Message:   message,
		OrgID:     sql.NullString{String: orgID, Valid: orgID != ""},
		UserID:    nullUserID,
		Metadata:  metadataJSON,
		CreatedAt: time.Now(),
	})
	if err != nil {
		slog.Error("failed to log event", "error", err, "category", category)
	}
	return err
}

// LogInfo logs an info-level event.
func (s *EventService) LogInfo(ctx context.Context, category, message, orgID string, userID *int64, metadata map[string]any) error {
	return s.LogEvent(ctx, model.EventLevelInfo, category, message, orgID, userID, metadata)
}

// LogWarning logs a warning-level event.
func (s *EventService) LogWarning(ctx context.Context, category, message, orgID string, userID *int64, metadata map[string]any) error {
	return s.LogEvent(ctx, model.EventLevelWarning, category, message, orgID, userID, metadata)
}

// LogError logs an error-level event.
func (s *EventService) LogError(ctx context.Context, category, message, orgID string, userID *int64, metadata map[string]any) error {
	return s.LogEvent(ctx, model.EventLevelError, category, message, orgID, userID, metadata)
}

// LogAuthEvent logs an authentication event.
func (s *EventService) LogAuthEvent(ctx context.Context, level, message, orgID string, metadata map[string]any) error {
	return s.LogEvent(ctx, level, model.EventCategoryAuth, message, orgID, nil, metadata)
}

// LogOutboxEvent logs an outbox lifecycle event.
func (s *EventService) LogOutboxEvent(ctx context.Context, level, message, orgID string, metadata map[string]any) error {
	return s.LogEvent(ctx, level, model.EventCategoryOutbox, message, orgID, nil, metadata)
}

// LogGeofenceEvent logs a geofence import/export event.
func (s *EventService) LogGeofenceEvent(ctx context.Context, level, message, orgID string, metadata map[string]any) error {
	return s.LogEvent(ctx, level, model.EventCategoryGeofence, message, orgID, nil, metadata)
}

// LogSyncEvent logs an upstream sync event.
func (s *EventService) LogSyncEvent(ctx context.Context, level, message, orgID string, metadata map[string]any) error {
	return s.LogEvent(ctx, level, model.EventCategorySync, message, orgID, nil, metadata)
}

// DeleteOldEvents purges events older than the retention window.
func (s *EventService) DeleteOldEvents(ctx context.Context, olderThan time.Duration) error {
	return s.queries.DeleteOldEvents(ctx, time.Now().Add(-olderThan))
}

// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package service

import (
	"context"
	"testing"
	"time"

	"github.com/olegiv/fieldops-go/internal/model"
	"github.com/olegiv/fieldops-go/internal/store"
	"github.com/olegiv/fieldops-go/internal/testutil"
)

func newEventService(t *testing.T) (*EventService, *store.Queries) {
	t.Helper()
	db, cleanup := testutil.TestDB(t)
	t.Cleanup(cleanup)
	return NewEventService(db), store.New(db)
}

func TestLogEvent(t *testing.T) {
	svc, queries := newEventService(t)
	ctx := context.Background()

	userID := int64(4)
	err := svc.LogEvent(ctx, model.EventLevelInfo, model.EventCategoryOutbox,
		"event enqueued", "org-1", &userID, map[string]any{"uid": "u-1"})
	if err != nil {
		t.Fatalf("LogEvent() error = %v", err)
	}

	events, err := queries.ListEvents(ctx, "", "", 10, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 {
		t.Fatalf("events = %d, want 1", len(events))
	}
	e := events[0]
	if e.Category != model.EventCategoryOutbox || e.Message != "event enqueued" {
		t.Errorf("event = %+v", e)
	}
	if !e.OrgID.Valid || e.OrgID.String != "org-1" {
		t.Errorf("OrgID = %+v", e.OrgID)
	}
	if !e.UserID.Valid || e.UserID.Int64 != 4 {
		t.Errorf("UserID = %+v", e.UserID)
	}
}

func TestLogLevelHelpers(t *testing.T) {
	svc, queries := newEventService(t)
	ctx := context.Background()

	_ = svc.LogInfo(ctx, model.EventCategorySync, "pass ok", "org-1", nil, nil)
	_ = svc.LogWarning(ctx, model.EventCategorySync, "pass slow", "org-1", nil, nil)
	_ = svc.LogError(ctx, model.EventCategorySync, "pass failed", "org-1", nil, nil)

	for _, level := range []string{model.EventLevelInfo, model.EventLevelWarning, model.EventLevelError} {
		n, err := queries.CountEvents(ctx, level, "")
		if err != nil {
			t.Fatal(err)
		}
		if n != 1 {
			t.Errorf("count(%s) = %d, want 1", level, n)
		}
	}
}

func TestDeleteOldEvents(t *testing.T) {
	svc, queries := newEventService(t)
	ctx := context.Background()

	// One stale row and one fresh row.
	_, err := queries.CreateEvent(ctx, store.CreateEventParams{
		Level:     model.EventLevelInfo,
		Category:  model.EventCategorySystem,
		Message:   "old",
		Metadata:  "{}",
		CreatedAt: time.Now().Add(-48 * time.Hour),
	})
	if err != nil {
		t.Fatal(err)
	}
	_ = svc.LogInfo(ctx, model.EventCategorySystem, "fresh", "", nil, nil)

	if err := svc.DeleteOldEvents(ctx, 24*time.Hour); err != nil {
		t.Fatalf("DeleteOldEvents() error = %v", err)
	}

	events, err := queries.ListEvents(ctx, "", "", 10, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 || events[0].Message != "fresh" {
		t.Errorf("events after purge = %+v", events)
	}
}

// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package store_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/olegiv/fieldops-go/internal/model"
	"github.com/olegiv/fieldops-go/internal/store"
	"github.com/olegiv/fieldops-go/internal/testutil"
)

func TestOutboxInsertAndListPending(t *testing.T) {
	db, cleanup := testutil.TestDB(t)
	defer cleanup()
	queries := store.New(db)
	ctx := context.Background()

	now := time.Now().UTC()
	created, err := queries.CreateOutboxEvent(ctx, store.CreateOutboxEventParams{
		UID:       "uid-1",
		EventType: model.OutboxTypeBiometricEnroll,
		OrgID:     "org-1",
		UserID:    sql.NullInt64{Int64: 7, Valid: true},
		EntityRef: sql.NullString{String: "worker-42", Valid: true},
		Payload:   `{"template":"abc"}`,
		FileURIs:  `["file:///tmp/a.jpg"]`,
		CreatedAt: now,
	})
	if err != nil {
		t.Fatalf("CreateOutboxEvent: %v", err)
	}
	if created.SyncStatus != model.OutboxStatusPending {
		t.Errorf("SyncStatus = %q, want pending", created.SyncStatus)
	}

	pending, err := queries.ListPendingOutboxEvents(ctx, "org-1", 10)
	if err != nil {
		t.Fatalf("ListPendingOutboxEvents: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("pending rows = %d, want 1", len(pending))
	}
	got := pending[0]
	if got.ID != created.ID || got.UID != "uid-1" || got.EventType != model.OutboxTypeBiometricEnroll {
		t.Errorf("unexpected row: %+v", got)
	}
	if got.Payload != `{"template":"abc"}` {
		t.Errorf("Payload = %q", got.Payload)
	}
}

func TestOutboxFIFOOrderAndOrgScoping(t *testing.T) {
	db, cleanup := testutil.TestDB(t)
	defer cleanup()
	queries := store.New(db)
	ctx := context.Background()

	base := time.Now().UTC()
	for i, uid := range []string{"a", "b", "c"} {
		_, err := queries.CreateOutboxEvent(ctx, store.CreateOutboxEventParams{
			UID:       uid,
			EventType: model.OutboxTypeAssetLog,
			OrgID:     "org-1",
			Payload:   "{}",
			FileURIs:  "[]",
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		})
		if err != nil {
			t.Fatalf("CreateOutboxEvent %q: %v", uid, err)
		}
	}
	// Row for another org must never leak into the listing.
	if _, err := queries.CreateOutboxEvent(ctx, store.CreateOutboxEventParams{
		UID: "other", EventType: model.OutboxTypeAssetLog, OrgID: "org-2",
		Payload: "{}", FileURIs: "[]", CreatedAt: base,
	}); err != nil {
		t.Fatalf("CreateOutboxEvent other org: %v", err)
	}

	pending, err := queries.ListPendingOutboxEvents(ctx, "org-1", 10)
	if err != nil {
		t.Fatalf("ListPendingOutboxEvents: %v", err)
	}
	if len(pending) != 3 {
		t.Fatalf("pending rows = %d, want 3", len(pending))
	}
	for i, want := range []string{"a", "b", "c"} {
		if pending[i].UID != want {
			t.Errorf("pending[%d].UID = %q, want %q", i, pending[i].UID, want)
		}
	}
}

func TestOutboxStatusTransitions(t *testing.T) {
	db, cleanup := testutil.TestDB(t)
	defer cleanup()
	queries := store.New(db)
	ctx := context.Background()

	e, err := queries.CreateOutboxEvent(ctx, store.CreateOutboxEventParams{
		UID: "uid-1", EventType: model.OutboxTypeAssetCreate, OrgID: "org-1",
		Payload: "{}", FileURIs: "[]", CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("CreateOutboxEvent: %v", err)
	}

	if err := queries.MarkOutboxEventFailed(ctx, e.ID, "HTTP 500", time.Now().UTC()); err != nil {
		t.Fatalf("MarkOutboxEventFailed: %v", err)
	}
	got, err := queries.GetOutboxEvent(ctx, e.ID)
	if err != nil {
		t.Fatalf("GetOutboxEvent: %v", err)
	}
	if got.SyncStatus != model.OutboxStatusFailed {
		t.Errorf("SyncStatus = %q, want failed", got.SyncStatus)
	}
	if got.Attempts != 1 {
		t.Errorf("Attempts = %d, want 1", got.Attempts)
	}
	if !got.LastError.Valid || got.LastError.String != "HTTP 500" {
		t.Errorf("LastError = %+v", got.LastError)
	}

	// Failed rows still show up for retry.
	pending, err := queries.ListPendingOutboxEvents(ctx, "org-1", 10)
	if err != nil {
		t.Fatalf("ListPendingOutboxEvents: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("retryable rows = %d, want 1", len(pending))
	}

	if err := queries.MarkOutboxEventSynced(ctx, e.ID, time.Now().UTC()); err != nil {
		t.Fatalf("MarkOutboxEventSynced: %v", err)
	}
	got, err = queries.GetOutboxEvent(ctx, e.ID)
	if err != nil {
		t.Fatalf("GetOutboxEvent: %v", err)
	}
	if got.SyncStatus != model.OutboxStatusSynced {
		t.Errorf("SyncStatus = %q, want synced", got.SyncStatus)
	}
	if got.Attempts != 2 {
		t.Errorf("Attempts = %d, want 2", got.Attempts)
	}
	if got.LastError.Valid {
		t.Errorf("LastError should be cleared, got %+v", got.LastError)
	}

	// Synced rows leave the retry queue.
	pending, err = queries.ListPendingOutboxEvents(ctx, "org-1", 10)
	if err != nil {
		t.Fatalf("ListPendingOutboxEvents: %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("retryable rows = %d, want 0", len(pending))
	}
}

func TestListLastOutboxEventsByType(t *testing.T) {
	db, cleanup := testutil.TestDB(t)
	defer cleanup()
	queries := store.New(db)
	ctx := context.Background()

	base := time.Now().UTC()
	for i := 0; i < 5; i++ {
		eventType := model.OutboxTypeBiometricEnroll
		if i%2 == 1 {
			eventType = model.OutboxTypeAssetLog
		}
		if _, err := queries.CreateOutboxEvent(ctx, store.CreateOutboxEventParams{
			UID: string(rune('a' + i)), EventType: eventType, OrgID: "org-1",
			Payload: "{}", FileURIs: "[]",
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		}); err != nil {
			t.Fatalf("CreateOutboxEvent: %v", err)
		}
	}

	events, err := queries.ListLastOutboxEventsByType(ctx, "org-1", model.OutboxTypeBiometricEnroll, 2)
	if err != nil {
		t.Fatalf("ListLastOutboxEventsByType: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("events = %d, want 2", len(events))
	}
	// Newest first.
	if events[0].UID != "e" || events[1].UID != "c" {
		t.Errorf("order = %q, %q; want e, c", events[0].UID, events[1].UID)
	}
}

func TestAPIKeyLookup(t *testing.T) {
	db, cleanup := testutil.TestDB(t)
	defer cleanup()
	queries := store.New(db)
	ctx := context.Background()

	rawKey, prefix, err := model.GenerateAPIKey()
	if err != nil {
		t.Fatalf("GenerateAPIKey: %v", err)
	}

	created, err := queries.CreateAPIKey(ctx, store.CreateAPIKeyParams{
		Name:        "mobile",
		OrgID:       "org-1",
		KeyHash:     model.HashAPIKey(rawKey),
		KeyPrefix:   prefix,
		Permissions: model.PermissionsToJSON([]string{model.PermissionOutboxWrite}),
		CreatedAt:   time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("CreateAPIKey: %v", err)
	}
	if !created.IsActive {
		t.Error("new key must be active")
	}

	got, err := queries.GetAPIKeyByHash(ctx, model.HashAPIKey(rawKey))
	if err != nil {
		t.Fatalf("GetAPIKeyByHash: %v", err)
	}
	if got.ID != created.ID || got.OrgID != "org-1" {
		t.Errorf("unexpected key: %+v", got)
	}
	if !got.HasPermission(model.PermissionOutboxWrite) {
		t.Error("missing granted permission")
	}
	if got.HasPermission(model.PermissionFencesWrite) {
		t.Error("unexpected permission")
	}

	if _, err := queries.GetAPIKeyByHash(ctx, model.HashAPIKey("wrong")); err != sql.ErrNoRows {
		t.Errorf("err = %v, want sql.ErrNoRows", err)
	}
}

func TestEventLog(t *testing.T) {
	db, cleanup := testutil.TestDB(t)
	defer cleanup()
	queries := store.New(db)
	ctx := context.Background()

	for _, level := range []string{model.EventLevelInfo, model.EventLevelError} {
		if _, err := queries.CreateEvent(ctx, store.CreateEventParams{
			Level:     level,
			Category:  model.EventCategoryOutbox,
			Message:   "sync batch finished",
			Metadata:  "{}",
			CreatedAt: time.Now().UTC(),
		}); err != nil {
			t.Fatalf("CreateEvent: %v", err)
		}
	}

	all, err := queries.ListEvents(ctx, "", "", 10, 0)
	if err != nil {
		t.Fatalf("ListEvents: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("events = %d, want 2", len(all))
	}

	errorsOnly, err := queries.ListEvents(ctx, model.EventLevelError, "", 10, 0)
	if err != nil {
		t.Fatalf("ListEvents filtered: %v", err)
	}
	if len(errorsOnly) != 1 {
		t.Errorf("error events = %d, want 1", len(errorsOnly))
	}

	n, err := queries.CountEvents(ctx, "", model.EventCategoryOutbox)
	if err != nil {
		t.Fatalf("CountEvents: %v", err)
	}
	if n != 2 {
		t.Errorf("count = %d, want 2", n)
	}
}

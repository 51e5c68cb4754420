// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package scheduler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/olegiv/fieldops-go/internal/backend"
	"github.com/olegiv/fieldops-go/internal/cache"
	"github.com/olegiv/fieldops-go/internal/model"
	"github.com/olegiv/fieldops-go/internal/outbox"
	"github.com/olegiv/fieldops-go/internal/snapshot"
	"github.com/olegiv/fieldops-go/internal/store"
	"github.com/olegiv/fieldops-go/internal/testutil"
)

func testScheduler(t *testing.T, upstream http.Handler) (*Scheduler, *store.Queries) {
	t.Helper()

	db, cleanup := testutil.TestDB(t)
	t.Cleanup(cleanup)

	server := httptest.NewServer(upstream)
	t.Cleanup(server.Close)

	logger := testutil.TestLogger()
	client := backend.New(server.URL, "test-token", 5*time.Second, logger)
	queries := store.New(db)

	snapCache := cache.NewMemoryCache(cache.MemoryCacheOptions{DefaultTTL: time.Minute})
	t.Cleanup(func() { _ = snapCache.Close() })

	s := New(db,
		outbox.NewService(queries, client, 50, logger),
		snapshot.NewStore(snapCache, client, time.Minute, logger),
		nil,
		Config{SyncSchedule: "* * * * *", SnapshotSchedule: "*/5 * * * *"},
		logger)
	return s, queries
}

func acceptAll() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte(`{"status":"accepted"}`))
	})
}

func TestRunOutboxSync(t *testing.T) {
	s, queries := testScheduler(t, acceptAll())
	ctx := context.Background()

	for _, org := range []string{"org-1", "org-1", "org-2"} {
		_, err := s.outbox.Insert(ctx, outbox.InsertParams{
			EventType: model.OutboxTypeClocking,
			OrgID:     org,
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	s.runOutboxSync()

	for _, org := range []string{"org-1", "org-2"} {
		pending, err := queries.CountOutboxEventsByStatus(ctx, org, model.OutboxStatusPending)
		if err != nil {
			t.Fatal(err)
		}
		if pending != 0 {
			t.Errorf("org %s: %d events still pending after sync", org, pending)
		}
	}

	orgs, err := queries.ListOutboxOrgs(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(orgs) != 0 {
		t.Errorf("orgs with queued events = %v, want none", orgs)
	}
}

func TestRunOutboxSync_NothingQueued(t *testing.T) {
	s, _ := testScheduler(t, acceptAll())
	s.runOutboxSync() // must not panic or log errors on an empty queue
}

func TestRunEventPurge(t *testing.T) {
	s, queries := testScheduler(t, acceptAll())
	ctx := context.Background()

	old := time.Now().Add(-EventRetention - time.Hour)
	for _, createdAt := range []time.Time{old, time.Now()} {
		_, err := queries.CreateEvent(ctx, store.CreateEventParams{
			Level:     model.EventLevelInfo,
			Category:  model.EventCategorySystem,
			Message:   "tick",
			Metadata:  "{}",
			CreatedAt: createdAt,
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	s.runEventPurge()

	n, err := queries.CountEvents(ctx, "", "")
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("events after purge = %d, want 1", n)
	}
}

func TestStart_InvalidSchedule(t *testing.T) {
	s, _ := testScheduler(t, acceptAll())
	s.cfg.SyncSchedule = "not a cron spec"

	if err := s.Start(); err == nil {
		s.Stop()
		t.Fatal("Start accepted an invalid schedule")
	}
}

func TestStartStop(t *testing.T) {
	s, _ := testScheduler(t, acceptAll())

	if err := s.Start(); err != nil {
		t.Fatal(err)
	}
	if got := len(s.cron.Entries()); got != 3 {
		t.Errorf("registered jobs = %d, want 3 (geoip disabled)", got)
	}
	s.Stop()
}

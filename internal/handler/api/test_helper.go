// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	_ "modernc.org/sqlite"

	"github.com/olegiv/fieldops-go/internal/backend"
	"github.com/olegiv/fieldops-go/internal/cache"
	"github.com/olegiv/fieldops-go/internal/geofence"
	"github.com/olegiv/fieldops-go/internal/middleware"
	"github.com/olegiv/fieldops-go/internal/outbox"
	"github.com/olegiv/fieldops-go/internal/overview"
	"github.com/olegiv/fieldops-go/internal/snapshot"
	"github.com/olegiv/fieldops-go/internal/store"
)

// testDB creates an in-memory SQLite database with the service schema.
func testDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	schema := `
		CREATE TABLE offline_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			uid TEXT NOT NULL UNIQUE,
			event_type TEXT NOT NULL,
			org_id TEXT NOT NULL,
			user_id INTEGER,
			entity_ref TEXT,
			payload TEXT NOT NULL DEFAULT '{}',
			file_uris TEXT NOT NULL DEFAULT '[]',
			sync_status TEXT NOT NULL DEFAULT 'pending',
			attempts INTEGER NOT NULL DEFAULT 0,
			last_error TEXT,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX idx_offline_events_status_created ON offline_events(sync_status, created_at);

		CREATE TABLE events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			level TEXT NOT NULL,
			category TEXT NOT NULL,
			message TEXT NOT NULL,
			org_id TEXT,
			user_id INTEGER,
			metadata TEXT NOT NULL DEFAULT '{}',
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);

		CREATE TABLE api_keys (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			org_id TEXT NOT NULL,
			key_hash TEXT NOT NULL UNIQUE,
			key_prefix TEXT NOT NULL,
			permissions TEXT NOT NULL DEFAULT '[]',
			last_used_at DATETIME,
			expires_at DATETIME,
			is_active BOOLEAN NOT NULL DEFAULT 1,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
	`

	if _, err := db.Exec(schema); err != nil {
		t.Fatalf("failed to create test schema: %v", err)
	}

	t.Cleanup(func() {
		_ = db.Close()
	})

	return db
}

// upstream is a scripted stand-in for the main REST backend.
type upstream struct {
	mu sync.Mutex
	// responses maps request paths to JSON payloads served on GET.
	responses map[string]string
	// statuses overrides the HTTP status per path (default 200).
	statuses map[string]int
	// syncBodies records every body POSTed to /sync/ endpoints.
	syncBodies []map[string]any
}

func (u *upstream) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u.mu.Lock()
		defer u.mu.Unlock()

		if r.Method == http.MethodPost && strings.HasPrefix(r.URL.Path, "/sync/") {
			body, _ := io.ReadAll(r.Body)
			var decoded map[string]any
			_ = json.Unmarshal(body, &decoded)
			u.syncBodies = append(u.syncBodies, decoded)
			w.WriteHeader(http.StatusAccepted)
			_, _ = w.Write([]byte(`{"status":"accepted"}`))
			return
		}

		if status, ok := u.statuses[r.URL.Path]; ok && status != http.StatusOK {
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"error":"scripted failure"}`))
			return
		}
		if payload, ok := u.responses[r.URL.Path]; ok {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(payload))
			return
		}
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"not found"}`))
	})
}

func (u *upstream) syncCount() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.syncBodies)
}

// testSetup wires a Handler against an in-memory database and a scripted
// upstream server.
func testSetup(t *testing.T) (*Handler, *upstream, *sql.DB) {
	t.Helper()

	db := testDB(t)

	up := &upstream{
		responses: make(map[string]string),
		statuses:  make(map[string]int),
	}
	server := httptest.NewServer(up.handler())
	t.Cleanup(server.Close)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	client := backend.New(server.URL, "test-token", 5*time.Second, logger)
	queries := store.New(db)

	snapCache := cache.NewMemoryCache(cache.MemoryCacheOptions{
		DefaultTTL: time.Minute,
		MaxSize:    100,
	})
	t.Cleanup(func() {
		_ = snapCache.Close()
	})

	h := NewHandler(HandlerConfig{
		DB:        db,
		Backend:   client,
		Outbox:    outbox.NewService(queries, client, 50, logger),
		Overview:  overview.NewService(client, logger),
		Snapshots: snapshot.NewStore(snapCache, client, time.Minute, logger),
		FenceOpts: geofence.Options{PointsAsCircles: true, PointRadius: 25},
		Logger:    logger,
	})
	return h, up, db
}

// requestWithOrg stamps an org ID into the request context the way the auth
// middleware does.
func requestWithOrg(r *http.Request, orgID string) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), middleware.ContextKeyOrgID, orgID))
}

// requestWithURLParams adds chi URL parameters to a request.
func requestWithURLParams(r *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for key, value := range params {
		rctx.URLParams.Add(key, value)
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// newJSONRequest creates an HTTP request with a JSON body and optional chi
// URL params.
func newJSONRequest(t *testing.T, method, path, body string, params map[string]string) *http.Request {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if len(params) > 0 {
		req = requestWithURLParams(req, params)
	}
	return req
}

// decodeResponse unmarshals the recorder body into out and fails the test on
// malformed JSON.
func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder, out any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
		t.Fatalf("failed to decode response %q: %v", rec.Body.String(), err)
	}
}

// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/olegiv/fieldops-go/internal/model"
	"github.com/olegiv/fieldops-go/internal/store"
)

func seedEvent(t *testing.T, h *Handler, level, category, message string) {
	t.Helper()
	_, err := h.queries.CreateEvent(context.Background(), store.CreateEventParams{
		Level:     level,
		Category:  category,
		Message:   message,
		Metadata:  "{}",
		CreatedAt: time.Now(),
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestListEvents(t *testing.T) {
	h, _, _ := testSetup(t)

	seedEvent(t, h, model.EventLevelError, model.EventCategorySync, "upstream timeout")
	seedEvent(t, h, model.EventLevelWarning, model.EventCategoryGeofence, "3 records skipped")
	seedEvent(t, h, model.EventLevelError, model.EventCategoryAuth, "expired key used")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/events", nil)
	rec := httptest.NewRecorder()
	h.ListEvents(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Data []EventResponse `json:"data"`
		Meta *Meta           `json:"meta"`
	}
	decodeResponse(t, rec, &resp)

	if len(resp.Data) != 3 {
		t.Fatalf("got %d events, want 3", len(resp.Data))
	}
	if resp.Meta == nil || resp.Meta.Total != 3 {
		t.Errorf("meta = %+v, want total 3", resp.Meta)
	}
}

func TestListEvents_Filtered(t *testing.T) {
	h, _, _ := testSetup(t)

	seedEvent(t, h, model.EventLevelError, model.EventCategorySync, "upstream timeout")
	seedEvent(t, h, model.EventLevelWarning, model.EventCategoryGeofence, "3 records skipped")
	seedEvent(t, h, model.EventLevelError, model.EventCategoryAuth, "expired key used")

	tests := []struct {
		name  string
		query string
		want  int
	}{
		{"by level", "?level=error", 2},
		{"by category", "?category=geofence", 1},
		{"by both", "?level=error&category=auth", 1},
		{"no match", "?level=info", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/events"+tt.query, nil)
			rec := httptest.NewRecorder()
			h.ListEvents(rec, req)

			var resp struct {
				Data []EventResponse `json:"data"`
			}
			decodeResponse(t, rec, &resp)
			if len(resp.Data) != tt.want {
				t.Errorf("got %d events, want %d", len(resp.Data), tt.want)
			}
		})
	}
}

func TestListEvents_Pagination(t *testing.T) {
	h, _, _ := testSetup(t)

	for range 5 {
		seedEvent(t, h, model.EventLevelInfo, model.EventCategorySystem, "tick")
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/events?page=2&per_page=2", nil)
	rec := httptest.NewRecorder()
	h.ListEvents(rec, req)

	var resp struct {
		Data []EventResponse `json:"data"`
		Meta *Meta           `json:"meta"`
	}
	decodeResponse(t, rec, &resp)

	if len(resp.Data) != 2 {
		t.Errorf("got %d events, want 2", len(resp.Data))
	}
	if resp.Meta == nil || resp.Meta.Pages != 3 {
		t.Errorf("meta = %+v, want 3 pages", resp.Meta)
	}
}

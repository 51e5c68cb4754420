// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package backend

import (
	"encoding/json"
	"testing"
	"time"
)

func record(t *testing.T, raw string) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		t.Fatalf("bad fixture: %v", err)
	}
	return m
}

func TestTaskFromRecord_FieldFallbacks(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want Task
	}{
		{
			name: "modern shape",
			raw:  `{"id":"t-1","name":"Pour slab","status":"Active","projectId":"p-1","updatedAt":"2026-01-10T08:00:00Z"}`,
			want: Task{ID: "t-1", Name: "Pour slab", Status: "active", ProjectID: "p-1",
				UpdatedAt: time.Date(2026, 1, 10, 8, 0, 0, 0, time.UTC)},
		},
		{
			name: "legacy shape",
			raw:  `{"_id":"t-2","title":"Survey","state":"DONE","project_id":"p-1","modifiedAt":"2025-12-01"}`,
			want: Task{ID: "t-2", Name: "Survey", Status: "done", ProjectID: "p-1",
				UpdatedAt: time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC)},
		},
		{
			name: "numeric id",
			raw:  `{"id":42,"taskName":"Fence check"}`,
			want: Task{ID: "42", Name: "Fence check"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := TaskFromRecord(record(t, tt.raw))
			if got != tt.want {
				t.Errorf("TaskFromRecord() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestProjectFromRecord_CommentShapes(t *testing.T) {
	tests := []struct {
		name      string
		raw       string
		wantCount int
		wantBody  string
	}{
		{
			name:      "object comments",
			raw:       `{"id":"p-1","name":"Mall","comments":[{"text":"on track","author":"ana","createdAt":"2026-02-01T10:00:00Z"}]}`,
			wantCount: 1,
			wantBody:  "on track",
		},
		{
			name:      "string list under notes",
			raw:       `{"id":"p-2","name":"Depot","notes":["waiting on permits","crane booked"]}`,
			wantCount: 2,
			wantBody:  "crane booked",
		},
		{
			name:      "managerComments wins over notes",
			raw:       `{"id":"p-3","name":"Yard","managerComments":[{"body":"priority"}],"notes":["old note"]}`,
			wantCount: 1,
			wantBody:  "priority",
		},
		{
			name:      "no comments",
			raw:       `{"id":"p-4","name":"Quarry"}`,
			wantCount: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := ProjectFromRecord(record(t, tt.raw))
			if len(p.Comments) != tt.wantCount {
				t.Fatalf("comments = %d, want %d", len(p.Comments), tt.wantCount)
			}
			if tt.wantCount == 0 {
				if _, ok := p.LatestComment(); ok {
					t.Error("LatestComment() should report no comment")
				}
				return
			}
			latest, ok := p.LatestComment()
			if !ok {
				t.Fatal("LatestComment() reported no comment")
			}
			if latest.Body != tt.wantBody {
				t.Errorf("latest comment = %q, want %q", latest.Body, tt.wantBody)
			}
		})
	}
}

func TestLatestComment_ByTimestamp(t *testing.T) {
	p := ProjectFromRecord(record(t, `{"id":"p-1","comments":[
		{"text":"newest","createdAt":"2026-03-01T00:00:00Z"},
		{"text":"oldest","createdAt":"2026-01-01T00:00:00Z"}
	]}`))
	latest, ok := p.LatestComment()
	if !ok || latest.Body != "newest" {
		t.Errorf("LatestComment() = %+v, want newest", latest)
	}
}

func TestInvoiceFromRecord_Outstanding(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want float64
	}{
		{"explicit outstanding", `{"id":"i-1","total":100,"paid":20,"outstanding":55}`, 55},
		{"balance alias", `{"id":"i-2","total":100,"balance":40}`, 40},
		{"derived from total minus paid", `{"id":"i-3","total":100,"paid":30}`, 70},
		{"never negative", `{"id":"i-4","total":50,"paid":80}`, 0},
		{"string amounts", `{"id":"i-5","total":"120.50","paid":"20.50"}`, 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inv := InvoiceFromRecord(record(t, tt.raw))
			if inv.Outstanding != tt.want {
				t.Errorf("Outstanding = %v, want %v", inv.Outstanding, tt.want)
			}
		})
	}
}

func TestInspectionFromRecord_UnixMillis(t *testing.T) {
	ins := InspectionFromRecord(record(t, `{"submissionId":"s-1","vehicleName":"Truck 4","score":87.5,"date":1767225600000}`))
	if ins.ID != "s-1" || ins.TargetName != "Truck 4" || ins.Score != 87.5 {
		t.Errorf("InspectionFromRecord() = %+v", ins)
	}
	if ins.SubmittedAt.Year() != 2026 {
		t.Errorf("SubmittedAt = %v, want a 2026 date", ins.SubmittedAt)
	}
}

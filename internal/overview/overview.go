// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package overview assembles the project overview from independent backend
// collections fetched in parallel. Unavailable sources degrade to empty
// sections; the overview itself always renders.
package overview

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/olegiv/fieldops-go/internal/backend"
)

// Fetcher is the slice of the backend client the aggregator needs.
type Fetcher interface {
	FetchList(ctx context.Context, orgID, listType string) ([]map[string]any, error)
	FetchOrgBilling(ctx context.Context, orgID string) (backend.OrgBilling, error)
}

// sources lists the collections fetched per overview, in report order.
var sources = []string{
	"projects", "tasks", "vehicles", "assets", "inspections",
	"invoices", "clockings", "groups", "users", "definitions",
}

// Service builds overviews.
type Service struct {
	backend Fetcher
	logger  *slog.Logger
}

func NewService(fetcher Fetcher, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{backend: fetcher, logger: logger}
}

// TaskBuckets counts tasks by normalized status.
type TaskBuckets struct {
	Open       int `json:"open"`
	InProgress int `json:"in_progress"`
	Done       int `json:"done"`
	Overdue    int `json:"overdue"`
	Other      int `json:"other"`
}

// CommentView is the latest manager comment on a project.
type CommentView struct {
	Author string    `json:"author,omitempty"`
	Body   string    `json:"body"`
	At     time.Time `json:"at,omitempty"`
}

// ProjectSummary is one overview row per project.
type ProjectSummary struct {
	ID            string       `json:"id"`
	Name          string       `json:"name"`
	Status        string       `json:"status"`
	LatestComment *CommentView `json:"latest_comment,omitempty"`
}

// InspectionStatus reports the last inspection seen for a vehicle or asset.
type InspectionStatus struct {
	TargetID      string    `json:"target_id"`
	TargetName    string    `json:"target_name"`
	Inspected     bool      `json:"inspected"`
	LastScore     float64   `json:"last_score,omitempty"`
	LastInspected time.Time `json:"last_inspected,omitempty"`
}

// BillingSummary totals the org's invoices.
type BillingSummary struct {
	InvoiceCount     int     `json:"invoice_count"`
	TotalBilled      float64 `json:"total_billed"`
	TotalPaid        float64 `json:"total_paid"`
	TotalOutstanding float64 `json:"total_outstanding"`
}

// Headcount is the workforce shape for the org.
type Headcount struct {
	Users  int `json:"users"`
	Groups int `json:"groups"`
}

// Overview is the assembled view model.
type Overview struct {
	GeneratedAt        time.Time          `json:"generated_at"`
	SourcesUnavailable int                `json:"sources_unavailable"`
	UnavailableSources []string           `json:"unavailable_sources,omitempty"`
	Tasks              TaskBuckets        `json:"tasks"`
	Projects           []ProjectSummary   `json:"projects"`
	VehicleInspections []InspectionStatus `json:"vehicle_inspections"`
	AssetInspections   []InspectionStatus `json:"asset_inspections"`
	Billing            BillingSummary     `json:"billing"`
	Headcount          Headcount          `json:"headcount"`
	ClockingsRecorded  int                `json:"clockings_recorded"`
}

// Build fetches every source in parallel and assembles the overview. A
// failed source leaves its section empty and is reported, never fatal.
func (s *Service) Build(ctx context.Context, orgID string) Overview {
	type settled struct {
		records []map[string]any
		err     error
	}
	results := make([]settled, len(sources))

	var wg sync.WaitGroup
	for i, name := range sources {
		wg.Add(1)
		go func(i int, name string) {
			defer wg.Done()
			records, err := s.backend.FetchList(ctx, orgID, name)
			results[i] = settled{records: records, err: err}
		}(i, name)
	}

	var rollup backend.OrgBilling
	var rollupErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		rollup, rollupErr = s.backend.FetchOrgBilling(ctx, orgID)
	}()
	wg.Wait()

	ov := Overview{GeneratedAt: time.Now().UTC()}
	byName := make(map[string][]map[string]any, len(sources))
	for i, name := range sources {
		if results[i].err != nil {
			ov.SourcesUnavailable++
			ov.UnavailableSources = append(ov.UnavailableSources, name)
			s.logger.Warn("overview source unavailable",
				"source", name, "org_id", orgID, "error", results[i].err)
			continue
		}
		byName[name] = results[i].records
	}

	ov.Tasks = bucketTasks(byName["tasks"])
	ov.Projects = summarizeProjects(byName["projects"])

	inspections := make([]backend.Inspection, 0, len(byName["inspections"]))
	for _, rec := range byName["inspections"] {
		inspections = append(inspections, backend.InspectionFromRecord(rec))
	}
	ov.VehicleInspections = joinVehicleInspections(byName["vehicles"], inspections)
	ov.AssetInspections = joinAssetInspections(byName["assets"], inspections)

	// The backend's own rollup is authoritative; invoice totals stand in
	// for deployments that do not serve /org/billing.
	if rollupErr == nil {
		ov.Billing = BillingSummary{
			InvoiceCount:     rollup.InvoiceCount,
			TotalBilled:      rollup.TotalBilled,
			TotalPaid:        rollup.TotalPaid,
			TotalOutstanding: rollup.TotalOutstanding,
		}
	} else {
		ov.Billing = totalInvoices(byName["invoices"])
	}
	ov.Headcount = Headcount{
		Users:  len(byName["users"]),
		Groups: len(byName["groups"]),
	}
	ov.ClockingsRecorded = len(byName["clockings"])

	return ov
}

func bucketTasks(records []map[string]any) TaskBuckets {
	var b TaskBuckets
	for _, rec := range records {
		switch backend.TaskFromRecord(rec).Status {
		case "open", "pending", "todo", "new":
			b.Open++
		case "in-progress", "in_progress", "active", "started":
			b.InProgress++
		case "done", "completed", "complete", "closed":
			b.Done++
		case "overdue", "late":
			b.Overdue++
		default:
			b.Other++
		}
	}
	return b
}

func summarizeProjects(records []map[string]any) []ProjectSummary {
	out := make([]ProjectSummary, 0, len(records))
	for _, rec := range records {
		p := backend.ProjectFromRecord(rec)
		row := ProjectSummary{ID: p.ID, Name: p.Name, Status: p.Status}
		if c, ok := p.LatestComment(); ok {
			row.LatestComment = &CommentView{Author: c.Author, Body: c.Body, At: c.At}
		}
		out = append(out, row)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func joinVehicleInspections(records []map[string]any, inspections []backend.Inspection) []InspectionStatus {
	out := make([]InspectionStatus, 0, len(records))
	for _, rec := range records {
		v := backend.VehicleFromRecord(rec)
		st := InspectionStatus{TargetID: v.ID, TargetName: v.Name}
		if last, ok := lastInspection(inspections, v.ID, v.Name, v.Registration); ok {
			st.Inspected = true
			st.LastScore = last.Score
			st.LastInspected = last.SubmittedAt
		}
		out = append(out, st)
	}
	return out
}

func joinAssetInspections(records []map[string]any, inspections []backend.Inspection) []InspectionStatus {
	out := make([]InspectionStatus, 0, len(records))
	for _, rec := range records {
		a := backend.AssetFromRecord(rec)
		st := InspectionStatus{TargetID: a.ID, TargetName: a.Name}
		if last, ok := lastInspection(inspections, a.ID, a.Name); ok {
			st.Inspected = true
			st.LastScore = last.Score
			st.LastInspected = last.SubmittedAt
		}
		out = append(out, st)
	}
	return out
}

// lastInspection finds the most recent inspection for a target, matching by
// id first and falling back to a case-insensitive name match. Some backend
// versions only record the target's display name on submissions.
func lastInspection(inspections []backend.Inspection, id string, names ...string) (backend.Inspection, bool) {
	var best backend.Inspection
	found := false
	matches := func(ins backend.Inspection) bool {
		if id != "" && ins.TargetID == id {
			return true
		}
		if ins.TargetID != "" {
			return false
		}
		for _, n := range names {
			if n != "" && strings.EqualFold(ins.TargetName, n) {
				return true
			}
		}
		return false
	}
	for _, ins := range inspections {
		if !matches(ins) {
			continue
		}
		if !found || ins.SubmittedAt.After(best.SubmittedAt) {
			best = ins
			found = true
		}
	}
	return best, found
}

func totalInvoices(records []map[string]any) BillingSummary {
	var b BillingSummary
	for _, rec := range records {
		inv := backend.InvoiceFromRecord(rec)
		b.InvoiceCount++
		b.TotalBilled += inv.Total
		b.TotalPaid += inv.Paid
		b.TotalOutstanding += inv.Outstanding
	}
	return b
}

// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package backend

import (
	"strconv"
	"strings"
	"time"
)

// Canonical entity types. Backend deployments disagree on field names, so
// each type is built from a raw record here and nowhere else.

// Task is a unit of work within a project.
type Task struct {
	ID        string
	Name      string
	Status    string
	ProjectID string
	UpdatedAt time.Time
}

// Project groups tasks under one customer engagement.
type Project struct {
	ID       string
	Name     string
	Status   string
	Comments []Comment
}

// Comment is a manager note attached to a project.
type Comment struct {
	Author string
	Body   string
	At     time.Time
}

// Vehicle is a fleet vehicle.
type Vehicle struct {
	ID           string
	Name         string
	Registration string
	Status       string
}

// Asset is a tracked piece of equipment.
type Asset struct {
	ID     string
	Name   string
	Status string
}

// Inspection is one submitted inspection form.
type Inspection struct {
	ID          string
	TargetID    string
	TargetName  string
	Score       float64
	SubmittedAt time.Time
}

// Clocking is one workforce clock-in or clock-out.
type Clocking struct {
	ID        string
	UserID    string
	UserName  string
	TaskID    string
	Direction string // "in" or "out"
	At        time.Time
}

// Invoice carries billing totals for the overview.
type Invoice struct {
	ID          string
	Status      string
	Total       float64
	Paid        float64
	Outstanding float64
}

// OrgBilling is the backend's own billing rollup for an org.
type OrgBilling struct {
	InvoiceCount     int
	TotalBilled      float64
	TotalPaid        float64
	TotalOutstanding float64
}

// TaskFromRecord builds a Task from a raw backend record.
func TaskFromRecord(m map[string]any) Task {
	return Task{
		ID:        firstString(m, "id", "_id", "uuid", "taskId"),
		Name:      firstString(m, "name", "title", "taskName", "label"),
		Status:    strings.ToLower(firstString(m, "status", "state", "taskStatus")),
		ProjectID: firstString(m, "projectId", "project_id", "project"),
		UpdatedAt: firstTime(m, "updatedAt", "updated_at", "modifiedAt", "lastModified"),
	}
}

// ProjectFromRecord builds a Project, flattening whichever comment shape
// the record carries.
func ProjectFromRecord(m map[string]any) Project {
	p := Project{
		ID:     firstString(m, "id", "_id", "uuid", "projectId"),
		Name:   firstString(m, "name", "title", "projectName"),
		Status: strings.ToLower(firstString(m, "status", "state")),
	}
	for _, key := range []string{"managerComments", "comments", "notes"} {
		raw, ok := m[key]
		if !ok {
			continue
		}
		p.Comments = commentsFromValue(raw)
		if len(p.Comments) > 0 {
			break
		}
	}
	return p
}

// VehicleFromRecord builds a Vehicle from a raw backend record.
func VehicleFromRecord(m map[string]any) Vehicle {
	return Vehicle{
		ID:           firstString(m, "id", "_id", "uuid", "vehicleId"),
		Name:         firstString(m, "name", "label", "description"),
		Registration: firstString(m, "registration", "regNumber", "plate", "licensePlate"),
		Status:       strings.ToLower(firstString(m, "status", "state")),
	}
}

// AssetFromRecord builds an Asset from a raw backend record.
func AssetFromRecord(m map[string]any) Asset {
	return Asset{
		ID:     firstString(m, "id", "_id", "uuid", "assetId"),
		Name:   firstString(m, "name", "label", "assetName"),
		Status: strings.ToLower(firstString(m, "status", "state")),
	}
}

// InspectionFromRecord builds an Inspection. The inspected target may be
// referenced by id or only by name depending on backend version.
func InspectionFromRecord(m map[string]any) Inspection {
	return Inspection{
		ID:          firstString(m, "id", "_id", "uuid", "submissionId"),
		TargetID:    firstString(m, "targetId", "vehicleId", "assetId", "subjectId"),
		TargetName:  firstString(m, "targetName", "vehicleName", "assetName", "subject"),
		Score:       firstFloat(m, "score", "result", "rating"),
		SubmittedAt: firstTime(m, "submittedAt", "submitted_at", "createdAt", "date"),
	}
}

// ClockingFromRecord builds a Clocking from a raw backend record.
func ClockingFromRecord(m map[string]any) Clocking {
	c := Clocking{
		ID:        firstString(m, "id", "_id", "uuid", "clockingId"),
		UserID:    firstString(m, "userId", "user_id", "employeeId"),
		UserName:  firstString(m, "userName", "user", "employeeName"),
		TaskID:    firstString(m, "taskId", "task_id", "task"),
		Direction: strings.ToLower(firstString(m, "direction", "type", "action")),
		At:        firstTime(m, "at", "timestamp", "clockedAt", "createdAt"),
	}
	switch c.Direction {
	case "clock-in", "clockin", "in":
		c.Direction = "in"
	case "clock-out", "clockout", "out":
		c.Direction = "out"
	}
	return c
}

// OrgBillingFromRecord builds an OrgBilling from the rollup's current and
// legacy key names.
func OrgBillingFromRecord(m map[string]any) OrgBilling {
	return OrgBilling{
		InvoiceCount:     int(firstFloat(m, "invoiceCount", "invoice_count", "count")),
		TotalBilled:      firstFloat(m, "totalBilled", "total_billed", "billed", "total"),
		TotalPaid:        firstFloat(m, "totalPaid", "total_paid", "paid"),
		TotalOutstanding: firstFloat(m, "totalOutstanding", "total_outstanding", "outstanding", "balance"),
	}
}

// InvoiceFromRecord builds an Invoice. Outstanding is derived when the
// record does not carry it.
func InvoiceFromRecord(m map[string]any) Invoice {
	inv := Invoice{
		ID:     firstString(m, "id", "_id", "uuid", "invoiceId", "number"),
		Status: strings.ToLower(firstString(m, "status", "state")),
		Total:  firstFloat(m, "total", "amount", "totalAmount"),
		Paid:   firstFloat(m, "paid", "amountPaid", "paidAmount"),
	}
	if v, ok := m["outstanding"]; ok {
		inv.Outstanding = toFloat(v)
	} else if v, ok := m["balance"]; ok {
		inv.Outstanding = toFloat(v)
	} else {
		inv.Outstanding = inv.Total - inv.Paid
	}
	if inv.Outstanding < 0 {
		inv.Outstanding = 0
	}
	return inv
}

// commentsFromValue handles the three comment shapes seen in the wild:
// a bare string, a list of strings, and a list of objects.
func commentsFromValue(raw any) []Comment {
	switch v := raw.(type) {
	case string:
		if v == "" {
			return nil
		}
		return []Comment{{Body: v}}
	case []any:
		var out []Comment
		for _, item := range v {
			switch entry := item.(type) {
			case string:
				if entry != "" {
					out = append(out, Comment{Body: entry})
				}
			case map[string]any:
				c := Comment{
					Author: firstString(entry, "author", "user", "by", "createdBy"),
					Body:   firstString(entry, "text", "body", "comment", "message", "note"),
					At:     firstTime(entry, "createdAt", "created_at", "at", "date"),
				}
				if c.Body != "" {
					out = append(out, c)
				}
			}
		}
		return out
	}
	return nil
}

// LatestComment returns the most recent comment on the project, by
// timestamp when present, otherwise by position.
func (p Project) LatestComment() (Comment, bool) {
	if len(p.Comments) == 0 {
		return Comment{}, false
	}
	best := p.Comments[len(p.Comments)-1]
	for _, c := range p.Comments {
		if !c.At.IsZero() && c.At.After(best.At) {
			best = c
		}
	}
	return best, true
}

func firstString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		switch v := m[k].(type) {
		case string:
			if v != "" {
				return v
			}
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		}
	}
	return ""
}

func firstFloat(m map[string]any, keys ...string) float64 {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			return toFloat(v)
		}
	}
	return 0
}

func toFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case string:
		f, _ := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f
	}
	return 0
}

// timeLayouts are tried in order when parsing backend timestamps.
var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func firstTime(m map[string]any, keys ...string) time.Time {
	for _, k := range keys {
		switch v := m[k].(type) {
		case string:
			for _, layout := range timeLayouts {
				if t, err := time.Parse(layout, v); err == nil {
					return t
				}
			}
		case float64:
			// Unix timestamp, possibly in milliseconds.
			if v > 1e12 {
				return time.UnixMilli(int64(v)).UTC()
			}
			if v > 0 {
				return time.Unix(int64(v), 0).UTC()
			}
		}
	}
	return time.Time{}
}

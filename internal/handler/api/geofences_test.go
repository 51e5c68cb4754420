// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestNormalizeGeofences(t *testing.T) {
	h, _, _ := testSetup(t)

	body := `{
		"records": [
			{"name": "Yard", "geometry": {"type": "Polygon", "coordinates": [[[0,0],[0,1],[1,1],[0,0]]]}},
			{"label": "Depot", "type": "circle", "center": {"lat": 51.5, "lng": -0.1}, "radius": 100},
			{"note": "no shape here"}
		]
	}`
	req := newJSONRequest(t, http.MethodPost, "/api/v1/geofences/normalize", body, nil)
	rec := httptest.NewRecorder()
	h.NormalizeGeofences(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Data NormalizeResult `json:"data"`
	}
	decodeResponse(t, rec, &resp)

	if len(resp.Data.Fences) != 2 {
		t.Fatalf("got %d fences, want 2", len(resp.Data.Fences))
	}
	if resp.Data.Skipped != 1 {
		t.Errorf("skipped = %d, want 1", resp.Data.Skipped)
	}
	if resp.Data.Fences[0].Kind != "polygon" {
		t.Errorf("fences[0].Kind = %q, want polygon", resp.Data.Fences[0].Kind)
	}
	if resp.Data.Fences[1].Kind != "circle" {
		t.Errorf("fences[1].Kind = %q, want circle", resp.Data.Fences[1].Kind)
	}
	if resp.Data.Fences[1].Radius != 100 {
		t.Errorf("fences[1].Radius = %v, want 100", resp.Data.Fences[1].Radius)
	}
	// Coordinates come back in [lng, lat] order.
	if got := resp.Data.Fences[1].Center; len(got) != 2 || got[0] != -0.1 || got[1] != 51.5 {
		t.Errorf("fences[1].Center = %v, want [-0.1 51.5]", got)
	}
}

func TestNormalizeGeofences_EmptyRecords(t *testing.T) {
	h, _, _ := testSetup(t)

	req := newJSONRequest(t, http.MethodPost, "/api/v1/geofences/normalize", `{"records": []}`, nil)
	rec := httptest.NewRecorder()
	h.NormalizeGeofences(rec, req)

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", rec.Code)
	}
}

func TestNormalizeGeofences_InvalidJSON(t *testing.T) {
	h, _, _ := testSetup(t)

	req := newJSONRequest(t, http.MethodPost, "/api/v1/geofences/normalize", `{not json`, nil)
	rec := httptest.NewRecorder()
	h.NormalizeGeofences(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestNormalizeGeofences_PointBufferOverride(t *testing.T) {
	h, _, _ := testSetup(t)

	body := `{
		"records": [{"name": "Gate", "point": {"lat": 1, "lng": 2}}],
		"point_radius": 50
	}`
	req := newJSONRequest(t, http.MethodPost, "/api/v1/geofences/normalize", body, nil)
	rec := httptest.NewRecorder()
	h.NormalizeGeofences(rec, req)

	var resp struct {
		Data NormalizeResult `json:"data"`
	}
	decodeResponse(t, rec, &resp)

	if len(resp.Data.Fences) != 1 {
		t.Fatalf("got %d fences, want 1", len(resp.Data.Fences))
	}
	f := resp.Data.Fences[0]
	if f.Kind != "circle" {
		t.Fatalf("Kind = %q, want circle (points buffered to circles)", f.Kind)
	}
	if f.Radius != 50 {
		t.Errorf("Radius = %v, want 50", f.Radius)
	}
}

func TestExportGeofences_Formats(t *testing.T) {
	body := `{"records": [{"name": "Yard", "geometry": {"type": "Polygon", "coordinates": [[[0,0],[0,1],[1,1],[0,0]]]}}]}`

	tests := []struct {
		format          string
		wantContentType string
		wantFilename    string
	}{
		{"geojson", "application/geo+json", `"geofences.geojson"`},
		{"kml", "application/vnd.google-earth.kml+xml", `"geofences.kml"`},
		{"kmz", "application/vnd.google-earth.kmz", `"geofences.kmz"`},
	}
	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			h, _, _ := testSetup(t)

			req := newJSONRequest(t, http.MethodPost, "/api/v1/geofences/export?format="+tt.format, body, nil)
			rec := httptest.NewRecorder()
			h.ExportGeofences(rec, req)

			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
			}
			if ct := rec.Header().Get("Content-Type"); ct != tt.wantContentType {
				t.Errorf("Content-Type = %q, want %q", ct, tt.wantContentType)
			}
			if cd := rec.Header().Get("Content-Disposition"); !strings.Contains(cd, tt.wantFilename) {
				t.Errorf("Content-Disposition = %q, want filename %s", cd, tt.wantFilename)
			}
			if rec.Body.Len() == 0 {
				t.Error("empty document body")
			}
		})
	}
}

func TestExportGeofences_UnsupportedFormat(t *testing.T) {
	h, _, _ := testSetup(t)

	req := newJSONRequest(t, http.MethodPost, "/api/v1/geofences/export?format=shapefile", `{"records": []}`, nil)
	rec := httptest.NewRecorder()
	h.ExportGeofences(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestImportGeofences_GeoJSON(t *testing.T) {
	h, _, _ := testSetup(t)

	doc := `{
		"type": "FeatureCollection",
		"features": [
			{
				"type": "Feature",
				"properties": {"name": "Site A"},
				"geometry": {"type": "Polygon", "coordinates": [[[0,0],[0,1],[1,1],[0,0]]]}
			}
		]
	}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/geofences/import", strings.NewReader(doc))
	req.Header.Set("Content-Type", "application/geo+json")
	rec := httptest.NewRecorder()
	h.ImportGeofences(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Data NormalizeResult `json:"data"`
	}
	decodeResponse(t, rec, &resp)
	if len(resp.Data.Fences) != 1 {
		t.Fatalf("got %d fences, want 1", len(resp.Data.Fences))
	}
	if resp.Data.Fences[0].Label != "Site A" {
		t.Errorf("Label = %q, want Site A", resp.Data.Fences[0].Label)
	}
}

func TestImportGeofences_KMLViaFormatParam(t *testing.T) {
	h, _, _ := testSetup(t)

	doc := `<?xml version="1.0" encoding="UTF-8"?>
<kml xmlns="http://www.opengis.net/kml/2.2">
  <Document>
    <Placemark>
      <name>Route 1</name>
      <LineString><coordinates>0,0 1,1 2,0</coordinates></LineString>
    </Placemark>
  </Document>
</kml>`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/geofences/import?format=kml", strings.NewReader(doc))
	rec := httptest.NewRecorder()
	h.ImportGeofences(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Data NormalizeResult `json:"data"`
	}
	decodeResponse(t, rec, &resp)
	if len(resp.Data.Fences) != 1 || resp.Data.Fences[0].Kind != "polyline" {
		t.Fatalf("fences = %+v, want one polyline", resp.Data.Fences)
	}
}

func TestImportGeofences_UnknownFormat(t *testing.T) {
	h, _, _ := testSetup(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/geofences/import", strings.NewReader("data"))
	req.Header.Set("Content-Type", "application/octet-stream")
	rec := httptest.NewRecorder()
	h.ImportGeofences(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestImportGeofences_MalformedDocument(t *testing.T) {
	h, _, _ := testSetup(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/geofences/import?format=geojson", strings.NewReader("{broken"))
	rec := httptest.NewRecorder()
	h.ImportGeofences(rec, req)

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", rec.Code)
	}
}

func TestTaskGeofences(t *testing.T) {
	h, up, _ := testSetup(t)
	up.responses["/tasks/t-17/geofences"] = `[
		{"name": "Work zone", "polygon": [{"lat": 0, "lng": 0}, {"lat": 0, "lng": 1}, {"lat": 1, "lng": 1}]}
	]`

	req := newJSONRequest(t, http.MethodGet, "/api/v1/tasks/t-17/geofences", "", map[string]string{"taskID": "t-17"})
	req = requestWithOrg(req, "org-1")
	rec := httptest.NewRecorder()
	h.TaskGeofences(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Data NormalizeResult `json:"data"`
	}
	decodeResponse(t, rec, &resp)
	if len(resp.Data.Fences) != 1 || resp.Data.Fences[0].Kind != "polygon" {
		t.Fatalf("fences = %+v, want one polygon", resp.Data.Fences)
	}
	if resp.Data.Fences[0].Label != "Work zone" {
		t.Errorf("Label = %q, want Work zone", resp.Data.Fences[0].Label)
	}
}

func TestTaskGeofences_UpstreamNotFound(t *testing.T) {
	h, _, _ := testSetup(t)

	req := newJSONRequest(t, http.MethodGet, "/api/v1/tasks/missing/geofences", "", map[string]string{"taskID": "missing"})
	rec := httptest.NewRecorder()
	h.TaskGeofences(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404: %s", rec.Code, rec.Body.String())
	}
	var errResp ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &errResp); err != nil {
		t.Fatal(err)
	}
	if errResp.Error.Code != "not_found" {
		t.Errorf("code = %q, want not_found", errResp.Error.Code)
	}
}

func TestProjectGeofences_ExportKMZ(t *testing.T) {
	h, up, _ := testSetup(t)
	up.responses["/projects/p-9/geofences"] = `{"data": [
		{"label": "Perimeter", "type": "circle", "center": [-0.1, 51.5], "radius": 250}
	]}`

	req := newJSONRequest(t, http.MethodGet, "/api/v1/projects/p-9/geofences?format=kmz", "", map[string]string{"projectID": "p-9"})
	rec := httptest.NewRecorder()
	h.ProjectGeofences(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/vnd.google-earth.kmz" {
		t.Errorf("Content-Type = %q", ct)
	}
	if !strings.Contains(rec.Header().Get("Content-Disposition"), "project-p-9-geofences.kmz") {
		t.Errorf("Content-Disposition = %q", rec.Header().Get("Content-Disposition"))
	}
	// KMZ is a zip archive.
	if body := rec.Body.Bytes(); len(body) < 4 || body[0] != 'P' || body[1] != 'K' {
		t.Error("body is not a zip archive")
	}
}

func TestProjectGeofences_UpstreamError(t *testing.T) {
	h, up, _ := testSetup(t)
	up.statuses["/projects/p-1/geofences"] = http.StatusInternalServerError

	req := newJSONRequest(t, http.MethodGet, "/api/v1/projects/p-1/geofences", "", map[string]string{"projectID": "p-1"})
	rec := httptest.NewRecorder()
	h.ProjectGeofences(rec, req)

	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502: %s", rec.Code, rec.Body.String())
	}
}

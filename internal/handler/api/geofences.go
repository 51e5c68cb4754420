// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/olegiv/fieldops-go/internal/backend"
	"github.com/olegiv/fieldops-go/internal/geofence"
	"github.com/olegiv/fieldops-go/internal/middleware"
)

// maxGeofenceBody bounds uploaded fence documents.
const maxGeofenceBody = 16 << 20 // 16 MB

// FenceResponse is the JSON view of a normalized fence. Coordinates are in
// GeoJSON axis order: [longitude, latitude].
type FenceResponse struct {
	UID    string        `json:"uid,omitempty"`
	Label  string        `json:"label,omitempty"`
	Status string        `json:"status,omitempty"`
	Kind   geofence.Kind `json:"kind"`
	Ring   [][]float64   `json:"ring,omitempty"`
	Path   [][]float64   `json:"path,omitempty"`
	Center []float64     `json:"center,omitempty"`
	Radius float64       `json:"radius,omitempty"`
}

func fenceToResponse(f *geofence.Fence) FenceResponse {
	resp := FenceResponse{
		UID:    f.UID,
		Label:  f.Label,
		Status: f.Status,
		Kind:   f.Kind,
	}
	switch f.Kind {
	case geofence.KindPolygon:
		for _, pt := range f.Ring {
			resp.Ring = append(resp.Ring, []float64{pt[0], pt[1]})
		}
	case geofence.KindPolyline:
		for _, pt := range f.Path {
			resp.Path = append(resp.Path, []float64{pt[0], pt[1]})
		}
	case geofence.KindCircle:
		resp.Center = []float64{f.Center[0], f.Center[1]}
		resp.Radius = f.Radius
	case geofence.KindPoint:
		resp.Center = []float64{f.Center[0], f.Center[1]}
	}
	return resp
}

func fencesToResponse(fences []*geofence.Fence) []FenceResponse {
	out := make([]FenceResponse, 0, len(fences))
	for _, f := range fences {
		out = append(out, fenceToResponse(f))
	}
	return out
}

// NormalizeRequest is the request body for normalize and export endpoints.
type NormalizeRequest struct {
	Records         []map[string]any `json:"records"`
	PointsAsCircles *bool            `json:"points_as_circles,omitempty"`
	PointRadius     float64          `json:"point_radius,omitempty"`
}

// NormalizeResult carries normalized fences plus the count of records that
// could not be resolved to a shape.
type NormalizeResult struct {
	Fences  []FenceResponse `json:"fences"`
	Skipped int             `json:"skipped"`
}

func (h *Handler) normalizeOptions(req *NormalizeRequest) geofence.Options {
	opts := h.fenceOpts
	if req.PointsAsCircles != nil {
		opts.PointsAsCircles = *req.PointsAsCircles
	}
	if req.PointRadius > 0 {
		opts.PointRadius = req.PointRadius
	}
	return opts
}

// NormalizeGeofences handles POST /api/v1/geofences/normalize.
// It resolves raw fence records into canonical shapes without persisting
// anything, so clients can preview what a map overlay will render.
func (h *Handler) NormalizeGeofences(w http.ResponseWriter, r *http.Request) {
	var req NormalizeRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxGeofenceBody)).Decode(&req); err != nil {
		WriteBadRequest(w, "Invalid JSON body", nil)
		return
	}
	if len(req.Records) == 0 {
		WriteValidationError(w, map[string]string{"records": "At least one record is required"})
		return
	}

	fences, skipped := geofence.NormalizeAll(req.Records, h.normalizeOptions(&req))
	if skipped > 0 {
		h.logger.Warn("geofence records skipped during normalization",
			"category", "geofence",
			"org_id", middleware.GetOrgID(r),
			"skipped", skipped,
			"total", len(req.Records))
	}

	WriteSuccess(w, NormalizeResult{
		Fences:  fencesToResponse(fences),
		Skipped: skipped,
	}, nil)
}

// ExportGeofences handles POST /api/v1/geofences/export?format=geojson|kml|kmz.
// The request body is normalized exactly like NormalizeGeofences; the result
// is streamed back as a downloadable document.
func (h *Handler) ExportGeofences(w http.ResponseWriter, r *http.Request) {
	format := strings.ToLower(r.URL.Query().Get("format"))
	if format == "" {
		format = "geojson"
	}

	var req NormalizeRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxGeofenceBody)).Decode(&req); err != nil {
		WriteBadRequest(w, "Invalid JSON body", nil)
		return
	}

	fences, _ := geofence.NormalizeAll(req.Records, h.normalizeOptions(&req))
	h.writeFenceDocument(w, format, "geofences", fences)
}

// writeFenceDocument serializes fences in the requested format with a
// download disposition. baseName is the filename without extension.
func (h *Handler) writeFenceDocument(w http.ResponseWriter, format, baseName string, fences []*geofence.Fence) {
	switch format {
	case "geojson":
		data, err := geofence.MarshalGeoJSON(fences)
		if err != nil {
			WriteInternalError(w, "Failed to encode GeoJSON")
			return
		}
		w.Header().Set("Content-Type", "application/geo+json")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", baseName+".geojson"))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(data)
	case "kml":
		w.Header().Set("Content-Type", "application/vnd.google-earth.kml+xml")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", baseName+".kml"))
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, geofence.ToKML(fences))
	case "kmz":
		w.Header().Set("Content-Type", "application/vnd.google-earth.kmz")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", baseName+".kmz"))
		w.WriteHeader(http.StatusOK)
		if err := geofence.WriteKMZ(w, fences); err != nil {
			h.logger.Error("writing kmz archive", "category", "geofence", "error", err)
		}
	default:
		WriteBadRequest(w, "Unsupported format: "+format, map[string]string{
			"format": "Must be one of: geojson, kml, kmz",
		})
	}
}

// ImportGeofences handles POST /api/v1/geofences/import.
// The body is a GeoJSON, KML or KMZ document; the format comes from the
// ?format= parameter or, failing that, the Content-Type header.
func (h *Handler) ImportGeofences(w http.ResponseWriter, r *http.Request) {
	format := strings.ToLower(r.URL.Query().Get("format"))
	if format == "" {
		format = formatFromContentType(r.Header.Get("Content-Type"))
	}
	if format == "" {
		WriteBadRequest(w, "Cannot determine document format", map[string]string{
			"format": "Pass ?format=geojson|kml|kmz or a recognized Content-Type",
		})
		return
	}

	data, err := io.ReadAll(io.LimitReader(r.Body, maxGeofenceBody))
	if err != nil {
		WriteBadRequest(w, "Failed to read request body", nil)
		return
	}
	if len(data) == 0 {
		WriteValidationError(w, map[string]string{"body": "Document body is required"})
		return
	}

	var (
		fences  []*geofence.Fence
		skipped int
	)
	switch format {
	case "geojson":
		fences, skipped, err = geofence.FromGeoJSON(data)
	case "kml":
		fences, skipped, err = geofence.FromKML(data)
	case "kmz":
		fences, skipped, err = geofence.FromKMZ(data)
	default:
		WriteBadRequest(w, "Unsupported format: "+format, map[string]string{
			"format": "Must be one of: geojson, kml, kmz",
		})
		return
	}
	if err != nil {
		WriteValidationError(w, map[string]string{"body": "Malformed " + format + " document: " + err.Error()})
		return
	}

	WriteSuccess(w, NormalizeResult{
		Fences:  fencesToResponse(fences),
		Skipped: skipped,
	}, nil)
}

func formatFromContentType(contentType string) string {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ""
	}
	switch mt {
	case "application/geo+json", "application/json":
		return "geojson"
	case "application/vnd.google-earth.kml+xml", "application/xml", "text/xml":
		return "kml"
	case "application/vnd.google-earth.kmz", "application/zip":
		return "kmz"
	}
	return ""
}

// TaskGeofences handles GET /api/v1/tasks/{taskID}/geofences.
// Fences come from the upstream backend and are normalized before returning.
// With ?format=geojson|kml|kmz the result is a downloadable document instead
// of the JSON envelope.
func (h *Handler) TaskGeofences(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")
	if taskID == "" {
		WriteBadRequest(w, "Missing task ID", nil)
		return
	}
	records, err := h.backend.FetchTaskGeofences(r.Context(), middleware.GetOrgID(r), taskID)
	if err != nil {
		h.writeUpstreamError(w, r, "task", err)
		return
	}
	h.respondFences(w, r, "task-"+taskID+"-geofences", records)
}

// ProjectGeofences handles GET /api/v1/projects/{projectID}/geofences.
func (h *Handler) ProjectGeofences(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "projectID")
	if projectID == "" {
		WriteBadRequest(w, "Missing project ID", nil)
		return
	}
	records, err := h.backend.FetchProjectGeofences(r.Context(), middleware.GetOrgID(r), projectID)
	if err != nil {
		h.writeUpstreamError(w, r, "project", err)
		return
	}
	h.respondFences(w, r, "project-"+projectID+"-geofences", records)
}

func (h *Handler) respondFences(w http.ResponseWriter, r *http.Request, baseName string, records []map[string]any) {
	fences, skipped := geofence.NormalizeAll(records, h.fenceOpts)

	if format := strings.ToLower(r.URL.Query().Get("format")); format != "" {
		h.writeFenceDocument(w, format, baseName, fences)
		return
	}

	WriteSuccess(w, NormalizeResult{
		Fences:  fencesToResponse(fences),
		Skipped: skipped,
	}, nil)
}

// writeUpstreamError maps backend client failures onto API error responses.
func (h *Handler) writeUpstreamError(w http.ResponseWriter, r *http.Request, entity string, err error) {
	if errors.Is(err, backend.ErrNotFound) {
		WriteNotFound(w, capitalizeFirst(entity)+" not found")
		return
	}
	h.logger.Error("upstream request failed",
		"category", "sync",
		"org_id", middleware.GetOrgID(r),
		"entity", entity,
		"error", err)
	WriteBadGateway(w, "Upstream backend request failed")
}

func capitalizeFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

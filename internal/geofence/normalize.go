// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package geofence

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
)

// Normalization error kinds. Callers that render previews treat all of them
// as "skip this record"; callers that validate uploads can distinguish them.
var (
	ErrNoShape      = errors.New("geofence: no resolvable shape")
	ErrTooFewPoints = errors.New("geofence: too few resolvable points")
	ErrBadCoords    = errors.New("geofence: unresolvable coordinates")
	ErrNoRadius     = errors.New("geofence: circle without numeric radius")
	ErrNoCenter     = errors.New("geofence: circle without resolvable center")
)

// DefaultPointRadius is the display buffer, in meters, applied to bare
// points when rendering them as circles.
const DefaultPointRadius = 25

// Options controls record normalization.
type Options struct {
	// PointsAsCircles buffers bare points into circles of PointRadius
	// meters for display.
	PointsAsCircles bool
	// PointRadius is the buffer radius in meters. Zero means
	// DefaultPointRadius.
	PointRadius float64
}

// Candidate field names per shape. Upstream endpoint versions disagree on
// naming, so each shape is probed under every name it has been seen with.
var (
	polygonFields  = []string{"geometry", "geojson", "polygon", "coordinates", "points", "ring", "area"}
	polylineFields = []string{"path", "polyline", "line", "route"}
	pointFields    = []string{"point", "location", "position", "coord"}
	centerFields   = []string{"center", "centre", "origin"}
	radiusFields   = []string{"radius", "radius_m", "radiusMeters", "radius_meters"}
	typeFields     = []string{"type", "kind", "shape", "fence_type", "fenceType", "geofence_type"}
	labelFields    = []string{"label", "name", "title", "description"}
	statusFields   = []string{"status", "rag", "rag_status", "ragStatus", "state"}
	uidFields      = []string{"uid", "uuid", "id", "_id", "fence_id", "fenceId"}
)

// Normalize resolves a single raw fence record into its canonical shape.
// Shape precedence is polygon, then circle, then polyline, then point: the
// first successful match wins, biasing ambiguous records toward area
// representations. Returns ErrNoShape (or a more specific kind) when the
// record resolves to nothing.
func Normalize(record map[string]any, opts Options) (*Fence, error) {
	if record == nil {
		return nil, ErrNoShape
	}

	f := &Fence{
		UID:    stringField(record, uidFields),
		Label:  stringField(record, labelFields),
		Status: stringField(record, statusFields),
		Meta:   metaBag(record),
	}

	// Polygon first.
	for _, key := range polygonFields {
		v, ok := record[key]
		if !ok || v == nil {
			continue
		}
		ring, err := NormalizePolygon(v)
		if err == nil {
			f.Kind = KindPolygon
			f.Ring = ring
			return f, nil
		}
	}
	// The record itself may be a bare GeoJSON geometry.
	if ring, err := NormalizePolygon(record); err == nil {
		f.Kind = KindPolygon
		f.Ring = ring
		return f, nil
	}

	// Circle requires an explicit type tag.
	if c, err := ToCircle(record); err == nil {
		f.Kind = KindCircle
		f.Center = orb.Point{c.Lng, c.Lat}
		f.Radius = c.Radius
		return f, nil
	}

	// Polyline.
	for _, key := range polylineFields {
		v, ok := record[key]
		if !ok || v == nil {
			continue
		}
		path, err := ToPolyline(v)
		if err == nil {
			f.Kind = KindPolyline
			f.Path = path
			return f, nil
		}
	}

	// Point last.
	pt, err := ToPoint(record)
	if err != nil {
		return nil, ErrNoShape
	}
	if opts.PointsAsCircles {
		radius := opts.PointRadius
		if radius <= 0 {
			radius = DefaultPointRadius
		}
		f.Kind = KindCircle
		f.Center = pt
		f.Radius = radius
		return f, nil
	}
	f.Kind = KindPoint
	f.Center = pt
	return f, nil
}

// NormalizeAll resolves a batch of records, skipping (and counting) the ones
// that fail. It never returns an error: a malformed record must never take
// down a map preview.
func NormalizeAll(records []map[string]any, opts Options) (fences []*Fence, skipped int) {
	fences = make([]*Fence, 0, len(records))
	for _, rec := range records {
		f, err := Normalize(rec, opts)
		if err != nil {
			skipped++
			continue
		}
		fences = append(fences, f)
	}
	return fences, skipped
}

// NormalizePolygon resolves a polygon ring from any of the accepted input
// layouts: a GeoJSON Polygon/MultiPolygon geometry object, raw GeoJSON
// coordinate arrays, or a flat list of {lat,lng} objects or [lng,lat] pairs.
// MultiPolygon input is unwrapped one level, always taking the first
// polygon's outer ring. The returned ring is closed (first == last) and has
// at least 3 distinct points.
func NormalizePolygon(input any) (orb.Ring, error) {
	pts, err := resolvePointList(input, 0)
	if err != nil {
		return nil, err
	}
	return ringFromPoints(pts)
}

// ToCircle resolves a circular fence. It requires all three of: an explicit
// circle type tag, a resolvable center, and a numeric radius. Anything less
// is an error, never a guess.
func ToCircle(record map[string]any) (Circle, error) {
	if !strings.EqualFold(stringField(record, typeFields), "circle") {
		return Circle{}, ErrNoShape
	}

	center, ok := resolveCenter(record)
	if !ok {
		return Circle{}, ErrNoCenter
	}

	for _, key := range radiusFields {
		if v, ok := record[key]; ok {
			if radius, ok := toFloat(v); ok && radius > 0 {
				return Circle{Lat: center.Lat(), Lng: center.Lon(), Radius: radius}, nil
			}
		}
	}
	return Circle{}, ErrNoRadius
}

// ToPolyline resolves an ordered path of at least 2 points.
func ToPolyline(input any) (orb.LineString, error) {
	pts, err := resolvePointList(input, 0)
	if err != nil {
		return nil, err
	}
	if len(pts) < 2 {
		return nil, ErrTooFewPoints
	}
	return orb.LineString(pts), nil
}

// ToPoint resolves a single point from a record: a nested point field, a
// bare coordinate pair, or top-level lat/lng keys.
func ToPoint(record map[string]any) (orb.Point, error) {
	for _, key := range pointFields {
		if v, ok := record[key]; ok && v != nil {
			if pt, ok := parsePoint(v); ok {
				return pt, nil
			}
		}
	}
	if pt, ok := parsePoint(record); ok {
		return pt, nil
	}
	return orb.Point{}, ErrBadCoords
}

// resolveCenter finds a circle center under the known field names, falling
// back to top-level lat/lng keys.
func resolveCenter(record map[string]any) (orb.Point, bool) {
	for _, key := range centerFields {
		if v, ok := record[key]; ok && v != nil {
			if pt, ok := parsePoint(v); ok {
				return pt, true
			}
		}
	}
	return parsePoint(record)
}

// resolvePointList turns any accepted polygon/path layout into a flat list
// of points. depth guards against pathological nesting.
func resolvePointList(input any, depth int) ([]orb.Point, error) {
	if depth > 4 {
		return nil, ErrBadCoords
	}

	switch v := input.(type) {
	case map[string]any:
		// GeoJSON geometry object.
		geomType, _ := v["type"].(string)
		coords, hasCoords := v["coordinates"]
		if !hasCoords {
			return nil, ErrNoShape
		}
		switch strings.ToLower(geomType) {
		case "polygon":
			return outerRing(coords)
		case "multipolygon":
			// Always take the first polygon.
			list, ok := coords.([]any)
			if !ok || len(list) == 0 {
				return nil, ErrBadCoords
			}
			return outerRing(list[0])
		case "linestring":
			return pairList(coords)
		default:
			// No type tag: treat coordinates by shape.
			return resolvePointList(coords, depth+1)
		}

	case []any:
		if len(v) == 0 {
			return nil, ErrTooFewPoints
		}
		// A list of points, or nested ring lists.
		if _, ok := parsePoint(v[0]); ok {
			return pairList(v)
		}
		if inner, ok := v[0].([]any); ok && len(inner) > 0 {
			if _, isPt := parsePoint(inner[0]); !isPt {
				// MultiPolygon-style extra nesting.
				return resolvePointList(v[0], depth+1)
			}
			// Polygon-style ring list: outer ring only.
			return pairList(v[0])
		}
		return nil, ErrBadCoords
	}
	return nil, ErrNoShape
}

// outerRing extracts the outer ring point list of GeoJSON Polygon coordinates.
func outerRing(coords any) ([]orb.Point, error) {
	rings, ok := coords.([]any)
	if !ok || len(rings) == 0 {
		return nil, ErrBadCoords
	}
	return pairList(rings[0])
}

// pairList converts a list of coordinate entries into points.
func pairList(v any) ([]orb.Point, error) {
	list, ok := v.([]any)
	if !ok {
		return nil, ErrBadCoords
	}
	pts := make([]orb.Point, 0, len(list))
	for _, entry := range list {
		pt, ok := parsePoint(entry)
		if !ok {
			return nil, ErrBadCoords
		}
		pts = append(pts, pt)
	}
	return pts, nil
}

// parsePoint resolves a single coordinate. Arrays follow the GeoJSON
// [lng,lat] convention; objects use {lat,lng} with the usual key variants.
func parsePoint(v any) (orb.Point, bool) {
	switch c := v.(type) {
	case []any:
		if len(c) < 2 {
			return orb.Point{}, false
		}
		lng, okLng := toFloat(c[0])
		lat, okLat := toFloat(c[1])
		if !okLng || !okLat || !validLatLng(lat, lng) {
			return orb.Point{}, false
		}
		return orb.Point{lng, lat}, true

	case []float64:
		if len(c) < 2 || !validLatLng(c[1], c[0]) {
			return orb.Point{}, false
		}
		return orb.Point{c[0], c[1]}, true

	case map[string]any:
		lat, okLat := numField(c, "lat", "latitude", "Lat", "Latitude")
		lng, okLng := numField(c, "lng", "lon", "long", "longitude", "Lng", "Lon", "Longitude")
		if !okLat || !okLng || !validLatLng(lat, lng) {
			return orb.Point{}, false
		}
		return orb.Point{lng, lat}, true
	}
	return orb.Point{}, false
}

func validLatLng(lat, lng float64) bool {
	return lat >= -90 && lat <= 90 && lng >= -180 && lng <= 180
}

func numField(m map[string]any, keys ...string) (float64, bool) {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			if f, ok := toFloat(v); ok {
				return f, true
			}
		}
	}
	return 0, false
}

func stringField(m map[string]any, keys []string) string {
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

// metaBag extracts the free-form meta object used for tooltips and RAG
// coloring, tolerating records that flatten it to the top level.
func metaBag(record map[string]any) map[string]any {
	if m, ok := record["meta"].(map[string]any); ok {
		return m
	}
	if m, ok := record["properties"].(map[string]any); ok {
		return m
	}
	return nil
}

// toFloat coerces the numeric layouts JSON decoding produces, plus numeric
// strings some legacy endpoints emit.
func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	case fmt.Stringer:
		f, err := strconv.ParseFloat(n.String(), 64)
		return f, err == nil
	}
	return 0, false
}

func countDistinct(pts []orb.Point) int {
	seen := make(map[orb.Point]struct{}, len(pts))
	for _, p := range pts {
		seen[p] = struct{}{}
	}
	return len(seen)
}

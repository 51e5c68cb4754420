// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package geofence normalizes heterogeneous fence records into canonical
// shapes and converts them to and from GeoJSON, KML and KMZ.
//
// Fence records arrive from several upstream endpoints and file uploads in
// inconsistent layouts: GeoJSON geometries ([lng,lat] pairs), flat lists of
// {lat,lng} objects, and custom circle/point records. Every record resolves
// to exactly one of the four canonical kinds or is reported with a typed
// error so callers can tell "no data" from "malformed".
package geofence

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/paulmach/orb/planar"
)

// Kind identifies the canonical shape of a normalized fence.
type Kind string

// Canonical fence kinds.
const (
	KindPolygon  Kind = "polygon"
	KindCircle   Kind = "circle"
	KindPolyline Kind = "polyline"
	KindPoint    Kind = "point"
)

// Fence is the canonical in-memory representation of a geofence record.
// Exactly one of Ring, Path or Center is meaningful depending on Kind:
// polygons carry a closed Ring, polylines a Path, circles and points a
// Center (circles additionally a Radius in meters).
type Fence struct {
	UID    string
	Label  string
	Status string // RAG status from record meta, if any
	Kind   Kind
	Ring   orb.Ring       // polygon: closed, first == last
	Path   orb.LineString // polyline: >= 2 points
	Center orb.Point      // circle / point
	Radius float64        // circle: meters
	Meta   map[string]any // free-form label/status bag for tooltips
}

// Circle is the resolved center/radius form of a circular fence.
type Circle struct {
	Lat    float64
	Lng    float64
	Radius float64 // meters
}

// Contains reports whether the given point falls inside the fence.
// Points and polylines never contain anything.
func (f *Fence) Contains(pt orb.Point) bool {
	switch f.Kind {
	case KindPolygon:
		return planar.RingContains(f.Ring, pt)
	case KindCircle:
		return geo.Distance(f.Center, pt) <= f.Radius
	}
	return false
}

// Bound returns the bounding box of the fence geometry. Circles are bounded
// by a square spanning the radius in both axes.
func (f *Fence) Bound() orb.Bound {
	switch f.Kind {
	case KindPolygon:
		return f.Ring.Bound()
	case KindPolyline:
		return f.Path.Bound()
	case KindCircle:
		return geo.NewBoundAroundPoint(f.Center, f.Radius)
	default:
		return f.Center.Bound()
	}
}

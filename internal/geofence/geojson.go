// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package geofence

import (
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// ToGeoJSON converts a normalized fence set to a GeoJSON FeatureCollection.
// Polygons become Polygon features; circles and points become Point features
// (circles carry a "radius" property in meters); polylines become LineString
// features.
func ToGeoJSON(fences []*Fence) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, f := range fences {
		var feature *geojson.Feature
		switch f.Kind {
		case KindPolygon:
			feature = geojson.NewFeature(orb.Polygon{f.Ring})
		case KindPolyline:
			feature = geojson.NewFeature(f.Path)
		case KindCircle:
			feature = geojson.NewFeature(f.Center)
			feature.Properties["radius"] = f.Radius
		case KindPoint:
			feature = geojson.NewFeature(f.Center)
		default:
			continue
		}

		feature.Properties["kind"] = string(f.Kind)
		if f.UID != "" {
			feature.Properties["uid"] = f.UID
		}
		if f.Label != "" {
			feature.Properties["label"] = f.Label
		}
		if f.Status != "" {
			feature.Properties["status"] = f.Status
		}
		fc.Append(feature)
	}
	return fc
}

// MarshalGeoJSON serializes the fence set as a GeoJSON document.
func MarshalGeoJSON(fences []*Fence) ([]byte, error) {
	data, err := ToGeoJSON(fences).MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("encoding geojson: %w", err)
	}
	return data, nil
}

// FromGeoJSON parses a GeoJSON document back into normalized fences.
// Geometry types without a canonical kind (GeometryCollection and friends)
// are skipped and counted, matching NormalizeAll's never-throw contract.
func FromGeoJSON(data []byte) (fences []*Fence, skipped int, err error) {
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, 0, fmt.Errorf("parsing geojson: %w", err)
	}

	fences = make([]*Fence, 0, len(fc.Features))
	for _, feature := range fc.Features {
		props := map[string]any(feature.Properties)
		f := &Fence{
			UID:    stringField(props, uidFields),
			Label:  stringField(props, labelFields),
			Status: stringField(props, statusFields),
		}
		if len(feature.Properties) > 0 {
			f.Meta = map[string]any(feature.Properties)
		}

		switch geom := feature.Geometry.(type) {
		case orb.Polygon:
			if len(geom) == 0 || countDistinct(geom[0]) < 3 {
				skipped++
				continue
			}
			f.Kind = KindPolygon
			f.Ring = closedRing(geom[0])
		case orb.MultiPolygon:
			if len(geom) == 0 || len(geom[0]) == 0 || countDistinct(geom[0][0]) < 3 {
				skipped++
				continue
			}
			f.Kind = KindPolygon
			f.Ring = closedRing(geom[0][0])
		case orb.LineString:
			if len(geom) < 2 {
				skipped++
				continue
			}
			f.Kind = KindPolyline
			f.Path = geom
		case orb.Point:
			f.Center = geom
			if radius, ok := toFloat(feature.Properties["radius"]); ok && radius > 0 {
				f.Kind = KindCircle
				f.Radius = radius
			} else {
				f.Kind = KindPoint
			}
		default:
			skipped++
			continue
		}

		fences = append(fences, f)
	}
	return fences, skipped, nil
}

// closedRing returns ring closed in place (first == last).
func closedRing(ring orb.Ring) orb.Ring {
	if len(ring) == 0 {
		return ring
	}
	if ring[0] != ring[len(ring)-1] {
		ring = append(ring, ring[0])
	}
	return ring
}

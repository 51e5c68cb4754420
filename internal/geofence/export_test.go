// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package geofence

import (
	"archive/zip"
	"bytes"
	"math"
	"strings"
	"testing"

	"github.com/paulmach/orb"
)

func sampleFences() []*Fence {
	return []*Fence{
		{
			UID:   "fence-1",
			Label: "Site A",
			Kind:  KindPolygon,
			Ring:  orb.Ring{{18.4, -33.9}, {18.5, -33.9}, {18.5, -33.8}, {18.4, -33.9}},
		},
		{
			UID:    "fence-2",
			Label:  "Depot",
			Kind:   KindCircle,
			Center: orb.Point{28.0, -26.2},
			Radius: 75,
		},
		{
			UID:  "fence-3",
			Kind: KindPolyline,
			Path: orb.LineString{{0, 0}, {1, 1}, {2, 1}},
		},
	}
}

func TestGeoJSONRoundTrip(t *testing.T) {
	fences := sampleFences()

	data, err := MarshalGeoJSON(fences)
	if err != nil {
		t.Fatalf("MarshalGeoJSON failed: %v", err)
	}

	parsed, skipped, err := FromGeoJSON(data)
	if err != nil {
		t.Fatalf("FromGeoJSON failed: %v", err)
	}
	if skipped != 0 {
		t.Errorf("skipped = %d, want 0", skipped)
	}
	if len(parsed) != len(fences) {
		t.Fatalf("parsed %d fences, want %d", len(parsed), len(fences))
	}

	for i, f := range parsed {
		want := fences[i]
		if f.Kind != want.Kind {
			t.Errorf("fence %d kind = %s, want %s", i, f.Kind, want.Kind)
		}
		if f.UID != want.UID {
			t.Errorf("fence %d uid = %q, want %q", i, f.UID, want.UID)
		}
	}

	// The polygon ring survives with the same points within float tolerance.
	got, want := parsed[0].Ring, fences[0].Ring
	if len(got) != len(want) {
		t.Fatalf("ring length = %d, want %d", len(got), len(want))
	}
	for i := range got {
		if math.Abs(got[i].Lon()-want[i].Lon()) > 1e-9 || math.Abs(got[i].Lat()-want[i].Lat()) > 1e-9 {
			t.Errorf("ring[%d] = %v, want %v", i, got[i], want[i])
		}
	}

	// The circle keeps its radius.
	if parsed[1].Radius != 75 {
		t.Errorf("circle radius = %v, want 75", parsed[1].Radius)
	}
}

func TestFromGeoJSON_LabelVariants(t *testing.T) {
	// Documents from other tools carry the display name under name/title
	// rather than label.
	doc := `{
		"type": "FeatureCollection",
		"features": [
			{
				"type": "Feature",
				"properties": {"name": "Site A"},
				"geometry": {"type": "Polygon", "coordinates": [[[18.4,-33.9],[18.5,-33.9],[18.5,-33.8],[18.4,-33.9]]]}
			},
			{
				"type": "Feature",
				"properties": {"title": "Depot", "radius": 75},
				"geometry": {"type": "Point", "coordinates": [28.0,-26.2]}
			}
		]
	}`

	fences, skipped, err := FromGeoJSON([]byte(doc))
	if err != nil {
		t.Fatalf("FromGeoJSON failed: %v", err)
	}
	if skipped != 0 {
		t.Errorf("skipped = %d, want 0", skipped)
	}
	if len(fences) != 2 {
		t.Fatalf("parsed %d fences, want 2", len(fences))
	}
	if fences[0].Label != "Site A" {
		t.Errorf("Label = %q, want Site A", fences[0].Label)
	}
	if fences[1].Label != "Depot" {
		t.Errorf("Label = %q, want Depot", fences[1].Label)
	}
}

func TestToKML_PolygonOnly(t *testing.T) {
	kml := ToKML(sampleFences())

	if !strings.Contains(kml, "<Placemark>") {
		t.Fatal("expected at least one placemark")
	}
	if strings.Count(kml, "<Placemark>") != 1 {
		t.Errorf("placemark count = %d, want 1 (polygon only)", strings.Count(kml, "<Placemark>"))
	}
	if !strings.Contains(kml, "<name>Site A</name>") {
		t.Error("missing placemark name")
	}
	if !strings.Contains(kml, "18.4,-33.9,0") {
		t.Error("missing coordinate triple")
	}
}

func TestKMLRoundTrip(t *testing.T) {
	fences := sampleFences()[:1]
	kml := ToKML(fences)

	parsed, skipped, err := FromKML([]byte(kml))
	if err != nil {
		t.Fatalf("FromKML failed: %v", err)
	}
	if skipped != 0 {
		t.Errorf("skipped = %d, want 0", skipped)
	}
	if len(parsed) != 1 {
		t.Fatalf("parsed %d placemarks, want 1", len(parsed))
	}
	if parsed[0].Kind != KindPolygon {
		t.Errorf("kind = %s, want polygon", parsed[0].Kind)
	}
	if len(parsed[0].Ring) != len(fences[0].Ring) {
		t.Errorf("ring length = %d, want %d", len(parsed[0].Ring), len(fences[0].Ring))
	}
	if parsed[0].Label != "Site A" {
		t.Errorf("label = %q, want Site A", parsed[0].Label)
	}
}

func TestKMZRoundTrip(t *testing.T) {
	fences := sampleFences()[:1]

	var buf bytes.Buffer
	if err := WriteKMZ(&buf, fences); err != nil {
		t.Fatalf("WriteKMZ failed: %v", err)
	}

	parsed, _, err := FromKMZ(buf.Bytes())
	if err != nil {
		t.Fatalf("FromKMZ failed: %v", err)
	}
	if len(parsed) != 1 || parsed[0].Kind != KindPolygon {
		t.Fatalf("unexpected kmz parse result: %+v", parsed)
	}
}

func TestFromKMZ_NoKMLEntry(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	entry, err := zw.Create("readme.txt")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := entry.Write([]byte("nothing here")); err != nil {
		t.Fatal(err)
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}

	if _, _, err := FromKMZ(buf.Bytes()); err != ErrNoKMLEntry {
		t.Errorf("err = %v, want ErrNoKMLEntry", err)
	}
}

func TestFromKML_Malformed(t *testing.T) {
	if _, _, err := FromKML([]byte("not xml at all <")); err == nil {
		t.Error("expected parse error")
	}
}

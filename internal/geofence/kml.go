// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package geofence

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
)

// ErrNoKMLEntry is returned when a KMZ archive contains no .kml file.
var ErrNoKMLEntry = errors.New("geofence: kmz archive has no .kml entry")

// maxKMZEntrySize caps decompressed KMZ entries to guard against zip bombs
// in uploaded files.
const maxKMZEntrySize = 16 << 20 // 16MB

// ToKML renders the polygon fences of a set as a minimal KML document.
// Only polygons are representable; other kinds are skipped. The XML is
// built by hand: the documents we emit are flat enough that a marshaling
// layer buys nothing.
func ToKML(fences []*Fence) string {
	var sb strings.Builder
	sb.WriteString(xml.Header)
	sb.WriteString(`<kml xmlns="http://www.opengis.net/kml/2.2">` + "\n")
	sb.WriteString("  <Document>\n")

	for _, f := range fences {
		if f.Kind != KindPolygon || len(f.Ring) == 0 {
			continue
		}
		sb.WriteString("    <Placemark>\n")
		if f.Label != "" {
			sb.WriteString("      <name>")
			_ = xml.EscapeText(&sb, []byte(f.Label))
			sb.WriteString("</name>\n")
		}
		sb.WriteString("      <Polygon><outerBoundaryIs><LinearRing><coordinates>")
		for i, pt := range f.Ring {
			if i > 0 {
				sb.WriteString(" ")
			}
			sb.WriteString(formatCoord(pt))
		}
		sb.WriteString("</coordinates></LinearRing></outerBoundaryIs></Polygon>\n")
		sb.WriteString("    </Placemark>\n")
	}

	sb.WriteString("  </Document>\n")
	sb.WriteString("</kml>\n")
	return sb.String()
}

// formatCoord renders a point as the KML "lng,lat,0" triple.
func formatCoord(pt orb.Point) string {
	return strconv.FormatFloat(pt.Lon(), 'f', -1, 64) + "," +
		strconv.FormatFloat(pt.Lat(), 'f', -1, 64) + ",0"
}

// WriteKMZ writes the fence set as a KMZ archive: a zip wrapping a single
// doc.kml entry.
func WriteKMZ(w io.Writer, fences []*Fence) error {
	zw := zip.NewWriter(w)

	entry, err := zw.Create("doc.kml")
	if err != nil {
		return fmt.Errorf("creating doc.kml in kmz: %w", err)
	}
	if _, err := io.WriteString(entry, ToKML(fences)); err != nil {
		return fmt.Errorf("writing doc.kml: %w", err)
	}

	if err := zw.Close(); err != nil {
		return fmt.Errorf("closing kmz: %w", err)
	}
	return nil
}

// kmlDocument mirrors the subset of KML we accept on import.
type kmlDocument struct {
	XMLName    xml.Name       `xml:"kml"`
	Placemarks []kmlPlacemark `xml:"Document>Placemark"`
	// Some producers omit the Document wrapper.
	BarePlacemarks []kmlPlacemark `xml:"Placemark"`
}

type kmlPlacemark struct {
	Name    string     `xml:"name"`
	Polygon *kmlRing   `xml:"Polygon>outerBoundaryIs>LinearRing"`
	Line    *kmlCoords `xml:"LineString"`
	Point   *kmlCoords `xml:"Point"`
}

type kmlRing struct {
	Coordinates string `xml:"coordinates"`
}

type kmlCoords struct {
	Coordinates string `xml:"coordinates"`
}

// FromKML parses a KML document into normalized fences. Placemarks that do
// not resolve are skipped and counted.
func FromKML(data []byte) (fences []*Fence, skipped int, err error) {
	var doc kmlDocument
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, 0, fmt.Errorf("parsing kml: %w", err)
	}

	placemarks := doc.Placemarks
	if len(placemarks) == 0 {
		placemarks = doc.BarePlacemarks
	}

	for _, pm := range placemarks {
		f := &Fence{Label: pm.Name}

		switch {
		case pm.Polygon != nil:
			pts := parseKMLCoordinates(pm.Polygon.Coordinates)
			ring, rerr := ringFromPoints(pts)
			if rerr != nil {
				skipped++
				continue
			}
			f.Kind = KindPolygon
			f.Ring = ring
		case pm.Line != nil:
			pts := parseKMLCoordinates(pm.Line.Coordinates)
			if len(pts) < 2 {
				skipped++
				continue
			}
			f.Kind = KindPolyline
			f.Path = orb.LineString(pts)
		case pm.Point != nil:
			pts := parseKMLCoordinates(pm.Point.Coordinates)
			if len(pts) != 1 {
				skipped++
				continue
			}
			f.Kind = KindPoint
			f.Center = pts[0]
		default:
			skipped++
			continue
		}

		fences = append(fences, f)
	}
	return fences, skipped, nil
}

// FromKMZ unzips a KMZ archive and parses the first .kml entry found.
func FromKMZ(data []byte) ([]*Fence, int, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, 0, fmt.Errorf("opening kmz: %w", err)
	}

	for _, file := range zr.File {
		if !strings.HasSuffix(strings.ToLower(file.Name), ".kml") {
			continue
		}
		rc, err := file.Open()
		if err != nil {
			return nil, 0, fmt.Errorf("opening kmz entry %q: %w", file.Name, err)
		}
		kml, err := io.ReadAll(io.LimitReader(rc, maxKMZEntrySize))
		_ = rc.Close()
		if err != nil {
			return nil, 0, fmt.Errorf("reading kmz entry %q: %w", file.Name, err)
		}
		return FromKML(kml)
	}
	return nil, 0, ErrNoKMLEntry
}

// parseKMLCoordinates parses the whitespace-separated "lng,lat[,alt]"
// triples of a KML coordinates element. Unparseable triples are dropped.
func parseKMLCoordinates(raw string) []orb.Point {
	var pts []orb.Point
	for _, token := range strings.Fields(raw) {
		parts := strings.Split(token, ",")
		if len(parts) < 2 {
			continue
		}
		lng, errLng := strconv.ParseFloat(parts[0], 64)
		lat, errLat := strconv.ParseFloat(parts[1], 64)
		if errLng != nil || errLat != nil || !validLatLng(lat, lng) {
			continue
		}
		pts = append(pts, orb.Point{lng, lat})
	}
	return pts
}

// ringFromPoints closes a point list into a valid ring.
func ringFromPoints(pts []orb.Point) (orb.Ring, error) {
	if len(pts) > 1 && pts[0] == pts[len(pts)-1] {
		pts = pts[:len(pts)-1]
	}
	if countDistinct(pts) < 3 {
		return nil, ErrTooFewPoints
	}
	ring := make(orb.Ring, 0, len(pts)+1)
	ring = append(ring, pts...)
	ring = append(ring, pts[0])
	return ring, nil
}

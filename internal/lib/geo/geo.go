// Package geo wraps go-geom with the geometry plumbing the pipeline needs:
// GeoJSON codecs, WKT conversion for PostGIS calls, zone polygon merging,
// and bounding box validation.
package geo

import (
	"encoding/json"
	"fmt"

	geom "github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
	"github.com/twpayne/go-geom/encoding/wkt"
)

// Decode parses a GeoJSON geometry fragment.
func Decode(raw json.RawMessage) (geom.T, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("empty geometry")
	}
	var g geom.T
	if err := geojson.Unmarshal(raw, &g); err != nil {
		return nil, fmt.Errorf("decoding geometry: %w", err)
	}
	if g == nil {
		return nil, fmt.Errorf("null geometry")
	}
	return g, nil
}

// Encode serializes a geometry back to a GeoJSON fragment.
func Encode(g geom.T) (json.RawMessage, error) {
	b, err := geojson.Marshal(g)
	if err != nil {
		return nil, fmt.Errorf("encoding geometry: %w", err)
	}
	return json.RawMessage(b), nil
}

// GeometryType returns the GeoJSON type name of a fragment, validating it
// parses on the way.
func GeometryType(raw json.RawMessage) (string, error) {
	g, err := Decode(raw)
	if err != nil {
		return "", err
	}
	switch g.(type) {
	case *geom.Point:
		return "Point", nil
	case *geom.MultiPoint:
		return "MultiPoint", nil
	case *geom.LineString:
		return "LineString", nil
	case *geom.MultiLineString:
		return "MultiLineString", nil
	case *geom.Polygon:
		return "Polygon", nil
	case *geom.MultiPolygon:
		return "MultiPolygon", nil
	default:
		return "", fmt.Errorf("unsupported geometry type %T", g)
	}
}

// WKT converts a GeoJSON fragment to its normalized WKT form.
func WKT(raw json.RawMessage) (string, error) {
	g, err := Decode(raw)
	if err != nil {
		return "", err
	}
	return wkt.Marshal(g)
}

// LineStringWKT builds a WKT LINESTRING from [lng, lat] coordinate pairs.
func LineStringWKT(coords [][]float64) (string, error) {
	ls, err := lineString(coords)
	if err != nil {
		return "", err
	}
	return wkt.Marshal(ls)
}

// LineStringGeoJSON builds a GeoJSON LineString from [lng, lat] pairs.
func LineStringGeoJSON(coords [][]float64) (json.RawMessage, error) {
	ls, err := lineString(coords)
	if err != nil {
		return nil, err
	}
	return Encode(ls)
}

// PointGeoJSON builds a GeoJSON Point from a lng/lat pair.
func PointGeoJSON(lng, lat float64) (json.RawMessage, error) {
	return Encode(geom.NewPointFlat(geom.XY, []float64{lng, lat}))
}

func lineString(coords [][]float64) (*geom.LineString, error) {
	if len(coords) < 2 {
		return nil, fmt.Errorf("line string needs at least 2 points, got %d", len(coords))
	}
	gc := make([]geom.Coord, len(coords))
	for i, c := range coords {
		if len(c) < 2 {
			return nil, fmt.Errorf("coordinate %d has %d components", i, len(c))
		}
		gc[i] = geom.Coord{c[0], c[1]}
	}
	return geom.NewLineString(geom.XY).SetCoords(gc)
}

// MergeToMultiPolygon flattens polygonal geometries into one MultiPolygon,
// dropping duplicate polygons. Returns nil when no polygonal input exists.
// Non-polygonal and unparseable members are skipped.
func MergeToMultiPolygon(geoms []json.RawMessage) (json.RawMessage, error) {
	mp := geom.NewMultiPolygon(geom.XY)
	seen := make(map[string]bool)

	add := func(p *geom.Polygon) error {
		flat, err := polygonXY(p)
		if err != nil {
			return err
		}
		key := fmt.Sprintf("%v|%v", flat.Ends(), flat.FlatCoords())
		if seen[key] {
			return nil
		}
		seen[key] = true
		return mp.Push(flat)
	}

	for _, raw := range geoms {
		g, err := Decode(raw)
		if err != nil {
			continue
		}
		switch t := g.(type) {
		case *geom.Polygon:
			if err := add(t); err != nil {
				return nil, err
			}
		case *geom.MultiPolygon:
			for i := 0; i < t.NumPolygons(); i++ {
				if err := add(t.Polygon(i)); err != nil {
					return nil, err
				}
			}
		}
	}

	if mp.NumPolygons() == 0 {
		return nil, nil
	}
	return Encode(mp)
}

// polygonXY rebuilds a polygon in XY layout, trimming altitude and measure
// components some upstream zone geometries carry.
func polygonXY(p *geom.Polygon) (*geom.Polygon, error) {
	if p.Layout() == geom.XY {
		return p, nil
	}
	rings := make([][]geom.Coord, p.NumLinearRings())
	for i := 0; i < p.NumLinearRings(); i++ {
		coords := p.LinearRing(i).Coords()
		ring := make([]geom.Coord, len(coords))
		for j, c := range coords {
			ring[j] = geom.Coord{c[0], c[1]}
		}
		rings[i] = ring
	}
	return geom.NewPolygon(geom.XY).SetCoords(rings)
}

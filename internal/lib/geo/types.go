package geo

import (
	"fmt"
	"strconv"
	"strings"
)

// MetersPerMile converts statute miles to meters for geography buffers.
const MetersPerMile = 1609.344

// MaxSpanDegrees caps each bbox axis for detail queries.
const MaxSpanDegrees = 30.0

// BBox is a WGS-84 bounding box in W,S,E,N order.
type BBox struct {
	West  float64
	South float64
	East  float64
	North float64
}

// ParseBBox parses a "W,S,E,N" query string value.
func ParseBBox(s string) (*BBox, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return nil, fmt.Errorf("bbox needs 4 comma-separated numbers, got %d", len(parts))
	}
	vals := make([]float64, 4)
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, fmt.Errorf("bbox component %d is not a number: %q", i+1, p)
		}
		vals[i] = v
	}
	return &BBox{West: vals[0], South: vals[1], East: vals[2], North: vals[3]}, nil
}

// Validate checks coordinate bounds and axis order. When capSpan is set,
// each axis is also limited to MaxSpanDegrees.
func (b *BBox) Validate(capSpan bool) error {
	if b.West < -180 || b.East > 180 {
		return fmt.Errorf("longitude out of range [-180, 180]")
	}
	if b.South < -90 || b.North > 90 {
		return fmt.Errorf("latitude out of range [-90, 90]")
	}
	if b.West >= b.East {
		return fmt.Errorf("west must be less than east")
	}
	if b.South >= b.North {
		return fmt.Errorf("south must be less than north")
	}
	if capSpan {
		if b.East-b.West > MaxSpanDegrees || b.North-b.South > MaxSpanDegrees {
			return fmt.Errorf("bbox span exceeds %.0f degrees per axis", MaxSpanDegrees)
		}
	}
	return nil
}

// InUSBounds reports whether a point falls inside the service coverage
// envelope, which includes Alaska, Hawaii, and Puerto Rico.
func InUSBounds(lat, lng float64) bool {
	return lat >= 17 && lat <= 72 && lng >= -180 && lng <= -65
}

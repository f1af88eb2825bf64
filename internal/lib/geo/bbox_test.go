package geo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseBBox(t *testing.T) {
	b, err := ParseBBox("-105.5,39.0,-104.5,40.0")
	require.NoError(t, err)
	assert.Equal(t, -105.5, b.West)
	assert.Equal(t, 39.0, b.South)
	assert.Equal(t, -104.5, b.East)
	assert.Equal(t, 40.0, b.North)

	_, err = ParseBBox("-105.5,39.0,-104.5")
	assert.Error(t, err)

	_, err = ParseBBox("-105.5,39.0,abc,40.0")
	assert.Error(t, err)
}

func TestBBoxValidate(t *testing.T) {
	tests := []struct {
		name    string
		bbox    BBox
		capSpan bool
		wantErr bool
	}{
		{"valid", BBox{-105, 39, -104, 40}, true, false},
		{"west not less than east", BBox{-104, 39, -105, 40}, false, true},
		{"south not less than north", BBox{-105, 40, -104, 39}, false, true},
		{"longitude out of range", BBox{-181, 39, -104, 40}, false, true},
		{"latitude out of range", BBox{-105, 39, -104, 91}, false, true},
		{"wide span rejected when capped", BBox{-140, 20, -70, 45}, true, true},
		{"wide span allowed when uncapped", BBox{-180, -90, 180, 90}, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.bbox.Validate(tt.capSpan)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestInUSBounds(t *testing.T) {
	assert.True(t, InUSBounds(39.7, -104.9))  // Denver
	assert.True(t, InUSBounds(61.2, -149.9))  // Anchorage
	assert.True(t, InUSBounds(18.4, -66.1))   // San Juan
	assert.False(t, InUSBounds(51.5, -0.1))   // London
	assert.False(t, InUSBounds(32.3, -64.7))  // Bermuda, east of the envelope
	assert.False(t, InUSBounds(-33.9, 151.2)) // Sydney
}

package httpapi

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roadpulse/server/internal/errcode"
)

func TestParseBBoxParam(t *testing.T) {
	t.Run("absent bbox is nil", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/events", nil)
		bbox, err := parseBBoxParam(r, false)
		require.NoError(t, err)
		assert.Nil(t, bbox)
	})

	t.Run("span cap skipped when zoom drives the query", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/events?bbox=-180,-90,180,90", nil)

		_, err := parseBBoxParam(r, false)
		require.Error(t, err)
		assert.Equal(t, errcode.InvalidBBox, errcode.CodeOf(err))

		bbox, err := parseBBoxParam(r, true)
		require.NoError(t, err)
		assert.Equal(t, -180.0, bbox.West)
		assert.Equal(t, 90.0, bbox.North)
	})
}

func TestParseZoom(t *testing.T) {
	r := httptest.NewRequest("GET", "/events?zoom=7", nil)
	z, err := parseZoom(r)
	require.NoError(t, err)
	require.NotNil(t, z)
	assert.Equal(t, 7, *z)

	r = httptest.NewRequest("GET", "/events?zoom=up", nil)
	_, err = parseZoom(r)
	assert.Equal(t, errcode.BadRequest, errcode.CodeOf(err))
}

func TestParsePageCapsLimit(t *testing.T) {
	r := httptest.NewRequest("GET", "/events?limit=9999&offset=40", nil)
	limit, offset, err := parsePage(r, 100, 500)
	require.NoError(t, err)
	assert.Equal(t, 500, limit)
	assert.Equal(t, 40, offset)

	r = httptest.NewRequest("GET", "/events", nil)
	limit, offset, err = parsePage(r, 100, 500)
	require.NoError(t, err)
	assert.Equal(t, 100, limit)
	assert.Equal(t, 0, offset)
}

func TestParseActiveOnlyDefaultsTrue(t *testing.T) {
	r := httptest.NewRequest("GET", "/events", nil)
	assert.True(t, parseActiveOnly(r))

	r = httptest.NewRequest("GET", "/events?active_only=false", nil)
	assert.False(t, parseActiveOnly(r))
}

func TestParseSeverities(t *testing.T) {
	r := httptest.NewRequest("GET", "/events?severity=CRITICAL,WARNING", nil)
	assert.Equal(t, []string{"CRITICAL", "WARNING"}, parseSeverities(r))

	r = httptest.NewRequest("GET", "/events", nil)
	assert.Nil(t, parseSeverities(r))
}

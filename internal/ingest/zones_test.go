package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/roadpulse/server/internal/cache"
)

const testZoneURL = "https://api.weather.gov/zones/forecast/COZ040"

var testZonePolygon = json.RawMessage(`{"type":"Polygon","coordinates":[[[-106,39],[-105,39],[-105,40],[-106,39]]]}`)

func TestResolveFetchesAndCaches(t *testing.T) {
	_, c := newTestCache(t)
	fetcher := &fakeZoneFetcher{geoms: map[string]json.RawMessage{testZoneURL: testZonePolygon}}
	r := NewZoneResolver(fetcher, c, zap.NewNop(), time.Hour, time.Second)

	resolved := r.Resolve(context.Background(), []string{testZoneURL})
	require.Len(t, resolved, 1)
	assert.JSONEq(t, string(testZonePolygon), string(resolved[testZoneURL]))

	// Second resolve comes from the cache
	resolved = r.Resolve(context.Background(), []string{testZoneURL})
	require.Len(t, resolved, 1)
	assert.Equal(t, 1, fetcher.callCount(testZoneURL))

	cached, ok, err := c.GetBytes(context.Background(), cache.ZoneKey("COZ040"))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.JSONEq(t, string(testZonePolygon), string(cached))
}

func TestResolveDedupesZoneURLs(t *testing.T) {
	_, c := newTestCache(t)
	fetcher := &fakeZoneFetcher{geoms: map[string]json.RawMessage{testZoneURL: testZonePolygon}}
	r := NewZoneResolver(fetcher, c, zap.NewNop(), time.Hour, time.Second)

	resolved := r.Resolve(context.Background(), []string{testZoneURL, testZoneURL, "", testZoneURL})
	assert.Len(t, resolved, 1)
	assert.Equal(t, 1, fetcher.callCount(testZoneURL))
}

func TestResolveNegativeCachesMissingZones(t *testing.T) {
	// A nil geometry with no error is how the client reports a 404
	_, c := newTestCache(t)
	fetcher := &fakeZoneFetcher{geoms: map[string]json.RawMessage{}}
	r := NewZoneResolver(fetcher, c, zap.NewNop(), time.Hour, time.Second)

	resolved := r.Resolve(context.Background(), []string{testZoneURL})
	assert.Empty(t, resolved)

	cached, ok, err := c.GetBytes(context.Background(), cache.ZoneKey("COZ040"))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "null", string(cached))

	// The cached null stops refetching on later runs
	resolved = r.Resolve(context.Background(), []string{testZoneURL})
	assert.Empty(t, resolved)
	assert.Equal(t, 1, fetcher.callCount(testZoneURL))
}

func TestResolveOmitsFailingZones(t *testing.T) {
	_, c := newTestCache(t)
	fetcher := &fakeZoneFetcher{errs: map[string]error{testZoneURL: errors.New("upstream 500")}}
	r := NewZoneResolver(fetcher, c, zap.NewNop(), time.Hour, 100*time.Millisecond)

	resolved := r.Resolve(context.Background(), []string{testZoneURL})
	assert.Empty(t, resolved)

	// Failures are not negative-cached; the next run tries again
	_, ok, err := c.GetBytes(context.Background(), cache.ZoneKey("COZ040"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestResolveEmptyInput(t *testing.T) {
	_, c := newTestCache(t)
	r := NewZoneResolver(&fakeZoneFetcher{}, c, zap.NewNop(), 0, 0)
	assert.Nil(t, r.Resolve(context.Background(), nil))
}

func TestZoneID(t *testing.T) {
	assert.Equal(t, "COZ040", zoneID("https://api.weather.gov/zones/forecast/COZ040"))
	assert.Equal(t, "COZ040", zoneID("https://api.weather.gov/zones/forecast/COZ040/"))
	assert.Equal(t, "COZ040", zoneID("COZ040"))
}

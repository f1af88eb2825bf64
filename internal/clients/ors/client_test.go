package ors

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-polyline"

	"github.com/roadpulse/server/internal/errcode"
)

func TestFetchRouteGeoJSON(t *testing.T) {
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		assert.Contains(t, r.URL.Path, "/v2/directions/driving-hgv/geojson")
		assert.Equal(t, "test-key", r.Header.Get("Authorization"))
		w.Write([]byte(`{
			"type": "FeatureCollection",
			"features": [{
				"geometry": {"type": "LineString", "coordinates": [[-105.0, 39.7], [-104.9, 39.8], [-104.8, 39.9]]},
				"properties": {"summary": {"distance": 25000.5, "duration": 1500.2}}
			}]
		}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "test-key", "driving-hgv", 5*time.Second)
	route, err := c.FetchRoute(context.Background(), 39.7, -105.0, 39.9, -104.8)
	require.NoError(t, err)

	var req struct {
		Coordinates [][]float64 `json:"coordinates"`
	}
	require.NoError(t, json.Unmarshal(gotBody, &req))
	assert.Equal(t, [][]float64{{-105.0, 39.7}, {-104.8, 39.9}}, req.Coordinates,
		"coordinates must go upstream as [lng, lat]")

	assert.InDelta(t, 25000.5, route.DistanceMeters, 0.01)
	assert.InDelta(t, 1500.2, route.DurationSeconds, 0.01)
	assert.Contains(t, string(route.Geometry), "LineString")
	assert.Contains(t, route.GeometryWKT, "LINESTRING")
}

func TestFetchRoutePolylineFallback(t *testing.T) {
	// [lat, lng] pairs, as polylines encode them.
	encoded := string(polyline.EncodeCoords([][]float64{{39.7, -105.0}, {39.8, -104.9}}))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"routes": [{"summary": {"distance": 18000, "duration": 1100}, "geometry": %q}]}`, encoded)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", "driving-hgv", 5*time.Second)
	route, err := c.FetchRoute(context.Background(), 39.7, -105.0, 39.8, -104.9)
	require.NoError(t, err)

	assert.InDelta(t, 18000, route.DistanceMeters, 0.01)
	assert.Contains(t, string(route.Geometry), "LineString")
	// First coordinate should be back in [lng, lat] order.
	assert.Contains(t, string(route.Geometry), "-105")
	assert.Contains(t, route.GeometryWKT, "LINESTRING")
}

func TestFetchRouteRateLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error": "quota exceeded"}`, http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "k", "", 5*time.Second)
	_, err := c.FetchRoute(context.Background(), 39.7, -105.0, 39.8, -104.9)
	require.Error(t, err)
	assert.Equal(t, errcode.ORSRateLimit, errcode.CodeOf(err))
}

func TestFetchRouteNotFound(t *testing.T) {
	t.Run("unroutable 404", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, `{"error": {"code": 2010, "message": "Could not find routable point"}}`, http.StatusNotFound)
		}))
		defer srv.Close()

		c := NewClient(srv.URL, "k", "", 5*time.Second)
		_, err := c.FetchRoute(context.Background(), 0.1, 0.1, 0.2, 0.2)
		require.Error(t, err)
		assert.Equal(t, errcode.RouteNotFound, errcode.CodeOf(err))
	})

	t.Run("empty features", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"type": "FeatureCollection", "features": []}`))
		}))
		defer srv.Close()

		c := NewClient(srv.URL, "k", "", 5*time.Second)
		_, err := c.FetchRoute(context.Background(), 39.7, -105.0, 39.8, -104.9)
		require.Error(t, err)
		assert.Equal(t, errcode.RouteNotFound, errcode.CodeOf(err))
	})
}

func TestBreakerFailsFastAfterRepeatedOutage(t *testing.T) {
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		http.Error(w, "dead", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "k", "", 5*time.Second)
	for i := 0; i < 8; i++ {
		_, err := c.FetchRoute(context.Background(), 39.7, -105.0, 39.8, -104.9)
		require.Error(t, err)
		assert.Equal(t, errcode.Internal, errcode.CodeOf(err))
	}
	assert.Equal(t, 5, hits, "breaker should open after five consecutive failures")
}

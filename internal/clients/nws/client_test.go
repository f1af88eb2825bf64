package nws

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roadpulse/server/internal/errcode"
)

func TestFetchActiveAlerts(t *testing.T) {
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		w.Write([]byte(`{"features": []}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", 5*time.Second)
	body, err := c.FetchActiveAlerts(context.Background())
	require.NoError(t, err)
	assert.JSONEq(t, `{"features": []}`, string(body))
	assert.Contains(t, gotUA, "roadpulse", "NWS requires an identifying user agent")
}

func TestConfiguredUserAgent(t *testing.T) {
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		w.Write([]byte(`{"features": []}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "fleet-ops/2.1 (ops@example.com)", 5*time.Second)
	_, err := c.FetchActiveAlerts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "fleet-ops/2.1 (ops@example.com)", gotUA)
}

func TestFetchActiveAlertsServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", 5*time.Second)
	_, err := c.FetchActiveAlerts(context.Background())
	require.Error(t, err)
	assert.Equal(t, errcode.FeedFetchError, errcode.CodeOf(err))
}

func TestFetchZoneGeometry(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/zones/forecast/COZ010":
			w.Write([]byte(`{"geometry": {"type": "Polygon", "coordinates": [[[0,0],[1,0],[1,1],[0,0]]]}}`))
		case "/zones/forecast/GONE":
			http.NotFound(w, r)
		case "/zones/forecast/EMPTY":
			w.Write([]byte(`{"geometry": null}`))
		default:
			http.Error(w, "boom", http.StatusInternalServerError)
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", 5*time.Second)

	t.Run("resolves polygon", func(t *testing.T) {
		geom, err := c.FetchZoneGeometry(context.Background(), srv.URL+"/zones/forecast/COZ010")
		require.NoError(t, err)
		assert.Contains(t, string(geom), "Polygon")
	})

	t.Run("404 means no geometry, not an error", func(t *testing.T) {
		geom, err := c.FetchZoneGeometry(context.Background(), srv.URL+"/zones/forecast/GONE")
		require.NoError(t, err)
		assert.Nil(t, geom)
	})

	t.Run("null geometry is fine", func(t *testing.T) {
		geom, err := c.FetchZoneGeometry(context.Background(), srv.URL+"/zones/forecast/EMPTY")
		require.NoError(t, err)
		assert.Nil(t, geom)
	})

	t.Run("server errors propagate", func(t *testing.T) {
		_, err := c.FetchZoneGeometry(context.Background(), srv.URL+"/zones/forecast/BROKEN")
		require.Error(t, err)
	})
}

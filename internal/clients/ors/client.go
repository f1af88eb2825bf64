// Package ors calls an openrouteservice instance for heavy-goods-vehicle
// routing. A circuit breaker guards the upstream so a dead routing server
// fails fast instead of stacking up 30 second timeouts.
package ors

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
	"github.com/twpayne/go-polyline"

	"github.com/roadpulse/server/internal/errcode"
	"github.com/roadpulse/server/internal/lib/geo"
)

// Client requests routes from openrouteservice.
type Client struct {
	apiKey     string
	httpClient *http.Client
	baseURL    string
	profile    string
	breaker    *gobreaker.CircuitBreaker
}

// Route is one resolved route. Geometry is a GeoJSON LineString; the WKT
// form feeds PostGIS corridor construction directly.
type Route struct {
	Geometry        json.RawMessage `json:"geometry"`
	GeometryWKT     string          `json:"-"`
	DistanceMeters  float64         `json:"distanceMeters"`
	DurationSeconds float64         `json:"durationSeconds"`
}

// NewClient creates an openrouteservice client. An empty apiKey is valid
// for self-hosted instances.
func NewClient(baseURL, apiKey, profile string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if profile == "" {
		profile = "driving-hgv"
	}
	return &Client{
		apiKey:  apiKey,
		baseURL: baseURL,
		profile: profile,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:     "ors",
			Interval: time.Minute,
			Timeout:  30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
		}),
	}
}

// FetchRoute resolves a route between two points. Coordinates go upstream
// in [lng, lat] order. 429 maps to ORS_RATE_LIMIT and an unroutable pair
// maps to ROUTE_NOT_FOUND.
func (c *Client) FetchRoute(ctx context.Context, oLat, oLng, dLat, dLng float64) (*Route, error) {
	reqBody, err := json.Marshal(map[string]any{
		"coordinates": [][]float64{{oLng, oLat}, {dLng, dLat}},
	})
	if err != nil {
		return nil, fmt.Errorf("marshaling route request: %w", err)
	}

	status, body, err := c.post(ctx, reqBody)
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, errcode.Wrap(errcode.Internal, "routing temporarily unavailable", err)
		}
		return nil, errcode.Wrap(errcode.Internal, "calling routing service", err)
	}

	switch {
	case status == http.StatusTooManyRequests:
		return nil, errcode.New(errcode.ORSRateLimit, "routing service rate limit exceeded")
	case status == http.StatusNotFound || status == http.StatusBadRequest:
		return nil, errcode.Newf(errcode.RouteNotFound, "no drivable route found").
			WithDetails(map[string]any{"status": status})
	case status < 200 || status > 299:
		return nil, errcode.Newf(errcode.Internal, "routing service returned HTTP %d", status)
	}

	return parseRoute(body)
}

// post runs the HTTP exchange under the circuit breaker. Only transport
// errors and 5xx responses count as failures; valid upstream answers like
// 404 or 429 must not trip the breaker.
func (c *Client) post(ctx context.Context, reqBody []byte) (int, []byte, error) {
	type result struct {
		status int
		body   []byte
	}

	out, err := c.breaker.Execute(func() (any, error) {
		url := fmt.Sprintf("%s/v2/directions/%s/geojson", c.baseURL, c.profile)
		req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(reqBody))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/geo+json, application/json")
		if c.apiKey != "" {
			req.Header.Set("Authorization", c.apiKey)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= 500 {
			return nil, fmt.Errorf("routing service returned HTTP %d", resp.StatusCode)
		}
		return result{status: resp.StatusCode, body: body}, nil
	})
	if err != nil {
		return 0, nil, err
	}
	r := out.(result)
	return r.status, r.body, nil
}

// parseRoute accepts both response shapes: the geojson endpoint's
// FeatureCollection and the classic endpoint's encoded-polyline routes,
// which some self-hosted versions serve regardless of the requested path.
func parseRoute(body []byte) (*Route, error) {
	var resp orsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, errcode.Wrap(errcode.Internal, "decoding routing response", err)
	}

	var coords [][]float64
	var distance, duration float64

	switch {
	case len(resp.Features) > 0:
		f := resp.Features[0]
		coords = f.Geometry.Coordinates
		distance = f.Properties.Summary.Distance
		duration = f.Properties.Summary.Duration
	case len(resp.Routes) > 0:
		r := resp.Routes[0]
		decoded, _, err := polyline.DecodeCoords([]byte(r.Geometry))
		if err != nil {
			return nil, errcode.Wrap(errcode.Internal, "decoding route polyline", err)
		}
		// Polylines decode as [lat, lng]; flip to [lng, lat].
		coords = make([][]float64, len(decoded))
		for i, c := range decoded {
			coords[i] = []float64{c[1], c[0]}
		}
		distance = r.Summary.Distance
		duration = r.Summary.Duration
	default:
		return nil, errcode.New(errcode.RouteNotFound, "no drivable route found")
	}

	if len(coords) < 2 {
		return nil, errcode.New(errcode.RouteNotFound, "route geometry is degenerate")
	}

	geometry, err := geo.LineStringGeoJSON(coords)
	if err != nil {
		return nil, errcode.Wrap(errcode.Internal, "encoding route geometry", err)
	}
	wkt, err := geo.LineStringWKT(coords)
	if err != nil {
		return nil, errcode.Wrap(errcode.Internal, "building route wkt", err)
	}

	return &Route{
		Geometry:        geometry,
		GeometryWKT:     wkt,
		DistanceMeters:  distance,
		DurationSeconds: duration,
	}, nil
}

// orsResponse covers both endpoint shapes.
type orsResponse struct {
	Features []orsFeature `json:"features"`
	Routes   []orsRoute   `json:"routes"`
}

type orsFeature struct {
	Geometry   orsGeometry   `json:"geometry"`
	Properties orsProperties `json:"properties"`
}

type orsGeometry struct {
	Coordinates [][]float64 `json:"coordinates"`
}

type orsProperties struct {
	Summary orsSummary `json:"summary"`
}

type orsRoute struct {
	Summary  orsSummary `json:"summary"`
	Geometry string     `json:"geometry"`
}

type orsSummary struct {
	Distance float64 `json:"distance"`
	Duration float64 `json:"duration"`
}

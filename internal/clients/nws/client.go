// Package nws talks to the National Weather Service CAP alerts API and
// normalizes active alerts into weather hazards. Most alerts carry no
// inline geometry; their affected zone URLs are resolved separately.
package nws

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/roadpulse/server/internal/errcode"
)

// defaultUserAgent identifies us to the NWS API, which rejects anonymous
// clients.
const defaultUserAgent = "roadpulse/1.0 (+https://github.com/roadpulse/server)"

// Client fetches active alerts and zone geometries.
type Client struct {
	httpClient *http.Client
	alertsURL  string
	userAgent  string
}

// NewClient creates an NWS client. alertsURL is the full active-alerts
// endpoint. An empty userAgent falls back to the default identifier.
func NewClient(alertsURL, userAgent string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	return &Client{
		alertsURL: alertsURL,
		userAgent: userAgent,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// FetchActiveAlerts downloads the current alert set as raw GeoJSON.
func (c *Client) FetchActiveAlerts(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", c.alertsURL, nil)
	if err != nil {
		return nil, errcode.Wrap(errcode.FeedFetchError, "building alerts request", err)
	}
	req.Header.Set("Accept", "application/geo+json, application/json")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errcode.Wrap(errcode.FeedFetchError, "fetching alerts", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, errcode.Newf(errcode.FeedFetchError, "alerts endpoint returned HTTP %d", resp.StatusCode).
			WithDetails(map[string]any{"status": resp.StatusCode})
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errcode.Wrap(errcode.FeedFetchError, "reading alerts body", err)
	}
	return body, nil
}

// FetchZoneGeometry resolves one zone URL to its polygon. Retired or
// malformed zone ids 404; that is normal feed churn and reports as a nil
// geometry rather than an error.
func (c *Client) FetchZoneGeometry(ctx context.Context, zoneURL string) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", zoneURL, nil)
	if err != nil {
		return nil, fmt.Errorf("building zone request: %w", err)
	}
	req.Header.Set("Accept", "application/geo+json, application/json")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching zone %s: %w", zoneURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("zone %s returned HTTP %d", zoneURL, resp.StatusCode)
	}

	var zone zoneResponse
	if err := json.NewDecoder(resp.Body).Decode(&zone); err != nil {
		return nil, fmt.Errorf("decoding zone %s: %w", zoneURL, err)
	}
	if len(zone.Geometry) == 0 || string(zone.Geometry) == "null" {
		return nil, nil
	}
	return zone.Geometry, nil
}

// zoneResponse is the subset of a zone document we use.
type zoneResponse struct {
	Geometry json.RawMessage `json:"geometry"`
}

// Package geocode resolves free-text addresses through a Nominatim
// compatible endpoint.
package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/roadpulse/server/internal/errcode"
)

// Nominatim's usage policy requires an identifying user agent.
const defaultUserAgent = "roadpulse/1.0 (+https://github.com/roadpulse/server)"

// Client queries the geocoder. Searches are biased to the US since every
// ingested feed is domestic.
type Client struct {
	httpClient *http.Client
	baseURL    string
	userAgent  string
}

// Result is one geocoder match.
type Result struct {
	Lat             float64 `json:"lat"`
	Lng             float64 `json:"lng"`
	ResolvedAddress string  `json:"resolvedAddress"`
}

func NewClient(baseURL, userAgent string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	return &Client{
		baseURL:   baseURL,
		userAgent: userAgent,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Geocode resolves one address to coordinates. An empty upstream result
// is GEOCODE_NO_RESULTS; transport and server failures are GEOCODE_ERROR.
func (c *Client) Geocode(ctx context.Context, text string) (*Result, error) {
	results, err := c.search(ctx, text, 1)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, errcode.Newf(errcode.GeocodeNoResults, "no results for %q", text)
	}
	return &results[0], nil
}

// Suggestions returns up to five matches for typeahead. Queries under
// three characters skip the upstream call entirely.
func (c *Client) Suggestions(ctx context.Context, text string) ([]Result, error) {
	if len(text) < 3 {
		return []Result{}, nil
	}
	return c.search(ctx, text, 5)
}

func (c *Client) search(ctx context.Context, text string, limit int) ([]Result, error) {
	params := url.Values{}
	params.Set("q", text)
	params.Set("format", "json")
	params.Set("limit", strconv.Itoa(limit))
	params.Set("countrycodes", "us")

	requestURL := fmt.Sprintf("%s/search?%s", c.baseURL, params.Encode())
	req, err := http.NewRequestWithContext(ctx, "GET", requestURL, nil)
	if err != nil {
		return nil, errcode.Wrap(errcode.GeocodeError, "building geocode request", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errcode.Wrap(errcode.GeocodeError, "calling geocoder", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, errcode.Newf(errcode.GeocodeError, "geocoder returned HTTP %d", resp.StatusCode)
	}

	var places []nominatimPlace
	if err := json.NewDecoder(resp.Body).Decode(&places); err != nil {
		return nil, errcode.Wrap(errcode.GeocodeError, "decoding geocoder response", err)
	}

	results := make([]Result, 0, len(places))
	for _, p := range places {
		lat, errLat := strconv.ParseFloat(p.Lat, 64)
		lng, errLng := strconv.ParseFloat(p.Lon, 64)
		if errLat != nil || errLng != nil {
			continue
		}
		results = append(results, Result{
			Lat:             lat,
			Lng:             lng,
			ResolvedAddress: p.DisplayName,
		})
	}
	return results, nil
}

// nominatimPlace is one row of a Nominatim search response. Coordinates
// arrive as strings.
type nominatimPlace struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
}

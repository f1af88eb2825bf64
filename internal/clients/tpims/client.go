// Package tpims ingests MAASTO truck parking feeds. A static feed carries
// facility inventory (location, capacity, amenities); a dynamic feed
// carries only availability updates keyed by site id.
package tpims

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/roadpulse/server/internal/errcode"
)

// Client downloads TPIMS payloads.
type Client struct {
	httpClient *http.Client
}

func NewClient(timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Fetch performs one GET against a TPIMS endpoint.
func (c *Client) Fetch(ctx context.Context, feedURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", feedURL, nil)
	if err != nil {
		return nil, errcode.Wrap(errcode.FeedFetchError, "building parking request", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errcode.Wrap(errcode.FeedFetchError, "fetching parking feed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, errcode.Newf(errcode.FeedFetchError, "parking feed returned HTTP %d", resp.StatusCode).
			WithDetails(map[string]any{"status": resp.StatusCode, "url": feedURL})
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errcode.Wrap(errcode.FeedFetchError, "reading parking feed body", err)
	}
	return body, nil
}

// Package wzdx fetches and normalizes WZDx work zone feeds published by
// state DOTs. Feeds in the wild span spec versions 2 through 4 with a lot
// of drift, so parsing is deliberately forgiving.
package wzdx

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/roadpulse/server/internal/errcode"
)

// Client downloads WZDx payloads. One client serves every configured feed.
type Client struct {
	httpClient *http.Client
}

// NewClient creates a WZDx feed client. State DOT endpoints can be slow,
// so the timeout is generous.
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

// Fetch performs one GET against the feed URL and returns the raw payload.
func (c *Client) Fetch(ctx context.Context, feedURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", feedURL, nil)
	if err != nil {
		return nil, errcode.Wrap(errcode.FeedFetchError, "building feed request", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errcode.Wrap(errcode.FeedFetchError, "fetching feed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, errcode.Newf(errcode.FeedFetchError, "feed returned HTTP %d", resp.StatusCode).
			WithDetails(map[string]any{"status": resp.StatusCode, "url": feedURL})
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errcode.Wrap(errcode.FeedFetchError, "reading feed body", err)
	}
	if len(body) == 0 {
		return nil, errcode.New(errcode.FeedFetchError, "feed returned an empty body")
	}
	return body, nil
}

// Feed identifies one configured WZDx source.
type Feed struct {
	Name  string
	URL   string
	State string
}

func (f Feed) String() string {
	return fmt.Sprintf("%s (%s)", f.Name, f.State)
}

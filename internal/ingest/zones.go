package ingest

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/roadpulse/server/internal/cache"
)

// zoneFetchWidth bounds concurrent zone lookups so a storm touching half
// the country does not hammer the NWS API.
const zoneFetchWidth = 8

// ZoneFetcher resolves one zone URL to its geometry.
type ZoneFetcher interface {
	FetchZoneGeometry(ctx context.Context, zoneURL string) (json.RawMessage, error)
}

// ZoneResolver batch-resolves NWS zone URLs to polygons, caching each
// zone for a day. Zone shapes change on NWS reorganizations, not daily.
type ZoneResolver struct {
	fetcher ZoneFetcher
	cache   *cache.Client
	logger  *zap.Logger
	ttl     time.Duration
	timeout time.Duration
}

func NewZoneResolver(fetcher ZoneFetcher, c *cache.Client, logger *zap.Logger, ttl, timeout time.Duration) *ZoneResolver {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &ZoneResolver{
		fetcher: fetcher,
		cache:   c,
		logger:  logger,
		ttl:     ttl,
		timeout: timeout,
	}
}

// Resolve maps zone URLs to geometries. Unresolvable zones (404, repeated
// errors) are omitted; callers treat missing zones as alerts without
// geometry rather than failures.
func (r *ZoneResolver) Resolve(ctx context.Context, zoneURLs []string) map[string]json.RawMessage {
	unique := dedupe(zoneURLs)
	if len(unique) == 0 {
		return nil
	}

	var mu sync.Mutex
	results := make(map[string]json.RawMessage)

	sem := semaphore.NewWeighted(zoneFetchWidth)
	var wg sync.WaitGroup
	for _, zoneURL := range unique {
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		wg.Add(1)
		go func(zoneURL string) {
			defer wg.Done()
			defer sem.Release(1)

			geom := r.resolveOne(ctx, zoneURL)
			if geom == nil {
				return
			}
			mu.Lock()
			results[zoneURL] = geom
			mu.Unlock()
		}(zoneURL)
	}
	wg.Wait()

	return results
}

func (r *ZoneResolver) resolveOne(ctx context.Context, zoneURL string) json.RawMessage {
	key := cache.ZoneKey(zoneID(zoneURL))
	if cached, ok, err := r.cache.GetBytes(ctx, key); err == nil && ok {
		if string(cached) == "null" {
			return nil
		}
		return cached
	}

	fetchCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var geom json.RawMessage
	op := func() error {
		var err error
		geom, err = r.fetcher.FetchZoneGeometry(fetchCtx, zoneURL)
		return err
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 2), fetchCtx)
	if err := backoff.Retry(op, policy); err != nil {
		r.logger.Warn("zone resolution failed",
			zap.String("zone", zoneURL),
			zap.Error(err))
		return nil
	}

	// Cache 404s as null so retired zones are not re-fetched every run.
	stored := geom
	if stored == nil {
		stored = json.RawMessage("null")
	}
	if err := r.cache.SetBytes(ctx, key, stored, r.ttl); err != nil {
		r.logger.Warn("zone cache write failed", zap.String("zone", zoneURL), zap.Error(err))
	}
	return geom
}

// zoneID extracts the trailing zone identifier from a zone URL, e.g.
// COZ040 from .../zones/forecast/COZ040.
func zoneID(zoneURL string) string {
	trimmed := strings.TrimRight(zoneURL, "/")
	if i := strings.LastIndex(trimmed, "/"); i >= 0 {
		return trimmed[i+1:]
	}
	return trimmed
}

func dedupe(urls []string) []string {
	seen := make(map[string]bool, len(urls))
	var out []string
	for _, u := range urls {
		if u == "" || seen[u] {
			continue
		}
		seen[u] = true
		out = append(out, u)
	}
	return out
}

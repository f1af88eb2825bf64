package services

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/roadpulse/server/internal/cache"
	"github.com/roadpulse/server/internal/clients/geocode"
	"github.com/roadpulse/server/internal/config"
	"github.com/roadpulse/server/internal/store"
)

// SuggestClient is the typeahead slice of the geocoder client.
type SuggestClient interface {
	Suggestions(ctx context.Context, text string) ([]geocode.Result, error)
}

// GeocodeService fronts the geocoder with a per-IP rate gate. Nominatim's
// usage policy is strict, so the gate here protects the upstream as much
// as this service.
type GeocodeService struct {
	client SuggestClient
	gate   *cache.Gate
	usage  UsageStore
	logger *zap.Logger
	limit  config.RateWindow
}

func NewGeocodeService(client SuggestClient, gate *cache.Gate, usage UsageStore, logger *zap.Logger, limit config.RateWindow) *GeocodeService {
	if limit.Limit <= 0 {
		limit = config.RateWindow{Limit: 30, Window: time.Minute}
	}
	return &GeocodeService{client: client, gate: gate, usage: usage, logger: logger, limit: limit}
}

// Suggest returns up to five address matches for a typeahead query.
func (s *GeocodeService) Suggest(ctx context.Context, clientIP, query string) ([]geocode.Result, error) {
	query = strings.TrimSpace(query)
	if d := s.gate.Allow(ctx, cache.GeocodeKey(clientIP), s.limit.Limit, s.limit.Window); !d.Allowed {
		return nil, rateLimited("geocoding limit reached, try again later", d)
	}

	results, err := s.client.Suggestions(ctx, query)
	if err != nil {
		return nil, err
	}
	recordUsage(ctx, s.logger, s.usage, store.UsageGeocode, map[string]any{
		"query":   query,
		"results": len(results),
	}, "")
	return results, nil
}

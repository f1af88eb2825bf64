package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/roadpulse/server/internal/cache"
	"github.com/roadpulse/server/internal/clients/geocode"
	"github.com/roadpulse/server/internal/clients/ors"
	"github.com/roadpulse/server/internal/config"
	"github.com/roadpulse/server/internal/errcode"
	"github.com/roadpulse/server/internal/hazard"
	"github.com/roadpulse/server/internal/lib/geo"
	"github.com/roadpulse/server/internal/metrics"
	"github.com/roadpulse/server/internal/store"
)

// Corridor radius bounds in miles. Out-of-range requests are rejected, not
// clamped.
const (
	minCorridorMiles = 1.0
	maxCorridorMiles = 50.0
)

// Geocoder resolves a free-text address to coordinates.
type Geocoder interface {
	Geocode(ctx context.Context, text string) (*geocode.Result, error)
}

// Router fetches a drivable route between two points.
type Router interface {
	FetchRoute(ctx context.Context, oLat, oLng, dLat, dLng float64) (*ors.Route, error)
}

// CorridorBuilder buffers a route line into a corridor polygon.
type CorridorBuilder interface {
	BuildCorridor(ctx context.Context, routeWKT string, radiusMiles float64) (json.RawMessage, error)
}

// RouteService resolves routes and reports every hazard along them.
type RouteService struct {
	geocoder     Geocoder
	router       Router
	corridors    CorridorBuilder
	hazards      *HazardQuery
	cache        *cache.Client
	usage        UsageStore
	logger       *zap.Logger
	checkTTL     time.Duration
	defaultMiles float64
}

func NewRouteService(geocoder Geocoder, router Router, corridors CorridorBuilder, hazards *HazardQuery, c *cache.Client, usage UsageStore, logger *zap.Logger, cfg config.RoutingConfig) *RouteService {
	ttl := cfg.CheckCacheTTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	miles := cfg.DefaultCorridorMiles
	if miles <= 0 {
		miles = 10
	}
	return &RouteService{
		geocoder:     geocoder,
		router:       router,
		corridors:    corridors,
		hazards:      hazards,
		cache:        c,
		usage:        usage,
		logger:       logger,
		checkTTL:     ttl,
		defaultMiles: miles,
	}
}

// CheckInput is a parsed route check request. Addresses are geocoded only
// when their coordinates are absent.
type CheckInput struct {
	OriginAddress      string   `json:"originAddress"`
	DestinationAddress string   `json:"destinationAddress"`
	OriginLat          *float64 `json:"originLat"`
	OriginLng          *float64 `json:"originLng"`
	DestinationLat     *float64 `json:"destinationLat"`
	DestinationLng     *float64 `json:"destinationLng"`
	CorridorMiles      float64  `json:"corridorMiles"`
}

// Endpoint is one resolved end of a checked route.
type Endpoint struct {
	Address string  `json:"address,omitempty"`
	Lat     float64 `json:"lat"`
	Lng     float64 `json:"lng"`
}

// CheckRoute describes the resolved route and its corridor.
type CheckRoute struct {
	Origin           Endpoint        `json:"origin"`
	Destination      Endpoint        `json:"destination"`
	DistanceMeters   float64         `json:"distanceMeters"`
	DurationSeconds  float64         `json:"durationSeconds"`
	CorridorMiles    float64         `json:"corridorMiles"`
	Geometry         json.RawMessage `json:"geometry"`
	CorridorGeometry json.RawMessage `json:"corridorGeometry"`
}

// CheckSummary counts corridor hazards by severity and kind.
type CheckSummary struct {
	TotalHazards         int `json:"totalHazards"`
	CriticalCount        int `json:"criticalCount"`
	WarningCount         int `json:"warningCount"`
	AdvisoryCount        int `json:"advisoryCount"`
	InfoCount            int `json:"infoCount"`
	RoadEventCount       int `json:"roadEventCount"`
	WeatherAlertCount    int `json:"weatherAlertCount"`
	CommunityReportCount int `json:"communityReportCount"`
}

// CheckResult is a full route check response.
type CheckResult struct {
	Route     CheckRoute           `json:"route"`
	Hazards   []hazard.RouteHazard `json:"hazards"`
	Summary   CheckSummary         `json:"summary"`
	CheckedAt time.Time            `json:"checkedAt"`
}

// Check resolves both endpoints, fetches a truck route, buffers it into a
// corridor, and reports every active hazard inside, ordered by route
// position. Identical checks within the cache window share one result.
func (s *RouteService) Check(ctx context.Context, in CheckInput) (*CheckResult, error) {
	miles := in.CorridorMiles
	if miles == 0 {
		miles = s.defaultMiles
	}
	if miles < minCorridorMiles || miles > maxCorridorMiles {
		return nil, errcode.Newf(errcode.InvalidCorridor,
			"corridorMiles must be between %g and %g", minCorridorMiles, maxCorridorMiles).
			WithDetails(map[string]any{"corridorMiles": in.CorridorMiles})
	}

	origin, err := s.resolveEndpoint(ctx, "origin", in.OriginAddress, in.OriginLat, in.OriginLng)
	if err != nil {
		return nil, err
	}
	dest, err := s.resolveEndpoint(ctx, "destination", in.DestinationAddress, in.DestinationLat, in.DestinationLng)
	if err != nil {
		return nil, err
	}

	key := cache.RouteCheckKey(checkFingerprint(origin.Lat, origin.Lng, dest.Lat, dest.Lng, miles))
	var cached CheckResult
	if found, err := s.cache.GetJSON(ctx, key, &cached); err != nil {
		s.logger.Warn("route check cache read failed", zap.Error(err))
	} else if found {
		metrics.IncRouteCheck("cached")
		s.recordCheck(ctx, &cached, true)
		return &cached, nil
	}

	route, err := s.router.FetchRoute(ctx, origin.Lat, origin.Lng, dest.Lat, dest.Lng)
	if err != nil {
		metrics.IncRouteCheck("error")
		return nil, err
	}

	corridor, err := s.corridors.BuildCorridor(ctx, route.GeometryWKT, miles)
	if err != nil {
		metrics.IncRouteCheck("error")
		return nil, errcode.Wrap(errcode.CorridorBuildFail, "building route corridor", err)
	}

	hazards, err := s.hazards.Query(ctx, corridor, route.GeometryWKT)
	if err != nil {
		metrics.IncRouteCheck("error")
		return nil, err
	}

	res := &CheckResult{
		Route: CheckRoute{
			Origin:           *origin,
			Destination:      *dest,
			DistanceMeters:   route.DistanceMeters,
			DurationSeconds:  route.DurationSeconds,
			CorridorMiles:    miles,
			Geometry:         route.Geometry,
			CorridorGeometry: corridor,
		},
		Hazards:   hazards,
		Summary:   summarize(hazards),
		CheckedAt: time.Now().UTC(),
	}

	if err := s.cache.SetJSON(ctx, key, res, s.checkTTL); err != nil {
		s.logger.Warn("route check cache write failed", zap.Error(err))
	}
	metrics.IncRouteCheck("fresh")
	s.recordCheck(ctx, res, false)
	s.logger.Info("route check completed",
		zap.Float64("distanceMeters", route.DistanceMeters),
		zap.Float64("corridorMiles", miles),
		zap.Int("hazards", len(hazards)))
	return res, nil
}

// resolveEndpoint prefers explicit coordinates and falls back to
// geocoding the address.
func (s *RouteService) resolveEndpoint(ctx context.Context, label, address string, lat, lng *float64) (*Endpoint, error) {
	if lat != nil && lng != nil {
		if !geo.InUSBounds(*lat, *lng) {
			return nil, errcode.Newf(errcode.InvalidCoords, "%s coordinates are outside US coverage", label).
				WithDetails(map[string]any{"field": label})
		}
		return &Endpoint{Address: address, Lat: *lat, Lng: *lng}, nil
	}
	if strings.TrimSpace(address) == "" {
		return nil, errcode.Newf(errcode.MissingFields, "%s needs an address or coordinates", label).
			WithDetails(map[string]any{"field": label})
	}
	r, err := s.geocoder.Geocode(ctx, address)
	if err != nil {
		return nil, err
	}
	return &Endpoint{Address: r.ResolvedAddress, Lat: r.Lat, Lng: r.Lng}, nil
}

func (s *RouteService) recordCheck(ctx context.Context, res *CheckResult, fromCache bool) {
	recordUsage(ctx, s.logger, s.usage, store.UsageRouteCheck, map[string]any{
		"hazards":        res.Summary.TotalHazards,
		"distanceMeters": res.Route.DistanceMeters,
		"cached":         fromCache,
	}, "")
}

// checkFingerprint hashes resolved endpoints plus radius so two checks of
// the same trip share a cache entry regardless of address spelling.
func checkFingerprint(oLat, oLng, dLat, dLng, miles float64) string {
	f := func(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }
	raw := strings.Join([]string{f(oLat), f(oLng), f(dLat), f(dLng), f(miles)}, ":")
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])[:16]
}

func summarize(hazards []hazard.RouteHazard) CheckSummary {
	sum := CheckSummary{TotalHazards: len(hazards)}
	for _, h := range hazards {
		switch h.Severity.Rank() {
		case 4:
			sum.CriticalCount++
		case 3:
			sum.WarningCount++
		case 2:
			sum.AdvisoryCount++
		default:
			sum.InfoCount++
		}
		switch h.Kind {
		case hazard.KindRoadEvent:
			sum.RoadEventCount++
		case hazard.KindWeatherAlert:
			sum.WeatherAlertCount++
		case hazard.KindCommunityReport:
			sum.CommunityReportCount++
		}
	}
	return sum
}

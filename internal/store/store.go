// Package store is the PostGIS persistence layer. Geometries cross the SQL
// boundary as GeoJSON through ST_GeomFromGeoJSON and ST_AsGeoJSON; every
// stored geometry is SRID 4326.
package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/roadpulse/server/internal/config"
	"github.com/roadpulse/server/internal/lib/geo"
)

// Store bundles one connection pool with the per-entity stores.
type Store struct {
	pool *pgxpool.Pool

	RoadEvents    *RoadEventStore
	WeatherAlerts *WeatherAlertStore
	Reports       *ReportStore
	Feeds         *FeedStore
	Usage         *UsageStore
	Parking       *ParkingStore
	Users         *UserStore
	SavedRoutes   *SavedRouteStore
}

// Open connects the pool and pings before returning.
func Open(ctx context.Context, cfg config.DatabaseConfig) (*Store, error) {
	pc, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parsing database url: %w", err)
	}
	if cfg.MaxConns > 0 {
		pc.MaxConns = cfg.MaxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, fmt.Errorf("creating pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return &Store{
		pool:          pool,
		RoadEvents:    &RoadEventStore{pool: pool},
		WeatherAlerts: &WeatherAlertStore{pool: pool},
		Reports:       &ReportStore{pool: pool},
		Feeds:         &FeedStore{pool: pool},
		Usage:         &UsageStore{pool: pool},
		Parking:       &ParkingStore{pool: pool},
		Users:         &UserStore{pool: pool},
		SavedRoutes:   &SavedRouteStore{pool: pool},
	}, nil
}

func (s *Store) Close() { s.pool.Close() }

// Ping checks connectivity, for health endpoints.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// BuildCorridor buffers a route line by radiusMiles on the geography side
// and returns the corridor polygon as GeoJSON. The caller validates the
// radius range.
func (s *Store) BuildCorridor(ctx context.Context, routeWKT string, radiusMiles float64) (json.RawMessage, error) {
	const q = `
		SELECT ST_AsGeoJSON(
			ST_Buffer(ST_GeomFromText($1, 4326)::geography, $2)::geometry
		)`

	var out string
	meters := radiusMiles * geo.MetersPerMile
	if err := s.pool.QueryRow(ctx, q, routeWKT, meters).Scan(&out); err != nil {
		return nil, fmt.Errorf("building corridor: %w", err)
	}
	return json.RawMessage(out), nil
}

package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SavedRouteStore persists user-owned origin/destination pairs.
type SavedRouteStore struct {
	pool *pgxpool.Pool
}

// Create stores a saved route for a user.
func (s *SavedRouteStore) Create(ctx context.Context, r *SavedRoute) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO saved_routes (
			id, user_id, name, origin_address, destination_address,
			origin_lat, origin_lng, destination_lat, destination_lng, corridor_miles
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at`,
		r.ID, r.UserID, r.Name, r.OriginAddress, r.DestinationAddress,
		r.OriginLat, r.OriginLng, r.DestinationLat, r.DestinationLng, r.CorridorMiles,
	).Scan(&r.CreatedAt)
	if err != nil {
		return fmt.Errorf("creating saved route: %w", err)
	}
	return nil
}

// ListByUser returns a user's saved routes, newest first.
func (s *SavedRouteStore) ListByUser(ctx context.Context, userID string) ([]*SavedRoute, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, user_id, name, origin_address, destination_address,
			origin_lat, origin_lng, destination_lat, destination_lng,
			corridor_miles, created_at
		FROM saved_routes
		WHERE user_id = $1
		ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("listing saved routes: %w", err)
	}
	defer rows.Close()

	var routes []*SavedRoute
	for rows.Next() {
		var r SavedRoute
		if err := rows.Scan(
			&r.ID, &r.UserID, &r.Name, &r.OriginAddress, &r.DestinationAddress,
			&r.OriginLat, &r.OriginLng, &r.DestinationLat, &r.DestinationLng,
			&r.CorridorMiles, &r.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning saved route: %w", err)
		}
		routes = append(routes, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading saved routes: %w", err)
	}
	return routes, nil
}

// Delete removes a saved route. Ownership is enforced here so one user
// cannot delete another's route by guessing ids.
func (s *SavedRouteStore) Delete(ctx context.Context, id, userID string) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM saved_routes WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("deleting saved route: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

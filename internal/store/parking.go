package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/roadpulse/server/internal/hazard"
)

// ParkingStore persists truck parking facilities. Static feeds own the
// facility rows; dynamic feeds only touch availability.
type ParkingStore struct {
	pool *pgxpool.Pool
}

const parkingCols = `id, source, source_facility_id, name, state,
	COALESCE(highway, ''), COALESCE(direction, ''), ST_AsGeoJSON(location),
	total_spaces, available_spaces, COALESCE(trend, ''), amenities,
	last_updated_at, is_active`

const upsertParkingSQL = `
	INSERT INTO parking_facilities (
		id, source, source_facility_id, name, state, highway, direction,
		location, total_spaces, available_spaces, trend, amenities,
		last_updated_at, is_active
	) VALUES (
		$1, $2, $3, $4, $5, NULLIF($6, ''), NULLIF($7, ''),
		ST_SetSRID(ST_GeomFromGeoJSON($8), 4326), $9, $10, NULLIF($11, ''), $12,
		$13, TRUE
	)
	ON CONFLICT (source, source_facility_id) DO UPDATE SET
		name = EXCLUDED.name,
		state = EXCLUDED.state,
		highway = EXCLUDED.highway,
		direction = EXCLUDED.direction,
		location = EXCLUDED.location,
		total_spaces = EXCLUDED.total_spaces,
		available_spaces = EXCLUDED.available_spaces,
		trend = EXCLUDED.trend,
		amenities = EXCLUDED.amenities,
		last_updated_at = EXCLUDED.last_updated_at,
		is_active = TRUE
	RETURNING source_facility_id, (xmax = 0) AS inserted`

// UpsertBatch writes full facility rows from a static feed in one round trip.
func (s *ParkingStore) UpsertBatch(ctx context.Context, facilities []*hazard.ParkingFacility) (*UpsertResult, error) {
	res := &UpsertResult{}
	if len(facilities) == 0 {
		return res, nil
	}

	batch := &pgx.Batch{}
	for _, f := range facilities {
		amenities := f.Amenities
		if amenities == nil {
			amenities = []string{}
		}
		batch.Queue(upsertParkingSQL,
			uuid.NewString(), f.Source, f.SourceFacilityID, f.Name,
			strings.ToUpper(f.State), f.Highway, f.Direction,
			string(f.Location), f.TotalSpaces, f.AvailableSpaces, f.Trend,
			amenities, f.LastUpdatedAt)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range facilities {
		var key string
		var inserted bool
		if err := br.QueryRow().Scan(&key, &inserted); err != nil {
			return nil, fmt.Errorf("upserting parking facility: %w", err)
		}
		if inserted {
			res.Inserted++
		} else {
			res.Updated++
		}
		res.Keys = append(res.Keys, key)
	}
	return res, nil
}

// ApplyDynamicBatch updates availability for facilities the static feed
// already created. Unknown facilities are skipped, not inserted; the count
// of matched rows comes back so the engine can log the gap.
func (s *ParkingStore) ApplyDynamicBatch(ctx context.Context, updates []*hazard.ParkingFacility) (int, error) {
	if len(updates) == 0 {
		return 0, nil
	}

	batch := &pgx.Batch{}
	for _, u := range updates {
		batch.Queue(`
			UPDATE parking_facilities
			SET available_spaces = $3, trend = NULLIF($4, ''), last_updated_at = $5
			WHERE source = $1 AND source_facility_id = $2`,
			u.Source, u.SourceFacilityID, u.AvailableSpaces, u.Trend, u.LastUpdatedAt)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	matched := 0
	for range updates {
		tag, err := br.Exec()
		if err != nil {
			return matched, fmt.Errorf("applying parking update: %w", err)
		}
		matched += int(tag.RowsAffected())
	}
	return matched, nil
}

// DeactivateMissing hides facilities the static feed no longer lists.
func (s *ParkingStore) DeactivateMissing(ctx context.Context, source string, keep []string) (int64, error) {
	if keep == nil {
		keep = []string{}
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE parking_facilities
		SET is_active = FALSE
		WHERE source = $1 AND is_active AND NOT source_facility_id = ANY($2)`,
		source, keep)
	if err != nil {
		return 0, fmt.Errorf("deactivating parking facilities: %w", err)
	}
	return tag.RowsAffected(), nil
}

func parkingWhere(f ParkingFilter) (string, []any) {
	conds := []string{"TRUE"}
	var args []any

	if f.ActiveOnly {
		conds = append(conds, "is_active")
	}
	if f.BBox != nil {
		args = append(args, f.BBox.West, f.BBox.South, f.BBox.East, f.BBox.North)
		conds = append(conds, fmt.Sprintf(
			"location && ST_MakeEnvelope($%d, $%d, $%d, $%d, 4326)",
			len(args)-3, len(args)-2, len(args)-1, len(args)))
	}
	if f.State != "" {
		args = append(args, strings.ToUpper(f.State))
		conds = append(conds, fmt.Sprintf("state = $%d", len(args)))
	}

	return strings.Join(conds, " AND "), args
}

// List returns facilities matching the filter plus the unpaginated total.
func (s *ParkingStore) List(ctx context.Context, f ParkingFilter) ([]*hazard.ParkingFacility, int, error) {
	where, args := parkingWhere(f)

	var total int
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM parking_facilities WHERE "+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting parking facilities: %w", err)
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 200
	}
	args = append(args, limit, f.Offset)
	q := fmt.Sprintf(
		"SELECT %s FROM parking_facilities WHERE %s ORDER BY state, name LIMIT $%d OFFSET $%d",
		parkingCols, where, len(args)-1, len(args))

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("listing parking facilities: %w", err)
	}
	defer rows.Close()

	var facilities []*hazard.ParkingFacility
	for rows.Next() {
		f, err := scanParking(rows)
		if err != nil {
			return nil, 0, err
		}
		facilities = append(facilities, f)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("reading parking facilities: %w", err)
	}
	return facilities, total, nil
}

func scanParking(rows pgx.Rows) (*hazard.ParkingFacility, error) {
	var f hazard.ParkingFacility
	var locStr string
	if err := rows.Scan(
		&f.ID, &f.Source, &f.SourceFacilityID, &f.Name, &f.State,
		&f.Highway, &f.Direction, &locStr,
		&f.TotalSpaces, &f.AvailableSpaces, &f.Trend, &f.Amenities,
		&f.LastUpdatedAt, &f.IsActive,
	); err != nil {
		return nil, fmt.Errorf("scanning parking facility: %w", err)
	}
	f.Location = json.RawMessage(locStr)
	return &f, nil
}

package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/roadpulse/server/internal/hazard"
	"github.com/roadpulse/server/internal/lib/geo"
)

// RoadEventStore persists normalized work zone and incident rows keyed by
// (source, source_event_id).
type RoadEventStore struct {
	pool *pgxpool.Pool
}

const roadEventCols = `id, source, source_event_id, state, type, severity, title,
	COALESCE(description, ''), COALESCE(direction, ''), COALESCE(route_name, ''),
	ST_AsGeoJSON(geometry), COALESCE(location_description, ''),
	started_at, expected_end_at, last_updated_at, lane_impact,
	COALESCE(vehicle_restrictions, '[]'::jsonb), COALESCE(detour_description, ''),
	COALESCE(source_feed_url, ''), is_active, created_at, updated_at`

const upsertRoadEventSQL = `
	INSERT INTO road_events (
		id, source, source_event_id, state, type, severity, title, description,
		direction, route_name, geometry, location_description, started_at,
		expected_end_at, last_updated_at, lane_impact, vehicle_restrictions,
		detour_description, source_feed_url, is_active, raw
	) VALUES (
		$1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''), NULLIF($9, ''), NULLIF($10, ''),
		ST_MakeValid(ST_SetSRID(ST_GeomFromGeoJSON($11), 4326)), NULLIF($12, ''),
		$13, $14, now(), $15, $16, NULLIF($17, ''), NULLIF($18, ''), TRUE, $19
	)
	ON CONFLICT (source, source_event_id) DO UPDATE SET
		state = EXCLUDED.state,
		type = EXCLUDED.type,
		severity = EXCLUDED.severity,
		title = EXCLUDED.title,
		description = EXCLUDED.description,
		direction = EXCLUDED.direction,
		route_name = EXCLUDED.route_name,
		geometry = EXCLUDED.geometry,
		location_description = EXCLUDED.location_description,
		started_at = EXCLUDED.started_at,
		expected_end_at = EXCLUDED.expected_end_at,
		last_updated_at = now(),
		lane_impact = EXCLUDED.lane_impact,
		vehicle_restrictions = EXCLUDED.vehicle_restrictions,
		detour_description = EXCLUDED.detour_description,
		source_feed_url = EXCLUDED.source_feed_url,
		is_active = TRUE,
		raw = EXCLUDED.raw,
		updated_at = now()
	RETURNING source_event_id, (xmax = 0) AS inserted`

// UpsertBatch inserts or refreshes a batch of events in one round trip and
// reports which natural keys were new.
func (s *RoadEventStore) UpsertBatch(ctx context.Context, events []*hazard.RoadEvent) (*UpsertResult, error) {
	res := &UpsertResult{}
	if len(events) == 0 {
		return res, nil
	}

	b := &pgx.Batch{}
	for _, e := range events {
		b.Queue(upsertRoadEventSQL,
			uuid.NewString(), e.Source, e.SourceEventID, e.State, e.Type, e.Severity,
			e.Title, e.Description, e.Direction, e.RouteName, string(e.Geometry),
			e.LocationDescription, e.StartedAt, e.ExpectedEndAt, e.LaneImpact,
			e.VehicleRestrictions, e.DetourDescription, e.SourceFeedURL, e.Raw,
		)
	}

	br := s.pool.SendBatch(ctx, b)
	defer br.Close()

	for range events {
		var key string
		var inserted bool
		if err := br.QueryRow().Scan(&key, &inserted); err != nil {
			return nil, fmt.Errorf("upserting road event: %w", err)
		}
		res.Keys = append(res.Keys, key)
		if inserted {
			res.Inserted++
		} else {
			res.Updated++
		}
	}
	return res, nil
}

// DeactivateMissing marks active rows of a source inactive when their key
// is not in keep. An empty keep set deactivates everything the source owns.
func (s *RoadEventStore) DeactivateMissing(ctx context.Context, source string, keep []string) (int64, error) {
	if keep == nil {
		keep = []string{}
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE road_events
		SET is_active = FALSE, updated_at = now()
		WHERE source = $1 AND is_active AND NOT (source_event_id = ANY($2))`,
		source, keep)
	if err != nil {
		return 0, fmt.Errorf("deactivating missing road events: %w", err)
	}
	return tag.RowsAffected(), nil
}

// DeactivateEnded marks active rows inactive once their expected end has
// passed.
func (s *RoadEventStore) DeactivateEnded(ctx context.Context, source string) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE road_events
		SET is_active = FALSE, updated_at = now()
		WHERE source = $1 AND is_active
		  AND expected_end_at IS NOT NULL AND expected_end_at < now()`,
		source)
	if err != nil {
		return 0, fmt.Errorf("deactivating ended road events: %w", err)
	}
	return tag.RowsAffected(), nil
}

// PurgeInactive deletes rows that have been inactive longer than the
// retention window. A zero retention disables purging.
func (s *RoadEventStore) PurgeInactive(ctx context.Context, source string, retention time.Duration) (int64, error) {
	if retention <= 0 {
		return 0, nil
	}
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM road_events
		WHERE source = $1 AND NOT is_active
		  AND updated_at < now() - make_interval(secs => $2)`,
		source, retention.Seconds())
	if err != nil {
		return 0, fmt.Errorf("purging road events: %w", err)
	}
	return tag.RowsAffected(), nil
}

// eventWhere builds the WHERE clause and args for a list query.
func eventWhere(f EventFilter) (string, []any) {
	conds := []string{"TRUE"}
	var args []any

	if f.ActiveOnly {
		conds = append(conds, "is_active AND (expected_end_at IS NULL OR expected_end_at > now())")
	}
	if f.BBox != nil {
		args = append(args, f.BBox.West, f.BBox.South, f.BBox.East, f.BBox.North)
		conds = append(conds, fmt.Sprintf(
			"geometry && ST_MakeEnvelope($%d, $%d, $%d, $%d, 4326)",
			len(args)-3, len(args)-2, len(args)-1, len(args)))
	}
	if len(f.Severities) > 0 {
		args = append(args, f.Severities)
		conds = append(conds, fmt.Sprintf("severity = ANY($%d)", len(args)))
	}
	if f.State != "" {
		args = append(args, strings.ToUpper(f.State))
		conds = append(conds, fmt.Sprintf("state = $%d", len(args)))
	}
	if f.Type != "" {
		args = append(args, f.Type)
		conds = append(conds, fmt.Sprintf("type = $%d", len(args)))
	}

	return strings.Join(conds, " AND "), args
}

// List returns events matching the filter plus the unpaginated total.
func (s *RoadEventStore) List(ctx context.Context, f EventFilter) ([]*hazard.RoadEvent, int, error) {
	where, args := eventWhere(f)

	var total int
	countSQL := "SELECT COUNT(*) FROM road_events WHERE " + where
	if err := s.pool.QueryRow(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting road events: %w", err)
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 500
	}
	args = append(args, limit, f.Offset)
	listSQL := fmt.Sprintf(
		"SELECT %s FROM road_events WHERE %s ORDER BY last_updated_at DESC LIMIT $%d OFFSET $%d",
		roadEventCols, where, len(args)-1, len(args))

	rows, err := s.pool.Query(ctx, listSQL, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("listing road events: %w", err)
	}
	defer rows.Close()

	events, err := scanRoadEvents(rows)
	if err != nil {
		return nil, 0, err
	}
	return events, total, nil
}

// InCorridor returns active events intersecting the corridor, each tagged
// with its position along the route line.
func (s *RoadEventStore) InCorridor(ctx context.Context, corridorGeoJSON json.RawMessage, routeWKT string, limit int) ([]*hazard.RoadEvent, []float64, error) {
	q := fmt.Sprintf(`
		SELECT %s,
			ST_LineLocatePoint(ST_GeomFromText($2, 4326), ST_Centroid(geometry)) AS pos
		FROM road_events
		WHERE is_active AND (expected_end_at IS NULL OR expected_end_at > now())
		  AND ST_Intersects(geometry, ST_SetSRID(ST_GeomFromGeoJSON($1), 4326))
		ORDER BY pos
		LIMIT $3`, roadEventCols)

	rows, err := s.pool.Query(ctx, q, string(corridorGeoJSON), routeWKT, limit)
	if err != nil {
		return nil, nil, fmt.Errorf("querying corridor road events: %w", err)
	}
	defer rows.Close()

	var events []*hazard.RoadEvent
	var positions []float64
	for rows.Next() {
		e, pos, err := scanRoadEventPos(rows)
		if err != nil {
			return nil, nil, err
		}
		events = append(events, e)
		positions = append(positions, pos)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("reading corridor road events: %w", err)
	}
	return events, positions, nil
}

// Clusters groups active events in the bbox with DBSCAN at the given eps
// in degrees.
func (s *RoadEventStore) Clusters(ctx context.Context, bbox *geo.BBox, eps float64) ([]Cluster, error) {
	const q = `
		WITH pts AS (
			SELECT severity, ST_Centroid(geometry) AS pt
			FROM road_events
			WHERE is_active AND (expected_end_at IS NULL OR expected_end_at > now())
			  AND geometry && ST_MakeEnvelope($1, $2, $3, $4, 4326)
		),
		clustered AS (
			SELECT severity, pt,
				ST_ClusterDBSCAN(pt, eps => $5, minpoints => 1) OVER () AS cid
			FROM pts
		)
		SELECT ST_AsGeoJSON(ST_Centroid(ST_Collect(pt))),
			COUNT(*),
			bool_or(severity = 'CRITICAL'),
			bool_or(severity = 'WARNING')
		FROM clustered
		GROUP BY cid`

	rows, err := s.pool.Query(ctx, q, bbox.West, bbox.South, bbox.East, bbox.North, eps)
	if err != nil {
		return nil, fmt.Errorf("clustering road events: %w", err)
	}
	defer rows.Close()

	var clusters []Cluster
	for rows.Next() {
		var c Cluster
		var geomStr string
		if err := rows.Scan(&geomStr, &c.Count, &c.HasCritical, &c.HasWarning); err != nil {
			return nil, fmt.Errorf("scanning cluster: %w", err)
		}
		c.Geometry = json.RawMessage(geomStr)
		clusters = append(clusters, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading clusters: %w", err)
	}
	return clusters, nil
}

func scanRoadEvents(rows pgx.Rows) ([]*hazard.RoadEvent, error) {
	var events []*hazard.RoadEvent
	for rows.Next() {
		e, err := scanRoadEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading road events: %w", err)
	}
	return events, nil
}

func scanRoadEvent(rows pgx.Rows) (*hazard.RoadEvent, error) {
	var e hazard.RoadEvent
	var geomStr string
	err := rows.Scan(
		&e.ID, &e.Source, &e.SourceEventID, &e.State, &e.Type, &e.Severity, &e.Title,
		&e.Description, &e.Direction, &e.RouteName, &geomStr, &e.LocationDescription,
		&e.StartedAt, &e.ExpectedEndAt, &e.LastUpdatedAt, &e.LaneImpact,
		&e.VehicleRestrictions, &e.DetourDescription, &e.SourceFeedURL, &e.IsActive,
		&e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("scanning road event: %w", err)
	}
	e.Geometry = json.RawMessage(geomStr)
	return &e, nil
}

func scanRoadEventPos(rows pgx.Rows) (*hazard.RoadEvent, float64, error) {
	var e hazard.RoadEvent
	var geomStr string
	var pos float64
	err := rows.Scan(
		&e.ID, &e.Source, &e.SourceEventID, &e.State, &e.Type, &e.Severity, &e.Title,
		&e.Description, &e.Direction, &e.RouteName, &geomStr, &e.LocationDescription,
		&e.StartedAt, &e.ExpectedEndAt, &e.LastUpdatedAt, &e.LaneImpact,
		&e.VehicleRestrictions, &e.DetourDescription, &e.SourceFeedURL, &e.IsActive,
		&e.CreatedAt, &e.UpdatedAt, &pos,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("scanning road event: %w", err)
	}
	e.Geometry = json.RawMessage(geomStr)
	return &e, pos, nil
}

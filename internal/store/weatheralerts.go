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
)

// WeatherAlertStore persists normalized NWS alerts keyed by nws_id.
type WeatherAlertStore struct {
	pool *pgxpool.Pool
}

const weatherAlertCols = `id, nws_id, event, severity, COALESCE(urgency, ''),
	COALESCE(certainty, ''), COALESCE(headline, ''), COALESCE(description, ''),
	COALESCE(instruction, ''), area_description, affected_zones,
	ST_AsGeoJSON(geometry), onset, expires, last_updated_at,
	COALESCE(sender_name, ''), COALESCE(wind_speed, ''), COALESCE(snow_amount, ''),
	is_active, created_at`

const upsertWeatherAlertSQL = `
	INSERT INTO weather_alerts (
		id, nws_id, event, severity, urgency, certainty, headline, description,
		instruction, area_description, affected_zones, geometry, onset, expires,
		last_updated_at, sender_name, wind_speed, snow_amount, is_active, raw
	) VALUES (
		$1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''), NULLIF($7, ''), NULLIF($8, ''),
		NULLIF($9, ''), $10, $11,
		ST_MakeValid(ST_SetSRID(ST_GeomFromGeoJSON($12), 4326)),
		$13, $14, now(), NULLIF($15, ''), NULLIF($16, ''), NULLIF($17, ''), TRUE, $18
	)
	ON CONFLICT (nws_id) DO UPDATE SET
		event = EXCLUDED.event,
		severity = EXCLUDED.severity,
		urgency = EXCLUDED.urgency,
		certainty = EXCLUDED.certainty,
		headline = EXCLUDED.headline,
		description = EXCLUDED.description,
		instruction = EXCLUDED.instruction,
		area_description = EXCLUDED.area_description,
		affected_zones = EXCLUDED.affected_zones,
		geometry = COALESCE(EXCLUDED.geometry, weather_alerts.geometry),
		onset = EXCLUDED.onset,
		expires = EXCLUDED.expires,
		last_updated_at = now(),
		sender_name = EXCLUDED.sender_name,
		wind_speed = EXCLUDED.wind_speed,
		snow_amount = EXCLUDED.snow_amount,
		is_active = TRUE,
		raw = EXCLUDED.raw
	RETURNING nws_id, (xmax = 0) AS inserted`

// UpsertBatch inserts or refreshes alerts. A refresh without geometry
// keeps any geometry already resolved by an earlier run.
func (s *WeatherAlertStore) UpsertBatch(ctx context.Context, alerts []*hazard.WeatherAlert) (*UpsertResult, error) {
	res := &UpsertResult{}
	if len(alerts) == 0 {
		return res, nil
	}

	b := &pgx.Batch{}
	for _, a := range alerts {
		var geomArg *string
		if len(a.Geometry) > 0 {
			g := string(a.Geometry)
			geomArg = &g
		}
		zones := a.AffectedZones
		if zones == nil {
			zones = []string{}
		}
		b.Queue(upsertWeatherAlertSQL,
			uuid.NewString(), a.NWSID, a.Event, a.Severity, a.Urgency, a.Certainty,
			a.Headline, a.Description, a.Instruction, a.AreaDescription, zones,
			geomArg, a.Onset, a.Expires, a.SenderName, a.WindSpeed, a.SnowAmount, a.Raw,
		)
	}

	br := s.pool.SendBatch(ctx, b)
	defer br.Close()

	for range alerts {
		var key string
		var inserted bool
		if err := br.QueryRow().Scan(&key, &inserted); err != nil {
			return nil, fmt.Errorf("upserting weather alert: %w", err)
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

// DeactivateMissing marks active alerts inactive when their nws_id is not
// in keep.
func (s *WeatherAlertStore) DeactivateMissing(ctx context.Context, keep []string) (int64, error) {
	if keep == nil {
		keep = []string{}
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE weather_alerts
		SET is_active = FALSE
		WHERE is_active AND NOT (nws_id = ANY($1))`, keep)
	if err != nil {
		return 0, fmt.Errorf("deactivating missing weather alerts: %w", err)
	}
	return tag.RowsAffected(), nil
}

// DeactivateExpired marks active alerts inactive once their expiry passes.
func (s *WeatherAlertStore) DeactivateExpired(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE weather_alerts
		SET is_active = FALSE
		WHERE is_active AND expires IS NOT NULL AND expires < now()`)
	if err != nil {
		return 0, fmt.Errorf("deactivating expired weather alerts: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Purge deletes alerts whose expiry is further in the past than the given
// age.
func (s *WeatherAlertStore) Purge(ctx context.Context, olderThan time.Duration) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM weather_alerts
		WHERE expires IS NOT NULL AND expires < now() - make_interval(secs => $1)`,
		olderThan.Seconds())
	if err != nil {
		return 0, fmt.Errorf("purging weather alerts: %w", err)
	}
	return tag.RowsAffected(), nil
}

func alertWhere(f AlertFilter) (string, []any) {
	conds := []string{"TRUE"}
	var args []any

	if f.ActiveOnly {
		conds = append(conds, "is_active AND (expires IS NULL OR expires > now())")
	}
	if f.BBox != nil {
		args = append(args, f.BBox.West, f.BBox.South, f.BBox.East, f.BBox.North)
		conds = append(conds, fmt.Sprintf(
			"geometry IS NOT NULL AND geometry && ST_MakeEnvelope($%d, $%d, $%d, $%d, 4326)",
			len(args)-3, len(args)-2, len(args)-1, len(args)))
	}
	if len(f.Severities) > 0 {
		args = append(args, f.Severities)
		conds = append(conds, fmt.Sprintf("severity = ANY($%d)", len(args)))
	}

	return strings.Join(conds, " AND "), args
}

// List returns alerts matching the filter plus the unpaginated total.
func (s *WeatherAlertStore) List(ctx context.Context, f AlertFilter) ([]*hazard.WeatherAlert, int, error) {
	where, args := alertWhere(f)

	var total int
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM weather_alerts WHERE "+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting weather alerts: %w", err)
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 500
	}
	args = append(args, limit, f.Offset)
	q := fmt.Sprintf(
		"SELECT %s FROM weather_alerts WHERE %s ORDER BY last_updated_at DESC LIMIT $%d OFFSET $%d",
		weatherAlertCols, where, len(args)-1, len(args))

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("listing weather alerts: %w", err)
	}
	defer rows.Close()

	var alerts []*hazard.WeatherAlert
	for rows.Next() {
		a, err := scanWeatherAlert(rows)
		if err != nil {
			return nil, 0, err
		}
		alerts = append(alerts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("reading weather alerts: %w", err)
	}
	return alerts, total, nil
}

// InCorridor returns active, geometry-bearing alerts intersecting the
// corridor with their positions along the route.
func (s *WeatherAlertStore) InCorridor(ctx context.Context, corridorGeoJSON json.RawMessage, routeWKT string, limit int) ([]*hazard.WeatherAlert, []float64, error) {
	q := fmt.Sprintf(`
		SELECT %s,
			ST_LineLocatePoint(ST_GeomFromText($2, 4326), ST_Centroid(geometry)) AS pos
		FROM weather_alerts
		WHERE is_active AND (expires IS NULL OR expires > now())
		  AND geometry IS NOT NULL
		  AND ST_Intersects(geometry, ST_SetSRID(ST_GeomFromGeoJSON($1), 4326))
		ORDER BY pos
		LIMIT $3`, weatherAlertCols)

	rows, err := s.pool.Query(ctx, q, string(corridorGeoJSON), routeWKT, limit)
	if err != nil {
		return nil, nil, fmt.Errorf("querying corridor weather alerts: %w", err)
	}
	defer rows.Close()

	var alerts []*hazard.WeatherAlert
	var positions []float64
	for rows.Next() {
		a, pos, err := scanWeatherAlertPos(rows)
		if err != nil {
			return nil, nil, err
		}
		alerts = append(alerts, a)
		positions = append(positions, pos)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("reading corridor weather alerts: %w", err)
	}
	return alerts, positions, nil
}

func scanWeatherAlert(rows pgx.Rows) (*hazard.WeatherAlert, error) {
	a, _, err := scanWeatherAlertInner(rows, false)
	return a, err
}

func scanWeatherAlertPos(rows pgx.Rows) (*hazard.WeatherAlert, float64, error) {
	return scanWeatherAlertInner(rows, true)
}

func scanWeatherAlertInner(rows pgx.Rows, withPos bool) (*hazard.WeatherAlert, float64, error) {
	var a hazard.WeatherAlert
	var geomStr *string
	var pos float64

	dest := []any{
		&a.ID, &a.NWSID, &a.Event, &a.Severity, &a.Urgency, &a.Certainty,
		&a.Headline, &a.Description, &a.Instruction, &a.AreaDescription,
		&a.AffectedZones, &geomStr, &a.Onset, &a.Expires, &a.LastUpdatedAt,
		&a.SenderName, &a.WindSpeed, &a.SnowAmount, &a.IsActive, &a.CreatedAt,
	}
	if withPos {
		dest = append(dest, &pos)
	}
	if err := rows.Scan(dest...); err != nil {
		return nil, 0, fmt.Errorf("scanning weather alert: %w", err)
	}
	if geomStr != nil {
		a.Geometry = json.RawMessage(*geomStr)
	}
	return &a, pos, nil
}

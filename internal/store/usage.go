package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// UsageStore appends analytics events. Writes are best effort; callers log
// failures instead of propagating them.
type UsageStore struct {
	pool *pgxpool.Pool
}

// Usage event types recorded across the service.
const (
	UsageRouteCheck   = "ROUTE_CHECK"
	UsageReportSubmit = "REPORT_SUBMIT"
	UsageFeedIngest   = "FEED_INGEST"
	UsageFeedError    = "FEED_ERROR"
	UsageGeocode      = "GEOCODE"
	UsageRegister     = "USER_REGISTER"
)

// Append records one usage event. Metadata must be JSON-encodable.
func (s *UsageStore) Append(ctx context.Context, eventType string, metadata map[string]any, userID string) error {
	md, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("encoding usage metadata: %w", err)
	}
	var uid *string
	if userID != "" {
		uid = &userID
	}
	if _, err := s.pool.Exec(ctx,
		`INSERT INTO usage_events (event_type, metadata, user_id) VALUES ($1, $2, $3)`,
		eventType, md, uid); err != nil {
		return fmt.Errorf("appending usage event: %w", err)
	}
	return nil
}

// CountSince returns per-type event counts for simple admin reporting.
func (s *UsageStore) CountSince(ctx context.Context, sinceSeconds int64) (map[string]int, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT event_type, COUNT(*)
		FROM usage_events
		WHERE created_at > now() - make_interval(secs => $1)
		GROUP BY event_type`, sinceSeconds)
	if err != nil {
		return nil, fmt.Errorf("counting usage events: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var typ string
		var n int
		if err := rows.Scan(&typ, &n); err != nil {
			return nil, fmt.Errorf("scanning usage count: %w", err)
		}
		counts[typ] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading usage counts: %w", err)
	}
	return counts, nil
}

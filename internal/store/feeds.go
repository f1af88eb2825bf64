package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// FeedStore tracks per-feed health rows and the append-only ingestion log.
type FeedStore struct {
	pool *pgxpool.Pool
}

// UpsertSuccess records a completed ingestion run. The fetch time feeds a
// rolling average weighted toward history so one slow poll does not spike
// the number.
func (s *FeedStore) UpsertSuccess(ctx context.Context, feedName, feedURL, state, status string, recordCount, fetchMs, intervalMinutes int) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO feed_statuses (
			feed_name, feed_url, state, status, last_success_at,
			record_count, avg_fetch_ms, refresh_interval_minutes
		) VALUES ($1, $2, NULLIF($3, ''), $4, now(), $5, $6, $7)
		ON CONFLICT (feed_name) DO UPDATE SET
			feed_url = EXCLUDED.feed_url,
			state = EXCLUDED.state,
			status = EXCLUDED.status,
			last_success_at = now(),
			last_error_message = NULL,
			record_count = EXCLUDED.record_count,
			avg_fetch_ms = CASE
				WHEN feed_statuses.avg_fetch_ms IS NULL THEN EXCLUDED.avg_fetch_ms
				ELSE (feed_statuses.avg_fetch_ms * 4 + EXCLUDED.avg_fetch_ms) / 5
			END,
			refresh_interval_minutes = EXCLUDED.refresh_interval_minutes,
			updated_at = now()`,
		feedName, feedURL, state, status, recordCount, fetchMs, intervalMinutes)
	if err != nil {
		return fmt.Errorf("recording feed success: %w", err)
	}
	return nil
}

// UpsertFailure marks a feed down after a failed run. Success fields are
// left alone so the last good fetch stays visible.
func (s *FeedStore) UpsertFailure(ctx context.Context, feedName, feedURL, state, errMsg string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO feed_statuses (
			feed_name, feed_url, state, status, last_error_at, last_error_message
		) VALUES ($1, $2, NULLIF($3, ''), $4, now(), $5)
		ON CONFLICT (feed_name) DO UPDATE SET
			feed_url = EXCLUDED.feed_url,
			state = EXCLUDED.state,
			status = EXCLUDED.status,
			last_error_at = now(),
			last_error_message = EXCLUDED.last_error_message,
			updated_at = now()`,
		feedName, feedURL, state, FeedDown, errMsg)
	if err != nil {
		return fmt.Errorf("recording feed failure: %w", err)
	}
	return nil
}

// SetEnabled flips a feed on or off. Disabled feeds are skipped by the
// ingestion engine but keep their history.
func (s *FeedStore) SetEnabled(ctx context.Context, feedName string, enabled bool) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE feed_statuses SET is_enabled = $2, updated_at = now() WHERE feed_name = $1`,
		feedName, enabled)
	if err != nil {
		return fmt.Errorf("toggling feed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListStatuses returns every known feed ordered by name.
func (s *FeedStore) ListStatuses(ctx context.Context) ([]*FeedStatus, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT feed_name, feed_url, COALESCE(state, ''), status,
			last_success_at, last_error_at, COALESCE(last_error_message, ''),
			record_count, avg_fetch_ms, is_enabled, refresh_interval_minutes, updated_at
		FROM feed_statuses
		ORDER BY feed_name`)
	if err != nil {
		return nil, fmt.Errorf("listing feed statuses: %w", err)
	}
	defer rows.Close()

	var statuses []*FeedStatus
	for rows.Next() {
		var fs FeedStatus
		if err := rows.Scan(
			&fs.FeedName, &fs.FeedURL, &fs.State, &fs.Status,
			&fs.LastSuccessAt, &fs.LastErrorAt, &fs.LastErrorMessage,
			&fs.RecordCount, &fs.AvgFetchMs, &fs.IsEnabled,
			&fs.RefreshIntervalMinutes, &fs.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning feed status: %w", err)
		}
		statuses = append(statuses, &fs)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading feed statuses: %w", err)
	}
	return statuses, nil
}

// DisabledFeeds returns the names of feeds an operator has switched off.
func (s *FeedStore) DisabledFeeds(ctx context.Context) (map[string]bool, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT feed_name FROM feed_statuses WHERE NOT is_enabled`)
	if err != nil {
		return nil, fmt.Errorf("listing disabled feeds: %w", err)
	}
	defer rows.Close()

	disabled := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scanning feed name: %w", err)
		}
		disabled[name] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading disabled feeds: %w", err)
	}
	return disabled, nil
}

// AppendLog writes one audit row for an ingestion attempt, success or not.
func (s *FeedStore) AppendLog(ctx context.Context, l *IngestionLog) error {
	err := s.pool.QueryRow(ctx, `
		INSERT INTO ingestion_logs (
			feed_name, status, started_at, duration_ms,
			inserted_count, updated_count, deactivated_count, error_count, error_message
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULLIF($9, ''))
		RETURNING id, created_at`,
		l.FeedName, l.Status, l.StartedAt, l.DurationMs,
		l.InsertedCount, l.UpdatedCount, l.DeactivatedCount, l.ErrorCount, l.ErrorMessage,
	).Scan(&l.ID, &l.CreatedAt)
	if err != nil {
		return fmt.Errorf("appending ingestion log: %w", err)
	}
	return nil
}

// RecentLogs returns the newest log rows, optionally scoped to one feed.
func (s *FeedStore) RecentLogs(ctx context.Context, feedName string, limit int) ([]*IngestionLog, error) {
	if limit <= 0 {
		limit = 50
	}

	q := `
		SELECT id, feed_name, status, started_at, duration_ms,
			inserted_count, updated_count, deactivated_count, error_count,
			COALESCE(error_message, ''), created_at
		FROM ingestion_logs`
	var args []any
	if feedName != "" {
		q += " WHERE feed_name = $1"
		args = append(args, feedName)
	}
	args = append(args, limit)
	q += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d", len(args))

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("listing ingestion logs: %w", err)
	}
	defer rows.Close()

	var logs []*IngestionLog
	for rows.Next() {
		l, err := scanIngestionLog(rows)
		if err != nil {
			return nil, err
		}
		logs = append(logs, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading ingestion logs: %w", err)
	}
	return logs, nil
}

func scanIngestionLog(rows pgx.Rows) (*IngestionLog, error) {
	var l IngestionLog
	if err := rows.Scan(
		&l.ID, &l.FeedName, &l.Status, &l.StartedAt, &l.DurationMs,
		&l.InsertedCount, &l.UpdatedCount, &l.DeactivatedCount, &l.ErrorCount,
		&l.ErrorMessage, &l.CreatedAt,
	); err != nil {
		return nil, fmt.Errorf("scanning ingestion log: %w", err)
	}
	return &l, nil
}

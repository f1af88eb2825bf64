package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/roadpulse/server/internal/hazard"
)

// ReportStore persists community reports and their votes.
type ReportStore struct {
	pool *pgxpool.Pool
}

// softModeration hides reports the community has buried or a moderator has
// removed.
const softModeration = "(upvotes - downvotes) >= -2 AND moderation_status <> 'removed'"

const reportCols = `id, COALESCE(user_id::text, ''), type, title, COALESCE(description, ''),
	ST_Y(location), ST_X(location), ST_AsGeoJSON(location),
	COALESCE(location_description, ''), COALESCE(route_name, ''), COALESCE(state, ''),
	severity, upvotes, downvotes, moderation_status, is_active, expires_at, created_at`

// Create persists a new report. The caller is responsible for coordinate
// validation and rate limiting.
func (s *ReportStore) Create(ctx context.Context, r *hazard.CommunityReport) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	var userID *string
	if r.UserID != "" {
		userID = &r.UserID
	}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO community_reports (
			id, user_id, type, title, description, location, location_description,
			route_name, state, severity, moderation_status, is_active, expires_at
		) VALUES (
			$1, $2, $3, $4, NULLIF($5, ''),
			ST_SetSRID(ST_MakePoint($6, $7), 4326),
			NULLIF($8, ''), NULLIF($9, ''), NULLIF($10, ''), $11, $12, TRUE, $13
		)
		RETURNING created_at`,
		r.ID, userID, r.Type, r.Title, r.Description, r.Longitude, r.Latitude,
		r.LocationDescription, r.RouteName, strings.ToUpper(r.State), r.Severity,
		hazard.ModerationPending, r.ExpiresAt,
	).Scan(&r.CreatedAt)
	if err != nil {
		return fmt.Errorf("creating report: %w", err)
	}
	r.ModerationStatus = hazard.ModerationPending
	r.IsActive = true
	return nil
}

// GetByID fetches one report regardless of moderation state.
func (s *ReportStore) GetByID(ctx context.Context, id string) (*hazard.CommunityReport, error) {
	rows, err := s.pool.Query(ctx,
		fmt.Sprintf("SELECT %s FROM community_reports WHERE id = $1", reportCols), id)
	if err != nil {
		return nil, fmt.Errorf("fetching report: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("fetching report: %w", err)
		}
		return nil, ErrNotFound
	}
	return scanReport(rows)
}

func reportWhere(f ReportFilter) (string, []any) {
	conds := []string{softModeration}
	var args []any

	if f.ActiveOnly {
		conds = append(conds, "is_active AND (expires_at IS NULL OR expires_at > now())")
	}
	if f.BBox != nil {
		args = append(args, f.BBox.West, f.BBox.South, f.BBox.East, f.BBox.North)
		conds = append(conds, fmt.Sprintf(
			"location && ST_MakeEnvelope($%d, $%d, $%d, $%d, 4326)",
			len(args)-3, len(args)-2, len(args)-1, len(args)))
	}
	if f.Type != "" {
		args = append(args, f.Type)
		conds = append(conds, fmt.Sprintf("type = $%d", len(args)))
	}
	if f.State != "" {
		args = append(args, strings.ToUpper(f.State))
		conds = append(conds, fmt.Sprintf("state = $%d", len(args)))
	}

	return strings.Join(conds, " AND "), args
}

// List returns reports matching the filter plus the unpaginated total.
// Buried and removed reports never surface here.
func (s *ReportStore) List(ctx context.Context, f ReportFilter) ([]*hazard.CommunityReport, int, error) {
	where, args := reportWhere(f)

	var total int
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM community_reports WHERE "+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting reports: %w", err)
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit, f.Offset)
	q := fmt.Sprintf(
		"SELECT %s FROM community_reports WHERE %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d",
		reportCols, where, len(args)-1, len(args))

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("listing reports: %w", err)
	}
	defer rows.Close()

	var reports []*hazard.CommunityReport
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			return nil, 0, err
		}
		reports = append(reports, r)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("reading reports: %w", err)
	}
	return reports, total, nil
}

// InCorridor returns live, unburied reports inside the corridor with their
// positions along the route.
func (s *ReportStore) InCorridor(ctx context.Context, corridorGeoJSON json.RawMessage, routeWKT string, limit int) ([]*hazard.CommunityReport, []float64, error) {
	q := fmt.Sprintf(`
		SELECT %s,
			ST_LineLocatePoint(ST_GeomFromText($2, 4326), location) AS pos
		FROM community_reports
		WHERE is_active AND (expires_at IS NULL OR expires_at > now())
		  AND %s
		  AND ST_Intersects(location, ST_SetSRID(ST_GeomFromGeoJSON($1), 4326))
		ORDER BY pos
		LIMIT $3`, reportCols, softModeration)

	rows, err := s.pool.Query(ctx, q, string(corridorGeoJSON), routeWKT, limit)
	if err != nil {
		return nil, nil, fmt.Errorf("querying corridor reports: %w", err)
	}
	defer rows.Close()

	var reports []*hazard.CommunityReport
	var positions []float64
	for rows.Next() {
		r, pos, err := scanReportPos(rows)
		if err != nil {
			return nil, nil, err
		}
		reports = append(reports, r)
		positions = append(positions, pos)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("reading corridor reports: %w", err)
	}
	return reports, positions, nil
}

// voteAction describes what a new vote does to the caller's prior vote.
type voteAction int

const (
	voteInsert voteAction = iota // no prior vote
	voteRemove                   // same vote again, toggle off
	voteSwitch                   // opposite vote, move it
)

func decideVote(prior *string, vote string) voteAction {
	switch {
	case prior == nil:
		return voteInsert
	case *prior == vote:
		return voteRemove
	default:
		return voteSwitch
	}
}

// counterCol maps a vote direction to its counter column. vote is always
// validated before this is called.
func counterCol(vote string) string {
	if vote == "up" {
		return "upvotes"
	}
	return "downvotes"
}

// Vote applies one vote toggle atomically. The report row is locked first
// so concurrent votes serialize.
func (s *ReportStore) Vote(ctx context.Context, reportID, userID, vote string) (*VoteResult, error) {
	if vote != "up" && vote != "down" {
		return nil, fmt.Errorf("invalid vote %q", vote)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("beginning vote tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var up, down int
	err = tx.QueryRow(ctx,
		`SELECT upvotes, downvotes FROM community_reports WHERE id = $1 FOR UPDATE`,
		reportID).Scan(&up, &down)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("locking report: %w", err)
	}

	var prior *string
	err = tx.QueryRow(ctx,
		`SELECT vote FROM report_votes WHERE report_id = $1 AND user_id = $2`,
		reportID, userID).Scan(&prior)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("reading prior vote: %w", err)
	}

	var userVote *string
	switch decideVote(prior, vote) {
	case voteInsert:
		if _, err := tx.Exec(ctx,
			`INSERT INTO report_votes (report_id, user_id, vote) VALUES ($1, $2, $3)`,
			reportID, userID, vote); err != nil {
			return nil, fmt.Errorf("inserting vote: %w", err)
		}
		if _, err := tx.Exec(ctx, fmt.Sprintf(
			`UPDATE community_reports SET %s = %s + 1 WHERE id = $1`,
			counterCol(vote), counterCol(vote)), reportID); err != nil {
			return nil, fmt.Errorf("incrementing counter: %w", err)
		}
		userVote = &vote

	case voteRemove:
		if _, err := tx.Exec(ctx,
			`DELETE FROM report_votes WHERE report_id = $1 AND user_id = $2`,
			reportID, userID); err != nil {
			return nil, fmt.Errorf("removing vote: %w", err)
		}
		if _, err := tx.Exec(ctx, fmt.Sprintf(
			`UPDATE community_reports SET %s = GREATEST(0, %s - 1) WHERE id = $1`,
			counterCol(vote), counterCol(vote)), reportID); err != nil {
			return nil, fmt.Errorf("decrementing counter: %w", err)
		}
		userVote = nil

	case voteSwitch:
		if _, err := tx.Exec(ctx,
			`UPDATE report_votes SET vote = $3, created_at = now()
			 WHERE report_id = $1 AND user_id = $2`,
			reportID, userID, vote); err != nil {
			return nil, fmt.Errorf("switching vote: %w", err)
		}
		if _, err := tx.Exec(ctx, fmt.Sprintf(
			`UPDATE community_reports
			 SET %s = %s + 1, %s = GREATEST(0, %s - 1)
			 WHERE id = $1`,
			counterCol(vote), counterCol(vote), counterCol(*prior), counterCol(*prior)),
			reportID); err != nil {
			return nil, fmt.Errorf("moving counters: %w", err)
		}
		userVote = &vote
	}

	res := &VoteResult{UserVote: userVote}
	if err := tx.QueryRow(ctx,
		`SELECT upvotes, downvotes FROM community_reports WHERE id = $1`,
		reportID).Scan(&res.Upvotes, &res.Downvotes); err != nil {
		return nil, fmt.Errorf("reading counters: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing vote: %w", err)
	}
	return res, nil
}

// ExpireOld deactivates reports whose expiry has passed. Runs on every
// scheduler tick.
func (s *ReportStore) ExpireOld(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE community_reports
		SET is_active = FALSE
		WHERE is_active AND expires_at IS NOT NULL AND expires_at < now()`)
	if err != nil {
		return 0, fmt.Errorf("expiring reports: %w", err)
	}
	return tag.RowsAffected(), nil
}

// SetModeration updates the review state. Removing a report also
// deactivates it.
func (s *ReportStore) SetModeration(ctx context.Context, id string, status hazard.ModerationStatus) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE community_reports
		SET moderation_status = $2,
		    is_active = CASE WHEN $2 = 'removed' THEN FALSE ELSE is_active END
		WHERE id = $1`, id, status)
	if err != nil {
		return fmt.Errorf("setting moderation status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanReport(rows pgx.Rows) (*hazard.CommunityReport, error) {
	r, _, err := scanReportInner(rows, false)
	return r, err
}

func scanReportPos(rows pgx.Rows) (*hazard.CommunityReport, float64, error) {
	return scanReportInner(rows, true)
}

func scanReportInner(rows pgx.Rows, withPos bool) (*hazard.CommunityReport, float64, error) {
	var r hazard.CommunityReport
	var locStr string
	var pos float64

	dest := []any{
		&r.ID, &r.UserID, &r.Type, &r.Title, &r.Description,
		&r.Latitude, &r.Longitude, &locStr,
		&r.LocationDescription, &r.RouteName, &r.State,
		&r.Severity, &r.Upvotes, &r.Downvotes, &r.ModerationStatus,
		&r.IsActive, &r.ExpiresAt, &r.CreatedAt,
	}
	if withPos {
		dest = append(dest, &pos)
	}
	if err := rows.Scan(dest...); err != nil {
		return nil, 0, fmt.Errorf("scanning report: %w", err)
	}
	r.Location = json.RawMessage(locStr)
	return &r, pos, nil
}

package services

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/roadpulse/server/internal/cache"
	"github.com/roadpulse/server/internal/config"
	"github.com/roadpulse/server/internal/errcode"
	"github.com/roadpulse/server/internal/hazard"
	"github.com/roadpulse/server/internal/lib/geo"
	"github.com/roadpulse/server/internal/store"
)

// ReportStore is the slice of the report store the service uses.
type ReportStore interface {
	Create(ctx context.Context, r *hazard.CommunityReport) error
	GetByID(ctx context.Context, id string) (*hazard.CommunityReport, error)
	List(ctx context.Context, f store.ReportFilter) ([]*hazard.CommunityReport, int, error)
	Vote(ctx context.Context, reportID, userID, vote string) (*store.VoteResult, error)
}

// reportExpiry gives each report type its shelf life. A wait time is stale
// within the hour; a closure update is useful for a whole shift.
var reportExpiry = map[hazard.ReportType]time.Duration{
	hazard.ReportRoadHazard:       4 * time.Hour,
	hazard.ReportClosureUpdate:    8 * time.Hour,
	hazard.ReportWeatherCondition: 2 * time.Hour,
	hazard.ReportWaitTime:         time.Hour,
	hazard.ReportParkingFull:      2 * time.Hour,
	hazard.ReportOther:            4 * time.Hour,
}

// reportSeverity is the default severity per type when the reporter does
// not pick one.
var reportSeverity = map[hazard.ReportType]hazard.Severity{
	hazard.ReportRoadHazard:       hazard.SeverityWarning,
	hazard.ReportClosureUpdate:    hazard.SeverityWarning,
	hazard.ReportWeatherCondition: hazard.SeverityAdvisory,
	hazard.ReportWaitTime:         hazard.SeverityInfo,
	hazard.ReportParkingFull:      hazard.SeverityAdvisory,
	hazard.ReportOther:            hazard.SeverityInfo,
}

// ReportService handles the community report lifecycle: create, vote,
// list. Expiry sweeps run from the ingestion cycle, not here.
type ReportService struct {
	reports ReportStore
	gate    *cache.Gate
	usage   UsageStore
	logger  *zap.Logger
	limit   config.RateWindow
}

func NewReportService(reports ReportStore, gate *cache.Gate, usage UsageStore, logger *zap.Logger, limit config.RateWindow) *ReportService {
	if limit.Limit <= 0 {
		limit = config.RateWindow{Limit: 10, Window: time.Hour}
	}
	return &ReportService{reports: reports, gate: gate, usage: usage, logger: logger, limit: limit}
}

// CreateReportInput is a parsed report submission.
type CreateReportInput struct {
	Type                string  `json:"type" validate:"required,oneof=ROAD_HAZARD CLOSURE_UPDATE WEATHER_CONDITION WAIT_TIME PARKING_FULL OTHER"`
	Title               string  `json:"title" validate:"required,max=200"`
	Description         string  `json:"description" validate:"max=2000"`
	Latitude            float64 `json:"latitude"`
	Longitude           float64 `json:"longitude"`
	LocationDescription string  `json:"locationDescription" validate:"max=500"`
	RouteName           string  `json:"routeName" validate:"max=100"`
	State               string  `json:"state" validate:"omitempty,len=2,alpha"`
	Severity            string  `json:"severity" validate:"omitempty,oneof=CRITICAL WARNING ADVISORY INFO"`
}

// Create validates and persists a new report. userID may be empty for
// anonymous submissions; the rate gate then keys on the client IP.
func (s *ReportService) Create(ctx context.Context, userID, clientIP string, in CreateReportInput) (*hazard.CommunityReport, error) {
	if err := validate.Struct(in); err != nil {
		return nil, invalidInput(err)
	}
	if !geo.InUSBounds(in.Latitude, in.Longitude) {
		return nil, errcode.New(errcode.InvalidCoords, "coordinates are outside US coverage").
			WithDetails(map[string]any{"latitude": in.Latitude, "longitude": in.Longitude})
	}

	identity := userID
	if identity == "" {
		identity = "ip:" + clientIP
	}
	if d := s.gate.Allow(ctx, cache.ReportsKey(identity), s.limit.Limit, s.limit.Window); !d.Allowed {
		return nil, rateLimited("report limit reached, try again later", d)
	}

	typ := hazard.ReportType(in.Type)
	severity := hazard.Severity(in.Severity)
	if severity == "" {
		severity = reportSeverity[typ]
	}
	expires := time.Now().UTC().Add(reportExpiry[typ])

	report := &hazard.CommunityReport{
		UserID:              userID,
		Type:                typ,
		Title:               in.Title,
		Description:         in.Description,
		Latitude:            in.Latitude,
		Longitude:           in.Longitude,
		LocationDescription: in.LocationDescription,
		RouteName:           in.RouteName,
		State:               in.State,
		Severity:            severity,
		ExpiresAt:           &expires,
	}
	if err := s.reports.Create(ctx, report); err != nil {
		return nil, errcode.Wrap(errcode.Internal, "saving report", err)
	}

	recordUsage(ctx, s.logger, s.usage, store.UsageReportSubmit, map[string]any{
		"reportId": report.ID,
		"type":     string(typ),
	}, userID)
	s.logger.Info("report created",
		zap.String("id", report.ID),
		zap.String("type", string(typ)),
		zap.String("severity", string(severity)))
	return report, nil
}

// Get fetches one report by id.
func (s *ReportService) Get(ctx context.Context, id string) (*hazard.CommunityReport, error) {
	report, err := s.reports.GetByID(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, errcode.Newf(errcode.NotFound, "report %s not found", id)
	}
	if err != nil {
		return nil, errcode.Wrap(errcode.Internal, "fetching report", err)
	}
	return report, nil
}

// ReportQuery is a parsed reports listing request.
type ReportQuery struct {
	BBox       *geo.BBox
	Type       string
	State      string
	ActiveOnly bool
	Limit      int
	Offset     int
}

// List returns visible reports matching the query plus the unpaginated
// total. Buried and removed reports are filtered in the store.
func (s *ReportService) List(ctx context.Context, q ReportQuery) ([]*hazard.CommunityReport, int, error) {
	reports, total, err := s.reports.List(ctx, store.ReportFilter{
		BBox:       q.BBox,
		ActiveOnly: q.ActiveOnly,
		Type:       q.Type,
		State:      q.State,
		Limit:      q.Limit,
		Offset:     q.Offset,
	})
	if err != nil {
		return nil, 0, errcode.Wrap(errcode.QueryFailed, "listing reports", err)
	}
	return reports, total, nil
}

// Vote applies one up or down vote. Repeating a vote removes it; voting
// the other way switches it.
func (s *ReportService) Vote(ctx context.Context, reportID, userID, vote string) (*store.VoteResult, error) {
	if userID == "" {
		return nil, errcode.New(errcode.Unauthorized, "voting requires a signed-in user")
	}
	if vote != "up" && vote != "down" {
		return nil, errcode.Newf(errcode.BadRequest, "vote must be up or down").
			WithDetails(map[string]any{"field": "vote"})
	}

	res, err := s.reports.Vote(ctx, reportID, userID, vote)
	if errors.Is(err, store.ErrNotFound) {
		return nil, errcode.Newf(errcode.NotFound, "report %s not found", reportID)
	}
	if err != nil {
		return nil, errcode.Wrap(errcode.Internal, "recording vote", err)
	}
	return res, nil
}

package services

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/roadpulse/server/internal/config"
	"github.com/roadpulse/server/internal/errcode"
	"github.com/roadpulse/server/internal/hazard"
	"github.com/roadpulse/server/internal/store"
)

type fakeReportStore struct {
	created   []*hazard.CommunityReport
	createErr error
	byID      map[string]*hazard.CommunityReport
	filters   []store.ReportFilter
	reports   []*hazard.CommunityReport
	total     int
	listErr   error
	voteRes   *store.VoteResult
	voteErr   error
	votes     [][3]string
}

func (f *fakeReportStore) Create(_ context.Context, r *hazard.CommunityReport) error {
	if f.createErr != nil {
		return f.createErr
	}
	r.ID = fmt.Sprintf("r-%d", len(f.created)+1)
	r.ModerationStatus = hazard.ModerationPending
	r.IsActive = true
	r.CreatedAt = time.Now().UTC()
	f.created = append(f.created, r)
	return nil
}

func (f *fakeReportStore) GetByID(_ context.Context, id string) (*hazard.CommunityReport, error) {
	r, ok := f.byID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return r, nil
}

func (f *fakeReportStore) List(_ context.Context, filter store.ReportFilter) ([]*hazard.CommunityReport, int, error) {
	f.filters = append(f.filters, filter)
	return f.reports, f.total, f.listErr
}

func (f *fakeReportStore) Vote(_ context.Context, reportID, userID, vote string) (*store.VoteResult, error) {
	f.votes = append(f.votes, [3]string{reportID, userID, vote})
	if f.voteErr != nil {
		return nil, f.voteErr
	}
	return f.voteRes, nil
}

func newReportFixture(t *testing.T, limit config.RateWindow) (*ReportService, *fakeReportStore, *fakeUsage) {
	t.Helper()
	_, _, gate := newTestGate(t)
	reports := &fakeReportStore{byID: map[string]*hazard.CommunityReport{}}
	usage := &fakeUsage{}
	return NewReportService(reports, gate, usage, zap.NewNop(), limit), reports, usage
}

func validReportInput() CreateReportInput {
	return CreateReportInput{
		Type:      "ROAD_HAZARD",
		Title:     "Shredded tire blocking right lane",
		Latitude:  39.7,
		Longitude: -104.9,
		State:     "CO",
	}
}

func TestCreateReportDefaults(t *testing.T) {
	svc, reports, usage := newReportFixture(t, config.RateWindow{})

	before := time.Now().UTC()
	report, err := svc.Create(context.Background(), "user-1", "1.2.3.4", validReportInput())
	require.NoError(t, err)

	assert.Equal(t, "r-1", report.ID)
	assert.Equal(t, hazard.ReportRoadHazard, report.Type)
	assert.Equal(t, hazard.SeverityWarning, report.Severity, "road hazards default to warning")
	assert.Equal(t, hazard.ModerationPending, report.ModerationStatus)
	assert.True(t, report.IsActive)
	require.NotNil(t, report.ExpiresAt)
	assert.WithinDuration(t, before.Add(4*time.Hour), *report.ExpiresAt, time.Minute)

	require.Len(t, reports.created, 1)
	submits := usage.byType(store.UsageReportSubmit)
	require.Len(t, submits, 1)
	assert.Equal(t, "user-1", submits[0].userID)
	assert.Equal(t, "r-1", submits[0].metadata["reportId"])
}

func TestCreateReportPerTypeExpiry(t *testing.T) {
	tests := []struct {
		typ   string
		hours time.Duration
	}{
		{"WAIT_TIME", time.Hour},
		{"WEATHER_CONDITION", 2 * time.Hour},
		{"CLOSURE_UPDATE", 8 * time.Hour},
		{"OTHER", 4 * time.Hour},
	}
	for _, tt := range tests {
		t.Run(tt.typ, func(t *testing.T) {
			svc, _, _ := newReportFixture(t, config.RateWindow{})
			in := validReportInput()
			in.Type = tt.typ

			report, err := svc.Create(context.Background(), "user-1", "1.2.3.4", in)
			require.NoError(t, err)
			assert.WithinDuration(t, time.Now().UTC().Add(tt.hours), *report.ExpiresAt, time.Minute)
		})
	}
}

func TestCreateReportSeverityOverride(t *testing.T) {
	svc, _, _ := newReportFixture(t, config.RateWindow{})
	in := validReportInput()
	in.Severity = "CRITICAL"

	report, err := svc.Create(context.Background(), "user-1", "1.2.3.4", in)
	require.NoError(t, err)
	assert.Equal(t, hazard.SeverityCritical, report.Severity)
}

func TestCreateReportValidation(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(*CreateReportInput)
		wantCode errcode.Code
		field    string
	}{
		{
			name:     "missing title",
			mutate:   func(in *CreateReportInput) { in.Title = "" },
			wantCode: errcode.MissingFields,
			field:    "title",
		},
		{
			name:     "unknown type",
			mutate:   func(in *CreateReportInput) { in.Type = "UFO_SIGHTING" },
			wantCode: errcode.BadRequest,
			field:    "type",
		},
		{
			name:     "bad severity",
			mutate:   func(in *CreateReportInput) { in.Severity = "Severe" },
			wantCode: errcode.BadRequest,
			field:    "severity",
		},
		{
			name:     "numeric state",
			mutate:   func(in *CreateReportInput) { in.State = "C0" },
			wantCode: errcode.BadRequest,
			field:    "state",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, reports, _ := newReportFixture(t, config.RateWindow{})
			in := validReportInput()
			tt.mutate(&in)

			_, err := svc.Create(context.Background(), "user-1", "1.2.3.4", in)
			assertCode(t, err, tt.wantCode)
			details, ok := errcode.DetailsOf(err).(map[string]any)
			require.True(t, ok)
			assert.Equal(t, tt.field, details["field"])
			assert.Empty(t, reports.created)
		})
	}
}

func TestCreateReportRejectsNonUSCoordinates(t *testing.T) {
	svc, _, _ := newReportFixture(t, config.RateWindow{})
	in := validReportInput()
	in.Latitude, in.Longitude = 48.85, 2.35

	_, err := svc.Create(context.Background(), "user-1", "1.2.3.4", in)
	assertCode(t, err, errcode.InvalidCoords)
}

func TestCreateReportRateLimit(t *testing.T) {
	svc, reports, _ := newReportFixture(t, config.RateWindow{Limit: 2, Window: time.Hour})

	for i := 0; i < 2; i++ {
		_, err := svc.Create(context.Background(), "user-1", "1.2.3.4", validReportInput())
		require.NoError(t, err)
	}

	_, err := svc.Create(context.Background(), "user-1", "1.2.3.4", validReportInput())
	assertCode(t, err, errcode.RateLimited)
	details, ok := errcode.DetailsOf(err).(map[string]any)
	require.True(t, ok)
	assert.Positive(t, details["retryAfter"])
	assert.Len(t, reports.created, 2)

	// A different user is unaffected.
	_, err = svc.Create(context.Background(), "user-2", "1.2.3.4", validReportInput())
	require.NoError(t, err)
}

func TestCreateReportAnonymousGateKeysOnIP(t *testing.T) {
	svc, _, _ := newReportFixture(t, config.RateWindow{Limit: 1, Window: time.Hour})

	_, err := svc.Create(context.Background(), "", "9.9.9.9", validReportInput())
	require.NoError(t, err)

	_, err = svc.Create(context.Background(), "", "9.9.9.9", validReportInput())
	assertCode(t, err, errcode.RateLimited)

	_, err = svc.Create(context.Background(), "", "8.8.8.8", validReportInput())
	require.NoError(t, err, "another address gets its own window")
}

func TestVote(t *testing.T) {
	svc, reports, _ := newReportFixture(t, config.RateWindow{})
	up := "up"
	reports.voteRes = &store.VoteResult{Upvotes: 3, Downvotes: 1, UserVote: &up}

	res, err := svc.Vote(context.Background(), "r-1", "user-1", "up")
	require.NoError(t, err)
	assert.Equal(t, 3, res.Upvotes)
	assert.Equal(t, [][3]string{{"r-1", "user-1", "up"}}, reports.votes)
}

func TestVoteValidation(t *testing.T) {
	svc, reports, _ := newReportFixture(t, config.RateWindow{})

	_, err := svc.Vote(context.Background(), "r-1", "", "up")
	assertCode(t, err, errcode.Unauthorized)

	_, err = svc.Vote(context.Background(), "r-1", "user-1", "sideways")
	assertCode(t, err, errcode.BadRequest)
	assert.Empty(t, reports.votes)

	reports.voteErr = store.ErrNotFound
	_, err = svc.Vote(context.Background(), "missing", "user-1", "down")
	assertCode(t, err, errcode.NotFound)
}

func TestGetReport(t *testing.T) {
	svc, reports, _ := newReportFixture(t, config.RateWindow{})
	reports.byID["r-7"] = &hazard.CommunityReport{ID: "r-7", Title: "Ice on the bridge"}

	report, err := svc.Get(context.Background(), "r-7")
	require.NoError(t, err)
	assert.Equal(t, "Ice on the bridge", report.Title)

	_, err = svc.Get(context.Background(), "r-8")
	assertCode(t, err, errcode.NotFound)
}

func TestListReportsQueryFailure(t *testing.T) {
	svc, reports, _ := newReportFixture(t, config.RateWindow{})
	reports.listErr = errors.New("connection reset")

	_, _, err := svc.List(context.Background(), ReportQuery{})
	assertCode(t, err, errcode.QueryFailed)
}

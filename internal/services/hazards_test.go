package services

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roadpulse/server/internal/errcode"
	"github.com/roadpulse/server/internal/hazard"
)

type fakeCorridorEvents struct {
	events []*hazard.RoadEvent
	pos    []float64
	limit  int
	err    error
}

func (f *fakeCorridorEvents) InCorridor(_ context.Context, _ json.RawMessage, _ string, limit int) ([]*hazard.RoadEvent, []float64, error) {
	f.limit = limit
	return f.events, f.pos, f.err
}

type fakeCorridorAlerts struct {
	alerts []*hazard.WeatherAlert
	pos    []float64
	limit  int
	err    error
}

func (f *fakeCorridorAlerts) InCorridor(_ context.Context, _ json.RawMessage, _ string, limit int) ([]*hazard.WeatherAlert, []float64, error) {
	f.limit = limit
	return f.alerts, f.pos, f.err
}

type fakeCorridorReports struct {
	reports []*hazard.CommunityReport
	pos     []float64
	limit   int
	err     error
}

func (f *fakeCorridorReports) InCorridor(_ context.Context, _ json.RawMessage, _ string, limit int) ([]*hazard.CommunityReport, []float64, error) {
	f.limit = limit
	return f.reports, f.pos, f.err
}

var testCorridor = json.RawMessage(`{"type":"Polygon","coordinates":[[[-105,39],[-104,39],[-104,40],[-105,40],[-105,39]]]}`)

const testRouteWKT = "LINESTRING(-105 39.5, -104 39.5)"

func TestQueryMergesAndOrdersByPosition(t *testing.T) {
	events := &fakeCorridorEvents{
		events: []*hazard.RoadEvent{{SourceEventID: "e-1", Severity: hazard.SeverityWarning}},
		pos:    []float64{0.9},
	}
	alerts := &fakeCorridorAlerts{
		alerts: []*hazard.WeatherAlert{{NWSID: "a-1", Severity: hazard.SeveritySevere}},
		pos:    []float64{0.2},
	}
	reports := &fakeCorridorReports{
		reports: []*hazard.CommunityReport{{ID: "r-1", Severity: hazard.SeverityInfo}},
		pos:     []float64{0.5},
	}

	hq := NewHazardQuery(events, alerts, reports)
	merged, err := hq.Query(context.Background(), testCorridor, testRouteWKT)
	require.NoError(t, err)
	require.Len(t, merged, 3)

	assert.Equal(t, hazard.KindWeatherAlert, merged[0].Kind)
	assert.Equal(t, hazard.KindCommunityReport, merged[1].Kind)
	assert.Equal(t, hazard.KindRoadEvent, merged[2].Kind)
	assert.Equal(t, 0.2, merged[0].PositionAlongRoute)
	assert.Equal(t, 0.5, merged[1].PositionAlongRoute)
	assert.Equal(t, 0.9, merged[2].PositionAlongRoute)
	assert.Equal(t, "a-1", merged[0].WeatherAlert.NWSID)
	assert.Equal(t, "r-1", merged[1].CommunityReport.ID)
	assert.Equal(t, "e-1", merged[2].RoadEvent.SourceEventID)
}

func TestQueryTieBreaksBySeverity(t *testing.T) {
	events := &fakeCorridorEvents{
		events: []*hazard.RoadEvent{{SourceEventID: "e-1", Severity: hazard.SeverityInfo}},
		pos:    []float64{0.5},
	}
	alerts := &fakeCorridorAlerts{
		alerts: []*hazard.WeatherAlert{{NWSID: "a-1", Severity: hazard.SeverityExtreme}},
		pos:    []float64{0.5},
	}
	reports := &fakeCorridorReports{
		reports: []*hazard.CommunityReport{{ID: "r-1", Severity: hazard.SeverityWarning}},
		pos:     []float64{0.5},
	}

	hq := NewHazardQuery(events, alerts, reports)
	merged, err := hq.Query(context.Background(), testCorridor, testRouteWKT)
	require.NoError(t, err)
	require.Len(t, merged, 3)

	assert.Equal(t, hazard.KindWeatherAlert, merged[0].Kind, "extreme first")
	assert.Equal(t, hazard.KindCommunityReport, merged[1].Kind, "warning second")
	assert.Equal(t, hazard.KindRoadEvent, merged[2].Kind, "info last")
}

func TestQueryPassesPerKindLimits(t *testing.T) {
	events := &fakeCorridorEvents{}
	alerts := &fakeCorridorAlerts{}
	reports := &fakeCorridorReports{}

	hq := NewHazardQuery(events, alerts, reports)
	_, err := hq.Query(context.Background(), testCorridor, testRouteWKT)
	require.NoError(t, err)

	assert.Equal(t, 200, events.limit)
	assert.Equal(t, 200, alerts.limit)
	assert.Equal(t, 100, reports.limit)
}

func TestQueryFailurePropagates(t *testing.T) {
	hq := NewHazardQuery(
		&fakeCorridorEvents{},
		&fakeCorridorAlerts{err: errors.New("connection refused")},
		&fakeCorridorReports{},
	)

	_, err := hq.Query(context.Background(), testCorridor, testRouteWKT)
	assertCode(t, err, errcode.QueryFailed)
}

func TestQueryEmptyCorridorReturnsEmptySequence(t *testing.T) {
	hq := NewHazardQuery(&fakeCorridorEvents{}, &fakeCorridorAlerts{}, &fakeCorridorReports{})

	merged, err := hq.Query(context.Background(), testCorridor, testRouteWKT)
	require.NoError(t, err)
	assert.NotNil(t, merged)
	assert.Empty(t, merged)
}

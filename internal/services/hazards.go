package services

import (
	"context"
	"encoding/json"
	"math"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/roadpulse/server/internal/errcode"
	"github.com/roadpulse/server/internal/hazard"
)

// Per-kind row caps keep a cross-country corridor from pulling unbounded
// result sets.
const (
	corridorEventLimit  = 200
	corridorAlertLimit  = 200
	corridorReportLimit = 100
)

// positionTieWindow is how close two route positions must be to count as
// the same spot, where severity decides the order instead.
const positionTieWindow = 1e-4

// CorridorEventStore intersects road events with a corridor polygon.
type CorridorEventStore interface {
	InCorridor(ctx context.Context, corridorGeoJSON json.RawMessage, routeWKT string, limit int) ([]*hazard.RoadEvent, []float64, error)
}

// CorridorAlertStore intersects weather alerts with a corridor polygon.
type CorridorAlertStore interface {
	InCorridor(ctx context.Context, corridorGeoJSON json.RawMessage, routeWKT string, limit int) ([]*hazard.WeatherAlert, []float64, error)
}

// CorridorReportStore intersects community reports with a corridor polygon.
type CorridorReportStore interface {
	InCorridor(ctx context.Context, corridorGeoJSON json.RawMessage, routeWKT string, limit int) ([]*hazard.CommunityReport, []float64, error)
}

// HazardQuery merges the three hazard tables into one route-ordered
// sequence.
type HazardQuery struct {
	events  CorridorEventStore
	alerts  CorridorAlertStore
	reports CorridorReportStore
}

func NewHazardQuery(events CorridorEventStore, alerts CorridorAlertStore, reports CorridorReportStore) *HazardQuery {
	return &HazardQuery{events: events, alerts: alerts, reports: reports}
}

// Query runs all three corridor intersections concurrently and returns one
// sequence sorted by position along the route. Hazards at the same spot
// order worst-first.
func (h *HazardQuery) Query(ctx context.Context, corridor json.RawMessage, routeWKT string) ([]hazard.RouteHazard, error) {
	var (
		events    []*hazard.RoadEvent
		eventPos  []float64
		alerts    []*hazard.WeatherAlert
		alertPos  []float64
		reports   []*hazard.CommunityReport
		reportPos []float64
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		events, eventPos, err = h.events.InCorridor(gctx, corridor, routeWKT, corridorEventLimit)
		return err
	})
	g.Go(func() error {
		var err error
		alerts, alertPos, err = h.alerts.InCorridor(gctx, corridor, routeWKT, corridorAlertLimit)
		return err
	})
	g.Go(func() error {
		var err error
		reports, reportPos, err = h.reports.InCorridor(gctx, corridor, routeWKT, corridorReportLimit)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, errcode.Wrap(errcode.QueryFailed, "querying corridor hazards", err)
	}

	merged := make([]hazard.RouteHazard, 0, len(events)+len(alerts)+len(reports))
	for i, e := range events {
		merged = append(merged, hazard.RouteHazard{
			Kind:               hazard.KindRoadEvent,
			PositionAlongRoute: eventPos[i],
			Severity:           e.Severity,
			RoadEvent:          e,
		})
	}
	for i, a := range alerts {
		merged = append(merged, hazard.RouteHazard{
			Kind:               hazard.KindWeatherAlert,
			PositionAlongRoute: alertPos[i],
			Severity:           a.Severity,
			WeatherAlert:       a,
		})
	}
	for i, r := range reports {
		merged = append(merged, hazard.RouteHazard{
			Kind:               hazard.KindCommunityReport,
			PositionAlongRoute: reportPos[i],
			Severity:           r.Severity,
			CommunityReport:    r,
		})
	}

	sort.SliceStable(merged, func(i, j int) bool {
		a, b := merged[i], merged[j]
		if math.Abs(a.PositionAlongRoute-b.PositionAlongRoute) <= positionTieWindow {
			return a.Severity.Rank() > b.Severity.Rank()
		}
		return a.PositionAlongRoute < b.PositionAlongRoute
	})
	return merged, nil
}

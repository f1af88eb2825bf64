package services

import (
	"context"

	"go.uber.org/zap"

	"github.com/roadpulse/server/internal/errcode"
	"github.com/roadpulse/server/internal/hazard"
	"github.com/roadpulse/server/internal/lib/geo"
	"github.com/roadpulse/server/internal/store"
)

// EventStore is the slice of the road event store the listing service uses.
type EventStore interface {
	List(ctx context.Context, f store.EventFilter) ([]*hazard.RoadEvent, int, error)
	Clusters(ctx context.Context, bbox *geo.BBox, eps float64) ([]store.Cluster, error)
}

// EventService serves map and list views of road events.
type EventService struct {
	events EventStore
	logger *zap.Logger
}

func NewEventService(events EventStore, logger *zap.Logger) *EventService {
	return &EventService{events: events, logger: logger}
}

// EventQuery is a parsed events request. Zoom, when present, supplies the
// default row cap and severity floor; explicit limit or severity wins.
type EventQuery struct {
	BBox       *geo.BBox
	Zoom       *int
	Severities []string
	State      string
	Type       string
	ActiveOnly bool
	Limit      int
	Offset     int
}

// zoomDefaults caps wide map views so a continent-scale request stays
// cheap without the client opting in. Low zooms only show the worst.
func zoomDefaults(zoom int, critical, warning hazard.Severity) (int, []string) {
	switch {
	case zoom < 5:
		return 50, []string{string(critical)}
	case zoom < 8:
		return 150, []string{string(critical), string(warning)}
	default:
		return 500, nil
	}
}

// List returns road events matching the query plus the unpaginated total.
func (s *EventService) List(ctx context.Context, q EventQuery) ([]*hazard.RoadEvent, int, error) {
	f := store.EventFilter{
		BBox:       q.BBox,
		ActiveOnly: q.ActiveOnly,
		Severities: q.Severities,
		State:      q.State,
		Type:       q.Type,
		Limit:      q.Limit,
		Offset:     q.Offset,
	}
	if q.Zoom != nil {
		limit, floor := zoomDefaults(*q.Zoom, hazard.SeverityCritical, hazard.SeverityWarning)
		if f.Limit <= 0 {
			f.Limit = limit
		}
		if len(f.Severities) == 0 {
			f.Severities = floor
		}
	}

	events, total, err := s.events.List(ctx, f)
	if err != nil {
		return nil, 0, errcode.Wrap(errcode.QueryFailed, "listing road events", err)
	}
	return events, total, nil
}

// clusterEps widens the DBSCAN neighborhood at low zooms so a wide view
// returns a handful of blobs instead of thousands of points.
func clusterEps(zoom int) float64 {
	switch {
	case zoom <= 4:
		return 2.0
	case zoom == 5:
		return 1.0
	case zoom == 6:
		return 0.5
	default:
		return 0.25
	}
}

// Clusters groups active events spatially for map rendering.
func (s *EventService) Clusters(ctx context.Context, bbox *geo.BBox, zoom int) ([]store.Cluster, error) {
	clusters, err := s.events.Clusters(ctx, bbox, clusterEps(zoom))
	if err != nil {
		return nil, errcode.Wrap(errcode.QueryFailed, "clustering road events", err)
	}
	if clusters == nil {
		clusters = []store.Cluster{}
	}
	return clusters, nil
}

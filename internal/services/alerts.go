package services

import (
	"context"

	"go.uber.org/zap"

	"github.com/roadpulse/server/internal/errcode"
	"github.com/roadpulse/server/internal/hazard"
	"github.com/roadpulse/server/internal/lib/geo"
	"github.com/roadpulse/server/internal/store"
)

// AlertStore is the slice of the weather alert store the listing service
// uses.
type AlertStore interface {
	List(ctx context.Context, f store.AlertFilter) ([]*hazard.WeatherAlert, int, error)
}

// AlertService serves map and list views of weather alerts.
type AlertService struct {
	alerts AlertStore
	logger *zap.Logger
}

func NewAlertService(alerts AlertStore, logger *zap.Logger) *AlertService {
	return &AlertService{alerts: alerts, logger: logger}
}

// AlertQuery is a parsed alerts request. The zoom policy matches events
// but uses the NWS severity vocabulary.
type AlertQuery struct {
	BBox       *geo.BBox
	Zoom       *int
	Severities []string
	ActiveOnly bool
	Limit      int
	Offset     int
}

// List returns weather alerts matching the query plus the unpaginated
// total.
func (s *AlertService) List(ctx context.Context, q AlertQuery) ([]*hazard.WeatherAlert, int, error) {
	f := store.AlertFilter{
		BBox:       q.BBox,
		ActiveOnly: q.ActiveOnly,
		Severities: q.Severities,
		Limit:      q.Limit,
		Offset:     q.Offset,
	}
	if q.Zoom != nil {
		limit, floor := zoomDefaults(*q.Zoom, hazard.SeverityExtreme, hazard.SeveritySevere)
		if f.Limit <= 0 {
			f.Limit = limit
		}
		if len(f.Severities) == 0 {
			f.Severities = floor
		}
	}

	alerts, total, err := s.alerts.List(ctx, f)
	if err != nil {
		return nil, 0, errcode.Wrap(errcode.QueryFailed, "listing weather alerts", err)
	}
	return alerts, total, nil
}

package services

import (
	"context"

	"go.uber.org/zap"

	"github.com/roadpulse/server/internal/errcode"
	"github.com/roadpulse/server/internal/hazard"
	"github.com/roadpulse/server/internal/lib/geo"
	"github.com/roadpulse/server/internal/store"
)

// ParkingStore is the slice of the parking store the listing service uses.
type ParkingStore interface {
	List(ctx context.Context, f store.ParkingFilter) ([]*hazard.ParkingFacility, int, error)
}

// ParkingService serves truck parking availability.
type ParkingService struct {
	parking ParkingStore
	logger  *zap.Logger
}

func NewParkingService(parking ParkingStore, logger *zap.Logger) *ParkingService {
	return &ParkingService{parking: parking, logger: logger}
}

// ParkingQuery is a parsed parking request.
type ParkingQuery struct {
	BBox       *geo.BBox
	State      string
	ActiveOnly bool
	Limit      int
	Offset     int
}

// List returns parking facilities matching the query plus the unpaginated
// total.
func (s *ParkingService) List(ctx context.Context, q ParkingQuery) ([]*hazard.ParkingFacility, int, error) {
	facilities, total, err := s.parking.List(ctx, store.ParkingFilter{
		BBox:       q.BBox,
		ActiveOnly: q.ActiveOnly,
		State:      q.State,
		Limit:      q.Limit,
		Offset:     q.Offset,
	})
	if err != nil {
		return nil, 0, errcode.Wrap(errcode.QueryFailed, "listing parking facilities", err)
	}
	return facilities, total, nil
}

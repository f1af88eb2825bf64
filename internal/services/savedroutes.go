package services

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/roadpulse/server/internal/errcode"
	"github.com/roadpulse/server/internal/lib/geo"
	"github.com/roadpulse/server/internal/store"
)

// SavedRouteStore is the slice of the saved route store the service uses.
type SavedRouteStore interface {
	Create(ctx context.Context, r *store.SavedRoute) error
	ListByUser(ctx context.Context, userID string) ([]*store.SavedRoute, error)
	Delete(ctx context.Context, id, userID string) error
}

// SavedRouteService manages per-user saved origin/destination pairs.
type SavedRouteService struct {
	routes SavedRouteStore
	logger *zap.Logger
}

func NewSavedRouteService(routes SavedRouteStore, logger *zap.Logger) *SavedRouteService {
	return &SavedRouteService{routes: routes, logger: logger}
}

// SaveRouteInput is a parsed save-route request.
type SaveRouteInput struct {
	Name               string  `json:"name" validate:"required,max=100"`
	OriginAddress      string  `json:"originAddress" validate:"required,max=300"`
	DestinationAddress string  `json:"destinationAddress" validate:"required,max=300"`
	OriginLat          float64 `json:"originLat"`
	OriginLng          float64 `json:"originLng"`
	DestinationLat     float64 `json:"destinationLat"`
	DestinationLng     float64 `json:"destinationLng"`
	CorridorMiles      float64 `json:"corridorMiles" validate:"omitempty,gte=1,lte=50"`
}

// Save stores a route for repeat checks.
func (s *SavedRouteService) Save(ctx context.Context, userID string, in SaveRouteInput) (*store.SavedRoute, error) {
	if userID == "" {
		return nil, errcode.New(errcode.Unauthorized, "saving routes requires a signed-in user")
	}
	if err := validate.Struct(in); err != nil {
		return nil, invalidInput(err)
	}
	if !geo.InUSBounds(in.OriginLat, in.OriginLng) || !geo.InUSBounds(in.DestinationLat, in.DestinationLng) {
		return nil, errcode.New(errcode.InvalidCoords, "route endpoints are outside US coverage")
	}

	miles := in.CorridorMiles
	if miles == 0 {
		miles = 10
	}
	r := &store.SavedRoute{
		UserID:             userID,
		Name:               in.Name,
		OriginAddress:      in.OriginAddress,
		DestinationAddress: in.DestinationAddress,
		OriginLat:          in.OriginLat,
		OriginLng:          in.OriginLng,
		DestinationLat:     in.DestinationLat,
		DestinationLng:     in.DestinationLng,
		CorridorMiles:      miles,
	}
	if err := s.routes.Create(ctx, r); err != nil {
		return nil, errcode.Wrap(errcode.Internal, "saving route", err)
	}
	return r, nil
}

// ListByUser returns the user's saved routes, newest first.
func (s *SavedRouteService) ListByUser(ctx context.Context, userID string) ([]*store.SavedRoute, error) {
	if userID == "" {
		return nil, errcode.New(errcode.Unauthorized, "listing routes requires a signed-in user")
	}
	routes, err := s.routes.ListByUser(ctx, userID)
	if err != nil {
		return nil, errcode.Wrap(errcode.Internal, "listing saved routes", err)
	}
	if routes == nil {
		routes = []*store.SavedRoute{}
	}
	return routes, nil
}

// Delete removes one saved route. Ownership is enforced in the store.
func (s *SavedRouteService) Delete(ctx context.Context, id, userID string) error {
	if userID == "" {
		return errcode.New(errcode.Unauthorized, "deleting routes requires a signed-in user")
	}
	err := s.routes.Delete(ctx, id, userID)
	if errors.Is(err, store.ErrNotFound) {
		return errcode.Newf(errcode.NotFound, "saved route %s not found", id)
	}
	if err != nil {
		return errcode.Wrap(errcode.Internal, "deleting saved route", err)
	}
	return nil
}

package services

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/roadpulse/server/internal/cache"
	"github.com/roadpulse/server/internal/clients/geocode"
	"github.com/roadpulse/server/internal/clients/ors"
	"github.com/roadpulse/server/internal/config"
	"github.com/roadpulse/server/internal/errcode"
	"github.com/roadpulse/server/internal/hazard"
	"github.com/roadpulse/server/internal/store"
)

type fakeGeocoder struct {
	results map[string]*geocode.Result
	err     error
	queries []string
}

func (f *fakeGeocoder) Geocode(_ context.Context, text string) (*geocode.Result, error) {
	f.queries = append(f.queries, text)
	if f.err != nil {
		return nil, f.err
	}
	r, ok := f.results[text]
	if !ok {
		return nil, errcode.Newf(errcode.GeocodeNoResults, "no results for %q", text)
	}
	return r, nil
}

type fakeRouter struct {
	route  *ors.Route
	err    error
	calls  int
	coords [4]float64
}

func (f *fakeRouter) FetchRoute(_ context.Context, oLat, oLng, dLat, dLng float64) (*ors.Route, error) {
	f.calls++
	f.coords = [4]float64{oLat, oLng, dLat, dLng}
	if f.err != nil {
		return nil, f.err
	}
	return f.route, nil
}

type fakeCorridors struct {
	corridor json.RawMessage
	err      error
	miles    []float64
}

func (f *fakeCorridors) BuildCorridor(_ context.Context, _ string, radiusMiles float64) (json.RawMessage, error) {
	f.miles = append(f.miles, radiusMiles)
	if f.err != nil {
		return nil, f.err
	}
	return f.corridor, nil
}

type checkFixture struct {
	svc      *RouteService
	geocoder *fakeGeocoder
	router   *fakeRouter
	corridor *fakeCorridors
	events   *fakeCorridorEvents
	usage    *fakeUsage
	cache    *cache.Client
}

func newCheckFixture(t *testing.T) *checkFixture {
	t.Helper()
	_, c, _ := newTestGate(t)

	fx := &checkFixture{
		geocoder: &fakeGeocoder{results: map[string]*geocode.Result{
			"Denver, CO":         {Lat: 39.74, Lng: -104.99, ResolvedAddress: "Denver, Colorado, USA"},
			"Salt Lake City, UT": {Lat: 40.76, Lng: -111.89, ResolvedAddress: "Salt Lake City, Utah, USA"},
		}},
		router: &fakeRouter{route: &ors.Route{
			Geometry:        json.RawMessage(`{"type":"LineString","coordinates":[[-104.99,39.74],[-111.89,40.76]]}`),
			GeometryWKT:     "LINESTRING(-104.99 39.74, -111.89 40.76)",
			DistanceMeters:  837000,
			DurationSeconds: 29000,
		}},
		corridor: &fakeCorridors{corridor: testCorridor},
		events:   &fakeCorridorEvents{},
		usage:    &fakeUsage{},
		cache:    c,
	}
	hq := NewHazardQuery(fx.events, &fakeCorridorAlerts{}, &fakeCorridorReports{})
	fx.svc = NewRouteService(fx.geocoder, fx.router, fx.corridor, hq, c, fx.usage, zap.NewNop(), config.RoutingConfig{})
	return fx
}

func coordInput() CheckInput {
	oLat, oLng := 39.74, -104.99
	dLat, dLng := 40.76, -111.89
	return CheckInput{
		OriginLat: &oLat, OriginLng: &oLng,
		DestinationLat: &dLat, DestinationLng: &dLng,
	}
}

func TestCheckComposesRouteAndHazards(t *testing.T) {
	fx := newCheckFixture(t)
	fx.events.events = []*hazard.RoadEvent{
		{SourceEventID: "e-1", Severity: hazard.SeverityCritical},
		{SourceEventID: "e-2", Severity: hazard.SeverityAdvisory},
	}
	fx.events.pos = []float64{0.3, 0.7}

	res, err := fx.svc.Check(context.Background(), coordInput())
	require.NoError(t, err)

	assert.Equal(t, [4]float64{39.74, -104.99, 40.76, -111.89}, fx.router.coords)
	assert.Equal(t, []float64{10}, fx.corridor.miles, "default corridor radius")
	assert.Empty(t, fx.geocoder.queries, "coordinates skip the geocoder")

	assert.Equal(t, 837000.0, res.Route.DistanceMeters)
	assert.Equal(t, 10.0, res.Route.CorridorMiles)
	assert.JSONEq(t, string(testCorridor), string(res.Route.CorridorGeometry))
	require.Len(t, res.Hazards, 2)
	assert.Equal(t, "e-1", res.Hazards[0].RoadEvent.SourceEventID)
	assert.False(t, res.CheckedAt.IsZero())

	assert.Equal(t, 2, res.Summary.TotalHazards)
	assert.Equal(t, 1, res.Summary.CriticalCount)
	assert.Equal(t, 1, res.Summary.AdvisoryCount)
	assert.Equal(t, 2, res.Summary.RoadEventCount)

	checks := fx.usage.byType(store.UsageRouteCheck)
	require.Len(t, checks, 1)
	assert.Equal(t, false, checks[0].metadata["cached"])
}

func TestCheckServesCachedResult(t *testing.T) {
	fx := newCheckFixture(t)

	first, err := fx.svc.Check(context.Background(), coordInput())
	require.NoError(t, err)

	second, err := fx.svc.Check(context.Background(), coordInput())
	require.NoError(t, err)

	assert.Equal(t, 1, fx.router.calls, "second check must not refetch the route")
	assert.Equal(t, first.Summary, second.Summary)
	assert.Equal(t, first.CheckedAt.Unix(), second.CheckedAt.Unix())

	checks := fx.usage.byType(store.UsageRouteCheck)
	require.Len(t, checks, 2)
	assert.Equal(t, true, checks[1].metadata["cached"])
}

func TestCheckCorridorMilesBounds(t *testing.T) {
	for _, miles := range []float64{0.99, 50.01, -3} {
		fx := newCheckFixture(t)
		in := coordInput()
		in.CorridorMiles = miles

		_, err := fx.svc.Check(context.Background(), in)
		assertCode(t, err, errcode.InvalidCorridor)
		assert.Zero(t, fx.router.calls, "miles=%v must fail before routing", miles)
	}
}

func TestCheckAcceptsBoundaryCorridorMiles(t *testing.T) {
	for _, miles := range []float64{1, 50} {
		fx := newCheckFixture(t)
		in := coordInput()
		in.CorridorMiles = miles

		res, err := fx.svc.Check(context.Background(), in)
		require.NoError(t, err)
		assert.Equal(t, miles, res.Route.CorridorMiles)
	}
}

func TestCheckGeocodesMissingEndpoints(t *testing.T) {
	fx := newCheckFixture(t)

	res, err := fx.svc.Check(context.Background(), CheckInput{
		OriginAddress:      "Denver, CO",
		DestinationAddress: "Salt Lake City, UT",
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"Denver, CO", "Salt Lake City, UT"}, fx.geocoder.queries)
	assert.Equal(t, "Denver, Colorado, USA", res.Route.Origin.Address)
	assert.Equal(t, 40.76, res.Route.Destination.Lat)
}

func TestCheckMissingEndpoint(t *testing.T) {
	fx := newCheckFixture(t)

	_, err := fx.svc.Check(context.Background(), CheckInput{DestinationAddress: "Salt Lake City, UT"})
	assertCode(t, err, errcode.MissingFields)
	assert.Equal(t, map[string]any{"field": "origin"}, errcode.DetailsOf(err))
}

func TestCheckGeocodeFailurePropagates(t *testing.T) {
	fx := newCheckFixture(t)

	_, err := fx.svc.Check(context.Background(), CheckInput{
		OriginAddress:      "Nowhereville",
		DestinationAddress: "Salt Lake City, UT",
	})
	assertCode(t, err, errcode.GeocodeNoResults)
	assert.Zero(t, fx.router.calls)
}

func TestCheckRejectsNonUSCoordinates(t *testing.T) {
	fx := newCheckFixture(t)
	in := coordInput()
	parisLat, parisLng := 48.85, 2.35
	in.OriginLat, in.OriginLng = &parisLat, &parisLng

	_, err := fx.svc.Check(context.Background(), in)
	assertCode(t, err, errcode.InvalidCoords)
}

func TestCheckCorridorBuildFailure(t *testing.T) {
	fx := newCheckFixture(t)
	fx.corridor.err = errors.New("ST_Buffer: invalid geometry")

	_, err := fx.svc.Check(context.Background(), coordInput())
	assertCode(t, err, errcode.CorridorBuildFail)
}

func TestCheckRouteFailurePropagates(t *testing.T) {
	fx := newCheckFixture(t)
	fx.router.err = errcode.New(errcode.RouteNotFound, "no drivable route found")

	_, err := fx.svc.Check(context.Background(), coordInput())
	assertCode(t, err, errcode.RouteNotFound)
}

func TestCheckFingerprint(t *testing.T) {
	a := checkFingerprint(39.74, -104.99, 40.76, -111.89, 10)
	b := checkFingerprint(39.74, -104.99, 40.76, -111.89, 10)
	c := checkFingerprint(39.74, -104.99, 40.76, -111.89, 25)

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c, "radius is part of the key")
	assert.Len(t, a, 16)
}

func TestSummarize(t *testing.T) {
	sum := summarize([]hazard.RouteHazard{
		{Kind: hazard.KindRoadEvent, Severity: hazard.SeverityCritical},
		{Kind: hazard.KindWeatherAlert, Severity: hazard.SeverityExtreme},
		{Kind: hazard.KindWeatherAlert, Severity: hazard.SeverityModerate},
		{Kind: hazard.KindCommunityReport, Severity: hazard.SeverityInfo},
		{Kind: hazard.KindCommunityReport, Severity: hazard.SeverityUnknown},
	})

	assert.Equal(t, CheckSummary{
		TotalHazards:         5,
		CriticalCount:        2,
		AdvisoryCount:        1,
		InfoCount:            2,
		RoadEventCount:       1,
		WeatherAlertCount:    2,
		CommunityReportCount: 2,
	}, sum)
}

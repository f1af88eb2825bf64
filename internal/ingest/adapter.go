package ingest

import (
	"context"
	"time"

	"github.com/roadpulse/server/internal/clients/nws"
	"github.com/roadpulse/server/internal/clients/tpims"
	"github.com/roadpulse/server/internal/clients/wzdx"
	"github.com/roadpulse/server/internal/config"
	"github.com/roadpulse/server/internal/hazard"
)

// RecordKind discriminates what a normalized record writes to.
type RecordKind int

const (
	KindRoadEvent RecordKind = iota
	KindWeatherAlert
	KindParking
	// KindParkingUpdate records patch availability on existing facilities
	// and never create or reconcile rows.
	KindParkingUpdate
)

// Record is one normalized feed record. Exactly one payload field is set,
// matching Kind.
type Record struct {
	Kind         RecordKind
	RoadEvent    *hazard.RoadEvent
	WeatherAlert *hazard.WeatherAlert
	Parking      *hazard.ParkingFacility
}

// Adapter is one registered upstream feed: identity plus fetch and
// normalize. The engine drives every adapter through the same pipeline.
// Kind tells the engine which reconcile sweep applies, even on runs where
// the feed returned no records.
type Adapter interface {
	Name() string
	URL() string
	State() string
	Kind() RecordKind
	CacheTTL() time.Duration
	Fetch(ctx context.Context) ([]byte, error)
	Normalize(raw []byte) ([]Record, int, error)
}

// WZDxAdapter ingests one state DOT work zone feed.
type WZDxAdapter struct {
	feed   wzdx.Feed
	ttl    time.Duration
	client *wzdx.Client
}

func NewWZDxAdapter(cfg config.WZDxFeedConfig, client *wzdx.Client) *WZDxAdapter {
	return &WZDxAdapter{
		feed:   wzdx.Feed{Name: cfg.Name, URL: cfg.URL, State: cfg.State},
		ttl:    cfg.CacheTTL,
		client: client,
	}
}

func (a *WZDxAdapter) Name() string            { return a.feed.Name }
func (a *WZDxAdapter) URL() string             { return a.feed.URL }
func (a *WZDxAdapter) State() string           { return a.feed.State }
func (a *WZDxAdapter) Kind() RecordKind        { return KindRoadEvent }
func (a *WZDxAdapter) CacheTTL() time.Duration { return a.ttl }

func (a *WZDxAdapter) Fetch(ctx context.Context) ([]byte, error) {
	return a.client.Fetch(ctx, a.feed.URL)
}

func (a *WZDxAdapter) Normalize(raw []byte) ([]Record, int, error) {
	events, skipped, err := wzdx.Normalize(raw, a.feed)
	if err != nil {
		return nil, 0, err
	}
	records := make([]Record, len(events))
	for i, e := range events {
		records[i] = Record{Kind: KindRoadEvent, RoadEvent: e}
	}
	return records, skipped, nil
}

// NWSAdapter ingests the national active-alerts feed. State is empty; an
// alert's zones span state lines.
type NWSAdapter struct {
	name   string
	url    string
	ttl    time.Duration
	client *nws.Client
}

func NewNWSAdapter(cfg config.NWSConfig, client *nws.Client) *NWSAdapter {
	return &NWSAdapter{
		name:   "nws",
		url:    cfg.URL,
		ttl:    cfg.CacheTTL,
		client: client,
	}
}

func (a *NWSAdapter) Name() string            { return a.name }
func (a *NWSAdapter) URL() string             { return a.url }
func (a *NWSAdapter) State() string           { return "" }
func (a *NWSAdapter) Kind() RecordKind        { return KindWeatherAlert }
func (a *NWSAdapter) CacheTTL() time.Duration { return a.ttl }

func (a *NWSAdapter) Fetch(ctx context.Context) ([]byte, error) {
	return a.client.FetchActiveAlerts(ctx)
}

func (a *NWSAdapter) Normalize(raw []byte) ([]Record, int, error) {
	alerts, filtered, err := nws.NormalizeAlerts(raw)
	if err != nil {
		return nil, 0, err
	}
	records := make([]Record, len(alerts))
	for i, al := range alerts {
		records[i] = Record{Kind: KindWeatherAlert, WeatherAlert: al}
	}
	return records, filtered, nil
}

// TPIMSStaticAdapter ingests the truck parking inventory feed. Sites span
// the participating states, so State is empty and each facility carries
// its own.
type TPIMSStaticAdapter struct {
	name   string
	url    string
	ttl    time.Duration
	client *tpims.Client
}

func NewTPIMSStaticAdapter(cfg config.TPIMSConfig, client *tpims.Client) *TPIMSStaticAdapter {
	return &TPIMSStaticAdapter{
		name:   "tpims-static",
		url:    cfg.StaticURL,
		ttl:    cfg.CacheTTL,
		client: client,
	}
}

func (a *TPIMSStaticAdapter) Name() string            { return a.name }
func (a *TPIMSStaticAdapter) URL() string             { return a.url }
func (a *TPIMSStaticAdapter) State() string           { return "" }
func (a *TPIMSStaticAdapter) Kind() RecordKind        { return KindParking }
func (a *TPIMSStaticAdapter) CacheTTL() time.Duration { return a.ttl }

func (a *TPIMSStaticAdapter) Fetch(ctx context.Context) ([]byte, error) {
	return a.client.Fetch(ctx, a.url)
}

func (a *TPIMSStaticAdapter) Normalize(raw []byte) ([]Record, int, error) {
	facilities, skipped, err := tpims.NormalizeStatic(raw, a.name)
	if err != nil {
		return nil, 0, err
	}
	records := make([]Record, len(facilities))
	for i, f := range facilities {
		records[i] = Record{Kind: KindParking, Parking: f}
	}
	return records, skipped, nil
}

// TPIMSDynamicAdapter ingests availability updates for facilities the
// static feed owns. Its records never create rows, so its source name
// matches the static adapter's.
type TPIMSDynamicAdapter struct {
	name   string
	source string
	url    string
	ttl    time.Duration
	client *tpims.Client
}

func NewTPIMSDynamicAdapter(cfg config.TPIMSConfig, client *tpims.Client) *TPIMSDynamicAdapter {
	return &TPIMSDynamicAdapter{
		name:   "tpims-dynamic",
		source: "tpims-static",
		url:    cfg.DynamicURL,
		ttl:    cfg.CacheTTL,
		client: client,
	}
}

func (a *TPIMSDynamicAdapter) Name() string            { return a.name }
func (a *TPIMSDynamicAdapter) URL() string             { return a.url }
func (a *TPIMSDynamicAdapter) State() string           { return "" }
func (a *TPIMSDynamicAdapter) Kind() RecordKind        { return KindParkingUpdate }
func (a *TPIMSDynamicAdapter) CacheTTL() time.Duration { return a.ttl }

func (a *TPIMSDynamicAdapter) Fetch(ctx context.Context) ([]byte, error) {
	return a.client.Fetch(ctx, a.url)
}

func (a *TPIMSDynamicAdapter) Normalize(raw []byte) ([]Record, int, error) {
	updates, skipped, err := tpims.NormalizeDynamic(raw, a.source)
	if err != nil {
		return nil, 0, err
	}
	records := make([]Record, len(updates))
	for i, u := range updates {
		records[i] = Record{Kind: KindParkingUpdate, Parking: u}
	}
	return records, skipped, nil
}

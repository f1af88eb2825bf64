// Package ingest drives upstream feeds through one pipeline: fetch or
// reuse a cached payload, normalize, fill missing alert geometry from NWS
// zone polygons, upsert, reconcile rows the feed stopped mentioning, and
// record feed health. The scheduler and the one-shot runner both enter
// through RunAll.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"

	"github.com/roadpulse/server/internal/cache"
	"github.com/roadpulse/server/internal/hazard"
	"github.com/roadpulse/server/internal/lib/geo"
	"github.com/roadpulse/server/internal/metrics"
	"github.com/roadpulse/server/internal/store"
)

// alertPurgeAfter is how long an inactive weather alert row lingers before
// the reconcile sweep deletes it.
const alertPurgeAfter = 24 * time.Hour

// The engine writes through narrow store interfaces so tests can run it
// against fakes instead of a database.

type EventStore interface {
	UpsertBatch(ctx context.Context, events []*hazard.RoadEvent) (*store.UpsertResult, error)
	DeactivateMissing(ctx context.Context, source string, keep []string) (int64, error)
	DeactivateEnded(ctx context.Context, source string) (int64, error)
	PurgeInactive(ctx context.Context, source string, retention time.Duration) (int64, error)
}

type AlertStore interface {
	UpsertBatch(ctx context.Context, alerts []*hazard.WeatherAlert) (*store.UpsertResult, error)
	DeactivateMissing(ctx context.Context, keep []string) (int64, error)
	DeactivateExpired(ctx context.Context) (int64, error)
	Purge(ctx context.Context, olderThan time.Duration) (int64, error)
}

type ParkingStore interface {
	UpsertBatch(ctx context.Context, facilities []*hazard.ParkingFacility) (*store.UpsertResult, error)
	ApplyDynamicBatch(ctx context.Context, updates []*hazard.ParkingFacility) (int, error)
	DeactivateMissing(ctx context.Context, source string, keep []string) (int64, error)
}

type FeedStore interface {
	UpsertSuccess(ctx context.Context, feedName, feedURL, state, status string, recordCount, fetchMs, intervalMinutes int) error
	UpsertFailure(ctx context.Context, feedName, feedURL, state, errMsg string) error
	AppendLog(ctx context.Context, l *store.IngestionLog) error
	DisabledFeeds(ctx context.Context) (map[string]bool, error)
}

type ReportStore interface {
	ExpireOld(ctx context.Context) (int64, error)
}

type UsageStore interface {
	Append(ctx context.Context, eventType string, metadata map[string]any, userID string) error
}

// Result summarizes one feed ingestion.
type Result struct {
	FeedName    string
	FromCache   bool
	Fetched     int
	Skipped     int
	Inserted    int
	Updated     int
	Deactivated int64
	Duration    time.Duration
}

// EngineParams carries the engine's collaborators.
type EngineParams struct {
	Adapters []Adapter
	Events   EventStore
	Alerts   AlertStore
	Parking  ParkingStore
	Feeds    FeedStore
	Reports  ReportStore
	Usage    UsageStore
	Zones    *ZoneResolver
	Cache    *cache.Client
	Logger   *zap.Logger

	IntervalMinutes    int
	RoadEventRetention time.Duration
}

// Engine runs feed ingestions. Safe for a single caller at a time; the
// scheduler serializes runs on its own side.
type Engine struct {
	adapters []Adapter
	events   EventStore
	alerts   AlertStore
	parking  ParkingStore
	feeds    FeedStore
	reports  ReportStore
	usage    UsageStore
	zones    *ZoneResolver
	cache    *cache.Client
	logger   *zap.Logger

	intervalMinutes int
	retention       time.Duration
}

func NewEngine(p EngineParams) *Engine {
	if p.IntervalMinutes <= 0 {
		p.IntervalMinutes = 5
	}
	if p.RoadEventRetention <= 0 {
		p.RoadEventRetention = 7 * 24 * time.Hour
	}
	return &Engine{
		adapters:        p.Adapters,
		events:          p.Events,
		alerts:          p.Alerts,
		parking:         p.Parking,
		feeds:           p.Feeds,
		reports:         p.Reports,
		usage:           p.Usage,
		zones:           p.Zones,
		cache:           p.Cache,
		logger:          p.Logger,
		intervalMinutes: p.IntervalMinutes,
		retention:       p.RoadEventRetention,
	}
}

// RunAll ingests every enabled feed sequentially, then expires stale
// community reports. One bad feed never stops the others; their errors
// come back aggregated.
func (e *Engine) RunAll(ctx context.Context) error {
	disabled, err := e.feeds.DisabledFeeds(ctx)
	if err != nil {
		e.logger.Warn("loading disabled feeds", zap.Error(err))
	}

	var merr *multierror.Error
	for _, a := range e.adapters {
		if ctx.Err() != nil {
			merr = multierror.Append(merr, ctx.Err())
			break
		}
		if disabled[a.Name()] {
			e.logger.Info("feed disabled, skipping", zap.String("feed", a.Name()))
			continue
		}
		if _, err := e.Ingest(ctx, a); err != nil {
			merr = multierror.Append(merr, err)
		}
	}

	if expired, err := e.reports.ExpireOld(ctx); err != nil {
		e.logger.Warn("expiring community reports", zap.Error(err))
	} else if expired > 0 {
		e.logger.Info("expired community reports", zap.Int64("count", expired))
	}

	return merr.ErrorOrNil()
}

// Ingest runs one feed through the pipeline. Any step failing marks the
// feed down, appends a failed log entry, and returns the error.
func (e *Engine) Ingest(ctx context.Context, a Adapter) (*Result, error) {
	started := time.Now()

	raw, fromCache, err := e.fetchPayload(ctx, a)
	if err != nil {
		return nil, e.fail(ctx, a, started, err)
	}
	fetchMs := int(time.Since(started).Milliseconds())

	records, skipped, err := a.Normalize(raw)
	if err != nil {
		return nil, e.fail(ctx, a, started, err)
	}

	events, alerts, facilities, updates := splitRecords(records)
	e.attachZoneGeometry(ctx, alerts)

	res := &Result{
		FeedName:  a.Name(),
		FromCache: fromCache,
		Fetched:   len(records),
		Skipped:   skipped,
	}

	var keys []string
	if len(events) > 0 {
		up, err := e.events.UpsertBatch(ctx, events)
		if err != nil {
			return nil, e.fail(ctx, a, started, err)
		}
		res.Inserted += up.Inserted
		res.Updated += up.Updated
		keys = append(keys, up.Keys...)
	}
	if len(alerts) > 0 {
		up, err := e.alerts.UpsertBatch(ctx, alerts)
		if err != nil {
			return nil, e.fail(ctx, a, started, err)
		}
		res.Inserted += up.Inserted
		res.Updated += up.Updated
		keys = append(keys, up.Keys...)
	}
	if len(facilities) > 0 {
		up, err := e.parking.UpsertBatch(ctx, facilities)
		if err != nil {
			return nil, e.fail(ctx, a, started, err)
		}
		res.Inserted += up.Inserted
		res.Updated += up.Updated
		keys = append(keys, up.Keys...)
	}
	if len(updates) > 0 {
		matched, err := e.parking.ApplyDynamicBatch(ctx, updates)
		if err != nil {
			return nil, e.fail(ctx, a, started, err)
		}
		res.Updated += matched
	}

	deactivated, err := e.reconcile(ctx, a, keys)
	if err != nil {
		return nil, e.fail(ctx, a, started, err)
	}
	res.Deactivated = deactivated
	res.Duration = time.Since(started)

	// Skipped records are routine (features without geometry, alerts that
	// are not road relevant), not a health signal.
	if err := e.feeds.UpsertSuccess(ctx, a.Name(), a.URL(), a.State(), store.FeedHealthy, res.Fetched, fetchMs, e.intervalMinutes); err != nil {
		e.logger.Warn("recording feed status", zap.String("feed", a.Name()), zap.Error(err))
	}
	entry := &store.IngestionLog{
		FeedName:         a.Name(),
		Status:           store.IngestSuccess,
		StartedAt:        started,
		DurationMs:       int(res.Duration.Milliseconds()),
		InsertedCount:    res.Inserted,
		UpdatedCount:     res.Updated,
		DeactivatedCount: int(res.Deactivated),
	}
	if err := e.feeds.AppendLog(ctx, entry); err != nil {
		e.logger.Warn("appending ingestion log", zap.String("feed", a.Name()), zap.Error(err))
	}
	md := map[string]any{"feed": a.Name(), "records": res.Fetched, "skipped": res.Skipped}
	if err := e.usage.Append(ctx, store.UsageFeedIngest, md, ""); err != nil {
		e.logger.Warn("appending usage event", zap.String("feed", a.Name()), zap.Error(err))
	}

	metrics.ObserveIngest(a.Name(), "success", res.Duration.Seconds())
	metrics.AddIngestRecords(a.Name(), "inserted", res.Inserted)
	metrics.AddIngestRecords(a.Name(), "updated", res.Updated)
	metrics.AddIngestRecords(a.Name(), "deactivated", int(res.Deactivated))
	metrics.AddIngestRecords(a.Name(), "skipped", res.Skipped)

	e.logger.Info("feed ingested",
		zap.String("feed", a.Name()),
		zap.Bool("cached", res.FromCache),
		zap.Int("records", res.Fetched),
		zap.Int("inserted", res.Inserted),
		zap.Int("updated", res.Updated),
		zap.Int64("deactivated", res.Deactivated),
		zap.Int("skipped", res.Skipped),
		zap.Duration("duration", res.Duration))
	return res, nil
}

// fetchPayload returns the cached raw payload when present, otherwise
// fetches from upstream and caches the body. Cache trouble on either side
// degrades to a live fetch, never a failed run.
func (e *Engine) fetchPayload(ctx context.Context, a Adapter) ([]byte, bool, error) {
	key := cache.FeedRawKey(a.Name())
	cached, ok, err := e.cache.GetBytes(ctx, key)
	if err != nil {
		e.logger.Warn("reading cached payload", zap.String("feed", a.Name()), zap.Error(err))
	} else if ok {
		return cached, true, nil
	}

	start := time.Now()
	raw, err := a.Fetch(ctx)
	if err != nil {
		return nil, false, err
	}
	metrics.ObserveUpstreamLatency(a.Name(), time.Since(start).Seconds())

	if ttl := a.CacheTTL(); ttl > 0 {
		if err := e.cache.SetBytes(ctx, key, raw, ttl); err != nil {
			e.logger.Warn("caching feed payload", zap.String("feed", a.Name()), zap.Error(err))
		}
	}
	return raw, false, nil
}

// attachZoneGeometry fills in alerts that arrived without geometry by
// resolving their NWS zones and merging the polygons. Alerts whose zones
// all fail to resolve stay geometryless and are stored that way.
func (e *Engine) attachZoneGeometry(ctx context.Context, alerts []*hazard.WeatherAlert) {
	if e.zones == nil {
		return
	}
	var urls []string
	for _, al := range alerts {
		if len(al.Geometry) == 0 {
			urls = append(urls, al.AffectedZones...)
		}
	}
	if len(urls) == 0 {
		return
	}

	resolved := e.zones.Resolve(ctx, urls)
	for _, al := range alerts {
		if len(al.Geometry) != 0 {
			continue
		}
		var parts []json.RawMessage
		for _, zone := range al.AffectedZones {
			if g, ok := resolved[zone]; ok {
				parts = append(parts, g)
			}
		}
		if len(parts) == 0 {
			continue
		}
		merged, err := geo.MergeToMultiPolygon(parts)
		if err != nil {
			e.logger.Warn("merging zone polygons",
				zap.String("alert", al.NWSID),
				zap.Error(err))
			continue
		}
		al.Geometry = merged
	}
}

// reconcile deactivates rows this feed owns but no longer mentions, then
// runs the feed kind's expiry and purge sweeps. An empty feed deactivates
// everything it owns; rows reactivate if the feed mentions them again.
func (e *Engine) reconcile(ctx context.Context, a Adapter, keys []string) (int64, error) {
	switch a.Kind() {
	case KindRoadEvent:
		deactivated, err := e.events.DeactivateMissing(ctx, a.Name(), keys)
		if err != nil {
			return 0, fmt.Errorf("deactivating missing events: %w", err)
		}
		ended, err := e.events.DeactivateEnded(ctx, a.Name())
		if err != nil {
			return deactivated, fmt.Errorf("deactivating ended events: %w", err)
		}
		if _, err := e.events.PurgeInactive(ctx, a.Name(), e.retention); err != nil {
			return deactivated + ended, fmt.Errorf("purging inactive events: %w", err)
		}
		return deactivated + ended, nil

	case KindWeatherAlert:
		deactivated, err := e.alerts.DeactivateMissing(ctx, keys)
		if err != nil {
			return 0, fmt.Errorf("deactivating missing alerts: %w", err)
		}
		expired, err := e.alerts.DeactivateExpired(ctx)
		if err != nil {
			return deactivated, fmt.Errorf("deactivating expired alerts: %w", err)
		}
		if _, err := e.alerts.Purge(ctx, alertPurgeAfter); err != nil {
			return deactivated + expired, fmt.Errorf("purging alerts: %w", err)
		}
		return deactivated + expired, nil

	case KindParking:
		deactivated, err := e.parking.DeactivateMissing(ctx, a.Name(), keys)
		if err != nil {
			return 0, fmt.Errorf("deactivating missing facilities: %w", err)
		}
		return deactivated, nil

	default:
		// Availability updates patch rows in place, nothing to reconcile.
		return 0, nil
	}
}

func (e *Engine) fail(ctx context.Context, a Adapter, started time.Time, cause error) error {
	dur := time.Since(started)
	metrics.ObserveIngest(a.Name(), "failed", dur.Seconds())

	if err := e.feeds.UpsertFailure(ctx, a.Name(), a.URL(), a.State(), cause.Error()); err != nil {
		e.logger.Warn("recording feed failure", zap.String("feed", a.Name()), zap.Error(err))
	}
	entry := &store.IngestionLog{
		FeedName:     a.Name(),
		Status:       store.IngestFailed,
		StartedAt:    started,
		DurationMs:   int(dur.Milliseconds()),
		ErrorCount:   1,
		ErrorMessage: cause.Error(),
	}
	if err := e.feeds.AppendLog(ctx, entry); err != nil {
		e.logger.Warn("appending ingestion log", zap.String("feed", a.Name()), zap.Error(err))
	}
	md := map[string]any{"feed": a.Name(), "error": cause.Error()}
	if err := e.usage.Append(ctx, store.UsageFeedError, md, ""); err != nil {
		e.logger.Warn("appending usage event", zap.String("feed", a.Name()), zap.Error(err))
	}

	e.logger.Error("feed ingestion failed",
		zap.String("feed", a.Name()),
		zap.Duration("duration", dur),
		zap.Error(cause))
	return fmt.Errorf("ingesting %s: %w", a.Name(), cause)
}

func splitRecords(records []Record) (events []*hazard.RoadEvent, alerts []*hazard.WeatherAlert, facilities, updates []*hazard.ParkingFacility) {
	for _, r := range records {
		switch r.Kind {
		case KindRoadEvent:
			if r.RoadEvent != nil {
				events = append(events, r.RoadEvent)
			}
		case KindWeatherAlert:
			if r.WeatherAlert != nil {
				alerts = append(alerts, r.WeatherAlert)
			}
		case KindParking:
			if r.Parking != nil {
				facilities = append(facilities, r.Parking)
			}
		case KindParkingUpdate:
			if r.Parking != nil {
				updates = append(updates, r.Parking)
			}
		}
	}
	return events, alerts, facilities, updates
}

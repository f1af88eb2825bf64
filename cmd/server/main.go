// The roadpulse server: ingests state DOT work zone feeds, NWS weather
// alerts, and TPIMS truck parking feeds into PostGIS, and answers hazard
// and route-corridor queries over HTTP.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/roadpulse/server/internal/cache"
	"github.com/roadpulse/server/internal/clients/geocode"
	"github.com/roadpulse/server/internal/clients/nws"
	"github.com/roadpulse/server/internal/clients/ors"
	"github.com/roadpulse/server/internal/clients/tpims"
	"github.com/roadpulse/server/internal/clients/wzdx"
	"github.com/roadpulse/server/internal/config"
	"github.com/roadpulse/server/internal/httpapi"
	"github.com/roadpulse/server/internal/ingest"
	"github.com/roadpulse/server/internal/logging"
	"github.com/roadpulse/server/internal/metrics"
	"github.com/roadpulse/server/internal/scheduler"
	"github.com/roadpulse/server/internal/services"
	"github.com/roadpulse/server/internal/store"
)

var version = "dev" // set by the build

func main() {
	configPath := flag.String("config", "roadpulse.yaml", "path to the configuration file")
	flag.Parse()

	// The config file is optional; defaults plus environment cover a
	// containerized deployment.
	path := *configPath
	if _, err := os.Stat(path); err != nil {
		path = ""
	}
	cfg, err := config.Load(path)
	if err != nil {
		log.Fatalf("loading configuration: %v", err)
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		log.Fatalf("building logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("server exited", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	metrics.ExposeBuildInfo(version)

	if cfg.Database.MigrateOnStart {
		if err := store.Migrate(ctx, cfg.Database.URL); err != nil {
			return err
		}
		logger.Info("database schema up to date")
	}

	st, err := store.Open(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	c, err := cache.New(ctx, cfg.Redis.Addr,
		cache.WithPassword(cfg.Redis.Password),
		cache.WithDB(cfg.Redis.DB),
		cache.WithPoolSize(cfg.Redis.PoolSize),
		cache.WithDialTimeout(cfg.Redis.DialTimeout))
	if err != nil {
		return err
	}
	defer func() { _ = c.Close() }()

	// Upstream clients.
	wzdxClient := wzdx.NewClient(cfg.Feeds.FetchTimeout)
	nwsClient := nws.NewClient(cfg.Feeds.NWS.URL, cfg.Feeds.NWS.UserAgent, cfg.Feeds.FetchTimeout)
	tpimsClient := tpims.NewClient(cfg.Feeds.FetchTimeout)
	geocodeClient := geocode.NewClient(cfg.Geocoder.BaseURL, cfg.Geocoder.UserAgent, cfg.Geocoder.Timeout)
	orsClient := ors.NewClient(cfg.Routing.BaseURL, cfg.Routing.APIKey, cfg.Routing.Profile, cfg.Routing.Timeout)

	engine := ingest.NewEngine(ingest.EngineParams{
		Adapters: buildAdapters(cfg, wzdxClient, nwsClient, tpimsClient, logger),
		Events:   st.RoadEvents,
		Alerts:   st.WeatherAlerts,
		Parking:  st.Parking,
		Feeds:    st.Feeds,
		Reports:  st.Reports,
		Usage:    st.Usage,
		Zones: ingest.NewZoneResolver(nwsClient, c, logger.Named("zones"),
			cfg.Feeds.NWS.ZoneCacheTTL, cfg.Feeds.NWS.ZoneTimeout),
		Cache:              c,
		Logger:             logger.Named("ingest"),
		IntervalMinutes:    cfg.Scheduler.IntervalMinutes,
		RoadEventRetention: cfg.Feeds.RoadEventRetention,
	})

	sched, err := scheduler.New(scheduler.RedisOpt(cfg.Redis), engine, c,
		logger.Named("scheduler"), cfg.Scheduler.IntervalMinutes)
	if err != nil {
		return err
	}
	if err := sched.Start(); err != nil {
		return err
	}
	defer sched.Shutdown()

	hazards := services.NewHazardQuery(st.RoadEvents, st.WeatherAlerts, st.Reports)
	gate := cache.NewGate(c, logger.Named("gate"))

	srv := httpapi.New(httpapi.Deps{
		Events:      services.NewEventService(st.RoadEvents, logger.Named("events")),
		Alerts:      services.NewAlertService(st.WeatherAlerts, logger.Named("alerts")),
		Reports:     services.NewReportService(st.Reports, gate, st.Usage, logger.Named("reports"), cfg.RateLimits.Reports),
		Parking:     services.NewParkingService(st.Parking, logger.Named("parking")),
		Route:       services.NewRouteService(geocodeClient, orsClient, st, hazards, c, st.Usage, logger.Named("route"), cfg.Routing),
		Geocode:     services.NewGeocodeService(geocodeClient, gate, st.Usage, logger.Named("geocode"), cfg.RateLimits.Geocode),
		Auth:        services.NewAuthService(st.Users, gate, st.Usage, logger.Named("auth"), cfg.RateLimits),
		SavedRoutes: services.NewSavedRouteService(st.SavedRoutes, logger.Named("routes")),
		Feeds:       services.NewFeedHealthService(st.Feeds, logger.Named("feeds")),
		Scheduler:   sched,
		DB:          st,
		Cache:       c,
		Logger:      logger.Named("http"),
	})

	logger.Info("roadpulse server starting",
		zap.String("version", version),
		zap.Int("port", cfg.Server.Port),
		zap.Int("feeds", len(cfg.Feeds.WZDx)),
		zap.Int("intervalMinutes", cfg.Scheduler.IntervalMinutes))

	return srv.Serve(ctx, cfg.Server)
}

// buildAdapters registers every configured feed: one WZDx adapter per
// state DOT endpoint, the NWS alert pipeline, and the TPIMS parking pair
// when its URLs are configured.
func buildAdapters(cfg *config.Config, wzdxClient *wzdx.Client, nwsClient *nws.Client, tpimsClient *tpims.Client, logger *zap.Logger) []ingest.Adapter {
	var adapters []ingest.Adapter
	for _, feed := range cfg.Feeds.WZDx {
		adapters = append(adapters, ingest.NewWZDxAdapter(feed, wzdxClient))
	}
	adapters = append(adapters, ingest.NewNWSAdapter(cfg.Feeds.NWS, nwsClient))

	if cfg.Feeds.TPIMS.StaticURL != "" {
		adapters = append(adapters, ingest.NewTPIMSStaticAdapter(cfg.Feeds.TPIMS, tpimsClient))
		if cfg.Feeds.TPIMS.DynamicURL != "" {
			adapters = append(adapters, ingest.NewTPIMSDynamicAdapter(cfg.Feeds.TPIMS, tpimsClient))
		}
	} else {
		logger.Info("truck parking feeds not configured, skipping")
	}
	return adapters
}

// One-shot ingestion runner for operations: runs the full pipeline (or a
// single named feed) once against the configured database and exits.
// Useful for backfilling a fresh database and for debugging one feed
// without waiting on the scheduler.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/roadpulse/server/internal/cache"
	"github.com/roadpulse/server/internal/clients/nws"
	"github.com/roadpulse/server/internal/clients/tpims"
	"github.com/roadpulse/server/internal/clients/wzdx"
	"github.com/roadpulse/server/internal/config"
	"github.com/roadpulse/server/internal/ingest"
	"github.com/roadpulse/server/internal/logging"
	"github.com/roadpulse/server/internal/store"
)

func main() {
	configPath := flag.String("config", "roadpulse.yaml", "path to the configuration file")
	feedName := flag.String("feed", "", "ingest only this feed (default: all feeds)")
	skipCache := flag.Bool("fresh", false, "drop the cached payload first so the feed is re-fetched")
	flag.Parse()

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

	if err := run(ctx, cfg, logger, *feedName, *skipCache); err != nil {
		logger.Fatal("ingestion failed", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger, feedName string, fresh bool) error {
	if cfg.Database.MigrateOnStart {
		if err := store.Migrate(ctx, cfg.Database.URL); err != nil {
			return err
		}
	}

	st, err := store.Open(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	c, err := cache.New(ctx, cfg.Redis.Addr,
		cache.WithPassword(cfg.Redis.Password),
		cache.WithDB(cfg.Redis.DB))
	if err != nil {
		return err
	}
	defer func() { _ = c.Close() }()

	wzdxClient := wzdx.NewClient(cfg.Feeds.FetchTimeout)
	nwsClient := nws.NewClient(cfg.Feeds.NWS.URL, cfg.Feeds.NWS.UserAgent, cfg.Feeds.FetchTimeout)
	tpimsClient := tpims.NewClient(cfg.Feeds.FetchTimeout)

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
	}

	if feedName != "" {
		filtered := adapters[:0]
		for _, a := range adapters {
			if a.Name() == feedName {
				filtered = append(filtered, a)
			}
		}
		if len(filtered) == 0 {
			return fmt.Errorf("no configured feed named %q", feedName)
		}
		adapters = filtered
	}

	if fresh {
		for _, a := range adapters {
			if err := c.Delete(ctx, cache.FeedRawKey(a.Name())); err != nil {
				logger.Warn("dropping cached payload", zap.String("feed", a.Name()), zap.Error(err))
			}
		}
	}

	engine := ingest.NewEngine(ingest.EngineParams{
		Adapters: adapters,
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

	return engine.RunAll(ctx)
}

// Package httpapi is the JSON surface over the services: hazard listings,
// route checks, community reports, accounts, and the admin controls for
// the scheduler and feeds. Handlers stay thin; parsing and rendering live
// here, semantics live in the services.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/roadpulse/server/internal/config"
	"github.com/roadpulse/server/internal/metrics"
	"github.com/roadpulse/server/internal/scheduler"
	"github.com/roadpulse/server/internal/services"
)

// SchedulerControl is the admin slice of the scheduler.
type SchedulerControl interface {
	TriggerNow(ctx context.Context) error
	Pause(ctx context.Context) error
	Resume(ctx context.Context) error
	SetInterval(ctx context.Context, minutes int) error
	Status(ctx context.Context) (*scheduler.Status, error)
}

// Pinger is a connectivity check for the health endpoint.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server bundles the services behind the HTTP surface.
type Server struct {
	events      *services.EventService
	alerts      *services.AlertService
	reports     *services.ReportService
	parking     *services.ParkingService
	route       *services.RouteService
	geocode     *services.GeocodeService
	auth        *services.AuthService
	savedRoutes *services.SavedRouteService
	feeds       *services.FeedHealthService
	scheduler   SchedulerControl
	db          Pinger
	cache       Pinger
	logger      *zap.Logger
}

// Deps carries the server's collaborators.
type Deps struct {
	Events      *services.EventService
	Alerts      *services.AlertService
	Reports     *services.ReportService
	Parking     *services.ParkingService
	Route       *services.RouteService
	Geocode     *services.GeocodeService
	Auth        *services.AuthService
	SavedRoutes *services.SavedRouteService
	Feeds       *services.FeedHealthService
	Scheduler   SchedulerControl
	DB          Pinger
	Cache       Pinger
	Logger      *zap.Logger
}

func New(d Deps) *Server {
	return &Server{
		events:      d.Events,
		alerts:      d.Alerts,
		reports:     d.Reports,
		parking:     d.Parking,
		route:       d.Route,
		geocode:     d.Geocode,
		auth:        d.Auth,
		savedRoutes: d.SavedRoutes,
		feeds:       d.Feeds,
		scheduler:   d.Scheduler,
		db:          d.DB,
		cache:       d.Cache,
		logger:      d.Logger,
	}
}

// Router builds the route tree with the middleware chain applied.
func (s *Server) Router(corsOrigins []string) chi.Router {
	r := chi.NewRouter()
	r.Use(s.recoverer)
	r.Use(s.requestLogger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: corsOrigins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-User-ID"},
		MaxAge:         300,
	}))

	r.Get("/healthz", s.handleHealth)
	r.Method("GET", "/metrics", metrics.Handler())

	r.Post("/auth/register", s.handleRegister)
	r.Post("/auth/login", s.handleLogin)

	r.Get("/events", s.handleListEvents)
	r.Get("/events/clusters", s.handleEventClusters)
	r.Get("/alerts", s.handleListAlerts)
	r.Get("/parking", s.handleListParking)

	r.Get("/reports", s.handleListReports)
	r.Post("/reports", s.handleCreateReport)
	r.Get("/reports/{id}", s.handleGetReport)
	r.Post("/reports/{id}/vote", s.handleVote)

	r.Get("/geocode/suggestions", s.handleSuggestions)
	r.Post("/route/check", s.handleRouteCheck)

	r.Get("/routes", s.handleListSavedRoutes)
	r.Post("/routes", s.handleSaveRoute)
	r.Delete("/routes/{id}", s.handleDeleteSavedRoute)

	r.Route("/admin", func(r chi.Router) {
		r.Get("/scheduler", s.handleSchedulerStatus)
		r.Post("/scheduler", s.handleSchedulerAction)
		r.Get("/feeds", s.handleFeedStatuses)
		r.Get("/feeds/{feed}/logs", s.handleFeedLogs)
		r.Post("/feeds/{feed}", s.handleFeedToggle)
	})

	return r
}

// Serve runs the HTTP server until ctx is cancelled, then drains with the
// configured shutdown grace.
func (s *Server) Serve(ctx context.Context, cfg config.ServerConfig) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           s.Router(cfg.CorsOrigins),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		grace := cfg.ShutdownTimeout
		if grace <= 0 {
			grace = 10 * time.Second
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), grace)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// handleHealth reports readiness: the process is healthy when both the
// database and the cache answer.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	checks := map[string]string{"database": "ok", "cache": "ok"}
	healthy := true
	if err := s.db.Ping(ctx); err != nil {
		checks["database"] = "down"
		healthy = false
	}
	if err := s.cache.Ping(ctx); err != nil {
		checks["cache"] = "down"
		healthy = false
	}

	status := http.StatusOK
	state := "ok"
	if !healthy {
		status = http.StatusServiceUnavailable
		state = "degraded"
	}
	writeJSON(w, status, map[string]any{"status": state, "checks": checks})
}

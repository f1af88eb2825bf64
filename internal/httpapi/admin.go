package httpapi

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/roadpulse/server/internal/errcode"
)

func (s *Server) handleSchedulerStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.scheduler.Status(r.Context())
	if err != nil {
		s.writeError(w, r, errcode.Wrap(errcode.Internal, "reading scheduler status", err))
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// handleSchedulerAction applies one control action: pause, resume,
// trigger, or set-interval.
func (s *Server) handleSchedulerAction(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Action          string `json:"action"`
		IntervalMinutes int    `json:"intervalMinutes"`
	}
	if err := decodeJSON(w, r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}

	ctx := r.Context()
	var err error
	switch in.Action {
	case "pause":
		err = s.scheduler.Pause(ctx)
	case "resume":
		err = s.scheduler.Resume(ctx)
	case "trigger":
		err = s.scheduler.TriggerNow(ctx)
	case "set-interval":
		err = s.scheduler.SetInterval(ctx, in.IntervalMinutes)
	default:
		s.writeError(w, r, errcode.Newf(errcode.BadRequest,
			"action must be pause, resume, trigger, or set-interval").
			WithDetails(map[string]any{"field": "action"}))
		return
	}
	if err != nil {
		if errcode.CodeOf(err) != errcode.Internal {
			s.writeError(w, r, err)
		} else {
			s.writeError(w, r, errcode.Wrap(errcode.Internal, "applying scheduler action", err))
		}
		return
	}

	st, err := s.scheduler.Status(ctx)
	if err != nil {
		s.writeError(w, r, errcode.Wrap(errcode.Internal, "reading scheduler status", err))
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleFeedStatuses(w http.ResponseWriter, r *http.Request) {
	statuses, err := s.feeds.Statuses(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"feeds": statuses})
}

func (s *Server) handleFeedLogs(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			s.writeError(w, r, errcode.New(errcode.BadRequest, "limit must be a positive integer").
				WithDetails(map[string]any{"field": "limit"}))
			return
		}
		limit = n
	}

	logs, err := s.feeds.Logs(r.Context(), chi.URLParam(r, "feed"), limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"logs": logs})
}

func (s *Server) handleFeedToggle(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Enabled *bool `json:"enabled"`
	}
	if err := decodeJSON(w, r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	if in.Enabled == nil {
		s.writeError(w, r, errcode.New(errcode.MissingFields, "enabled is required").
			WithDetails(map[string]any{"field": "enabled"}))
		return
	}

	if err := s.feeds.SetEnabled(r.Context(), chi.URLParam(r, "feed"), *in.Enabled); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"feed":    chi.URLParam(r, "feed"),
		"enabled": *in.Enabled,
	})
}

package httpapi

import (
	"net/http"

	"github.com/roadpulse/server/internal/errcode"
	"github.com/roadpulse/server/internal/services"
)

func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	zoom, err := parseZoom(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	bbox, err := parseBBoxParam(r, zoom != nil)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	limit, offset, err := parsePage(r, 0, 500)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	q := services.EventQuery{
		BBox:       bbox,
		Zoom:       zoom,
		Severities: parseSeverities(r),
		State:      r.URL.Query().Get("state"),
		Type:       r.URL.Query().Get("type"),
		ActiveOnly: parseActiveOnly(r),
		Limit:      limit,
		Offset:     offset,
	}
	if q.Zoom == nil && q.Limit <= 0 {
		q.Limit = 100
	}

	events, total, err := s.events.List(r.Context(), q)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"events": events,
		"total":  total,
		"filters": map[string]any{
			"activeOnly": q.ActiveOnly,
			"severity":   q.Severities,
			"state":      q.State,
			"type":       q.Type,
			"limit":      q.Limit,
			"offset":     q.Offset,
		},
	})
}

func (s *Server) handleEventClusters(w http.ResponseWriter, r *http.Request) {
	zoom, err := parseZoom(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if zoom == nil {
		s.writeError(w, r, errcode.New(errcode.MissingFields, "zoom is required").
			WithDetails(map[string]any{"field": "zoom"}))
		return
	}
	bbox, err := parseBBoxParam(r, true)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if bbox == nil {
		s.writeError(w, r, errcode.New(errcode.MissingFields, "bbox is required").
			WithDetails(map[string]any{"field": "bbox"}))
		return
	}

	clusters, err := s.events.Clusters(r.Context(), bbox, *zoom)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"clusters": clusters})
}

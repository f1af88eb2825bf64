package httpapi

import (
	"net/http"

	"github.com/roadpulse/server/internal/services"
)

func (s *Server) handleListAlerts(w http.ResponseWriter, r *http.Request) {
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

	q := services.AlertQuery{
		BBox:       bbox,
		Zoom:       zoom,
		Severities: parseSeverities(r),
		ActiveOnly: parseActiveOnly(r),
		Limit:      limit,
		Offset:     offset,
	}
	if q.Zoom == nil && q.Limit <= 0 {
		q.Limit = 100
	}

	alerts, total, err := s.alerts.List(r.Context(), q)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"alerts": alerts,
		"total":  total,
		"filters": map[string]any{
			"activeOnly": q.ActiveOnly,
			"severity":   q.Severities,
			"limit":      q.Limit,
			"offset":     q.Offset,
		},
	})
}

func (s *Server) handleListParking(w http.ResponseWriter, r *http.Request) {
	bbox, err := parseBBoxParam(r, false)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	limit, offset, err := parsePage(r, 100, 500)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	facilities, total, err := s.parking.List(r.Context(), services.ParkingQuery{
		BBox:       bbox,
		State:      r.URL.Query().Get("state"),
		ActiveOnly: parseActiveOnly(r),
		Limit:      limit,
		Offset:     offset,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"facilities": facilities,
		"total":      total,
	})
}

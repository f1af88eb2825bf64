package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/roadpulse/server/internal/services"
)

func (s *Server) handleListReports(w http.ResponseWriter, r *http.Request) {
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

	reports, total, err := s.reports.List(r.Context(), services.ReportQuery{
		BBox:       bbox,
		Type:       r.URL.Query().Get("type"),
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
		"reports": reports,
		"total":   total,
	})
}

func (s *Server) handleCreateReport(w http.ResponseWriter, r *http.Request) {
	var in services.CreateReportInput
	if err := decodeJSON(w, r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}

	report, err := s.reports.Create(r.Context(), userID(r), clientIP(r), in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, report)
}

func (s *Server) handleGetReport(w http.ResponseWriter, r *http.Request) {
	report, err := s.reports.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleVote(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Vote string `json:"vote"`
	}
	if err := decodeJSON(w, r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}

	res, err := s.reports.Vote(r.Context(), chi.URLParam(r, "id"), userID(r), in.Vote)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

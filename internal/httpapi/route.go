package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/roadpulse/server/internal/clients/geocode"
	"github.com/roadpulse/server/internal/services"
)

func (s *Server) handleRouteCheck(w http.ResponseWriter, r *http.Request) {
	var in services.CheckInput
	if err := decodeJSON(w, r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}

	res, err := s.route.Check(r.Context(), in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleSuggestions(w http.ResponseWriter, r *http.Request) {
	results, err := s.geocode.Suggest(r.Context(), clientIP(r), r.URL.Query().Get("q"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if results == nil {
		results = []geocode.Result{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"suggestions": results})
}

func (s *Server) handleListSavedRoutes(w http.ResponseWriter, r *http.Request) {
	routes, err := s.savedRoutes.ListByUser(r.Context(), userID(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"routes": routes})
}

func (s *Server) handleSaveRoute(w http.ResponseWriter, r *http.Request) {
	var in services.SaveRouteInput
	if err := decodeJSON(w, r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}

	route, err := s.savedRoutes.Save(r.Context(), userID(r), in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, route)
}

func (s *Server) handleDeleteSavedRoute(w http.ResponseWriter, r *http.Request) {
	if err := s.savedRoutes.Delete(r.Context(), chi.URLParam(r, "id"), userID(r)); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

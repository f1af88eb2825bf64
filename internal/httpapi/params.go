package httpapi

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/roadpulse/server/internal/errcode"
	"github.com/roadpulse/server/internal/lib/geo"
)

// parseBBoxParam parses and validates an optional bbox query value. The
// per-axis span cap only applies to detail queries; zoom-driven requests
// may cover the whole map because the zoom policy caps the row count
// instead.
func parseBBoxParam(r *http.Request, hasZoom bool) (*geo.BBox, error) {
	raw := r.URL.Query().Get("bbox")
	if raw == "" {
		return nil, nil
	}
	bbox, err := geo.ParseBBox(raw)
	if err != nil {
		return nil, errcode.Wrap(errcode.InvalidBBox, err.Error(), nil)
	}
	if err := bbox.Validate(!hasZoom); err != nil {
		return nil, errcode.Wrap(errcode.InvalidBBox, err.Error(), nil)
	}
	return bbox, nil
}

// parseZoom parses an optional zoom level.
func parseZoom(r *http.Request) (*int, error) {
	raw := r.URL.Query().Get("zoom")
	if raw == "" {
		return nil, nil
	}
	z, err := strconv.Atoi(raw)
	if err != nil || z < 0 || z > 22 {
		return nil, errcode.Newf(errcode.BadRequest, "zoom must be an integer between 0 and 22").
			WithDetails(map[string]any{"field": "zoom"})
	}
	return &z, nil
}

// parsePage parses limit and offset with a hard row cap.
func parsePage(r *http.Request, defaultLimit, maxLimit int) (limit, offset int, err error) {
	q := r.URL.Query()
	limit = defaultLimit
	if raw := q.Get("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit < 1 {
			return 0, 0, errcode.New(errcode.BadRequest, "limit must be a positive integer").
				WithDetails(map[string]any{"field": "limit"})
		}
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	if raw := q.Get("offset"); raw != "" {
		offset, err = strconv.Atoi(raw)
		if err != nil || offset < 0 {
			return 0, 0, errcode.New(errcode.BadRequest, "offset must be a non-negative integer").
				WithDetails(map[string]any{"field": "offset"})
		}
	}
	return limit, offset, nil
}

// parseActiveOnly reads the active_only flag, defaulting to true: every
// consumer of these listings wants live hazards unless it says otherwise.
func parseActiveOnly(r *http.Request) bool {
	raw := r.URL.Query().Get("active_only")
	if raw == "" {
		return true
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return true
	}
	return v
}

// parseSeverities splits a comma-separated severity filter.
func parseSeverities(r *http.Request) []string {
	raw := r.URL.Query().Get("severity")
	if raw == "" {
		return nil
	}
	var out []string
	for _, s := range strings.Split(raw, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

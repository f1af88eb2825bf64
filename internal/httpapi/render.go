package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/roadpulse/server/internal/errcode"
)

// maxBodyBytes caps request bodies. Nothing this API accepts is close to
// this large.
const maxBodyBytes = 1 << 20

// errorEnvelope is the error shape every endpoint answers with.
type errorEnvelope struct {
	Error   string `json:"error"`
	Code    string `json:"code"`
	Details any    `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError renders a classified error. Unclassified errors become
// INTERNAL_ERROR with a generic message; the cause only reaches the logs.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := errcode.CodeOf(err)
	status := errcode.HTTPStatus(code)
	details := errcode.DetailsOf(err)

	if status == http.StatusTooManyRequests {
		if m, ok := details.(map[string]any); ok {
			if retry, ok := m["retryAfter"].(int); ok && retry > 0 {
				w.Header().Set("Retry-After", fmt.Sprintf("%d", retry))
			}
		}
	}
	if status >= 500 {
		s.logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("code", string(code)),
			zap.Error(err))
	}

	writeJSON(w, status, errorEnvelope{
		Error:   errcode.MessageOf(err),
		Code:    string(code),
		Details: details,
	})
}

// decodeJSON reads a JSON request body with a size cap. Oversized bodies
// answer PAYLOAD_TOO_LARGE, everything else malformed answers BAD_REQUEST.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return errcode.Newf(errcode.PayloadTooLarge, "request body exceeds %d bytes", maxErr.Limit)
		}
		return errcode.Wrap(errcode.BadRequest, "malformed JSON body", err)
	}
	return nil
}

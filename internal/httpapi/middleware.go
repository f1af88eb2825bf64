package httpapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/roadpulse/server/internal/errcode"
	"github.com/roadpulse/server/internal/metrics"
)

// requestLogger logs one line per request and feeds the HTTP metrics. The
// route label is chi's pattern so metric cardinality stays bounded.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = r.URL.Path
		}
		elapsed := time.Since(start)
		metrics.ObserveHTTP(r.Method, route, ww.Status(), elapsed.Seconds())
		s.logger.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", elapsed),
			zap.String("ip", clientIP(r)))
	})
}

// recoverer turns a handler panic into a logged INTERNAL_ERROR response.
func (s *Server) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("handler panic",
					zap.Any("panic", rec),
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Stack("stack"))
				writeJSON(w, http.StatusInternalServerError, errorEnvelope{
					Error: "internal server error",
					Code:  string(errcode.Internal),
				})
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// clientIP derives the caller's address for rate limiting. X-Real-IP wins;
// otherwise the last X-Forwarded-For hop, which the trusted proxy appended
// and the client cannot forge.
func clientIP(r *http.Request) string {
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		hops := strings.Split(xff, ",")
		if ip := strings.TrimSpace(hops[len(hops)-1]); ip != "" {
			return ip
		}
	}
	if host := r.RemoteAddr; host != "" {
		if i := strings.LastIndex(host, ":"); i > 0 {
			return host[:i]
		}
		return host
	}
	return "unknown"
}

// userID is the account the fronting auth layer resolved for this
// request. Empty means anonymous; handlers that need an identity reject
// that themselves.
func userID(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get("X-User-ID"))
}

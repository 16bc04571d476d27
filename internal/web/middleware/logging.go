// Package middleware provides HTTP middleware for the import API.
package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/rosterimport/internal/logging"
)

// Logger writes one structured line per request. Besides timing and status
// it records the chi route pattern and the import kind or run id the route
// was called with, so a run can be followed across its requests.
func Logger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(ww, r)

		attrs := []any{
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.status,
			"bytes", ww.bytes,
			"duration_ms", time.Since(start).Milliseconds(),
			"ip", clientAddr(r),
		}
		// Routing fills the shared route context, so params are readable here.
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				attrs = append(attrs, "route", pattern)
			}
			for _, key := range []string{"kind", "runID"} {
				if v := rctx.URLParam(key); v != "" {
					attrs = append(attrs, routeParamAttr(key), v)
				}
			}
		}

		log := logging.FromContext(r.Context())
		switch {
		case ww.status >= http.StatusInternalServerError:
			log.Error("request", attrs...)
		case ww.status >= http.StatusBadRequest:
			log.Warn("request", attrs...)
		default:
			log.Info("request", attrs...)
		}
	})
}

func routeParamAttr(key string) string {
	if key == "runID" {
		return "run_id"
	}
	return key
}

func clientAddr(r *http.Request) string {
	if ip := ClientIP(r.Context()); ip != "" {
		return ip
	}
	return r.RemoteAddr
}

// responseWriter records the status code and body size.
type responseWriter struct {
	http.ResponseWriter
	status      int
	bytes       int
	wroteHeader bool
}

func (w *responseWriter) WriteHeader(status int) {
	if w.wroteHeader {
		return
	}
	w.status = status
	w.wroteHeader = true
	w.ResponseWriter.WriteHeader(status)
}

func (w *responseWriter) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	n, err := w.ResponseWriter.Write(b)
	w.bytes += n
	return n, err
}

// Unwrap lets http.ResponseController reach the Flusher for SSE.
func (w *responseWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

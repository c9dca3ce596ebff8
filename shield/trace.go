package shield

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hazyhaar/lazyload/idgen"
	"github.com/hazyhaar/lazyload/kit"
)

// Trace assigns each request a trace ID, exposed as X-Trace-ID and stored
// under kit.TraceIDKey, and a per-request logger stored under LoggerKey.
// An incoming X-Trace-ID is kept.
func Trace(logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			traceID := r.Header.Get("X-Trace-ID")
			if traceID == "" {
				traceID = shortID(idgen.New())
			}
			w.Header().Set("X-Trace-ID", traceID)

			reqLogger := logger.With(
				"trace_id", traceID,
				"method", r.Method,
				"path", r.URL.Path,
			)
			ctx := kit.WithTraceID(r.Context(), traceID)
			ctx = context.WithValue(ctx, LoggerKey, reqLogger)
			reqLogger.Debug("request", "remote_addr", r.RemoteAddr)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// shortID keeps the random tail of a UUIDv7; its head is the timestamp.
func shortID(id string) string {
	id = strings.ReplaceAll(id, "-", "")
	if len(id) > 16 {
		return id[len(id)-16:]
	}
	return id
}

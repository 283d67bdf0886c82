package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/mkrupp/tokengate/internal/infra/logging"
)

// LoggingMiddleware writes one access log record per request once the response is done.
// The level follows the status class: 5xx logs at ERROR, 4xx at WARN, others at INFO.
// Only the path is logged, so query strings never reach the log.
func LoggingMiddleware(next http.Handler, log logging.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := newStatusRecorder(w)

		next.ServeHTTP(rec, r)

		status := rec.Status()

		level := logging.LevelInfo
		if status >= http.StatusInternalServerError {
			level = logging.LevelError
		} else if status >= http.StatusBadRequest {
			level = logging.LevelWarn
		}

		log.Log(r.Context(), level, "request served", slog.Group("http",
			"method", r.Method,
			"path", r.URL.Path,
			"remote", r.RemoteAddr,
			"status", status,
			"bytes", rec.bytes,
			"duration_ms", time.Since(start).Milliseconds(),
		))
	})
}

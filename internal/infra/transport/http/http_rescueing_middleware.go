package http

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/mkrupp/tokengate/internal/infra/logging"
)

// RescueingMiddleware turns a handler panic into a logged 500 response.
// http.ErrAbortHandler is re-raised so the server aborts the connection as usual.
// If the handler already started its response, the status is left as sent.
func RescueingMiddleware(next http.Handler, log logging.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := newStatusRecorder(w)

		defer func() {
			recovered := recover()
			if recovered == nil {
				return
			}

			if err, ok := recovered.(error); ok && errors.Is(err, http.ErrAbortHandler) {
				panic(recovered)
			}

			log.ErrorContext(r.Context(), "handler panicked",
				slog.Group("http", "method", r.Method, "path", r.URL.Path),
				slog.Group("error", "panic", fmt.Sprint(recovered), "stack", string(debug.Stack())),
			)

			if !rec.headerWritten() {
				WriteDetail(rec, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
			}
		}()

		next.ServeHTTP(rec, r)
	})
}

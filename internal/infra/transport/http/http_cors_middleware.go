package http

import (
	"net/http"
	"slices"
	"strings"
)

const (
	corsAllowMethods = "GET, POST, OPTIONS"
	corsMaxAge       = "600"
)

// CORSMiddleware creates middleware that answers cross-origin requests from the allowed origins.
// The matching origin is echoed back. Credentials are allowed only for origins
// listed by name; an origin admitted by "*" gets no Access-Control-Allow-Credentials.
// Preflight requests are answered with 204 and never reach next.
func CORSMiddleware(next http.Handler, origins []string) http.Handler {
	allowAny := slices.Contains(origins, "*")

	allowed := make(map[string]struct{}, len(origins))
	for _, origin := range origins {
		allowed[strings.TrimRight(origin, "/")] = struct{}{}
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin == "" {
			next.ServeHTTP(w, r)

			return
		}

		header := w.Header()
		header.Add("Vary", "Origin")

		_, ok := allowed[origin]
		if !ok && !allowAny {
			next.ServeHTTP(w, r)

			return
		}

		header.Set("Access-Control-Allow-Origin", origin)

		if ok {
			header.Set("Access-Control-Allow-Credentials", "true")
		}

		if r.Method != http.MethodOptions || r.Header.Get("Access-Control-Request-Method") == "" {
			next.ServeHTTP(w, r)

			return
		}

		header.Set("Access-Control-Allow-Methods", corsAllowMethods)

		if reqHeaders := r.Header.Get("Access-Control-Request-Headers"); reqHeaders != "" {
			header.Set("Access-Control-Allow-Headers", reqHeaders)
		}

		header.Set("Access-Control-Max-Age", corsMaxAge)
		w.WriteHeader(http.StatusNoContent)
	})
}

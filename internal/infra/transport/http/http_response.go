package http

import (
	"encoding/json"
	"net/http"
)

// WriteUnauthorized writes a 401 response with a Bearer challenge.
func WriteUnauthorized(w http.ResponseWriter, detail string) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	WriteDetail(w, http.StatusUnauthorized, detail)
}

// WriteDetail writes a {"detail": ...} error body.
func WriteDetail(w http.ResponseWriter, status int, detail string) {
	_ = WriteJSON(w, status, map[string]string{"detail": detail})
}

// WriteJSON writes v as a JSON response body with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	//nolint:wrapcheck
	return json.NewEncoder(w).Encode(v)
}

package httpx

import (
	"encoding/json"
	"errors"
	"net/http"

	"lifebuilder-backend/internal/ai"
	"lifebuilder-backend/internal/storage"
)

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func WriteError(w http.ResponseWriter, status int, msg string) {
	WriteJSON(w, status, map[string]string{"error": msg})
}

// WriteFailure maps the error taxonomy onto HTTP statuses: NotFound -> 404,
// upstream AI failure -> 500 with a retryable message, anything else -> 500.
func WriteFailure(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		WriteError(w, http.StatusNotFound, "not found")
	case errors.Is(err, ai.ErrUpstream):
		WriteError(w, http.StatusInternalServerError, "assistant unavailable, please retry")
	default:
		WriteError(w, http.StatusInternalServerError, "internal error")
	}
}

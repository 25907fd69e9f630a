package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/wrenfall/terraclaim/internal/service"
)

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Error encoding response")
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// decodeJSON reads and decodes JSON from a request body.
func decodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

// writeServiceError maps service error categories to HTTP statuses:
// missing entities 404, bad input 400, rule rejections and lost races 409,
// unavailable collaborators 503.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrTerritoryNotFound),
		errors.Is(err, service.ErrBattleNotFound),
		errors.Is(err, service.ErrUserNotFound),
		errors.Is(err, service.ErrBlueprintNotFound),
		errors.Is(err, service.ErrWarNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrEligibility),
		errors.Is(err, service.ErrConcurrency):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, service.ErrDependency):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

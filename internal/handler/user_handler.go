package handler

import (
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/wrenfall/terraclaim/internal/auth"
	"github.com/wrenfall/terraclaim/internal/repository"
)

// UserHandler handles user profile and blueprint endpoints.
type UserHandler struct {
	userRepo      repository.UserRepository
	blueprintRepo repository.BlueprintRepository
	territoryRepo repository.TerritoryRepository
}

// NewUserHandler creates a UserHandler.
func NewUserHandler(userRepo repository.UserRepository, blueprintRepo repository.BlueprintRepository, territoryRepo repository.TerritoryRepository) *UserHandler {
	return &UserHandler{userRepo: userRepo, blueprintRepo: blueprintRepo, territoryRepo: territoryRepo}
}

// GetMe handles GET /api/users/me. Reading your own profile counts as
// activity for the defense bonus.
func (h *UserHandler) GetMe(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())
	user, err := h.userRepo.FindByID(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if user == nil {
		writeError(w, http.StatusNotFound, "user not found")
		return
	}
	if err := h.userRepo.TouchActivity(r.Context(), userID, time.Now()); err != nil {
		log.Warn().Err(err).Str("userId", userID).Msg("Failed to record activity")
	}
	writeJSON(w, http.StatusOK, user)
}

// GetUser handles GET /api/users/{id}
func (h *UserHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	user, err := h.userRepo.FindByID(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if user == nil {
		writeError(w, http.StatusNotFound, "user not found")
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// ListMyTerritories handles GET /api/users/me/territories
func (h *UserHandler) ListMyTerritories(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())
	territories, err := h.territoryRepo.ListByOwner(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if territories == nil {
		writeJSON(w, http.StatusOK, []struct{}{})
		return
	}
	writeJSON(w, http.StatusOK, territories)
}

// ListMyBlueprints handles GET /api/users/me/blueprints
func (h *UserHandler) ListMyBlueprints(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())
	blueprints, err := h.blueprintRepo.ListByOwner(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if blueprints == nil {
		writeJSON(w, http.StatusOK, []struct{}{})
		return
	}
	writeJSON(w, http.StatusOK, blueprints)
}

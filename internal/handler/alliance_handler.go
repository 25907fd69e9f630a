package handler

import (
	"net/http"
	"time"

	"github.com/wrenfall/terraclaim/internal/auth"
	"github.com/wrenfall/terraclaim/internal/service"
)

// AllianceHandler handles alliance war endpoints.
type AllianceHandler struct {
	warSvc *service.AllianceWarService
}

// NewAllianceHandler creates an AllianceHandler.
func NewAllianceHandler(warSvc *service.AllianceWarService) *AllianceHandler {
	return &AllianceHandler{warSvc: warSvc}
}

// DeclareWar handles POST /api/wars
func (h *AllianceHandler) DeclareWar(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())
	var req struct {
		TargetAllianceID string `json:"target_alliance_id"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.TargetAllianceID == "" {
		writeError(w, http.StatusBadRequest, "target_alliance_id is required")
		return
	}

	war, err := h.warSvc.DeclareWar(r.Context(), userID, req.TargetAllianceID, time.Now())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, war)
}

// GetWar handles GET /api/wars/{id}. The read itself advances the phase
// machine against the wall clock.
func (h *AllianceHandler) GetWar(w http.ResponseWriter, r *http.Request) {
	war, err := h.warSvc.Get(r.Context(), r.PathValue("id"), time.Now())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, war)
}

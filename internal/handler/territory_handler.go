package handler

import (
	"net/http"
	"time"

	"github.com/wrenfall/terraclaim/internal/auth"
	"github.com/wrenfall/terraclaim/internal/service"
)

// TerritoryHandler handles territory claim, read, reclaim, and relocation
// endpoints.
type TerritoryHandler struct {
	territorySvc *service.TerritoryService
	reclaimSvc   *service.ReclaimService
}

// NewTerritoryHandler creates a TerritoryHandler.
func NewTerritoryHandler(territorySvc *service.TerritoryService, reclaimSvc *service.ReclaimService) *TerritoryHandler {
	return &TerritoryHandler{territorySvc: territorySvc, reclaimSvc: reclaimSvc}
}

// claimRequest carries the territory center and the claimant's measured
// position.
type claimRequest struct {
	TerritoryID string  `json:"territory_id,omitempty"`
	Name        string  `json:"name,omitempty"`
	Lat         float64 `json:"lat"`
	Lng         float64 `json:"lng"`
	UserLat     float64 `json:"user_lat"`
	UserLng     float64 `json:"user_lng"`
}

// Claim handles POST /api/territories/claim. With a territory_id it claims
// an existing fallen territory; without one it establishes a new territory
// at the given center.
func (h *TerritoryHandler) Claim(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())
	var req claimRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.TerritoryID != "" {
		terr, err := h.territorySvc.ClaimFallen(r.Context(), userID, req.TerritoryID, req.UserLat, req.UserLng, time.Now())
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, terr)
		return
	}

	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	terr, err := h.territorySvc.Claim(r.Context(), userID, req.Name, req.Lat, req.Lng, req.UserLat, req.UserLng, time.Now())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, terr)
}

// Get handles GET /api/territories/{id}
func (h *TerritoryHandler) Get(w http.ResponseWriter, r *http.Request) {
	terr, err := h.territorySvc.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, terr)
}

// Production handles GET /api/territories/{id}/production
func (h *TerritoryHandler) Production(w http.ResponseWriter, r *http.Request) {
	state, mult, err := h.territorySvc.Production(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"state":      state,
		"multiplier": mult,
	})
}

// Reclaim handles POST /api/territories/{id}/reclaim
func (h *TerritoryHandler) Reclaim(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())
	out, err := h.reclaimSvc.Reclaim(r.Context(), userID, r.PathValue("id"), time.Now())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// Relocate handles POST /api/territories/relocate
func (h *TerritoryHandler) Relocate(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())
	var req struct {
		BlueprintID string  `json:"blueprint_id"`
		Name        string  `json:"name"`
		Lat         float64 `json:"lat"`
		Lng         float64 `json:"lng"`
		UserLat     float64 `json:"user_lat"`
		UserLng     float64 `json:"user_lng"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.BlueprintID == "" || req.Name == "" {
		writeError(w, http.StatusBadRequest, "blueprint_id and name are required")
		return
	}

	out, err := h.reclaimSvc.Relocate(r.Context(), userID, req.BlueprintID, req.Name, req.Lat, req.Lng, req.UserLat, req.UserLng, time.Now())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}

package handler

import (
	"net/http"
	"time"

	"github.com/wrenfall/terraclaim/internal/auth"
	"github.com/wrenfall/terraclaim/internal/service"
	"github.com/wrenfall/terraclaim/pkg/siege"
)

// BattleHandler handles battle scheduling, preparation, and read endpoints.
type BattleHandler struct {
	battleSvc *service.BattleService
}

// NewBattleHandler creates a BattleHandler.
func NewBattleHandler(battleSvc *service.BattleService) *BattleHandler {
	return &BattleHandler{battleSvc: battleSvc}
}

// Schedule handles POST /api/battles
func (h *BattleHandler) Schedule(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())
	var req struct {
		TerritoryID string  `json:"territory_id"`
		Lat         float64 `json:"lat"`
		Lng         float64 `json:"lng"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.TerritoryID == "" {
		writeError(w, http.StatusBadRequest, "territory_id is required")
		return
	}

	battle, err := h.battleSvc.ScheduleBattle(r.Context(), userID, req.TerritoryID, req.Lat, req.Lng, time.Now())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, battle)
}

// Prepare handles POST /api/battles/{id}/formation
func (h *BattleHandler) Prepare(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())
	var req struct {
		Formation siege.Formation `json:"formation"`
		Lat       float64         `json:"lat"`
		Lng       float64         `json:"lng"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.battleSvc.PrepareBattle(r.Context(), r.PathValue("id"), userID, req.Formation, req.Lat, req.Lng, time.Now()); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "staged"})
}

// Get handles GET /api/battles/{id}
func (h *BattleHandler) Get(w http.ResponseWriter, r *http.Request) {
	battle, err := h.battleSvc.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, battle)
}

// Participation handles GET /api/battles/{id}/participation
func (h *BattleHandler) Participation(w http.ResponseWriter, r *http.Request) {
	recs, err := h.battleSvc.Participation(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if recs == nil {
		writeJSON(w, http.StatusOK, []struct{}{})
		return
	}
	writeJSON(w, http.StatusOK, recs)
}

// Cancel handles POST /api/battles/{id}/cancel
func (h *BattleHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	battle, err := h.battleSvc.CancelBattle(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, battle)
}

package service

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/wrenfall/terraclaim/internal/model"
	"github.com/wrenfall/terraclaim/internal/repository"
	"github.com/wrenfall/terraclaim/pkg/siege"
)

// ReclaimCostFraction of the blueprint's cumulative build cost is charged
// to reclaim a fallen territory. The economy collaborator debits it; the
// engine only computes and reports the figure.
const ReclaimCostFraction = 0.3

// ReclaimOutcome reports a successful reclaim or relocation.
type ReclaimOutcome struct {
	Territory *model.Territory `json:"territory"`
	Cost      int              `json:"cost"`
}

// ReclaimService lets a displaced owner recover a fallen territory at a
// discount, or replay its blueprint somewhere else entirely.
type ReclaimService struct {
	territories   *TerritoryService
	blueprintRepo repository.BlueprintRepository
	broadcaster   Broadcaster
}

// NewReclaimService creates a ReclaimService.
func NewReclaimService(territories *TerritoryService, blueprintRepo repository.BlueprintRepository, broadcaster Broadcaster) *ReclaimService {
	if broadcaster == nil {
		broadcaster = NoopBroadcaster{}
	}
	return &ReclaimService{territories: territories, blueprintRepo: blueprintRepo, broadcaster: broadcaster}
}

// Reclaim restores a fallen territory to its previous owner: blueprint
// structures rebuilt, state reset to secure, losses cleared. Legal only for
// the previous owner, once the 24h cooldown has elapsed, and only while no
// new claimant has taken the territory.
func (s *ReclaimService) Reclaim(ctx context.Context, userID, territoryID string, now time.Time) (*ReclaimOutcome, error) {
	var cost int
	t, err := s.territories.mutate(ctx, territoryID, func(t *model.Territory) error {
		if t.State != siege.StateFallen {
			return ErrTerritoryNotFallen
		}
		if t.OwnerID != "" {
			return ErrTerritoryOwned
		}
		if t.PreviousOwnerID != userID {
			return ErrNotPreviousOwner
		}
		if now.Sub(t.LastStateChangeAt) < siege.ReclaimCooldown {
			return ErrReclaimTooSoon
		}

		bp, err := s.blueprintRepo.FindByID(ctx, t.BlueprintID)
		if err != nil {
			return err
		}
		if bp == nil {
			return ErrBlueprintNotFound
		}
		cost = reclaimCost(bp.BuildCost)

		t.OwnerID = userID
		t.PreviousOwnerID = ""
		t.State = siege.StateSecure
		t.BattleLosses = 0
		t.Structures = bp.Structures
		t.LastStateChangeAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Info().Str("territoryId", territoryID).Str("ownerId", userID).
		Int("cost", cost).Msg("Territory reclaimed")
	s.broadcaster.BroadcastTerritoryEvent(territoryID, "territory_reclaimed", t)
	return &ReclaimOutcome{Territory: t, Cost: cost}, nil
}

// Relocate claims a fresh territory at a new location and replays a saved
// blueprint there, preserving the owner's design effort after displacement.
func (s *ReclaimService) Relocate(ctx context.Context, userID, blueprintID, name string, lat, lng, userLat, userLng float64, now time.Time) (*ReclaimOutcome, error) {
	bp, err := s.blueprintRepo.FindByID(ctx, blueprintID)
	if err != nil {
		return nil, err
	}
	if bp == nil {
		return nil, ErrBlueprintNotFound
	}
	if bp.OwnerID != userID {
		return nil, ErrNotPreviousOwner
	}

	t, err := s.territories.Claim(ctx, userID, name, lat, lng, userLat, userLng, now)
	if err != nil {
		return nil, err
	}

	cost := reclaimCost(bp.BuildCost)
	t, err = s.territories.mutate(ctx, t.ID, func(t *model.Territory) error {
		t.Structures = bp.Structures
		t.BlueprintID = bp.ID
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("replay blueprint: %w", err)
	}

	log.Info().Str("territoryId", t.ID).Str("blueprintId", blueprintID).
		Str("ownerId", userID).Msg("Blueprint relocated")
	return &ReclaimOutcome{Territory: t, Cost: cost}, nil
}

func reclaimCost(buildCost int) int {
	return int(math.Round(float64(buildCost) * ReclaimCostFraction))
}

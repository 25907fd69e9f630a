package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/wrenfall/terraclaim/internal/model"
	"github.com/wrenfall/terraclaim/internal/repository"
	"github.com/wrenfall/terraclaim/pkg/siege"
)

// DensityClassifier resolves a coordinate to a zone density. Implemented by
// internal/geo against the external mapping service.
type DensityClassifier interface {
	ClassifyDensity(ctx context.Context, lat, lng float64) (siege.Density, error)
}

// TerritoryService owns territory lifecycle: claims, battle verdict
// application, and production reads. All mutations funnel through a
// version-CAS update so claim, applyBattleResult, and reclaim are mutually
// exclusive per territory while reads stay lock-free.
type TerritoryService struct {
	territoryRepo repository.TerritoryRepository
	blueprintRepo repository.BlueprintRepository
	classifier    DensityClassifier
	broadcaster   Broadcaster
}

// NewTerritoryService creates a TerritoryService.
func NewTerritoryService(
	territoryRepo repository.TerritoryRepository,
	blueprintRepo repository.BlueprintRepository,
	classifier DensityClassifier,
	broadcaster Broadcaster,
) *TerritoryService {
	if broadcaster == nil {
		broadcaster = NoopBroadcaster{}
	}
	return &TerritoryService{
		territoryRepo: territoryRepo,
		blueprintRepo: blueprintRepo,
		classifier:    classifier,
		broadcaster:   broadcaster,
	}
}

// starterStructures is the layout every fresh claim starts with.
func starterStructures() []siege.Structure {
	return []siege.Structure{
		{Kind: siege.StructureCitadelCore, X: 0, Y: 0, BuildCost: 500, MaxHealth: 1000, Health: 1000},
		{Kind: siege.StructureWall, X: -1, Y: 0, BuildCost: 100, MaxHealth: 400, Health: 400},
		{Kind: siege.StructureWall, X: 1, Y: 0, BuildCost: 100, MaxHealth: 400, Health: 400},
	}
}

// Claim establishes a new territory centered on the given coordinate. The
// claimant must be standing inside the density-derived radius, and the new
// zone may not overlap an existing territory. Density lookup failures fall
// back to rural rather than blocking the claim.
func (s *TerritoryService) Claim(ctx context.Context, userID, name string, lat, lng, userLat, userLng float64, now time.Time) (*model.Territory, error) {
	density, err := s.classifier.ClassifyDensity(ctx, lat, lng)
	if err != nil {
		log.Warn().Err(err).Float64("lat", lat).Float64("lng", lng).
			Msg("Density lookup unavailable, claiming as rural")
	}
	radius := siege.RadiusFor(density)

	if siege.DistanceMeters(userLat, userLng, lat, lng) > radius {
		return nil, ErrTooFarAway
	}

	// The largest possible radius bounds the overlap search.
	maxRadius := siege.RadiusFor(siege.Rural)
	near, err := s.territoryRepo.ListNear(ctx, lat, lng, radius+maxRadius)
	if err != nil {
		return nil, fmt.Errorf("list nearby territories: %w", err)
	}
	for _, other := range near {
		if siege.DistanceMeters(lat, lng, other.Lat, other.Lng) < radius+other.RadiusMeters {
			return nil, ErrTerritoryOverlap
		}
	}

	structures, err := json.Marshal(starterStructures())
	if err != nil {
		return nil, fmt.Errorf("marshal structures: %w", err)
	}

	t := &model.Territory{
		ID:                uuid.NewString(),
		OwnerID:           userID,
		Name:              name,
		Lat:               lat,
		Lng:               lng,
		RadiusMeters:      radius,
		Density:           density,
		State:             siege.StateSecure,
		Structures:        structures,
		LastStateChangeAt: now,
	}
	if err := s.territoryRepo.Create(ctx, t); err != nil {
		return nil, fmt.Errorf("create territory: %w", err)
	}

	log.Info().Str("territoryId", t.ID).Str("ownerId", userID).
		Str("density", string(density)).Float64("radius", radius).
		Msg("Territory claimed")
	return t, nil
}

// ClaimFallen lets any player take over a fallen territory once the 24h
// reclaim window reserved for the previous owner has elapsed. The new owner
// starts from the default layout; the fallen blueprint stays with whoever
// lost the territory.
func (s *TerritoryService) ClaimFallen(ctx context.Context, userID, territoryID string, userLat, userLng float64, now time.Time) (*model.Territory, error) {
	return s.mutate(ctx, territoryID, func(t *model.Territory) error {
		if t.OwnerID != "" {
			return ErrTerritoryOwned
		}
		if t.State != siege.StateFallen {
			return ErrTerritoryNotFallen
		}
		if now.Sub(t.LastStateChangeAt) < siege.ReclaimCooldown {
			return ErrReclaimTooSoon
		}
		if siege.DistanceMeters(userLat, userLng, t.Lat, t.Lng) > t.RadiusMeters {
			return ErrTooFarAway
		}

		structures, err := json.Marshal(starterStructures())
		if err != nil {
			return fmt.Errorf("marshal structures: %w", err)
		}
		t.OwnerID = userID
		t.PreviousOwnerID = ""
		t.BlueprintID = ""
		t.State = siege.StateSecure
		t.BattleLosses = 0
		t.Structures = structures
		t.LastStateChangeAt = now
		return nil
	})
}

// Get returns a territory by ID.
func (s *TerritoryService) Get(ctx context.Context, territoryID string) (*model.Territory, error) {
	t, err := s.territoryRepo.FindByID(ctx, territoryID)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, ErrTerritoryNotFound
	}
	return t, nil
}

// Production reports the state-derived production multiplier. The economy
// collaborator reads this; the engine never computes resource totals.
func (s *TerritoryService) Production(ctx context.Context, territoryID string) (siege.TerritoryState, float64, error) {
	t, err := s.Get(ctx, territoryID)
	if err != nil {
		return "", 0, err
	}
	return t.State, siege.ProductionMultiplier(t.State), nil
}

// ApplyBattleResult folds a battle verdict into the territory state machine.
// A defender win leaves the territory untouched. An attacker win adds a loss
// and advances the state; on the third loss the territory falls: the owner
// is cleared, the structure layout is snapshotted into a blueprint for the
// displaced owner, and the 24h reclaim window starts.
func (s *TerritoryService) ApplyBattleResult(ctx context.Context, territoryID string, winner siege.Winner, now time.Time) (*model.Territory, error) {
	if winner != siege.WinnerAttacker {
		return s.Get(ctx, territoryID)
	}
	var fellFrom string
	var snapshot *model.Blueprint
	t, err := s.mutate(ctx, territoryID, func(t *model.Territory) error {
		fellFrom = ""
		snapshot = nil
		if t.OwnerID == "" || t.State == siege.StateFallen {
			// Lost to someone else between resolution and application.
			return nil
		}
		t.BattleLosses++
		t.State = siege.StateForLosses(t.BattleLosses)
		t.LastStateChangeAt = now

		if t.State != siege.StateFallen {
			return nil
		}

		snapshot = &model.Blueprint{
			ID:                uuid.NewString(),
			OwnerID:           t.OwnerID,
			SourceTerritoryID: t.ID,
			Structures:        t.Structures,
			BuildCost:         structuresBuildCost(t.Structures),
		}
		fellFrom = t.OwnerID
		t.PreviousOwnerID = t.OwnerID
		t.OwnerID = ""
		t.BlueprintID = snapshot.ID
		return nil
	})
	if err != nil {
		return nil, err
	}

	// The blueprint row is written only after the CAS commit so a lost
	// retry never leaves an orphaned snapshot behind.
	if snapshot != nil {
		if err := s.blueprintRepo.Create(ctx, snapshot); err != nil {
			return nil, fmt.Errorf("snapshot blueprint: %w", err)
		}
	}

	if fellFrom != "" {
		log.Info().Str("territoryId", t.ID).Str("previousOwnerId", fellFrom).
			Str("blueprintId", t.BlueprintID).Msg("Territory fallen")
		s.broadcaster.NotifyUser(fellFrom, "territory_fallen", t)
	}
	s.broadcaster.BroadcastTerritoryEvent(t.ID, "territory_updated", t)
	return t, nil
}

// mutate runs fn against a fresh read of the territory and writes it back
// under the version CAS. One transparent retry on a lost race, then the
// caller sees ErrConcurrency.
func (s *TerritoryService) mutate(ctx context.Context, territoryID string, fn func(*model.Territory) error) (*model.Territory, error) {
	for attempt := 0; attempt < 2; attempt++ {
		t, err := s.territoryRepo.FindByID(ctx, territoryID)
		if err != nil {
			return nil, err
		}
		if t == nil {
			return nil, ErrTerritoryNotFound
		}
		if err := fn(t); err != nil {
			return nil, err
		}
		ok, err := s.territoryRepo.UpdateCAS(ctx, t, t.Version)
		if err != nil {
			return nil, fmt.Errorf("update territory: %w", err)
		}
		if ok {
			return t, nil
		}
		log.Debug().Str("territoryId", territoryID).Int("attempt", attempt).
			Msg("Territory version moved, retrying")
	}
	return nil, ErrConcurrency
}

// structuresBuildCost sums the cumulative build cost of a structure layout.
func structuresBuildCost(raw json.RawMessage) int {
	var structures []siege.Structure
	if err := json.Unmarshal(raw, &structures); err != nil {
		return 0
	}
	total := 0
	for _, st := range structures {
		total += st.BuildCost
	}
	return total
}

package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/wrenfall/terraclaim/internal/model"
)

// UserRepository defines player data operations.
type UserRepository interface {
	FindByID(ctx context.Context, id string) (*model.User, error)
	FindByProviderID(ctx context.Context, provider, providerID string) (*model.User, error)
	Upsert(ctx context.Context, provider, providerID, displayName, avatarURL string) (*model.User, error)
	TouchActivity(ctx context.Context, id string, at time.Time) error
	SetAlliance(ctx context.Context, id, allianceID string) error
	// AddPowerRating credits battle rewards onto a player's power rating.
	AddPowerRating(ctx context.Context, id string, delta float64) error
}

// TerritoryRepository defines territory data operations. All mutations go
// through UpdateCAS so that claim, battle application, and reclaim are
// serialized per territory without blocking readers.
type TerritoryRepository interface {
	Create(ctx context.Context, t *model.Territory) error
	FindByID(ctx context.Context, id string) (*model.Territory, error)
	ListByOwner(ctx context.Context, ownerID string) ([]model.Territory, error)
	ListNear(ctx context.Context, lat, lng, radiusMeters float64) ([]model.Territory, error)
	// UpdateCAS writes the territory's mutable fields in a single statement
	// guarded by the version column. Returns false when the version moved.
	UpdateCAS(ctx context.Context, t *model.Territory, expectedVersion int64) (bool, error)
}

// BattleRepository defines scheduled battle data operations.
type BattleRepository interface {
	Create(ctx context.Context, b *model.ScheduledBattle) error
	FindByID(ctx context.Context, id string) (*model.ScheduledBattle, error)
	// LastAttackAt returns the creation time of the most recent non-cancelled
	// battle by this attacker against this territory, or nil.
	LastAttackAt(ctx context.Context, attackerID, territoryID string) (*time.Time, error)
	// LastAllianceAttackAt is the same check keyed by the attacker's alliance.
	LastAllianceAttackAt(ctx context.Context, allianceID, territoryID string) (*time.Time, error)
	MarkPrepared(ctx context.Context, id string) error
	// ResolveCAS transitions scheduled|prepared -> resolved, storing the
	// formations and result. Returns false if another caller won the race.
	ResolveCAS(ctx context.Context, id string, attackerFormation, defenderFormation, result json.RawMessage, resolvedAt time.Time) (bool, error)
	// CancelCAS transitions scheduled|prepared -> cancelled. Returns false
	// if the battle was already resolved or cancelled.
	CancelCAS(ctx context.Context, id string) (bool, error)
	ListDue(ctx context.Context, now time.Time) ([]model.ScheduledBattle, error)
	ListPending(ctx context.Context) ([]model.ScheduledBattle, error)
	ListByTerritory(ctx context.Context, territoryID string) ([]model.ScheduledBattle, error)
}

// ParticipationRepository defines the immutable participation audit trail.
type ParticipationRepository interface {
	// Create inserts the record; a duplicate (battle, user) pair is a no-op
	// so the first measurement wins.
	Create(ctx context.Context, rec *model.ParticipationRecord) error
	ListByBattle(ctx context.Context, battleID string) ([]model.ParticipationRecord, error)
}

// BlueprintRepository defines blueprint snapshot operations.
type BlueprintRepository interface {
	Create(ctx context.Context, bp *model.Blueprint) error
	FindByID(ctx context.Context, id string) (*model.Blueprint, error)
	ListByOwner(ctx context.Context, ownerID string) ([]model.Blueprint, error)
}

// AllianceWarRepository defines alliance war data operations.
type AllianceWarRepository interface {
	Create(ctx context.Context, war *model.AllianceWar) error
	FindByID(ctx context.Context, id string) (*model.AllianceWar, error)
	// FindBetween returns the most recent non-ended war involving the two
	// alliances in either direction, or nil.
	FindBetween(ctx context.Context, allianceA, allianceB string) (*model.AllianceWar, error)
	UpdatePhase(ctx context.Context, id, phase string, at time.Time) error
	AddScore(ctx context.Context, id string, attackerPoints, defenderPoints int) error
}

// BattleCache defines hot per-battle state operations (Redis).
type BattleCache interface {
	// SetFormation stages one side's formation; sides overwrite only their
	// own slot (last-writer-per-side).
	SetFormation(ctx context.Context, battleID, side string, formation json.RawMessage) error
	GetFormations(ctx context.Context, battleID string) (map[string]json.RawMessage, error)
	SetBattleTimer(ctx context.Context, battleID string, deadline time.Time) error
	ClearBattleData(ctx context.Context, battleID string) error
	SetPostBattleShield(ctx context.Context, userID string, endedAt time.Time) error
	PostBattleShieldActive(ctx context.Context, userID string) (bool, error)
	SetDensity(ctx context.Context, cell, density string) error
	GetDensity(ctx context.Context, cell string) (string, error)
}

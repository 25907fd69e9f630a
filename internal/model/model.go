package model

import (
	"encoding/json"
	"time"

	"github.com/wrenfall/terraclaim/pkg/siege"
)

// User represents a registered player.
type User struct {
	ID                    string    `json:"id"`
	Provider              string    `json:"provider"`
	ProviderID            string    `json:"provider_id"`
	DisplayName           string    `json:"display_name"`
	AvatarURL             string    `json:"avatar_url,omitempty"`
	AllianceID            string    `json:"alliance_id,omitempty"`
	PowerRating           float64   `json:"power_rating"`
	NewcomerShieldExpires time.Time `json:"newcomer_shield_expires"`
	LastActiveAt          time.Time `json:"last_active_at"`
	CreatedAt             time.Time `json:"created_at"`
	UpdatedAt             time.Time `json:"updated_at"`
}

// Territory is a claimed geographic zone with its siege state.
type Territory struct {
	ID                string               `json:"id"`
	OwnerID           string               `json:"owner_id,omitempty"`
	PreviousOwnerID   string               `json:"previous_owner_id,omitempty"`
	Name              string               `json:"name"`
	Lat               float64              `json:"lat"`
	Lng               float64              `json:"lng"`
	RadiusMeters      float64              `json:"radius_meters"`
	Density           siege.Density        `json:"density"`
	State             siege.TerritoryState `json:"state"`
	BattleLosses      int                  `json:"battle_losses"`
	Structures        json.RawMessage      `json:"structures"` // []siege.Structure
	BlueprintID       string               `json:"blueprint_id,omitempty"`
	Version           int64                `json:"version"` // optimistic concurrency token
	LastStateChangeAt time.Time            `json:"last_state_change_at"`
	CreatedAt         time.Time            `json:"created_at"`
}

// Battle lifecycle states.
const (
	BattleScheduled = "scheduled"
	BattlePrepared  = "prepared"
	BattleResolved  = "resolved"
	BattleCancelled = "cancelled"
)

// ScheduledBattle is an attack on a territory, resolved at its deadline.
type ScheduledBattle struct {
	ID                string          `json:"id"`
	AttackerID        string          `json:"attacker_id"`
	DefenderID        string          `json:"defender_id"`
	TerritoryID       string          `json:"territory_id"`
	State             string          `json:"state"`
	ScheduledAt       time.Time       `json:"scheduled_at"` // execution deadline, creation+24h
	AttackerFormation json.RawMessage `json:"attacker_formation,omitempty"`
	DefenderFormation json.RawMessage `json:"defender_formation,omitempty"`
	RewardScale       float64         `json:"reward_scale"` // matchmaking penalty x war stake
	WarID             string          `json:"war_id,omitempty"`
	Result            json.RawMessage `json:"result,omitempty"` // siege.Result, set on resolution
	ResolvedAt        *time.Time      `json:"resolved_at,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
}

// ParticipationRecord is the immutable audit entry for a user's presence at
// a battle. One record per user per battle.
type ParticipationRecord struct {
	ID             string     `json:"id"`
	BattleID       string     `json:"battle_id"`
	UserID         string     `json:"user_id"`
	Tier           siege.Tier `json:"tier"`
	Multiplier     float64    `json:"multiplier"`
	DistanceMeters float64    `json:"distance_meters"`
	RecordedAt     time.Time  `json:"recorded_at"`
}

// Blueprint is a saved snapshot of a territory's building layout.
type Blueprint struct {
	ID                string          `json:"id"`
	OwnerID           string          `json:"owner_id"`
	SourceTerritoryID string          `json:"source_territory_id,omitempty"`
	Structures        json.RawMessage `json:"structures"` // []siege.Structure
	BuildCost         int             `json:"build_cost"` // cumulative, for reclaim pricing
	CreatedAt         time.Time       `json:"created_at"`
}

// Alliance war phases.
const (
	WarWarning     = "warning"
	WarActive      = "active"
	WarPeaceTreaty = "peace_treaty"
	WarEnded       = "ended"
)

// AllianceWar tracks a declared war between two alliances.
type AllianceWar struct {
	ID                  string    `json:"id"`
	AttackingAllianceID string    `json:"attacking_alliance_id"`
	DefendingAllianceID string    `json:"defending_alliance_id"`
	Phase               string    `json:"phase"`
	DeclaredAt          time.Time `json:"declared_at"`
	PhaseChangedAt      time.Time `json:"phase_changed_at"`
	AttackerScore       int       `json:"attacker_score"`
	DefenderScore       int       `json:"defender_score"`
}

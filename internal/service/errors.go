package service

import (
	"errors"
	"fmt"
)

// Error categories. Handlers map these to HTTP statuses with errors.Is;
// concrete reasons below wrap exactly one category.
var (
	// ErrValidation marks bad input: unknown entities, malformed formations.
	// Never retried.
	ErrValidation = errors.New("validation failed")
	// ErrEligibility marks a rule rejection: shields, cooldowns, matchmaking.
	// The caller must re-request under new conditions.
	ErrEligibility = errors.New("not eligible")
	// ErrConcurrency marks a lost CAS race after the engine's single
	// transparent retry. Safe for the caller to retry by re-reading state.
	ErrConcurrency = errors.New("concurrent modification")
	// ErrDependency marks an unavailable collaborator. The engine degrades
	// (rural fallback) rather than failing claim flows outright.
	ErrDependency = errors.New("dependency unavailable")
)

// Validation reasons.
var (
	ErrTerritoryNotFound = fmt.Errorf("%w: territory not found", ErrValidation)
	ErrBattleNotFound    = fmt.Errorf("%w: battle not found", ErrValidation)
	ErrUserNotFound      = fmt.Errorf("%w: user not found", ErrValidation)
	ErrBlueprintNotFound = fmt.Errorf("%w: blueprint not found", ErrValidation)
	ErrWarNotFound       = fmt.Errorf("%w: alliance war not found", ErrValidation)
	ErrInvalidFormation  = fmt.Errorf("%w: invalid formation", ErrValidation)
	ErrNotInAlliance     = fmt.Errorf("%w: user is not in an alliance", ErrValidation)
	ErrSameAlliance      = fmt.Errorf("%w: cannot declare war on own alliance", ErrValidation)
)

// Eligibility reasons.
var (
	ErrDefenderShielded   = fmt.Errorf("%w: defender has an active newcomer shield", ErrEligibility)
	ErrPostBattleShield   = fmt.Errorf("%w: post-battle shield active", ErrEligibility)
	ErrAttackCooldown     = fmt.Errorf("%w: attacker hit this territory within 48h", ErrEligibility)
	ErrAllianceCooldown   = fmt.Errorf("%w: alliance hit this territory within 24h", ErrEligibility)
	ErrMatchmakingBlocked = fmt.Errorf("%w: power gap too large", ErrEligibility)
	ErrPeaceTreaty        = fmt.Errorf("%w: peace treaty in effect", ErrEligibility)
	ErrTerritoryOwned     = fmt.Errorf("%w: territory already has an owner", ErrEligibility)
	ErrTerritoryUnowned   = fmt.Errorf("%w: territory has no owner to attack", ErrEligibility)
	ErrTerritoryNotFallen = fmt.Errorf("%w: territory has not fallen", ErrEligibility)
	ErrReclaimTooSoon     = fmt.Errorf("%w: reclaim cooldown has not elapsed", ErrEligibility)
	ErrNotPreviousOwner   = fmt.Errorf("%w: only the previous owner may reclaim", ErrEligibility)
	ErrTooFarAway         = fmt.Errorf("%w: physical presence required", ErrEligibility)
	ErrTerritoryOverlap   = fmt.Errorf("%w: overlaps an existing territory", ErrEligibility)
	ErrSelfAttack         = fmt.Errorf("%w: cannot attack own territory", ErrEligibility)
	ErrPreparationClosed  = fmt.Errorf("%w: battle preparation window closed", ErrEligibility)
	ErrBattleDecided      = fmt.Errorf("%w: battle already resolved or cancelled", ErrEligibility)
	ErrNotParticipant     = fmt.Errorf("%w: user is not a side in this battle", ErrEligibility)
	ErrWarExists          = fmt.Errorf("%w: war already in progress between these alliances", ErrEligibility)
)

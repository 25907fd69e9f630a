package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/wrenfall/terraclaim/internal/model"
	"github.com/wrenfall/terraclaim/internal/repository"
	"github.com/wrenfall/terraclaim/pkg/siege"
)

const (
	// BattleDelay is how far in the future a scheduled battle resolves.
	BattleDelay = 24 * time.Hour
	// attackerTerritoryCooldown blocks the same attacker hitting the same
	// territory again.
	attackerTerritoryCooldown = 48 * time.Hour
	// allianceTerritoryCooldown blocks any member of the same alliance
	// hitting the same territory again.
	allianceTerritoryCooldown = 24 * time.Hour
	// baseVictoryReward is the power-rating credit for winning a battle,
	// before matchmaking penalties and war stakes.
	baseVictoryReward = 100.0
)

// Formation sides as stored in the battle cache.
const (
	SideAttacker = "attacker"
	SideDefender = "defender"
)

// BattleService schedules attacks, stages formations during the 24h
// preparation window, and executes battles at their deadline. Execution is
// idempotent: resolution is a state-CAS in Postgres, and any caller that
// loses the race reads back the stored result.
type BattleService struct {
	battleRepo        repository.BattleRepository
	territoryRepo     repository.TerritoryRepository
	userRepo          repository.UserRepository
	participationRepo repository.ParticipationRepository
	cache             repository.BattleCache
	territories       *TerritoryService
	wars              *AllianceWarService
	broadcaster       Broadcaster

	// battleLocks serializes execution per battle. The keyspace listener
	// and the poller can fire for the same battle at once; the CAS makes
	// that safe, but the lock keeps side effects from interleaving.
	battleLocks sync.Map
}

// NewBattleService creates a BattleService.
func NewBattleService(
	battleRepo repository.BattleRepository,
	territoryRepo repository.TerritoryRepository,
	userRepo repository.UserRepository,
	participationRepo repository.ParticipationRepository,
	cache repository.BattleCache,
	territories *TerritoryService,
	wars *AllianceWarService,
	broadcaster Broadcaster,
) *BattleService {
	if broadcaster == nil {
		broadcaster = NoopBroadcaster{}
	}
	return &BattleService{
		battleRepo:        battleRepo,
		territoryRepo:     territoryRepo,
		userRepo:          userRepo,
		participationRepo: participationRepo,
		cache:             cache,
		territories:       territories,
		wars:              wars,
		broadcaster:       broadcaster,
	}
}

// ScheduleBattle declares an attack on a territory, resolving 24h later.
// The attacker's participation tier is measured from their location at
// declaration time. Every fairness rule is checked here: newcomer and
// post-battle shields, attacker and alliance cooldowns, peace treaties, and
// proportional matchmaking.
func (s *BattleService) ScheduleBattle(ctx context.Context, attackerID, territoryID string, lat, lng float64, now time.Time) (*model.ScheduledBattle, error) {
	territory, err := s.territoryRepo.FindByID(ctx, territoryID)
	if err != nil {
		return nil, err
	}
	if territory == nil {
		return nil, ErrTerritoryNotFound
	}
	if territory.OwnerID == "" {
		return nil, ErrTerritoryUnowned
	}
	if territory.OwnerID == attackerID {
		return nil, ErrSelfAttack
	}

	attacker, err := s.userRepo.FindByID(ctx, attackerID)
	if err != nil {
		return nil, err
	}
	if attacker == nil {
		return nil, ErrUserNotFound
	}
	defender, err := s.userRepo.FindByID(ctx, territory.OwnerID)
	if err != nil {
		return nil, err
	}
	if defender == nil {
		return nil, ErrUserNotFound
	}

	if siege.NewcomerShielded(defender.NewcomerShieldExpires, now) {
		return nil, ErrDefenderShielded
	}
	for _, id := range []string{attackerID, defender.ID} {
		shielded, err := s.cache.PostBattleShieldActive(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("%w: post-battle shield check: %v", ErrDependency, err)
		}
		if shielded {
			return nil, ErrPostBattleShield
		}
	}

	last, err := s.battleRepo.LastAttackAt(ctx, attackerID, territoryID)
	if err != nil {
		return nil, err
	}
	if last != nil && now.Sub(*last) < attackerTerritoryCooldown {
		return nil, ErrAttackCooldown
	}
	if attacker.AllianceID != "" {
		last, err := s.battleRepo.LastAllianceAttackAt(ctx, attacker.AllianceID, territoryID)
		if err != nil {
			return nil, err
		}
		if last != nil && now.Sub(*last) < allianceTerritoryCooldown {
			return nil, ErrAllianceCooldown
		}
	}

	var warID string
	if attacker.AllianceID != "" && defender.AllianceID != "" && attacker.AllianceID != defender.AllianceID {
		war, err := s.wars.CurrentBetween(ctx, attacker.AllianceID, defender.AllianceID, now)
		if err != nil {
			return nil, err
		}
		if war != nil {
			// Hard override: nothing is scheduled under a treaty,
			// no matter what the cooldowns say.
			if war.Phase == model.WarPeaceTreaty {
				return nil, ErrPeaceTreaty
			}
			warID = war.ID
		}
	}

	rewardScale := 1.0
	switch siege.Matchmaking(attacker.PowerRating, defender.PowerRating) {
	case siege.MatchBlocked:
		return nil, ErrMatchmakingBlocked
	case siege.MatchRewardPenalty:
		rewardScale = siege.RewardPenaltyScale
	}

	battle := &model.ScheduledBattle{
		ID:          uuid.NewString(),
		AttackerID:  attackerID,
		DefenderID:  defender.ID,
		TerritoryID: territoryID,
		State:       model.BattleScheduled,
		ScheduledAt: now.Add(BattleDelay),
		RewardScale: rewardScale,
		WarID:       warID,
	}
	if err := s.battleRepo.Create(ctx, battle); err != nil {
		return nil, fmt.Errorf("create battle: %w", err)
	}

	if err := s.recordParticipation(ctx, battle.ID, attackerID, territory, lat, lng, now); err != nil {
		log.Error().Err(err).Str("battleId", battle.ID).Msg("Failed to record attacker participation")
	}
	if err := s.cache.SetBattleTimer(ctx, battle.ID, battle.ScheduledAt); err != nil {
		log.Error().Err(err).Str("battleId", battle.ID).
			Msg("Failed to set battle timer, poller will pick it up")
	}

	log.Info().Str("battleId", battle.ID).Str("attackerId", attackerID).
		Str("territoryId", territoryID).Time("scheduledAt", battle.ScheduledAt).
		Float64("rewardScale", rewardScale).Msg("Battle scheduled")
	s.broadcaster.NotifyUser(defender.ID, "battle_scheduled", battle)
	return battle, nil
}

// PrepareBattle stages one side's formation for a pending battle. Each side
// may re-stage any number of times before the deadline; the last write per
// side wins. The caller's location is measured into their participation
// record (first measurement wins).
func (s *BattleService) PrepareBattle(ctx context.Context, battleID, userID string, formation siege.Formation, lat, lng float64, now time.Time) error {
	battle, err := s.battleRepo.FindByID(ctx, battleID)
	if err != nil {
		return err
	}
	if battle == nil {
		return ErrBattleNotFound
	}
	if battle.State == model.BattleResolved || battle.State == model.BattleCancelled {
		return ErrBattleDecided
	}
	if !now.Before(battle.ScheduledAt) {
		return ErrPreparationClosed
	}

	var side string
	switch userID {
	case battle.AttackerID:
		side = SideAttacker
	case battle.DefenderID:
		side = SideDefender
	default:
		return ErrNotParticipant
	}

	if !formation.Valid() || formation.TotalTroops() == 0 {
		return ErrInvalidFormation
	}
	raw, err := json.Marshal(formation)
	if err != nil {
		return fmt.Errorf("marshal formation: %w", err)
	}
	if err := s.cache.SetFormation(ctx, battleID, side, raw); err != nil {
		return fmt.Errorf("%w: stage formation: %v", ErrDependency, err)
	}

	territory, err := s.territoryRepo.FindByID(ctx, battle.TerritoryID)
	if err == nil && territory != nil {
		if err := s.recordParticipation(ctx, battleID, userID, territory, lat, lng, now); err != nil {
			log.Error().Err(err).Str("battleId", battleID).Str("userId", userID).
				Msg("Failed to record participation")
		}
	}

	forms, err := s.cache.GetFormations(ctx, battleID)
	if err != nil {
		return fmt.Errorf("read staged formations: %w", err)
	}
	if len(forms) == 2 && battle.State == model.BattleScheduled {
		if err := s.battleRepo.MarkPrepared(ctx, battleID); err != nil {
			return fmt.Errorf("mark prepared: %w", err)
		}
		log.Info().Str("battleId", battleID).Msg("Both formations staged, battle prepared")
	}
	return nil
}

// ExecuteBattle resolves a battle at (or after) its deadline. Safe to call
// from multiple triggers at once: the resolution is a single CAS, and a
// caller that loses the race returns the already-stored result. If the
// territory changed hands since scheduling, the battle is cancelled instead.
func (s *BattleService) ExecuteBattle(ctx context.Context, battleID string, now time.Time) (*model.ScheduledBattle, error) {
	mu, _ := s.battleLocks.LoadOrStore(battleID, &sync.Mutex{})
	lock := mu.(*sync.Mutex)
	lock.Lock()
	defer lock.Unlock()
	defer s.battleLocks.Delete(battleID)

	battle, err := s.battleRepo.FindByID(ctx, battleID)
	if err != nil {
		return nil, err
	}
	if battle == nil {
		return nil, ErrBattleNotFound
	}
	if battle.State == model.BattleResolved || battle.State == model.BattleCancelled {
		return battle, nil
	}

	territory, err := s.territoryRepo.FindByID(ctx, battle.TerritoryID)
	if err != nil {
		return nil, err
	}
	if territory == nil || territory.OwnerID != battle.DefenderID {
		// Defender no longer holds the territory; nothing to fight over.
		if _, err := s.battleRepo.CancelCAS(ctx, battleID); err != nil {
			return nil, err
		}
		if err := s.cache.ClearBattleData(ctx, battleID); err != nil {
			log.Warn().Err(err).Str("battleId", battleID).Msg("Failed to clear battle cache")
		}
		log.Info().Str("battleId", battleID).Msg("Battle cancelled, territory changed hands")
		return s.battleRepo.FindByID(ctx, battleID)
	}

	attackerFormation, defenderFormation, err := s.stagedFormations(ctx, battleID)
	if err != nil {
		return nil, err
	}

	input, err := s.buildInput(ctx, battle, territory, attackerFormation, defenderFormation, now)
	if err != nil {
		return nil, err
	}
	result := siege.Resolve(input)

	attRaw, _ := json.Marshal(attackerFormation)
	defRaw, _ := json.Marshal(defenderFormation)
	resultRaw, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("marshal result: %w", err)
	}

	won, err := s.battleRepo.ResolveCAS(ctx, battleID, attRaw, defRaw, resultRaw, now)
	if err != nil {
		return nil, fmt.Errorf("resolve battle: %w", err)
	}
	if !won {
		// Another trigger resolved or cancelled it first.
		return s.battleRepo.FindByID(ctx, battleID)
	}

	battle.State = model.BattleResolved
	battle.AttackerFormation = attRaw
	battle.DefenderFormation = defRaw
	battle.Result = resultRaw
	battle.ResolvedAt = &now

	s.applyOutcome(ctx, battle, result, now)

	log.Info().Str("battleId", battleID).Str("winner", string(result.Winner)).
		Bool("decisive", result.Decisive).Int("rounds", result.Rounds).
		Msg("Battle resolved")
	return battle, nil
}

// CancelBattle withdraws a pending battle. Races against execution are
// settled by the state CAS: a battle can never be both.
func (s *BattleService) CancelBattle(ctx context.Context, battleID string) (*model.ScheduledBattle, error) {
	battle, err := s.battleRepo.FindByID(ctx, battleID)
	if err != nil {
		return nil, err
	}
	if battle == nil {
		return nil, ErrBattleNotFound
	}
	ok, err := s.battleRepo.CancelCAS(ctx, battleID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrBattleDecided
	}
	if err := s.cache.ClearBattleData(ctx, battleID); err != nil {
		log.Warn().Err(err).Str("battleId", battleID).Msg("Failed to clear battle cache")
	}
	battle.State = model.BattleCancelled
	log.Info().Str("battleId", battleID).Msg("Battle cancelled")
	return battle, nil
}

// Get returns a battle by ID.
func (s *BattleService) Get(ctx context.Context, battleID string) (*model.ScheduledBattle, error) {
	battle, err := s.battleRepo.FindByID(ctx, battleID)
	if err != nil {
		return nil, err
	}
	if battle == nil {
		return nil, ErrBattleNotFound
	}
	return battle, nil
}

// Participation returns the audit trail for a battle.
func (s *BattleService) Participation(ctx context.Context, battleID string) ([]model.ParticipationRecord, error) {
	return s.participationRepo.ListByBattle(ctx, battleID)
}

// recordParticipation measures a user's distance to the territory center
// and writes their immutable participation record. Duplicate writes for the
// same (battle, user) pair are dropped by the repository.
func (s *BattleService) recordParticipation(ctx context.Context, battleID, userID string, territory *model.Territory, lat, lng float64, now time.Time) error {
	dist := siege.DistanceMeters(lat, lng, territory.Lat, territory.Lng)
	tier := siege.TierFor(dist)
	return s.participationRepo.Create(ctx, &model.ParticipationRecord{
		ID:             uuid.NewString(),
		BattleID:       battleID,
		UserID:         userID,
		Tier:           tier,
		Multiplier:     tier.Multiplier(),
		DistanceMeters: dist,
		RecordedAt:     now,
	})
}

// stagedFormations reads both sides from the cache, applying defaults for
// anything missing: an attacker who never staged forfeits with an empty
// formation, a silent defender falls back to the standing garrison.
func (s *BattleService) stagedFormations(ctx context.Context, battleID string) (siege.Formation, siege.Formation, error) {
	attacker := siege.Formation{}
	defender := defaultGarrison()

	forms, err := s.cache.GetFormations(ctx, battleID)
	if err != nil {
		return attacker, defender, fmt.Errorf("read staged formations: %w", err)
	}
	if raw, ok := forms[SideAttacker]; ok {
		if err := json.Unmarshal(raw, &attacker); err != nil {
			return attacker, defender, fmt.Errorf("unmarshal attacker formation: %w", err)
		}
	}
	if raw, ok := forms[SideDefender]; ok {
		if err := json.Unmarshal(raw, &defender); err != nil {
			return attacker, defender, fmt.Errorf("unmarshal defender formation: %w", err)
		}
	}
	return attacker, defender, nil
}

// defaultGarrison is the defense an absent defender still fields.
func defaultGarrison() siege.Formation {
	return siege.Formation{Counts: map[siege.Archetype]int{
		siege.Guardian: 10,
		siege.Infantry: 5,
	}}
}

// buildInput assembles the resolver input: formations, per-side
// participation multipliers from the audit records (remote for an absent
// attacker, home ground for the defender), the defender's activity bonus,
// and the territory's structure layout.
func (s *BattleService) buildInput(ctx context.Context, battle *model.ScheduledBattle, territory *model.Territory, attacker, defender siege.Formation, now time.Time) (siege.BattleInput, error) {
	attackerMult := siege.TierRemote.Multiplier()
	defenderMult := siege.TierPhysical.Multiplier()
	records, err := s.participationRepo.ListByBattle(ctx, battle.ID)
	if err != nil {
		return siege.BattleInput{}, err
	}
	for _, rec := range records {
		switch rec.UserID {
		case battle.AttackerID:
			attackerMult = rec.Multiplier
		case battle.DefenderID:
			defenderMult = rec.Multiplier
		}
	}

	activityBonus := 0.0
	if defenderUser, err := s.userRepo.FindByID(ctx, battle.DefenderID); err == nil && defenderUser != nil {
		activityBonus = siege.ActivityBonus(defenderUser.LastActiveAt, now)
	}

	var structures []siege.Structure
	if len(territory.Structures) > 0 {
		if err := json.Unmarshal(territory.Structures, &structures); err != nil {
			return siege.BattleInput{}, fmt.Errorf("unmarshal structures: %w", err)
		}
	}

	return siege.BattleInput{
		Attacker:              attacker,
		Defender:              defender,
		AttackerMultiplier:    attackerMult,
		DefenderMultiplier:    defenderMult,
		DefenderActivityBonus: activityBonus,
		Structures:            structures,
	}, nil
}

// applyOutcome runs the post-resolution effects for the CAS winner: the
// territory verdict, 4h shields for both sides, reward emission, war score,
// cache cleanup, and notifications. Failures here are logged, not returned;
// the battle itself is already durably resolved.
func (s *BattleService) applyOutcome(ctx context.Context, battle *model.ScheduledBattle, result siege.Result, now time.Time) {
	if _, err := s.territories.ApplyBattleResult(ctx, battle.TerritoryID, result.Winner, now); err != nil {
		log.Error().Err(err).Str("battleId", battle.ID).
			Str("territoryId", battle.TerritoryID).Msg("Failed to apply battle verdict")
	}

	for _, id := range []string{battle.AttackerID, battle.DefenderID} {
		if err := s.cache.SetPostBattleShield(ctx, id, now); err != nil {
			log.Error().Err(err).Str("userId", id).Msg("Failed to set post-battle shield")
		}
	}

	winnerID := battle.DefenderID
	if result.Winner == siege.WinnerAttacker {
		winnerID = battle.AttackerID
	}
	reward := baseVictoryReward * battle.RewardScale
	if battle.WarID != "" {
		war, err := s.wars.Get(ctx, battle.WarID, now)
		if err != nil {
			log.Error().Err(err).Str("warId", battle.WarID).Msg("Failed to load war for stake")
		} else {
			reward *= StakeMultiplier(war)
			if winner, err := s.userRepo.FindByID(ctx, winnerID); err == nil && winner != nil {
				if err := s.wars.RecordBattleOutcome(ctx, battle.WarID, winner.AllianceID); err != nil {
					log.Error().Err(err).Str("warId", battle.WarID).Msg("Failed to record war score")
				}
			}
		}
	}
	if err := s.userRepo.AddPowerRating(ctx, winnerID, reward); err != nil {
		log.Error().Err(err).Str("userId", winnerID).Msg("Failed to credit battle reward")
	}

	if err := s.cache.ClearBattleData(ctx, battle.ID); err != nil {
		log.Warn().Err(err).Str("battleId", battle.ID).Msg("Failed to clear battle cache")
	}

	s.broadcaster.NotifyUser(battle.AttackerID, "battle_resolved", battle)
	s.broadcaster.NotifyUser(battle.DefenderID, "battle_resolved", battle)
	s.broadcaster.BroadcastTerritoryEvent(battle.TerritoryID, "battle_resolved", battle)
}

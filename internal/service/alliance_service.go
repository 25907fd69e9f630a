package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/wrenfall/terraclaim/internal/model"
	"github.com/wrenfall/terraclaim/internal/repository"
)

// War phase durations. Phases advance lazily against wall-clock time on
// every read; there is no scheduled driver.
const (
	warWarningDuration     = 24 * time.Hour
	warActiveDuration      = 48 * time.Hour
	warPeaceTreatyDuration = 72 * time.Hour
)

// WarStakeMultiplier scales reward emission for battles between two
// alliances while their war is in the active phase. Combat math is
// unaffected.
const WarStakeMultiplier = 2.0

// AllianceWarService manages alliance war declaration, the
// warning/active/peace-treaty phase machine, and the aggregated war score.
type AllianceWarService struct {
	warRepo     repository.AllianceWarRepository
	userRepo    repository.UserRepository
	broadcaster Broadcaster
}

// NewAllianceWarService creates an AllianceWarService.
func NewAllianceWarService(warRepo repository.AllianceWarRepository, userRepo repository.UserRepository, broadcaster Broadcaster) *AllianceWarService {
	if broadcaster == nil {
		broadcaster = NoopBroadcaster{}
	}
	return &AllianceWarService{warRepo: warRepo, userRepo: userRepo, broadcaster: broadcaster}
}

// DeclareWar opens a war from the declarer's alliance against the target
// alliance. The war starts in the warning phase; battles between the two
// alliances carry no stake until the active phase begins 24h later.
func (s *AllianceWarService) DeclareWar(ctx context.Context, declarerID, targetAllianceID string, now time.Time) (*model.AllianceWar, error) {
	declarer, err := s.userRepo.FindByID(ctx, declarerID)
	if err != nil {
		return nil, err
	}
	if declarer == nil {
		return nil, ErrUserNotFound
	}
	if declarer.AllianceID == "" {
		return nil, ErrNotInAlliance
	}
	if declarer.AllianceID == targetAllianceID {
		return nil, ErrSameAlliance
	}

	existing, err := s.CurrentBetween(ctx, declarer.AllianceID, targetAllianceID, now)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrWarExists
	}

	war := &model.AllianceWar{
		ID:                  uuid.NewString(),
		AttackingAllianceID: declarer.AllianceID,
		DefendingAllianceID: targetAllianceID,
		Phase:               model.WarWarning,
		DeclaredAt:          now,
		PhaseChangedAt:      now,
	}
	if err := s.warRepo.Create(ctx, war); err != nil {
		return nil, fmt.Errorf("create war: %w", err)
	}

	log.Info().Str("warId", war.ID).
		Str("attackingAllianceId", war.AttackingAllianceID).
		Str("defendingAllianceId", war.DefendingAllianceID).
		Msg("Alliance war declared")
	s.broadcaster.NotifyUser(declarerID, "war_declared", war)
	return war, nil
}

// Get returns a war with its phase advanced to the current time.
func (s *AllianceWarService) Get(ctx context.Context, warID string, now time.Time) (*model.AllianceWar, error) {
	war, err := s.warRepo.FindByID(ctx, warID)
	if err != nil {
		return nil, err
	}
	if war == nil {
		return nil, ErrWarNotFound
	}
	if err := s.advance(ctx, war, now); err != nil {
		return nil, err
	}
	return war, nil
}

// CurrentBetween returns the non-ended war involving the two alliances, or
// nil when there is none.
func (s *AllianceWarService) CurrentBetween(ctx context.Context, allianceA, allianceB string, now time.Time) (*model.AllianceWar, error) {
	war, err := s.warRepo.FindBetween(ctx, allianceA, allianceB)
	if err != nil {
		return nil, err
	}
	if war == nil {
		return nil, nil
	}
	if err := s.advance(ctx, war, now); err != nil {
		return nil, err
	}
	if war.Phase == model.WarEnded {
		return nil, nil
	}
	return war, nil
}

// StakeMultiplier is the reward scale contributed by a war's current phase.
func StakeMultiplier(war *model.AllianceWar) float64 {
	if war != nil && war.Phase == model.WarActive {
		return WarStakeMultiplier
	}
	return 1.0
}

// RecordBattleOutcome adds a resolved battle to the war score, credited to
// the winning side's alliance.
func (s *AllianceWarService) RecordBattleOutcome(ctx context.Context, warID, winnerAllianceID string) error {
	war, err := s.warRepo.FindByID(ctx, warID)
	if err != nil {
		return err
	}
	if war == nil {
		return ErrWarNotFound
	}
	switch winnerAllianceID {
	case war.AttackingAllianceID:
		return s.warRepo.AddScore(ctx, warID, 1, 0)
	case war.DefendingAllianceID:
		return s.warRepo.AddScore(ctx, warID, 0, 1)
	}
	return nil
}

// advance walks the war through any phases whose windows have fully elapsed
// and persists the result. Each phase boundary is computed from the previous
// one, so a war read long after its windows passed lands in the right phase.
func (s *AllianceWarService) advance(ctx context.Context, war *model.AllianceWar, now time.Time) error {
	changed := false
	for {
		var d time.Duration
		var next string
		switch war.Phase {
		case model.WarWarning:
			d, next = warWarningDuration, model.WarActive
		case model.WarActive:
			d, next = warActiveDuration, model.WarPeaceTreaty
		case model.WarPeaceTreaty:
			d, next = warPeaceTreatyDuration, model.WarEnded
		default:
			d = 0
		}
		if d == 0 || now.Sub(war.PhaseChangedAt) < d {
			break
		}
		war.PhaseChangedAt = war.PhaseChangedAt.Add(d)
		war.Phase = next
		changed = true
	}
	if !changed {
		return nil
	}
	if err := s.warRepo.UpdatePhase(ctx, war.ID, war.Phase, war.PhaseChangedAt); err != nil {
		return fmt.Errorf("advance war phase: %w", err)
	}
	log.Info().Str("warId", war.ID).Str("phase", war.Phase).Msg("War phase advanced")
	return nil
}

package service

import (
	"context"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/wrenfall/terraclaim/internal/repository"
)

// BattleSweeper listens for Redis keyspace notifications on expired battle
// timer keys and executes battles at their deadline. Also runs a polling
// fallback to catch expirations if keyspace notifications are unavailable.
// Double-firing is harmless: execution is CAS-guarded.
type BattleSweeper struct {
	rdb        *redis.Client
	battleSvc  *BattleService
	battleRepo repository.BattleRepository
}

// NewBattleSweeper creates a BattleSweeper.
func NewBattleSweeper(rdb *redis.Client, battleSvc *BattleService, battleRepo repository.BattleRepository) *BattleSweeper {
	return &BattleSweeper{rdb: rdb, battleSvc: battleSvc, battleRepo: battleRepo}
}

// Start begins listening for expired key events and runs a polling fallback.
func (s *BattleSweeper) Start(ctx context.Context) {
	go s.listenKeyspace(ctx)
	s.pollDueBattles(ctx)
}

// RecoverPendingBattles executes anything that came due while the server was
// down and restores timers for battles still in the future. Called on
// startup.
func (s *BattleSweeper) RecoverPendingBattles(ctx context.Context) error {
	battles, err := s.battleRepo.ListPending(ctx)
	if err != nil {
		return err
	}
	if len(battles) == 0 {
		log.Info().Msg("No pending battles to recover")
		return nil
	}

	log.Info().Int("count", len(battles)).Msg("Recovering pending battles after restart")
	now := time.Now()
	for _, b := range battles {
		if !now.Before(b.ScheduledAt) {
			if _, err := s.battleSvc.ExecuteBattle(ctx, b.ID, now); err != nil {
				log.Error().Err(err).Str("battleId", b.ID).Msg("Failed to execute overdue battle during recovery")
			}
			continue
		}
		if err := s.battleSvc.cache.SetBattleTimer(ctx, b.ID, b.ScheduledAt); err != nil {
			log.Error().Err(err).Str("battleId", b.ID).Msg("Failed to restore battle timer")
		}
	}
	return nil
}

// listenKeyspace subscribes to Redis keyspace notifications for expired keys.
func (s *BattleSweeper) listenKeyspace(ctx context.Context) {
	pubsub := s.rdb.PSubscribe(ctx, "__keyevent@0__:expired")
	defer pubsub.Close()

	log.Info().Msg("Battle sweeper started, listening for expired keys")
	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			s.handleExpiry(ctx, msg.Payload)
		}
	}
}

// pollDueBattles periodically checks for battles past their deadline and
// executes them.
func (s *BattleSweeper) pollDueBattles(ctx context.Context) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	log.Info().Msg("Battle deadline poller started (10s interval)")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Battle deadline poller stopped")
			return
		case <-ticker.C:
			s.checkDueBattles(ctx)
		}
	}
}

// checkDueBattles finds pending battles past their deadline and executes them.
func (s *BattleSweeper) checkDueBattles(ctx context.Context) {
	now := time.Now()
	battles, err := s.battleRepo.ListDue(ctx, now)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list due battles")
		return
	}
	if len(battles) > 0 {
		log.Info().Int("count", len(battles)).Msg("Poller found due battles")
	}
	for _, b := range battles {
		log.Info().Str("battleId", b.ID).Time("scheduledAt", b.ScheduledAt).
			Msg("Poller executing due battle")
		if _, err := s.battleSvc.ExecuteBattle(ctx, b.ID, now); err != nil {
			log.Error().Err(err).Str("battleId", b.ID).Msg("Battle execution failed from poller")
		}
	}
}

// handleExpiry processes an expired key. Only acts on battle timer keys.
func (s *BattleSweeper) handleExpiry(ctx context.Context, key string) {
	if !strings.HasPrefix(key, "battle:") || !strings.HasSuffix(key, ":timer") {
		return
	}

	parts := strings.SplitN(key, ":", 3)
	if len(parts) != 3 {
		return
	}
	battleID := parts[1]

	log.Info().Str("battleId", battleID).Msg("Battle timer expired, executing")
	if _, err := s.battleSvc.ExecuteBattle(ctx, battleID, time.Now()); err != nil {
		log.Error().Err(err).Str("battleId", battleID).Msg("Battle execution failed after timer expiry")
	}
}

package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/wrenfall/terraclaim/internal/model"
)

func TestDeclareWar(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	e := newTestEnv(t)
	e.addUser("leader", 100, now.Add(-time.Hour), now, "red")
	e.addUser("lone", 100, now.Add(-time.Hour), now, "")

	war, err := e.warSvc.DeclareWar(ctx, "leader", "blue", now)
	if err != nil {
		t.Fatalf("DeclareWar: %v", err)
	}
	if war.Phase != model.WarWarning {
		t.Errorf("phase = %q, want warning", war.Phase)
	}
	if war.AttackingAllianceID != "red" || war.DefendingAllianceID != "blue" {
		t.Errorf("sides = %q vs %q", war.AttackingAllianceID, war.DefendingAllianceID)
	}

	if _, err := e.warSvc.DeclareWar(ctx, "leader", "blue", now); !errors.Is(err, ErrWarExists) {
		t.Errorf("duplicate declaration err = %v, want ErrWarExists", err)
	}
	if _, err := e.warSvc.DeclareWar(ctx, "lone", "blue", now); !errors.Is(err, ErrNotInAlliance) {
		t.Errorf("allianceless declarer err = %v, want ErrNotInAlliance", err)
	}
	if _, err := e.warSvc.DeclareWar(ctx, "leader", "red", now); !errors.Is(err, ErrSameAlliance) {
		t.Errorf("self declaration err = %v, want ErrSameAlliance", err)
	}
}

func TestWarPhaseAdvancement(t *testing.T) {
	ctx := context.Background()
	declared := time.Now()
	e := newTestEnv(t)
	e.addUser("leader", 100, declared.Add(-time.Hour), declared, "red")

	war, err := e.warSvc.DeclareWar(ctx, "leader", "blue", declared)
	if err != nil {
		t.Fatalf("DeclareWar: %v", err)
	}

	tests := []struct {
		name  string
		at    time.Duration
		phase string
	}{
		{"still warning just before 24h", 24*time.Hour - time.Second, model.WarWarning},
		{"active at 24h", 24 * time.Hour, model.WarActive},
		{"active just before 72h", 72*time.Hour - time.Second, model.WarActive},
		{"peace treaty at 72h", 72 * time.Hour, model.WarPeaceTreaty},
		{"peace just before 144h", 144*time.Hour - time.Second, model.WarPeaceTreaty},
		{"ended at 144h", 144 * time.Hour, model.WarEnded},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := e.warSvc.Get(ctx, war.ID, declared.Add(tt.at))
			if err != nil {
				t.Fatalf("Get: %v", err)
			}
			if got.Phase != tt.phase {
				t.Errorf("phase = %q, want %q", got.Phase, tt.phase)
			}
		})
	}
}

func TestWarLazyAdvanceSkipsPhases(t *testing.T) {
	ctx := context.Background()
	declared := time.Now().Add(-200 * time.Hour)
	e := newTestEnv(t)
	e.wars.wars["war-1"] = &model.AllianceWar{
		ID: "war-1", AttackingAllianceID: "red", DefendingAllianceID: "blue",
		Phase: model.WarWarning, DeclaredAt: declared, PhaseChangedAt: declared,
	}

	// A single read lands directly in ended, walking every window.
	war, err := e.warSvc.Get(ctx, "war-1", time.Now())
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if war.Phase != model.WarEnded {
		t.Errorf("phase = %q, want ended", war.Phase)
	}

	// An ended war no longer binds the two alliances.
	cur, err := e.warSvc.CurrentBetween(ctx, "red", "blue", time.Now())
	if err != nil {
		t.Fatalf("CurrentBetween: %v", err)
	}
	if cur != nil {
		t.Errorf("CurrentBetween returned an ended war")
	}
}

func TestStakeMultiplier(t *testing.T) {
	if got := StakeMultiplier(nil); got != 1.0 {
		t.Errorf("nil war stake = %v, want 1.0", got)
	}
	if got := StakeMultiplier(&model.AllianceWar{Phase: model.WarActive}); got != WarStakeMultiplier {
		t.Errorf("active stake = %v, want %v", got, WarStakeMultiplier)
	}
	if got := StakeMultiplier(&model.AllianceWar{Phase: model.WarWarning}); got != 1.0 {
		t.Errorf("warning stake = %v, want 1.0", got)
	}
}

func TestRecordBattleOutcome(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	e := newTestEnv(t)
	e.wars.wars["war-1"] = &model.AllianceWar{
		ID: "war-1", AttackingAllianceID: "red", DefendingAllianceID: "blue",
		Phase: model.WarActive, DeclaredAt: now, PhaseChangedAt: now,
	}

	if err := e.warSvc.RecordBattleOutcome(ctx, "war-1", "red"); err != nil {
		t.Fatalf("RecordBattleOutcome: %v", err)
	}
	if err := e.warSvc.RecordBattleOutcome(ctx, "war-1", "blue"); err != nil {
		t.Fatalf("RecordBattleOutcome: %v", err)
	}
	if err := e.warSvc.RecordBattleOutcome(ctx, "war-1", "green"); err != nil {
		t.Fatalf("uninvolved alliance should be a no-op: %v", err)
	}

	war, _ := e.wars.FindByID(ctx, "war-1")
	if war.AttackerScore != 1 || war.DefenderScore != 1 {
		t.Errorf("score = %d:%d, want 1:1", war.AttackerScore, war.DefenderScore)
	}
}

func TestActiveWarDoublesReward(t *testing.T) {
	ctx := context.Background()
	base := time.Now()
	expired := base.Add(-time.Hour)

	e := newTestEnv(t)
	e.addUser("attacker", 100, expired, base, "red")
	e.addUser("defender", 100, expired, base, "blue")
	e.addTerritory(t, "terr-1", "defender", testLat, testLng, base)
	// War already active, and still active 24h later when the battle lands.
	e.wars.wars["war-1"] = &model.AllianceWar{
		ID: "war-1", AttackingAllianceID: "red", DefendingAllianceID: "blue",
		Phase: model.WarActive, DeclaredAt: base.Add(-time.Hour), PhaseChangedAt: base.Add(-time.Hour),
	}

	battle, err := e.battleSvc.ScheduleBattle(ctx, "attacker", "terr-1", testLat, testLng, base)
	if err != nil {
		t.Fatalf("ScheduleBattle: %v", err)
	}
	if battle.WarID != "war-1" {
		t.Fatalf("battle not linked to the war")
	}

	if err := e.battleSvc.PrepareBattle(ctx, battle.ID, "attacker", heavyFormation(), testLat, testLng, base.Add(time.Hour)); err != nil {
		t.Fatalf("PrepareBattle: %v", err)
	}
	if _, err := e.battleSvc.ExecuteBattle(ctx, battle.ID, battle.ScheduledAt); err != nil {
		t.Fatalf("ExecuteBattle: %v", err)
	}

	winner, _ := e.users.FindByID(ctx, "attacker")
	want := 100 + baseVictoryReward*WarStakeMultiplier
	if winner.PowerRating != want {
		t.Errorf("attacker power = %v, want %v (doubled war stake)", winner.PowerRating, want)
	}
	war, _ := e.wars.FindByID(ctx, "war-1")
	if war.AttackerScore != 1 {
		t.Errorf("war score = %d, want 1", war.AttackerScore)
	}
}

//go:build integration

package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"sync"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/wrenfall/terraclaim/internal/model"
	"github.com/wrenfall/terraclaim/internal/repository/postgres"
	redisrepo "github.com/wrenfall/terraclaim/internal/repository/redis"
	"github.com/wrenfall/terraclaim/internal/testutil"
	"github.com/wrenfall/terraclaim/pkg/siege"
)

// staticClassifier avoids depending on the external density service in
// integration runs.
type staticClassifier struct{ density siege.Density }

func (c staticClassifier) ClassifyDensity(_ context.Context, lat, lng float64) (siege.Density, error) {
	return c.density, nil
}

// intEnv holds shared test infrastructure over real Postgres and Redis.
type intEnv struct {
	db           *sql.DB
	rdb          *goredis.Client
	userRepo     *postgres.UserRepo
	battleRepo   *postgres.BattleRepo
	cache        *redisrepo.Client
	territorySvc *TerritoryService
	warSvc       *AllianceWarService
	battleSvc    *BattleService
	reclaimSvc   *ReclaimService
}

var env *intEnv

func setupEnv(t *testing.T) *intEnv {
	t.Helper()
	if env == nil {
		db := testutil.SetupDB(t)
		rdb := testutil.SetupRedis(t)
		userRepo := postgres.NewUserRepo(db)
		territoryRepo := postgres.NewTerritoryRepo(db)
		battleRepo := postgres.NewBattleRepo(db)
		participationRepo := postgres.NewParticipationRepo(db)
		blueprintRepo := postgres.NewBlueprintRepo(db)
		warRepo := postgres.NewAllianceWarRepo(db)
		cache := redisrepo.NewClientFromPool(rdb)

		territorySvc := NewTerritoryService(territoryRepo, blueprintRepo, staticClassifier{density: siege.Urban}, nil)
		warSvc := NewAllianceWarService(warRepo, userRepo, nil)
		battleSvc := NewBattleService(battleRepo, territoryRepo, userRepo, participationRepo, cache, territorySvc, warSvc, nil)
		reclaimSvc := NewReclaimService(territorySvc, blueprintRepo, nil)

		env = &intEnv{
			db:           db,
			rdb:          rdb,
			userRepo:     userRepo,
			battleRepo:   battleRepo,
			cache:        cache,
			territorySvc: territorySvc,
			warSvc:       warSvc,
			battleSvc:    battleSvc,
			reclaimSvc:   reclaimSvc,
		}
	}
	testutil.CleanupDB(t, env.db)
	testutil.CleanupRedis(t, env.rdb)
	return env
}

// seedUser creates a user whose newcomer shield has already lapsed.
func seedUser(t *testing.T, e *intEnv, suffix string) *model.User {
	t.Helper()
	ctx := context.Background()
	u, err := e.userRepo.Upsert(ctx, "test", "test-"+suffix, "Player "+suffix, "")
	if err != nil {
		t.Fatalf("create user %s: %v", suffix, err)
	}
	if _, err := e.db.Exec(
		"UPDATE users SET newcomer_shield_expires = now() - interval '1 day' WHERE id = $1", u.ID); err != nil {
		t.Fatalf("expire shield: %v", err)
	}
	return u
}

func strongFormation() siege.Formation {
	return siege.Formation{Counts: map[siege.Archetype]int{
		siege.Siege:    80,
		siege.Infantry: 80,
		siege.Mage:     40,
	}}
}

// TestBattleLifecycle drives claim -> schedule -> prepare -> execute against
// real storage and verifies the verdict lands everywhere it should.
func TestBattleLifecycle(t *testing.T) {
	e := setupEnv(t)
	ctx := context.Background()
	now := time.Now()

	attacker := seedUser(t, e, "attacker")
	defender := seedUser(t, e, "defender")

	terr, err := e.territorySvc.Claim(ctx, defender.ID, "Defender Base", 47.6062, -122.3321, 47.6062, -122.3321, now)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}

	battle, err := e.battleSvc.ScheduleBattle(ctx, attacker.ID, terr.ID, 47.6062, -122.3321, now)
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if battle.State != model.BattleScheduled {
		t.Fatalf("expected scheduled, got %s", battle.State)
	}

	// The timer key should be live in Redis.
	if err := e.rdb.Get(ctx, "battle:"+battle.ID+":timer").Err(); err != nil {
		t.Fatalf("expected battle timer key: %v", err)
	}

	if err := e.battleSvc.PrepareBattle(ctx, battle.ID, attacker.ID, strongFormation(), 47.6062, -122.3321, now.Add(time.Hour)); err != nil {
		t.Fatalf("prepare attacker: %v", err)
	}
	weak := siege.Formation{Counts: map[siege.Archetype]int{siege.Infantry: 5}}
	if err := e.battleSvc.PrepareBattle(ctx, battle.ID, defender.ID, weak, 47.6062, -122.3321, now.Add(time.Hour)); err != nil {
		t.Fatalf("prepare defender: %v", err)
	}

	resolved, err := e.battleSvc.ExecuteBattle(ctx, battle.ID, now.Add(25*time.Hour))
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if resolved.State != model.BattleResolved {
		t.Fatalf("expected resolved, got %s", resolved.State)
	}
	var result siege.Result
	if err := json.Unmarshal(resolved.Result, &result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if result.Winner != siege.WinnerAttacker {
		t.Fatalf("expected attacker win, got %s", result.Winner)
	}

	got, err := e.territorySvc.Get(ctx, terr.ID)
	if err != nil {
		t.Fatalf("get territory: %v", err)
	}
	if got.BattleLosses != 1 || got.State != siege.StateContested {
		t.Fatalf("expected 1 loss contested, got %d %s", got.BattleLosses, got.State)
	}

	// Victory reward landed on the attacker.
	attAfter, _ := e.userRepo.FindByID(ctx, attacker.ID)
	if attAfter.PowerRating != attacker.PowerRating+100 {
		t.Fatalf("expected reward of 100, got delta %f", attAfter.PowerRating-attacker.PowerRating)
	}

	// Both sides got post-battle shields.
	for _, id := range []string{attacker.ID, defender.ID} {
		active, err := e.cache.PostBattleShieldActive(ctx, id)
		if err != nil {
			t.Fatalf("shield check: %v", err)
		}
		if !active {
			t.Errorf("expected post-battle shield for %s", id)
		}
	}

	// Formations and timer were cleared.
	forms, _ := e.cache.GetFormations(ctx, battle.ID)
	if len(forms) != 0 {
		t.Errorf("expected cleared formations, got %d", len(forms))
	}
}

// TestConcurrentExecution fires several executors at one battle; the CAS
// guard must let exactly one resolve it and everyone must read the same
// stored verdict.
func TestConcurrentExecution(t *testing.T) {
	e := setupEnv(t)
	ctx := context.Background()
	now := time.Now()

	attacker := seedUser(t, e, "c-attacker")
	defender := seedUser(t, e, "c-defender")

	terr, err := e.territorySvc.Claim(ctx, defender.ID, "Contested Base", 47.61, -122.33, 47.61, -122.33, now)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	battle, err := e.battleSvc.ScheduleBattle(ctx, attacker.ID, terr.ID, 47.61, -122.33, now)
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if err := e.battleSvc.PrepareBattle(ctx, battle.ID, attacker.ID, strongFormation(), 47.61, -122.33, now.Add(time.Hour)); err != nil {
		t.Fatalf("prepare: %v", err)
	}

	const workers = 8
	results := make([]*model.ScheduledBattle, workers)
	var wg sync.WaitGroup
	for i := range workers {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			b, err := e.battleSvc.ExecuteBattle(ctx, battle.ID, now.Add(25*time.Hour))
			if err != nil {
				t.Errorf("execute %d: %v", i, err)
				return
			}
			results[i] = b
		}(i)
	}
	wg.Wait()

	for i, b := range results {
		if b == nil {
			continue
		}
		if b.State != model.BattleResolved {
			t.Errorf("worker %d saw state %s", i, b.State)
		}
		if string(b.Result) != string(results[0].Result) {
			t.Errorf("worker %d saw a different verdict", i)
		}
	}

	// Exactly one reward was paid.
	attAfter, _ := e.userRepo.FindByID(ctx, attacker.ID)
	if attAfter.PowerRating != attacker.PowerRating+100 {
		t.Fatalf("expected a single reward of 100, got delta %f", attAfter.PowerRating-attacker.PowerRating)
	}

	// One loss, not eight.
	got, _ := e.territorySvc.Get(ctx, terr.ID)
	if got.BattleLosses != 1 {
		t.Fatalf("expected 1 loss, got %d", got.BattleLosses)
	}
}

// TestFallAndReclaim runs a territory through three losses and the previous
// owner's reclaim.
func TestFallAndReclaim(t *testing.T) {
	e := setupEnv(t)
	ctx := context.Background()
	now := time.Now()

	attacker := seedUser(t, e, "r-attacker")
	defender := seedUser(t, e, "r-defender")

	terr, err := e.territorySvc.Claim(ctx, defender.ID, "Falling Base", 47.62, -122.33, 47.62, -122.33, now)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}

	for round := range 3 {
		fallen, err := e.territorySvc.ApplyBattleResult(ctx, terr.ID, siege.WinnerAttacker, now)
		if err != nil {
			t.Fatalf("apply result %d: %v", round, err)
		}
		_ = fallen
	}

	got, err := e.territorySvc.Get(ctx, terr.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.State != siege.StateFallen || got.OwnerID != "" {
		t.Fatalf("expected fallen and unowned, got %s owner=%q", got.State, got.OwnerID)
	}
	if got.PreviousOwnerID != defender.ID || got.BlueprintID == "" {
		t.Fatalf("expected blueprint snapshot for previous owner, got %+v", got)
	}

	// A third party cannot take it during the reclaim window.
	if _, err := e.territorySvc.ClaimFallen(ctx, attacker.ID, terr.ID, 47.62, -122.33, now.Add(time.Hour)); err == nil {
		t.Fatal("expected third-party claim inside the window to fail")
	}

	out, err := e.reclaimSvc.Reclaim(ctx, defender.ID, terr.ID, now.Add(25*time.Hour))
	if err != nil {
		t.Fatalf("reclaim: %v", err)
	}
	if out.Territory.OwnerID != defender.ID || out.Territory.State != siege.StateSecure {
		t.Fatalf("expected secure ownership back, got %+v", out.Territory)
	}
	if out.Cost != 210 {
		t.Fatalf("expected reclaim cost 210, got %d", out.Cost)
	}
}

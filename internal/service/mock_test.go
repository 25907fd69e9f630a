package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/wrenfall/terraclaim/internal/model"
	"github.com/wrenfall/terraclaim/pkg/siege"
)

type mockUserRepo struct {
	users map[string]*model.User
}

func newMockUserRepo() *mockUserRepo {
	return &mockUserRepo{users: make(map[string]*model.User)}
}

func (m *mockUserRepo) put(u *model.User) *model.User {
	m.users[u.ID] = u
	return u
}

func (m *mockUserRepo) FindByID(_ context.Context, id string) (*model.User, error) {
	u, ok := m.users[id]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

func (m *mockUserRepo) FindByProviderID(_ context.Context, provider, providerID string) (*model.User, error) {
	for _, u := range m.users {
		if u.Provider == provider && u.ProviderID == providerID {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *mockUserRepo) Upsert(_ context.Context, provider, providerID, displayName, avatarURL string) (*model.User, error) {
	for _, u := range m.users {
		if u.Provider == provider && u.ProviderID == providerID {
			u.DisplayName = displayName
			cp := *u
			return &cp, nil
		}
	}
	u := &model.User{
		ID:                    fmt.Sprintf("user-%d", len(m.users)+1),
		Provider:              provider,
		ProviderID:            providerID,
		DisplayName:           displayName,
		AvatarURL:             avatarURL,
		NewcomerShieldExpires: time.Now().Add(siege.NewcomerShieldDuration),
		CreatedAt:             time.Now(),
	}
	m.users[u.ID] = u
	return u, nil
}

func (m *mockUserRepo) TouchActivity(_ context.Context, id string, at time.Time) error {
	if u, ok := m.users[id]; ok {
		u.LastActiveAt = at
	}
	return nil
}

func (m *mockUserRepo) SetAlliance(_ context.Context, id, allianceID string) error {
	if u, ok := m.users[id]; ok {
		u.AllianceID = allianceID
	}
	return nil
}

func (m *mockUserRepo) AddPowerRating(_ context.Context, id string, delta float64) error {
	if u, ok := m.users[id]; ok {
		u.PowerRating += delta
		if u.PowerRating < 0 {
			u.PowerRating = 0
		}
	}
	return nil
}

type mockTerritoryRepo struct {
	territories map[string]*model.Territory
	// loseRaces fails that many CAS attempts as if a concurrent writer
	// bumped the version first.
	loseRaces int
}

func newMockTerritoryRepo() *mockTerritoryRepo {
	return &mockTerritoryRepo{territories: make(map[string]*model.Territory)}
}

func (m *mockTerritoryRepo) Create(_ context.Context, t *model.Territory) error {
	t.Version = 1
	cp := *t
	m.territories[t.ID] = &cp
	return nil
}

func (m *mockTerritoryRepo) FindByID(_ context.Context, id string) (*model.Territory, error) {
	t, ok := m.territories[id]
	if !ok {
		return nil, nil
	}
	cp := *t
	return &cp, nil
}

func (m *mockTerritoryRepo) ListByOwner(_ context.Context, ownerID string) ([]model.Territory, error) {
	var result []model.Territory
	for _, t := range m.territories {
		if t.OwnerID == ownerID {
			result = append(result, *t)
		}
	}
	return result, nil
}

func (m *mockTerritoryRepo) ListNear(_ context.Context, lat, lng, radiusMeters float64) ([]model.Territory, error) {
	var result []model.Territory
	for _, t := range m.territories {
		if siege.DistanceMeters(lat, lng, t.Lat, t.Lng) <= radiusMeters {
			result = append(result, *t)
		}
	}
	return result, nil
}

func (m *mockTerritoryRepo) UpdateCAS(_ context.Context, t *model.Territory, expectedVersion int64) (bool, error) {
	cur, ok := m.territories[t.ID]
	if !ok || cur.Version != expectedVersion {
		return false, nil
	}
	if m.loseRaces > 0 {
		m.loseRaces--
		cur.Version++
		return false, nil
	}
	t.Version = expectedVersion + 1
	cp := *t
	m.territories[t.ID] = &cp
	return true, nil
}

type mockBattleRepo struct {
	battles map[string]*model.ScheduledBattle
	// allianceAttacks lets tests seed alliance cooldowns directly, keyed
	// allianceID/territoryID.
	allianceAttacks map[string]*time.Time
}

func newMockBattleRepo() *mockBattleRepo {
	return &mockBattleRepo{
		battles:         make(map[string]*model.ScheduledBattle),
		allianceAttacks: make(map[string]*time.Time),
	}
}

func (m *mockBattleRepo) Create(_ context.Context, b *model.ScheduledBattle) error {
	b.CreatedAt = time.Now()
	cp := *b
	m.battles[b.ID] = &cp
	return nil
}

func (m *mockBattleRepo) FindByID(_ context.Context, id string) (*model.ScheduledBattle, error) {
	b, ok := m.battles[id]
	if !ok {
		return nil, nil
	}
	cp := *b
	return &cp, nil
}

func (m *mockBattleRepo) LastAttackAt(_ context.Context, attackerID, territoryID string) (*time.Time, error) {
	var last *time.Time
	for _, b := range m.battles {
		if b.AttackerID == attackerID && b.TerritoryID == territoryID && b.State != model.BattleCancelled {
			at := b.CreatedAt
			if last == nil || at.After(*last) {
				last = &at
			}
		}
	}
	return last, nil
}

func (m *mockBattleRepo) LastAllianceAttackAt(_ context.Context, allianceID, territoryID string) (*time.Time, error) {
	return m.allianceAttacks[allianceID+"/"+territoryID], nil
}

func (m *mockBattleRepo) MarkPrepared(_ context.Context, id string) error {
	if b, ok := m.battles[id]; ok && b.State == model.BattleScheduled {
		b.State = model.BattlePrepared
	}
	return nil
}

func (m *mockBattleRepo) ResolveCAS(_ context.Context, id string, attackerFormation, defenderFormation, result json.RawMessage, resolvedAt time.Time) (bool, error) {
	b, ok := m.battles[id]
	if !ok || (b.State != model.BattleScheduled && b.State != model.BattlePrepared) {
		return false, nil
	}
	b.State = model.BattleResolved
	b.AttackerFormation = attackerFormation
	b.DefenderFormation = defenderFormation
	b.Result = result
	at := resolvedAt
	b.ResolvedAt = &at
	return true, nil
}

func (m *mockBattleRepo) CancelCAS(_ context.Context, id string) (bool, error) {
	b, ok := m.battles[id]
	if !ok || (b.State != model.BattleScheduled && b.State != model.BattlePrepared) {
		return false, nil
	}
	b.State = model.BattleCancelled
	return true, nil
}

func (m *mockBattleRepo) ListDue(_ context.Context, now time.Time) ([]model.ScheduledBattle, error) {
	var result []model.ScheduledBattle
	for _, b := range m.battles {
		if (b.State == model.BattleScheduled || b.State == model.BattlePrepared) && !now.Before(b.ScheduledAt) {
			result = append(result, *b)
		}
	}
	return result, nil
}

func (m *mockBattleRepo) ListPending(_ context.Context) ([]model.ScheduledBattle, error) {
	var result []model.ScheduledBattle
	for _, b := range m.battles {
		if b.State == model.BattleScheduled || b.State == model.BattlePrepared {
			result = append(result, *b)
		}
	}
	return result, nil
}

func (m *mockBattleRepo) ListByTerritory(_ context.Context, territoryID string) ([]model.ScheduledBattle, error) {
	var result []model.ScheduledBattle
	for _, b := range m.battles {
		if b.TerritoryID == territoryID {
			result = append(result, *b)
		}
	}
	return result, nil
}

type mockParticipationRepo struct {
	records map[string]model.ParticipationRecord // keyed battleID/userID
}

func newMockParticipationRepo() *mockParticipationRepo {
	return &mockParticipationRepo{records: make(map[string]model.ParticipationRecord)}
}

func (m *mockParticipationRepo) Create(_ context.Context, rec *model.ParticipationRecord) error {
	key := rec.BattleID + "/" + rec.UserID
	if _, ok := m.records[key]; ok {
		return nil
	}
	m.records[key] = *rec
	return nil
}

func (m *mockParticipationRepo) ListByBattle(_ context.Context, battleID string) ([]model.ParticipationRecord, error) {
	var result []model.ParticipationRecord
	for _, rec := range m.records {
		if rec.BattleID == battleID {
			result = append(result, rec)
		}
	}
	return result, nil
}

type mockBlueprintRepo struct {
	blueprints map[string]*model.Blueprint
}

func newMockBlueprintRepo() *mockBlueprintRepo {
	return &mockBlueprintRepo{blueprints: make(map[string]*model.Blueprint)}
}

func (m *mockBlueprintRepo) Create(_ context.Context, bp *model.Blueprint) error {
	cp := *bp
	m.blueprints[bp.ID] = &cp
	return nil
}

func (m *mockBlueprintRepo) FindByID(_ context.Context, id string) (*model.Blueprint, error) {
	bp, ok := m.blueprints[id]
	if !ok {
		return nil, nil
	}
	cp := *bp
	return &cp, nil
}

func (m *mockBlueprintRepo) ListByOwner(_ context.Context, ownerID string) ([]model.Blueprint, error) {
	var result []model.Blueprint
	for _, bp := range m.blueprints {
		if bp.OwnerID == ownerID {
			result = append(result, *bp)
		}
	}
	return result, nil
}

type mockWarRepo struct {
	wars map[string]*model.AllianceWar
}

func newMockWarRepo() *mockWarRepo {
	return &mockWarRepo{wars: make(map[string]*model.AllianceWar)}
}

func (m *mockWarRepo) Create(_ context.Context, war *model.AllianceWar) error {
	cp := *war
	m.wars[war.ID] = &cp
	return nil
}

func (m *mockWarRepo) FindByID(_ context.Context, id string) (*model.AllianceWar, error) {
	w, ok := m.wars[id]
	if !ok {
		return nil, nil
	}
	cp := *w
	return &cp, nil
}

func (m *mockWarRepo) FindBetween(_ context.Context, allianceA, allianceB string) (*model.AllianceWar, error) {
	var latest *model.AllianceWar
	for _, w := range m.wars {
		pair := (w.AttackingAllianceID == allianceA && w.DefendingAllianceID == allianceB) ||
			(w.AttackingAllianceID == allianceB && w.DefendingAllianceID == allianceA)
		if pair && w.Phase != model.WarEnded {
			if latest == nil || w.DeclaredAt.After(latest.DeclaredAt) {
				latest = w
			}
		}
	}
	if latest == nil {
		return nil, nil
	}
	cp := *latest
	return &cp, nil
}

func (m *mockWarRepo) UpdatePhase(_ context.Context, id, phase string, at time.Time) error {
	if w, ok := m.wars[id]; ok {
		w.Phase = phase
		w.PhaseChangedAt = at
	}
	return nil
}

func (m *mockWarRepo) AddScore(_ context.Context, id string, attackerPoints, defenderPoints int) error {
	if w, ok := m.wars[id]; ok {
		w.AttackerScore += attackerPoints
		w.DefenderScore += defenderPoints
	}
	return nil
}

type mockBattleCache struct {
	formations map[string]map[string]json.RawMessage
	timers     map[string]time.Time
	shields    map[string]time.Time
	density    map[string]string
}

func newMockBattleCache() *mockBattleCache {
	return &mockBattleCache{
		formations: make(map[string]map[string]json.RawMessage),
		timers:     make(map[string]time.Time),
		shields:    make(map[string]time.Time),
		density:    make(map[string]string),
	}
}

func (m *mockBattleCache) SetFormation(_ context.Context, battleID, side string, formation json.RawMessage) error {
	if m.formations[battleID] == nil {
		m.formations[battleID] = make(map[string]json.RawMessage)
	}
	m.formations[battleID][side] = formation
	return nil
}

func (m *mockBattleCache) GetFormations(_ context.Context, battleID string) (map[string]json.RawMessage, error) {
	out := make(map[string]json.RawMessage, len(m.formations[battleID]))
	for side, raw := range m.formations[battleID] {
		out[side] = raw
	}
	return out, nil
}

func (m *mockBattleCache) SetBattleTimer(_ context.Context, battleID string, deadline time.Time) error {
	m.timers[battleID] = deadline
	return nil
}

func (m *mockBattleCache) ClearBattleData(_ context.Context, battleID string) error {
	delete(m.formations, battleID)
	delete(m.timers, battleID)
	return nil
}

func (m *mockBattleCache) SetPostBattleShield(_ context.Context, userID string, endedAt time.Time) error {
	m.shields[userID] = endedAt.Add(siege.PostBattleShieldDuration)
	return nil
}

func (m *mockBattleCache) PostBattleShieldActive(_ context.Context, userID string) (bool, error) {
	until, ok := m.shields[userID]
	return ok && time.Now().Before(until), nil
}

func (m *mockBattleCache) SetDensity(_ context.Context, cell, density string) error {
	m.density[cell] = density
	return nil
}

func (m *mockBattleCache) GetDensity(_ context.Context, cell string) (string, error) {
	return m.density[cell], nil
}

// mockClassifier returns a fixed density without touching the network.
type mockClassifier struct {
	density siege.Density
	err     error
}

func (m mockClassifier) ClassifyDensity(_ context.Context, _, _ float64) (siege.Density, error) {
	if m.err != nil {
		return siege.Rural, m.err
	}
	return m.density, nil
}

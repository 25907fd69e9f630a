package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/wrenfall/terraclaim/internal/model"
)

// AllianceWarRepo handles alliance war database operations.
type AllianceWarRepo struct {
	db *sql.DB
}

// NewAllianceWarRepo creates an AllianceWarRepo.
func NewAllianceWarRepo(db *sql.DB) *AllianceWarRepo {
	return &AllianceWarRepo{db: db}
}

const warColumns = `id, attacking_alliance_id, defending_alliance_id, phase,
	declared_at, phase_changed_at, attacker_score, defender_score`

func scanWar(row interface{ Scan(...any) error }) (*model.AllianceWar, error) {
	var w model.AllianceWar
	err := row.Scan(&w.ID, &w.AttackingAllianceID, &w.DefendingAllianceID, &w.Phase,
		&w.DeclaredAt, &w.PhaseChangedAt, &w.AttackerScore, &w.DefenderScore)
	if err != nil {
		return nil, err
	}
	return &w, nil
}

// Create inserts a declared war.
func (r *AllianceWarRepo) Create(ctx context.Context, war *model.AllianceWar) error {
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO alliance_wars (id, attacking_alliance_id, defending_alliance_id, phase, declared_at, phase_changed_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING declared_at, phase_changed_at`,
		war.ID, war.AttackingAllianceID, war.DefendingAllianceID, war.Phase,
		war.DeclaredAt, war.PhaseChangedAt,
	).Scan(&war.DeclaredAt, &war.PhaseChangedAt)
	if err != nil {
		return fmt.Errorf("create alliance war: %w", err)
	}
	return nil
}

// FindByID returns a war by ID, or nil if not found.
func (r *AllianceWarRepo) FindByID(ctx context.Context, id string) (*model.AllianceWar, error) {
	w, err := scanWar(r.db.QueryRowContext(ctx,
		`SELECT `+warColumns+` FROM alliance_wars WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find alliance war: %w", err)
	}
	return w, nil
}

// FindBetween returns the most recent non-ended war between the two
// alliances, in either direction, or nil.
func (r *AllianceWarRepo) FindBetween(ctx context.Context, allianceA, allianceB string) (*model.AllianceWar, error) {
	w, err := scanWar(r.db.QueryRowContext(ctx,
		`SELECT `+warColumns+` FROM alliance_wars
		 WHERE phase != 'ended'
		   AND ((attacking_alliance_id = $1 AND defending_alliance_id = $2)
		     OR (attacking_alliance_id = $2 AND defending_alliance_id = $1))
		 ORDER BY declared_at DESC LIMIT 1`,
		allianceA, allianceB))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find war between alliances: %w", err)
	}
	return w, nil
}

// UpdatePhase advances a war to a new phase.
func (r *AllianceWarRepo) UpdatePhase(ctx context.Context, id, phase string, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE alliance_wars SET phase = $1, phase_changed_at = $2 WHERE id = $3`,
		phase, at, id)
	if err != nil {
		return fmt.Errorf("update war phase: %w", err)
	}
	return nil
}

// AddScore accumulates battle points onto a war's aggregate score.
func (r *AllianceWarRepo) AddScore(ctx context.Context, id string, attackerPoints, defenderPoints int) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE alliance_wars
		 SET attacker_score = attacker_score + $1, defender_score = defender_score + $2
		 WHERE id = $3`,
		attackerPoints, defenderPoints, id)
	if err != nil {
		return fmt.Errorf("add war score: %w", err)
	}
	return nil
}

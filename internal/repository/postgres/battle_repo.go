package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/wrenfall/terraclaim/internal/model"
)

// BattleRepo handles scheduled battle database operations.
type BattleRepo struct {
	db *sql.DB
}

// NewBattleRepo creates a BattleRepo.
func NewBattleRepo(db *sql.DB) *BattleRepo {
	return &BattleRepo{db: db}
}

const battleColumns = `id, attacker_id, defender_id, territory_id, state, scheduled_at,
	attacker_formation, defender_formation, reward_scale, war_id, result, resolved_at, created_at`

func scanBattle(row interface{ Scan(...any) error }) (*model.ScheduledBattle, error) {
	var b model.ScheduledBattle
	var attFormation, defFormation, result, warID sql.NullString
	err := row.Scan(&b.ID, &b.AttackerID, &b.DefenderID, &b.TerritoryID, &b.State, &b.ScheduledAt,
		&attFormation, &defFormation, &b.RewardScale, &warID, &result, &b.ResolvedAt, &b.CreatedAt)
	if err != nil {
		return nil, err
	}
	if attFormation.Valid {
		b.AttackerFormation = json.RawMessage(attFormation.String)
	}
	if defFormation.Valid {
		b.DefenderFormation = json.RawMessage(defFormation.String)
	}
	if result.Valid {
		b.Result = json.RawMessage(result.String)
	}
	b.WarID = warID.String
	return &b, nil
}

// Create inserts a new scheduled battle.
func (r *BattleRepo) Create(ctx context.Context, b *model.ScheduledBattle) error {
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO battles (id, attacker_id, defender_id, territory_id, state, scheduled_at, reward_scale, war_id)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING created_at`,
		b.ID, b.AttackerID, b.DefenderID, b.TerritoryID, b.State, b.ScheduledAt,
		b.RewardScale, nullStr(b.WarID),
	).Scan(&b.CreatedAt)
	if err != nil {
		return fmt.Errorf("create battle: %w", err)
	}
	return nil
}

// FindByID returns a battle by ID, or nil if not found.
func (r *BattleRepo) FindByID(ctx context.Context, id string) (*model.ScheduledBattle, error) {
	b, err := scanBattle(r.db.QueryRowContext(ctx,
		`SELECT `+battleColumns+` FROM battles WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find battle: %w", err)
	}
	return b, nil
}

// LastAttackAt returns the creation time of the attacker's most recent
// non-cancelled battle against the territory, or nil.
func (r *BattleRepo) LastAttackAt(ctx context.Context, attackerID, territoryID string) (*time.Time, error) {
	var at time.Time
	err := r.db.QueryRowContext(ctx,
		`SELECT created_at FROM battles
		 WHERE attacker_id = $1 AND territory_id = $2 AND state != 'cancelled'
		 ORDER BY created_at DESC LIMIT 1`,
		attackerID, territoryID,
	).Scan(&at)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("last attack at: %w", err)
	}
	return &at, nil
}

// LastAllianceAttackAt is the cooldown check keyed by the attacker's alliance.
func (r *BattleRepo) LastAllianceAttackAt(ctx context.Context, allianceID, territoryID string) (*time.Time, error) {
	var at time.Time
	err := r.db.QueryRowContext(ctx,
		`SELECT b.created_at FROM battles b
		 JOIN users u ON u.id = b.attacker_id
		 WHERE u.alliance_id = $1 AND b.territory_id = $2 AND b.state != 'cancelled'
		 ORDER BY b.created_at DESC LIMIT 1`,
		allianceID, territoryID,
	).Scan(&at)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("last alliance attack at: %w", err)
	}
	return &at, nil
}

// MarkPrepared moves a scheduled battle to prepared once both formations
// are staged. A battle past scheduled is left alone.
func (r *BattleRepo) MarkPrepared(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE battles SET state = 'prepared' WHERE id = $1 AND state = 'scheduled'`, id)
	if err != nil {
		return fmt.Errorf("mark prepared: %w", err)
	}
	return nil
}

// ResolveCAS transitions scheduled|prepared -> resolved and stores the
// captured formations and result in the same statement. Exactly one caller
// wins; the rest see zero rows and read back the stored result.
func (r *BattleRepo) ResolveCAS(ctx context.Context, id string, attackerFormation, defenderFormation, result json.RawMessage, resolvedAt time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE battles
		 SET state = 'resolved', attacker_formation = $1, defender_formation = $2,
		     result = $3, resolved_at = $4
		 WHERE id = $5 AND state IN ('scheduled', 'prepared')`,
		attackerFormation, defenderFormation, result, resolvedAt, id)
	if err != nil {
		return false, fmt.Errorf("resolve battle cas: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("resolve battle rows: %w", err)
	}
	return n > 0, nil
}

// CancelCAS transitions scheduled|prepared -> cancelled. A battle that
// already resolved stays resolved.
func (r *BattleRepo) CancelCAS(ctx context.Context, id string) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE battles SET state = 'cancelled'
		 WHERE id = $1 AND state IN ('scheduled', 'prepared')`, id)
	if err != nil {
		return false, fmt.Errorf("cancel battle cas: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("cancel battle rows: %w", err)
	}
	return n > 0, nil
}

// ListDue returns unresolved battles whose execution time has passed.
func (r *BattleRepo) ListDue(ctx context.Context, now time.Time) ([]model.ScheduledBattle, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+battleColumns+` FROM battles
		 WHERE state IN ('scheduled', 'prepared') AND scheduled_at <= $1
		 ORDER BY scheduled_at`, now)
	if err != nil {
		return nil, fmt.Errorf("list due battles: %w", err)
	}
	defer rows.Close()
	return collectBattles(rows)
}

// ListPending returns all unresolved battles, due or not. Used at startup
// to restore timers lost during a restart.
func (r *BattleRepo) ListPending(ctx context.Context) ([]model.ScheduledBattle, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+battleColumns+` FROM battles
		 WHERE state IN ('scheduled', 'prepared')
		 ORDER BY scheduled_at`)
	if err != nil {
		return nil, fmt.Errorf("list pending battles: %w", err)
	}
	defer rows.Close()
	return collectBattles(rows)
}

// ListByTerritory returns a territory's battle history, newest first.
func (r *BattleRepo) ListByTerritory(ctx context.Context, territoryID string) ([]model.ScheduledBattle, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+battleColumns+` FROM battles
		 WHERE territory_id = $1 ORDER BY created_at DESC`, territoryID)
	if err != nil {
		return nil, fmt.Errorf("list battles by territory: %w", err)
	}
	defer rows.Close()
	return collectBattles(rows)
}

func collectBattles(rows *sql.Rows) ([]model.ScheduledBattle, error) {
	var battles []model.ScheduledBattle
	for rows.Next() {
		b, err := scanBattle(rows)
		if err != nil {
			return nil, fmt.Errorf("scan battle: %w", err)
		}
		battles = append(battles, *b)
	}
	return battles, rows.Err()
}

func nullStr(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

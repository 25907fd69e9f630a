package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/wrenfall/terraclaim/internal/model"
)

// ParticipationRepo handles the immutable participation audit trail.
type ParticipationRepo struct {
	db *sql.DB
}

// NewParticipationRepo creates a ParticipationRepo.
func NewParticipationRepo(db *sql.DB) *ParticipationRepo {
	return &ParticipationRepo{db: db}
}

// Create inserts a participation record. A second record for the same
// (battle, user) pair is a no-op: the first measurement wins and the trail
// stays immutable.
func (r *ParticipationRepo) Create(ctx context.Context, rec *model.ParticipationRecord) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO participation_records (id, battle_id, user_id, tier, multiplier, distance_meters, recorded_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (battle_id, user_id) DO NOTHING`,
		rec.ID, rec.BattleID, rec.UserID, rec.Tier, rec.Multiplier, rec.DistanceMeters, rec.RecordedAt)
	if err != nil {
		return fmt.Errorf("create participation record: %w", err)
	}
	return nil
}

// ListByBattle returns all participation records for a battle.
func (r *ParticipationRepo) ListByBattle(ctx context.Context, battleID string) ([]model.ParticipationRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, battle_id, user_id, tier, multiplier, distance_meters, recorded_at
		 FROM participation_records WHERE battle_id = $1 ORDER BY recorded_at`, battleID)
	if err != nil {
		return nil, fmt.Errorf("list participation: %w", err)
	}
	defer rows.Close()

	var records []model.ParticipationRecord
	for rows.Next() {
		var rec model.ParticipationRecord
		if err := rows.Scan(&rec.ID, &rec.BattleID, &rec.UserID, &rec.Tier,
			&rec.Multiplier, &rec.DistanceMeters, &rec.RecordedAt); err != nil {
			return nil, fmt.Errorf("scan participation: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

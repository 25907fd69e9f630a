package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/wrenfall/terraclaim/internal/model"
)

// BlueprintRepo handles blueprint snapshot database operations.
type BlueprintRepo struct {
	db *sql.DB
}

// NewBlueprintRepo creates a BlueprintRepo.
func NewBlueprintRepo(db *sql.DB) *BlueprintRepo {
	return &BlueprintRepo{db: db}
}

// Create inserts a blueprint snapshot.
func (r *BlueprintRepo) Create(ctx context.Context, bp *model.Blueprint) error {
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO blueprints (id, owner_id, source_territory_id, structures, build_cost)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING created_at`,
		bp.ID, bp.OwnerID, nullStr(bp.SourceTerritoryID), bp.Structures, bp.BuildCost,
	).Scan(&bp.CreatedAt)
	if err != nil {
		return fmt.Errorf("create blueprint: %w", err)
	}
	return nil
}

// FindByID returns a blueprint by ID, or nil if not found.
func (r *BlueprintRepo) FindByID(ctx context.Context, id string) (*model.Blueprint, error) {
	var bp model.Blueprint
	var source sql.NullString
	err := r.db.QueryRowContext(ctx,
		`SELECT id, owner_id, source_territory_id, structures, build_cost, created_at
		 FROM blueprints WHERE id = $1`, id,
	).Scan(&bp.ID, &bp.OwnerID, &source, &bp.Structures, &bp.BuildCost, &bp.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find blueprint: %w", err)
	}
	bp.SourceTerritoryID = source.String
	return &bp, nil
}

// ListByOwner returns a player's blueprints, newest first.
func (r *BlueprintRepo) ListByOwner(ctx context.Context, ownerID string) ([]model.Blueprint, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, owner_id, source_territory_id, structures, build_cost, created_at
		 FROM blueprints WHERE owner_id = $1 ORDER BY created_at DESC`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list blueprints: %w", err)
	}
	defer rows.Close()

	var blueprints []model.Blueprint
	for rows.Next() {
		var bp model.Blueprint
		var source sql.NullString
		if err := rows.Scan(&bp.ID, &bp.OwnerID, &source, &bp.Structures, &bp.BuildCost, &bp.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan blueprint: %w", err)
		}
		bp.SourceTerritoryID = source.String
		blueprints = append(blueprints, bp)
	}
	return blueprints, rows.Err()
}

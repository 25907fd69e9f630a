package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/wrenfall/terraclaim/internal/model"
)

// TerritoryRepo handles territory database operations.
type TerritoryRepo struct {
	db *sql.DB
}

// NewTerritoryRepo creates a TerritoryRepo.
func NewTerritoryRepo(db *sql.DB) *TerritoryRepo {
	return &TerritoryRepo{db: db}
}

const territoryColumns = `id, owner_id, previous_owner_id, name, lat, lng, radius_meters,
	density, state, battle_losses, structures, blueprint_id, version, last_state_change_at, created_at`

func scanTerritory(row interface{ Scan(...any) error }) (*model.Territory, error) {
	var t model.Territory
	var owner, prevOwner, blueprint sql.NullString
	err := row.Scan(&t.ID, &owner, &prevOwner, &t.Name, &t.Lat, &t.Lng, &t.RadiusMeters,
		&t.Density, &t.State, &t.BattleLosses, &t.Structures, &blueprint,
		&t.Version, &t.LastStateChangeAt, &t.CreatedAt)
	if err != nil {
		return nil, err
	}
	t.OwnerID = owner.String
	t.PreviousOwnerID = prevOwner.String
	t.BlueprintID = blueprint.String
	return &t, nil
}

// Create inserts a new territory at version 1.
func (r *TerritoryRepo) Create(ctx context.Context, t *model.Territory) error {
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO territories (id, owner_id, name, lat, lng, radius_meters, density, state, battle_losses, structures)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 RETURNING version, last_state_change_at, created_at`,
		t.ID, nullStr(t.OwnerID), t.Name, t.Lat, t.Lng, t.RadiusMeters,
		t.Density, t.State, t.BattleLosses, t.Structures,
	).Scan(&t.Version, &t.LastStateChangeAt, &t.CreatedAt)
	if err != nil {
		return fmt.Errorf("create territory: %w", err)
	}
	return nil
}

// FindByID returns a territory by ID, or nil if not found.
func (r *TerritoryRepo) FindByID(ctx context.Context, id string) (*model.Territory, error) {
	t, err := scanTerritory(r.db.QueryRowContext(ctx,
		`SELECT `+territoryColumns+` FROM territories WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find territory: %w", err)
	}
	return t, nil
}

// ListByOwner returns all territories owned by a user.
func (r *TerritoryRepo) ListByOwner(ctx context.Context, ownerID string) ([]model.Territory, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+territoryColumns+` FROM territories WHERE owner_id = $1 ORDER BY created_at`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list territories by owner: %w", err)
	}
	defer rows.Close()
	return collectTerritories(rows)
}

// ListNear returns territories whose center lies within radiusMeters of the
// given point, using the haversine distance in SQL.
func (r *TerritoryRepo) ListNear(ctx context.Context, lat, lng, radiusMeters float64) ([]model.Territory, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+territoryColumns+` FROM territories
		 WHERE 2 * 6371000 * asin(sqrt(
		   power(sin(radians($1 - lat) / 2), 2) +
		   cos(radians(lat)) * cos(radians($1)) * power(sin(radians($2 - lng) / 2), 2)
		 )) <= $3
		 ORDER BY created_at`,
		lat, lng, radiusMeters)
	if err != nil {
		return nil, fmt.Errorf("list territories near: %w", err)
	}
	defer rows.Close()
	return collectTerritories(rows)
}

func collectTerritories(rows *sql.Rows) ([]model.Territory, error) {
	var territories []model.Territory
	for rows.Next() {
		t, err := scanTerritory(rows)
		if err != nil {
			return nil, fmt.Errorf("scan territory: %w", err)
		}
		territories = append(territories, *t)
	}
	return territories, rows.Err()
}

// UpdateCAS writes all mutable fields in one statement guarded by the
// version column. Multi-field mutations stay atomic; a false return means
// another writer advanced the version first.
func (r *TerritoryRepo) UpdateCAS(ctx context.Context, t *model.Territory, expectedVersion int64) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE territories
		 SET owner_id = $1, previous_owner_id = $2, state = $3, battle_losses = $4,
		     structures = $5, blueprint_id = $6, last_state_change_at = $7,
		     version = version + 1
		 WHERE id = $8 AND version = $9`,
		nullStr(t.OwnerID), nullStr(t.PreviousOwnerID), t.State, t.BattleLosses,
		t.Structures, nullStr(t.BlueprintID), t.LastStateChangeAt,
		t.ID, expectedVersion)
	if err != nil {
		return false, fmt.Errorf("territory cas update: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("territory cas rows: %w", err)
	}
	if n == 0 {
		return false, nil
	}
	t.Version = expectedVersion + 1
	return true, nil
}

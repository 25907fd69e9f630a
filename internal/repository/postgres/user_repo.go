package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/wrenfall/terraclaim/internal/model"
)

// UserRepo handles player database operations.
type UserRepo struct {
	db *sql.DB
}

// NewUserRepo creates a UserRepo.
func NewUserRepo(db *sql.DB) *UserRepo {
	return &UserRepo{db: db}
}

const userColumns = `id, provider, provider_id, display_name, avatar_url, alliance_id,
	power_rating, newcomer_shield_expires, last_active_at, created_at, updated_at`

func scanUser(row interface{ Scan(...any) error }) (*model.User, error) {
	var u model.User
	var avatar, alliance sql.NullString
	err := row.Scan(&u.ID, &u.Provider, &u.ProviderID, &u.DisplayName, &avatar, &alliance,
		&u.PowerRating, &u.NewcomerShieldExpires, &u.LastActiveAt, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	u.AvatarURL = avatar.String
	u.AllianceID = alliance.String
	return &u, nil
}

// FindByProviderID looks up a user by OAuth provider and provider-specific ID.
func (r *UserRepo) FindByProviderID(ctx context.Context, provider, providerID string) (*model.User, error) {
	u, err := scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE provider = $1 AND provider_id = $2`,
		provider, providerID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find user by provider: %w", err)
	}
	return u, nil
}

// FindByID looks up a user by their UUID.
func (r *UserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	u, err := scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find user by id: %w", err)
	}
	return u, nil
}

// Upsert creates a new user or refreshes display name and avatar. New users
// get the full newcomer shield from signup.
func (r *UserRepo) Upsert(ctx context.Context, provider, providerID, displayName, avatarURL string) (*model.User, error) {
	u, err := scanUser(r.db.QueryRowContext(ctx,
		`INSERT INTO users (provider, provider_id, display_name, avatar_url, newcomer_shield_expires, last_active_at)
		 VALUES ($1, $2, $3, $4, now() + interval '7 days', now())
		 ON CONFLICT (provider, provider_id)
		 DO UPDATE SET display_name = EXCLUDED.display_name, avatar_url = EXCLUDED.avatar_url, updated_at = now()
		 RETURNING `+userColumns,
		provider, providerID, displayName, avatarURL))
	if err != nil {
		return nil, fmt.Errorf("upsert user: %w", err)
	}
	return u, nil
}

// TouchActivity records that the user was active, feeding the activity-based
// defense bonus.
func (r *UserRepo) TouchActivity(ctx context.Context, id string, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE users SET last_active_at = $1, updated_at = now() WHERE id = $2`, at, id)
	if err != nil {
		return fmt.Errorf("touch activity: %w", err)
	}
	return nil
}

// SetAlliance assigns or clears a user's alliance membership.
func (r *UserRepo) SetAlliance(ctx context.Context, id, allianceID string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE users SET alliance_id = $1, updated_at = now() WHERE id = $2`,
		nullStr(allianceID), id)
	if err != nil {
		return fmt.Errorf("set alliance: %w", err)
	}
	return nil
}

// AddPowerRating credits battle rewards onto a player's power rating.
// The rating never drops below zero.
func (r *UserRepo) AddPowerRating(ctx context.Context, id string, delta float64) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE users SET power_rating = greatest(power_rating + $1, 0), updated_at = now() WHERE id = $2`,
		delta, id)
	if err != nil {
		return fmt.Errorf("add power rating: %w", err)
	}
	return nil
}

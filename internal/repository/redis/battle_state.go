package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Key patterns for Redis battle state.
func formationsKey(battleID string) string { return "battle:" + battleID + ":formations" }
func timerKey(battleID string) string      { return "battle:" + battleID + ":timer" }
func shieldKey(userID string) string       { return "shield:" + userID }
func densityKey(cell string) string        { return "density:" + cell }

// densityTTL bounds how long a density classification is trusted before the
// external service is consulted again.
const densityTTL = 30 * 24 * time.Hour

// SetFormation stages one side's formation for a pending battle. Each side
// writes its own hash field, so concurrent writes by the two sides never
// clobber each other: last writer wins per side, not overall.
func (c *Client) SetFormation(ctx context.Context, battleID, side string, formation json.RawMessage) error {
	return c.rdb.HSet(ctx, formationsKey(battleID), side, []byte(formation)).Err()
}

// GetFormations returns the staged formations keyed by side.
func (c *Client) GetFormations(ctx context.Context, battleID string) (map[string]json.RawMessage, error) {
	raw, err := c.rdb.HGetAll(ctx, formationsKey(battleID)).Result()
	if err != nil {
		return nil, fmt.Errorf("get formations: %w", err)
	}
	result := make(map[string]json.RawMessage, len(raw))
	for side, data := range raw {
		result[side] = json.RawMessage(data)
	}
	return result, nil
}

// battleGracePeriod is the extra time after the displayed execution time
// before the timer key expires, giving late formation writes leeway.
const battleGracePeriod = 5 * time.Second

// SetBattleTimer creates a timer key with a TTL. When the key expires,
// Redis keyspace notifications trigger battle execution.
func (c *Client) SetBattleTimer(ctx context.Context, battleID string, deadline time.Time) error {
	ttl := time.Until(deadline) + battleGracePeriod
	if ttl <= 0 {
		ttl = time.Second
	}
	return c.rdb.Set(ctx, timerKey(battleID), deadline.Unix(), ttl).Err()
}

// ClearBattleData removes staged formations and the timer after resolution
// or cancellation.
func (c *Client) ClearBattleData(ctx context.Context, battleID string) error {
	return c.rdb.Del(ctx, formationsKey(battleID), timerKey(battleID)).Err()
}

// SetPostBattleShield records a user's 4-hour post-battle immunity. The TTL
// is the shield window itself, so presence of the key means the shield holds.
func (c *Client) SetPostBattleShield(ctx context.Context, userID string, endedAt time.Time) error {
	ttl := time.Until(endedAt.Add(4 * time.Hour))
	if ttl <= 0 {
		return nil
	}
	return c.rdb.Set(ctx, shieldKey(userID), endedAt.Unix(), ttl).Err()
}

// PostBattleShieldActive reports whether the user's post-battle shield holds.
func (c *Client) PostBattleShieldActive(ctx context.Context, userID string) (bool, error) {
	err := c.rdb.Get(ctx, shieldKey(userID)).Err()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get post-battle shield: %w", err)
	}
	return true, nil
}

// SetDensity caches a density classification for a coordinate cell.
func (c *Client) SetDensity(ctx context.Context, cell, density string) error {
	return c.rdb.Set(ctx, densityKey(cell), density, densityTTL).Err()
}

// GetDensity returns the cached density for a cell, or empty if not cached.
func (c *Client) GetDensity(ctx context.Context, cell string) (string, error) {
	v, err := c.rdb.Get(ctx, densityKey(cell)).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get density: %w", err)
	}
	return v, nil
}

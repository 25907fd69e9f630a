package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Client wraps the Redis client for hot battle state operations.
type Client struct {
	rdb *redis.Client
}

// NewClient creates a Redis client from a connection URL and verifies it.
func NewClient(ctx context.Context, redisURL string) (*Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Client{rdb: rdb}, nil
}

// NewClientFromPool wraps an existing redis.Client for use in tests.
func NewClientFromPool(rdb *redis.Client) *Client {
	return &Client{rdb: rdb}
}

// EnableExpiryNotifications turns on keyspace expiry events, which drive
// battle auto-execution when a preparation timer lapses.
func (c *Client) EnableExpiryNotifications(ctx context.Context) error {
	return c.rdb.ConfigSet(ctx, "notify-keyspace-events", "Ex").Err()
}

// Close closes the Redis connection.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Underlying returns the raw redis client for keyspace notifications.
func (c *Client) Underlying() *redis.Client {
	return c.rdb
}

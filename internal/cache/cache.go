// Package cache provides a Redis-backed cache for per-user
// notification preference snapshots. Preferences change rarely but are
// read on every notify call, so a short TTL keeps the database out of
// the hot path without risking stale opt-outs for long.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/lablink/lablink/internal/notify"
	"github.com/lablink/lablink/internal/telemetry"
)

// ErrCacheMiss is returned when no snapshot is cached for a user.
var ErrCacheMiss = redis.Nil

// Config holds Redis connection settings.
type Config struct {
	Addr     string
	Password string
	DB       int
}

// PreferenceCache stores JSON-encoded preference rows keyed by user.
type PreferenceCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewPreferenceCache connects to Redis and verifies the connection.
// The client is instrumented with OpenTelemetry tracing.
func NewPreferenceCache(cfg Config, ttl time.Duration) (*PreferenceCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	telemetry.InstrumentRedisClient(client)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &PreferenceCache{client: client, ttl: ttl}, nil
}

// NewPreferenceCacheWithClient wraps an existing client, used by tests.
func NewPreferenceCacheWithClient(client *redis.Client, ttl time.Duration) *PreferenceCache {
	return &PreferenceCache{client: client, ttl: ttl}
}

func preferenceKey(userID string) string {
	return "notification:preferences:" + userID
}

// Get returns the cached preference snapshot for a user, or
// ErrCacheMiss when none is stored.
func (c *PreferenceCache) Get(ctx context.Context, userID string) ([]notify.PreferenceRow, error) {
	raw, err := c.client.Get(ctx, preferenceKey(userID)).Result()
	if err != nil {
		return nil, err
	}

	var rows []notify.PreferenceRow
	if err := json.Unmarshal([]byte(raw), &rows); err != nil {
		return nil, fmt.Errorf("failed to decode cached preferences: %w", err)
	}
	return rows, nil
}

// Set stores the preference snapshot for a user with the cache TTL.
func (c *PreferenceCache) Set(ctx context.Context, userID string, rows []notify.PreferenceRow) error {
	if rows == nil {
		rows = []notify.PreferenceRow{}
	}
	raw, err := json.Marshal(rows)
	if err != nil {
		return fmt.Errorf("failed to encode preferences: %w", err)
	}
	return c.client.Set(ctx, preferenceKey(userID), raw, c.ttl).Err()
}

// Invalidate drops the cached snapshot for a user.
func (c *PreferenceCache) Invalidate(ctx context.Context, userID string) error {
	return c.client.Del(ctx, preferenceKey(userID)).Err()
}

// Health pings Redis.
func (c *PreferenceCache) Health(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close releases the underlying client.
func (c *PreferenceCache) Close() error {
	return c.client.Close()
}

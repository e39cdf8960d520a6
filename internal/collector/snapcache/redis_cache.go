package snapcache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const fingerprintKey = "planward:snapshot:fingerprint"

// RedisCache stores the fingerprint of the last planned snapshot in Redis
// with a TTL, so a restarted worker does not replan unchanged state.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCache creates a fingerprint cache on the given Redis client.
func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: ttl}
}

// LastFingerprint returns the stored fingerprint, or empty when none is set.
func (c *RedisCache) LastFingerprint(ctx context.Context) (string, error) {
	value, err := c.client.Get(ctx, fingerprintKey).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read snapshot fingerprint: %w", err)
	}
	return value, nil
}

// StoreFingerprint records the fingerprint of the last planned snapshot.
func (c *RedisCache) StoreFingerprint(ctx context.Context, fingerprint string) error {
	if err := c.client.Set(ctx, fingerprintKey, fingerprint, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store snapshot fingerprint: %w", err)
	}
	return nil
}

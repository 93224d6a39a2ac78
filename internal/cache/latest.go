package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"aquamon/internal/models"
)

// DefaultKey holds the most recently collected reading
const DefaultKey = "aquamon:reading:last"

// LatestCache keeps the newest reading in Redis so the current-reading
// endpoint does not touch the database
type LatestCache struct {
	rdb *redis.Client
	key string
	ttl time.Duration
}

// NewLatestCache connects to addr and verifies the connection
func NewLatestCache(ctx context.Context, addr string, ttl time.Duration) (*LatestCache, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr: addr,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis is not reachable at %s: %w", addr, err)
	}
	return &LatestCache{rdb: rdb, key: DefaultKey, ttl: ttl}, nil
}

// Name identifies the cache in collector logs
func (c *LatestCache) Name() string {
	return "redis"
}

// Publish stores r as the latest reading. Placeholders are skipped so a
// failing channel never hides the last real value.
func (c *LatestCache) Publish(ctx context.Context, r models.Reading) error {
	if r.Placeholder {
		return nil
	}
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to encode reading: %w", err)
	}
	if err := c.rdb.Set(ctx, c.key, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache reading: %w", err)
	}
	return nil
}

// Get returns the cached reading; ok is false when nothing is cached
func (c *LatestCache) Get(ctx context.Context) (models.Reading, bool, error) {
	data, err := c.rdb.Get(ctx, c.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return models.Reading{}, false, nil
	}
	if err != nil {
		return models.Reading{}, false, fmt.Errorf("failed to read cached reading: %w", err)
	}

	var r models.Reading
	if err := json.Unmarshal(data, &r); err != nil {
		return models.Reading{}, false, fmt.Errorf("failed to decode cached reading: %w", err)
	}
	return r, true, nil
}

// Close closes the Redis client
func (c *LatestCache) Close() error {
	return c.rdb.Close()
}

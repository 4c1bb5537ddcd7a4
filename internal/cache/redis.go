// Package cache keeps filtered catalog query results in Redis so repeated
// non-forced runs skip the store.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/IshaanNene/unitscout/internal/config"
	"github.com/IshaanNene/unitscout/internal/types"
)

const keyPrefix = "unitscout"

// RedisCache stores JSON-encoded result lists with a TTL.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewRedisCache creates a cache from config. The connection is lazy; call
// Ping to verify it.
func NewRedisCache(cfg config.CacheConfig, logger *slog.Logger) *RedisCache {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return NewRedisCacheWithClient(client, cfg.TTL, logger)
}

// NewRedisCacheWithClient wraps an existing client.
func NewRedisCacheWithClient(client *redis.Client, ttl time.Duration, logger *slog.Logger) *RedisCache {
	return &RedisCache{
		client: client,
		ttl:    ttl,
		logger: logger.With("component", "redis_cache"),
	}
}

// Key returns the cache key for a category and filter.
func Key(category, filter string) string {
	if filter == "" {
		filter = "all"
	}
	return fmt.Sprintf("%s:%s:%s", keyPrefix, category, filter)
}

// Ping checks the connection.
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Get returns the cached records. ok is false on a miss.
func (c *RedisCache) Get(ctx context.Context, category, filter string) ([]*types.CatalogRecord, bool, error) {
	b, err := c.client.Get(ctx, Key(category, filter)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache get: %w", err)
	}

	var records []*types.CatalogRecord
	if err := json.Unmarshal(b, &records); err != nil {
		return nil, false, fmt.Errorf("cache decode: %w", err)
	}
	return records, true, nil
}

// Set stores records under the category and filter.
func (c *RedisCache) Set(ctx context.Context, category, filter string, records []*types.CatalogRecord) error {
	if records == nil {
		records = []*types.CatalogRecord{}
	}
	b, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("cache encode: %w", err)
	}
	if err := c.client.Set(ctx, Key(category, filter), b, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache set: %w", err)
	}
	return nil
}

// Invalidate removes every cached filter of a category.
func (c *RedisCache) Invalidate(ctx context.Context, category string) error {
	var keys []string
	iter := c.client.Scan(ctx, 0, fmt.Sprintf("%s:%s:*", keyPrefix, category), 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("cache scan: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("cache delete: %w", err)
	}
	c.logger.Debug("cache invalidated", "category", category, "keys", len(keys))
	return nil
}

// Close closes the client.
func (c *RedisCache) Close() error {
	return c.client.Close()
}

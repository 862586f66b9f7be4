// Package cache provides Redis-based caching of resolved elevation
// results. Point queries are heavily repeated (route profiles sample the
// same corridors), so a short-lived cache removes most raster reads.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/road-engineering/dem-elevation/internal/engine"
)

// Cache wraps the Redis client used for elevation results.
type Cache struct {
	client *redis.Client
}

// ElevationTTL is how long a resolved elevation stays cached. Terrain
// does not move; the TTL only bounds staleness across index rebuilds.
const ElevationTTL = 24 * time.Hour

// New creates a Redis cache client from REDIS_URL.
func New() (*Cache, error) {
	redisURL := os.Getenv("REDIS_URL")
	if redisURL == "" {
		redisURL = "redis://localhost:6379"
	}

	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse REDIS_URL: %w", err)
	}

	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	slog.Info("cache connection established", "host", opt.Addr)
	return &Cache{client: client}, nil
}

// NewWithClient wraps an existing client (tests use miniredis).
func NewWithClient(client *redis.Client) *Cache {
	return &Cache{client: client}
}

// Close closes the Redis connection.
func (c *Cache) Close() error {
	return c.client.Close()
}

// Client returns the underlying Redis client for direct access (the
// rate limiter shares the connection).
func (c *Cache) Client() *redis.Client {
	return c.client
}

// elevationKey generates a cache key for a resolved point.
// Format: elev:{source}:{lat:.6f}:{lon:.6f}
func elevationKey(sourceID string, lat, lon float64) string {
	if sourceID == "" {
		sourceID = "auto"
	}
	return fmt.Sprintf("elev:%s:%.6f:%.6f", sourceID, lat, lon)
}

// GetElevation retrieves a cached result, or nil on miss.
func (c *Cache) GetElevation(ctx context.Context, sourceID string, lat, lon float64) (*engine.Result, error) {
	key := elevationKey(sourceID, lat, lon)
	data, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		slog.Debug("cache miss", "key", key)
		return nil, nil
	}
	if err != nil {
		slog.Error("cache get error", "key", key, "error", err)
		return nil, fmt.Errorf("failed to get cached elevation: %w", err)
	}

	var result engine.Result
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cached elevation: %w", err)
	}
	slog.Debug("cache hit", "key", key)
	return &result, nil
}

// SetElevation caches a resolved result.
func (c *Cache) SetElevation(ctx context.Context, sourceID string, lat, lon float64, result engine.Result) error {
	key := elevationKey(sourceID, lat, lon)
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal elevation result: %w", err)
	}
	if err := c.client.Set(ctx, key, data, ElevationTTL).Err(); err != nil {
		slog.Error("cache set error", "key", key, "error", err)
		return err
	}
	return nil
}

// InvalidateAll drops every cached elevation. Called after an index
// rebuild replaces the serving document.
func (c *Cache) InvalidateAll(ctx context.Context) error {
	return c.deleteByPattern(ctx, "elev:*")
}

// deleteByPattern deletes all keys matching a pattern.
func (c *Cache) deleteByPattern(ctx context.Context, pattern string) error {
	var cursor uint64
	var deleted int64

	for {
		keys, nextCursor, err := c.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return fmt.Errorf("failed to scan keys: %w", err)
		}
		if len(keys) > 0 {
			result, err := c.client.Del(ctx, keys...).Result()
			if err != nil {
				return fmt.Errorf("failed to delete keys: %w", err)
			}
			deleted += result
		}
		cursor = nextCursor
		if cursor == 0 {
			break
		}
	}

	if deleted > 0 {
		slog.Debug("cache keys deleted", "count", deleted, "pattern", pattern)
	}
	return nil
}

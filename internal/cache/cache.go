// Package cache provides an optional Redis cache for aircraft statistics.
// Entries are keyed under a generation counter that the pipeline bumps after
// every successful load, so a refreshed store never serves stale stats.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"adsb_pipeline/internal/store"
)

const (
	genKey   = "stats:gen"
	entryTTL = time.Hour
)

// RedisClient is the subset of go-redis operations the cache uses, so tests
// can substitute a fake.
type RedisClient interface {
	Ping(ctx context.Context) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Incr(ctx context.Context, key string) *redis.IntCmd
	Close() error
}

// StatsCache caches aircraft stats responses. A nil *StatsCache is a valid
// no-op so callers never branch on whether caching is configured.
type StatsCache struct {
	client RedisClient
}

// New connects to Redis at addr.
func New(addr string) (*StatsCache, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}

	return &StatsCache{client: client}, nil
}

// NewWithClient creates a cache over an injected client. Used by tests.
func NewWithClient(client RedisClient) *StatsCache {
	return &StatsCache{client: client}
}

// Close closes the Redis connection.
func (c *StatsCache) Close() error {
	if c == nil {
		return nil
	}
	return c.client.Close()
}

// Get returns the cached stats for icao under the current generation.
func (c *StatsCache) Get(ctx context.Context, icao string) (store.Stats, bool) {
	var stats store.Stats
	if c == nil {
		return stats, false
	}

	data, err := c.client.Get(ctx, c.entryKey(ctx, icao)).Bytes()
	if err != nil {
		return stats, false
	}
	if err := json.Unmarshal(data, &stats); err != nil {
		return stats, false
	}
	return stats, true
}

// Set caches the stats for icao under the current generation.
func (c *StatsCache) Set(ctx context.Context, icao string, stats store.Stats) {
	if c == nil {
		return
	}
	data, err := json.Marshal(stats)
	if err != nil {
		return
	}
	_ = c.client.Set(ctx, c.entryKey(ctx, icao), data, entryTTL).Err()
}

// Invalidate bumps the generation counter, orphaning all cached entries.
// Called after every successful load; orphaned keys expire via TTL.
func (c *StatsCache) Invalidate(ctx context.Context) {
	if c == nil {
		return
	}
	_ = c.client.Incr(ctx, genKey).Err()
}

func (c *StatsCache) entryKey(ctx context.Context, icao string) string {
	gen, err := c.client.Get(ctx, genKey).Int64()
	if err != nil {
		gen = 0
	}
	return fmt.Sprintf("stats:%d:%s", gen, icao)
}

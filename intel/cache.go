package intel

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"argus/core"
	"argus/metrics"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// VerdictCache caches fused indicator verdicts so that repeated indicators
// across a batch (or across batch runs) do not hit the providers again.
type VerdictCache interface {
	Get(ctx context.Context, indicator string) (*core.IndicatorVerdict, bool)
	Set(ctx context.Context, indicator string, verdict *core.IndicatorVerdict)
	Close() error
}

// MemoryVerdictCache is an in-process verdict cache backed by an expirable
// LRU. Entries are evicted on TTL expiry or when the cache is full.
type MemoryVerdictCache struct {
	lru *expirable.LRU[string, core.IndicatorVerdict]
}

// NewMemoryVerdictCache creates a new in-process verdict cache.
func NewMemoryVerdictCache(size int, ttl time.Duration) *MemoryVerdictCache {
	return &MemoryVerdictCache{
		lru: expirable.NewLRU[string, core.IndicatorVerdict](size, nil, ttl),
	}
}

// Get retrieves a cached verdict.
func (c *MemoryVerdictCache) Get(_ context.Context, indicator string) (*core.IndicatorVerdict, bool) {
	verdict, ok := c.lru.Get(indicator)
	if !ok {
		metrics.CacheMisses.WithLabelValues("memory").Inc()
		return nil, false
	}
	metrics.CacheHits.WithLabelValues("memory").Inc()
	return &verdict, true
}

// Set stores a verdict.
func (c *MemoryVerdictCache) Set(_ context.Context, indicator string, verdict *core.IndicatorVerdict) {
	c.lru.Add(indicator, *verdict)
}

// Close releases resources. A no-op for the in-process cache.
func (c *MemoryVerdictCache) Close() error { return nil }

const redisVerdictKeyPrefix = "argus:verdict:"

// RedisVerdictCache is a Redis-backed verdict cache shared across instances.
// Cache failures degrade to misses; they never fail an enrichment.
type RedisVerdictCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.SugaredLogger
}

// NewRedisVerdictCache creates a new Redis-backed verdict cache.
func NewRedisVerdictCache(addr, password string, db int, ttl time.Duration, logger *zap.SugaredLogger) *RedisVerdictCache {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &RedisVerdictCache{client: client, ttl: ttl, logger: logger}
}

// Ping tests the Redis connection.
func (c *RedisVerdictCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Get retrieves a cached verdict.
func (c *RedisVerdictCache) Get(ctx context.Context, indicator string) (*core.IndicatorVerdict, bool) {
	data, err := c.client.Get(ctx, redisVerdictKeyPrefix+indicator).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			metrics.CacheErrors.WithLabelValues("redis", "get").Inc()
			c.logger.Warnf("Redis verdict cache get failed for %s: %v", indicator, err)
		}
		metrics.CacheMisses.WithLabelValues("redis").Inc()
		return nil, false
	}

	var verdict core.IndicatorVerdict
	if err := json.Unmarshal(data, &verdict); err != nil {
		metrics.CacheErrors.WithLabelValues("redis", "unmarshal").Inc()
		c.logger.Warnf("Redis verdict cache entry for %s is corrupt: %v", indicator, err)
		return nil, false
	}

	metrics.CacheHits.WithLabelValues("redis").Inc()
	return &verdict, true
}

// Set stores a verdict with the cache TTL.
func (c *RedisVerdictCache) Set(ctx context.Context, indicator string, verdict *core.IndicatorVerdict) {
	data, err := json.Marshal(verdict)
	if err != nil {
		metrics.CacheErrors.WithLabelValues("redis", "marshal").Inc()
		c.logger.Errorf("Failed to marshal verdict for %s: %v", indicator, err)
		return
	}
	if err := c.client.Set(ctx, redisVerdictKeyPrefix+indicator, data, c.ttl).Err(); err != nil {
		metrics.CacheErrors.WithLabelValues("redis", "set").Inc()
		c.logger.Warnf("Redis verdict cache set failed for %s: %v", indicator, err)
	}
}

// Close closes the Redis connection.
func (c *RedisVerdictCache) Close() error {
	return c.client.Close()
}

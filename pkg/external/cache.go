package external

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/toothsense-analysis-server/internal/domain"
)

const cacheKeyPrefix = "toothsense:recommendation:"

type cachedRecommendation struct {
	text      string
	expiresAt time.Time
}

// RecommendationCache keeps recommendation texts in two tiers: an in-process
// LRU (hot) and an optional Redis instance shared between replicas. Tier
// errors are logged and reported as misses.
type RecommendationCache struct {
	memory *lru.Cache[string, cachedRecommendation]
	redis  *redis.Client
	ttl    time.Duration
	logger *logrus.Logger

	mu    sync.Mutex
	stats CacheStats
}

// CacheStats counts lookups per tier.
type CacheStats struct {
	MemoryHits  int64 `json:"memory_hits"`
	RedisHits   int64 `json:"redis_hits"`
	Misses      int64 `json:"misses"`
	RedisErrors int64 `json:"redis_errors"`
}

// NewRecommendationCache creates the cache. A non-empty RedisURL must be
// reachable at construction time.
func NewRecommendationCache(config domain.CacheConfig, logger *logrus.Logger) (*RecommendationCache, error) {
	var client *redis.Client
	if config.RedisURL != "" {
		opts, err := redis.ParseURL(config.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
		}
		if config.PoolSize > 0 {
			opts.PoolSize = config.PoolSize
		}
		if config.PoolTimeout > 0 {
			opts.PoolTimeout = config.PoolTimeout
		}
		if config.MaxRetries != 0 {
			opts.MaxRetries = config.MaxRetries
		}
		client = redis.NewClient(opts)

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("failed to connect to Redis: %w", err)
		}
	}

	return newRecommendationCache(config, client, logger)
}

func newRecommendationCache(config domain.CacheConfig, client *redis.Client, logger *logrus.Logger) (*RecommendationCache, error) {
	size := config.MemorySize
	if size <= 0 {
		size = 256
	}
	memory, err := lru.New[string, cachedRecommendation](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create memory cache: %w", err)
	}

	ttl := config.TTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}

	return &RecommendationCache{
		memory: memory,
		redis:  client,
		ttl:    ttl,
		logger: orDiscard(logger),
	}, nil
}

// CacheKey derives the cache key for a recommendation request.
func CacheKey(disease, severity, context string) string {
	sum := sha256.Sum256([]byte(strings.Join([]string{disease, severity, context}, "\x00")))
	return cacheKeyPrefix + hex.EncodeToString(sum[:])
}

// Get looks the key up in memory first, then in Redis. A Redis hit is
// promoted to memory.
func (c *RecommendationCache) Get(ctx context.Context, key string) (string, bool) {
	if entry, ok := c.memory.Get(key); ok {
		if time.Now().Before(entry.expiresAt) {
			c.count(func(s *CacheStats) { s.MemoryHits++ })
			return entry.text, true
		}
		c.memory.Remove(key)
	}

	if c.redis != nil {
		val, err := c.redis.Get(ctx, key).Result()
		switch {
		case err == nil:
			c.memory.Add(key, cachedRecommendation{text: val, expiresAt: time.Now().Add(c.ttl)})
			c.count(func(s *CacheStats) { s.RedisHits++ })
			return val, true
		case err != redis.Nil:
			c.count(func(s *CacheStats) { s.RedisErrors++ })
			c.logger.WithError(err).Warn("Redis cache lookup failed")
		}
	}

	c.count(func(s *CacheStats) { s.Misses++ })
	return "", false
}

// Set stores the value in both tiers.
func (c *RecommendationCache) Set(ctx context.Context, key, value string) {
	c.memory.Add(key, cachedRecommendation{text: value, expiresAt: time.Now().Add(c.ttl)})

	if c.redis != nil {
		if err := c.redis.Set(ctx, key, value, c.ttl).Err(); err != nil {
			c.count(func(s *CacheStats) { s.RedisErrors++ })
			c.logger.WithError(err).Warn("Redis cache write failed")
		}
	}
}

// Stats returns a snapshot of the lookup counters.
func (c *RecommendationCache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// Close releases the Redis connection pool.
func (c *RecommendationCache) Close() error {
	if c.redis == nil {
		return nil
	}
	return c.redis.Close()
}

func (c *RecommendationCache) count(update func(*CacheStats)) {
	c.mu.Lock()
	update(&c.stats)
	c.mu.Unlock()
}

package embedding

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/redis/go-redis/v9"

	"github.com/amoura/dating-app/internal/metrics"
)

const (
	// cacheKeyPrefix is the Redis key prefix for cached vectors.
	cacheKeyPrefix = "embed:"

	// DefaultCacheSize bounds the in-process LRU.
	DefaultCacheSize = 4096

	// DefaultCacheTTL is how long vectors live in the Redis layer.
	DefaultCacheTTL = 24 * time.Hour
)

// Cache is a two-level vector cache: a bounded in-process LRU in front of an
// optional write-through Redis layer. Keys are normalized text; values are
// fixed-length vectors. Both levels are safe for concurrent use.
type Cache struct {
	local *lru.Cache[string, []float32]
	rdb   *redis.Client // nil = in-process only
	ttl   time.Duration
}

// NewCache creates a cache with the given LRU capacity. rdb may be nil to
// run without the Redis layer (unit tests, single-process deployments).
func NewCache(capacity int, rdb *redis.Client, ttl time.Duration) (*Cache, error) {
	if capacity <= 0 {
		capacity = DefaultCacheSize
	}
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	local, err := lru.New[string, []float32](capacity)
	if err != nil {
		return nil, err
	}
	return &Cache{local: local, rdb: rdb, ttl: ttl}, nil
}

// Get returns the cached vector for key, checking the LRU first and falling
// back to Redis. A Redis hit is promoted into the LRU.
func (c *Cache) Get(ctx context.Context, key string) ([]float32, bool) {
	if vec, ok := c.local.Get(key); ok {
		metrics.EmbedCacheHits.Inc()
		return vec, true
	}

	if c.rdb != nil {
		data, err := c.rdb.Get(ctx, cacheKeyPrefix+key).Bytes()
		if err == nil {
			var vec []float32
			if err := json.Unmarshal(data, &vec); err == nil && len(vec) > 0 {
				c.local.Add(key, vec)
				metrics.EmbedCacheHits.Inc()
				return vec, true
			}
			log.Printf("[embedding] cache: corrupt entry for %q, dropping", key)
			c.rdb.Del(ctx, cacheKeyPrefix+key)
		} else if !errors.Is(err, redis.Nil) {
			log.Printf("[embedding] cache: redis get: %v", err)
		}
	}

	metrics.EmbedCacheMisses.Inc()
	return nil, false
}

// Put stores a vector under key in both levels. Redis write failures are
// logged, not surfaced: the LRU alone is enough to serve the process.
func (c *Cache) Put(ctx context.Context, key string, vec []float32) {
	c.local.Add(key, vec)

	if c.rdb != nil {
		data, err := json.Marshal(vec)
		if err != nil {
			return
		}
		if err := c.rdb.Set(ctx, cacheKeyPrefix+key, data, c.ttl).Err(); err != nil {
			log.Printf("[embedding] cache: redis set: %v", err)
		}
	}
}

// Len returns the number of entries in the in-process LRU.
func (c *Cache) Len() int {
	return c.local.Len()
}

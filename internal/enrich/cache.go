package enrich

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache stores successful parser responses. Unavailable outcomes are never
// cached.
type Cache interface {
	Get(ctx context.Context, text string) (Components, bool)
	Set(ctx context.Context, text string, c Components)
}

// cacheKey hashes the query so arbitrary address text is a safe key.
func cacheKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// MemoryCache is a bounded in-process cache with a fixed TTL. When full, the
// oldest entry is evicted.
type MemoryCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	max     int
	entries map[string]memoryEntry
	order   []string
	now     func() time.Time
}

type memoryEntry struct {
	components Components
	stored     time.Time
}

// NewMemoryCache returns a cache holding at most size entries. A zero ttl
// means entries never expire.
func NewMemoryCache(size int, ttl time.Duration) *MemoryCache {
	if size <= 0 {
		size = 1000
	}
	return &MemoryCache{
		ttl:     ttl,
		max:     size,
		entries: make(map[string]memoryEntry, size),
		now:     time.Now,
	}
}

func (c *MemoryCache) Get(_ context.Context, text string) (Components, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := cacheKey(text)
	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if c.ttl > 0 && c.now().Sub(e.stored) > c.ttl {
		return nil, false
	}
	return e.components, true
}

func (c *MemoryCache) Set(_ context.Context, text string, comps Components) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := cacheKey(text)
	if _, exists := c.entries[key]; !exists {
		for len(c.entries) >= c.max && len(c.order) > 0 {
			oldest := c.order[0]
			c.order = c.order[1:]
			delete(c.entries, oldest)
		}
		c.order = append(c.order, key)
	}
	c.entries[key] = memoryEntry{components: comps, stored: c.now()}
}

// Len returns the number of cached entries, expired ones included.
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

const redisKeyPrefix = "addrnorm:enrich:"

// RedisCache shares parser responses between processes.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// OpenRedis connects to url and verifies the connection. It returns nil when
// url is empty.
func OpenRedis(ctx context.Context, url string) (*redis.Client, error) {
	if url == "" {
		return nil, nil
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return client, nil
}

// NewRedisCache wraps an existing client.
func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: ttl}
}

// Get treats every Redis error, redis.Nil included, as a miss.
func (c *RedisCache) Get(ctx context.Context, text string) (Components, bool) {
	raw, err := c.client.Get(ctx, redisKeyPrefix+cacheKey(text)).Bytes()
	if err != nil {
		return nil, false
	}
	var comps Components
	if err := json.Unmarshal(raw, &comps); err != nil {
		return nil, false
	}
	return comps, true
}

func (c *RedisCache) Set(ctx context.Context, text string, comps Components) {
	raw, err := json.Marshal(comps)
	if err != nil {
		return
	}
	_ = c.client.Set(ctx, redisKeyPrefix+cacheKey(text), raw, c.ttl).Err()
}

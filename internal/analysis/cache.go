package analysis

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/soundeck/go-spotify-rewind/internal/logger"
)

// Cache stores generated analyses. Implementations swallow storage
// failures: a cache miss only costs another model call.
type Cache interface {
	Get(ctx context.Context, key string) (string, bool)
	Set(ctx context.Context, key, value string, ttl time.Duration)
}

// memoryCache keeps entries in process memory. Used when no Redis address
// is configured.
type memoryCache struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
}

type memoryEntry struct {
	value     string
	expiresAt time.Time
}

// NewMemoryCache creates an in-process cache.
func NewMemoryCache() Cache {
	return &memoryCache{entries: make(map[string]memoryEntry)}
}

func (c *memoryCache) Get(_ context.Context, key string) (string, bool) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok || time.Now().After(entry.expiresAt) {
		return "", false
	}
	return entry.value, true
}

func (c *memoryCache) Set(_ context.Context, key, value string, ttl time.Duration) {
	c.mu.Lock()
	c.entries[key] = memoryEntry{value: value, expiresAt: time.Now().Add(ttl)}
	c.mu.Unlock()
}

// redisCache stores entries in Redis so analyses survive restarts and are
// shared between instances.
type redisCache struct {
	client *redis.Client
}

// NewRedisCache creates a Redis-backed cache.
func NewRedisCache(addr string) Cache {
	return &redisCache{
		client: redis.NewClient(&redis.Options{Addr: addr}),
	}
}

func (c *redisCache) Get(ctx context.Context, key string) (string, bool) {
	value, err := c.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", false
	}
	if err != nil {
		logger.Log.Warnw("analysis cache read failed", "key", key, "err", err)
		return "", false
	}
	return value, true
}

func (c *redisCache) Set(ctx context.Context, key, value string, ttl time.Duration) {
	if err := c.client.Set(ctx, key, value, ttl).Err(); err != nil {
		logger.Log.Warnw("analysis cache write failed", "key", key, "err", err)
	}
}

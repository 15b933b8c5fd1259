package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache maps a request host to the id of the tenant serving it.
type Cache interface {
	Get(ctx context.Context, host string) (string, bool, error)
	Set(ctx context.Context, host, tenantID string) error
	Delete(ctx context.Context, hosts ...string) error
}

const cacheKeyPrefix = "tenant:host:"

// RedisCache stores host resolutions in Redis with a TTL.
type RedisCache struct {
	client redis.Cmdable
	ttl    time.Duration
}

// NewRedisCache creates a Redis backed resolution cache.
func NewRedisCache(client redis.Cmdable, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: ttl}
}

func (c *RedisCache) Get(ctx context.Context, host string) (string, bool, error) {
	id, err := c.client.Get(ctx, cacheKeyPrefix+host).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read tenant cache for %s: %w", host, err)
	}
	return id, true, nil
}

func (c *RedisCache) Set(ctx context.Context, host, tenantID string) error {
	if err := c.client.Set(ctx, cacheKeyPrefix+host, tenantID, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to write tenant cache for %s: %w", host, err)
	}
	return nil
}

func (c *RedisCache) Delete(ctx context.Context, hosts ...string) error {
	if len(hosts) == 0 {
		return nil
	}
	keys := make([]string, 0, len(hosts))
	for _, h := range hosts {
		keys = append(keys, cacheKeyPrefix+h)
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to invalidate tenant cache: %w", err)
	}
	return nil
}

// MemoryCache is a process-local Cache without expiry, used when Redis is
// disabled.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]string
}

// NewMemoryCache creates an empty MemoryCache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: map[string]string{}}
}

func (c *MemoryCache) Get(_ context.Context, host string) (string, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	id, ok := c.entries[host]
	return id, ok, nil
}

func (c *MemoryCache) Set(_ context.Context, host, tenantID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[host] = tenantID
	return nil
}

func (c *MemoryCache) Delete(_ context.Context, hosts ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, h := range hosts {
		delete(c.entries, h)
	}
	return nil
}

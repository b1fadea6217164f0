package reports

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/cache/v9"
	"github.com/redis/go-redis/v9"
)

// Cache stores derived report results. Entries are never authoritative.
type Cache interface {
	// Get loads the value at key into dst and reports whether it was found.
	Get(ctx context.Context, key string, dst any) (bool, error)
	Set(ctx context.Context, key string, value any) error
}

// NopCache never stores anything.
type NopCache struct{}

// Get implements Cache.
func (NopCache) Get(context.Context, string, any) (bool, error) { return false, nil }

// Set implements Cache.
func (NopCache) Set(context.Context, string, any) error { return nil }

// localCacheSize bounds the in-process TinyLFU layer in front of Redis.
const localCacheSize = 1024

// RedisCache keeps report results in Redis with a small local cache in
// front. Keys are content-addressed by chain tail, so entries never need
// invalidating; the TTL only bounds memory.
type RedisCache struct {
	cache *cache.Cache
	ttl   time.Duration
}

// NewRedisCache wraps an existing client.
func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{
		cache: cache.New(&cache.Options{
			Redis:      client,
			LocalCache: cache.NewTinyLFU(localCacheSize, time.Minute),
		}),
		ttl: ttl,
	}
}

// DialRedis parses url, connects and pings.
func DialRedis(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// Get implements Cache.
func (c *RedisCache) Get(ctx context.Context, key string, dst any) (bool, error) {
	err := c.cache.Get(ctx, key, dst)
	if errors.Is(err, cache.ErrCacheMiss) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Set implements Cache.
func (c *RedisCache) Set(ctx context.Context, key string, value any) error {
	return c.cache.Set(&cache.Item{
		Ctx:   ctx,
		Key:   key,
		Value: value,
		TTL:   c.ttl,
	})
}

func cacheKey(kind, tailHash string, chartRevision int64, params string) string {
	return fmt.Sprintf("chainledger:report:%s:%s:%d:%s", kind, tailHash, chartRevision, params)
}

// Package cache stores short-lived string values such as revoked token
// digests, in Redis when one is configured and in process otherwise.
package cache

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"contact-sync/internal/redis"
)

// ErrMiss is returned by Get for absent or expired keys.
var ErrMiss = stderrors.New("cache: key not found")

// Cache defines the interface for cache operations
type Cache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// LocalCache wraps patrickmn/go-cache. Entries live only as long as the process.
type LocalCache struct {
	cache *gocache.Cache
}

// NewLocalCache creates a new local cache instance
func NewLocalCache(defaultTTL, cleanupInterval time.Duration) *LocalCache {
	return &LocalCache{
		cache: gocache.New(defaultTTL, cleanupInterval),
	}
}

func (l *LocalCache) Get(ctx context.Context, key string) (string, error) {
	v, found := l.cache.Get(key)
	if !found {
		return "", ErrMiss
	}
	return fmt.Sprint(v), nil
}

// Set stores value; a non-positive ttl uses the cache default.
func (l *LocalCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = gocache.DefaultExpiration
	}
	l.cache.Set(key, fmt.Sprint(value), ttl)
	return nil
}

func (l *LocalCache) Delete(ctx context.Context, key string) error {
	l.cache.Delete(key)
	return nil
}

// RedisCache shares entries between instances.
type RedisCache struct {
	client    *redis.Client
	keyPrefix string
}

// NewRedisCache creates a new Redis cache instance
func NewRedisCache(client *redis.Client, keyPrefix string) *RedisCache {
	return &RedisCache{
		client:    client,
		keyPrefix: keyPrefix,
	}
}

func (r *RedisCache) Get(ctx context.Context, key string) (string, error) {
	v, err := r.client.Get(ctx, r.keyPrefix+key)
	if stderrors.Is(err, redis.Nil) {
		return "", ErrMiss
	}
	return v, err
}

func (r *RedisCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	return r.client.Set(ctx, r.keyPrefix+key, value, ttl)
}

func (r *RedisCache) Delete(ctx context.Context, key string) error {
	return r.client.Delete(ctx, r.keyPrefix+key)
}

// New returns a RedisCache when client is set and a LocalCache otherwise.
func New(client *redis.Client, keyPrefix string) Cache {
	if client == nil {
		return NewLocalCache(time.Hour, 10*time.Minute)
	}
	return NewRedisCache(client, keyPrefix)
}

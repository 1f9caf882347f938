// Package redis wraps the go-redis client used for cross-instance
// coordination of sync runs and the token revocation list.
package redis

import (
	"context"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"contact-sync/internal/common/errors"
)

// Nil is returned by Get for a missing key.
const Nil = goredis.Nil

// Config selects the server and sizes the connection pool.
type Config struct {
	Address     string
	Password    string
	DB          int
	PoolSize    int
	DialTimeout time.Duration
}

// Client is a connected, pinged go-redis client.
type Client struct {
	rdb      *goredis.Client
	poolSize int
}

// NewClient connects and pings the server. A missing address is a config
// error; an unreachable server is a connection error.
func NewClient(config *Config) (*Client, error) {
	if config == nil || config.Address == "" {
		return nil, errors.ConfigError("redis address is required")
	}
	poolSize := config.PoolSize
	if poolSize <= 0 {
		poolSize = 10
	}
	dialTimeout := config.DialTimeout
	if dialTimeout <= 0 {
		dialTimeout = 5 * time.Second
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        config.Address,
		Password:    config.Password,
		DB:          config.DB,
		PoolSize:    poolSize,
		DialTimeout: dialTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, errors.ConnectionError("failed to connect to Redis at "+config.Address, err)
	}

	return &Client{rdb: rdb, poolSize: poolSize}, nil
}

func (c *Client) Close() error {
	return c.rdb.Close()
}

// Health pings the server with a short deadline.
func (c *Client) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return c.rdb.Ping(ctx).Err()
}

func (c *Client) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	return c.rdb.Set(ctx, key, value, expiration).Err()
}

// Get returns Nil as the error when key does not exist.
func (c *Client) Get(ctx context.Context, key string) (string, error) {
	return c.rdb.Get(ctx, key).Result()
}

func (c *Client) Delete(ctx context.Context, keys ...string) error {
	return c.rdb.Del(ctx, keys...).Err()
}

// Underlying exposes the go-redis client for redsync pools.
func (c *Client) Underlying() *goredis.Client {
	return c.rdb
}

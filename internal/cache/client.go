// Package cache wraps the Redis client used for raw feed payloads, zone
// geometries, route check results, and rate limit counters. Callers treat
// cache failures as non-fatal; the rate gate fails open.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/roadpulse/server/internal/metrics"
)

type Option func(*redis.Options)

func WithPassword(p string) Option {
	return func(o *redis.Options) { o.Password = p }
}

func WithDB(db int) Option {
	return func(o *redis.Options) { o.DB = db }
}

func WithPoolSize(n int) Option {
	return func(o *redis.Options) { o.PoolSize = n }
}

func WithDialTimeout(d time.Duration) Option {
	return func(o *redis.Options) { o.DialTimeout = d }
}

// Client is a thin wrapper over one Redis connection pool.
type Client struct {
	rdb *redis.Client
}

// New connects and pings before returning, so startup fails fast on a bad
// address.
func New(ctx context.Context, addr string, opts ...Option) (*Client, error) {
	if addr == "" {
		return nil, errors.New("redis address is required")
	}

	ro := &redis.Options{
		Addr:         addr,
		PoolSize:     10,
		MinIdleConns: 2,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}
	for _, f := range opts {
		f(ro)
	}

	rdb := redis.NewClient(ro)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Client{rdb: rdb}, nil
}

// GetBytes fetches a key. The second return reports whether it existed.
func (c *Client) GetBytes(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := c.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		metrics.IncCacheMiss("get")
		return nil, false, nil
	}
	metrics.ObserveCacheOp("get", err)
	if err != nil {
		return nil, false, fmt.Errorf("redis GET %q: %w", key, err)
	}
	metrics.IncCacheHit("get")
	return val, true, nil
}

// SetBytes stores a value with a TTL. Zero TTL means no expiry.
func (c *Client) SetBytes(ctx context.Context, key string, val []byte, ttl time.Duration) error {
	err := c.rdb.Set(ctx, key, val, ttl).Err()
	metrics.ObserveCacheOp("set", err)
	if err != nil {
		return fmt.Errorf("redis SET %q: %w", key, err)
	}
	return nil
}

// GetJSON fetches and unmarshals a key into v.
func (c *Client) GetJSON(ctx context.Context, key string, v any) (bool, error) {
	b, ok, err := c.GetBytes(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal(b, v); err != nil {
		return false, fmt.Errorf("decoding cached %q: %w", key, err)
	}
	return true, nil
}

// SetJSON marshals and stores v under key with a TTL.
func (c *Client) SetJSON(ctx context.Context, key string, v any, ttl time.Duration) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %q: %w", key, err)
	}
	return c.SetBytes(ctx, key, b, ttl)
}

// Delete removes keys. Missing keys are not an error.
func (c *Client) Delete(ctx context.Context, keys ...string) error {
	err := c.rdb.Del(ctx, keys...).Err()
	metrics.ObserveCacheOp("del", err)
	if err != nil {
		return fmt.Errorf("redis DEL %d keys: %w", len(keys), err)
	}
	return nil
}

// Incr increments a counter, stamping the window TTL when this increment
// created the key. Returns the post-increment count.
func (c *Client) Incr(ctx context.Context, key string, window time.Duration) (int64, error) {
	n, err := c.rdb.Incr(ctx, key).Result()
	metrics.ObserveCacheOp("incr", err)
	if err != nil {
		return 0, fmt.Errorf("redis INCR %q: %w", key, err)
	}
	if n == 1 && window > 0 {
		if err := c.rdb.Expire(ctx, key, window).Err(); err != nil {
			return n, fmt.Errorf("redis EXPIRE %q: %w", key, err)
		}
	}
	return n, nil
}

// TTL returns the remaining lifetime of a key, or zero when it has none.
func (c *Client) TTL(ctx context.Context, key string) (time.Duration, error) {
	d, err := c.rdb.TTL(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("redis TTL %q: %w", key, err)
	}
	if d < 0 {
		return 0, nil
	}
	return d, nil
}

// Ping checks connectivity, for health endpoints.
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

func (c *Client) Close() error {
	if err := c.rdb.Close(); err != nil {
		return fmt.Errorf("redis close: %w", err)
	}
	return nil
}

// Redis returns the underlying client for components that need their own
// view of the same connection options, such as the scheduler.
func (c *Client) Redis() *redis.Client { return c.rdb }

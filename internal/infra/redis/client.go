package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vietddude/resilience/internal/core/retry"
)

// Client wraps Redis operations with the retry engine.
type Client struct {
	rdb    *redis.Client
	ex     *retry.Executor
	policy retry.Policy
}

// Config holds Redis connection configuration.
type Config struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
}

// Option configures a Client.
type Option func(*Client)

// WithExecutor sets the retry executor.
func WithExecutor(ex *retry.Executor) Option {
	return func(c *Client) { c.ex = ex }
}

// WithPolicy sets the retry policy. The default is retry.NetworkPolicy.
func WithPolicy(p retry.Policy) Option {
	return func(c *Client) { c.policy = p }
}

// NewClient creates a new Redis client and checks the connection.
func NewClient(ctx context.Context, cfg Config, opts ...Option) (*Client, error) {
	ropts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	if cfg.Password != "" {
		ropts.Password = cfg.Password
	}
	// Retries happen in the retry engine, not inside go-redis.
	ropts.MaxRetries = -1

	c := Wrap(redis.NewClient(ropts), opts...)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := c.Ping(ctx); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return c, nil
}

// Wrap builds a Client around an existing go-redis client.
func Wrap(rdb *redis.Client, opts ...Option) *Client {
	c := &Client{
		rdb:    rdb,
		ex:     retry.NewExecutor(),
		policy: retry.NetworkPolicy,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Close closes the Redis connection.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Ping checks the connection once, without retries.
func (c *Client) Ping(ctx context.Context) error {
	return TranslateError(c.rdb.Ping(ctx).Err())
}

// Get returns the value stored at key. A missing key is a NOT_FOUND failure
// and is not retried.
func (c *Client) Get(ctx context.Context, key string) (string, error) {
	return retry.Do(ctx, c.ex, c.named("get"), func(ctx context.Context) (string, error) {
		v, err := c.rdb.Get(ctx, key).Result()
		return v, TranslateError(err)
	})
}

// Set stores value at key with the given ttl (0 means no expiry).
func (c *Client) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return c.ex.Run(ctx, c.named("set"), func(ctx context.Context) error {
		return TranslateError(c.rdb.Set(ctx, key, value, ttl).Err())
	})
}

// SetNX stores value at key only if it does not exist yet.
func (c *Client) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	return retry.Do(ctx, c.ex, c.named("setnx"), func(ctx context.Context) (bool, error) {
		ok, err := c.rdb.SetNX(ctx, key, value, ttl).Result()
		return ok, TranslateError(err)
	})
}

// Del removes keys.
func (c *Client) Del(ctx context.Context, keys ...string) error {
	return c.ex.Run(ctx, c.named("del"), func(ctx context.Context) error {
		return TranslateError(c.rdb.Del(ctx, keys...).Err())
	})
}

func (c *Client) named(op string) retry.Policy {
	p := c.policy
	p.Name = "redis_" + op
	return p
}

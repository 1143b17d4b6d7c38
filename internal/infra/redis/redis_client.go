package redis

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"

	"telegram-channel-paywall/internal/config"
)

// RedisClient is the key/value subset the repositories and limiters need.
// Keys are passed unprefixed; the implementation owns the namespace.
type RedisClient interface {
	Ping(ctx context.Context) error
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) (bool, error)
	Get(ctx context.Context, key string) (string, error)
	Incr(ctx context.Context, key string) (int64, error)
	Expire(ctx context.Context, key string, expiration time.Duration) error
	Del(ctx context.Context, keys ...string) error
	Close() error
}

var _ RedisClient = (*Client)(nil)

// Client wraps go-redis and prefixes every key with the configured namespace.
type Client struct {
	cli    *redis.Client
	prefix string
}

// NewClient accepts either a host:port address or a redis:// URL and pings
// the server before returning.
func NewClient(ctx context.Context, cfg *config.RedisConfig) (*Client, error) {
	opts, err := clientOptions(cfg)
	if err != nil {
		return nil, err
	}
	c := redis.NewClient(opts)
	if err := c.Ping(ctx).Err(); err != nil {
		_ = c.Close()
		return nil, err
	}
	return &Client{cli: c, prefix: cfg.Prefix}, nil
}

func clientOptions(cfg *config.RedisConfig) (*redis.Options, error) {
	if !strings.HasPrefix(cfg.URL, "redis://") && !strings.HasPrefix(cfg.URL, "rediss://") {
		return &redis.Options{Addr: cfg.URL, Password: cfg.Password, DB: cfg.DB}, nil
	}
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, err
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}
	return opts, nil
}

// Key returns the namespaced form of k.
func (c *Client) Key(k string) string { return c.prefix + k }

func (c *Client) keys(ks []string) []string {
	out := make([]string, len(ks))
	for i, k := range ks {
		out[i] = c.Key(k)
	}
	return out
}

func (c *Client) Ping(ctx context.Context) error { return c.cli.Ping(ctx).Err() }

func (c *Client) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	return c.cli.Set(ctx, c.Key(key), value, expiration).Err()
}

func (c *Client) SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) (bool, error) {
	return c.cli.SetNX(ctx, c.Key(key), value, expiration).Result()
}

func (c *Client) Get(ctx context.Context, key string) (string, error) {
	return c.cli.Get(ctx, c.Key(key)).Result()
}

func (c *Client) Incr(ctx context.Context, key string) (int64, error) {
	return c.cli.Incr(ctx, c.Key(key)).Result()
}

func (c *Client) Expire(ctx context.Context, key string, expiration time.Duration) error {
	return c.cli.Expire(ctx, c.Key(key), expiration).Err()
}

func (c *Client) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return c.cli.Del(ctx, c.keys(keys)...).Err()
}

func (c *Client) Close() error { return c.cli.Close() }

// IsNil reports a missing key.
func IsNil(err error) bool { return errors.Is(err, redis.Nil) }

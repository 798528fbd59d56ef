package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tobennaogbu/kobocart-backend/pkg/config"
	"github.com/tobennaogbu/kobocart-backend/pkg/logger"
)

// Every key this service writes lives under the kc: namespace so a shared
// Redis can be swept per service.
const (
	keyNamespace      = "kc"
	idempotencyPrefix = "idempotency"
	rateLimitPrefix   = "rate_limit"
	counterPrefix     = "counter"
	dedupPrefix       = "dedup"
)

var errNotInitialized = errors.New("redis client not initialized")

type cmdable interface {
	Ping(context.Context) *redis.StatusCmd
	Set(context.Context, string, any, time.Duration) *redis.StatusCmd
	Get(context.Context, string) *redis.StringCmd
	SetNX(context.Context, string, any, time.Duration) *redis.BoolCmd
	Incr(context.Context, string) *redis.IntCmd
	Expire(context.Context, string, time.Duration) *redis.BoolCmd
	Del(context.Context, ...string) *redis.IntCmd
}

// Client wraps the redis commands the platform actually uses: idempotency
// keys, rate-limit counters, and consumer-side dedup marks.
type Client struct {
	cmd cmdable
	raw *redis.Client
}

// Pinger is the health-check surface handed to readiness probes.
type Pinger interface {
	Ping(context.Context) error
}

// IdempotencyStore is what the idempotency helpers need from Redis.
type IdempotencyStore interface {
	Get(context.Context, string) (string, error)
	SetNX(context.Context, string, any, time.Duration) (bool, error)
	IdempotencyKey(scope, id string) string
	Del(context.Context, ...string) error
}

// New connects to Redis and verifies the connection with a ping.
func New(ctx context.Context, cfg config.RedisConfig, logg *logger.Logger) (*Client, error) {
	opts, err := clientOptions(cfg)
	if err != nil {
		return nil, err
	}
	raw := redis.NewClient(opts)
	if pingErr := raw.Ping(ctx).Err(); pingErr != nil {
		return nil, fmt.Errorf("ping redis: %w", pingErr)
	}
	if logg != nil {
		logg.Info(ctx, "redis connection established")
	}
	return &Client{cmd: raw, raw: raw}, nil
}

// clientOptions prefers a URL when configured; discrete config fields fill
// whatever the URL left unset.
func clientOptions(cfg config.RedisConfig) (*redis.Options, error) {
	var opts *redis.Options
	switch {
	case cfg.URL != "":
		parsed, err := redis.ParseURL(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("parsing redis url: %w", err)
		}
		opts = parsed
	case cfg.Address != "":
		opts = &redis.Options{Addr: cfg.Address, Password: cfg.Password}
	default:
		return nil, errors.New("redis url or address is required")
	}

	intDefault := func(dst *int, fallback int) {
		if *dst == 0 {
			*dst = fallback
		}
	}
	durDefault := func(dst *time.Duration, fallback time.Duration) {
		if *dst == 0 {
			*dst = fallback
		}
	}
	intDefault(&opts.DB, cfg.DB)
	intDefault(&opts.PoolSize, cfg.PoolSize)
	intDefault(&opts.MinIdleConns, cfg.MinIdleConns)
	durDefault(&opts.DialTimeout, cfg.DialTimeout)
	durDefault(&opts.ReadTimeout, cfg.ReadTimeout)
	durDefault(&opts.WriteTimeout, cfg.WriteTimeout)
	return opts, nil
}

func (c *Client) commands() (cmdable, error) {
	if c == nil || c.cmd == nil {
		return nil, errNotInitialized
	}
	return c.cmd, nil
}

// Set stores a value with an optional TTL.
func (c *Client) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	cmd, err := c.commands()
	if err != nil {
		return err
	}
	return cmd.Set(ctx, key, value, ttl).Err()
}

// Get returns the string stored at key.
func (c *Client) Get(ctx context.Context, key string) (string, error) {
	cmd, err := c.commands()
	if err != nil {
		return "", err
	}
	return cmd.Get(ctx, key).Result()
}

// SetNX sets a value only when the key is absent.
func (c *Client) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	cmd, err := c.commands()
	if err != nil {
		return false, err
	}
	return cmd.SetNX(ctx, key, value, ttl).Result()
}

// Incr bumps the counter stored at key.
func (c *Client) Incr(ctx context.Context, key string) (int64, error) {
	cmd, err := c.commands()
	if err != nil {
		return 0, err
	}
	return cmd.Incr(ctx, key).Result()
}

// IncrWithTTL bumps the counter and, on the increment that created the key,
// stamps the TTL so the window expires.
func (c *Client) IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	cmd, err := c.commands()
	if err != nil {
		return 0, err
	}
	count, err := cmd.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	if ttl > 0 && count == 1 {
		if _, err := cmd.Expire(ctx, key, ttl).Result(); err != nil {
			return count, err
		}
	}
	return count, nil
}

// FixedWindowAllow counts a hit against a fixed rate-limit window and reports
// whether the caller is still under limit.
func (c *Client) FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error) {
	count, err := c.IncrWithTTL(ctx, c.RateLimitKey(scope), window)
	if err != nil {
		return false, 0, err
	}
	return count <= limit, count, nil
}

// IdempotencyKey builds the namespaced key for idempotency storage.
func (c *Client) IdempotencyKey(scope, id string) string {
	return namespacedKey(idempotencyPrefix, scope, id)
}

// RateLimitKey builds the namespaced key for rate limit counters.
func (c *Client) RateLimitKey(scope string) string {
	return namespacedKey(rateLimitPrefix, scope)
}

// CounterKey builds the namespaced key for counters.
func (c *Client) CounterKey(name string) string {
	return namespacedKey(counterPrefix, name)
}

// DedupKey builds the namespaced key for consumer-side event deduplication.
func (c *Client) DedupKey(subscription, eventID string) string {
	return namespacedKey(dedupPrefix, subscription, eventID)
}

// MarkProcessed claims an event for a subscription. It returns false when a
// previous delivery already claimed it inside the TTL window.
func (c *Client) MarkProcessed(ctx context.Context, subscription, eventID string, ttl time.Duration) (bool, error) {
	return c.SetNX(ctx, c.DedupKey(subscription, eventID), time.Now().UTC().Format(time.RFC3339), ttl)
}

// Del removes the given keys.
func (c *Client) Del(ctx context.Context, keys ...string) error {
	cmd, err := c.commands()
	if err != nil {
		return err
	}
	return cmd.Del(ctx, keys...).Err()
}

// Ping verifies the connection.
func (c *Client) Ping(ctx context.Context) error {
	cmd, err := c.commands()
	if err != nil {
		return err
	}
	return cmd.Ping(ctx).Err()
}

// Close shuts down the underlying connection pool.
func (c *Client) Close() error {
	if c == nil || c.raw == nil {
		return nil
	}
	return c.raw.Close()
}

func namespacedKey(parts ...string) string {
	key := []string{keyNamespace}
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			key = append(key, trimmed)
		}
	}
	return strings.Join(key, ":")
}

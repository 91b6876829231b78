// Package cache is a read-through JSON cache over Redis. A circuit breaker
// guards the Redis round trips; when Redis is down or the breaker is open,
// reads degrade to the loader and the API stays up.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"

	"github.com/transferlens/transferlens/internal/metrics"
)

// Loader produces the value on a cache miss.
type Loader func(ctx context.Context) (any, error)

// Cache is the read-through layer. The zero-value-disabled form (nil client)
// calls loaders directly.
type Cache struct {
	client  *redis.Client
	breaker *gobreaker.CircuitBreaker
	ttl     time.Duration
}

// Options configures the cache connection.
type Options struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// New connects to Redis. An empty Addr returns a disabled cache.
func New(opts Options) *Cache {
	if opts.Addr == "" {
		return &Cache{}
	}
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = 60 * time.Second
	}
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "redis",
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("Cache breaker state change")
		},
	})
	return &Cache{
		client: redis.NewClient(&redis.Options{
			Addr:     opts.Addr,
			Password: opts.Password,
			DB:       opts.DB,
		}),
		breaker: breaker,
		ttl:     ttl,
	}
}

// Enabled reports whether a Redis client is wired.
func (c *Cache) Enabled() bool { return c != nil && c.client != nil }

// GetJSON fills dst from cache when possible, otherwise runs the loader and
// writes the result back with the given TTL (ttl <= 0 means the configured
// default). Loader errors are returned as-is; cache errors only degrade to
// a direct load.
func (c *Cache) GetJSON(ctx context.Context, key string, ttl time.Duration, dst any, load Loader) error {
	if !c.Enabled() {
		metrics.CacheHits.WithLabelValues("bypass").Inc()
		return c.loadInto(ctx, dst, load)
	}

	raw, err := c.breaker.Execute(func() (any, error) {
		return c.client.Get(ctx, key).Bytes()
	})
	switch {
	case err == nil:
		metrics.CacheHits.WithLabelValues("hit").Inc()
		return json.Unmarshal(raw.([]byte), dst)
	case errors.Is(err, redis.Nil):
		metrics.CacheHits.WithLabelValues("miss").Inc()
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		metrics.CacheHits.WithLabelValues("bypass").Inc()
	default:
		metrics.CacheHits.WithLabelValues("error").Inc()
		log.Warn().Err(err).Str("key", key).Msg("Cache read failed, loading directly")
	}

	if err := c.loadInto(ctx, dst, load); err != nil {
		return err
	}
	c.set(ctx, key, dst, ttl)
	return nil
}

// Invalidate removes keys matching the given patterns. Best effort.
func (c *Cache) Invalidate(ctx context.Context, patterns ...string) {
	if !c.Enabled() {
		return
	}
	for _, pattern := range patterns {
		_, err := c.breaker.Execute(func() (any, error) {
			iter := c.client.Scan(ctx, 0, pattern, 100).Iterator()
			for iter.Next(ctx) {
				if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
					return nil, err
				}
			}
			return nil, iter.Err()
		})
		if err != nil && !errors.Is(err, gobreaker.ErrOpenState) {
			log.Warn().Err(err).Str("pattern", pattern).Msg("Cache invalidation failed")
		}
	}
}

// Close releases the Redis connection.
func (c *Cache) Close() error {
	if !c.Enabled() {
		return nil
	}
	return c.client.Close()
}

func (c *Cache) loadInto(ctx context.Context, dst any, load Loader) error {
	value, err := load(ctx)
	if err != nil {
		return err
	}
	// Round-trip through JSON so dst gets the same shape a cache hit would.
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache marshal: %w", err)
	}
	return json.Unmarshal(raw, dst)
}

func (c *Cache) set(ctx context.Context, key string, value any, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.ttl
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return
	}
	if _, err := c.breaker.Execute(func() (any, error) {
		return nil, c.client.Set(ctx, key, raw, ttl).Err()
	}); err != nil && !errors.Is(err, gobreaker.ErrOpenState) {
		log.Warn().Err(err).Str("key", key).Msg("Cache write failed")
	}
}

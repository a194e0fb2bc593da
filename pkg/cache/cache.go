// Package cache stores serialized dashboard results. Entries are versioned by
// a generation counter so a single INCR invalidates every stored result.
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

	"github.com/jwalitptl/therapy-scheduler/pkg/metrics"
)

// Generation identifies the cache contents between two invalidations.
type Generation int64

// Cache is the read-through store used by the dashboard.
type Cache interface {
	// Get decodes the entry under key into dest and reports whether it existed.
	// The returned generation is the one the lookup ran against.
	Get(ctx context.Context, key string, dest interface{}) (Generation, bool, error)
	// Set stores value under key for generation gen. A value computed after a
	// miss at gen is never visible once gen has been invalidated.
	Set(ctx context.Context, gen Generation, key string, value interface{}) error
	// Invalidate drops every entry written so far.
	Invalidate(ctx context.Context) error
}

// Key builds a deterministic cache key from a name and its parameters.
func Key(name string, params interface{}) string {
	raw, err := json.Marshal(params)
	if err != nil {
		return fmt.Sprintf("%s:%v", name, params)
	}
	return name + ":" + string(raw)
}

type Config struct {
	Addr     string
	Password string
	DB       int
	PoolSize int
	Prefix   string
	TTL      time.Duration
}

type RedisCache struct {
	client  *redis.Client
	cb      *gobreaker.CircuitBreaker
	prefix  string
	ttl     time.Duration
	metrics *metrics.Metrics
}

// NewRedisClient connects and pings redis.
func NewRedisClient(ctx context.Context, cfg Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

// NewRedisCache wraps client in a circuit breaker. While the breaker is open
// every call fails fast with gobreaker.ErrOpenState.
func NewRedisCache(client *redis.Client, cfg Config, m *metrics.Metrics) *RedisCache {
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "dashboard"
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = time.Minute
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "redis-dashboard-cache",
		MaxRequests: 1,
		Interval:    10 * time.Second,
		Timeout:     5 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Cache_CircuitBreaker_StateChange")
		},
	})

	return &RedisCache{
		client:  client,
		cb:      cb,
		prefix:  prefix,
		ttl:     ttl,
		metrics: m,
	}
}

func (c *RedisCache) genKey() string {
	return c.prefix + ":gen"
}

// generation reads the current generation; a missing counter is generation 0.
func (c *RedisCache) generation(ctx context.Context) (Generation, error) {
	gen, err := c.client.Get(ctx, c.genKey()).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return Generation(gen), err
}

func (c *RedisCache) entryKey(gen Generation, key string) string {
	return fmt.Sprintf("%s:%d:%s", c.prefix, gen, key)
}

type lookup struct {
	gen  Generation
	data []byte
}

func (c *RedisCache) Get(ctx context.Context, key string, dest interface{}) (Generation, bool, error) {
	start := time.Now()
	raw, err := c.cb.Execute(func() (interface{}, error) {
		gen, err := c.generation(ctx)
		if err != nil {
			return nil, err
		}
		data, err := c.client.Get(ctx, c.entryKey(gen, key)).Bytes()
		if errors.Is(err, redis.Nil) {
			return lookup{gen: gen}, nil
		}
		return lookup{gen: gen, data: data}, err
	})
	c.metrics.ObserveRedis("get", start, err)
	if err != nil {
		c.metrics.ObserveCache("error")
		return 0, false, fmt.Errorf("failed to read cache: %w", err)
	}

	res := raw.(lookup)
	if res.data == nil {
		c.metrics.ObserveCache("miss")
		return res.gen, false, nil
	}
	if err := json.Unmarshal(res.data, dest); err != nil {
		c.metrics.ObserveCache("error")
		return res.gen, false, fmt.Errorf("failed to decode cache entry: %w", err)
	}
	c.metrics.ObserveCache("hit")
	return res.gen, true, nil
}

func (c *RedisCache) Set(ctx context.Context, gen Generation, key string, value interface{}) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode cache entry: %w", err)
	}

	start := time.Now()
	_, err = c.cb.Execute(func() (interface{}, error) {
		return nil, c.client.Set(ctx, c.entryKey(gen, key), payload, c.ttl).Err()
	})
	c.metrics.ObserveRedis("set", start, err)
	if err != nil {
		return fmt.Errorf("failed to write cache: %w", err)
	}
	return nil
}

// Invalidate bumps the generation; old entries expire on their own TTL.
func (c *RedisCache) Invalidate(ctx context.Context) error {
	start := time.Now()
	_, err := c.cb.Execute(func() (interface{}, error) {
		return nil, c.client.Incr(ctx, c.genKey()).Err()
	})
	c.metrics.ObserveRedis("incr", start, err)
	if err != nil {
		return fmt.Errorf("failed to invalidate cache: %w", err)
	}
	return nil
}

// Noop never stores anything. It is used when redis is disabled.
type Noop struct{}

func (Noop) Get(context.Context, string, interface{}) (Generation, bool, error) {
	return 0, false, nil
}
func (Noop) Set(context.Context, Generation, string, interface{}) error { return nil }
func (Noop) Invalidate(context.Context) error                           { return nil }

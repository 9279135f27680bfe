// Package redis caches the promotional catalog per session in Redis,
// decorating any CatalogSource. Concurrent fetches for the same key are
// coalesced so at most one backend request is in flight, and the cache is
// invalidated explicitly on a program-refresh signal.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"promokit/core"
	"promokit/engine"
)

// Config holds Redis connection configuration.
type Config struct {
	Addr         string        `json:"addr"`
	Password     string        `json:"password,omitempty"`
	DB           int           `json:"db"`
	PoolSize     int           `json:"pool_size"`
	MinIdleConns int           `json:"min_idle_conns"`
	DialTimeout  time.Duration `json:"dial_timeout"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
	TTL          time.Duration `json:"ttl"`
}

// DefaultConfig returns sensible defaults for Redis configuration.
func DefaultConfig() Config {
	return Config{
		Addr:         "localhost:6379",
		DB:           0,
		PoolSize:     10,
		MinIdleConns: 2,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		TTL:          5 * time.Minute,
	}
}

// Cache is a caching CatalogSource decorator.
// Data structure:
// - session:{session}:catalog:{products-key} -> JSON []core.Program
type Cache struct {
	next    engine.CatalogSource
	client  *redis.Client
	session string
	ttl     time.Duration

	mu       sync.Mutex
	inflight map[string]*fetchCall
}

type fetchCall struct {
	done     chan struct{}
	programs []*core.Program
	err      error
}

// New connects to Redis and wraps the given source.
func New(cfg Config, session string, next engine.CatalogSource) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return NewWithClient(client, cfg.TTL, session, next), nil
}

// NewWithClient wraps an existing Redis client (useful for testing).
func NewWithClient(client *redis.Client, ttl time.Duration, session string, next engine.CatalogSource) *Cache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Cache{
		next:     next,
		client:   client,
		session:  session,
		ttl:      ttl,
		inflight: make(map[string]*fetchCall),
	}
}

// Close closes the Redis connection.
func (c *Cache) Close() error { return c.client.Close() }

func (c *Cache) catalogKey(productIDs []core.ProductID) string {
	ids := make([]string, len(productIDs))
	for i, p := range productIDs {
		ids[i] = string(p)
	}
	sort.Strings(ids)
	return fmt.Sprintf("session:%s:catalog:%s", c.session, strings.Join(ids, ","))
}

// FetchPrograms serves the catalog from cache when possible. A miss goes
// to the wrapped source exactly once even under concurrent callers.
func (c *Cache) FetchPrograms(ctx context.Context, productIDs []core.ProductID) ([]*core.Program, error) {
	key := c.catalogKey(productIDs)

	if data, err := c.client.Get(ctx, key).Bytes(); err == nil {
		var programs []*core.Program
		if err := json.Unmarshal(data, &programs); err == nil {
			return programs, nil
		}
		// Corrupt entry: drop it and refetch.
		c.client.Del(ctx, key)
	}

	c.mu.Lock()
	if call, ok := c.inflight[key]; ok {
		c.mu.Unlock()
		<-call.done
		return call.programs, call.err
	}
	call := &fetchCall{done: make(chan struct{})}
	c.inflight[key] = call
	c.mu.Unlock()

	call.programs, call.err = c.next.FetchPrograms(ctx, productIDs)
	if call.err == nil {
		if data, err := json.Marshal(call.programs); err == nil {
			c.client.Set(ctx, key, data, c.ttl)
		}
	}

	c.mu.Lock()
	delete(c.inflight, key)
	c.mu.Unlock()
	close(call.done)
	return call.programs, call.err
}

// Invalidate drops every cached catalog entry for the session. Call it on
// the program-refresh signal.
func (c *Cache) Invalidate(ctx context.Context) error {
	pattern := fmt.Sprintf("session:%s:catalog:*", c.session)
	keys, err := c.client.Keys(ctx, pattern).Result()
	if err != nil {
		return err
	}
	if len(keys) > 0 {
		return c.client.Del(ctx, keys...).Err()
	}
	return nil
}

func (c *Cache) RedeemCode(ctx context.Context, req engine.RedeemRequest) (engine.RedeemResult, error) {
	return c.next.RedeemCode(ctx, req)
}

func (c *Cache) UsageLimit(ctx context.Context, req engine.UsageLimitRequest) (engine.UsageLimitResult, error) {
	return c.next.UsageLimit(ctx, req)
}

func (c *Cache) MarkCouponUsed(ctx context.Context, code string) error {
	return c.next.MarkCouponUsed(ctx, code)
}

func (c *Cache) ReleaseCoupon(ctx context.Context, id core.CouponID) error {
	return c.next.ReleaseCoupon(ctx, id)
}

var _ engine.CatalogSource = (*Cache)(nil)

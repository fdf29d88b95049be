// Package redisstore wraps the Redis commands used by the route window store.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	maintnotifications "github.com/redis/go-redis/v9/maintnotifications"

	"github.com/mohammed-shakir/route-cache/internal/core/observability"
)

// Option adjusts the client options. Non-positive values keep the default.
type Option func(*redis.Options)

func WithPoolSize(n int) Option {
	return func(o *redis.Options) {
		if n > 0 {
			o.PoolSize = n
		}
	}
}

func WithMinIdleConns(n int) Option {
	return func(o *redis.Options) {
		if n > 0 {
			o.MinIdleConns = n
		}
	}
}

func WithDialTimeout(d time.Duration) Option {
	return func(o *redis.Options) {
		if d > 0 {
			o.DialTimeout = d
		}
	}
}

func WithReadTimeout(d time.Duration) Option {
	return func(o *redis.Options) {
		if d > 0 {
			o.ReadTimeout = d
		}
	}
}

func WithWriteTimeout(d time.Duration) Option {
	return func(o *redis.Options) {
		if d > 0 {
			o.WriteTimeout = d
		}
	}
}

type Client struct {
	rdb *redis.Client
}

func New(ctx context.Context, addr string, opts ...Option) (*Client, error) {
	if addr == "" {
		return nil, errors.New("redis address is required")
	}

	ro := &redis.Options{
		Addr:         addr,
		PoolSize:     32,
		MinIdleConns: 2,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  500 * time.Millisecond,
		WriteTimeout: 500 * time.Millisecond,
		MaintNotificationsConfig: &maintnotifications.Config{
			Mode: maintnotifications.ModeDisabled,
		},
	}
	for _, f := range opts {
		f(ro)
	}

	rdb := redis.NewClient(ro)

	start := time.Now()
	err := rdb.Ping(ctx).Err()
	observability.ObserveCacheOp("ping", err, time.Since(start).Seconds())
	if err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Client{rdb: rdb}, nil
}

// Ping checks the connection; used by readiness.
func (c *Client) Ping(ctx context.Context) error {
	start := time.Now()
	err := c.rdb.Ping(ctx).Err()
	observability.ObserveCacheOp("ping", err, time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

// MGet returns a map of found keys to their values
func (c *Client) MGet(ctx context.Context, keys []string) (map[string][]byte, error) {
	start := time.Now()
	if len(keys) == 0 {
		observability.ObserveCacheOp("mget", nil, time.Since(start).Seconds())
		return map[string][]byte{}, nil
	}

	vals, err := c.rdb.MGet(ctx, keys...).Result()
	observability.ObserveCacheOp("mget", err, time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("redis MGET %d keys: %w", len(keys), err)
	}

	out := make(map[string][]byte, len(vals))
	for i, v := range vals {
		switch t := v.(type) {
		case nil:
			continue // missing key
		case string:
			out[keys[i]] = []byte(t)
		case []byte:
			out[keys[i]] = t
		default:
			out[keys[i]] = fmt.Append(nil, t)
		}
	}
	return out, nil
}

// LRange returns list members between start and stop inclusive.
func (c *Client) LRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	t0 := time.Now()
	vals, err := c.rdb.LRange(ctx, key, start, stop).Result()
	observability.ObserveCacheOp("lrange", err, time.Since(t0).Seconds())
	if err != nil {
		return nil, fmt.Errorf("redis LRANGE %q: %w", key, err)
	}
	return vals, nil
}

// ListPush describes one PushFront call. Values are written with TTL in the
// same transaction, so a member and its payload land together. When
// EvictPrefix is set, EvictPrefix+member is deleted for every member trimmed
// off the list.
type ListPush struct {
	Key         string
	Member      string
	Limit       int
	TTL         time.Duration
	Values      map[string][]byte
	EvictPrefix string
}

const maxPushAttempts = 5

// PushFront moves Member to the head of the list (removing any earlier copy),
// trims the list to Limit entries and refreshes its TTL. The list key is
// watched and the transaction retried if a concurrent push changes it.
func (c *Client) PushFront(ctx context.Context, p ListPush) error {
	if p.Key == "" || p.Member == "" {
		return errors.New("redis push: key and member are required")
	}
	if p.Limit <= 0 {
		p.Limit = 1
	}

	start := time.Now()
	var err error
	for range maxPushAttempts {
		err = c.rdb.Watch(ctx, func(tx *redis.Tx) error { return pushTx(ctx, tx, p) }, p.Key)
		if !errors.Is(err, redis.TxFailedErr) {
			break
		}
	}
	observability.ObserveCacheOp("push", err, time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("redis push %q: %w", p.Key, err)
	}
	return nil
}

func pushTx(ctx context.Context, tx *redis.Tx, p ListPush) error {
	var evict []string
	if p.EvictPrefix != "" {
		cur, err := tx.LRange(ctx, p.Key, 0, -1).Result()
		if err != nil {
			return err
		}
		kept := 1 // Member itself
		for _, m := range cur {
			if m == p.Member {
				continue
			}
			if kept < p.Limit {
				kept++
				continue
			}
			evict = append(evict, p.EvictPrefix+m)
		}
	}

	_, err := tx.TxPipelined(ctx, func(pl redis.Pipeliner) error {
		for k, v := range p.Values {
			pl.Set(ctx, k, v, p.TTL)
		}
		pl.LRem(ctx, p.Key, 0, p.Member)
		pl.LPush(ctx, p.Key, p.Member)
		pl.LTrim(ctx, p.Key, 0, int64(p.Limit-1))
		if p.TTL > 0 {
			pl.Expire(ctx, p.Key, p.TTL)
		}
		if len(evict) > 0 {
			pl.Del(ctx, evict...)
		}
		return nil
	})
	return err
}

func (c *Client) Del(ctx context.Context, keys ...string) error {
	start := time.Now()
	err := c.rdb.Del(ctx, keys...).Err()
	observability.ObserveCacheOp("del", err, time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("redis DEL %d keys: %w", len(keys), err)
	}
	return nil
}

func (c *Client) Close() error {
	if err := c.rdb.Close(); err != nil {
		return fmt.Errorf("redis close: %w", err)
	}
	return nil
}

// Package redisstore wraps the redis hash operations behind the selection store.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	maintnotifications "github.com/redis/go-redis/v9/maintnotifications"

	"github.com/mohammed-shakir/mercator-pick/internal/core/observability"
)

type Option func(*redis.Options)

func WithPoolSize(n int) Option {
	return func(o *redis.Options) { o.PoolSize = n }
}

func WithDialTimeout(d time.Duration) Option {
	return func(o *redis.Options) { o.DialTimeout = d }
}

func WithReadTimeout(d time.Duration) Option {
	return func(o *redis.Options) { o.ReadTimeout = d }
}

func WithWriteTimeout(d time.Duration) Option {
	return func(o *redis.Options) { o.WriteTimeout = d }
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
		PoolSize:     16,
		MinIdleConns: 2,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  1 * time.Second,
		WriteTimeout: 1 * time.Second,
		MaintNotificationsConfig: &maintnotifications.Config{
			Mode: maintnotifications.ModeDisabled,
		},
	}
	for _, f := range opts {
		f(ro)
	}

	rdb := redis.NewClient(ro)

	if err := ping(ctx, rdb); err != nil {
		_ = rdb.Close()
		return nil, err
	}
	return &Client{rdb: rdb}, nil
}

func ping(ctx context.Context, rdb *redis.Client) error {
	start := time.Now()
	err := rdb.Ping(ctx).Err()
	observability.ObserveSelectionOp("ping", err, time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

func (c *Client) Ping(ctx context.Context) error { return ping(ctx, c.rdb) }

// ReplaceHash swaps the content of key for fields in one MULTI/EXEC and
// sets its ttl. Empty fields leave the key deleted.
func (c *Client) ReplaceHash(ctx context.Context, key string, fields map[string][]byte, ttl time.Duration) error {
	start := time.Now()
	_, err := c.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, key)
		if len(fields) == 0 {
			return nil
		}
		args := make([]any, 0, 2*len(fields))
		for f, v := range fields {
			args = append(args, f, v)
		}
		p.HSet(ctx, key, args...)
		if ttl > 0 {
			p.Expire(ctx, key, ttl)
		}
		return nil
	})
	observability.ObserveSelectionOp("replace", err, time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("redis replace hash %q (%d fields): %w", key, len(fields), err)
	}
	return nil
}

// AddFields merges fields into key and refreshes its ttl.
func (c *Client) AddFields(ctx context.Context, key string, fields map[string][]byte, ttl time.Duration) error {
	start := time.Now()
	if len(fields) == 0 {
		observability.ObserveSelectionOp("add", nil, time.Since(start).Seconds())
		return nil
	}
	_, err := c.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		args := make([]any, 0, 2*len(fields))
		for f, v := range fields {
			args = append(args, f, v)
		}
		p.HSet(ctx, key, args...)
		if ttl > 0 {
			p.Expire(ctx, key, ttl)
		}
		return nil
	})
	observability.ObserveSelectionOp("add", err, time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("redis HSET %q (%d fields): %w", key, len(fields), err)
	}
	return nil
}

// GetHash returns every field of key, empty when the key is missing.
func (c *Client) GetHash(ctx context.Context, key string) (map[string][]byte, error) {
	start := time.Now()
	vals, err := c.rdb.HGetAll(ctx, key).Result()
	observability.ObserveSelectionOp("get", err, time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("redis HGETALL %q: %w", key, err)
	}
	out := make(map[string][]byte, len(vals))
	for f, v := range vals {
		out[f] = []byte(v)
	}
	return out, nil
}

func (c *Client) Del(ctx context.Context, keys ...string) error {
	start := time.Now()
	err := c.rdb.Del(ctx, keys...).Err()
	observability.ObserveSelectionOp("del", err, time.Since(start).Seconds())
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

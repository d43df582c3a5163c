// Package redis implements a cache engine over a Redis server.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Engine stores cache values in Redis. Redis has no practical per-value
// limit for gazette-sized payloads, so MaxValueSize reports unlimited
// and chunking is never triggered.
type Engine struct {
	client *redis.Client
}

// New connects to Redis and verifies the connection.
func New(ctx context.Context, addr, password string, db int) (*Engine, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &Engine{client: client}, nil
}

// NewWithClient wraps an existing client, primarily for testing.
func NewWithClient(client *redis.Client) *Engine {
	return &Engine{client: client}
}

func (e *Engine) Get(ctx context.Context, key string) ([]byte, bool, error) {
	value, err := e.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get: %w", err)
	}
	return value, true, nil
}

func (e *Engine) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := e.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (e *Engine) MGet(ctx context.Context, keys []string) ([][]byte, error) {
	values, err := e.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis mget: %w", err)
	}
	out := make([][]byte, len(keys))
	for i, v := range values {
		if s, ok := v.(string); ok {
			out[i] = []byte(s)
		}
	}
	return out, nil
}

// MSet writes each item with its TTL in one pipeline; plain MSET cannot
// carry expirations.
func (e *Engine) MSet(ctx context.Context, items map[string][]byte, ttl time.Duration) error {
	pipe := e.client.Pipeline()
	for key, value := range items {
		pipe.Set(ctx, key, value, ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis mset: %w", err)
	}
	return nil
}

func (e *Engine) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := e.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

func (e *Engine) MaxValueSize() int { return 0 }

// Close releases the underlying client.
func (e *Engine) Close() error { return e.client.Close() }

// Package memory implements an in-process cache engine for tests and
// single-node development.
package memory

import (
	"context"
	"sync"
	"time"
)

type entry struct {
	value     []byte
	expiresAt time.Time
}

// Engine stores values in a map with lazy expiration.
type Engine struct {
	mu       sync.RWMutex
	data     map[string]entry
	maxValue int
	now      func() time.Time
}

// New creates an engine. maxValue caps per-value size in bytes; 0 means
// unlimited.
func New(maxValue int) *Engine {
	return &Engine{
		data:     make(map[string]entry),
		maxValue: maxValue,
		now:      time.Now,
	}
}

func (e *Engine) Get(_ context.Context, key string) ([]byte, bool, error) {
	e.mu.RLock()
	ent, ok := e.data[key]
	e.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	if !ent.expiresAt.IsZero() && e.now().After(ent.expiresAt) {
		e.mu.Lock()
		delete(e.data, key)
		e.mu.Unlock()
		return nil, false, nil
	}
	return ent.value, true, nil
}

func (e *Engine) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	var expires time.Time
	if ttl > 0 {
		expires = e.now().Add(ttl)
	}
	e.mu.Lock()
	e.data[key] = entry{value: append([]byte(nil), value...), expiresAt: expires}
	e.mu.Unlock()
	return nil
}

func (e *Engine) MGet(ctx context.Context, keys []string) ([][]byte, error) {
	out := make([][]byte, len(keys))
	for i, key := range keys {
		value, ok, err := e.Get(ctx, key)
		if err != nil {
			return nil, err
		}
		if ok {
			out[i] = value
		}
	}
	return out, nil
}

func (e *Engine) MSet(ctx context.Context, items map[string][]byte, ttl time.Duration) error {
	for key, value := range items {
		if err := e.Set(ctx, key, value, ttl); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) Delete(_ context.Context, keys ...string) error {
	e.mu.Lock()
	for _, key := range keys {
		delete(e.data, key)
	}
	e.mu.Unlock()
	return nil
}

func (e *Engine) MaxValueSize() int { return e.maxValue }

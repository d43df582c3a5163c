// Package cache provides a small TTL cache facade over pluggable engines.
// Values larger than an engine's size limit are transparently split into
// chunks; expirations are jittered so entries written together do not
// expire together.
package cache

import (
	"context"
	"fmt"
	"math/rand"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Engine is the storage behind a Cache. Implementations must treat a
// missing key as (nil, false, nil), not an error.
type Engine interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	MGet(ctx context.Context, keys []string) ([][]byte, error)
	MSet(ctx context.Context, items map[string][]byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error

	// MaxValueSize returns the engine's per-value size limit in bytes,
	// or 0 when unlimited.
	MaxValueSize() int
}

const (
	keyPrefix       = "cache:"
	chunkManifest   = "chunks!"
	jitterWindow    = 3 * time.Second
	chunkKeyPattern = "%s:chunk:%d"
)

// Cache wraps an Engine with key prefixing, value chunking and TTL
// jitter. A nil Cache is valid and caches nothing.
type Cache struct {
	engine Engine
	logger *zap.Logger
	jitter func() time.Duration
}

// New builds a Cache over the engine. A nil engine yields a nil Cache.
func New(engine Engine, logger *zap.Logger) *Cache {
	if engine == nil {
		return nil
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache{
		engine: engine,
		logger: logger,
		jitter: func() time.Duration {
			return time.Duration(rand.Int63n(int64(2*jitterWindow))) - jitterWindow
		},
	}
}

// Get returns the cached value for key, reassembling chunked values.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if c == nil {
		return nil, false, nil
	}
	value, ok, err := c.engine.Get(ctx, keyPrefix+key)
	if err != nil {
		return nil, false, fmt.Errorf("cache get %s: %w", key, err)
	}
	if !ok {
		return nil, false, nil
	}
	if !strings.HasPrefix(string(value), chunkManifest) {
		return value, true, nil
	}

	count, err := strconv.Atoi(strings.TrimPrefix(string(value), chunkManifest))
	if err != nil || count < 1 {
		// Manifest corrupted; treat as a miss.
		c.logger.Warn("bad chunk manifest", zap.String("key", key))
		return nil, false, nil
	}
	keys := make([]string, count)
	for i := range keys {
		keys[i] = fmt.Sprintf(chunkKeyPattern, keyPrefix+key, i)
	}
	chunks, err := c.engine.MGet(ctx, keys)
	if err != nil {
		return nil, false, fmt.Errorf("cache get chunks %s: %w", key, err)
	}
	var joined []byte
	for _, chunk := range chunks {
		if chunk == nil {
			// A chunk expired before the manifest; the value is gone.
			return nil, false, nil
		}
		joined = append(joined, chunk...)
	}
	return joined, true, nil
}

// Set stores the value under key for ttl. Values over the engine limit
// are split into chunks plus a manifest.
func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if c == nil {
		return nil
	}
	ttl = c.jitterTTL(ttl)
	limit := c.engine.MaxValueSize()
	if limit <= 0 || len(value) <= limit {
		if err := c.engine.Set(ctx, keyPrefix+key, value, ttl); err != nil {
			return fmt.Errorf("cache set %s: %w", key, err)
		}
		return nil
	}

	items := map[string][]byte{}
	count := 0
	for start := 0; start < len(value); start += limit {
		end := start + limit
		if end > len(value) {
			end = len(value)
		}
		items[fmt.Sprintf(chunkKeyPattern, keyPrefix+key, count)] = value[start:end]
		count++
	}
	// Chunks first: a reader that sees the manifest must find them.
	if err := c.engine.MSet(ctx, items, ttl); err != nil {
		return fmt.Errorf("cache set chunks %s: %w", key, err)
	}
	manifest := []byte(chunkManifest + strconv.Itoa(count))
	if err := c.engine.Set(ctx, keyPrefix+key, manifest, ttl); err != nil {
		return fmt.Errorf("cache set manifest %s: %w", key, err)
	}
	return nil
}

// Delete drops a key and any chunks it may have.
func (c *Cache) Delete(ctx context.Context, key string) error {
	if c == nil {
		return nil
	}
	value, ok, err := c.engine.Get(ctx, keyPrefix+key)
	if err != nil {
		return fmt.Errorf("cache delete %s: %w", key, err)
	}
	keys := []string{keyPrefix + key}
	if ok && strings.HasPrefix(string(value), chunkManifest) {
		if count, err := strconv.Atoi(strings.TrimPrefix(string(value), chunkManifest)); err == nil {
			for i := 0; i < count; i++ {
				keys = append(keys, fmt.Sprintf(chunkKeyPattern, keyPrefix+key, i))
			}
		}
	}
	if err := c.engine.Delete(ctx, keys...); err != nil {
		return fmt.Errorf("cache delete %s: %w", key, err)
	}
	return nil
}

// jitterTTL spreads expirations by up to the jitter window in either
// direction. Short TTLs pass through untouched so they cannot jitter to
// zero or below.
func (c *Cache) jitterTTL(ttl time.Duration) time.Duration {
	if ttl <= jitterWindow {
		return ttl
	}
	return ttl + c.jitter()
}

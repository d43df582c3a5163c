package dispatcher

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/auctionlens/gazette-harvester/internal/cache"
)

// validMarker caches a successful date validation; invalid dates are not
// cached since the edition may publish later the same day.
const validMarker = "ok"

// CachedUpstream memoizes upstream answers. Page counts are stable once
// an edition is out, and a browse asks for each of them once per
// category, so even a short TTL spares the court site the repeated
// round-trips when browses are re-run.
type CachedUpstream struct {
	upstream Upstream
	cache    *cache.Cache
	ttl      time.Duration
	logger   *zap.Logger
}

// NewCachedUpstream wraps upstream with a cache. A nil cache disables
// memoization.
func NewCachedUpstream(upstream Upstream, c *cache.Cache, ttl time.Duration, logger *zap.Logger) *CachedUpstream {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedUpstream{upstream: upstream, cache: c, ttl: ttl, logger: logger}
}

// ValidateDate checks the edition date, remembering positive answers.
func (u *CachedUpstream) ValidateDate(ctx context.Context, date string) error {
	key := "valid-date:" + date
	if value, ok, err := u.cache.Get(ctx, key); err != nil {
		u.logger.Warn("cache read failed", zap.String("key", key), zap.Error(err))
	} else if ok && string(value) == validMarker {
		return nil
	}

	if err := u.upstream.ValidateDate(ctx, date); err != nil {
		return err
	}
	if err := u.cache.Set(ctx, key, []byte(validMarker), u.ttl); err != nil {
		u.logger.Warn("cache write failed", zap.String("key", key), zap.Error(err))
	}
	return nil
}

// PageCount returns the page count of one category's edition, cached.
func (u *CachedUpstream) PageCount(ctx context.Context, date, category string) (int, error) {
	key := fmt.Sprintf("page-count:%s:%s", date, category)
	if value, ok, err := u.cache.Get(ctx, key); err != nil {
		u.logger.Warn("cache read failed", zap.String("key", key), zap.Error(err))
	} else if ok {
		if count, err := strconv.Atoi(string(value)); err == nil {
			return count, nil
		}
	}

	count, err := u.upstream.PageCount(ctx, date, category)
	if err != nil {
		return 0, err
	}
	if err := u.cache.Set(ctx, key, []byte(strconv.Itoa(count)), u.ttl); err != nil {
		u.logger.Warn("cache write failed", zap.String("key", key), zap.Error(err))
	}
	return count, nil
}

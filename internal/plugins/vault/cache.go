package vault

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// viewKeyPrefix is the Redis key prefix for cached decrypted views.
const viewKeyPrefix = "vaultview:"

// Loader builds a user's decrypted view from storage on a cache miss.
type Loader func(ctx context.Context) ([]RecordView, error)

// ViewCache memoizes the decrypted view of a user's record set. The cache
// is keyed by user ID alone: the vault key is deterministic per password,
// and at most one password is valid per user at a time, so a live entry is
// correct for any holder of that user's session.
//
// Invalidate must run synchronously on every mutation, before the handler
// returns. A concurrent reader racing a mutation may observe the old view;
// the next access after the invalidate recomputes.
type ViewCache interface {
	GetOrLoad(ctx context.Context, userID string, loader Loader) ([]RecordView, error)
	Invalidate(ctx context.Context, userID string) error
	Warm(ctx context.Context, userID string, views []RecordView)
}

// redisViewCache implements ViewCache with a JSON blob per user in Redis.
type redisViewCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewViewCache creates a view cache with the given entry TTL.
func NewViewCache(rdb *redis.Client, ttl time.Duration) ViewCache {
	return &redisViewCache{rdb: rdb, ttl: ttl}
}

// GetOrLoad returns the live cached view, or runs the loader and caches the
// result. Redis being unreachable degrades to loading without caching --
// reads must keep working when only the cache is down.
func (c *redisViewCache) GetOrLoad(ctx context.Context, userID string, loader Loader) ([]RecordView, error) {
	cacheKey := viewKeyPrefix + userID

	data, err := c.rdb.Get(ctx, cacheKey).Bytes()
	if err == nil {
		var views []RecordView
		if jsonErr := json.Unmarshal(data, &views); jsonErr == nil {
			return views, nil
		}
		// Undecodable entry: treat as a miss and rebuild below.
		slog.Warn("discarding corrupt view cache entry", slog.String("user_id", userID))
	} else if err != redis.Nil {
		slog.Warn("view cache read failed, loading from storage",
			slog.String("user_id", userID),
			slog.Any("error", err),
		)
	}

	views, err := loader(ctx)
	if err != nil {
		return nil, err
	}

	c.Warm(ctx, userID, views)
	return views, nil
}

// Invalidate drops the user's cached view. Callers skip this when the
// underlying write failed: stale-but-consistent beats inconsistent.
func (c *redisViewCache) Invalidate(ctx context.Context, userID string) error {
	if err := c.rdb.Del(ctx, viewKeyPrefix+userID).Err(); err != nil {
		return fmt.Errorf("invalidating view cache: %w", err)
	}
	return nil
}

// Warm stores a freshly built view with the configured TTL. Failures are
// logged, not returned -- the caller already has the views in hand.
func (c *redisViewCache) Warm(ctx context.Context, userID string, views []RecordView) {
	data, err := json.Marshal(views)
	if err != nil {
		slog.Warn("marshaling view cache entry", slog.Any("error", err))
		return
	}
	if err := c.rdb.Set(ctx, viewKeyPrefix+userID, data, c.ttl).Err(); err != nil {
		slog.Warn("writing view cache entry",
			slog.String("user_id", userID),
			slog.Any("error", err),
		)
	}
}

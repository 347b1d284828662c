package redis

import (
	"context"
	"errors"
	"time"

	goredis "github.com/redis/go-redis/v9"

	telemetry "hydromet-cloud/internal/telemetry/domain"
)

const markerKeyPrefix = "hydromet:fetch-marker:"

// MarkerCache fronts a FetchMarkerStore with a Redis lookaside cache so the
// hot already-fetched check skips the database on repeat polls. The wrapped
// store stays authoritative; cache misses and Redis errors fall through.
type MarkerCache struct {
	client *goredis.Client
	inner  telemetry.FetchMarkerStore
	ttl    time.Duration
}

// NewMarkerCache wraps store with a cache on client.
func NewMarkerCache(client *goredis.Client, store telemetry.FetchMarkerStore, opts ...func(*MarkerCache)) (*MarkerCache, error) {
	if client == nil {
		return nil, errors.New("marker cache: nil client")
	}
	if store == nil {
		return nil, errors.New("marker cache: nil store")
	}
	cache := &MarkerCache{client: client, inner: store, ttl: 24 * time.Hour}
	for _, opt := range opts {
		opt(cache)
	}
	return cache, nil
}

// WithMarkerTTL overrides the cache entry lifetime.
func WithMarkerTTL(ttl time.Duration) func(*MarkerCache) {
	return func(cache *MarkerCache) {
		if ttl > 0 {
			cache.ttl = ttl
		}
	}
}

// Exists checks the cache first and falls back to the wrapped store,
// backfilling the cache on a hit.
func (c *MarkerCache) Exists(ctx context.Context, url string) (bool, error) {
	hit, err := c.client.Exists(ctx, markerKeyPrefix+url).Result()
	if err == nil && hit > 0 {
		return true, nil
	}

	exists, err := c.inner.Exists(ctx, url)
	if err != nil {
		return false, err
	}
	if exists {
		_ = c.client.Set(ctx, markerKeyPrefix+url, 1, c.ttl).Err()
	}
	return exists, nil
}

// Record writes the marker through to the wrapped store, then caches it.
// A cache write failure is not fatal: the store is the source of truth.
func (c *MarkerCache) Record(ctx context.Context, url string, fetchedAt time.Time) error {
	if err := c.inner.Record(ctx, url, fetchedAt); err != nil {
		return err
	}
	_ = c.client.Set(ctx, markerKeyPrefix+url, 1, c.ttl).Err()
	return nil
}

var _ telemetry.FetchMarkerStore = (*MarkerCache)(nil)

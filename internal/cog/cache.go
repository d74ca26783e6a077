package cog

import (
	"context"
	"time"

	"github.com/karlseguin/ccache/v3"
	"golang.org/x/sync/singleflight"
)

// Cache defaults.
const (
	DefaultCacheSize    = 1024
	DefaultItemsToPrune = 64
	DefaultCacheTTL     = 10 * time.Minute
	DefaultLoadTimeout  = 2 * time.Minute
)

// TileCache holds decoded blocks and parsed headers shared by every reader in
// the process. Concurrent misses for the same key are collapsed into a single
// fetch. Cached values are never modified after they are stored.
type TileCache struct {
	cache    *ccache.Cache[any]
	inflight singleflight.Group
	ttl      time.Duration
	timeout  time.Duration
}

// NewTileCache creates a cache holding at most maxItems entries.
func NewTileCache(maxItems int64, ttl time.Duration) *TileCache {
	if maxItems <= 0 {
		maxItems = DefaultCacheSize
	}
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	prune := uint32(DefaultItemsToPrune)
	if int64(prune) > maxItems {
		prune = uint32(maxItems)
	}
	return &TileCache{
		cache:   ccache.New(ccache.Configure[any]().MaxSize(maxItems).ItemsToPrune(prune)),
		ttl:     ttl,
		timeout: DefaultLoadTimeout,
	}
}

// fetch returns the cached value for key, calling load once on a miss.
// The shared load runs detached from any one caller's cancellation, bounded
// by the cache's load timeout; each caller stops waiting when its own ctx
// is done.
func (c *TileCache) fetch(ctx context.Context, key string, load func(context.Context) (any, error)) (any, error) {
	if item := c.cache.Get(key); item != nil && !item.Expired() {
		return item.Value(), nil
	}

	ch := c.inflight.DoChan(key, func() (any, error) {
		if item := c.cache.Get(key); item != nil && !item.Expired() {
			return item.Value(), nil
		}
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
		defer cancel()
		v, err := load(loadCtx)
		if err != nil {
			return nil, err
		}
		c.cache.Set(key, v, c.ttl)
		return v, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		return res.Val, res.Err
	}
}

// Len returns the number of cached entries.
func (c *TileCache) Len() int {
	return c.cache.ItemCount()
}

// Stop releases the cache's background worker.
func (c *TileCache) Stop() {
	c.cache.Stop()
}

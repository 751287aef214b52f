package sites

import (
	"context"
	"errors"
	"time"

	"linkscan/internal/logger"
	rds "linkscan/internal/platform/redis"
)

const cacheKey = "linkscan:sites"

// DefaultTTL bounds how stale the cached site list may be.
const DefaultTTL = 5 * time.Minute

type cacheStore interface {
	CacheGet(ctx context.Context, key string, dest interface{}) error
	CacheSet(ctx context.Context, key string, val interface{}, ttlSeconds int) error
}

// Cache is a process-wide, time-bounded cache over a Directory. New sites
// show up once the cached list expires; there is no explicit invalidation.
type Cache struct {
	dir   Directory
	store cacheStore
	ttl   time.Duration
	log   *logger.Logger
}

func NewCache(dir Directory, store cacheStore, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{dir: dir, store: store, ttl: ttl, log: logger.New("SiteCache")}
}

func (c *Cache) ListSites(ctx context.Context) ([]Site, error) {
	var list []Site
	err := c.store.CacheGet(ctx, cacheKey, &list)
	if err == nil {
		return list, nil
	}
	if !errors.Is(err, rds.ErrCacheMiss) {
		c.log.LogWarnf("site cache read failed, falling back to directory: %v", err)
	}

	list, err = c.dir.ListSites(ctx)
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []Site{}
	}
	if err := c.store.CacheSet(ctx, cacheKey, list, int(c.ttl/time.Second)); err != nil {
		c.log.LogWarnf("site cache write failed: %v", err)
	}
	return list, nil
}

func (c *Cache) Site(ctx context.Context, id int64) (Site, error) {
	list, err := c.ListSites(ctx)
	if err != nil {
		return Site{}, err
	}
	return Find(list, id)
}

package location

import (
	"container/list"
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/realestate/server/internal/geometry"
	"github.com/realestate/server/internal/metrics"
)

// Cache is a read-through cache of location records. Locations are
// immutable, so entries never need invalidation.
type Cache interface {
	Get(ctx context.Context, id string) (geometry.Location, bool)
	Set(ctx context.Context, loc geometry.Location)
}

// NopCache caches nothing.
type NopCache struct{}

func (NopCache) Get(context.Context, string) (geometry.Location, bool) { return geometry.Location{}, false }
func (NopCache) Set(context.Context, geometry.Location)                {}

// LRU is a bounded in-process cache keyed by location id.
type LRU struct {
	mu   sync.Mutex
	cap  int
	lst  *list.List
	dict map[string]*list.Element
}

// NewLRU returns an LRU holding at most capacity locations.
func NewLRU(capacity int) *LRU {
	if capacity < 1 {
		capacity = 1
	}
	return &LRU{cap: capacity, lst: list.New(), dict: make(map[string]*list.Element)}
}

func (c *LRU) Get(_ context.Context, id string) (geometry.Location, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.dict[id]; ok {
		c.lst.MoveToFront(e)
		metrics.LocationCacheHitsTotal.WithLabelValues("memory").Inc()
		return e.Value.(geometry.Location), true
	}
	metrics.LocationCacheMissesTotal.WithLabelValues("memory").Inc()
	return geometry.Location{}, false
}

func (c *LRU) Set(_ context.Context, loc geometry.Location) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.dict[loc.ID]; ok {
		e.Value = loc
		c.lst.MoveToFront(e)
		return
	}
	c.dict[loc.ID] = c.lst.PushFront(loc)
	for c.lst.Len() > c.cap {
		back := c.lst.Back()
		delete(c.dict, back.Value.(geometry.Location).ID)
		c.lst.Remove(back)
	}
}

// Len returns the number of cached locations.
func (c *LRU) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lst.Len()
}

// RedisCache shares location records between processes. Redis failures
// degrade to cache misses.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
	log    *zap.Logger
}

// NewRedisCache wraps client; entries expire after ttl (0 keeps them).
func NewRedisCache(client *redis.Client, ttl time.Duration, log *zap.Logger) *RedisCache {
	return &RedisCache{client: client, ttl: ttl, log: log}
}

func redisKey(id string) string {
	return "location:" + id
}

func (c *RedisCache) Get(ctx context.Context, id string) (geometry.Location, bool) {
	raw, err := c.client.Get(ctx, redisKey(id)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.Warn("location cache read failed", zap.String("location_id", id), zap.Error(err))
		}
		metrics.LocationCacheMissesTotal.WithLabelValues("redis").Inc()
		return geometry.Location{}, false
	}
	var loc geometry.Location
	if err := json.Unmarshal(raw, &loc); err != nil || loc.ID != id {
		c.log.Warn("discarding corrupt location cache entry", zap.String("location_id", id), zap.Error(err))
		metrics.LocationCacheMissesTotal.WithLabelValues("redis").Inc()
		return geometry.Location{}, false
	}
	metrics.LocationCacheHitsTotal.WithLabelValues("redis").Inc()
	return loc, true
}

func (c *RedisCache) Set(ctx context.Context, loc geometry.Location) {
	raw, err := json.Marshal(loc)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, redisKey(loc.ID), raw, c.ttl).Err(); err != nil {
		c.log.Warn("location cache write failed", zap.String("location_id", loc.ID), zap.Error(err))
	}
}

// TieredCache consults each tier in order and backfills the faster tiers on
// a hit in a slower one.
type TieredCache []Cache

func (t TieredCache) Get(ctx context.Context, id string) (geometry.Location, bool) {
	for i, tier := range t {
		if loc, ok := tier.Get(ctx, id); ok {
			for _, faster := range t[:i] {
				faster.Set(ctx, loc)
			}
			return loc, true
		}
	}
	return geometry.Location{}, false
}

func (t TieredCache) Set(ctx context.Context, loc geometry.Location) {
	for _, tier := range t {
		tier.Set(ctx, loc)
	}
}

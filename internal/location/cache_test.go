package location

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/realestate/server/internal/geometry"
)

func TestLRUEvictsLeastRecentlyUsed(t *testing.T) {
	ctx := context.Background()
	cache := NewLRU(2)
	a := geometry.NewLocation(geometry.Point{Lat: 1, Long: 1})
	b := geometry.NewLocation(geometry.Point{Lat: 2, Long: 2})
	c := geometry.NewLocation(geometry.Point{Lat: 3, Long: 3})

	cache.Set(ctx, a)
	cache.Set(ctx, b)
	_, ok := cache.Get(ctx, a.ID) // a becomes most recent
	require.True(t, ok)
	cache.Set(ctx, c)

	_, ok = cache.Get(ctx, b.ID)
	assert.False(t, ok, "b should have been evicted")
	_, ok = cache.Get(ctx, a.ID)
	assert.True(t, ok)
	assert.Equal(t, 2, cache.Len())
}

func TestTieredCacheBackfills(t *testing.T) {
	ctx := context.Background()
	fast := NewLRU(10)
	slow := NewLRU(10)
	tiered := TieredCache{fast, slow}

	loc := geometry.NewLocation(geometry.Point{Lat: 5, Long: 6})
	slow.Set(ctx, loc)

	got, ok := tiered.Get(ctx, loc.ID)
	require.True(t, ok)
	assert.Equal(t, loc, got)
	_, ok = fast.Get(ctx, loc.ID)
	assert.True(t, ok, "hit in the slow tier should backfill the fast tier")

	_, ok = tiered.Get(ctx, "missing")
	assert.False(t, ok)
}

func TestRedisCache(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Skipping redis test: %v", err)
	}

	cache := NewRedisCache(client, time.Minute, zap.NewNop())
	loc := geometry.NewLocation(geometry.Point{Lat: 47.3769, Long: 8.5417})
	defer client.Del(context.Background(), redisKey(loc.ID))

	_, ok := cache.Get(ctx, loc.ID)
	assert.False(t, ok)

	cache.Set(ctx, loc)
	got, ok := cache.Get(ctx, loc.ID)
	require.True(t, ok)
	assert.Equal(t, loc, got)

	require.NoError(t, client.Set(ctx, redisKey("corrupt"), "not json", time.Minute).Err())
	defer client.Del(context.Background(), redisKey("corrupt"))
	_, ok = cache.Get(ctx, "corrupt")
	assert.False(t, ok)
}

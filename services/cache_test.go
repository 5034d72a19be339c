package services

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type cachedPage struct {
	Titles []string `json:"titles"`
}

func newTestCatalogCache(t *testing.T) (*CatalogCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewCatalogCache(client, zap.NewNop()), mr
}

func TestCatalogCacheRoundTrip(t *testing.T) {
	cache, mr := newTestCatalogCache(t)
	ctx := context.Background()

	var page cachedPage
	assert.False(t, cache.Get(ctx, "page=1", &page))

	cache.Set(ctx, "page=1", cachedPage{Titles: []string{"Barolo"}})
	require.True(t, cache.Get(ctx, "page=1", &page))
	assert.Equal(t, []string{"Barolo"}, page.Titles)
	assert.Equal(t, CatalogCacheTTL, mr.TTL("catalog:courses:v0:page=1"))

	t.Run("invalidate hides stale pages", func(t *testing.T) {
		cache.Invalidate(ctx)
		var stale cachedPage
		assert.False(t, cache.Get(ctx, "page=1", &stale))

		cache.Set(ctx, "page=1", cachedPage{Titles: []string{"Barolo", "Chablis"}})
		var fresh cachedPage
		require.True(t, cache.Get(ctx, "page=1", &fresh))
		assert.Equal(t, []string{"Barolo", "Chablis"}, fresh.Titles)
		assert.True(t, mr.Exists("catalog:courses:v1:page=1"))
	})

	t.Run("entries expire", func(t *testing.T) {
		mr.FastForward(CatalogCacheTTL)
		var expired cachedPage
		assert.False(t, cache.Get(ctx, "page=1", &expired))
	})
}

func TestCatalogCacheCorruptEntry(t *testing.T) {
	cache, mr := newTestCatalogCache(t)
	require.NoError(t, mr.Set("catalog:courses:v0:page=1", "{not json"))

	var page cachedPage
	assert.False(t, cache.Get(context.Background(), "page=1", &page))
}

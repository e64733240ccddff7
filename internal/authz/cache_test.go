package authz

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T, ttl time.Duration) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewCache(client, ttl), mr
}

func TestCacheRoundtrip(t *testing.T) {
	cache, _ := newTestCache(t, time.Minute)
	ctx := context.Background()

	set, hit, err := cache.Get(ctx, 1)
	require.NoError(t, err)
	require.False(t, hit)
	require.Nil(t, set)

	require.NoError(t, cache.Set(ctx, 1, NewPermissionSet("users.view", "roles.view")))

	set, hit, err = cache.Get(ctx, 1)
	require.NoError(t, err)
	require.True(t, hit)
	require.Equal(t, []string{"roles.view", "users.view"}, set.Names())
}

func TestCacheStoresEmptySet(t *testing.T) {
	cache, _ := newTestCache(t, time.Minute)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, 2, NewPermissionSet()))

	set, hit, err := cache.Get(ctx, 2)
	require.NoError(t, err)
	require.True(t, hit)
	require.Empty(t, set)
}

func TestCacheEntriesExpire(t *testing.T) {
	cache, mr := newTestCache(t, time.Minute)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, 1, NewPermissionSet("users.view")))
	mr.FastForward(2 * time.Minute)

	_, hit, err := cache.Get(ctx, 1)
	require.NoError(t, err)
	require.False(t, hit)
}

func TestCacheInvalidateIsIdempotent(t *testing.T) {
	cache, _ := newTestCache(t, time.Minute)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, 1, NewPermissionSet("users.view")))
	require.NoError(t, cache.Invalidate(ctx, 1))
	require.NoError(t, cache.Invalidate(ctx, 1))

	_, hit, err := cache.Get(ctx, 1)
	require.NoError(t, err)
	require.False(t, hit)
}

func TestCacheInvalidateAllOrphansEveryEntry(t *testing.T) {
	cache, _ := newTestCache(t, time.Minute)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, 1, NewPermissionSet("users.view")))
	require.NoError(t, cache.Set(ctx, 2, NewPermissionSet("roles.view")))

	require.NoError(t, cache.InvalidateAll(ctx))

	for _, principal := range []int64{1, 2} {
		_, hit, err := cache.Get(ctx, principal)
		require.NoError(t, err)
		require.False(t, hit)
	}

	// New entries land under the bumped version and are visible again.
	require.NoError(t, cache.Set(ctx, 1, NewPermissionSet("users.view")))
	set, hit, err := cache.Get(ctx, 1)
	require.NoError(t, err)
	require.True(t, hit)
	require.True(t, set.Has("users.view"))
}

func TestCacheGetSurfacesStoreFailure(t *testing.T) {
	cache, mr := newTestCache(t, time.Minute)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, 1, NewPermissionSet("users.view")))
	mr.Close()

	_, _, err := cache.Get(ctx, 1)
	require.Error(t, err)
}

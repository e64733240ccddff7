package jobs

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/aegis-iam/aegis/internal/authz"
)

type memoryFanoutStore struct {
	roleHolders  map[int64][]int64
	groupMembers map[int64][]int64
	failWith     error
}

func (s *memoryFanoutStore) HoldersOfRole(ctx context.Context, roleID int64) ([]int64, error) {
	if s.failWith != nil {
		return nil, s.failWith
	}
	return s.roleHolders[roleID], nil
}

func (s *memoryFanoutStore) MembersOfGroup(ctx context.Context, groupID int64) ([]int64, error) {
	if s.failWith != nil {
		return nil, s.failWith
	}
	return s.groupMembers[groupID], nil
}

func newFanoutCache(t *testing.T) *authz.Cache {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return authz.NewCache(client, time.Minute)
}

func mustTask(t *testing.T, payload InvalidateFanoutPayload) *asynq.Task {
	t.Helper()
	task, err := NewInvalidateFanoutTask(payload)
	require.NoError(t, err)
	return task
}

func TestInvalidationFanoutRole(t *testing.T) {
	ctx := context.Background()
	cache := newFanoutCache(t)
	store := &memoryFanoutStore{roleHolders: map[int64][]int64{5: {1, 2}}}
	handler := NewInvalidationHandler(store, cache, slog.Default())

	for _, principal := range []int64{1, 2, 3} {
		require.NoError(t, cache.Set(ctx, principal, authz.NewPermissionSet("users.view")))
	}

	require.NoError(t, handler.Handle(ctx, mustTask(t, InvalidateFanoutPayload{Scope: ScopeRole, ID: 5})))

	for _, principal := range []int64{1, 2} {
		_, hit, err := cache.Get(ctx, principal)
		require.NoError(t, err)
		require.False(t, hit)
	}
	// Principal 3 does not hold the role; its entry survives.
	_, hit, err := cache.Get(ctx, 3)
	require.NoError(t, err)
	require.True(t, hit)
}

func TestInvalidationFanoutGroup(t *testing.T) {
	ctx := context.Background()
	cache := newFanoutCache(t)
	store := &memoryFanoutStore{groupMembers: map[int64][]int64{9: {4}}}
	handler := NewInvalidationHandler(store, cache, slog.Default())

	require.NoError(t, cache.Set(ctx, 4, authz.NewPermissionSet("users.view")))
	require.NoError(t, handler.Handle(ctx, mustTask(t, InvalidateFanoutPayload{Scope: ScopeGroup, ID: 9})))

	_, hit, err := cache.Get(ctx, 4)
	require.NoError(t, err)
	require.False(t, hit)
}

func TestInvalidationFanoutStoreFailureFlushesAll(t *testing.T) {
	ctx := context.Background()
	cache := newFanoutCache(t)
	store := &memoryFanoutStore{failWith: errors.New("graph down")}
	handler := NewInvalidationHandler(store, cache, slog.Default())

	require.NoError(t, cache.Set(ctx, 1, authz.NewPermissionSet("users.view")))
	require.NoError(t, cache.Set(ctx, 2, authz.NewPermissionSet("roles.view")))

	require.NoError(t, handler.Handle(ctx, mustTask(t, InvalidateFanoutPayload{Scope: ScopeRole, ID: 5})))

	for _, principal := range []int64{1, 2} {
		_, hit, err := cache.Get(ctx, principal)
		require.NoError(t, err)
		require.False(t, hit)
	}
}

func TestInvalidationFanoutBadPayloadSkipsRetry(t *testing.T) {
	cache := newFanoutCache(t)
	handler := NewInvalidationHandler(&memoryFanoutStore{}, cache, slog.Default())

	err := handler.Handle(context.Background(), asynq.NewTask(TaskInvalidateFanout, []byte("{not json")))
	require.ErrorIs(t, err, asynq.SkipRetry)

	err = handler.Handle(context.Background(), mustTask(t, InvalidateFanoutPayload{Scope: "tenant", ID: 1}))
	require.ErrorIs(t, err, asynq.SkipRetry)
}

func TestInvalidatorWithoutQueueFlushesAll(t *testing.T) {
	ctx := context.Background()
	cache := newFanoutCache(t)
	inv := NewInvalidator(nil, cache, slog.Default())

	require.NoError(t, cache.Set(ctx, 1, authz.NewPermissionSet("users.view")))

	// With no queue client the edge-scoped calls degrade to a full flush.
	require.NoError(t, inv.InvalidateRoleHolders(ctx, 5))

	_, hit, err := cache.Get(ctx, 1)
	require.NoError(t, err)
	require.False(t, hit)
}

func TestInvalidatorPrincipalHitsCacheDirectly(t *testing.T) {
	ctx := context.Background()
	cache := newFanoutCache(t)
	inv := NewInvalidator(nil, cache, slog.Default())

	require.NoError(t, cache.Set(ctx, 1, authz.NewPermissionSet("users.view")))
	require.NoError(t, cache.Set(ctx, 2, authz.NewPermissionSet("roles.view")))

	require.NoError(t, inv.InvalidatePrincipal(ctx, 1))

	_, hit, err := cache.Get(ctx, 1)
	require.NoError(t, err)
	require.False(t, hit)

	_, hit, err = cache.Get(ctx, 2)
	require.NoError(t, err)
	require.True(t, hit)
}

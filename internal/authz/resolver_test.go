package authz

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type memoryGraph struct {
	mu        sync.Mutex
	userRoles map[int64][]int64
	userGroups map[int64][]int64
	groupRoles map[int64][]int64
	rolePerms  map[int64][]string
	failWith   error
	calls      int
}

func newMemoryGraph() *memoryGraph {
	return &memoryGraph{
		userRoles:  make(map[int64][]int64),
		userGroups: make(map[int64][]int64),
		groupRoles: make(map[int64][]int64),
		rolePerms:  make(map[int64][]string),
	}
}

func (g *memoryGraph) touch() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	return g.failWith
}

func (g *memoryGraph) RolesOfUser(ctx context.Context, userID int64) ([]int64, error) {
	if err := g.touch(); err != nil {
		return nil, err
	}
	return g.userRoles[userID], nil
}

func (g *memoryGraph) GroupsOfUser(ctx context.Context, userID int64) ([]int64, error) {
	if err := g.touch(); err != nil {
		return nil, err
	}
	return g.userGroups[userID], nil
}

func (g *memoryGraph) RolesOfGroup(ctx context.Context, groupID int64) ([]int64, error) {
	if err := g.touch(); err != nil {
		return nil, err
	}
	return g.groupRoles[groupID], nil
}

func (g *memoryGraph) PermissionsOfRole(ctx context.Context, roleID int64) ([]string, error) {
	if err := g.touch(); err != nil {
		return nil, err
	}
	return g.rolePerms[roleID], nil
}

func TestResolveNoMemberships(t *testing.T) {
	resolver := NewResolver(newMemoryGraph(), time.Second)

	set, err := resolver.Resolve(context.Background(), 7)
	require.NoError(t, err)
	require.Empty(t, set)
}

func TestResolveDirectRole(t *testing.T) {
	graph := newMemoryGraph()
	graph.userRoles[1] = []int64{10}
	graph.rolePerms[10] = []string{"users.view", "users.edit"}

	resolver := NewResolver(graph, time.Second)
	set, err := resolver.Resolve(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, []string{"users.edit", "users.view"}, set.Names())
}

func TestResolveGroupRole(t *testing.T) {
	graph := newMemoryGraph()
	graph.userGroups[1] = []int64{20}
	graph.groupRoles[20] = []int64{10}
	graph.rolePerms[10] = []string{"roles.view"}

	resolver := NewResolver(graph, time.Second)
	set, err := resolver.Resolve(context.Background(), 1)
	require.NoError(t, err)
	require.True(t, set.Has("roles.view"))
}

func TestResolveUnionsDirectAndGroupRoles(t *testing.T) {
	graph := newMemoryGraph()
	graph.userRoles[1] = []int64{10}
	graph.userGroups[1] = []int64{20, 21}
	graph.groupRoles[20] = []int64{11}
	graph.groupRoles[21] = []int64{10} // same role held directly and via a group
	graph.rolePerms[10] = []string{"users.view"}
	graph.rolePerms[11] = []string{"users.view", "audit.view"}

	resolver := NewResolver(graph, time.Second)
	set, err := resolver.Resolve(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, []string{"audit.view", "users.view"}, set.Names())
}

func TestResolveNormalizesPermissionNames(t *testing.T) {
	graph := newMemoryGraph()
	graph.userRoles[1] = []int64{10}
	graph.rolePerms[10] = []string{"  Users.View ", "users.view", ""}

	resolver := NewResolver(graph, time.Second)
	set, err := resolver.Resolve(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, []string{"users.view"}, set.Names())
}

func TestResolveStoreFailure(t *testing.T) {
	graph := newMemoryGraph()
	graph.failWith = errors.New("connection refused")

	resolver := NewResolver(graph, time.Second)
	set, err := resolver.Resolve(context.Background(), 1)
	require.ErrorIs(t, err, ErrResolutionUnavailable)
	require.Nil(t, set)
}

func TestResolveCancelledContext(t *testing.T) {
	graph := newMemoryGraph()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	resolver := NewResolver(graph, time.Second)
	_, err := resolver.Resolve(ctx, 1)
	require.ErrorIs(t, err, ErrResolutionUnavailable)
}

func TestResolveCollapsesConcurrentLookups(t *testing.T) {
	graph := newMemoryGraph()
	graph.userRoles[1] = []int64{10}
	graph.rolePerms[10] = []string{"users.view"}

	resolver := NewResolver(graph, time.Second)

	const workers = 8
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			set, err := resolver.Resolve(context.Background(), 1)
			require.NoError(t, err)
			require.True(t, set.Has("users.view"))
		}()
	}
	wg.Wait()
}

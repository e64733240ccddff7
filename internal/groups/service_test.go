package groups

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/aegis-iam/aegis/internal/authz"
	"github.com/aegis-iam/aegis/internal/shared"
	"github.com/aegis-iam/aegis/jobs"
)

type memoryGroupRepo struct {
	groups     map[int64]Group
	members    map[int64]map[int64]struct{}
	groupRoles map[int64]map[int64]struct{}
	nextID     int64
	membersErr error
}

func newMemoryGroupRepo() *memoryGroupRepo {
	return &memoryGroupRepo{
		groups:     make(map[int64]Group),
		members:    make(map[int64]map[int64]struct{}),
		groupRoles: make(map[int64]map[int64]struct{}),
	}
}

func (r *memoryGroupRepo) ListGroups(ctx context.Context) ([]Group, error) {
	out := make([]Group, 0, len(r.groups))
	for _, g := range r.groups {
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *memoryGroupRepo) GetGroup(ctx context.Context, id int64) (Group, error) {
	g, ok := r.groups[id]
	if !ok {
		return Group{}, shared.ErrNotFound
	}
	return g, nil
}

func (r *memoryGroupRepo) CreateGroup(ctx context.Context, name, kind string) (Group, error) {
	for _, g := range r.groups {
		if g.Name == name {
			return Group{}, shared.ErrDuplicate
		}
	}
	r.nextID++
	g := Group{ID: r.nextID, Name: name, Kind: kind, CreatedAt: time.Now(), UpdatedAt: time.Now()}
	r.groups[g.ID] = g
	return g, nil
}

func (r *memoryGroupRepo) UpdateGroup(ctx context.Context, id int64, name, kind string) (Group, error) {
	g, ok := r.groups[id]
	if !ok {
		return Group{}, shared.ErrNotFound
	}
	g.Name = name
	g.Kind = kind
	g.UpdatedAt = time.Now()
	r.groups[id] = g
	return g, nil
}

func (r *memoryGroupRepo) DeleteGroup(ctx context.Context, id int64) (int64, error) {
	if _, ok := r.groups[id]; !ok {
		return 0, nil
	}
	delete(r.groups, id)
	delete(r.members, id)
	delete(r.groupRoles, id)
	return 1, nil
}

func (r *memoryGroupRepo) ListMembers(ctx context.Context, groupID int64) ([]Member, error) {
	if r.membersErr != nil {
		return nil, r.membersErr
	}
	var out []Member
	for userID := range r.members[groupID] {
		out = append(out, Member{UserID: userID})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func (r *memoryGroupRepo) AddMember(ctx context.Context, groupID, userID int64) error {
	if r.members[groupID] == nil {
		r.members[groupID] = make(map[int64]struct{})
	}
	r.members[groupID][userID] = struct{}{}
	return nil
}

func (r *memoryGroupRepo) RemoveMember(ctx context.Context, groupID, userID int64) error {
	delete(r.members[groupID], userID)
	return nil
}

func (r *memoryGroupRepo) AttachRole(ctx context.Context, groupID, roleID int64) error {
	if r.groupRoles[groupID] == nil {
		r.groupRoles[groupID] = make(map[int64]struct{})
	}
	r.groupRoles[groupID][roleID] = struct{}{}
	return nil
}

func (r *memoryGroupRepo) DetachRole(ctx context.Context, groupID, roleID int64) error {
	delete(r.groupRoles[groupID], roleID)
	return nil
}

func (r *memoryGroupRepo) ListGroupRoleIDs(ctx context.Context, groupID int64) ([]int64, error) {
	var out []int64
	for id := range r.groupRoles[groupID] {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

type recordingInvalidator struct {
	events []string
}

func (i *recordingInvalidator) InvalidatePrincipal(ctx context.Context, principalID int64) error {
	i.events = append(i.events, fmt.Sprintf("principal:%d", principalID))
	return nil
}

func (i *recordingInvalidator) InvalidateRoleHolders(ctx context.Context, roleID int64) error {
	i.events = append(i.events, fmt.Sprintf("role:%d", roleID))
	return nil
}

func (i *recordingInvalidator) InvalidateGroupMembers(ctx context.Context, groupID int64) error {
	i.events = append(i.events, fmt.Sprintf("group:%d", groupID))
	return nil
}

func (i *recordingInvalidator) InvalidateAll(ctx context.Context) error {
	i.events = append(i.events, "all")
	return nil
}

func newGroupService(t *testing.T) (*Service, *memoryGroupRepo, *recordingInvalidator) {
	t.Helper()
	repo := newMemoryGroupRepo()
	inv := &recordingInvalidator{}
	return NewService(repo, inv, slog.Default()), repo, inv
}

func TestMembershipInvalidatesPrincipal(t *testing.T) {
	svc, repo, inv := newGroupService(t)
	ctx := context.Background()

	group, err := svc.CreateGroup(ctx, "platform", "team")
	require.NoError(t, err)

	require.NoError(t, svc.AddMember(ctx, group.ID, 7))
	require.Contains(t, repo.members[group.ID], int64(7))

	require.NoError(t, svc.RemoveMember(ctx, group.ID, 7))
	require.NotContains(t, repo.members[group.ID], int64(7))

	require.Equal(t, []string{"principal:7", "principal:7"}, inv.events)
}

func TestAddMemberUnknownGroup(t *testing.T) {
	svc, _, inv := newGroupService(t)

	err := svc.AddMember(context.Background(), 99, 7)
	require.ErrorIs(t, err, shared.ErrNotFound)
	require.Empty(t, inv.events)
}

func TestGroupRoleChangesInvalidateMembers(t *testing.T) {
	svc, _, inv := newGroupService(t)
	ctx := context.Background()

	group, err := svc.CreateGroup(ctx, "platform", "team")
	require.NoError(t, err)

	require.NoError(t, svc.AttachRole(ctx, group.ID, 3))
	roleIDs, err := svc.ListGroupRoleIDs(ctx, group.ID)
	require.NoError(t, err)
	require.Equal(t, []int64{3}, roleIDs)

	require.NoError(t, svc.DetachRole(ctx, group.ID, 3))

	key := fmt.Sprintf("group:%d", group.ID)
	require.Equal(t, []string{key, key}, inv.events)
}

func TestDeleteGroupInvalidatesCapturedMembers(t *testing.T) {
	svc, _, inv := newGroupService(t)
	ctx := context.Background()

	group, err := svc.CreateGroup(ctx, "platform", "team")
	require.NoError(t, err)
	require.NoError(t, svc.AddMember(ctx, group.ID, 7))
	require.NoError(t, svc.AddMember(ctx, group.ID, 8))

	// The member set is read before the delete cascades the edges away, and
	// each captured principal is invalidated afterwards.
	require.NoError(t, svc.DeleteGroup(ctx, group.ID))
	require.Equal(t, []string{"principal:7", "principal:8", "principal:7", "principal:8"}, inv.events)

	err = svc.DeleteGroup(ctx, group.ID)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestDeleteGroupMemberLookupFailureFlushesAll(t *testing.T) {
	svc, repo, inv := newGroupService(t)
	ctx := context.Background()

	group, err := svc.CreateGroup(ctx, "platform", "team")
	require.NoError(t, err)
	repo.membersErr = fmt.Errorf("connection refused")

	require.NoError(t, svc.DeleteGroup(ctx, group.ID))
	require.Equal(t, []string{"all"}, inv.events)
}

func TestDeleteGroupDropsCachedGrants(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	cache := authz.NewCache(client, time.Minute)

	repo := newMemoryGroupRepo()
	svc := NewService(repo, jobs.NewInvalidator(nil, cache, slog.Default()), slog.Default())

	group, err := svc.CreateGroup(ctx, "support", "team")
	require.NoError(t, err)
	require.NoError(t, svc.AddMember(ctx, group.ID, 9))

	// The member's effective set was resolved and cached before the group
	// goes away.
	require.NoError(t, cache.Set(ctx, 9, authz.NewPermissionSet("ticket.read")))

	require.NoError(t, svc.DeleteGroup(ctx, group.ID))

	_, hit, err := cache.Get(ctx, 9)
	require.NoError(t, err)
	require.False(t, hit, "stale grant survived group deletion")
}

func TestCreateGroupValidatesName(t *testing.T) {
	svc, _, _ := newGroupService(t)

	_, err := svc.CreateGroup(context.Background(), "  ", "team")
	require.Error(t, err)

	_, err = svc.CreateGroup(context.Background(), "platform", "team")
	require.NoError(t, err)

	_, err = svc.CreateGroup(context.Background(), "platform", "team")
	require.ErrorIs(t, err, shared.ErrDuplicate)
}

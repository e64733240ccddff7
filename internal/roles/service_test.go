package roles

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

type memoryRoleRepo struct {
	roles      map[int64]Role
	perms      map[int64]Permission
	rolePerms  map[int64]map[int64]struct{}
	userRoles  map[int64]map[int64]struct{}
	nextRoleID int64
	nextPermID int64
	holdersErr error
}

func newMemoryRoleRepo() *memoryRoleRepo {
	return &memoryRoleRepo{
		roles:     make(map[int64]Role),
		perms:     make(map[int64]Permission),
		rolePerms: make(map[int64]map[int64]struct{}),
		userRoles: make(map[int64]map[int64]struct{}),
	}
}

func (r *memoryRoleRepo) ListRoles(ctx context.Context) ([]Role, error) {
	out := make([]Role, 0, len(r.roles))
	for _, role := range r.roles {
		out = append(out, role)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *memoryRoleRepo) GetRole(ctx context.Context, id int64) (Role, error) {
	role, ok := r.roles[id]
	if !ok {
		return Role{}, shared.ErrNotFound
	}
	return role, nil
}

func (r *memoryRoleRepo) CreateRole(ctx context.Context, name, description string) (Role, error) {
	for _, role := range r.roles {
		if role.Name == name {
			return Role{}, shared.ErrDuplicate
		}
	}
	r.nextRoleID++
	role := Role{ID: r.nextRoleID, Name: name, Description: description, CreatedAt: time.Now(), UpdatedAt: time.Now()}
	r.roles[role.ID] = role
	return role, nil
}

func (r *memoryRoleRepo) UpdateRole(ctx context.Context, id int64, name, description string) (Role, error) {
	role, ok := r.roles[id]
	if !ok {
		return Role{}, shared.ErrNotFound
	}
	role.Name = name
	role.Description = description
	role.UpdatedAt = time.Now()
	r.roles[id] = role
	return role, nil
}

func (r *memoryRoleRepo) DeleteRole(ctx context.Context, id int64) (int64, error) {
	if _, ok := r.roles[id]; !ok {
		return 0, nil
	}
	delete(r.roles, id)
	delete(r.rolePerms, id)
	for _, held := range r.userRoles {
		delete(held, id)
	}
	return 1, nil
}

func (r *memoryRoleRepo) ListPermissions(ctx context.Context) ([]Permission, error) {
	out := make([]Permission, 0, len(r.perms))
	for _, p := range r.perms {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *memoryRoleRepo) EnsurePermission(ctx context.Context, name, description string) (Permission, error) {
	for id, p := range r.perms {
		if p.Name == name {
			p.Description = description
			r.perms[id] = p
			return p, nil
		}
	}
	r.nextPermID++
	p := Permission{ID: r.nextPermID, Name: name, Description: description}
	r.perms[p.ID] = p
	return p, nil
}

func (r *memoryRoleRepo) ListRolePermissions(ctx context.Context, roleID int64) ([]Permission, error) {
	var out []Permission
	for id := range r.rolePerms[roleID] {
		out = append(out, r.perms[id])
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *memoryRoleRepo) AttachPermission(ctx context.Context, roleID, permissionID int64) error {
	if r.rolePerms[roleID] == nil {
		r.rolePerms[roleID] = make(map[int64]struct{})
	}
	r.rolePerms[roleID][permissionID] = struct{}{}
	return nil
}

func (r *memoryRoleRepo) DetachPermission(ctx context.Context, roleID, permissionID int64) error {
	delete(r.rolePerms[roleID], permissionID)
	return nil
}

func (r *memoryRoleRepo) AssignRoleToUser(ctx context.Context, userID, roleID int64) error {
	if r.userRoles[userID] == nil {
		r.userRoles[userID] = make(map[int64]struct{})
	}
	r.userRoles[userID][roleID] = struct{}{}
	return nil
}

func (r *memoryRoleRepo) RemoveRoleFromUser(ctx context.Context, userID, roleID int64) error {
	delete(r.userRoles[userID], roleID)
	return nil
}

func (r *memoryRoleRepo) ListRoleHolderIDs(ctx context.Context, roleID int64) ([]int64, error) {
	if r.holdersErr != nil {
		return nil, r.holdersErr
	}
	var ids []int64
	for userID, held := range r.userRoles {
		if _, ok := held[roleID]; ok {
			ids = append(ids, userID)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// recordingInvalidator captures every invalidation the service issues.
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

func newRoleService(t *testing.T) (*Service, *memoryRoleRepo, *recordingInvalidator) {
	t.Helper()
	repo := newMemoryRoleRepo()
	inv := &recordingInvalidator{}
	return NewService(repo, inv, slog.Default()), repo, inv
}

func TestCreateRoleValidatesName(t *testing.T) {
	svc, _, _ := newRoleService(t)

	_, err := svc.CreateRole(context.Background(), "  ", "whatever")
	require.Error(t, err)

	role, err := svc.CreateRole(context.Background(), " auditor ", " read-only access ")
	require.NoError(t, err)
	require.Equal(t, "auditor", role.Name)
	require.Equal(t, "read-only access", role.Description)
}

func TestSetRolePermissionsDiffsEdges(t *testing.T) {
	svc, repo, inv := newRoleService(t)
	ctx := context.Background()

	role, err := svc.CreateRole(ctx, "auditor", "")
	require.NoError(t, err)
	view, _ := repo.EnsurePermission(ctx, "users.view", "")
	edit, _ := repo.EnsurePermission(ctx, "users.edit", "")
	audit, _ := repo.EnsurePermission(ctx, "audit.view", "")

	require.NoError(t, svc.SetRolePermissions(ctx, role.ID, []int64{view.ID, edit.ID}))

	got, err := svc.ListRolePermissions(ctx, role.ID)
	require.NoError(t, err)
	require.Len(t, got, 2)

	// Replace: keep view, drop edit, add audit.
	require.NoError(t, svc.SetRolePermissions(ctx, role.ID, []int64{view.ID, audit.ID}))

	got, err = svc.ListRolePermissions(ctx, role.ID)
	require.NoError(t, err)
	names := make([]string, 0, len(got))
	for _, p := range got {
		names = append(names, p.Name)
	}
	require.Equal(t, []string{"audit.view", "users.view"}, names)

	// Each replacement invalidates the role's holders.
	require.Equal(t, []string{fmt.Sprintf("role:%d", role.ID), fmt.Sprintf("role:%d", role.ID)}, inv.events)
}

func TestSetRolePermissionsUnknownRole(t *testing.T) {
	svc, _, inv := newRoleService(t)

	err := svc.SetRolePermissions(context.Background(), 99, []int64{1})
	require.ErrorIs(t, err, shared.ErrNotFound)
	require.Empty(t, inv.events)
}

func TestAssignAndRemoveRoleInvalidatePrincipal(t *testing.T) {
	svc, repo, inv := newRoleService(t)
	ctx := context.Background()

	role, err := svc.CreateRole(ctx, "auditor", "")
	require.NoError(t, err)

	require.NoError(t, svc.AssignRole(ctx, 42, role.ID))
	require.Contains(t, repo.userRoles[42], role.ID)

	require.NoError(t, svc.RemoveRole(ctx, 42, role.ID))
	require.NotContains(t, repo.userRoles[42], role.ID)

	require.Equal(t, []string{"principal:42", "principal:42"}, inv.events)
}

func TestDeleteRoleInvalidatesCapturedHolders(t *testing.T) {
	svc, _, inv := newRoleService(t)
	ctx := context.Background()

	role, err := svc.CreateRole(ctx, "auditor", "")
	require.NoError(t, err)
	require.NoError(t, svc.AssignRole(ctx, 42, role.ID))
	require.NoError(t, svc.AssignRole(ctx, 43, role.ID))

	// The holder set is read before the delete cascades the edges away, and
	// each captured principal is invalidated afterwards.
	require.NoError(t, svc.DeleteRole(ctx, role.ID))
	require.Equal(t, []string{"principal:42", "principal:43", "principal:42", "principal:43"}, inv.events)

	err = svc.DeleteRole(ctx, role.ID)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestDeleteRoleHolderLookupFailureFlushesAll(t *testing.T) {
	svc, repo, inv := newRoleService(t)
	ctx := context.Background()

	role, err := svc.CreateRole(ctx, "auditor", "")
	require.NoError(t, err)
	repo.holdersErr = fmt.Errorf("connection refused")

	require.NoError(t, svc.DeleteRole(ctx, role.ID))
	require.Equal(t, []string{"all"}, inv.events)
}

func TestDeleteRoleDropsCachedGrants(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	cache := authz.NewCache(client, time.Minute)

	repo := newMemoryRoleRepo()
	svc := NewService(repo, jobs.NewInvalidator(nil, cache, slog.Default()), slog.Default())

	role, err := svc.CreateRole(ctx, "editor", "")
	require.NoError(t, err)
	require.NoError(t, svc.AssignRole(ctx, 42, role.ID))

	// The principal's effective set was resolved and cached before the role
	// goes away.
	require.NoError(t, cache.Set(ctx, 42, authz.NewPermissionSet("content.write")))

	require.NoError(t, svc.DeleteRole(ctx, role.ID))

	_, hit, err := cache.Get(ctx, 42)
	require.NoError(t, err)
	require.False(t, hit, "stale grant survived role deletion")
}

func TestSyncCatalogUpsertsPermissions(t *testing.T) {
	svc, repo, _ := newRoleService(t)
	ctx := context.Background()

	catalog := authz.NewCatalog(map[string]string{
		"users.view": "View users",
		"users.edit": "Manage users",
	})
	require.NoError(t, svc.SyncCatalog(ctx, catalog))
	require.NoError(t, svc.SyncCatalog(ctx, catalog)) // idempotent

	perms, err := repo.ListPermissions(ctx)
	require.NoError(t, err)
	require.Len(t, perms, 2)
}

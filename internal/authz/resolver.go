package authz

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"golang.org/x/sync/singleflight"
)

// GraphStore exposes read queries over the membership graph. Implementations
// return empty slices, never an error, when a principal or edge has no rows.
type GraphStore interface {
	RolesOfUser(ctx context.Context, userID int64) ([]int64, error)
	GroupsOfUser(ctx context.Context, userID int64) ([]int64, error)
	RolesOfGroup(ctx context.Context, groupID int64) ([]int64, error)
	PermissionsOfRole(ctx context.Context, roleID int64) ([]string, error)
}

// Resolver computes the effective permission set for a principal: the union
// of permissions reachable through direct role grants and group-held roles.
// Resolution is bounded to exactly two graph hops; groups do not nest and
// roles do not inherit.
type Resolver struct {
	store   GraphStore
	timeout time.Duration
	group   singleflight.Group
}

// NewResolver constructs a Resolver. The timeout bounds each resolution so a
// slow store cannot stall request dispatch; exceeding it is reported as
// ErrResolutionUnavailable.
func NewResolver(store GraphStore, timeout time.Duration) *Resolver {
	return &Resolver{store: store, timeout: timeout}
}

// Resolve returns the effective permission set for the principal. An empty
// set is a valid result. Any store failure or timeout is wrapped in
// ErrResolutionUnavailable so callers can fail closed; resolution never
// degrades silently to an empty set. Concurrent resolutions for the same
// principal are collapsed into a single store traversal.
func (r *Resolver) Resolve(ctx context.Context, principalID int64) (PermissionSet, error) {
	key := strconv.FormatInt(principalID, 10)
	resultChan := r.group.DoChan(key, func() (interface{}, error) {
		return r.resolve(context.WithoutCancel(ctx), principalID)
	})
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %v", ErrResolutionUnavailable, ctx.Err())
	case res := <-resultChan:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(PermissionSet), nil
	}
}

func (r *Resolver) resolve(ctx context.Context, principalID int64) (PermissionSet, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	roleIDs := make(map[int64]struct{})

	direct, err := r.store.RolesOfUser(ctx, principalID)
	if err != nil {
		return nil, fmt.Errorf("%w: roles of user: %v", ErrResolutionUnavailable, err)
	}
	for _, id := range direct {
		roleIDs[id] = struct{}{}
	}

	groups, err := r.store.GroupsOfUser(ctx, principalID)
	if err != nil {
		return nil, fmt.Errorf("%w: groups of user: %v", ErrResolutionUnavailable, err)
	}
	for _, groupID := range groups {
		held, err := r.store.RolesOfGroup(ctx, groupID)
		if err != nil {
			return nil, fmt.Errorf("%w: roles of group %d: %v", ErrResolutionUnavailable, groupID, err)
		}
		for _, id := range held {
			roleIDs[id] = struct{}{}
		}
	}

	set := make(PermissionSet)
	for roleID := range roleIDs {
		perms, err := r.store.PermissionsOfRole(ctx, roleID)
		if err != nil {
			return nil, fmt.Errorf("%w: permissions of role %d: %v", ErrResolutionUnavailable, roleID, err)
		}
		for _, name := range perms {
			name = NormalizePermission(name)
			if name == "" {
				continue
			}
			set[name] = struct{}{}
		}
	}
	return set, nil
}

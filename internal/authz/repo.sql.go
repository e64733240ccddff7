package authz

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Store provides PostgreSQL backed membership graph queries.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore constructs a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// RolesOfUser returns role IDs directly granted to the user.
func (s *Store) RolesOfUser(ctx context.Context, userID int64) ([]int64, error) {
	return s.queryIDs(ctx, `SELECT role_id FROM user_roles WHERE user_id = $1`, userID)
}

// GroupsOfUser returns group IDs the user belongs to.
func (s *Store) GroupsOfUser(ctx context.Context, userID int64) ([]int64, error) {
	return s.queryIDs(ctx, `SELECT group_id FROM user_groups WHERE user_id = $1`, userID)
}

// RolesOfGroup returns role IDs held by the group.
func (s *Store) RolesOfGroup(ctx context.Context, groupID int64) ([]int64, error) {
	return s.queryIDs(ctx, `SELECT role_id FROM group_roles WHERE group_id = $1`, groupID)
}

// PermissionsOfRole returns permission names attached to the role.
func (s *Store) PermissionsOfRole(ctx context.Context, roleID int64) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT p.name FROM role_permissions rp JOIN permissions p ON p.id = rp.permission_id WHERE rp.role_id = $1`, roleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return names, nil
}

// MembersOfGroup returns user IDs belonging to the group. Used for
// invalidation fan-out after group-role mutations.
func (s *Store) MembersOfGroup(ctx context.Context, groupID int64) ([]int64, error) {
	return s.queryIDs(ctx, `SELECT user_id FROM user_groups WHERE group_id = $1`, groupID)
}

// HoldersOfRole returns user IDs whose effective set includes the role,
// whether granted directly or through group membership. Used for invalidation
// fan-out after role-permission mutations.
func (s *Store) HoldersOfRole(ctx context.Context, roleID int64) ([]int64, error) {
	return s.queryIDs(ctx, `
		SELECT user_id FROM user_roles WHERE role_id = $1
		UNION
		SELECT ug.user_id FROM user_groups ug JOIN group_roles gr ON gr.group_id = ug.group_id WHERE gr.role_id = $1`, roleID)
}

func (s *Store) queryIDs(ctx context.Context, query string, arg int64) ([]int64, error) {
	rows, err := s.pool.Query(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ids, nil
}

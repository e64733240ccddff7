package groups

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aegis-iam/aegis/internal/shared"
)

// Repository defines group and group-edge data access.
type Repository interface {
	ListGroups(ctx context.Context) ([]Group, error)
	GetGroup(ctx context.Context, id int64) (Group, error)
	CreateGroup(ctx context.Context, name, kind string) (Group, error)
	UpdateGroup(ctx context.Context, id int64, name, kind string) (Group, error)
	DeleteGroup(ctx context.Context, id int64) (int64, error)

	ListMembers(ctx context.Context, groupID int64) ([]Member, error)
	AddMember(ctx context.Context, groupID, userID int64) error
	RemoveMember(ctx context.Context, groupID, userID int64) error

	AttachRole(ctx context.Context, groupID, roleID int64) error
	DetachRole(ctx context.Context, groupID, roleID int64) error
	ListGroupRoleIDs(ctx context.Context, groupID int64) ([]int64, error)
}

var _ Repository = (*pgRepository)(nil)

type pgRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL backed Repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &pgRepository{pool: pool}
}

func (r *pgRepository) ListGroups(ctx context.Context) ([]Group, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, kind, created_at, updated_at FROM groups_ ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []Group
	for rows.Next() {
		var g Group
		if err := rows.Scan(&g.ID, &g.Name, &g.Kind, &g.CreatedAt, &g.UpdatedAt); err != nil {
			return nil, err
		}
		list = append(list, g)
	}
	return list, rows.Err()
}

func (r *pgRepository) GetGroup(ctx context.Context, id int64) (Group, error) {
	var g Group
	err := r.pool.QueryRow(ctx, `SELECT id, name, kind, created_at, updated_at FROM groups_ WHERE id = $1`, id).
		Scan(&g.ID, &g.Name, &g.Kind, &g.CreatedAt, &g.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Group{}, shared.ErrNotFound
		}
		return Group{}, err
	}
	return g, nil
}

func (r *pgRepository) CreateGroup(ctx context.Context, name, kind string) (Group, error) {
	var g Group
	err := r.pool.QueryRow(ctx, `INSERT INTO groups_ (name, kind) VALUES ($1, $2) RETURNING id, name, kind, created_at, updated_at`, name, kind).
		Scan(&g.ID, &g.Name, &g.Kind, &g.CreatedAt, &g.UpdatedAt)
	if err != nil {
		return Group{}, mapUnique(err)
	}
	return g, nil
}

func (r *pgRepository) UpdateGroup(ctx context.Context, id int64, name, kind string) (Group, error) {
	var g Group
	err := r.pool.QueryRow(ctx, `UPDATE groups_ SET name = $2, kind = $3, updated_at = NOW() WHERE id = $1 RETURNING id, name, kind, created_at, updated_at`, id, name, kind).
		Scan(&g.ID, &g.Name, &g.Kind, &g.CreatedAt, &g.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Group{}, shared.ErrNotFound
		}
		return Group{}, mapUnique(err)
	}
	return g, nil
}

func (r *pgRepository) DeleteGroup(ctx context.Context, id int64) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM groups_ WHERE id = $1`, id)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *pgRepository) ListMembers(ctx context.Context, groupID int64) ([]Member, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT u.id, u.email, u.name, ug.created_at FROM user_groups ug
		JOIN users u ON u.id = ug.user_id
		WHERE ug.group_id = $1 ORDER BY u.email`, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var members []Member
	for rows.Next() {
		var m Member
		if err := rows.Scan(&m.UserID, &m.Email, &m.Name, &m.AddedAt); err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

func (r *pgRepository) AddMember(ctx context.Context, groupID, userID int64) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO user_groups (user_id, group_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`, userID, groupID)
	return err
}

func (r *pgRepository) RemoveMember(ctx context.Context, groupID, userID int64) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM user_groups WHERE user_id = $1 AND group_id = $2`, userID, groupID)
	return err
}

func (r *pgRepository) AttachRole(ctx context.Context, groupID, roleID int64) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO group_roles (group_id, role_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`, groupID, roleID)
	return err
}

func (r *pgRepository) DetachRole(ctx context.Context, groupID, roleID int64) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM group_roles WHERE group_id = $1 AND role_id = $2`, groupID, roleID)
	return err
}

func (r *pgRepository) ListGroupRoleIDs(ctx context.Context, groupID int64) ([]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT role_id FROM group_roles WHERE group_id = $1`, groupID)
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
	return ids, rows.Err()
}

func mapUnique(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return shared.ErrDuplicate
	}
	return err
}

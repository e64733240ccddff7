package roles

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/aegis-iam/aegis/internal/authz"
	"github.com/aegis-iam/aegis/internal/shared"
)

// Service orchestrates role administration. Every mutation that can change a
// principal's effective permission set issues a cache invalidation scoped to
// the principals reachable through the mutated edge.
type Service struct {
	repo        Repository
	invalidator authz.Invalidator
	logger      *slog.Logger
}

// NewService constructs a Service.
func NewService(repo Repository, invalidator authz.Invalidator, logger *slog.Logger) *Service {
	return &Service{repo: repo, invalidator: invalidator, logger: logger}
}

// ListRoles returns all roles ordered by name.
func (s *Service) ListRoles(ctx context.Context) ([]Role, error) {
	return s.repo.ListRoles(ctx)
}

// GetRole fetches a role by ID.
func (s *Service) GetRole(ctx context.Context, id int64) (Role, error) {
	return s.repo.GetRole(ctx, id)
}

// CreateRole inserts a new role.
func (s *Service) CreateRole(ctx context.Context, name, description string) (Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Role{}, errors.New("roles: role name required")
	}
	return s.repo.CreateRole(ctx, name, strings.TrimSpace(description))
}

// UpdateRole updates an existing role. Renaming does not alter grants, so no
// invalidation is needed.
func (s *Service) UpdateRole(ctx context.Context, id int64, name, description string) (Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Role{}, errors.New("roles: role name required")
	}
	return s.repo.UpdateRole(ctx, id, name, strings.TrimSpace(description))
}

// DeleteRole removes a role. Edge rows cascade in the database, so the
// holder set must be captured before the delete: a queued fan-out running
// after the cascade would find no edges and invalidate nobody. The captured
// principals are invalidated inline once the delete lands; if the holder set
// could not be read, the whole cache is flushed instead.
func (s *Service) DeleteRole(ctx context.Context, id int64) error {
	holders, holdersErr := s.repo.ListRoleHolderIDs(ctx, id)
	rows, err := s.repo.DeleteRole(ctx, id)
	if err != nil {
		return err
	}
	if rows == 0 {
		return shared.ErrNotFound
	}
	if holdersErr != nil {
		s.logger.Warn("role holder set unavailable, invalidating all", slog.Int64("role", id), slog.Any("error", holdersErr))
		s.invalidateAll(ctx)
		return nil
	}
	s.invalidatePrincipals(ctx, holders)
	return nil
}

// ListPermissions returns the stored permission catalog.
func (s *Service) ListPermissions(ctx context.Context) ([]Permission, error) {
	return s.repo.ListPermissions(ctx)
}

// ListRolePermissions returns permissions attached to a role.
func (s *Service) ListRolePermissions(ctx context.Context, roleID int64) ([]Permission, error) {
	if _, err := s.repo.GetRole(ctx, roleID); err != nil {
		return nil, err
	}
	return s.repo.ListRolePermissions(ctx, roleID)
}

// SetRolePermissions replaces the permission set of a role, attaching the
// missing edges and detaching the removed ones, then invalidates every
// principal holding the role.
func (s *Service) SetRolePermissions(ctx context.Context, roleID int64, permissionIDs []int64) error {
	if _, err := s.repo.GetRole(ctx, roleID); err != nil {
		return err
	}
	current, err := s.repo.ListRolePermissions(ctx, roleID)
	if err != nil {
		return err
	}
	existing := make(map[int64]struct{}, len(current))
	for _, p := range current {
		existing[p.ID] = struct{}{}
	}
	keep := make(map[int64]struct{}, len(permissionIDs))
	for _, id := range permissionIDs {
		keep[id] = struct{}{}
		if _, ok := existing[id]; !ok {
			if err := s.repo.AttachPermission(ctx, roleID, id); err != nil {
				return err
			}
		}
	}
	for id := range existing {
		if _, ok := keep[id]; !ok {
			if err := s.repo.DetachPermission(ctx, roleID, id); err != nil {
				return err
			}
		}
	}
	s.invalidateRoleHolders(ctx, roleID)
	return nil
}

// AssignRole grants a role directly to a user and invalidates that principal.
func (s *Service) AssignRole(ctx context.Context, userID, roleID int64) error {
	if _, err := s.repo.GetRole(ctx, roleID); err != nil {
		return err
	}
	if err := s.repo.AssignRoleToUser(ctx, userID, roleID); err != nil {
		return err
	}
	s.invalidatePrincipal(ctx, userID)
	return nil
}

// RemoveRole revokes a direct role grant and invalidates that principal.
func (s *Service) RemoveRole(ctx context.Context, userID, roleID int64) error {
	if err := s.repo.RemoveRoleFromUser(ctx, userID, roleID); err != nil {
		return err
	}
	s.invalidatePrincipal(ctx, userID)
	return nil
}

// SyncCatalog upserts every catalog permission into the permissions table so
// the admin listing matches what the gate enforces. Run at startup.
func (s *Service) SyncCatalog(ctx context.Context, catalog *authz.Catalog) error {
	for _, name := range catalog.Names() {
		if _, err := s.repo.EnsurePermission(ctx, name, catalog.Description(name)); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) invalidateRoleHolders(ctx context.Context, roleID int64) {
	if s.invalidator == nil {
		return
	}
	if err := s.invalidator.InvalidateRoleHolders(ctx, roleID); err != nil {
		s.logger.Warn("invalidate role holders", slog.Int64("role", roleID), slog.Any("error", err))
	}
}

func (s *Service) invalidatePrincipal(ctx context.Context, userID int64) {
	if s.invalidator == nil {
		return
	}
	if err := s.invalidator.InvalidatePrincipal(ctx, userID); err != nil {
		s.logger.Warn("invalidate principal", slog.Int64("user", userID), slog.Any("error", err))
	}
}

func (s *Service) invalidatePrincipals(ctx context.Context, userIDs []int64) {
	if s.invalidator == nil {
		return
	}
	for _, userID := range userIDs {
		if err := s.invalidator.InvalidatePrincipal(ctx, userID); err != nil {
			s.logger.Warn("invalidate principal", slog.Int64("user", userID), slog.Any("error", err))
			s.invalidateAll(ctx)
			return
		}
	}
}

func (s *Service) invalidateAll(ctx context.Context) {
	if s.invalidator == nil {
		return
	}
	if err := s.invalidator.InvalidateAll(ctx); err != nil {
		s.logger.Error("invalidate all", slog.Any("error", err))
	}
}

package groups

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/aegis-iam/aegis/internal/authz"
	"github.com/aegis-iam/aegis/internal/shared"
)

// Service orchestrates group administration. Membership mutations invalidate
// the affected principal directly; group-role mutations fan out to every
// member of the group.
type Service struct {
	repo        Repository
	invalidator authz.Invalidator
	logger      *slog.Logger
}

// NewService constructs a Service.
func NewService(repo Repository, invalidator authz.Invalidator, logger *slog.Logger) *Service {
	return &Service{repo: repo, invalidator: invalidator, logger: logger}
}

// ListGroups returns all groups ordered by name.
func (s *Service) ListGroups(ctx context.Context) ([]Group, error) {
	return s.repo.ListGroups(ctx)
}

// GetGroup fetches a group by ID.
func (s *Service) GetGroup(ctx context.Context, id int64) (Group, error) {
	return s.repo.GetGroup(ctx, id)
}

// CreateGroup inserts a new group.
func (s *Service) CreateGroup(ctx context.Context, name, kind string) (Group, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Group{}, errors.New("groups: group name required")
	}
	return s.repo.CreateGroup(ctx, name, strings.TrimSpace(kind))
}

// UpdateGroup updates an existing group.
func (s *Service) UpdateGroup(ctx context.Context, id int64, name, kind string) (Group, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Group{}, errors.New("groups: group name required")
	}
	return s.repo.UpdateGroup(ctx, id, name, strings.TrimSpace(kind))
}

// DeleteGroup removes a group. Membership edges cascade in the database, so
// the member set must be captured before the delete: a queued fan-out running
// after the cascade would find no members and invalidate nobody. The captured
// principals are invalidated inline once the delete lands; if the member set
// could not be read, the whole cache is flushed instead.
func (s *Service) DeleteGroup(ctx context.Context, id int64) error {
	members, membersErr := s.repo.ListMembers(ctx, id)
	rows, err := s.repo.DeleteGroup(ctx, id)
	if err != nil {
		return err
	}
	if rows == 0 {
		return shared.ErrNotFound
	}
	if membersErr != nil {
		s.logger.Warn("group member set unavailable, invalidating all", slog.Int64("group", id), slog.Any("error", membersErr))
		s.invalidateAll(ctx)
		return nil
	}
	ids := make([]int64, 0, len(members))
	for _, m := range members {
		ids = append(ids, m.UserID)
	}
	s.invalidatePrincipals(ctx, ids)
	return nil
}

// ListMembers returns the members of a group.
func (s *Service) ListMembers(ctx context.Context, groupID int64) ([]Member, error) {
	if _, err := s.repo.GetGroup(ctx, groupID); err != nil {
		return nil, err
	}
	return s.repo.ListMembers(ctx, groupID)
}

// AddMember adds a user to a group and invalidates that principal: the user
// gains every role the group holds.
func (s *Service) AddMember(ctx context.Context, groupID, userID int64) error {
	if _, err := s.repo.GetGroup(ctx, groupID); err != nil {
		return err
	}
	if err := s.repo.AddMember(ctx, groupID, userID); err != nil {
		return err
	}
	s.invalidatePrincipal(ctx, userID)
	return nil
}

// RemoveMember removes a user from a group and invalidates that principal.
func (s *Service) RemoveMember(ctx context.Context, groupID, userID int64) error {
	if err := s.repo.RemoveMember(ctx, groupID, userID); err != nil {
		return err
	}
	s.invalidatePrincipal(ctx, userID)
	return nil
}

// AttachRole binds a role to the group; every member's effective set changes,
// so the member set is invalidated.
func (s *Service) AttachRole(ctx context.Context, groupID, roleID int64) error {
	if _, err := s.repo.GetGroup(ctx, groupID); err != nil {
		return err
	}
	if err := s.repo.AttachRole(ctx, groupID, roleID); err != nil {
		return err
	}
	s.invalidateMembers(ctx, groupID)
	return nil
}

// DetachRole unbinds a role from the group and invalidates the members.
func (s *Service) DetachRole(ctx context.Context, groupID, roleID int64) error {
	if err := s.repo.DetachRole(ctx, groupID, roleID); err != nil {
		return err
	}
	s.invalidateMembers(ctx, groupID)
	return nil
}

// ListGroupRoleIDs returns role IDs held by the group.
func (s *Service) ListGroupRoleIDs(ctx context.Context, groupID int64) ([]int64, error) {
	if _, err := s.repo.GetGroup(ctx, groupID); err != nil {
		return nil, err
	}
	return s.repo.ListGroupRoleIDs(ctx, groupID)
}

func (s *Service) invalidateMembers(ctx context.Context, groupID int64) {
	if s.invalidator == nil {
		return
	}
	if err := s.invalidator.InvalidateGroupMembers(ctx, groupID); err != nil {
		s.logger.Warn("invalidate group members", slog.Int64("group", groupID), slog.Any("error", err))
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

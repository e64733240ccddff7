package users

import (
	"context"
	"log/slog"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/aegis-iam/aegis/internal/authz"
	"github.com/aegis-iam/aegis/internal/shared"
)

// Service orchestrates user administration.
type Service struct {
	repo        Repository
	invalidator authz.Invalidator
	logger      *slog.Logger
}

// NewService constructs a Service.
func NewService(repo Repository, invalidator authz.Invalidator, logger *slog.Logger) *Service {
	return &Service{repo: repo, invalidator: invalidator, logger: logger}
}

// ListUsers returns all users.
func (s *Service) ListUsers(ctx context.Context) ([]User, error) {
	return s.repo.ListUsers(ctx)
}

// GetUser fetches a user by ID.
func (s *Service) GetUser(ctx context.Context, id int64) (User, error) {
	return s.repo.GetUser(ctx, id)
}

// CreateUser inserts a new active user with a bcrypt password hash.
func (s *Service) CreateUser(ctx context.Context, email, name, password string) (User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return User{}, err
	}
	email = strings.ToLower(strings.TrimSpace(email))
	return s.repo.CreateUser(ctx, email, strings.TrimSpace(name), string(hash))
}

// UpdateUser updates name and active flag. Deactivation invalidates the
// principal's cached permissions; the session layer refuses inactive users on
// the next login, and a stale cache entry must not outlive that.
func (s *Service) UpdateUser(ctx context.Context, id int64, name string, isActive bool) (User, error) {
	u, err := s.repo.UpdateUser(ctx, id, strings.TrimSpace(name), isActive)
	if err != nil {
		return User{}, err
	}
	if !isActive {
		s.invalidatePrincipal(ctx, id)
	}
	return u, nil
}

// DeleteUser removes a user; edge rows cascade. The cache entry is
// invalidated so the principal cannot coast on a stale set for the TTL.
func (s *Service) DeleteUser(ctx context.Context, id int64) error {
	rows, err := s.repo.DeleteUser(ctx, id)
	if err != nil {
		return err
	}
	if rows == 0 {
		return shared.ErrNotFound
	}
	s.invalidatePrincipal(ctx, id)
	return nil
}

func (s *Service) invalidatePrincipal(ctx context.Context, userID int64) {
	if s.invalidator == nil {
		return
	}
	if err := s.invalidator.InvalidatePrincipal(ctx, userID); err != nil {
		s.logger.Warn("invalidate principal", slog.Int64("user", userID), slog.Any("error", err))
	}
}

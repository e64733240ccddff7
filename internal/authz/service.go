package authz

import (
	"context"
	"log/slog"
)

// Invalidator is issued by administrative mutations over the membership
// graph. Implementations compute the set of principals whose effective
// permissions may have changed; when that set cannot be computed cheaply they
// invalidate the entire cache instead. All methods are idempotent.
type Invalidator interface {
	InvalidatePrincipal(ctx context.Context, principalID int64) error
	InvalidateRoleHolders(ctx context.Context, roleID int64) error
	InvalidateGroupMembers(ctx context.Context, groupID int64) error
	InvalidateAll(ctx context.Context) error
}

// Service answers permission lookups cache-first with graph fallback. A cache
// outage degrades to direct resolution; only a resolution-source failure
// propagates, so the gate fails closed on the graph but not on the cache.
type Service struct {
	resolver *Resolver
	cache    *Cache
	logger   *slog.Logger
}

// NewService constructs the Service.
func NewService(resolver *Resolver, cache *Cache, logger *slog.Logger) *Service {
	return &Service{resolver: resolver, cache: cache, logger: logger}
}

// EffectivePermissions returns the principal's effective permission set,
// consulting the cache before traversing the membership graph.
func (s *Service) EffectivePermissions(ctx context.Context, principalID int64) (PermissionSet, error) {
	if s.cache != nil {
		set, hit, err := s.cache.Get(ctx, principalID)
		if err != nil {
			s.logger.Warn("authz cache read degraded", slog.Int64("principal", principalID), slog.Any("error", err))
		} else if hit {
			return set, nil
		}
	}

	set, err := s.resolver.Resolve(ctx, principalID)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, principalID, set); err != nil {
			s.logger.Warn("authz cache write degraded", slog.Int64("principal", principalID), slog.Any("error", err))
		}
	}
	return set, nil
}

package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/aegis-iam/aegis/internal/authz"
)

// FanoutStore answers "which principals are reachable through this edge";
// satisfied by the membership graph store.
type FanoutStore interface {
	HoldersOfRole(ctx context.Context, roleID int64) ([]int64, error)
	MembersOfGroup(ctx context.Context, groupID int64) ([]int64, error)
}

// InvalidationHandler processes fan-out tasks. When the target principal set
// cannot be computed it invalidates the entire cache: correctness over cache
// efficiency.
type InvalidationHandler struct {
	store  FanoutStore
	cache  *authz.Cache
	logger *slog.Logger
}

// NewInvalidationHandler constructs the handler.
func NewInvalidationHandler(store FanoutStore, cache *authz.Cache, logger *slog.Logger) *InvalidationHandler {
	return &InvalidationHandler{store: store, cache: cache, logger: logger}
}

// Handle processes one TaskInvalidateFanout task.
func (h *InvalidationHandler) Handle(ctx context.Context, t *asynq.Task) error {
	var payload InvalidateFanoutPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	var principals []int64
	var err error
	switch payload.Scope {
	case ScopeRole:
		principals, err = h.store.HoldersOfRole(ctx, payload.ID)
	case ScopeGroup:
		principals, err = h.store.MembersOfGroup(ctx, payload.ID)
	default:
		h.logger.Warn("unknown invalidation scope", slog.String("scope", payload.Scope))
		return asynq.SkipRetry
	}
	if err != nil {
		h.logger.Warn("fanout target set unavailable, invalidating all",
			slog.String("scope", payload.Scope), slog.Int64("id", payload.ID), slog.Any("error", err))
		return h.cache.InvalidateAll(ctx)
	}

	for _, principalID := range principals {
		if err := h.cache.Invalidate(ctx, principalID); err != nil {
			return err
		}
	}
	return nil
}

// Invalidator is the production authz.Invalidator: direct principal
// invalidations hit the cache synchronously, edge-scoped invalidations are
// fanned out through the queue. Any enqueue failure degrades to a full cache
// invalidation rather than leaving stale grants behind.
type Invalidator struct {
	client *Client
	cache  *authz.Cache
	logger *slog.Logger
}

var _ authz.Invalidator = (*Invalidator)(nil)

// NewInvalidator constructs the Invalidator.
func NewInvalidator(client *Client, cache *authz.Cache, logger *slog.Logger) *Invalidator {
	return &Invalidator{client: client, cache: cache, logger: logger}
}

// InvalidatePrincipal drops a single principal's cache entry.
func (i *Invalidator) InvalidatePrincipal(ctx context.Context, principalID int64) error {
	return i.cache.Invalidate(ctx, principalID)
}

// InvalidateRoleHolders fans out to every principal holding the role.
func (i *Invalidator) InvalidateRoleHolders(ctx context.Context, roleID int64) error {
	return i.enqueue(ctx, InvalidateFanoutPayload{Scope: ScopeRole, ID: roleID})
}

// InvalidateGroupMembers fans out to every member of the group.
func (i *Invalidator) InvalidateGroupMembers(ctx context.Context, groupID int64) error {
	return i.enqueue(ctx, InvalidateFanoutPayload{Scope: ScopeGroup, ID: groupID})
}

// InvalidateAll orphans every cached entry.
func (i *Invalidator) InvalidateAll(ctx context.Context) error {
	return i.cache.InvalidateAll(ctx)
}

func (i *Invalidator) enqueue(ctx context.Context, payload InvalidateFanoutPayload) error {
	if i.client == nil {
		return i.cache.InvalidateAll(ctx)
	}
	if _, err := i.client.EnqueueInvalidateFanout(ctx, payload); err != nil {
		i.logger.Warn("enqueue invalidation fanout failed, invalidating all",
			slog.String("scope", payload.Scope), slog.Int64("id", payload.ID), slog.Any("error", err))
		return i.cache.InvalidateAll(ctx)
	}
	return nil
}

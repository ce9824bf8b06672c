package authz

import (
	"context"
	"log/slog"
)

// Fanout propagates invalidation events to other service instances, e.g. by
// enqueueing a background task. Implementations must not block for long;
// failures are logged and ignored.
type Fanout interface {
	EnqueueInvalidation(ctx context.Context, kind, value string) error
}

// Fanout event kinds.
const (
	InvalidateKindUser     = "user"
	InvalidateKindResource = "resource"
	InvalidateKindAll      = "all"
)

// Invalidator translates domain lifecycle events into cache operations. It
// holds no state beyond its references; the local cache work is cheap map
// deletes, so handlers run synchronously and never fail the triggering
// business operation.
type Invalidator struct {
	service *Service
	fanout  Fanout
	logger  *slog.Logger
}

// NewInvalidator constructs an Invalidator. fanout may be nil for
// single-instance deployments.
func NewInvalidator(service *Service, fanout Fanout, logger *slog.Logger) *Invalidator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Invalidator{service: service, fanout: fanout, logger: logger}
}

// OnUserRoleChange purges the user's cached decisions after a role change
// has been persisted.
func (i *Invalidator) OnUserRoleChange(ctx context.Context, userID string, oldRole, newRole Role) {
	i.service.InvalidateUserCache(ctx, userID)
	i.logger.Info("authz cache invalidated on role change",
		slog.String("user_id", userID),
		slog.String("old_role", string(oldRole)),
		slog.String("new_role", string(newRole)))
	i.propagate(ctx, InvalidateKindUser, userID)
}

// OnPermissionUpdate purges cached decisions for a resource after its
// permission definition changed.
func (i *Invalidator) OnPermissionUpdate(ctx context.Context, resource string) {
	i.service.InvalidateResourceCache(ctx, resource)
	i.logger.Info("authz cache invalidated on permission update", slog.String("resource", resource))
	i.propagate(ctx, InvalidateKindResource, resource)
}

// OnUserDeactivation purges the user's cached decisions after deactivation.
func (i *Invalidator) OnUserDeactivation(ctx context.Context, userID string) {
	i.service.InvalidateUserCache(ctx, userID)
	i.logger.Info("authz cache invalidated on deactivation", slog.String("user_id", userID))
	i.propagate(ctx, InvalidateKindUser, userID)
}

// Apply executes a fanned-out invalidation event on this instance.
func (i *Invalidator) Apply(ctx context.Context, kind, value string) {
	switch kind {
	case InvalidateKindUser:
		i.service.InvalidateUserCache(ctx, value)
	case InvalidateKindResource:
		i.service.InvalidateResourceCache(ctx, value)
	case InvalidateKindAll:
		i.service.ClearCache(ctx)
	default:
		i.logger.Warn("authz unknown invalidation kind", slog.String("kind", kind))
	}
}

// CleanupExpiredEntries sweeps TTL-expired entries out of the local cache.
// Purely a memory optimization; Get already treats expired entries as
// misses.
func (i *Invalidator) CleanupExpiredEntries(ctx context.Context) int {
	removed := i.service.SweepExpired()
	if removed > 0 {
		i.logger.Debug("authz cache sweep", slog.Int("removed", removed))
	}
	return removed
}

func (i *Invalidator) propagate(ctx context.Context, kind, value string) {
	if i.fanout == nil {
		return
	}
	if err := i.fanout.EnqueueInvalidation(ctx, kind, value); err != nil {
		i.logger.Warn("authz invalidation fanout", slog.Any("error", err))
	}
}

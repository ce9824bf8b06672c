package authz

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"
)

// MetricsRecorder receives cache and denial events. Implementations must be
// safe for concurrent use; a nil recorder disables instrumentation.
type MetricsRecorder interface {
	AuthzCacheHit()
	AuthzCacheMiss()
	AuthzDenied(resource string)
}

// Options configures a Service.
type Options struct {
	// Table defaults to DefaultTable when nil.
	Table *Table
	// Routes defaults to DefaultRouteTable when nil.
	Routes *RouteTable
	// TTL is the decision cache entry lifetime, DefaultCacheTTL when zero.
	TTL time.Duration
	// MaxCacheSize bounds the local cache with LRU eviction; zero keeps the
	// unbounded map.
	MaxCacheSize int
	// Mirror enables the distributed tier when non-nil.
	Mirror *RedisMirror
	Logger *slog.Logger
	// Metrics is optional.
	Metrics MetricsRecorder
}

// Service is the permission engine facade: it consults the cache, falls
// through to the matcher on a miss and writes the result back. One instance
// per process, injected into consumers; all methods are safe for concurrent
// use.
type Service struct {
	table   *Table
	routes  *RouteTable
	matcher *Matcher
	local   DecisionCache
	mirror  *RedisMirror
	group   singleflight.Group
	logger  *slog.Logger
	metrics MetricsRecorder
	ttl     time.Duration
	maxSize int
}

// NewService constructs the permission service.
func NewService(opts Options) *Service {
	table := opts.Table
	if table == nil {
		table = DefaultTable()
	}
	routes := opts.Routes
	if routes == nil {
		routes = DefaultRouteTable()
	}
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	var local DecisionCache
	if opts.MaxCacheSize > 0 {
		local = NewBoundedCache(opts.MaxCacheSize, ttl)
	} else {
		local = NewMemoryCache(ttl)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		table:   table,
		routes:  routes,
		matcher: NewMatcher(table),
		local:   local,
		mirror:  opts.Mirror,
		logger:  logger,
		metrics: opts.Metrics,
		ttl:     ttl,
		maxSize: opts.MaxCacheSize,
	}
}

// Table exposes the role-permission table for listings.
func (s *Service) Table() *Table {
	return s.table
}

// Routes exposes the route permission table.
func (s *Service) Routes() *RouteTable {
	return s.routes
}

// HasPermission decides whether the user holds the permission, consulting
// the caches before the matcher. Nil and inactive users deny without
// touching the cache. Only the distributed tier can block; ctx cancellation
// aborts it and the decision falls through to the local matcher.
func (s *Service) HasPermission(ctx context.Context, user *User, perm Permission) bool {
	if user == nil || !user.IsActive {
		s.recordDenied(perm.Resource)
		return false
	}
	key := CacheKey(user.ID, perm.Resource, perm.Action, perm.Scope)
	if allowed, found := s.local.Get(key); found {
		s.recordHit()
		if !allowed {
			s.recordDenied(perm.Resource)
		}
		return allowed
	}
	if s.mirror != nil {
		if allowed, found := s.mirrorGet(ctx, key); found {
			s.recordHit()
			s.local.Set(key, allowed)
			if !allowed {
				s.recordDenied(perm.Resource)
			}
			return allowed
		}
	}
	s.recordMiss()
	allowed := s.matcher.Evaluate(user, perm)
	s.local.Set(key, allowed)
	if s.mirror != nil {
		s.mirror.Set(ctx, key, allowed)
	}
	if !allowed {
		s.recordDenied(perm.Resource)
	}
	return allowed
}

// mirrorGet collapses concurrent lookups for the same key into a single
// Redis round trip and honors ctx cancellation while waiting.
func (s *Service) mirrorGet(ctx context.Context, key string) (bool, bool) {
	type result struct {
		allowed bool
		found   bool
	}
	ch := s.group.DoChan(key, func() (any, error) {
		allowed, found := s.mirror.Get(ctx, key)
		return result{allowed: allowed, found: found}, nil
	})
	select {
	case <-ctx.Done():
		return false, false
	case res := <-ch:
		r, ok := res.Val.(result)
		if !ok {
			return false, false
		}
		return r.allowed, r.found
	}
}

// HasResourceAccess is a convenience wrapper building the Permission value.
func (s *Service) HasResourceAccess(ctx context.Context, user *User, resource string, action Action, scope Scope) bool {
	return s.HasPermission(ctx, user, Permission{Resource: resource, Action: action, Scope: scope})
}

// CanAccessRoute resolves the route's required permissions and checks them.
// Public routes always pass. Routes with no configured permissions require
// only an authenticated, active user. The rule's RequireAll flag selects ALL
// semantics; the default is ANY.
func (s *Service) CanAccessRoute(ctx context.Context, user *User, path, method string) bool {
	if s.routes.IsPublicRoute(path) {
		return true
	}
	if user == nil || !user.IsActive {
		return false
	}
	perms, requireAll := s.routes.Resolve(path, method)
	if len(perms) == 0 {
		return true
	}
	if requireAll {
		for _, p := range perms {
			if !s.HasPermission(ctx, user, p) {
				return false
			}
		}
		return true
	}
	for _, p := range perms {
		if s.HasPermission(ctx, user, p) {
			return true
		}
	}
	return false
}

// IsAdmin reports whether the user holds the ADMIN role.
func (s *Service) IsAdmin(user *User) bool {
	return HasMinimumRole(user, RoleAdmin)
}

// IsEditor reports whether the user holds at least the EDITOR role.
func (s *Service) IsEditor(user *User) bool {
	return HasMinimumRole(user, RoleEditor)
}

// IsViewer reports whether the user holds any authenticated role.
func (s *Service) IsViewer(user *User) bool {
	return HasMinimumRole(user, RoleViewer)
}

// CanManageUser reports whether the actor outranks the target in the role
// hierarchy. Equal roles never manage each other.
func (s *Service) CanManageUser(actor, target *User) bool {
	if actor == nil || !actor.IsActive || target == nil {
		return false
	}
	return actor.Role.Level() > target.Role.Level()
}

// CanDeleteUser layers the self-modification guard over the generic check: a
// user never deletes their own account, regardless of grants.
func (s *Service) CanDeleteUser(ctx context.Context, actor *User, targetID string) bool {
	if actor == nil || actor.ID == targetID {
		return false
	}
	return s.HasResourceAccess(ctx, actor, "users", ActionDelete, ScopeAny)
}

// CanChangeUserRole applies the same self guard to role changes, so an admin
// cannot demote themselves out of the admin role.
func (s *Service) CanChangeUserRole(ctx context.Context, actor *User, targetID string) bool {
	if actor == nil || actor.ID == targetID {
		return false
	}
	return s.HasResourceAccess(ctx, actor, "users", ActionUpdate, ScopeAny)
}

// FilterByPermissions returns the items whose resource the user may act on,
// preserving input order. The item count is assumed small (UI listings), so
// the filter runs sequentially.
func FilterByPermissions[T any](ctx context.Context, s *Service, user *User, items []T, resource func(T) string, action Action) []T {
	out := make([]T, 0, len(items))
	for _, item := range items {
		if s.HasResourceAccess(ctx, user, resource(item), action, ScopeAny) {
			out = append(out, item)
		}
	}
	return out
}

// DenyReason builds a human-readable explanation for logs. It is advisory
// only; callers treat every denial uniformly.
func (s *Service) DenyReason(user *User, perm Permission) string {
	switch {
	case user == nil:
		return "no authenticated user"
	case !user.IsActive:
		return "user account is inactive"
	case !user.Role.Valid():
		return fmt.Sprintf("unrecognized role %q", user.Role)
	}
	for _, role := range []Role{RoleViewer, RoleEditor, RoleAdmin} {
		probe := &User{ID: user.ID, Role: role, IsActive: true}
		if s.matcher.Evaluate(probe, perm) {
			return fmt.Sprintf("required role: %s, current role: %s", role, user.Role)
		}
	}
	return fmt.Sprintf("permission %s is not granted to any role", perm)
}

// InvalidateUserCache drops every cached decision for the user, in both
// tiers.
func (s *Service) InvalidateUserCache(ctx context.Context, userID string) {
	s.local.InvalidateUser(userID)
	if s.mirror != nil {
		s.mirror.DeleteUser(ctx, userID)
	}
}

// InvalidateResourceCache drops cached decisions for the resource across all
// users.
func (s *Service) InvalidateResourceCache(ctx context.Context, resource string) {
	s.local.InvalidateResource(resource)
	if s.mirror != nil {
		s.mirror.DeleteResource(ctx, resource)
	}
}

// ClearCache drops all cached decisions.
func (s *Service) ClearCache(ctx context.Context) {
	s.local.Clear()
	if s.mirror != nil {
		s.mirror.Clear(ctx)
	}
}

// SweepExpired removes TTL-expired local entries and reports the count.
func (s *Service) SweepExpired() int {
	return s.local.Sweep()
}

// Stats describes the cache state.
type Stats struct {
	Size        int           `json:"size"`
	TTL         time.Duration `json:"ttl"`
	MaxSize     int           `json:"max_size,omitempty"`
	Distributed bool          `json:"distributed"`
}

// Stats reports current cache statistics.
func (s *Service) Stats() Stats {
	return Stats{
		Size:        s.local.Len(),
		TTL:         s.ttl,
		MaxSize:     s.maxSize,
		Distributed: s.mirror != nil,
	}
}

func (s *Service) recordHit() {
	if s.metrics != nil {
		s.metrics.AuthzCacheHit()
	}
}

func (s *Service) recordMiss() {
	if s.metrics != nil {
		s.metrics.AuthzCacheMiss()
	}
}

func (s *Service) recordDenied(resource string) {
	if s.metrics != nil {
		s.metrics.AuthzDenied(resource)
	}
}

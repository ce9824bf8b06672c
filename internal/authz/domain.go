// Package authz implements the role-based authorization engine: a static
// role-permission table, a pure permission matcher, a TTL decision cache with
// an optional Redis mirror, a route-to-permission resolver and the cache
// invalidation hooks the rest of the application calls into.
package authz

import (
	"errors"
	"fmt"
	"strings"
)

// Role classifies a user account. Roles form a strict hierarchy:
// ADMIN > EDITOR > VIEWER.
type Role string

const (
	RoleAdmin  Role = "ADMIN"
	RoleEditor Role = "EDITOR"
	RoleViewer Role = "VIEWER"
)

// Level returns the hierarchy rank of the role. Unknown roles rank zero and
// therefore never satisfy a minimum-role check.
func (r Role) Level() int {
	switch r {
	case RoleAdmin:
		return 3
	case RoleEditor:
		return 2
	case RoleViewer:
		return 1
	default:
		return 0
	}
}

// Valid reports whether the role is one of the known members.
func (r Role) Valid() bool {
	return r.Level() > 0
}

// Action names an operation on a resource. ActionManage subsumes the four
// CRUD actions.
type Action string

const (
	ActionCreate Action = "create"
	ActionRead   Action = "read"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
	ActionManage Action = "manage"
)

// Scope narrows a permission to the acting user's own records versus all
// records. ScopeAny (the zero value) means the grant or request carries no
// scope qualifier.
type Scope string

const (
	ScopeAny Scope = ""
	ScopeOwn Scope = "own"
	ScopeAll Scope = "all"
)

// ResourceAll is the wildcard resource. Combined with ActionManage it forms
// the superuser grant.
const ResourceAll = "*"

// Permission is a (resource, action, scope) triple.
type Permission struct {
	Resource string `json:"resource"`
	Action   Action `json:"action"`
	Scope    Scope  `json:"scope,omitempty"`
}

// ErrInvalidPermission flags a malformed permission value. It indicates a
// programming or configuration error and is only surfaced at startup; the
// request-time check paths never return it.
var ErrInvalidPermission = errors.New("authz: invalid permission")

// Validate rejects permissions with an empty resource or action, or an
// unknown action or scope.
func (p Permission) Validate() error {
	if strings.TrimSpace(p.Resource) == "" {
		return fmt.Errorf("%w: empty resource", ErrInvalidPermission)
	}
	switch p.Action {
	case ActionCreate, ActionRead, ActionUpdate, ActionDelete, ActionManage:
	default:
		return fmt.Errorf("%w: unknown action %q", ErrInvalidPermission, p.Action)
	}
	switch p.Scope {
	case ScopeAny, ScopeOwn, ScopeAll:
	default:
		return fmt.Errorf("%w: unknown scope %q", ErrInvalidPermission, p.Scope)
	}
	return nil
}

func (p Permission) String() string {
	if p.Scope == ScopeAny {
		return p.Resource + ":" + string(p.Action)
	}
	return p.Resource + ":" + string(p.Action) + ":" + string(p.Scope)
}

// User is the identity the engine decides for. It is supplied by the
// authentication subsystem per call and never mutated here.
type User struct {
	ID       string
	Role     Role
	IsActive bool
}

// HasMinimumRole reports whether the user holds at least the given role in
// the hierarchy. Nil and inactive users rank below every role.
func HasMinimumRole(user *User, min Role) bool {
	if user == nil || !user.IsActive {
		return false
	}
	return user.Role.Level() >= min.Level() && min.Valid()
}

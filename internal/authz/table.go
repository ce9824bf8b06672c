package authz

import "fmt"

// RolePermissions maps a role to the permissions it is granted.
type RolePermissions map[Role][]Permission

// Table is the validated, immutable role-permission table. It is built once
// at startup and shared read-only between requests, so no locking is needed.
type Table struct {
	grants RolePermissions
}

// NewTable validates the configured grants and freezes them into a Table.
// Configuration errors surface here, at startup, not at request time.
func NewTable(grants RolePermissions) (*Table, error) {
	frozen := make(RolePermissions, len(grants))
	for role, perms := range grants {
		if !role.Valid() {
			return nil, fmt.Errorf("authz: unknown role %q in permission table", role)
		}
		list := make([]Permission, len(perms))
		for i, p := range perms {
			if err := p.Validate(); err != nil {
				return nil, fmt.Errorf("authz: role %s grant %d: %w", role, i, err)
			}
			list[i] = p
		}
		frozen[role] = list
	}
	return &Table{grants: frozen}, nil
}

// MustNewTable is NewTable for compiled-in configuration.
func MustNewTable(grants RolePermissions) *Table {
	t, err := NewTable(grants)
	if err != nil {
		panic(err)
	}
	return t
}

// Grants returns a copy of the permissions granted to the role, in
// declaration order. The copy keeps callers from aliasing internal state.
func (t *Table) Grants(role Role) []Permission {
	perms, ok := t.grants[role]
	if !ok {
		return nil
	}
	out := make([]Permission, len(perms))
	copy(out, perms)
	return out
}

func (t *Table) grantsFor(role Role) []Permission {
	return t.grants[role]
}

// Roles returns the roles present in the table ordered by descending
// hierarchy level, for stable listings.
func (t *Table) Roles() []Role {
	all := []Role{RoleAdmin, RoleEditor, RoleViewer}
	out := make([]Role, 0, len(all))
	for _, r := range all {
		if _, ok := t.grants[r]; ok {
			out = append(out, r)
		}
	}
	return out
}

// DefaultTable returns the standard CMS role-permission table: admins hold
// the superuser wildcard, editors manage content resources, viewers read
// published content and manage their own profile.
func DefaultTable() *Table {
	return MustNewTable(RolePermissions{
		RoleAdmin: {
			{Resource: ResourceAll, Action: ActionManage, Scope: ScopeAll},
		},
		RoleEditor: {
			{Resource: "products", Action: ActionManage, Scope: ScopeAll},
			{Resource: "categories", Action: ActionManage, Scope: ScopeAll},
			{Resource: "pages", Action: ActionManage, Scope: ScopeAll},
			{Resource: "media", Action: ActionManage, Scope: ScopeAll},
			{Resource: "analytics", Action: ActionRead, Scope: ScopeAll},
			{Resource: "profile", Action: ActionManage, Scope: ScopeOwn},
		},
		RoleViewer: {
			{Resource: "products", Action: ActionRead, Scope: ScopeAll},
			{Resource: "categories", Action: ActionRead, Scope: ScopeAll},
			{Resource: "pages", Action: ActionRead, Scope: ScopeAll},
			{Resource: "media", Action: ActionRead, Scope: ScopeAll},
			{Resource: "profile", Action: ActionManage, Scope: ScopeOwn},
		},
	})
}

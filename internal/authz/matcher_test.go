package authz

import "testing"

func testTable(t *testing.T) *Table {
	t.Helper()
	table, err := NewTable(RolePermissions{
		RoleAdmin: {
			{Resource: ResourceAll, Action: ActionManage, Scope: ScopeAll},
		},
		RoleEditor: {
			{Resource: "products", Action: ActionManage, Scope: ScopeAll},
			{Resource: "pages", Action: ActionCreate, Scope: ScopeOwn},
			{Resource: "profile", Action: ActionManage, Scope: ScopeOwn},
		},
		RoleViewer: {
			{Resource: "products", Action: ActionRead, Scope: ScopeAll},
			{Resource: "profile", Action: ActionManage, Scope: ScopeOwn},
		},
	})
	if err != nil {
		t.Fatalf("build table: %v", err)
	}
	return table
}

func activeUser(role Role) *User {
	return &User{ID: "u-" + string(role), Role: role, IsActive: true}
}

func TestEvaluateDenyByDefault(t *testing.T) {
	m := NewMatcher(testTable(t))
	perm := Permission{Resource: "products", Action: ActionRead}

	if m.Evaluate(nil, perm) {
		t.Fatal("nil user must be denied")
	}
	inactive := &User{ID: "u1", Role: RoleAdmin, IsActive: false}
	if m.Evaluate(inactive, perm) {
		t.Fatal("inactive user must be denied")
	}
	unknown := &User{ID: "u2", Role: Role("GUEST"), IsActive: true}
	if m.Evaluate(unknown, perm) {
		t.Fatal("unknown role must be denied")
	}
}

func TestEvaluateAdminSuperuser(t *testing.T) {
	m := NewMatcher(testTable(t))
	admin := activeUser(RoleAdmin)

	for _, resource := range []string{"products", "users", "settings", "anything"} {
		for _, action := range []Action{ActionCreate, ActionRead, ActionUpdate, ActionDelete, ActionManage} {
			if !m.Evaluate(admin, Permission{Resource: resource, Action: action}) {
				t.Fatalf("admin denied %s:%s", resource, action)
			}
		}
	}
}

func TestEvaluateManageSubsumesActions(t *testing.T) {
	m := NewMatcher(testTable(t))
	editor := activeUser(RoleEditor)

	for _, action := range []Action{ActionCreate, ActionRead, ActionUpdate, ActionDelete} {
		if !m.Evaluate(editor, Permission{Resource: "products", Action: action}) {
			t.Fatalf("manage grant did not cover products:%s", action)
		}
	}
	if m.Evaluate(editor, Permission{Resource: "users", Action: ActionRead}) {
		t.Fatal("editor must not read users")
	}
}

func TestEvaluateActionMustMatchExactly(t *testing.T) {
	m := NewMatcher(testTable(t))
	viewer := activeUser(RoleViewer)

	if !m.Evaluate(viewer, Permission{Resource: "products", Action: ActionRead}) {
		t.Fatal("viewer read denied")
	}
	if m.Evaluate(viewer, Permission{Resource: "products", Action: ActionDelete}) {
		t.Fatal("read grant must not cover delete")
	}
	// A specific action never implies the manage aggregate.
	if m.Evaluate(viewer, Permission{Resource: "products", Action: ActionManage}) {
		t.Fatal("read grant must not cover manage")
	}
}

func TestEvaluateScopeResolution(t *testing.T) {
	m := NewMatcher(testTable(t))
	editor := activeUser(RoleEditor)
	viewer := activeUser(RoleViewer)

	// Granted "all" satisfies any requested scope.
	if !m.Evaluate(editor, Permission{Resource: "products", Action: ActionRead, Scope: ScopeOwn}) {
		t.Fatal("all grant must satisfy own request")
	}
	if !m.Evaluate(editor, Permission{Resource: "products", Action: ActionRead, Scope: ScopeAll}) {
		t.Fatal("all grant must satisfy all request")
	}
	// Granted "own" is asymmetric: it never satisfies "all".
	if !m.Evaluate(editor, Permission{Resource: "pages", Action: ActionCreate, Scope: ScopeOwn}) {
		t.Fatal("own grant must satisfy own request")
	}
	if m.Evaluate(editor, Permission{Resource: "pages", Action: ActionCreate, Scope: ScopeAll}) {
		t.Fatal("own grant must not satisfy all request")
	}
	// Unscoped request matches regardless of the granted scope.
	if !m.Evaluate(viewer, Permission{Resource: "profile", Action: ActionUpdate}) {
		t.Fatal("unscoped request must match own-scoped grant")
	}
}

func TestEvaluateWildcardResourceSpecificAction(t *testing.T) {
	table, err := NewTable(RolePermissions{
		RoleViewer: {
			{Resource: ResourceAll, Action: ActionRead},
		},
	})
	if err != nil {
		t.Fatalf("build table: %v", err)
	}
	m := NewMatcher(table)
	viewer := activeUser(RoleViewer)

	// Wildcard resource with a specific action matches that action on every
	// resource, nothing more.
	if !m.Evaluate(viewer, Permission{Resource: "products", Action: ActionRead}) {
		t.Fatal("wildcard read must cover products:read")
	}
	if !m.Evaluate(viewer, Permission{Resource: "users", Action: ActionRead}) {
		t.Fatal("wildcard read must cover users:read")
	}
	if m.Evaluate(viewer, Permission{Resource: "products", Action: ActionDelete}) {
		t.Fatal("wildcard read must not cover delete")
	}
}

func TestEvaluateDeterministic(t *testing.T) {
	m := NewMatcher(testTable(t))
	editor := activeUser(RoleEditor)
	perm := Permission{Resource: "products", Action: ActionUpdate, Scope: ScopeAll}

	first := m.Evaluate(editor, perm)
	for i := 0; i < 100; i++ {
		if m.Evaluate(editor, perm) != first {
			t.Fatal("evaluation must be deterministic")
		}
	}
}

func TestNewTableRejectsBadConfig(t *testing.T) {
	if _, err := NewTable(RolePermissions{RoleAdmin: {{Resource: "", Action: ActionRead}}}); err == nil {
		t.Fatal("empty resource must fail")
	}
	if _, err := NewTable(RolePermissions{RoleAdmin: {{Resource: "products", Action: Action("fly")}}}); err == nil {
		t.Fatal("unknown action must fail")
	}
	if _, err := NewTable(RolePermissions{Role("GUEST"): {{Resource: "products", Action: ActionRead}}}); err == nil {
		t.Fatal("unknown role must fail")
	}
}

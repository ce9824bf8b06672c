package users

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/terojleinonen/cms-admin/internal/authz"
	"github.com/terojleinonen/cms-admin/internal/platform/httpx"
	"github.com/terojleinonen/cms-admin/internal/shared"
)

type stubRepo struct {
	users  map[string]*User
	hashes map[string]string
}

func newStubRepo() *stubRepo {
	return &stubRepo{users: map[string]*User{}, hashes: map[string]string{}}
}

func (r *stubRepo) List(context.Context) ([]User, error) {
	out := make([]User, 0, len(r.users))
	for _, u := range r.users {
		out = append(out, *u)
	}
	return out, nil
}

func (r *stubRepo) Get(_ context.Context, id string) (*User, error) {
	u, ok := r.users[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (r *stubRepo) Create(_ context.Context, user User, passwordHash string) error {
	for _, existing := range r.users {
		if existing.Email == user.Email {
			return shared.ErrDuplicateEmail
		}
	}
	r.users[user.ID] = &user
	r.hashes[user.ID] = passwordHash
	return nil
}

func (r *stubRepo) UpdateRole(_ context.Context, id string, role authz.Role) error {
	u, ok := r.users[id]
	if !ok {
		return shared.ErrNotFound
	}
	u.Role = role
	return nil
}

func (r *stubRepo) SetActive(_ context.Context, id string, active bool) error {
	u, ok := r.users[id]
	if !ok {
		return shared.ErrNotFound
	}
	u.IsActive = active
	return nil
}

func (r *stubRepo) Delete(_ context.Context, id string) error {
	if _, ok := r.users[id]; !ok {
		return shared.ErrNotFound
	}
	delete(r.users, id)
	return nil
}

func newTestService(t *testing.T) (*Service, *stubRepo, *authz.Service) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	perms := authz.NewService(authz.Options{Logger: logger})
	inv := authz.NewInvalidator(perms, nil, logger)
	repo := newStubRepo()
	return NewService(repo, perms, inv, logger), repo, perms
}

func adminActor() *authz.User {
	return &authz.User{ID: "admin-1", Role: authz.RoleAdmin, IsActive: true}
}

func TestCreateHashesPasswordAndNormalizesEmail(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()

	user, err := svc.Create(ctx, "  Editor@Example.COM ", " Erin Editor ", "s3cret-pw", authz.RoleEditor)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if user.Email != "editor@example.com" {
		t.Fatalf("email = %q, want lowercase trimmed", user.Email)
	}
	if user.Name != "Erin Editor" {
		t.Fatalf("name = %q", user.Name)
	}
	if !user.IsActive {
		t.Fatal("new users must start active")
	}
	hash := repo.hashes[user.ID]
	if hash == "s3cret-pw" {
		t.Fatal("password must not be stored in the clear")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte("s3cret-pw")); err != nil {
		t.Fatalf("stored hash does not verify: %v", err)
	}
}

func TestCreateRejectsUnknownRole(t *testing.T) {
	svc, _, _ := newTestService(t)

	if _, err := svc.Create(context.Background(), "x@example.com", "X", "pw", authz.Role("ROOT")); err == nil {
		t.Fatal("unknown role must fail")
	}
}

func TestCreateDuplicateEmail(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Create(ctx, "dup@example.com", "A", "pw", authz.RoleViewer); err != nil {
		t.Fatalf("first create: %v", err)
	}
	_, err := svc.Create(ctx, "dup@example.com", "B", "pw", authz.RoleViewer)
	if !errors.Is(err, shared.ErrDuplicateEmail) {
		t.Fatalf("got %v, want ErrDuplicateEmail", err)
	}
}

func TestChangeRoleInvalidatesCache(t *testing.T) {
	svc, repo, perms := newTestService(t)
	ctx := context.Background()
	repo.users["target-1"] = &User{ID: "target-1", Email: "t@example.com", Role: authz.RoleViewer, IsActive: true}

	// Warm the target's cache, then change their role.
	target := &authz.User{ID: "target-1", Role: authz.RoleViewer, IsActive: true}
	perms.HasResourceAccess(ctx, target, "products", authz.ActionRead, authz.ScopeAny)
	if perms.Stats().Size == 0 {
		t.Fatal("expected a warmed cache")
	}

	if err := svc.ChangeRole(ctx, adminActor(), "target-1", authz.RoleEditor); err != nil {
		t.Fatalf("change role: %v", err)
	}
	if repo.users["target-1"].Role != authz.RoleEditor {
		t.Fatal("role not persisted")
	}
	if perms.Stats().Size != 0 {
		t.Fatal("role change must purge the target's cached decisions")
	}
}

func TestChangeRoleSelfGuard(t *testing.T) {
	svc, repo, _ := newTestService(t)
	actor := adminActor()
	repo.users[actor.ID] = &User{ID: actor.ID, Role: authz.RoleAdmin, IsActive: true}

	err := svc.ChangeRole(context.Background(), actor, actor.ID, authz.RoleViewer)
	if !errors.Is(err, httpx.ErrForbidden) {
		t.Fatalf("got %v, want ErrForbidden", err)
	}
	if repo.users[actor.ID].Role != authz.RoleAdmin {
		t.Fatal("self demotion must not persist")
	}
}

func TestChangeRoleRequiresPermission(t *testing.T) {
	svc, repo, _ := newTestService(t)
	repo.users["target-1"] = &User{ID: "target-1", Role: authz.RoleViewer, IsActive: true}
	editor := &authz.User{ID: "editor-1", Role: authz.RoleEditor, IsActive: true}

	err := svc.ChangeRole(context.Background(), editor, "target-1", authz.RoleAdmin)
	if !errors.Is(err, httpx.ErrForbidden) {
		t.Fatalf("got %v, want ErrForbidden", err)
	}
}

func TestDeactivatePurgesCache(t *testing.T) {
	svc, repo, perms := newTestService(t)
	ctx := context.Background()
	repo.users["target-1"] = &User{ID: "target-1", Role: authz.RoleEditor, IsActive: true}

	target := &authz.User{ID: "target-1", Role: authz.RoleEditor, IsActive: true}
	perms.HasResourceAccess(ctx, target, "products", authz.ActionRead, authz.ScopeAny)

	if err := svc.Deactivate(ctx, adminActor(), "target-1"); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if repo.users["target-1"].IsActive {
		t.Fatal("deactivation not persisted")
	}
	if perms.Stats().Size != 0 {
		t.Fatal("deactivation must purge the target's cached decisions")
	}
}

func TestDeleteSelfGuard(t *testing.T) {
	svc, repo, _ := newTestService(t)
	actor := adminActor()
	repo.users[actor.ID] = &User{ID: actor.ID, Role: authz.RoleAdmin, IsActive: true}

	err := svc.Delete(context.Background(), actor, actor.ID)
	if !errors.Is(err, httpx.ErrForbidden) {
		t.Fatalf("got %v, want ErrForbidden", err)
	}
	if _, ok := repo.users[actor.ID]; !ok {
		t.Fatal("self delete must not persist")
	}
}

func TestDeleteNotFound(t *testing.T) {
	svc, _, _ := newTestService(t)

	err := svc.Delete(context.Background(), adminActor(), "missing")
	if !errors.Is(err, shared.ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}

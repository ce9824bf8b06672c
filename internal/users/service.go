package users

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/terojleinonen/cms-admin/internal/authz"
	"github.com/terojleinonen/cms-admin/internal/platform/httpx"
)

// Service handles user management business rules. Lifecycle changes that
// affect authorization (role change, deactivation, deletion) purge the
// permission cache through the invalidator once persisted.
type Service struct {
	repo        RepositoryPort
	permissions *authz.Service
	invalidator *authz.Invalidator
	logger      *slog.Logger
}

// NewService builds a Service instance.
func NewService(repo RepositoryPort, permissions *authz.Service, invalidator *authz.Invalidator, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, permissions: permissions, invalidator: invalidator, logger: logger}
}

// List returns all users.
func (s *Service) List(ctx context.Context) ([]User, error) {
	return s.repo.List(ctx)
}

// Get fetches a single user.
func (s *Service) Get(ctx context.Context, id string) (*User, error) {
	return s.repo.Get(ctx, id)
}

// Create registers a new account with a bcrypt password hash.
func (s *Service) Create(ctx context.Context, email, name, password string, role authz.Role) (*User, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if !role.Valid() {
		return nil, fmt.Errorf("users: unknown role %q", role)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("users: hash password: %w", err)
	}
	user := User{
		ID:       uuid.NewString(),
		Email:    email,
		Name:     strings.TrimSpace(name),
		Role:     role,
		IsActive: true,
	}
	if err := s.repo.Create(ctx, user, string(hash)); err != nil {
		return nil, err
	}
	s.logger.Info("user created", slog.String("user_id", user.ID), slog.String("role", string(role)))
	return &user, nil
}

// ChangeRole updates the target's role and invalidates their cached
// permission decisions. Actors may not change their own role.
func (s *Service) ChangeRole(ctx context.Context, actor *authz.User, targetID string, newRole authz.Role) error {
	if !newRole.Valid() {
		return fmt.Errorf("users: unknown role %q", newRole)
	}
	if !s.permissions.CanChangeUserRole(ctx, actor, targetID) {
		return httpx.ErrForbidden
	}
	target, err := s.repo.Get(ctx, targetID)
	if err != nil {
		return err
	}
	oldRole := target.Role
	if err := s.repo.UpdateRole(ctx, targetID, newRole); err != nil {
		return err
	}
	s.invalidator.OnUserRoleChange(ctx, targetID, oldRole, newRole)
	return nil
}

// Deactivate disables the account and purges its cached decisions, so the
// next check denies immediately.
func (s *Service) Deactivate(ctx context.Context, actor *authz.User, targetID string) error {
	if !s.permissions.HasResourceAccess(ctx, actor, "users", authz.ActionUpdate, authz.ScopeAny) {
		return httpx.ErrForbidden
	}
	if err := s.repo.SetActive(ctx, targetID, false); err != nil {
		return err
	}
	s.invalidator.OnUserDeactivation(ctx, targetID)
	return nil
}

// Delete removes the account. The permission service's self-delete guard
// applies: even admins cannot delete their own account.
func (s *Service) Delete(ctx context.Context, actor *authz.User, targetID string) error {
	if !s.permissions.CanDeleteUser(ctx, actor, targetID) {
		return httpx.ErrForbidden
	}
	if err := s.repo.Delete(ctx, targetID); err != nil {
		return err
	}
	s.invalidator.OnUserDeactivation(ctx, targetID)
	return nil
}

package users

import (
	"time"

	"github.com/terojleinonen/cms-admin/internal/authz"
)

// User represents a managed CMS account.
type User struct {
	ID        string
	Email     string
	Name      string
	Role      authz.Role
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Authz converts the account into the value the permission engine decides
// for.
func (u *User) Authz() *authz.User {
	if u == nil {
		return nil
	}
	return &authz.User{ID: u.ID, Role: u.Role, IsActive: u.IsActive}
}

package auth

import (
	"time"

	"github.com/terojleinonen/cms-admin/internal/authz"
)

// Account represents a user record as seen by the login flow.
type Account struct {
	ID           string
	Email        string
	PasswordHash string
	Role         authz.Role
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

package users

import (
	"errors"
	"net/http"

	"github.com/terojleinonen/cms-admin/internal/authz"
	"github.com/terojleinonen/cms-admin/internal/shared"
)

// Resolver turns the request session into the identity the permission engine
// decides for. It implements authz.UserSource.
type Resolver struct {
	repo RepositoryPort
}

// NewResolver constructs a Resolver.
func NewResolver(repo RepositoryPort) *Resolver {
	return &Resolver{repo: repo}
}

// CurrentUser returns the authenticated user for the request, nil when the
// session is anonymous or the account no longer exists.
func (r *Resolver) CurrentUser(req *http.Request) (*authz.User, error) {
	sess := shared.SessionFromContext(req.Context())
	id := sess.User()
	if id == "" {
		return nil, nil
	}
	user, err := r.repo.Get(req.Context(), id)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return user.Authz(), nil
}

var _ authz.UserSource = (*Resolver)(nil)

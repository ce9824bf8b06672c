package authz

import (
	"log/slog"
	"net/http"
)

// UserSource resolves the authenticated user for a request, typically from
// the session and the user store. A nil user means unauthenticated.
type UserSource interface {
	CurrentUser(r *http.Request) (*User, error)
}

// Middleware wires authorization checks into HTTP handlers.
type Middleware struct {
	Service *Service
	Users   UserSource
	Logger  *slog.Logger
}

// RequirePermission ensures the current user holds the (resource, action)
// permission before the handler runs.
func (m Middleware) RequirePermission(resource string, action Action) func(http.Handler) http.Handler {
	perm := Permission{Resource: resource, Action: action}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user := m.currentUser(r)
			if !m.Service.HasPermission(r.Context(), user, perm) {
				m.deny(w, r, user, perm)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireRoute authorizes against the route permission table using the
// request's own path and method.
func (m Middleware) RequireRoute() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user := m.currentUser(r)
			if !m.Service.CanAccessRoute(r.Context(), user, r.URL.Path, r.Method) {
				if m.Logger != nil {
					m.Logger.Warn("route access denied",
						slog.String("path", r.URL.Path),
						slog.String("method", r.Method))
				}
				forbidden(w)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireRole ensures the current user holds at least the given role.
func (m Middleware) RequireRole(min Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user := m.currentUser(r)
			if !HasMinimumRole(user, min) {
				if m.Logger != nil {
					m.Logger.Warn("role check denied",
						slog.String("path", r.URL.Path),
						slog.String("required_role", string(min)))
				}
				forbidden(w)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (m Middleware) currentUser(r *http.Request) *User {
	if m.Users == nil {
		return nil
	}
	user, err := m.Users.CurrentUser(r)
	if err != nil {
		if m.Logger != nil {
			m.Logger.Error("resolve current user", slog.Any("error", err))
		}
		return nil
	}
	return user
}

func (m Middleware) deny(w http.ResponseWriter, r *http.Request, user *User, perm Permission) {
	if m.Logger != nil {
		m.Logger.Warn("permission denied",
			slog.String("path", r.URL.Path),
			slog.String("permission", perm.String()),
			slog.String("reason", m.Service.DenyReason(user, perm)))
	}
	forbidden(w)
}

func forbidden(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusForbidden)
	_, _ = w.Write([]byte(`{"title":"Forbidden","status":403}`))
}

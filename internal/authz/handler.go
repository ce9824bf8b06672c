package authz

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/terojleinonen/cms-admin/internal/platform/httpx"
)

// Handler exposes the effective permission model and cache state for admin
// tooling.
type Handler struct {
	logger  *slog.Logger
	service *Service
	mw      Middleware
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, mw Middleware) *Handler {
	return &Handler{logger: logger, service: service, mw: mw}
}

// MountRoutes registers permission inspection routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.mw.RequireRole(RoleAdmin))
		r.Get("/", h.listPermissions)
		r.Get("/cache", h.cacheStats)
		r.Delete("/cache", h.clearCache)
	})
	// UI permission hooks probe their own access here; any authenticated
	// user may ask about themselves.
	r.Group(func(r chi.Router) {
		r.Use(h.mw.RequireRole(RoleViewer))
		r.Post("/check", h.check)
	})
}

type checkRequest struct {
	Resource string `json:"resource,omitempty"`
	Action   Action `json:"action,omitempty"`
	Scope    Scope  `json:"scope,omitempty"`
	Path     string `json:"path,omitempty"`
	Method   string `json:"method,omitempty"`
}

type checkResponse struct {
	Allowed bool `json:"allowed"`
}

// check answers "may I?" for the calling user, either for an explicit
// (resource, action, scope) permission or for a route path+method.
func (h *Handler) check(w http.ResponseWriter, r *http.Request) {
	var req checkRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", "")
		return
	}
	user, err := h.mw.Users.CurrentUser(r)
	if err != nil {
		h.logger.Error("resolve current user", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	var allowed bool
	switch {
	case req.Path != "":
		allowed = h.service.CanAccessRoute(r.Context(), user, req.Path, req.Method)
	case req.Resource != "":
		allowed = h.service.HasResourceAccess(r.Context(), user, req.Resource, req.Action, req.Scope)
	default:
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "either path or resource is required")
		return
	}
	httpx.JSON(w, http.StatusOK, checkResponse{Allowed: allowed})
}

type rolePermissionsResponse struct {
	Role        Role         `json:"role"`
	Level       int          `json:"level"`
	Permissions []Permission `json:"permissions"`
}

func (h *Handler) listPermissions(w http.ResponseWriter, r *http.Request) {
	table := h.service.Table()
	out := make([]rolePermissionsResponse, 0, 3)
	for _, role := range table.Roles() {
		out = append(out, rolePermissionsResponse{
			Role:        role,
			Level:       role.Level(),
			Permissions: table.Grants(role),
		})
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) cacheStats(w http.ResponseWriter, r *http.Request) {
	httpx.JSON(w, http.StatusOK, h.service.Stats())
}

func (h *Handler) clearCache(w http.ResponseWriter, r *http.Request) {
	h.service.ClearCache(r.Context())
	h.logger.Info("authz cache cleared by admin")
	w.WriteHeader(http.StatusNoContent)
}

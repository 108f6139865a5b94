package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/halcyonlabs/adminauth/internal/auth/domain"
	"github.com/halcyonlabs/adminauth/internal/auth/service"
	"github.com/halcyonlabs/adminauth/pkg/httpx"
	"github.com/halcyonlabs/adminauth/pkg/slogx"
)

// RolesHandler serves the admin role API under /api/v1/roles.
type RolesHandler struct {
	Roles *service.RoleService
}

type roleView struct {
	ID          string           `json:"id"`
	Name        string           `json:"name"`
	Description string           `json:"description,omitempty"`
	Permissions []permissionView `json:"permissions,omitempty"`
	CreatedAt   time.Time        `json:"createdAt"`
	UpdatedAt   time.Time        `json:"updatedAt"`
}

func viewRole(r domain.Role) roleView {
	v := roleView{
		ID:          r.ID,
		Name:        r.Name,
		Description: r.Description,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
	for _, p := range r.Permissions {
		v.Permissions = append(v.Permissions, viewPermission(p))
	}
	return v
}

// HandleList serves GET /api/v1/roles.
func (h *RolesHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	roles, err := h.Roles.ListRoles(r.Context())
	if err != nil {
		slogx.FromContext(r.Context()).Error("list roles failed", "err", err)
		writeAPIError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	views := make([]roleView, 0, len(roles))
	for _, role := range roles {
		views = append(views, viewRole(role))
	}
	httpx.WriteJSON(w, http.StatusOK, views)
}

// HandleGet serves GET /api/v1/roles/{id}, permissions included.
func (h *RolesHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	role, err := h.Roles.GetRole(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, service.ErrRoleNotFound) {
			writeAPIError(w, http.StatusNotFound, "role not found")
			return
		}
		writeAPIError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, viewRole(role))
}

// HandleCreate serves POST /api/v1/roles.
func (h *RolesHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name        string `json:"name"`
		Description string `json:"description"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Name == "" {
		writeAPIError(w, http.StatusBadRequest, "name is required")
		return
	}

	role, err := h.Roles.CreateRole(r.Context(), req.Name, req.Description)
	switch {
	case err == nil:
		httpx.WriteJSON(w, http.StatusCreated, viewRole(role))
	case errors.Is(err, service.ErrDuplicateRole):
		writeAPIError(w, http.StatusConflict, "a role with that name already exists")
	default:
		slogx.FromContext(r.Context()).Error("create role failed", "err", err)
		writeAPIError(w, http.StatusInternalServerError, "internal server error")
	}
}

// HandleUpdate serves PATCH /api/v1/roles/{id}.
func (h *RolesHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")

	current, err := h.Roles.GetRole(ctx, id)
	if err != nil {
		if errors.Is(err, service.ErrRoleNotFound) {
			writeAPIError(w, http.StatusNotFound, "role not found")
			return
		}
		writeAPIError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	var req struct {
		Name        *string `json:"name"`
		Description *string `json:"description"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	name, description := current.Name, current.Description
	if req.Name != nil {
		name = *req.Name
	}
	if req.Description != nil {
		description = *req.Description
	}

	err = h.Roles.UpdateRole(ctx, id, name, description)
	switch {
	case err == nil:
		role, err := h.Roles.GetRole(ctx, id)
		if err != nil {
			writeAPIError(w, http.StatusInternalServerError, "internal server error")
			return
		}
		httpx.WriteJSON(w, http.StatusOK, viewRole(role))
	case errors.Is(err, service.ErrDuplicateRole):
		writeAPIError(w, http.StatusConflict, "a role with that name already exists")
	default:
		writeAPIError(w, http.StatusInternalServerError, "internal server error")
	}
}

// HandleDelete serves DELETE /api/v1/roles/{id}.
func (h *RolesHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	err := h.Roles.DeleteRole(r.Context(), r.PathValue("id"))
	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, service.ErrRoleNotFound):
		writeAPIError(w, http.StatusNotFound, "role not found")
	case errors.Is(err, service.ErrRoleInUse):
		writeAPIError(w, http.StatusConflict, "role is still assigned to users")
	default:
		writeAPIError(w, http.StatusInternalServerError, "internal server error")
	}
}

// HandleAddPermission serves PUT /api/v1/roles/{id}/permissions/{permissionId}.
func (h *RolesHandler) HandleAddPermission(w http.ResponseWriter, r *http.Request) {
	err := h.Roles.AddPermission(r.Context(), r.PathValue("id"), r.PathValue("permissionId"))
	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, service.ErrRoleNotFound):
		writeAPIError(w, http.StatusNotFound, "role not found")
	case errors.Is(err, service.ErrPermissionNotFound):
		writeAPIError(w, http.StatusNotFound, "permission not found")
	default:
		writeAPIError(w, http.StatusInternalServerError, "internal server error")
	}
}

// HandleRemovePermission serves DELETE /api/v1/roles/{id}/permissions/{permissionId}.
func (h *RolesHandler) HandleRemovePermission(w http.ResponseWriter, r *http.Request) {
	err := h.Roles.RemovePermission(r.Context(), r.PathValue("id"), r.PathValue("permissionId"))
	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, service.ErrPermissionNotFound):
		writeAPIError(w, http.StatusNotFound, "permission is not assigned to this role")
	default:
		writeAPIError(w, http.StatusInternalServerError, "internal server error")
	}
}

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

// PermissionsHandler serves the admin permission API under /api/v1/permissions.
type PermissionsHandler struct {
	Permissions *service.PermissionService
}

type permissionView struct {
	ID          string    `json:"id"`
	Action      string    `json:"action"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

func viewPermission(p domain.Permission) permissionView {
	return permissionView{
		ID:          p.ID,
		Action:      p.Action,
		Description: p.Description,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}

// HandleList serves GET /api/v1/permissions.
func (h *PermissionsHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	perms, err := h.Permissions.ListPermissions(r.Context())
	if err != nil {
		slogx.FromContext(r.Context()).Error("list permissions failed", "err", err)
		writeAPIError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	views := make([]permissionView, 0, len(perms))
	for _, p := range perms {
		views = append(views, viewPermission(p))
	}
	httpx.WriteJSON(w, http.StatusOK, views)
}

// HandleGet serves GET /api/v1/permissions/{id}.
func (h *PermissionsHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	p, err := h.Permissions.GetPermission(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, service.ErrPermissionNotFound) {
			writeAPIError(w, http.StatusNotFound, "permission not found")
			return
		}
		writeAPIError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, viewPermission(p))
}

// HandleCreate serves POST /api/v1/permissions.
func (h *PermissionsHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Action      string `json:"action"`
		Description string `json:"description"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Action == "" {
		writeAPIError(w, http.StatusBadRequest, "action is required")
		return
	}

	p, err := h.Permissions.CreatePermission(r.Context(), req.Action, req.Description)
	switch {
	case err == nil:
		httpx.WriteJSON(w, http.StatusCreated, viewPermission(p))
	case errors.Is(err, service.ErrDuplicatePerm):
		writeAPIError(w, http.StatusConflict, "a permission with that action already exists")
	default:
		slogx.FromContext(r.Context()).Error("create permission failed", "err", err)
		writeAPIError(w, http.StatusInternalServerError, "internal server error")
	}
}

// HandleUpdate serves PATCH /api/v1/permissions/{id}.
func (h *PermissionsHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")

	current, err := h.Permissions.GetPermission(ctx, id)
	if err != nil {
		if errors.Is(err, service.ErrPermissionNotFound) {
			writeAPIError(w, http.StatusNotFound, "permission not found")
			return
		}
		writeAPIError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	var req struct {
		Action      *string `json:"action"`
		Description *string `json:"description"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	action, description := current.Action, current.Description
	if req.Action != nil {
		action = *req.Action
	}
	if req.Description != nil {
		description = *req.Description
	}

	err = h.Permissions.UpdatePermission(ctx, id, action, description)
	switch {
	case err == nil:
		p, err := h.Permissions.GetPermission(ctx, id)
		if err != nil {
			writeAPIError(w, http.StatusInternalServerError, "internal server error")
			return
		}
		httpx.WriteJSON(w, http.StatusOK, viewPermission(p))
	case errors.Is(err, service.ErrDuplicatePerm):
		writeAPIError(w, http.StatusConflict, "a permission with that action already exists")
	default:
		writeAPIError(w, http.StatusInternalServerError, "internal server error")
	}
}

// HandleDelete serves DELETE /api/v1/permissions/{id}.
func (h *PermissionsHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	err := h.Permissions.DeletePermission(r.Context(), r.PathValue("id"))
	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, service.ErrPermissionNotFound):
		writeAPIError(w, http.StatusNotFound, "permission not found")
	case errors.Is(err, service.ErrPermissionInUse):
		writeAPIError(w, http.StatusConflict, "permission is still assigned to roles")
	default:
		writeAPIError(w, http.StatusInternalServerError, "internal server error")
	}
}

package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/halcyonlabs/adminauth/internal/auth/service"
	"github.com/halcyonlabs/adminauth/internal/auth/store"
	"github.com/halcyonlabs/adminauth/pkg/httpx"
	"github.com/halcyonlabs/adminauth/pkg/slogx"
)

// UsersHandler serves the admin user-management API under /api/v1/users.
type UsersHandler struct {
	Users *service.UserService
}

// HandleList serves GET /api/v1/users. Supports role / active filters and
// page / limit pagination; without them the full list is returned.
func (h *UsersHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter := store.UserFilter{RoleID: q.Get("role")}
	if v := q.Get("active"); v != "" {
		active, err := strconv.ParseBool(v)
		if err != nil {
			writeAPIError(w, http.StatusBadRequest, "active must be true or false")
			return
		}
		filter.Active = &active
	}
	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 1 {
			writeAPIError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		filter.Limit = limit
		if v := q.Get("page"); v != "" {
			page, err := strconv.Atoi(v)
			if err != nil || page < 1 {
				writeAPIError(w, http.StatusBadRequest, "page must be a positive integer")
				return
			}
			filter.Offset = (page - 1) * limit
		}
	}

	users, err := h.Users.ListUsers(r.Context(), filter)
	if err != nil {
		slogx.FromContext(r.Context()).Error("list users failed", "err", err)
		writeAPIError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	views := make([]userView, 0, len(users))
	for _, u := range users {
		views = append(views, viewUser(u))
	}
	httpx.WriteJSON(w, http.StatusOK, views)
}

// HandleGet serves GET /api/v1/users/{id}.
func (h *UsersHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	user, err := h.Users.GetUserByID(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, service.ErrUserNotFound) {
			writeAPIError(w, http.StatusNotFound, "user not found")
			return
		}
		writeAPIError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, viewUser(user))
}

// HandleCreate serves POST /api/v1/users. The account is provisioned without
// a password; the user receives a setup link by email.
func (h *UsersHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req struct {
		Email    string `json:"email"`
		Username string `json:"username"`
		Name     string `json:"name"`
		RoleID   string `json:"roleId"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Email == "" || req.Username == "" || req.RoleID == "" {
		writeAPIError(w, http.StatusBadRequest, "email, username and roleId are required")
		return
	}

	user, err := h.Users.AdminCreateUser(ctx, req.Email, req.Username, req.Name, req.RoleID)
	switch {
	case err == nil:
		httpx.WriteJSON(w, http.StatusCreated, viewUser(user))
	case errors.Is(err, service.ErrDuplicateUser):
		writeAPIError(w, http.StatusConflict, "email or username is already taken")
	default:
		slogx.FromContext(ctx).Error("admin create user failed", "err", err)
		writeAPIError(w, http.StatusInternalServerError, "internal server error")
	}
}

// HandleUpdate serves PATCH /api/v1/users/{id}.
func (h *UsersHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")

	current, err := h.Users.GetUserByID(ctx, id)
	if err != nil {
		if errors.Is(err, service.ErrUserNotFound) {
			writeAPIError(w, http.StatusNotFound, "user not found")
			return
		}
		writeAPIError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	var req struct {
		Email    *string `json:"email"`
		Username *string `json:"username"`
		Name     *string `json:"name"`
		RoleID   *string `json:"roleId"`
		IsActive *bool   `json:"isActive"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	email, username, name := current.Email, current.Username, current.Name
	if req.Email != nil {
		email = *req.Email
	}
	if req.Username != nil {
		username = *req.Username
	}
	if req.Name != nil {
		name = *req.Name
	}

	if err := h.Users.UpdateProfile(ctx, id, email, username, name); err != nil {
		switch {
		case errors.Is(err, service.ErrDuplicateUser):
			writeAPIError(w, http.StatusConflict, "email or username is already taken")
		default:
			writeAPIError(w, http.StatusInternalServerError, "internal server error")
		}
		return
	}

	if req.RoleID != nil && *req.RoleID != current.RoleID {
		if err := h.Users.UpdateRole(ctx, id, *req.RoleID); err != nil {
			writeAPIError(w, http.StatusInternalServerError, "internal server error")
			return
		}
	}
	if req.IsActive != nil && *req.IsActive != current.IsActive {
		if err := h.Users.SetActive(ctx, id, *req.IsActive); err != nil {
			writeAPIError(w, http.StatusInternalServerError, "internal server error")
			return
		}
	}

	updated, err := h.Users.GetUserByID(ctx, id)
	if err != nil {
		writeAPIError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, viewUser(updated))
}

// HandleRegenerateSetup serves POST /api/v1/users/{id}/setup-token,
// re-sending the setup email for accounts that never finished setup.
func (h *UsersHandler) HandleRegenerateSetup(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	err := h.Users.RegenerateSetup(ctx, r.PathValue("id"))
	switch {
	case err == nil:
		httpx.WriteJSON(w, http.StatusOK, map[string]bool{"success": true})
	case errors.Is(err, service.ErrUserNotFound):
		writeAPIError(w, http.StatusNotFound, "user not found")
	case errors.Is(err, service.ErrSetupComplete):
		writeAPIError(w, http.StatusConflict, "account setup is already complete")
	default:
		slogx.FromContext(ctx).Error("regenerate setup token failed", "err", err)
		writeAPIError(w, http.StatusInternalServerError, "internal server error")
	}
}

// HandleDelete serves DELETE /api/v1/users/{id}.
func (h *UsersHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	// Admins cannot delete their own account; deactivate first.
	if p := PrincipalFromContext(r.Context()); p != nil && p.User.ID == r.PathValue("id") {
		writeAPIError(w, http.StatusConflict, "cannot delete your own account")
		return
	}

	err := h.Users.DeleteUser(r.Context(), r.PathValue("id"))
	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, service.ErrUserNotFound):
		writeAPIError(w, http.StatusNotFound, "user not found")
	default:
		writeAPIError(w, http.StatusInternalServerError, "internal server error")
	}
}

package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/halcyonlabs/adminauth/internal/auth/domain"
	"github.com/halcyonlabs/adminauth/internal/auth/service"
	"github.com/halcyonlabs/adminauth/pkg/httpx"
	"github.com/halcyonlabs/adminauth/pkg/slogx"
)

// AuthHandler serves the direct (non-OAuth2) authentication API used by the
// first-party admin UI. Tokens are returned in the body and mirrored into
// HttpOnly cookies.
type AuthHandler struct {
	Users  *service.UserService
	Tokens *service.TokenService
	Roles  *service.RoleService

	// SecureCookies toggles the Secure flag; off for local development.
	SecureCookies bool
	RefreshTTL    time.Duration
}

// userView is the safe projection of a user for API responses.
type userView struct {
	ID        string     `json:"id"`
	Email     string     `json:"email"`
	Username  string     `json:"username"`
	Name      string     `json:"name,omitempty"`
	RoleID    string     `json:"roleId"`
	IsActive  bool       `json:"isActive"`
	LastLogin *time.Time `json:"lastLogin,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

func viewUser(u domain.User) userView {
	return userView{
		ID:        u.ID,
		Email:     u.Email,
		Username:  u.Username,
		Name:      u.Name,
		RoleID:    u.RoleID,
		IsActive:  u.IsActive,
		LastLogin: u.LastLogin,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}

func (h *AuthHandler) setSessionCookies(w http.ResponseWriter, pair domain.TokenPair) {
	http.SetCookie(w, &http.Cookie{
		Name:     accessTokenCookie,
		Value:    pair.AccessToken,
		Path:     "/",
		MaxAge:   int(pair.ExpiresIn),
		HttpOnly: true,
		Secure:   h.SecureCookies,
		SameSite: http.SameSiteStrictMode,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     refreshTokenCookie,
		Value:    pair.RefreshToken,
		Path:     "/api/v1/auth",
		MaxAge:   int(h.RefreshTTL.Seconds()),
		HttpOnly: true,
		Secure:   h.SecureCookies,
		SameSite: http.SameSiteStrictMode,
	})
}

func (h *AuthHandler) clearSessionCookies(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name: accessTokenCookie, Value: "", Path: "/", MaxAge: -1,
		HttpOnly: true, Secure: h.SecureCookies, SameSite: http.SameSiteStrictMode,
	})
	http.SetCookie(w, &http.Cookie{
		Name: refreshTokenCookie, Value: "", Path: "/api/v1/auth", MaxAge: -1,
		HttpOnly: true, Secure: h.SecureCookies, SameSite: http.SameSiteStrictMode,
	})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeAPIError(w, http.StatusBadRequest, "malformed JSON body")
		return false
	}
	return true
}

// HandleSignup serves POST /api/v1/auth/signup. New accounts always get the
// default user role; anything more requires an admin.
func (h *AuthHandler) HandleSignup(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req struct {
		Email    string `json:"email"`
		Username string `json:"username"`
		Name     string `json:"name"`
		Password string `json:"password"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Email == "" || req.Username == "" || req.Password == "" {
		writeAPIError(w, http.StatusBadRequest, "email, username and password are required")
		return
	}

	role, err := h.Roles.Store.Roles().GetRoleByName(ctx, service.RoleUser)
	if err != nil {
		slogx.FromContext(ctx).Error("default role missing", "err", err)
		writeAPIError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	user, err := h.Users.Signup(ctx, req.Email, req.Username, req.Name, req.Password, role.ID)
	switch {
	case err == nil:
		httpx.WriteJSON(w, http.StatusCreated, viewUser(user))
	case errors.Is(err, service.ErrDuplicateUser):
		writeAPIError(w, http.StatusConflict, "email or username is already taken")
	case errors.Is(err, service.ErrPasswordTooWeak):
		writeAPIError(w, http.StatusBadRequest, "password does not meet the minimum length")
	default:
		slogx.FromContext(ctx).Error("signup failed", "err", err)
		writeAPIError(w, http.StatusInternalServerError, "internal server error")
	}
}

// HandleLogin serves POST /api/v1/auth/login.
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req struct {
		Identifier string `json:"identifier"`
		Email      string `json:"email"`
		Password   string `json:"password"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	identifier := req.Identifier
	if identifier == "" {
		identifier = req.Email
	}
	if identifier == "" || req.Password == "" {
		writeAPIError(w, http.StatusBadRequest, "identifier and password are required")
		return
	}

	user, err := h.Users.Authenticate(ctx, identifier, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidCredentials), errors.Is(err, service.ErrPasswordNotSet):
			writeAPIError(w, http.StatusUnauthorized, "invalid credentials")
		case errors.Is(err, service.ErrUserDisabled):
			writeAPIError(w, http.StatusForbidden, "account is disabled")
		default:
			slogx.FromContext(ctx).Error("login failed", "err", err)
			writeAPIError(w, http.StatusInternalServerError, "internal server error")
		}
		return
	}

	pair, err := h.Tokens.IssuePair(ctx, user, "")
	if err != nil {
		slogx.FromContext(ctx).Error("failed to issue tokens", "err", err)
		writeAPIError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.setSessionCookies(w, pair)
	httpx.WriteJSON(w, http.StatusOK, pair)
}

// HandleRefresh serves POST /api/v1/auth/refresh. The refresh token comes
// from the body or the cookie.
func (h *AuthHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req struct {
		RefreshToken string `json:"refreshToken"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)
	token := req.RefreshToken
	if token == "" {
		if c, err := r.Cookie(refreshTokenCookie); err == nil {
			token = c.Value
		}
	}
	if token == "" {
		writeAPIError(w, http.StatusBadRequest, "refresh token is required")
		return
	}

	pair, _, err := h.Tokens.Refresh(ctx, token, "")
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidRefresh), errors.Is(err, service.ErrRefreshConflict):
			h.clearSessionCookies(w)
			writeAPIError(w, http.StatusUnauthorized, "refresh token is invalid, log in again")
		case errors.Is(err, service.ErrUserDisabled):
			h.clearSessionCookies(w)
			writeAPIError(w, http.StatusForbidden, "account is disabled")
		default:
			slogx.FromContext(ctx).Error("refresh failed", "err", err)
			writeAPIError(w, http.StatusInternalServerError, "internal server error")
		}
		return
	}

	h.setSessionCookies(w, pair)
	httpx.WriteJSON(w, http.StatusOK, pair)
}

// HandleLogout serves POST /api/v1/auth/logout. Requires authentication.
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	p := PrincipalFromContext(ctx)
	if p == nil {
		ErrUnauthorized.WriteError(w)
		return
	}

	if err := h.Users.Logout(ctx, p.User.ID, p.RawToken); err != nil {
		slogx.FromContext(ctx).Error("logout failed", "err", err)
		writeAPIError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.clearSessionCookies(w)
	httpx.WriteJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// HandleMe serves GET /api/v1/auth/me.
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	p := PrincipalFromContext(r.Context())
	if p == nil {
		ErrUnauthorized.WriteError(w)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, viewUser(p.User))
}

// HandleForgotPassword serves POST /api/v1/auth/forgot-password. Responds
// 200 regardless of whether the email exists.
func (h *AuthHandler) HandleForgotPassword(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req struct {
		Email string `json:"email"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Email == "" {
		writeAPIError(w, http.StatusBadRequest, "email is required")
		return
	}

	if err := h.Users.ForgotPassword(ctx, req.Email); err != nil {
		slogx.FromContext(ctx).Error("forgot-password failed", "err", err)
		writeAPIError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	httpx.WriteJSON(w, http.StatusOK, map[string]string{
		"message": "if the account exists, a reset email has been sent",
	})
}

// HandleResetPassword serves POST /api/v1/auth/reset-password.
func (h *AuthHandler) HandleResetPassword(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req struct {
		Token    string `json:"token"`
		Password string `json:"password"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Token == "" || req.Password == "" {
		writeAPIError(w, http.StatusBadRequest, "token and password are required")
		return
	}

	err := h.Users.ResetPassword(ctx, req.Token, req.Password)
	switch {
	case err == nil:
		httpx.WriteJSON(w, http.StatusOK, map[string]bool{"success": true})
	case errors.Is(err, service.ErrInvalidResetToken):
		writeAPIError(w, http.StatusBadRequest, "reset token is invalid or expired")
	case errors.Is(err, service.ErrPasswordTooWeak):
		writeAPIError(w, http.StatusBadRequest, "password does not meet the minimum length")
	default:
		slogx.FromContext(ctx).Error("reset-password failed", "err", err)
		writeAPIError(w, http.StatusInternalServerError, "internal server error")
	}
}

// HandleUpdatePassword serves PATCH /api/v1/auth/password. Requires
// authentication plus the current password.
func (h *AuthHandler) HandleUpdatePassword(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	p := PrincipalFromContext(ctx)
	if p == nil {
		ErrUnauthorized.WriteError(w)
		return
	}

	var req struct {
		CurrentPassword string `json:"currentPassword"`
		NewPassword     string `json:"newPassword"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	err := h.Users.UpdatePassword(ctx, p.User.ID, req.CurrentPassword, req.NewPassword)
	switch {
	case err == nil:
		h.clearSessionCookies(w)
		httpx.WriteJSON(w, http.StatusOK, map[string]bool{"success": true})
	case errors.Is(err, service.ErrInvalidCredentials):
		writeAPIError(w, http.StatusUnauthorized, "current password is incorrect")
	case errors.Is(err, service.ErrPasswordTooWeak):
		writeAPIError(w, http.StatusBadRequest, "password does not meet the minimum length")
	case errors.Is(err, service.ErrPasswordReused):
		writeAPIError(w, http.StatusBadRequest, "new password must differ from the current password")
	default:
		slogx.FromContext(ctx).Error("update-password failed", "err", err)
		writeAPIError(w, http.StatusInternalServerError, "internal server error")
	}
}

// HandleSetup serves POST /api/v1/auth/setup, redeeming a first-login setup
// token for admin-provisioned accounts.
func (h *AuthHandler) HandleSetup(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req struct {
		Token    string `json:"token"`
		Password string `json:"password"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Token == "" || req.Password == "" {
		writeAPIError(w, http.StatusBadRequest, "token and password are required")
		return
	}

	user, err := h.Users.CompleteSetup(ctx, req.Token, req.Password)
	switch {
	case err == nil:
		httpx.WriteJSON(w, http.StatusOK, viewUser(user))
	case errors.Is(err, service.ErrInvalidSetupToken):
		writeAPIError(w, http.StatusBadRequest, "setup token is invalid or expired")
	case errors.Is(err, service.ErrPasswordTooWeak):
		writeAPIError(w, http.StatusBadRequest, "password does not meet the minimum length")
	default:
		slogx.FromContext(ctx).Error("setup failed", "err", err)
		writeAPIError(w, http.StatusInternalServerError, "internal server error")
	}
}

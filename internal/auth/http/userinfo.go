package http

import (
	"net/http"

	"github.com/halcyonlabs/adminauth/internal/auth/service"
	"github.com/halcyonlabs/adminauth/pkg/httpx"
	"github.com/halcyonlabs/adminauth/pkg/slogx"
)

// UserinfoHandler serves GET /api/v1/oauth2/userinfo behind the auth gate.
type UserinfoHandler struct {
	OAuth2 *service.OAuth2Service
}

func (h *UserinfoHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	p := PrincipalFromContext(ctx)
	if p == nil {
		ErrUnauthorized.WriteError(w)
		return
	}

	claims, err := h.OAuth2.Userinfo(ctx, p.User.ID)
	if err != nil {
		slogx.FromContext(ctx).Error("userinfo failed", "err", err)
		ErrServerError.WriteError(w)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, claims)
}

package http

import (
	"net/http"
	"strings"

	"github.com/halcyonlabs/adminauth/internal/auth/service"
	"github.com/halcyonlabs/adminauth/pkg/httpx"
	"github.com/halcyonlabs/adminauth/pkg/slogx"
)

// RevokeHandler serves POST /api/v1/oauth2/revoke following RFC 7009.
// All tokens even if invalid/unknown return 200 OK to prevent token scanning
// attacks.
type RevokeHandler struct {
	OAuth2 *service.OAuth2Service
}

func (h *RevokeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	// 1. Ensure the right content-type
	if ct := r.Header.Get("Content-Type"); ct != "" &&
		!strings.HasPrefix(ct, "application/x-www-form-urlencoded") {
		ErrInvalidContentType.WriteError(w)
		return
	}

	// 2. Parse the form body
	if err := r.ParseForm(); err != nil {
		ErrInvalidFormBody.WriteError(w)
		return
	}

	token := r.Form.Get("token")
	tokenTypeHint := r.Form.Get("token_type_hint")

	if token == "" {
		ErrInvalidRequest.WriteError(w)
		return
	}

	// Internal failures are logged but still answered with 200; the RFC
	// keeps this endpoint non-committal about token state.
	if err := h.OAuth2.Revoke(ctx, token, tokenTypeHint); err != nil {
		log.Error("revocation failed", "err", err)
	}

	httpx.WriteJSON(w, http.StatusOK, map[string]bool{"success": true})
}

package http

import (
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/halcyonlabs/adminauth/internal/auth/service"
	"github.com/halcyonlabs/adminauth/pkg/httpx"
	"github.com/halcyonlabs/adminauth/pkg/slogx"
)

// tokenResponse is the RFC 6749 token endpoint response body.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	IDToken      string `json:"id_token,omitempty"`
	Scope        string `json:"scope,omitempty"`
}

func newTokenResponse(set service.TokenSet) tokenResponse {
	return tokenResponse{
		AccessToken:  set.Pair.AccessToken,
		RefreshToken: set.Pair.RefreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    set.Pair.ExpiresIn,
		IDToken:      set.IDToken,
		Scope:        set.Scope,
	}
}

// TokenHandler serves POST /api/v1/oauth2/token.
// Accepts application/x-www-form-urlencoded per the RFC 6749 framework.
type TokenHandler struct {
	OAuth2 *service.OAuth2Service
}

func (h *TokenHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
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

	// 3. Handle the grant type
	switch r.Form.Get("grant_type") {
	case "authorization_code":
		h.handleAuthorizationCodeGrant(w, r, r.Form)
	case "refresh_token":
		h.handleRefreshGrant(w, r, r.Form)
	default:
		ErrUnsupportedGrantType.WriteError(w)
	}
}

// clientID resolves the client identifier from the form or, as a fallback,
// from HTTP Basic credentials. Clients are public so only the id matters.
func clientID(r *http.Request, form url.Values) string {
	if id := strings.TrimSpace(form.Get("client_id")); id != "" {
		return id
	}
	if id, _, ok := r.BasicAuth(); ok {
		return id
	}
	return ""
}

func (h *TokenHandler) handleAuthorizationCodeGrant(w http.ResponseWriter, r *http.Request, form url.Values) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	code := strings.TrimSpace(form.Get("code"))
	redirectURI := strings.TrimSpace(form.Get("redirect_uri"))
	client := clientID(r, form)

	if code == "" || redirectURI == "" || client == "" {
		ErrInvalidRequest.WriteError(w)
		return
	}

	set, err := h.OAuth2.Exchange(ctx, code, client, redirectURI)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidClient):
			ErrInvalidClient.WriteError(w)
		case errors.Is(err, service.ErrInvalidGrant):
			ErrInvalidGrant.WriteError(w)
		case errors.Is(err, service.ErrUserDisabled):
			ErrAccessDenied.WriteError(w)
		default:
			log.Error("authorization_code grant failed", "err", err)
			ErrServerError.WriteError(w)
		}
		return
	}

	httpx.WriteJSON(w, http.StatusOK, newTokenResponse(set))
}

func (h *TokenHandler) handleRefreshGrant(w http.ResponseWriter, r *http.Request, form url.Values) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	refreshToken := strings.TrimSpace(form.Get("refresh_token"))
	client := clientID(r, form)

	if refreshToken == "" || client == "" {
		ErrInvalidRequest.WriteError(w)
		return
	}

	set, err := h.OAuth2.RefreshGrant(ctx, refreshToken, client)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidClient):
			ErrInvalidClient.WriteError(w)
		case errors.Is(err, service.ErrInvalidRefresh), errors.Is(err, service.ErrRefreshConflict):
			ErrInvalidGrant.WriteError(w)
		case errors.Is(err, service.ErrUserDisabled):
			ErrAccessDenied.WriteError(w)
		default:
			log.Error("refresh_token grant failed", "err", err)
			ErrServerError.WriteError(w)
		}
		return
	}

	httpx.WriteJSON(w, http.StatusOK, newTokenResponse(set))
}

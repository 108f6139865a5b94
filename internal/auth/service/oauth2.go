package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/halcyonlabs/adminauth/internal/auth/cache"
	"github.com/halcyonlabs/adminauth/internal/auth/domain"
	"github.com/halcyonlabs/adminauth/pkg/cryptox"
	"github.com/halcyonlabs/adminauth/pkg/slogx"
)

// ClientConfig describes a registered OAuth2 client. Clients are static
// configuration, there is no dynamic registration.
type ClientConfig struct {
	ID           string
	RedirectURIs []string
}

// AllowsRedirect reports whether uri is an exact match for one of the
// client's registered redirect URIs. No prefix or wildcard matching.
func (c ClientConfig) AllowsRedirect(uri string) bool {
	for _, u := range c.RedirectURIs {
		if u == uri {
			return true
		}
	}
	return false
}

// OAuth2Service runs the authorization code flow on top of the user and
// token services. Codes live only in the cache; consuming one is atomic.
type OAuth2Service struct {
	Users   *UserService
	Tokens  *TokenService
	Codes   *cache.AuthCodes
	Clients map[string]ClientConfig
	CodeTTL time.Duration
}

// ValidateAuthorizeRequest checks the front-channel parameters before any
// login UI is shown. Redirect errors must not be sent to unvalidated URIs,
// so client and redirect failures are returned as hard errors.
func (s *OAuth2Service) ValidateAuthorizeRequest(clientID, redirectURI, responseType string) error {
	client, ok := s.Clients[clientID]
	if !ok {
		return ErrInvalidClient
	}
	if !client.AllowsRedirect(redirectURI) {
		return ErrInvalidRedirect
	}
	if responseType != "code" {
		return ErrInvalidGrant
	}
	return nil
}

// Login authenticates the resource owner and mints a one-time authorization
// code bound to the client and redirect URI.
func (s *OAuth2Service) Login(ctx context.Context, identifier, password, clientID, redirectURI, scope, nonce string) (string, error) {
	if err := s.ValidateAuthorizeRequest(clientID, redirectURI, "code"); err != nil {
		return "", err
	}

	user, err := s.Users.Authenticate(ctx, identifier, password)
	if err != nil {
		return "", err
	}

	code, err := cryptox.GenerateToken(cryptox.TokenSizeCode)
	if err != nil {
		return "", err
	}

	grant := domain.AuthCodeGrant{
		UserID:      user.ID,
		ClientID:    clientID,
		RedirectURI: redirectURI,
		Scope:       scope,
		Nonce:       nonce,
		ExpiresAt:   time.Now().Add(s.CodeTTL),
	}
	if err := s.Codes.Store(ctx, code, grant); err != nil {
		return "", err
	}

	slogx.FromContext(ctx).Info("authorization code issued",
		slog.String("user_id", user.ID), slog.String("client_id", clientID))
	return code, nil
}

// DefaultScope is granted when a refresh rotation has no stored scope to
// echo. The refresh slot keeps only the token, not the original request.
const DefaultScope = "openid profile email"

// TokenSet is what a successful token-endpoint grant hands back.
type TokenSet struct {
	Pair    domain.TokenPair
	IDToken string
	Scope   string
}

// Exchange redeems an authorization code for a token set, with an ID token
// when the grant asked for the openid scope. Every mismatch is
// ErrInvalidGrant; the code is already burnt either way.
func (s *OAuth2Service) Exchange(ctx context.Context, code, clientID, redirectURI string) (TokenSet, error) {
	grant, err := s.Codes.Consume(ctx, code)
	if err != nil {
		if errors.Is(err, cache.ErrCodeNotFound) {
			return TokenSet{}, ErrInvalidGrant
		}
		return TokenSet{}, err
	}

	if grant.ClientID != clientID || grant.RedirectURI != redirectURI {
		return TokenSet{}, ErrInvalidGrant
	}
	if time.Now().After(grant.ExpiresAt) {
		return TokenSet{}, ErrInvalidGrant
	}

	user, err := s.Users.GetUserByID(ctx, grant.UserID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return TokenSet{}, ErrInvalidGrant
		}
		return TokenSet{}, err
	}
	if !user.IsActive {
		return TokenSet{}, ErrUserDisabled
	}

	pair, err := s.Tokens.IssuePair(ctx, user, clientID)
	if err != nil {
		return TokenSet{}, err
	}

	var idToken string
	if hasScope(grant.Scope, "openid") {
		idToken, err = s.Tokens.Signer.SignIDToken(idClaims(user, grant.Nonce), clientID)
		if err != nil {
			return TokenSet{}, err
		}
	}

	return TokenSet{Pair: pair, IDToken: idToken, Scope: grant.Scope}, nil
}

// RefreshGrant rotates a refresh token presented by a known client and mints
// a fresh ID token for the rotated session.
func (s *OAuth2Service) RefreshGrant(ctx context.Context, refreshToken, clientID string) (TokenSet, error) {
	if _, ok := s.Clients[clientID]; !ok {
		return TokenSet{}, ErrInvalidClient
	}

	pair, user, err := s.Tokens.Refresh(ctx, refreshToken, clientID)
	if err != nil {
		return TokenSet{}, err
	}

	idToken, err := s.Tokens.Signer.SignIDToken(idClaims(user, ""), clientID)
	if err != nil {
		return TokenSet{}, err
	}

	return TokenSet{Pair: pair, IDToken: idToken, Scope: DefaultScope}, nil
}

// Revoke handles RFC 7009 revocation. The hint is advisory: both shapes are
// tried regardless, and unknown tokens are quietly accepted.
func (s *OAuth2Service) Revoke(ctx context.Context, token, tokenTypeHint string) error {
	if tokenTypeHint != "access_token" {
		if err := s.Tokens.RevokeRefreshToken(ctx, token); err != nil {
			return err
		}
	}
	return s.Tokens.BlacklistAccessToken(ctx, token)
}

// Userinfo returns the standard OIDC claims for an authenticated subject.
func (s *OAuth2Service) Userinfo(ctx context.Context, userID string) (map[string]any, error) {
	user, err := s.Users.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	claims := idClaims(user, "")
	if role, err := s.Users.Store.Roles().GetRoleByID(ctx, user.RoleID); err == nil {
		claims["roles"] = []string{role.Name}
	}
	return claims, nil
}

func hasScope(scope, want string) bool {
	for _, s := range strings.Fields(scope) {
		if s == want {
			return true
		}
	}
	return false
}

package service

import (
	"github.com/halcyonlabs/adminauth/internal/auth/domain"
)

// DiscoveryDocument is the OIDC provider metadata served from
// /.well-known/openid-configuration.
type DiscoveryDocument struct {
	Issuer                           string   `json:"issuer"`
	AuthorizationEndpoint            string   `json:"authorization_endpoint"`
	TokenEndpoint                    string   `json:"token_endpoint"`
	UserinfoEndpoint                 string   `json:"userinfo_endpoint"`
	RevocationEndpoint               string   `json:"revocation_endpoint"`
	JWKSURI                          string   `json:"jwks_uri"`
	ResponseTypesSupported           []string `json:"response_types_supported"`
	GrantTypesSupported              []string `json:"grant_types_supported"`
	SubjectTypesSupported            []string `json:"subject_types_supported"`
	IDTokenSigningAlgValuesSupported []string `json:"id_token_signing_alg_values_supported"`
	ScopesSupported                  []string `json:"scopes_supported"`
	TokenEndpointAuthMethods         []string `json:"token_endpoint_auth_methods_supported"`
	ClaimsSupported                  []string `json:"claims_supported"`
}

// NewDiscoveryDocument builds the metadata for an issuer. The issuer is
// also the base URL for every advertised endpoint.
func NewDiscoveryDocument(issuer string) DiscoveryDocument {
	return DiscoveryDocument{
		Issuer:                           issuer,
		AuthorizationEndpoint:            issuer + "/api/v1/oauth2/authorize",
		TokenEndpoint:                    issuer + "/api/v1/oauth2/token",
		UserinfoEndpoint:                 issuer + "/api/v1/oauth2/userinfo",
		RevocationEndpoint:               issuer + "/api/v1/oauth2/revoke",
		JWKSURI:                          issuer + "/.well-known/jwks.json",
		ResponseTypesSupported:           []string{"code"},
		GrantTypesSupported:              []string{"authorization_code", "refresh_token"},
		SubjectTypesSupported:            []string{"public"},
		IDTokenSigningAlgValuesSupported: []string{"RS256"},
		ScopesSupported:                  []string{"openid", "profile", "email"},
		TokenEndpointAuthMethods:         []string{"client_secret_basic", "client_secret_post", "none"},
		ClaimsSupported: []string{
			"sub", "email", "email_verified", "name", "preferred_username", "roles",
			"iss", "aud", "iat", "exp", "nonce",
		},
	}
}

// idClaims builds the OIDC identity claims shared by ID tokens and the
// userinfo endpoint.
func idClaims(user domain.User, nonce string) map[string]any {
	claims := map[string]any{
		"sub":                user.ID,
		"email":              user.Email,
		"email_verified":     true,
		"preferred_username": user.Username,
	}
	if user.Name != "" {
		claims["name"] = user.Name
	}
	if nonce != "" {
		claims["nonce"] = nonce
	}
	return claims
}

package http

import (
	"net/http"

	"github.com/halcyonlabs/adminauth/internal/auth/service"
	"github.com/halcyonlabs/adminauth/pkg/httpx"
	"github.com/halcyonlabs/adminauth/pkg/jwtx"
)

// DiscoveryHandler serves GET /.well-known/openid-configuration.
func DiscoveryHandler(issuer string) http.HandlerFunc {
	doc := service.NewDiscoveryDocument(issuer)
	return func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteJSON(w, http.StatusOK, doc)
	}
}

// JWKSHandler exposes the JSON Web Key Set for public key discovery.
func JWKSHandler(signer *jwtx.Signer) http.HandlerFunc {
	jwks := jwtx.JWKS{Keys: []jwtx.JWK{signer.PublicJWK()}}
	return func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteJSON(w, http.StatusOK, jwks)
	}
}

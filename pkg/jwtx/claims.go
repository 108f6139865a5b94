package jwtx

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Default token TTLs. Short-lived access tokens limit the damage window of a
// leaked bearer credential; the opaque refresh token carries the long session.
const (
	// DefaultAccessTokenTTL is the default lifetime for access tokens.
	DefaultAccessTokenTTL = 15 * time.Minute

	// DefaultIDTokenTTL is the default lifetime for OIDC ID tokens.
	DefaultIDTokenTTL = time.Hour
)

// Claims are the access-token claims. Access tokens are self-contained: the
// subject is the user ID, everything else is standard registered claims.
type Claims struct {
	jwt.RegisteredClaims
}

// NewAccessClaims builds minimally-correct access token claims.
func NewAccessClaims(subject, issuer, audience string, ttl time.Duration, now time.Time) Claims {
	rc := jwt.RegisteredClaims{
		Issuer:    issuer,
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	if audience != "" {
		rc.Audience = jwt.ClaimStrings{audience}
	}
	return Claims{RegisteredClaims: rc}
}

// RemainingLifetime reports how long until the token expires, zero or
// negative when it already has. Used to size revocation-cache TTLs.
func (c *Claims) RemainingLifetime(now time.Time) time.Duration {
	if c.ExpiresAt == nil {
		return 0
	}
	return c.ExpiresAt.Time.Sub(now)
}

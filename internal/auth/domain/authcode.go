package domain

import "time"

// AuthCodeGrant is the payload cached against a one-time authorization code
// between the login redirect and the token exchange.
type AuthCodeGrant struct {
	UserID      string    `json:"user_id"`
	ClientID    string    `json:"client_id"`
	RedirectURI string    `json:"redirect_uri"`
	Scope       string    `json:"scope,omitempty"`
	Nonce       string    `json:"nonce,omitempty"`
	ExpiresAt   time.Time `json:"expires_at"`
}

package domain

import "time"

// User is an administrative account. Besides the identity fields it carries
// three single-slot credentials: the active refresh token, an optional
// password-reset token and an optional first-login setup token. Each slot
// stores only a fingerprint of the secret, never the secret itself.
type User struct {
	ID           string
	Email        string
	Username     string
	Name         string
	PasswordHash string // bcrypt encoded
	RoleID       string // Foreign key to roles table

	// IsActive gates every authenticated request. Deactivated accounts keep
	// their row but fail the auth gate and all grants.
	IsActive bool

	// PasswordChangedAt invalidates access tokens issued before a password
	// change. Nil when the password has never been changed.
	PasswordChangedAt *time.Time

	// Single refresh token slot. A new login or rotation overwrites it,
	// killing any previous session.
	RefreshTokenHash    *string
	RefreshTokenExpires *time.Time

	ResetTokenHash    *string
	ResetTokenExpires *time.Time

	SetupTokenHash    *string
	SetupTokenExpires *time.Time

	// LastLogin is stamped on every successful credential check. Nil until
	// the first login.
	LastLogin *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// HasActiveRefreshToken reports whether the refresh slot currently holds an
// unexpired token.
func (u *User) HasActiveRefreshToken(now time.Time) bool {
	return u.RefreshTokenHash != nil && u.RefreshTokenExpires != nil &&
		u.RefreshTokenExpires.After(now)
}

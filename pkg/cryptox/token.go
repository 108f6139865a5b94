package cryptox

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/big"
)

// Token size constants (in bytes before encoding).
const (
	// TokenSizeCode is used for OAuth2 authorization codes.
	TokenSizeCode = 32
	// TokenSizeReset is used for password-reset and account-setup tokens.
	TokenSizeReset = 32
	// TokenSizeRefresh is used for opaque refresh tokens.
	TokenSizeRefresh = 64
)

// GenerateToken creates a cryptographically secure random token of the
// specified byte length, hex encoded. Returns an error only if the random
// number generator fails.
func GenerateToken(size int) (string, error) {
	if size <= 0 {
		return "", fmt.Errorf("token size must be positive, got %d", size)
	}

	buf := make([]byte, size)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate random token: %w", err)
	}

	return hex.EncodeToString(buf), nil
}

// FingerprintToken returns a deterministic SHA-256 fingerprint of a token,
// hex encoded. Opaque tokens (refresh, setup, reset) are persisted only as
// fingerprints so a database leak does not leak usable credentials.
func FingerprintToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// GeneratePassword returns a random temporary password for admin-created
// accounts. The user is forced through the setup flow before first login,
// so this value is short-lived.
func GeneratePassword() (string, error) {
	const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	const length = 16
	password := make([]byte, length)
	for i := range password {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(charset))))
		if err != nil {
			return "", fmt.Errorf("failed to generate random password: %w", err)
		}
		password[i] = charset[n.Int64()]
	}
	return string(password), nil
}

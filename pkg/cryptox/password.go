package cryptox

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// PasswordHashCost is the bcrypt cost factor used for all stored secrets.
// Cost 12 keeps a single verification slow enough to blunt offline guessing
// without making interactive login sluggish.
const PasswordHashCost = 12

var ErrPasswordMismatch = errors.New("cryptox: password does not match")

// HashPassword produces a salted bcrypt hash of the given password.
// The returned string embeds the salt and cost, so it is self-describing.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), PasswordHashCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// VerifyPassword compares a candidate password against a stored bcrypt hash.
// Returns ErrPasswordMismatch when the candidate does not match; any other
// error means the stored hash is malformed. Neither input is ever logged.
func VerifyPassword(candidate, storedHash string) error {
	err := bcrypt.CompareHashAndPassword([]byte(storedHash), []byte(candidate))
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return ErrPasswordMismatch
	}
	return err
}

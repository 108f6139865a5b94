package jwtx

import (
	"crypto/rsa"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// Verification failure modes. Callers branch on these to decide between
// a 401 and a redirect back to login.
var (
	ErrMalformed  = errors.New("jwtx: malformed token")
	ErrExpired    = errors.New("jwtx: token expired")
	ErrIssuer     = errors.New("jwtx: unexpected issuer")
	ErrInvalidSig = errors.New("jwtx: invalid signature")
	ErrUnknownKID = errors.New("jwtx: unknown key id")
)

// Verifier checks RS256 tokens against a single trusted public key. It only
// needs the public half, so verifying services never hold signing material.
type Verifier struct {
	kid    string
	pub    *rsa.PublicKey
	issuer string
}

// NewVerifier builds a verifier for the given public key. issuer is enforced
// on every token; empty disables the check (tests only).
func NewVerifier(pub *rsa.PublicKey, issuer string) (*Verifier, error) {
	if pub == nil {
		return nil, errors.New("jwtx: nil public key")
	}
	kid, err := keyID(pub)
	if err != nil {
		return nil, err
	}
	return &Verifier{kid: kid, pub: pub, issuer: issuer}, nil
}

// VerifierForSigner is a convenience for services that both sign and verify.
func VerifierForSigner(s *Signer) *Verifier {
	return &Verifier{kid: s.kid, pub: s.pub, issuer: s.issuer}
}

// Verify parses and validates a raw compact JWT. Signature, expiry and
// issuer are all enforced; any failure maps to one of the sentinel errors
// above so callers never have to inspect library error strings.
func (v *Verifier) Verify(raw string) (*Claims, error) {
	claims := &Claims{}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithExpirationRequired(),
	)

	_, err := parser.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		if kid, ok := t.Header["kid"].(string); ok && kid != v.kid {
			return nil, ErrUnknownKID
		}
		return v.pub, nil
	})
	if err != nil {
		return nil, mapParseError(err)
	}

	if v.issuer != "" && claims.Issuer != v.issuer {
		return nil, ErrIssuer
	}

	return claims, nil
}

func mapParseError(err error) error {
	switch {
	case errors.Is(err, ErrUnknownKID):
		return ErrUnknownKID
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrExpired
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return ErrInvalidSig
	case errors.Is(err, jwt.ErrTokenMalformed):
		return ErrMalformed
	default:
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
}

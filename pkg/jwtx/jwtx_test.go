package jwtx_test

import (
	"crypto/x509"
	"encoding/pem"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/halcyonlabs/adminauth/pkg/cryptox"
	"github.com/halcyonlabs/adminauth/pkg/jwtx"
)

const testIssuer = "https://auth.test.local"

func newTestSigner(t *testing.T) *jwtx.Signer {
	t.Helper()

	pemKey, err := cryptox.GenerateRSAKey(2048)
	require.NoError(t, err)

	signer, err := jwtx.NewSigner(pemKey, testIssuer, 15*time.Minute)
	require.NoError(t, err)
	require.NoError(t, signer.Validate())

	return signer
}

func TestSignerRejectsGarbagePEM(t *testing.T) {
	t.Parallel()

	_, err := jwtx.NewSigner([]byte("not a key"), testIssuer, 0)
	require.Error(t, err)
}

func TestSignAndVerifyAccessToken(t *testing.T) {
	t.Parallel()

	signer := newTestSigner(t)
	verifier := jwtx.VerifierForSigner(signer)

	raw, err := signer.SignAccessToken("user-123", "admin-panel")
	require.NoError(t, err)

	claims, err := verifier.Verify(raw)
	require.NoError(t, err)
	require.Equal(t, "user-123", claims.Subject)
	require.Equal(t, testIssuer, claims.Issuer)
	require.Contains(t, claims.Audience, "admin-panel")
	require.Positive(t, claims.RemainingLifetime(time.Now()))
}

func TestAccessTokenOmitsEmptyAudience(t *testing.T) {
	t.Parallel()

	signer := newTestSigner(t)

	raw, err := signer.SignAccessToken("user-123", "")
	require.NoError(t, err)

	claims, err := jwtx.VerifierForSigner(signer).Verify(raw)
	require.NoError(t, err)
	require.Empty(t, claims.Audience)
}

func TestVerifyRejectsWrongKey(t *testing.T) {
	t.Parallel()

	signer := newTestSigner(t)
	other := newTestSigner(t)

	raw, err := signer.SignAccessToken("user-123", "")
	require.NoError(t, err)

	// The other verifier has a different kid, so the mismatch is caught
	// before signature validation even runs.
	_, err = jwtx.VerifierForSigner(other).Verify(raw)
	require.ErrorIs(t, err, jwtx.ErrUnknownKID)
}

func TestVerifyRejectsMalformed(t *testing.T) {
	t.Parallel()

	verifier := jwtx.VerifierForSigner(newTestSigner(t))

	_, err := verifier.Verify("definitely.not.ajwt")
	require.ErrorIs(t, err, jwtx.ErrMalformed)
}

func TestVerifyRejectsExpired(t *testing.T) {
	t.Parallel()

	pemKey, err := cryptox.GenerateRSAKey(2048)
	require.NoError(t, err)

	signer, err := jwtx.NewSigner(pemKey, testIssuer, 15*time.Minute)
	require.NoError(t, err)

	// Hand-roll an already-expired token with the same key by signing
	// claims dated in the past.
	block, _ := pem.Decode(pemKey)
	require.NotNil(t, block)
	priv, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	require.NoError(t, err)

	claims := jwtx.NewAccessClaims("user-123", testIssuer, "", time.Minute, time.Now().Add(-time.Hour))
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	tok.Header["kid"] = signer.KID()

	raw, err := tok.SignedString(priv)
	require.NoError(t, err)

	_, err = jwtx.VerifierForSigner(signer).Verify(raw)
	require.ErrorIs(t, err, jwtx.ErrExpired)
}

func TestVerifyRejectsWrongIssuer(t *testing.T) {
	t.Parallel()

	pemKey, err := cryptox.GenerateRSAKey(2048)
	require.NoError(t, err)

	signer, err := jwtx.NewSigner(pemKey, "https://rogue.example", 15*time.Minute)
	require.NoError(t, err)

	raw, err := signer.SignAccessToken("user-123", "")
	require.NoError(t, err)

	verifier, err := jwtx.NewVerifier(signer.PublicKey(), testIssuer)
	require.NoError(t, err)

	_, err = verifier.Verify(raw)
	require.ErrorIs(t, err, jwtx.ErrIssuer)
}

func TestVerifyRejectsNonRS256(t *testing.T) {
	t.Parallel()

	verifier := jwtx.VerifierForSigner(newTestSigner(t))

	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "user-123",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
	})
	raw, err := tok.SignedString([]byte("shared-secret"))
	require.NoError(t, err)

	_, err = verifier.Verify(raw)
	require.Error(t, err)
}

func TestSignIDToken(t *testing.T) {
	t.Parallel()

	signer := newTestSigner(t)

	raw, err := signer.SignIDToken(map[string]any{
		"sub":   "user-123",
		"email": "admin@example.com",
		"name":  "Admin",
		"iss":   "https://forged.example", // must be overridden
	}, "admin-panel")
	require.NoError(t, err)

	claims := jwt.MapClaims{}
	parser := jwt.NewParser(jwt.WithValidMethods([]string{"RS256"}))
	_, err = parser.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		return signer.PublicKey(), nil
	})
	require.NoError(t, err)

	require.Equal(t, "user-123", claims["sub"])
	require.Equal(t, "admin@example.com", claims["email"])
	require.Equal(t, testIssuer, claims["iss"])
	require.Equal(t, "admin-panel", claims["aud"])
	require.Contains(t, claims, "exp")
	require.Contains(t, claims, "iat")
}

func TestKIDIsDeterministic(t *testing.T) {
	t.Parallel()

	pemKey, err := cryptox.GenerateRSAKey(2048)
	require.NoError(t, err)

	a, err := jwtx.NewSigner(pemKey, testIssuer, 0)
	require.NoError(t, err)
	b, err := jwtx.NewSigner(pemKey, testIssuer, 0)
	require.NoError(t, err)

	require.Len(t, a.KID(), 16)
	require.Equal(t, a.KID(), b.KID())
	require.NotEqual(t, a.KID(), newTestSigner(t).KID())
}

func TestPublicJWKRoundTrip(t *testing.T) {
	t.Parallel()

	signer := newTestSigner(t)
	jwk := signer.PublicJWK()

	require.Equal(t, "RSA", jwk.Kty)
	require.Equal(t, "sig", jwk.Use)
	require.Equal(t, "RS256", jwk.Alg)
	require.Equal(t, signer.KID(), jwk.Kid)

	pemOut, err := jwk.PEM()
	require.NoError(t, err)

	pub, err := jwtx.ParseRSAPublicKeyPEM([]byte(pemOut))
	require.NoError(t, err)
	require.Zero(t, pub.N.Cmp(signer.PublicKey().N))
	require.Equal(t, signer.PublicKey().E, pub.E)
}

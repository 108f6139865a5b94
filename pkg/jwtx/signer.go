package jwtx

import (
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Signer issues RS256-signed access and ID tokens from a single long-lived
// RSA key pair. The key is loaded once at construction and never mutated;
// rotating it means constructing a new Signer, which changes the advertised
// kid because the kid is derived from the public key.
type Signer struct {
	kid       string
	key       *rsa.PrivateKey
	pub       *rsa.PublicKey
	issuer    string
	accessTTL time.Duration
	idTTL     time.Duration
}

// NewSigner loads an RSA private key from PEM bytes. Handles both PKCS1 and
// PKCS8 because otherwise we will be chasing a bug for longer than we would
// be willing to admit.
func NewSigner(pemKey []byte, issuer string, accessTTL time.Duration) (*Signer, error) {
	block, _ := pem.Decode(pemKey)
	if block == nil {
		return nil, errors.New("jwtx: invalid PEM for RSA key")
	}

	var key *rsa.PrivateKey

	switch block.Type {
	case "RSA PRIVATE KEY":
		k, err := x509.ParsePKCS1PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("jwtx: parse PKCS1: %w", err)
		}
		key = k
	case "PRIVATE KEY":
		priv, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("jwtx: parse PKCS8: %w", err)
		}
		rk, ok := priv.(*rsa.PrivateKey)
		if !ok {
			return nil, errors.New("jwtx: not RSA private key")
		}
		key = rk
	default:
		return nil, fmt.Errorf("jwtx: unsupported PEM type %q", block.Type)
	}

	if accessTTL <= 0 {
		accessTTL = DefaultAccessTokenTTL
	}

	kid, err := keyID(&key.PublicKey)
	if err != nil {
		return nil, err
	}

	return &Signer{
		kid:       kid,
		key:       key,
		pub:       &key.PublicKey,
		issuer:    issuer,
		accessTTL: accessTTL,
		idTTL:     DefaultIDTokenTTL,
	}, nil
}

// keyID derives a deterministic key identifier from the public key material,
// so a key-pair rotation is visible as a new kid in the JWKS.
func keyID(pub *rsa.PublicKey) (string, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return "", fmt.Errorf("jwtx: marshal public key: %w", err)
	}
	sum := sha256.Sum256(der)
	return hex.EncodeToString(sum[:])[:16], nil
}

func (s *Signer) Alg() string               { return jwt.SigningMethodRS256.Alg() }
func (s *Signer) KID() string               { return s.kid }
func (s *Signer) Issuer() string            { return s.issuer }
func (s *Signer) AccessTTL() time.Duration  { return s.accessTTL }
func (s *Signer) PublicKey() *rsa.PublicKey { return s.pub }

// SignAccessToken mints a short-lived access token for the given subject.
// audience is optional and omitted from the claims when empty.
func (s *Signer) SignAccessToken(subject, audience string) (string, error) {
	claims := NewAccessClaims(subject, s.issuer, audience, s.accessTTL, time.Now())
	t := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	t.Header["kid"] = s.kid
	return t.SignedString(s.key)
}

// SignIDToken mints an OIDC ID token with the supplied extra claims merged
// over the registered ones. The registered claims always win on conflict so
// callers cannot forge issuer or expiry.
func (s *Signer) SignIDToken(extra map[string]any, audience string) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{}
	for k, v := range extra {
		claims[k] = v
	}
	claims["iss"] = s.issuer
	claims["iat"] = now.Unix()
	claims["exp"] = now.Add(s.idTTL).Unix()
	if audience != "" {
		claims["aud"] = audience
	}

	t := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	t.Header["kid"] = s.kid
	return t.SignedString(s.key)
}

// PublicJWK returns the JWK for inclusion in the published JWKS. This is
// what third parties fetch to verify our tokens.
func (s *Signer) PublicJWK() JWK {
	return NewRSAJWK(s.kid, "sig", s.Alg(), s.pub)
}

// Validate does a quick sanity check that we actually have keys.
func (s *Signer) Validate() error {
	if s.key == nil || s.pub == nil {
		return errors.New("jwtx: nil RSA key")
	}
	return nil
}

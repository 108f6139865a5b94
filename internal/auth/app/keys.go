package app

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/halcyonlabs/adminauth/pkg/cryptox"
	"github.com/halcyonlabs/adminauth/pkg/jwtx"
)

// InitSigner loads the RSA signing key and builds the signer/verifier pair.
//
// When PrivateKeyFile is set the PEM is read from disk and tokens survive
// restarts. Without it an ephemeral key is generated on startup and every
// previously issued token becomes invalid.
func InitSigner(cfg Config, logger *slog.Logger) (*jwtx.Signer, *jwtx.Verifier, error) {
	var pemKey []byte

	if cfg.PrivateKeyFile != "" {
		data, err := os.ReadFile(cfg.PrivateKeyFile)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to read private key file: %w", err)
		}
		pemKey = data
		logger.Info("signing key loaded", "path", cfg.PrivateKeyFile)
	} else {
		data, err := cryptox.GenerateRSAKey(cfg.RSABits)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to generate signing key: %w", err)
		}
		pemKey = data
		logger.Warn("no private key file configured, generated an ephemeral signing key",
			"bits", cfg.RSABits)
	}

	signer, err := jwtx.NewSigner(pemKey, cfg.Issuer, cfg.AccessTokenTTL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize signer: %w", err)
	}

	logger.Info("token signing ready", "alg", signer.Alg(), "kid", signer.KID(), "issuer", cfg.Issuer)
	return signer, jwtx.VerifierForSigner(signer), nil
}

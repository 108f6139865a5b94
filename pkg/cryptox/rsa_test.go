package cryptox

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGenerateRSAKeyAndPublicPEM(t *testing.T) {
	t.Parallel()

	priv, err := GenerateRSAKey(2048)
	require.NoError(t, err)
	require.Contains(t, string(priv), "RSA PRIVATE KEY")

	pub, err := PublicKeyPEM(priv)
	require.NoError(t, err)
	require.Contains(t, string(pub), "PUBLIC KEY")
}

func TestGenerateRSAKeyRejectsWeakSizes(t *testing.T) {
	t.Parallel()

	_, err := GenerateRSAKey(1024)
	require.Error(t, err)
}

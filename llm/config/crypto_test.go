package config

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestCipher_RoundTrip(t *testing.T) {
	c := NewCipher("process-secret", zap.NewNop())

	stored, err := c.Encrypt("sk-test-12345")
	require.NoError(t, err)
	require.Contains(t, stored, ":")

	require.Equal(t, "sk-test-12345", c.Decrypt(stored))
}

func TestCipher_DistinctIVsPerWrite(t *testing.T) {
	c := NewCipher("process-secret", zap.NewNop())

	a, err := c.Encrypt("same-plaintext")
	require.NoError(t, err)
	b, err := c.Encrypt("same-plaintext")
	require.NoError(t, err)

	require.NotEqual(t, a, b, "each encryption must use a fresh random IV")
}

func TestCipher_DecryptFailureReturnsEmpty(t *testing.T) {
	c := NewCipher("process-secret", zap.NewNop())

	require.Equal(t, "", c.Decrypt("not-valid"))
	require.Equal(t, "", c.Decrypt("deadbeef:alsoinvalidhex!!"))
}

func TestCipher_WrongKeyFailsToDecrypt(t *testing.T) {
	a := NewCipher("secret-a", zap.NewNop())
	b := NewCipher("secret-b", zap.NewNop())

	stored, err := a.Encrypt("top-secret")
	require.NoError(t, err)
	require.Equal(t, "", b.Decrypt(stored))
}

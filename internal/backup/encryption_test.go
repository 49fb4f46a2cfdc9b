package backup

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dynamo-lifecycle/internal/config"
	appErrors "dynamo-lifecycle/internal/errors"
)

func enabledCipher(t *testing.T, passphrase string) *ChunkCipher {
	t.Helper()
	cipher, err := NewChunkCipher(&config.EncryptionConfig{Enabled: true, Passphrase: passphrase})
	require.NoError(t, err)
	return cipher
}

func TestChunkCipher_Disabled(t *testing.T) {
	cipher, err := NewChunkCipher(&config.EncryptionConfig{})
	require.NoError(t, err)

	assert.False(t, cipher.Enabled())
	assert.Equal(t, "NONE", cipher.Algorithm())

	payload := []byte("plain payload")
	sealed, err := cipher.Encrypt(payload)
	require.NoError(t, err)
	assert.Equal(t, payload, sealed)

	opened, err := cipher.Decrypt(sealed)
	require.NoError(t, err)
	assert.Equal(t, payload, opened)
}

func TestChunkCipher_RequiresPassphrase(t *testing.T) {
	_, err := NewChunkCipher(&config.EncryptionConfig{Enabled: true})
	require.Error(t, err)
	assert.True(t, appErrors.IsValidation(err))
}

func TestChunkCipher_RoundTrip(t *testing.T) {
	cipher := enabledCipher(t, "correct horse battery staple")
	assert.Equal(t, "AES-256-GCM", cipher.Algorithm())

	payload := []byte(`[{"pk":"rec-001","ts":"2025-07-01T08:00:00Z"}]`)
	sealed, err := cipher.Encrypt(payload)
	require.NoError(t, err)
	assert.NotEqual(t, payload, sealed)
	assert.Greater(t, len(sealed), len(payload))

	opened, err := cipher.Decrypt(sealed)
	require.NoError(t, err)
	assert.Equal(t, payload, opened)
}

func TestChunkCipher_EnvelopeIsSelfContained(t *testing.T) {
	payload := []byte("chunk body")
	sealed, err := enabledCipher(t, "shared passphrase").Encrypt(payload)
	require.NoError(t, err)

	// A cipher created later, with a different salt, must still open the
	// envelope using only the passphrase.
	opened, err := enabledCipher(t, "shared passphrase").Decrypt(sealed)
	require.NoError(t, err)
	assert.Equal(t, payload, opened)
}

func TestChunkCipher_WrongPassphrase(t *testing.T) {
	sealed, err := enabledCipher(t, "right").Encrypt([]byte("secret"))
	require.NoError(t, err)

	_, err = enabledCipher(t, "wrong").Decrypt(sealed)
	require.Error(t, err)
	assert.True(t, appErrors.IsIntegrity(err))
}

func TestChunkCipher_TamperedPayload(t *testing.T) {
	cipher := enabledCipher(t, "passphrase")
	sealed, err := cipher.Encrypt([]byte("secret"))
	require.NoError(t, err)

	sealed[len(sealed)-1] ^= 0xff
	_, err = cipher.Decrypt(sealed)
	require.Error(t, err)
	assert.True(t, appErrors.IsIntegrity(err))
}

func TestChunkCipher_TruncatedPayload(t *testing.T) {
	cipher := enabledCipher(t, "passphrase")

	for _, truncated := range [][]byte{nil, []byte("short"), make([]byte, cipherSaltSize)} {
		_, err := cipher.Decrypt(truncated)
		require.Error(t, err)
		assert.True(t, appErrors.IsIntegrity(err))
	}
}

package backup

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"io"
	"sync"

	"golang.org/x/crypto/pbkdf2"

	"dynamo-lifecycle/internal/config"
	appErrors "dynamo-lifecycle/internal/errors"
)

const (
	cipherSaltSize   = 16
	cipherKeySize    = 32 // AES-256
	pbkdf2Iterations = 100000
)

// ChunkCipher encrypts chunk payloads with AES-256-GCM. The key is derived
// from the configured passphrase with PBKDF2-SHA256 and a per-cipher random
// salt. Each encrypted payload is self-contained:
//
//	salt (16 bytes) || nonce || ciphertext
//
// so a restore only needs the passphrase. Derived keys are cached per salt
// because the derivation is deliberately slow.
type ChunkCipher struct {
	enabled    bool
	passphrase string
	salt       []byte
	key        []byte

	mu      sync.Mutex
	derived map[string][]byte
}

// NewChunkCipher creates a cipher from the encryption configuration. With
// encryption disabled the cipher passes data through untouched.
func NewChunkCipher(cfg *config.EncryptionConfig) (*ChunkCipher, error) {
	c := &ChunkCipher{
		enabled: cfg.Enabled,
		derived: make(map[string][]byte),
	}
	if !cfg.Enabled {
		return c, nil
	}
	if cfg.Passphrase == "" {
		return nil, appErrors.NewValidationError("encryption passphrase is required when encryption is enabled", nil)
	}

	salt := make([]byte, cipherSaltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, appErrors.NewStorageError("failed to generate encryption salt", err)
	}

	c.passphrase = cfg.Passphrase
	c.salt = salt
	c.key = pbkdf2.Key([]byte(cfg.Passphrase), salt, pbkdf2Iterations, cipherKeySize, sha256.New)
	c.derived[string(salt)] = c.key
	return c, nil
}

// Enabled reports whether payloads will actually be encrypted
func (c *ChunkCipher) Enabled() bool {
	return c.enabled
}

// Algorithm names the cipher in effect
func (c *ChunkCipher) Algorithm() string {
	if !c.enabled {
		return "NONE"
	}
	return "AES-256-GCM"
}

// Encrypt seals data into the self-contained envelope
func (c *ChunkCipher) Encrypt(data []byte) ([]byte, error) {
	if !c.enabled {
		return data, nil
	}

	gcm, err := c.gcmFor(c.key)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, appErrors.NewStorageError("failed to generate nonce", err)
	}

	envelope := make([]byte, 0, cipherSaltSize+len(nonce)+len(data)+gcm.Overhead())
	envelope = append(envelope, c.salt...)
	envelope = append(envelope, nonce...)
	return gcm.Seal(envelope, nonce, data, nil), nil
}

// Decrypt opens an envelope produced by Encrypt. A wrong passphrase or a
// damaged payload fails the integrity check.
func (c *ChunkCipher) Decrypt(data []byte) ([]byte, error) {
	if !c.enabled {
		return data, nil
	}
	if len(data) < cipherSaltSize {
		return nil, appErrors.NewIntegrityError("encrypted chunk is too short", nil)
	}

	salt, rest := data[:cipherSaltSize], data[cipherSaltSize:]
	key := c.keyFor(salt)

	gcm, err := c.gcmFor(key)
	if err != nil {
		return nil, err
	}
	if len(rest) < gcm.NonceSize() {
		return nil, appErrors.NewIntegrityError("encrypted chunk is too short", nil)
	}

	nonce, ciphertext := rest[:gcm.NonceSize()], rest[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, appErrors.NewIntegrityError("failed to decrypt chunk", err)
	}
	return plaintext, nil
}

func (c *ChunkCipher) keyFor(salt []byte) []byte {
	c.mu.Lock()
	defer c.mu.Unlock()

	if key, ok := c.derived[string(salt)]; ok {
		return key
	}
	key := pbkdf2.Key([]byte(c.passphrase), salt, pbkdf2Iterations, cipherKeySize, sha256.New)
	c.derived[string(salt)] = key
	return key
}

func (c *ChunkCipher) gcmFor(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, appErrors.NewStorageError("failed to create AES cipher", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, appErrors.NewStorageError("failed to create GCM cipher", err)
	}
	return gcm, nil
}

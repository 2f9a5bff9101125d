package auth

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"
)

const sealedPrefix = "v1:"

// ErrSealedSecret is returned when a sealed secret cannot be opened
var ErrSealedSecret = errors.New("unable to open sealed secret")

// SecretBox seals TOTP secrets with AES-256-GCM before they are stored.
// A SecretBox without a key stores secrets as plain Base32.
type SecretBox struct {
	aead cipher.AEAD
}

// NewSecretBox creates a SecretBox. An empty key disables sealing;
// otherwise the key must be exactly 32 bytes for AES-256.
func NewSecretBox(key []byte) (*SecretBox, error) {
	if len(key) == 0 {
		return &SecretBox{}, nil
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("encryption key must be exactly 32 bytes, got %d", len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return &SecretBox{aead: gcm}, nil
}

// Enabled reports whether secrets are sealed
func (b *SecretBox) Enabled() bool {
	return b.aead != nil
}

// Seal returns the storage form of a Base32 secret
func (b *SecretBox) Seal(secret string) (string, error) {
	if b.aead == nil {
		return secret, nil
	}

	nonce := make([]byte, b.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := b.aead.Seal(nonce, nonce, []byte(secret), nil)
	return sealedPrefix + base64.StdEncoding.EncodeToString(sealed), nil
}

// Open returns the Base32 secret from its storage form.
// Values without the sealed prefix are returned unchanged.
func (b *SecretBox) Open(stored string) (string, error) {
	if !strings.HasPrefix(stored, sealedPrefix) {
		return stored, nil
	}
	if b.aead == nil {
		return "", fmt.Errorf("%w: no encryption key configured", ErrSealedSecret)
	}

	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(stored, sealedPrefix))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSealedSecret, err)
	}

	nonceSize := b.aead.NonceSize()
	if len(raw) < nonceSize {
		return "", fmt.Errorf("%w: ciphertext too short", ErrSealedSecret)
	}

	plaintext, err := b.aead.Open(nil, raw[:nonceSize], raw[nonceSize:], nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSealedSecret, err)
	}

	return string(plaintext), nil
}

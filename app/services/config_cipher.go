package services

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

var ErrCipherNotConfigured = errors.New("config encryption key is not configured")

// ConfigCipher seals gateway secrets stored in payment_configs
type ConfigCipher interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(encoded string) (string, error)
	Enabled() bool
}

type configCipher struct {
	aead cipher.AEAD
}

// NewConfigCipher builds an XChaCha20-Poly1305 cipher from a base64 encoded 32 byte key.
// An empty key yields a cipher that refuses to encrypt or decrypt.
func NewConfigCipher(encodedKey string) (ConfigCipher, error) {
	if encodedKey == "" {
		return &configCipher{}, nil
	}
	key, err := base64.StdEncoding.DecodeString(encodedKey)
	if err != nil {
		return nil, fmt.Errorf("config encryption key is not valid base64: %w", err)
	}
	if len(key) != chacha20poly1305.KeySize {
		return nil, fmt.Errorf("config encryption key must be %d bytes, got %d", chacha20poly1305.KeySize, len(key))
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}
	return &configCipher{aead: aead}, nil
}

func (c *configCipher) Enabled() bool { return c.aead != nil }

// Encrypt returns base64(nonce || ciphertext)
func (c *configCipher) Encrypt(plaintext string) (string, error) {
	if c.aead == nil {
		return "", ErrCipherNotConfigured
	}
	nonce := make([]byte, c.aead.NonceSize(), c.aead.NonceSize()+len(plaintext)+c.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}
	sealed := c.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

func (c *configCipher) Decrypt(encoded string) (string, error) {
	if c.aead == nil {
		return "", ErrCipherNotConfigured
	}
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("encrypted config value is not valid base64: %w", err)
	}
	if len(raw) < c.aead.NonceSize()+c.aead.Overhead() {
		return "", errors.New("encrypted config value is too short")
	}
	nonce, ciphertext := raw[:c.aead.NonceSize()], raw[c.aead.NonceSize():]
	plain, err := c.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt config value: %w", err)
	}
	return string(plain), nil
}

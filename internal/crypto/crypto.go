// Package crypto seals personal profile fields before they reach the database.
package crypto

import (
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// sealedPrefix marks values written by FieldCipher so rows written before
// encryption was enabled can still be read back.
const sealedPrefix = "enc:v1:"

var hkdfInfo = []byte("perfecto profile fields")

// ErrMalformed is returned when a sealed value cannot be decoded.
var ErrMalformed = errors.New("malformed sealed value")

// FieldCipher encrypts short strings with XChaCha20-Poly1305 under a key
// derived from a configured secret. A nil *FieldCipher passes values through.
type FieldCipher struct {
	aead cipher.AEAD
}

// NewFieldCipher derives a 256-bit key from secret with HKDF-SHA256.
// Returns nil if secret is empty (encryption disabled).
func NewFieldCipher(secret string) (*FieldCipher, error) {
	if secret == "" {
		return nil, nil
	}
	if len(secret) < 16 {
		return nil, fmt.Errorf("encryption key must be at least 16 characters, got %d", len(secret))
	}

	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(secret), nil, hkdfInfo), key); err != nil {
		return nil, fmt.Errorf("deriving key: %w", err)
	}

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}
	return &FieldCipher{aead: aead}, nil
}

// Seal encrypts plaintext. Empty strings stay empty so blank profile fields
// remain distinguishable in queries.
func (c *FieldCipher) Seal(plaintext string) (string, error) {
	if c == nil || plaintext == "" {
		return plaintext, nil
	}

	nonce := make([]byte, c.aead.NonceSize(), c.aead.NonceSize()+len(plaintext)+c.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generating nonce: %w", err)
	}

	sealed := c.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return sealedPrefix + base64.RawStdEncoding.EncodeToString(sealed), nil
}

// Open decrypts a value produced by Seal. Values without the sealed prefix
// are returned unchanged.
func (c *FieldCipher) Open(value string) (string, error) {
	if !strings.HasPrefix(value, sealedPrefix) {
		return value, nil
	}
	if c == nil {
		return "", fmt.Errorf("sealed value present but no encryption key configured")
	}

	data, err := base64.RawStdEncoding.DecodeString(strings.TrimPrefix(value, sealedPrefix))
	if err != nil {
		return "", ErrMalformed
	}
	ns := c.aead.NonceSize()
	if len(data) < ns+c.aead.Overhead() {
		return "", ErrMalformed
	}

	plaintext, err := c.aead.Open(nil, data[:ns], data[ns:], nil)
	if err != nil {
		return "", fmt.Errorf("decrypting: %w", err)
	}
	return string(plaintext), nil
}

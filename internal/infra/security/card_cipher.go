package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
)

// sealedPrefix marks values produced by Encrypt so rows written before
// encryption was enabled are still readable.
const sealedPrefix = "enc:v1:"

var ErrEmptyKey = errors.New("security: encryption key is empty")

// CardCipher encrypts payout card numbers at rest with AES-256-GCM and a
// random nonce per value.
type CardCipher struct {
	gcm cipher.AEAD
}

// NewCardCipher derives a 32-byte key from secret with SHA-256, so any
// non-empty secret is accepted.
func NewCardCipher(secret string) (*CardCipher, error) {
	if secret == "" {
		return nil, ErrEmptyKey
	}
	key := sha256.Sum256([]byte(secret))
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("aes.NewCipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("cipher.NewGCM: %w", err)
	}
	return &CardCipher{gcm: gcm}, nil
}

// Encrypt returns "enc:v1:" + base64(nonce || ciphertext).
func (c *CardCipher) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, c.gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("rand nonce: %w", err)
	}
	ct := c.gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return sealedPrefix + base64.StdEncoding.EncodeToString(ct), nil
}

// Decrypt reverses Encrypt. Values without the prefix are returned as is.
func (c *CardCipher) Decrypt(value string) (string, error) {
	if len(value) < len(sealedPrefix) || value[:len(sealedPrefix)] != sealedPrefix {
		return value, nil
	}
	data, err := base64.StdEncoding.DecodeString(value[len(sealedPrefix):])
	if err != nil {
		return "", fmt.Errorf("base64 decode: %w", err)
	}
	ns := c.gcm.NonceSize()
	if len(data) < ns {
		return "", fmt.Errorf("ciphertext too short")
	}
	nonce, ct := data[:ns], data[ns:]
	pt, err := c.gcm.Open(nil, nonce, ct, nil)
	if err != nil {
		return "", fmt.Errorf("gcm open: %w", err)
	}
	return string(pt), nil
}

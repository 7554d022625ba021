// Package security holds the credential encryption and access-token primitives.
package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
)

// Encryptor provides AES-256-GCM encryption for data at rest.
// Ciphertexts are stored as base64(nonce||ciphertext).
type Encryptor struct {
	aead cipher.AEAD
}

// NewEncryptor creates an Encryptor from a 32-byte key.
func NewEncryptor(key []byte) (*Encryptor, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("encryption key must be 32 bytes, got %d", len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &Encryptor{aead: aead}, nil
}

// NewEncryptorFromString accepts a raw 32-byte, base64, or hex encoded key.
func NewEncryptorFromString(v string) (*Encryptor, error) {
	if v == "" {
		return nil, errors.New("encryption key is not set")
	}
	if len(v) == 32 {
		if e, err := NewEncryptor([]byte(v)); err == nil {
			return e, nil
		}
	}
	if b, err := base64.StdEncoding.DecodeString(v); err == nil && len(b) == 32 {
		return NewEncryptor(b)
	}
	if b, err := hex.DecodeString(v); err == nil && len(b) == 32 {
		return NewEncryptor(b)
	}
	return nil, errors.New("invalid encryption key: need 32 bytes raw, base64, or hex")
}

// Encrypt returns base64(nonce||ciphertext) for the given plaintext.
func (e *Encryptor) Encrypt(plain []byte) (string, error) {
	nonce := make([]byte, e.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}
	ct := e.aead.Seal(nil, nonce, plain, nil)
	return base64.StdEncoding.EncodeToString(append(nonce, ct...)), nil
}

// Decrypt accepts base64(nonce||ciphertext) and returns the plaintext.
func (e *Encryptor) Decrypt(b64 string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, err
	}
	if len(raw) < e.aead.NonceSize() {
		return nil, errors.New("ciphertext too short")
	}
	nonce, ct := raw[:e.aead.NonceSize()], raw[e.aead.NonceSize():]
	return e.aead.Open(nil, nonce, ct, nil)
}

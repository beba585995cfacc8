package storage

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/pbkdf2"
)

// Encrypted artifacts are laid out as
// magic(8) + salt(16) + nonce(12) + ciphertext + tag(16).
var gcmMagic = []byte("GCM3NCR0")

const (
	saltLen     = 16
	nonceLen    = 12
	tagLen      = 16
	kdfRounds   = 100000
	derivedSize = 32
)

func deriveKey(password string, salt []byte) []byte {
	return pbkdf2.Key([]byte(password), salt, kdfRounds, derivedSize, sha256.New)
}

// Seal encrypts data with a key derived from password.
func Seal(data []byte, password string) ([]byte, error) {
	salt := make([]byte, saltLen)
	nonce := make([]byte, nonceLen)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	gcm, err := newGCM(password, salt)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(gcmMagic)+saltLen+nonceLen+len(data)+tagLen)
	out = append(out, gcmMagic...)
	out = append(out, salt...)
	out = append(out, nonce...)
	return gcm.Seal(out, nonce, data, nil), nil
}

// Open reverses Seal.
func Open(data []byte, password string) ([]byte, error) {
	if !IsSealed(data) {
		return nil, fmt.Errorf("not an encrypted artifact")
	}
	if len(data) < len(gcmMagic)+saltLen+nonceLen+tagLen {
		return nil, fmt.Errorf("GCM data too short: %d bytes", len(data))
	}
	rest := data[len(gcmMagic):]
	salt, nonce, ct := rest[:saltLen], rest[saltLen:saltLen+nonceLen], rest[saltLen+nonceLen:]
	gcm, err := newGCM(password, salt)
	if err != nil {
		return nil, err
	}
	plain, err := gcm.Open(nil, nonce, ct, nil)
	if err != nil {
		return nil, fmt.Errorf("GCM decryption failed: %w", err)
	}
	return plain, nil
}

// IsSealed reports whether data carries the encrypted-artifact header.
func IsSealed(data []byte) bool { return bytes.HasPrefix(data, gcmMagic) }

func newGCM(password string, salt []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(deriveKey(password, salt))
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}

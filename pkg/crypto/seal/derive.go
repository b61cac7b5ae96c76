package seal

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

const (
	// KeySize is the sealing key length.
	KeySize = 32

	// MinSecretLength is the shortest secret DeriveKey accepts.
	MinSecretLength = 16
)

// ErrSecretTooShort is returned for secrets under MinSecretLength bytes.
var ErrSecretTooShort = errors.New("seal: secret too short")

// DeriveKey derives a sealing key from a device secret with HKDF-SHA256.
// Distinct info strings yield independent keys.
func DeriveKey(secret []byte, info string) ([]byte, error) {
	if len(secret) < MinSecretLength {
		return nil, ErrSecretTooShort
	}

	r := hkdf.New(sha256.New, secret, nil, []byte(info))
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("seal: derive key: %w", err)
	}
	return key, nil
}

// NewFromSecret derives a key from secret and returns a cipher of type t,
// or the platform cipher when t is empty.
func NewFromSecret(secret []byte, info string, t CipherType) (Cipher, error) {
	key, err := DeriveKey(secret, info)
	if err != nil {
		return nil, err
	}
	if t == "" {
		return New(key)
	}
	return NewWithType(key, t)
}

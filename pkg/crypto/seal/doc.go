// Package seal protects data at rest with authenticated encryption.
//
// Keys are derived from a device secret with HKDF. The cipher is chosen by
// platform: AES-256-GCM where AES is hardware accelerated, ChaCha20-Poly1305
// otherwise. Both can be requested explicitly with NewWithType.
//
// Usage:
//
//	c, err := seal.NewFromSecret(secret, "objects", seal.CipherChaCha20)
//	blob, err := c.Seal(plaintext, aad)
//	plaintext, err := c.Open(blob, aad)
package seal

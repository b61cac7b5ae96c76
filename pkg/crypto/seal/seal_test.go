package seal

import (
	"bytes"
	"errors"
	"testing"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

func TestNewWithType(t *testing.T) {
	key := make([]byte, KeySize)

	tests := []struct {
		name    string
		key     []byte
		typ     CipherType
		wantErr bool
	}{
		{"aes-gcm", key, CipherAESGCM, false},
		{"chacha20", key, CipherChaCha20, false},
		{"unknown", key, "rot13", true},
		{"short key", key[:16], CipherAESGCM, true},
		{"long key", append(key, 0), CipherChaCha20, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := NewWithType(tt.key, tt.typ)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewWithType() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && c.Type() != tt.typ {
				t.Errorf("Type() = %s, want %s", c.Type(), tt.typ)
			}
		})
	}
}

func TestSealOpen(t *testing.T) {
	key, err := DeriveKey(testSecret, "test")
	if err != nil {
		t.Fatal(err)
	}

	for _, typ := range []CipherType{CipherAESGCM, CipherChaCha20} {
		t.Run(string(typ), func(t *testing.T) {
			c, err := NewWithType(key, typ)
			if err != nil {
				t.Fatal(err)
			}

			tests := []struct {
				name      string
				plaintext []byte
				aad       []byte
			}{
				{"empty", []byte{}, nil},
				{"simple", []byte("private key bytes"), nil},
				{"with aad", []byte("secret"), []byte("obj/e0fc")},
				{"large", bytes.Repeat([]byte("A"), 2048), nil},
			}
			for _, tt := range tests {
				t.Run(tt.name, func(t *testing.T) {
					sealed, err := c.Seal(tt.plaintext, tt.aad)
					if err != nil {
						t.Fatalf("Seal() error = %v", err)
					}
					opened, err := c.Open(sealed, tt.aad)
					if err != nil {
						t.Fatalf("Open() error = %v", err)
					}
					if !bytes.Equal(opened, tt.plaintext) {
						t.Error("Open() returned different plaintext")
					}
				})
			}
		})
	}
}

func TestOpen_Tampered(t *testing.T) {
	c, err := NewFromSecret(testSecret, "test", CipherChaCha20)
	if err != nil {
		t.Fatal(err)
	}
	sealed, err := c.Seal([]byte("data"), []byte("obj/e0fc"))
	if err != nil {
		t.Fatal(err)
	}

	flipped := bytes.Clone(sealed)
	flipped[len(flipped)-1] ^= 0x01
	if _, err := c.Open(flipped, []byte("obj/e0fc")); err == nil {
		t.Error("Open() should reject a tampered tag")
	}
	if _, err := c.Open(sealed, []byte("obj/e0fd")); err == nil {
		t.Error("Open() should reject mismatched additional data")
	}
	if _, err := c.Open(sealed[:4], nil); !errors.Is(err, ErrCiphertextTooShort) {
		t.Errorf("Open() short input error = %v", err)
	}
}

func TestDeriveKey(t *testing.T) {
	a, err := DeriveKey(testSecret, "objects")
	if err != nil {
		t.Fatal(err)
	}
	b, _ := DeriveKey(testSecret, "objects")
	c, _ := DeriveKey(testSecret, "other")

	if len(a) != KeySize {
		t.Errorf("key length = %d", len(a))
	}
	if !bytes.Equal(a, b) {
		t.Error("derivation is not deterministic")
	}
	if bytes.Equal(a, c) {
		t.Error("different info should yield different keys")
	}

	if _, err := DeriveKey([]byte("short"), "objects"); !errors.Is(err, ErrSecretTooShort) {
		t.Errorf("DeriveKey() short secret error = %v", err)
	}
}

func TestSealWrongKey(t *testing.T) {
	c1, _ := NewFromSecret(testSecret, "a", "")
	c2, _ := NewFromSecret(testSecret, "b", "")

	sealed, err := c1.Seal([]byte("data"), nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c2.Open(sealed, nil); err == nil {
		t.Error("Open() with another key should fail")
	}
}

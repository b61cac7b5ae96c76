package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// ObjectID addresses a data or key object provisioned inside the element.
type ObjectID uint16

// Well-known RSA key object identifiers.
const (
	OIDRSAKey1 ObjectID = 0xE0FC
	OIDRSAKey2 ObjectID = 0xE0FD
)

// String formats the identifier as 0xNNNN.
func (o ObjectID) String() string {
	return fmt.Sprintf("0x%.4X", uint16(o))
}

// ParseObjectID parses an identifier given in hex (0x or 0X prefix) or decimal.
func ParseObjectID(s string) (ObjectID, error) {
	s = strings.TrimSpace(s)
	var (
		v   uint64
		err error
	)
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		v, err = strconv.ParseUint(s[2:], 16, 16)
	} else {
		v, err = strconv.ParseUint(s, 10, 16)
	}
	if err != nil {
		return 0, ErrInvalidArgument.WithDetails("object identifier %q", s).WithCause(err)
	}
	return ObjectID(v), nil
}

// KeyFamily identifies a public key algorithm family.
type KeyFamily int

const (
	FamilyUnknown KeyFamily = iota
	// FamilyRSA is rsaEncryption (1.2.840.113549.1.1.1).
	FamilyRSA
	// FamilyRSA2 is the X.500 id-ea-rsa algorithm (2.5.8.1.1).
	FamilyRSA2
	FamilyEC
	FamilyEd25519
)

// String returns the family name.
func (f KeyFamily) String() string {
	switch f {
	case FamilyRSA:
		return "RSA"
	case FamilyRSA2:
		return "RSA2"
	case FamilyEC:
		return "EC"
	case FamilyEd25519:
		return "Ed25519"
	default:
		return "unknown"
	}
}

// IsRSA reports whether the family is one of the RSA variants.
func (f KeyFamily) IsRSA() bool {
	return f == FamilyRSA || f == FamilyRSA2
}

// KeySize is an RSA modulus length in bits.
type KeySize int

const (
	KeySizeUnknown KeySize = 0
	KeySize1024    KeySize = 1024
	KeySize2048    KeySize = 2048
)

// SupportedKeySizes lists the tiers the element can operate on, smallest first.
var SupportedKeySizes = []KeySize{KeySize1024, KeySize2048}

// ClassifyKeySize maps a bit length onto a supported tier. No rounding is done.
func ClassifyKeySize(bits int) (KeySize, error) {
	for _, s := range SupportedKeySizes {
		if int(s) == bits {
			return s, nil
		}
	}
	return KeySizeUnknown, ErrUnsupportedKeySize.WithDetails("%d bits", bits)
}

// Bytes returns the modulus length in bytes.
func (s KeySize) Bytes() int {
	return int(s) / 8
}

// KeyTypeTag returns the element's key type tag for the size.
func (s KeySize) KeyTypeTag() byte {
	switch s {
	case KeySize1024:
		return 0x41
	case KeySize2048:
		return 0x42
	default:
		return 0x00
	}
}

// KeySizeFromTag is the inverse of KeyTypeTag.
func KeySizeFromTag(tag byte) KeySize {
	switch tag {
	case 0x41:
		return KeySize1024
	case 0x42:
		return KeySize2048
	default:
		return KeySizeUnknown
	}
}

// KeyRefKind tags the KeyReference variant.
type KeyRefKind int

const (
	KeyRefInvalid KeyRefKind = iota
	KeyRefOnChip
	KeyRefHost
)

// String returns the variant name.
func (k KeyRefKind) String() string {
	switch k {
	case KeyRefOnChip:
		return "on-chip"
	case KeyRefHost:
		return "host"
	default:
		return "invalid"
	}
}

// KeyReference addresses the key an operation runs with.
//
// For KeyRefOnChip only OID is meaningful, plus Size when the caller knows it.
// For KeyRefHost, PublicKey holds the PKCS#1 RSAPublicKey DER, and Size and
// Family describe it.
type KeyReference struct {
	Kind      KeyRefKind
	OID       ObjectID
	PublicKey []byte
	Size      KeySize
	Family    KeyFamily
}

// String describes the reference without key material.
func (r KeyReference) String() string {
	switch r.Kind {
	case KeyRefOnChip:
		return "oid " + r.OID.String()
	case KeyRefHost:
		return fmt.Sprintf("host %s-%d", r.Family, r.Size)
	default:
		return "invalid"
	}
}

// Validate checks the reference is well formed.
func (r KeyReference) Validate() error {
	switch r.Kind {
	case KeyRefOnChip:
		if r.Size != KeySizeUnknown {
			if _, err := ClassifyKeySize(int(r.Size)); err != nil {
				return err
			}
		}
		return nil
	case KeyRefHost:
		if !r.Family.IsRSA() {
			return ErrUnsupportedKeyType.WithDetails("%s", r.Family)
		}
		if _, err := ClassifyKeySize(int(r.Size)); err != nil {
			return err
		}
		if len(r.PublicKey) == 0 {
			return ErrInvalidKeyReference.WithDetails("empty host public key")
		}
		return nil
	default:
		return ErrInvalidKeyReference.WithDetails("unknown variant")
	}
}

// DecodedKey is the output of a key-file decoder.
type DecodedKey struct {
	// Label is the PEM block type, e.g. "PUBLIC KEY".
	Label string
	// DER is the block content.
	DER []byte
	// Bits is the key size in bits, zero when unknown.
	Bits int
	// Family is the algorithm family.
	Family KeyFamily
}

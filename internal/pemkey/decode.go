package pemkey

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/asn1"
	"encoding/pem"
	"fmt"
	"math/big"
	"os"

	"golang.org/x/crypto/cryptobyte"
	cbasn1 "golang.org/x/crypto/cryptobyte/asn1"

	"github.com/yndnr/trustm-go/internal/core/domain"
)

// PEM block labels.
const (
	LabelPublicKey    = "PUBLIC KEY"
	LabelRSAPublicKey = "RSA PUBLIC KEY"
)

// MaxFileSize bounds the key files ReadFile accepts.
const MaxFileSize = 16 << 10

var (
	oidRSA     = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 1, 1}
	oidRSA2    = asn1.ObjectIdentifier{2, 5, 8, 1, 1}
	oidEC      = asn1.ObjectIdentifier{1, 2, 840, 10045, 2, 1}
	oidEd25519 = asn1.ObjectIdentifier{1, 3, 101, 112}

	oidP256 = asn1.ObjectIdentifier{1, 2, 840, 10045, 3, 1, 7}
	oidP384 = asn1.ObjectIdentifier{1, 3, 132, 0, 34}
	oidP521 = asn1.ObjectIdentifier{1, 3, 132, 0, 35}
)

// Decode reads the first PEM block of data.
//
// A "PUBLIC KEY" block is parsed as SubjectPublicKeyInfo and classified by
// algorithm; for RSA keys DER holds the PKCS#1 RSAPublicKey and Bits the
// modulus length. An "RSA PUBLIC KEY" block is parsed as PKCS#1. Any other
// block is returned with its label and raw bytes and an unknown family, so
// the caller decides whether the label is acceptable.
func Decode(data []byte) (*domain.DecodedKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, domain.ErrInvalidPublicKeyFile.WithDetails("no PEM block")
	}

	switch block.Type {
	case LabelPublicKey:
		k, err := parseSPKI(block.Bytes)
		if err != nil {
			return nil, domain.ErrInvalidPublicKeyFile.WithCause(err)
		}
		k.Label = block.Type
		return k, nil
	case LabelRSAPublicKey:
		pub, err := x509.ParsePKCS1PublicKey(block.Bytes)
		if err != nil {
			return nil, domain.ErrInvalidPublicKeyFile.WithCause(err)
		}
		return &domain.DecodedKey{
			Label:  block.Type,
			DER:    block.Bytes,
			Bits:   pub.N.BitLen(),
			Family: domain.FamilyRSA,
		}, nil
	default:
		return &domain.DecodedKey{Label: block.Type, DER: block.Bytes}, nil
	}
}

// ReadFile reads and decodes a PEM key file.
func ReadFile(path string) (*domain.DecodedKey, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, domain.ErrReadFailed.WithDetails("%s", path).WithCause(err)
	}
	if info.Size() > MaxFileSize {
		return nil, domain.ErrInvalidPublicKeyFile.WithDetails("%s is %d bytes, limit %d", path, info.Size(), MaxFileSize)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, domain.ErrReadFailed.WithDetails("%s", path).WithCause(err)
	}
	if len(data) == 0 {
		return nil, domain.ErrInvalidPublicKeyFile.WithDetails("%s is empty", path)
	}
	return Decode(data)
}

// EncodePublicKey returns pub as a "PUBLIC KEY" PEM block.
func EncodePublicKey(pub *rsa.PublicKey) ([]byte, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return nil, err
	}
	return pem.EncodeToMemory(&pem.Block{Type: LabelPublicKey, Bytes: der}), nil
}

// parseSPKI classifies a SubjectPublicKeyInfo:
//
//	SEQUENCE { SEQUENCE { OID, params ANY OPTIONAL }, BIT STRING }
func parseSPKI(der []byte) (*domain.DecodedKey, error) {
	var (
		input   = cryptobyte.String(der)
		spki    cryptobyte.String
		algID   cryptobyte.String
		oid     asn1.ObjectIdentifier
		keyBits asn1.BitString
	)
	if !input.ReadASN1(&spki, cbasn1.SEQUENCE) || !input.Empty() {
		return nil, fmt.Errorf("malformed SubjectPublicKeyInfo")
	}
	if !spki.ReadASN1(&algID, cbasn1.SEQUENCE) || !algID.ReadASN1ObjectIdentifier(&oid) {
		return nil, fmt.Errorf("malformed algorithm identifier")
	}
	if !spki.ReadASN1BitString(&keyBits) || !spki.Empty() {
		return nil, fmt.Errorf("malformed subject public key")
	}
	key := keyBits.RightAlign()

	switch {
	case oid.Equal(oidRSA), oid.Equal(oidRSA2):
		n, err := rsaModulus(key)
		if err != nil {
			return nil, err
		}
		family := domain.FamilyRSA
		if oid.Equal(oidRSA2) {
			family = domain.FamilyRSA2
		}
		return &domain.DecodedKey{DER: key, Bits: n.BitLen(), Family: family}, nil

	case oid.Equal(oidEC):
		var curve asn1.ObjectIdentifier
		bits := 0
		if algID.ReadASN1ObjectIdentifier(&curve) {
			switch {
			case curve.Equal(oidP256):
				bits = 256
			case curve.Equal(oidP384):
				bits = 384
			case curve.Equal(oidP521):
				bits = 521
			}
		}
		return &domain.DecodedKey{DER: der, Bits: bits, Family: domain.FamilyEC}, nil

	case oid.Equal(oidEd25519):
		return &domain.DecodedKey{DER: der, Bits: 256, Family: domain.FamilyEd25519}, nil

	default:
		return &domain.DecodedKey{DER: der, Family: domain.FamilyUnknown}, nil
	}
}

// rsaModulus reads n from RSAPublicKey ::= SEQUENCE { n INTEGER, e INTEGER }.
func rsaModulus(der []byte) (*big.Int, error) {
	var (
		input = cryptobyte.String(der)
		seq   cryptobyte.String
		n     = new(big.Int)
		e     = new(big.Int)
	)
	if !input.ReadASN1(&seq, cbasn1.SEQUENCE) || !input.Empty() ||
		!seq.ReadASN1Integer(n) || !seq.ReadASN1Integer(e) || !seq.Empty() {
		return nil, fmt.Errorf("malformed RSA public key")
	}
	if n.Sign() <= 0 || e.Sign() <= 0 {
		return nil, fmt.Errorf("RSA public key has a non-positive component")
	}
	return n, nil
}

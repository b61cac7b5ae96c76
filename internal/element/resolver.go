package element

import (
	"crypto/rsa"
	"crypto/x509"

	"github.com/yndnr/trustm-go/internal/core/domain"
)

// PublicKeyLabel is the only PEM label accepted for host keys.
const PublicKeyLabel = "PUBLIC KEY"

// ResolveOnChip references a key object on the element. The identifier is
// not checked here; the element reports an unprovisioned object at use.
func ResolveOnChip(oid domain.ObjectID) domain.KeyReference {
	return domain.KeyReference{Kind: domain.KeyRefOnChip, OID: oid}
}

// ResolveOnChipSized references an on-chip key whose size the caller knows,
// which spares the metadata read before encryption.
func ResolveOnChipSized(oid domain.ObjectID, bits int) (domain.KeyReference, error) {
	size, err := domain.ClassifyKeySize(bits)
	if err != nil {
		return domain.KeyReference{}, err
	}
	return domain.KeyReference{Kind: domain.KeyRefOnChip, OID: oid, Size: size}, nil
}

// ResolveHostPublicKey checks a host-supplied public key and returns a
// reference carrying its PKCS#1 encoding and key-type tier.
//
// der may be a PKCS#1 RSAPublicKey or an rsaEncryption SubjectPublicKeyInfo.
// The family must be an RSA variant and bits one of the supported tiers; the
// modulus must match bits exactly.
func ResolveHostPublicKey(der []byte, family domain.KeyFamily, bits int) (domain.KeyReference, error) {
	if !family.IsRSA() {
		return domain.KeyReference{}, domain.ErrUnsupportedKeyType.WithDetails("%s", family)
	}
	size, err := domain.ClassifyKeySize(bits)
	if err != nil {
		return domain.KeyReference{}, err
	}

	pub, err := parseRSAPublicKey(der)
	if err != nil {
		return domain.KeyReference{}, domain.ErrInvalidKeyReference.WithDetails("host public key").WithCause(err)
	}
	if got := pub.N.BitLen(); got != bits {
		return domain.KeyReference{}, domain.ErrInvalidKeyReference.WithDetails(
			"declared %d bits, modulus has %d", bits, got)
	}

	return domain.KeyReference{
		Kind:      domain.KeyRefHost,
		PublicKey: x509.MarshalPKCS1PublicKey(pub),
		Size:      size,
		Family:    family,
	}, nil
}

// ResolveDecoded resolves the output of a key-file decoder. The label must
// be "PUBLIC KEY".
func ResolveDecoded(k *domain.DecodedKey) (domain.KeyReference, error) {
	if k == nil || len(k.DER) == 0 {
		return domain.KeyReference{}, domain.ErrInvalidPublicKeyFile.WithDetails("no key data")
	}
	if k.Label != PublicKeyLabel {
		return domain.KeyReference{}, domain.ErrInvalidPublicKeyFile.WithDetails("label %q", k.Label)
	}
	return ResolveHostPublicKey(k.DER, k.Family, k.Bits)
}

func parseRSAPublicKey(der []byte) (*rsa.PublicKey, error) {
	pub, err := x509.ParsePKCS1PublicKey(der)
	if err == nil {
		return pub, nil
	}
	spki, spkiErr := x509.ParsePKIXPublicKey(der)
	if spkiErr != nil {
		return nil, err
	}
	rsaPub, ok := spki.(*rsa.PublicKey)
	if !ok {
		return nil, domain.ErrUnsupportedKeyType.WithDetails("%T", spki)
	}
	return rsaPub, nil
}

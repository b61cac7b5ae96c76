package domain

// MaxPlaintextLength bounds the message accepted by an encrypt request.
const MaxPlaintextLength = 2048

// EncryptionScheme identifies an RSA encryption padding scheme.
type EncryptionScheme byte

const (
	// SchemeRSAESPKCS1v15 is RSAES-PKCS1-v1_5.
	SchemeRSAESPKCS1v15 EncryptionScheme = 0x11
)

// String returns the scheme name.
func (s EncryptionScheme) String() string {
	switch s {
	case SchemeRSAESPKCS1v15:
		return "RSAES-PKCS1-v1_5"
	default:
		return "unknown"
	}
}

// Overhead returns the bytes of the modulus consumed by padding.
func (s EncryptionScheme) Overhead() int {
	switch s {
	case SchemeRSAESPKCS1v15:
		return 11
	default:
		return 0
	}
}

// Supported reports whether the engine implements the scheme.
func (s EncryptionScheme) Supported() bool {
	return s == SchemeRSAESPKCS1v15
}

// Capacity returns the largest plaintext the scheme fits under a key of size.
func (s EncryptionScheme) Capacity(size KeySize) int {
	return size.Bytes() - s.Overhead()
}

// CryptoRequest describes one RSA encryption.
type CryptoRequest struct {
	Scheme    EncryptionScheme
	Plaintext []byte
	// Label is associated data. RSAES-PKCS1-v1_5 has none, so it must be empty.
	Label []byte
	Key   KeyReference
}

// NewEncryptRequest builds a PKCS#1 v1.5 request for plaintext under key.
func NewEncryptRequest(plaintext []byte, key KeyReference) *CryptoRequest {
	return &CryptoRequest{
		Scheme:    SchemeRSAESPKCS1v15,
		Plaintext: plaintext,
		Key:       key,
	}
}

// Validate checks the request shape. The payload is checked against the key
// capacity only when the key size is known.
func (r *CryptoRequest) Validate() error {
	if !r.Scheme.Supported() {
		return ErrUnsupportedScheme.WithDetails("scheme 0x%.2X", byte(r.Scheme))
	}
	if len(r.Plaintext) == 0 {
		return ErrEmptyPayload
	}
	if len(r.Plaintext) > MaxPlaintextLength {
		return ErrPayloadTooLarge.WithDetails("%d bytes exceeds limit of %d", len(r.Plaintext), MaxPlaintextLength)
	}
	if len(r.Label) != 0 {
		return ErrUnsupportedScheme.WithDetails("%s takes no label", r.Scheme)
	}
	if err := r.Key.Validate(); err != nil {
		return err
	}
	if r.Key.Size != KeySizeUnknown {
		return r.CheckCapacity(r.Key.Size)
	}
	return nil
}

// CheckCapacity fails when the plaintext does not fit a key of size.
func (r *CryptoRequest) CheckCapacity(size KeySize) error {
	if limit := r.Scheme.Capacity(size); len(r.Plaintext) > limit {
		return ErrPayloadTooLarge.WithDetails("%d bytes, RSA-%d under %s allows %d",
			len(r.Plaintext), int(size), r.Scheme, limit)
	}
	return nil
}

// MaxCapacity returns the capacity under the largest supported key size.
func (s EncryptionScheme) MaxCapacity() int {
	return s.Capacity(SupportedKeySizes[len(SupportedKeySizes)-1])
}

// Ciphertext is the opaque output of an encryption.
type Ciphertext []byte

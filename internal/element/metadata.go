package element

import (
	"encoding/binary"
	"fmt"

	"github.com/yndnr/trustm-go/internal/core/domain"
)

// Metadata TLV tags.
const (
	tagMetadata  = 0x20
	tagVersion   = 0xC1
	tagAlgorithm = 0xE0
	tagKeyUsage  = 0xE1
)

// Key usage bits.
const (
	KeyUsageAuth         byte = 0x01
	KeyUsageEncrypt      byte = 0x02
	KeyUsageSign         byte = 0x10
	KeyUsageKeyAgreement byte = 0x20
)

// Metadata describes a key object as reported by the element.
//
// It is carried as a TLV container: 0x20 L { tag L value }*, with one-byte
// lengths.
type Metadata struct {
	Version   uint16
	Algorithm byte
	KeyUsage  byte
}

// KeySize returns the RSA size implied by Algorithm.
func (m Metadata) KeySize() domain.KeySize {
	return domain.KeySizeFromTag(m.Algorithm)
}

// Encode serializes the metadata container.
func (m Metadata) Encode() []byte {
	body := make([]byte, 0, 12)
	body = append(body, tagVersion, 2, 0, 0)
	binary.BigEndian.PutUint16(body[2:4], m.Version)
	if m.Algorithm != 0 {
		body = append(body, tagAlgorithm, 1, m.Algorithm)
	}
	if m.KeyUsage != 0 {
		body = append(body, tagKeyUsage, 1, m.KeyUsage)
	}
	return append([]byte{tagMetadata, byte(len(body))}, body...)
}

// ParseMetadata decodes a metadata container. Unknown tags are skipped.
func ParseMetadata(b []byte) (Metadata, error) {
	var m Metadata
	if len(b) < 2 || b[0] != tagMetadata {
		return m, fmt.Errorf("metadata: missing 0x%.2X container", tagMetadata)
	}
	n := int(b[1])
	if len(b)-2 < n {
		return m, fmt.Errorf("metadata: container length %d exceeds %d bytes", n, len(b)-2)
	}

	body := b[2 : 2+n]
	for len(body) > 0 {
		if len(body) < 2 {
			return m, fmt.Errorf("metadata: truncated tag header")
		}
		tag, l := body[0], int(body[1])
		if len(body)-2 < l {
			return m, fmt.Errorf("metadata: tag 0x%.2X length %d truncated", tag, l)
		}
		val := body[2 : 2+l]

		switch tag {
		case tagVersion:
			if l != 2 {
				return m, fmt.Errorf("metadata: version length %d", l)
			}
			m.Version = binary.BigEndian.Uint16(val)
		case tagAlgorithm:
			if l != 1 {
				return m, fmt.Errorf("metadata: algorithm length %d", l)
			}
			m.Algorithm = val[0]
		case tagKeyUsage:
			if l != 1 {
				return m, fmt.Errorf("metadata: key usage length %d", l)
			}
			m.KeyUsage = val[0]
		}
		body = body[2+l:]
	}
	return m, nil
}

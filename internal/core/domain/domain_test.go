package domain

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestDomainError_Is(t *testing.T) {
	err := ErrPayloadTooLarge.WithDetails("300 bytes")
	if !errors.Is(err, ErrPayloadTooLarge) {
		t.Error("errors.Is should match on code")
	}
	if errors.Is(err, ErrEmptyPayload) {
		t.Error("errors.Is should not match a different code")
	}

	wrapped := fmt.Errorf("encrypt: %w", err)
	if !IsDomainError(wrapped, "SE-VALD-4003") {
		t.Error("IsDomainError should see through fmt wrapping")
	}
	if GetErrorCode(wrapped) != "SE-VALD-4003" {
		t.Errorf("GetErrorCode() = %q", GetErrorCode(wrapped))
	}
}

func TestDomainError_CopiesDoNotMutateSentinel(t *testing.T) {
	_ = ErrOperationFailed.WithStatus(StatusAccessDenied).WithDetails("x")
	if ErrOperationFailed.Status != StatusSuccess || ErrOperationFailed.Details != "" {
		t.Error("sentinel was mutated")
	}
}

func TestDomainError_ErrorString(t *testing.T) {
	err := ErrOperationFailed.WithStatus(StatusAccessDenied)
	s := err.Error()
	if !strings.Contains(s, "SE-OPER-5000") {
		t.Errorf("missing code in %q", s)
	}
	if !strings.Contains(s, "0x00008007") {
		t.Errorf("missing status in %q", s)
	}

	status, ok := GetStatus(fmt.Errorf("wrap: %w", err))
	if !ok || status != StatusAccessDenied {
		t.Errorf("GetStatus() = %v, %v", status, ok)
	}
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		err  error
		want Kind
	}{
		{ErrTransportUnavailable, KindTransport},
		{ErrSessionClosed, KindTransport},
		{ErrUnsupportedKeyType, KindValidation},
		{ErrInvalidPublicKeyFile, KindValidation},
		{ErrSubmissionRejected, KindSubmission},
		{ErrTransportBusy, KindSubmission},
		{ErrOperationFailed.WithStatus(StatusInvalidOID), KindOperation},
		{ErrOperationTimeout, KindOperation},
		{ErrReadFailed, KindIO},
		{errors.New("plain"), KindUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.want {
				t.Errorf("KindOf() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseObjectID(t *testing.T) {
	tests := []struct {
		in      string
		want    ObjectID
		wantErr bool
	}{
		{"0xE0FC", 0xE0FC, false},
		{"0Xe0fd", 0xE0FD, false},
		{"57596", 0xE0FC, false},
		{"0x10000", 0, true},
		{"65536", 0, true},
		{"oid", 0, true},
		{"", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseObjectID(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseObjectID(%q) error = %v", tt.in, err)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("ParseObjectID(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
	if OIDRSAKey1.String() != "0xE0FC" {
		t.Errorf("String() = %s", OIDRSAKey1)
	}
}

func TestClassifyKeySize(t *testing.T) {
	for _, bits := range []int{1024, 2048} {
		if s, err := ClassifyKeySize(bits); err != nil || int(s) != bits {
			t.Errorf("ClassifyKeySize(%d) = %v, %v", bits, s, err)
		}
	}
	for _, bits := range []int{0, 512, 1023, 1536, 3072, 4096} {
		if _, err := ClassifyKeySize(bits); !errors.Is(err, ErrUnsupportedKeySize) {
			t.Errorf("ClassifyKeySize(%d) error = %v", bits, err)
		}
	}
	if KeySizeFromTag(KeySize2048.KeyTypeTag()) != KeySize2048 {
		t.Error("tag round trip failed")
	}
}

func TestKeyReference_Validate(t *testing.T) {
	tests := []struct {
		name string
		ref  KeyReference
		want error
	}{
		{"on-chip", KeyReference{Kind: KeyRefOnChip, OID: OIDRSAKey1}, nil},
		{"on-chip sized", KeyReference{Kind: KeyRefOnChip, OID: OIDRSAKey1, Size: KeySize1024}, nil},
		{"on-chip bad size", KeyReference{Kind: KeyRefOnChip, Size: 4096}, ErrUnsupportedKeySize},
		{"host", KeyReference{Kind: KeyRefHost, PublicKey: []byte{1}, Size: KeySize2048, Family: FamilyRSA2}, nil},
		{"host ec", KeyReference{Kind: KeyRefHost, PublicKey: []byte{1}, Size: KeySize2048, Family: FamilyEC}, ErrUnsupportedKeyType},
		{"host empty", KeyReference{Kind: KeyRefHost, Size: KeySize2048, Family: FamilyRSA}, ErrInvalidKeyReference},
		{"zero value", KeyReference{}, ErrInvalidKeyReference},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.ref.Validate()
			if tt.want == nil && err != nil {
				t.Fatalf("Validate() error = %v", err)
			}
			if tt.want != nil && !errors.Is(err, tt.want) {
				t.Fatalf("Validate() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestCryptoRequest_Validate(t *testing.T) {
	key1024 := KeyReference{Kind: KeyRefOnChip, OID: OIDRSAKey2, Size: KeySize1024}
	key2048 := KeyReference{Kind: KeyRefOnChip, OID: OIDRSAKey1, Size: KeySize2048}

	tests := []struct {
		name string
		req  *CryptoRequest
		want error
	}{
		{"fits 1024", NewEncryptRequest(make([]byte, 117), key1024), nil},
		{"over 1024", NewEncryptRequest(make([]byte, 118), key1024), ErrPayloadTooLarge},
		{"300 on 1024", NewEncryptRequest(make([]byte, 300), key1024), ErrPayloadTooLarge},
		{"fits 2048", NewEncryptRequest(make([]byte, 245), key2048), nil},
		{"over 2048", NewEncryptRequest(make([]byte, 246), key2048), ErrPayloadTooLarge},
		{"empty", NewEncryptRequest(nil, key2048), ErrEmptyPayload},
		{"over max", NewEncryptRequest(make([]byte, MaxPlaintextLength+1), key2048), ErrPayloadTooLarge},
		{"unsized on-chip", NewEncryptRequest(make([]byte, 200), KeyReference{Kind: KeyRefOnChip}), nil},
		{"label", &CryptoRequest{Scheme: SchemeRSAESPKCS1v15, Plaintext: []byte{1}, Label: []byte{1}, Key: key2048}, ErrUnsupportedScheme},
		{"scheme", &CryptoRequest{Scheme: 0x99, Plaintext: []byte{1}, Key: key2048}, ErrUnsupportedScheme},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if tt.want == nil && err != nil {
				t.Fatalf("Validate() error = %v", err)
			}
			if tt.want != nil && !errors.Is(err, tt.want) {
				t.Fatalf("Validate() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestStatusCode_String(t *testing.T) {
	if got := StatusInvalidOID.String(); got != "0x00008001 invalid object identifier" {
		t.Errorf("String() = %q", got)
	}
	if got := StatusCode(0x8123).String(); got != "0x00008123" {
		t.Errorf("String() = %q", got)
	}
	if !StatusAccessDenied.IsDeviceError() || StatusTimeout.IsDeviceError() {
		t.Error("IsDeviceError() misclassified")
	}
}

package pkcs11dev

import (
	"bytes"
	"context"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/miekg/pkcs11"

	"github.com/yndnr/trustm-go/internal/core/domain"
	"github.com/yndnr/trustm-go/internal/element"
	"github.com/yndnr/trustm-go/internal/telemetry/logger"
)

func TestOIDBytes(t *testing.T) {
	if got := oidBytes(domain.OIDRSAKey1); !bytes.Equal(got, []byte{0xE0, 0xFC}) {
		t.Errorf("oidBytes() = % X", got)
	}
}

func TestStatusOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want domain.StatusCode
	}{
		{"nil", nil, domain.StatusDeviceError},
		{"not found", errNotFound, domain.StatusInvalidOID},
		{"bad key data", errInvalidData, domain.StatusInvalidDataField},
		{"data length", pkcs11.Error(pkcs11.CKR_DATA_LEN_RANGE), domain.StatusInvalidLengthField},
		{"not logged in", pkcs11.Error(pkcs11.CKR_USER_NOT_LOGGED_IN), domain.StatusAccessDenied},
		{"device removed", pkcs11.Error(pkcs11.CKR_DEVICE_REMOVED), domain.StatusCommsError},
		{"other pkcs11", pkcs11.Error(pkcs11.CKR_GENERAL_ERROR), domain.StatusDeviceError},
		{"plain error", errors.New("boom"), domain.StatusDeviceError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := statusOf(tt.err); got != tt.want {
				t.Errorf("statusOf() = %v, want %v", got, tt.want)
			}
		})
	}
}

type teardownLog struct {
	calls    []string
	closeErr error
}

func (l *teardownLog) CloseSession(pkcs11.SessionHandle) error {
	l.calls = append(l.calls, "close-session")
	return nil
}

func (l *teardownLog) Destroy() { l.calls = append(l.calls, "destroy") }

type moduleCloser struct{ log *teardownLog }

func (c moduleCloser) Close() error {
	c.log.calls = append(c.log.calls, "finalize")
	return c.log.closeErr
}

func TestTeardown_Order(t *testing.T) {
	tests := []struct {
		name    string
		session bool
		want    string
	}{
		{"open session", true, "close-session destroy finalize"},
		{"no session", false, "destroy finalize"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log := &teardownLog{}
			var sh *pkcs11.SessionHandle
			if tt.session {
				h := pkcs11.SessionHandle(7)
				sh = &h
			}
			if err := teardown(log, sh, moduleCloser{log}); err != nil {
				t.Fatalf("teardown() error = %v", err)
			}
			if got := strings.Join(log.calls, " "); got != tt.want {
				t.Errorf("calls = %q, want %q", got, tt.want)
			}
		})
	}

	t.Run("keeps the open error", func(t *testing.T) {
		log := &teardownLog{closeErr: errors.New("finalize failed")}
		cause := errors.New("login failed")
		if err := teardownWith(log, nil, moduleCloser{log}, cause); err != cause {
			t.Errorf("teardownWith() = %v, want %v", err, cause)
		}
		if err := teardown(log, nil, moduleCloser{log}); !errors.Is(err, log.closeErr) {
			t.Errorf("teardown() = %v, want wrapped %v", err, log.closeErr)
		}
	})
}

func TestOpen_MissingConfig(t *testing.T) {
	err := New(Config{}).Open(context.Background())
	if !errors.Is(err, domain.ErrTransportUnavailable) {
		t.Errorf("Open() error = %v, want ErrTransportUnavailable", err)
	}
}

func TestSubmit_NotOpen(t *testing.T) {
	d := New(Config{ModulePath: "/nonexistent.so", TokenLabel: "x"})
	err := d.Submit(&element.Command{Op: element.OpEncryptRSA}, func(element.Completion) {})
	var se *element.SubmitError
	if !errors.As(err, &se) || se.Status != domain.StatusCommsError {
		t.Errorf("Submit() error = %v", err)
	}
}

// tokenConfig returns a configuration for a real token, or skips.
func tokenConfig(t *testing.T) Config {
	t.Helper()
	path := os.Getenv("TRUSTM_PKCS11_MODULE")
	if path == "" {
		t.Skip("TRUSTM_PKCS11_MODULE not set")
	}
	label := os.Getenv("TRUSTM_PKCS11_TOKEN_LABEL")
	if label == "" {
		label = "trustm"
	}
	pin := os.Getenv("TRUSTM_PKCS11_PIN")
	if pin == "" {
		pin = "1234"
	}
	return Config{ModulePath: path, TokenLabel: label, Pin: pin, Logger: logger.Nop()}
}

func TestToken_EncryptRoundTrip(t *testing.T) {
	cfg := tokenConfig(t)
	ctx := context.Background()

	dev := New(cfg)
	s, err := element.Open(ctx, dev, element.WithLogger(logger.Nop()))
	if err != nil {
		t.Fatalf("element.Open() error = %v", err)
	}
	defer s.Close()

	pub, err := dev.Provision(ctx, domain.OIDRSAKey2, 1024)
	if err != nil {
		t.Fatalf("Provision() error = %v", err)
	}
	got, err := dev.PublicKey(ctx, domain.OIDRSAKey2)
	if err != nil || !got.Equal(pub) {
		t.Fatalf("PublicKey() = %v, %v", got, err)
	}

	ct, err := s.EncryptMessage(ctx, domain.NewEncryptRequest([]byte("token"), element.ResolveOnChip(domain.OIDRSAKey2)))
	if err != nil {
		t.Fatalf("EncryptMessage() error = %v", err)
	}
	if len(ct) != 128 {
		t.Errorf("ciphertext length = %d, want 128", len(ct))
	}

	_, err = s.EncryptMessage(ctx, domain.NewEncryptRequest([]byte("x"), element.ResolveOnChip(0xE0F1)))
	if !errors.Is(err, domain.ErrObjectNotFound) {
		t.Errorf("missing object error = %v", err)
	}
}

package command

import (
	"errors"
	"strings"
	"testing"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/trustm-go/internal/core/domain"
)

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitOK},
		{"transport", domain.ErrTransportUnavailable, ExitTransport},
		{"validation", domain.ErrPayloadTooLarge.WithDetails("x"), ExitValidation},
		{"submission", domain.ErrTransportBusy, ExitSubmission},
		{"operation", domain.ErrObjectNotFound.WithStatus(domain.StatusInvalidOID), ExitOperation},
		{"io", domain.ErrWriteFailed, ExitIO},
		{"exit coder", cli.Exit("bye", 7), 7},
		{"plain", errors.New("boom"), ExitTransport},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExitCode(tt.err); got != tt.want {
				t.Errorf("ExitCode() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestRun_NoArgsPrintsHelp(t *testing.T) {
	r := run(t)
	r.expect(t, ExitOK)
	if !strings.Contains(r.stdout, "trustm-rsa-enc [-k OID | -p PUBKEY] -i INPUT -o OUTPUT") {
		t.Errorf("help missing usage line:\n%s", r.stdout)
	}
}

func TestRun_Help(t *testing.T) {
	r := run(t, "-h")
	r.expect(t, ExitOK)
	for _, flag := range []string{"--key OID, -k OID", "--pubkey FILE, -p FILE", "--in FILE, -i FILE", "--out FILE, -o FILE"} {
		if !strings.Contains(r.stdout, flag) {
			t.Errorf("help missing %q:\n%s", flag, r.stdout)
		}
	}
}

func TestRun_UsageErrors(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{"unknown flag", []string{"--frobnicate"}, "invalid argument"},
		{"both keys", []string{"-k", "0xE0FC", "-p", "pub.pem", "-i", "in", "-o", "out"}, "mutually exclusive"},
		{"no key", []string{"-i", "in", "-o", "out"}, "-k OID or -p PUBKEY"},
		{"no output", []string{"-k", "0xE0FC", "-i", "in"}, "Output filename missing!!!"},
		{"no input", []string{"-k", "0xE0FC", "-o", "out"}, "Input filename missing!!!"},
		{"bad oid", []string{"-k", "0xZZ", "-i", "in", "-o", "out"}, "object identifier"},
		{"stray argument", []string{"-k", "0xE0FC", "-i", "in", "-o", "out", "extra"}, "unexpected argument"},
		{"bad backend", []string{"--backend", "i2c", "-k", "0xE0FC", "-i", "in", "-o", "out"}, "backend"},
		{"bad format", []string{"-f", "xml", "-k", "0xE0FC", "-i", "in", "-o", "out"}, "output format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := run(t, tt.args...)
			r.expect(t, ExitValidation)
			if !strings.Contains(r.stderr, tt.wantErr) {
				t.Errorf("stderr = %q, want %q", r.stderr, tt.wantErr)
			}
		})
	}
}

func TestRun_TransportFailure(t *testing.T) {
	r := run(t,
		"--backend", "pkcs11",
		"--pkcs11-module", "/nonexistent/libpkcs11.so",
		"--pkcs11-token", "trustm",
		"-k", "0xE0FC", "-i", "in", "-o", "out")
	r.expect(t, ExitTransport)
	if strings.Contains(r.stdout, "====") {
		t.Error("banner printed although the session never opened")
	}
}

func TestConfigShow(t *testing.T) {
	t.Setenv("TRUSTM_EMULATOR__SECRET", "do-not-print-this")
	r := run(t, "config", "show")
	r.expect(t, ExitOK)
	if strings.Contains(r.stdout, "do-not-print-this") {
		t.Error("secret leaked in config show")
	}
	if !strings.Contains(r.stdout, "backend: emulator") || !strings.Contains(r.stdout, "[REDACTED]") {
		t.Errorf("config show =\n%s", r.stdout)
	}
}

func TestConfigValidate(t *testing.T) {
	r := run(t, "config", "validate")
	r.expect(t, ExitOK)
	if !strings.Contains(r.stdout, "Configuration is valid") {
		t.Errorf("stdout = %q", r.stdout)
	}

	r = run(t, "--key-size", "4096", "config", "validate")
	r.expect(t, ExitValidation)
}

package command

import (
	"bytes"
	"crypto/rand"
	"crypto/rsa"
	"os"
	"path/filepath"
	"testing"

	"github.com/yndnr/trustm-go/internal/pemkey"
)

// result captures one application run.
type result struct {
	code   int
	stdout string
	stderr string
}

// run executes the application with an isolated environment.
func run(t *testing.T, args ...string) result {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(home, ".config"))

	var stdout, stderr bytes.Buffer
	code := Run(append([]string{"trustm-rsa-enc"}, args...), &stdout, &stderr)
	return result{code: code, stdout: stdout.String(), stderr: stderr.String()}
}

func (r result) expect(t *testing.T, code int) {
	t.Helper()
	if r.code != code {
		t.Fatalf("exit code = %d, want %d\nstdout:\n%s\nstderr:\n%s", r.code, code, r.stdout, r.stderr)
	}
}

func writeFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

// hostKey writes the public half of a fresh key to a PEM file.
func hostKey(t *testing.T, dir string, bits int) (*rsa.PrivateKey, string) {
	t.Helper()
	priv, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		t.Fatal(err)
	}
	pemBytes, err := pemkey.EncodePublicKey(&priv.PublicKey)
	if err != nil {
		t.Fatal(err)
	}
	return priv, writeFile(t, dir, "pub.pem", pemBytes)
}

// persistentEmulator configures a sealed emulator store shared across runs
// and returns the flags selecting it.
func persistentEmulator(t *testing.T) []string {
	t.Helper()
	t.Setenv("TRUSTM_EMULATOR__SECRET", "command-test-secret-0123")
	return []string{"--backend", "emulator", "--emulator-dir", t.TempDir()}
}

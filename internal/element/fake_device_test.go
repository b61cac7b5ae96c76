package element

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/yndnr/trustm-go/internal/core/domain"
	"github.com/yndnr/trustm-go/internal/telemetry/logger"
)

var (
	keysOnce    sync.Once
	testKey1024 *rsa.PrivateKey
	testKey2048 *rsa.PrivateKey
)

func testKeys(t *testing.T) (*rsa.PrivateKey, *rsa.PrivateKey) {
	t.Helper()
	keysOnce.Do(func() {
		var err error
		if testKey1024, err = rsa.GenerateKey(rand.Reader, 1024); err != nil {
			panic(err)
		}
		if testKey2048, err = rsa.GenerateKey(rand.Reader, 2048); err != nil {
			panic(err)
		}
	})
	return testKey1024, testKey2048
}

// fakeDevice is an in-memory Device. With manual set, completions are held
// until completeNext is called.
type fakeDevice struct {
	name      string
	openErr   error
	submitErr error
	resetErr  error
	manual    bool
	status    domain.StatusCode // forced completion status, if non-zero
	oversize  bool              // append a byte to every ciphertext
	keys      map[domain.ObjectID]*rsa.PrivateKey

	mu      sync.Mutex
	opened  bool
	closed  bool
	resets  int
	cmds    []*Command
	pending []func()
}

func newFakeDevice(t *testing.T) *fakeDevice {
	k1024, k2048 := testKeys(t)
	return &fakeDevice{
		name: t.Name(),
		keys: map[domain.ObjectID]*rsa.PrivateKey{
			domain.OIDRSAKey1: k2048,
			domain.OIDRSAKey2: k1024,
		},
	}
}

func (d *fakeDevice) Name() string { return d.name }

func (d *fakeDevice) Open(ctx context.Context) error {
	if d.openErr != nil {
		return d.openErr
	}
	d.mu.Lock()
	d.opened = true
	d.mu.Unlock()
	return nil
}

func (d *fakeDevice) Close() error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	return nil
}

func (d *fakeDevice) Reset(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.resets++
	d.pending = nil
	return d.resetErr
}

func (d *fakeDevice) Submit(cmd *Command, done CompletionFunc) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.submitErr != nil {
		return d.submitErr
	}
	d.cmds = append(d.cmds, cmd)
	c := d.execute(cmd)
	if d.manual {
		d.pending = append(d.pending, func() { done(c) })
		return nil
	}
	go done(c)
	return nil
}

func (d *fakeDevice) execute(cmd *Command) Completion {
	if d.status != domain.StatusSuccess {
		return Completion{Status: d.status}
	}

	var pub *rsa.PublicKey
	if cmd.HostKey != nil {
		k, err := x509.ParsePKCS1PublicKey(cmd.HostKey.DER)
		if err != nil {
			return Completion{Status: domain.StatusInvalidDataField}
		}
		pub = k
	} else {
		k, ok := d.keys[cmd.OID]
		if !ok {
			return Completion{Status: domain.StatusInvalidOID}
		}
		pub = &k.PublicKey
	}

	switch cmd.Op {
	case OpReadMetadata:
		size := domain.KeySize(pub.N.BitLen())
		return Completion{Data: Metadata{Version: 1, Algorithm: size.KeyTypeTag(), KeyUsage: KeyUsageEncrypt}.Encode()}
	case OpEncryptRSA:
		ct, err := rsa.EncryptPKCS1v15(rand.Reader, pub, cmd.Payload)
		if err != nil {
			return Completion{Status: domain.StatusInvalidLengthField}
		}
		if d.oversize {
			ct = append(ct, 0)
		}
		return Completion{Data: ct}
	default:
		return Completion{Status: domain.StatusInvalidCommand}
	}
}

func (d *fakeDevice) completeNext() {
	d.mu.Lock()
	if len(d.pending) == 0 {
		d.mu.Unlock()
		return
	}
	next := d.pending[0]
	d.pending = d.pending[1:]
	d.mu.Unlock()
	next()
}

func (d *fakeDevice) submitted() []*Command {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*Command(nil), d.cmds...)
}

func (d *fakeDevice) resetCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.resets
}

func openTest(t *testing.T, dev Device, opts ...Option) *Session {
	t.Helper()
	opts = append([]Option{WithLogger(logger.Nop())}, opts...)
	s, err := Open(context.Background(), dev, opts...)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(time.Millisecond)
	}
}

func requireKind(t *testing.T, err error, want error) {
	t.Helper()
	if !errors.Is(err, want) {
		t.Fatalf("error = %v, want %v", err, want)
	}
}

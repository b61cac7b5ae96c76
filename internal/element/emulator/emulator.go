package emulator

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/yndnr/trustm-go/internal/core/domain"
	"github.com/yndnr/trustm-go/internal/element"
	"github.com/yndnr/trustm-go/internal/storage"
	"github.com/yndnr/trustm-go/pkg/crypto/seal"
)

// DefaultName is the device name used when Config.Name is empty.
const DefaultName = "emulator"

const (
	sealInfo   = "trustm-emulator objects v1"
	checkKey   = "meta/check"
	checkValue = "trustm-emulator"
	objPrefix  = "obj/"
)

var (
	// ErrNotOpen is returned for operations on a device that is not open.
	ErrNotOpen = errors.New("emulator: device not open")

	// ErrUnreachable is returned by Open when the device is configured
	// as absent from the bus.
	ErrUnreachable = errors.New("emulator: no element responding")
)

// Config configures a software element.
type Config struct {
	// Name identifies the element. Default: "emulator".
	Name string

	// Dir holds the object store. Empty keeps objects in memory.
	Dir string

	// Secret seals stored private keys. Required with Dir; a random secret
	// is generated for in-memory devices when empty.
	Secret []byte

	// Latency delays every command completion.
	Latency time.Duration

	// Unreachable makes Open fail as if no element were attached.
	Unreachable bool

	Logger *slog.Logger
}

// Device is a software secure element. Key objects are RSA private keys
// sealed at rest in a Badger store; commands run on a worker goroutine and
// complete through the callback passed to Submit.
type Device struct {
	cfg    Config
	logger *slog.Logger

	mu     sync.Mutex
	store  storage.Store
	cipher seal.Cipher
	busy   bool
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

var _ element.Device = (*Device)(nil)

// New returns an unopened device.
func New(cfg Config) *Device {
	if cfg.Name == "" {
		cfg.Name = DefaultName
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Device{
		cfg:    cfg,
		logger: logger.With("device", cfg.Name),
	}
}

// Name returns the element name.
func (d *Device) Name() string {
	return d.cfg.Name
}

// Open opens the object store and checks the sealing secret against it.
func (d *Device) Open(ctx context.Context) error {
	if d.cfg.Unreachable {
		return ErrUnreachable
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.store != nil {
		return fmt.Errorf("emulator: %s already open", d.cfg.Name)
	}

	secret := d.cfg.Secret
	if len(secret) == 0 {
		if d.cfg.Dir != "" {
			return domain.ErrHandshakeFailed.WithDetails("a secret is required for a persistent store")
		}
		secret = make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			return fmt.Errorf("emulator: generate secret: %w", err)
		}
	}
	c, err := seal.NewFromSecret(secret, sealInfo, seal.CipherChaCha20)
	if err != nil {
		return domain.ErrHandshakeFailed.WithCause(err)
	}

	st, err := storage.NewBadgerStore(storage.DefaultConfig(d.cfg.Dir), d.logger)
	if err != nil {
		return fmt.Errorf("emulator: open store: %w", err)
	}
	if err := checkSecret(ctx, st, c); err != nil {
		_ = st.Close()
		return err
	}

	d.store = st
	d.cipher = c
	d.logger.Debug("element opened", "dir", d.cfg.Dir)
	return nil
}

// checkSecret verifies c opens the store's check record, writing the record
// on first use.
func checkSecret(ctx context.Context, st storage.Store, c seal.Cipher) error {
	blob, err := st.Get(ctx, []byte(checkKey))
	if errors.Is(err, storage.ErrKeyNotFound) {
		sealed, err := c.Seal([]byte(checkValue), []byte(checkKey))
		if err != nil {
			return err
		}
		return st.Set(ctx, []byte(checkKey), sealed)
	}
	if err != nil {
		return fmt.Errorf("emulator: read store: %w", err)
	}
	if v, err := c.Open(blob, []byte(checkKey)); err != nil || string(v) != checkValue {
		return domain.ErrHandshakeFailed.WithDetails("secret does not match the object store")
	}
	return nil
}

// Close cancels any running command and closes the store.
func (d *Device) Close() error {
	d.mu.Lock()
	if d.cancel != nil {
		d.cancel()
	}
	d.mu.Unlock()
	d.wg.Wait()

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.store == nil {
		return nil
	}
	err := d.store.Close()
	d.store = nil
	d.cipher = nil
	d.logger.Debug("element closed")
	return err
}

// Reset cancels the running command and waits for the worker to stop.
func (d *Device) Reset(ctx context.Context) error {
	d.mu.Lock()
	if d.store == nil {
		d.mu.Unlock()
		return ErrNotOpen
	}
	if d.cancel != nil {
		d.cancel()
	}
	d.mu.Unlock()

	stopped := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(stopped)
	}()
	select {
	case <-stopped:
		d.logger.Debug("element reset")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("emulator: reset: %w", ctx.Err())
	}
}

// Submit starts cmd on the worker. A second command while one is running
// is refused with StatusBusy.
func (d *Device) Submit(cmd *element.Command, done element.CompletionFunc) error {
	if cmd == nil || done == nil {
		return &element.SubmitError{Status: domain.StatusInvalidParamField, Err: errors.New("nil command or callback")}
	}
	switch cmd.Op {
	case element.OpEncryptRSA, element.OpReadMetadata:
	default:
		return &element.SubmitError{Status: domain.StatusInvalidCommand}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.store == nil {
		return &element.SubmitError{Status: domain.StatusCommsError, Err: ErrNotOpen}
	}
	if d.busy {
		return &element.SubmitError{Status: domain.StatusBusy}
	}

	ctx, cancel := context.WithCancel(context.Background())
	d.busy = true
	d.cancel = cancel
	d.wg.Add(1)
	go d.run(ctx, cmd, done, d.store, d.cipher)
	return nil
}

func (d *Device) run(ctx context.Context, cmd *element.Command, done element.CompletionFunc, st storage.Store, c seal.Cipher) {
	defer d.wg.Done()

	var result element.Completion
	if err := sleep(ctx, d.cfg.Latency); err != nil {
		result = element.Completion{Status: domain.StatusAborted}
	} else {
		result = execute(ctx, st, c, cmd)
	}

	d.mu.Lock()
	d.busy = false
	d.cancel = nil
	d.mu.Unlock()

	d.logger.Debug("command done", "request", cmd.ID.String(), "op", cmd.Op.String(), "status", result.Status.String())
	done(result)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func execute(ctx context.Context, st storage.Store, c seal.Cipher, cmd *element.Command) element.Completion {
	var pub *rsa.PublicKey
	if cmd.HostKey != nil {
		k, err := x509.ParsePKCS1PublicKey(cmd.HostKey.DER)
		if err != nil {
			return element.Completion{Status: domain.StatusInvalidDataField}
		}
		if domain.KeySize(k.N.BitLen()).KeyTypeTag() != cmd.HostKey.KeyType {
			return element.Completion{Status: domain.StatusInvalidParamField}
		}
		pub = k
	} else {
		priv, status := loadKey(ctx, st, c, cmd.OID)
		if status != domain.StatusSuccess {
			return element.Completion{Status: status}
		}
		pub = &priv.PublicKey
	}

	switch cmd.Op {
	case element.OpReadMetadata:
		return element.Completion{Data: element.Metadata{
			Version:   1,
			Algorithm: domain.KeySize(pub.N.BitLen()).KeyTypeTag(),
			KeyUsage:  element.KeyUsageEncrypt,
		}.Encode()}
	case element.OpEncryptRSA:
		if cmd.Scheme != domain.SchemeRSAESPKCS1v15 {
			return element.Completion{Status: domain.StatusInvalidParamField}
		}
		ct, err := rsa.EncryptPKCS1v15(rand.Reader, pub, cmd.Payload)
		if err != nil {
			return element.Completion{Status: domain.StatusInvalidLengthField}
		}
		return element.Completion{Data: ct}
	default:
		return element.Completion{Status: domain.StatusInvalidCommand}
	}
}

func objectKey(oid domain.ObjectID) []byte {
	return []byte(fmt.Sprintf("%s%04x", objPrefix, uint16(oid)))
}

func loadKey(ctx context.Context, st storage.Store, c seal.Cipher, oid domain.ObjectID) (*rsa.PrivateKey, domain.StatusCode) {
	key := objectKey(oid)
	blob, err := st.Get(ctx, key)
	if errors.Is(err, storage.ErrKeyNotFound) {
		return nil, domain.StatusInvalidOID
	}
	if err != nil {
		return nil, domain.StatusInternalProcessError
	}
	der, err := c.Open(blob, key)
	if err != nil {
		return nil, domain.StatusInternalProcessError
	}
	priv, err := x509.ParsePKCS1PrivateKey(der)
	if err != nil {
		return nil, domain.StatusInternalProcessError
	}
	return priv, domain.StatusSuccess
}

package pkcs11dev

import (
	"context"
	"crypto/rsa"
	"crypto/x509"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"sync"

	"github.com/ThalesIgnite/crypto11"
	"github.com/miekg/pkcs11"

	"github.com/yndnr/trustm-go/internal/core/domain"
	"github.com/yndnr/trustm-go/internal/element"
)

// ErrNotOpen is returned for operations on a device that is not open.
var ErrNotOpen = errors.New("pkcs11: device not open")

// Config selects the PKCS#11 module and token.
type Config struct {
	ModulePath string
	TokenLabel string
	Pin        string

	Logger *slog.Logger
}

// Device runs element commands on a PKCS#11 token. Key objects are RSA key
// pairs whose CKA_ID is the big-endian object identifier.
type Device struct {
	cfg    Config
	logger *slog.Logger

	mu      sync.Mutex
	api     *crypto11.Context
	lowAPI  *pkcs11.Ctx
	slotID  uint
	session pkcs11.SessionHandle
	busy    bool
	wg      sync.WaitGroup
}

var _ element.Device = (*Device)(nil)

// New returns an unopened device.
func New(cfg Config) *Device {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Device{
		cfg:    cfg,
		logger: logger.With("device", "pkcs11:"+cfg.TokenLabel),
	}
}

// Name identifies the token.
func (d *Device) Name() string {
	return "pkcs11:" + d.cfg.ModulePath + "#" + d.cfg.TokenLabel
}

// Open loads the module, logs in to the token and opens a session.
func (d *Device) Open(ctx context.Context) error {
	if d.cfg.ModulePath == "" || d.cfg.TokenLabel == "" {
		return domain.ErrTransportUnavailable.WithDetails("pkcs11 module path and token label are required")
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.api != nil {
		return fmt.Errorf("pkcs11: %s already open", d.Name())
	}

	d.logger.Debug("configuring pkcs11 module", "module", d.cfg.ModulePath, "token", d.cfg.TokenLabel)
	api, err := crypto11.Configure(&crypto11.Config{
		Path:       d.cfg.ModulePath,
		TokenLabel: d.cfg.TokenLabel,
		Pin:        d.cfg.Pin,
	})
	if err != nil {
		return fmt.Errorf("pkcs11: configure module: %w", err)
	}

	// crypto11 owns the library: it initializes it here and finalizes it
	// when its context closes. lowAPI only borrows the initialized module.
	lowAPI := pkcs11.New(d.cfg.ModulePath)
	if lowAPI == nil {
		_ = api.Close()
		return fmt.Errorf("pkcs11: cannot load %s", d.cfg.ModulePath)
	}
	if err := lowAPI.Initialize(); err != nil && !isCode(err, pkcs11.CKR_CRYPTOKI_ALREADY_INITIALIZED) {
		return teardownWith(lowAPI, nil, api, fmt.Errorf("pkcs11: initialize: %w", err))
	}

	slotID, err := findSlot(lowAPI, d.cfg.TokenLabel)
	if err != nil {
		return teardownWith(lowAPI, nil, api, err)
	}
	session, err := lowAPI.OpenSession(slotID, pkcs11.CKF_SERIAL_SESSION|pkcs11.CKF_RW_SESSION)
	if err != nil {
		return teardownWith(lowAPI, nil, api, fmt.Errorf("pkcs11: open session: %w", err))
	}
	if err := lowAPI.Login(session, pkcs11.CKU_USER, d.cfg.Pin); err != nil && !isCode(err, pkcs11.CKR_USER_ALREADY_LOGGED_IN) {
		return teardownWith(lowAPI, &session, api, domain.ErrHandshakeFailed.WithDetails("token login").WithCause(err))
	}

	d.api = api
	d.lowAPI = lowAPI
	d.slotID = slotID
	d.session = session
	d.logger.Debug("token opened", "slot", slotID)
	return nil
}

func findSlot(p *pkcs11.Ctx, label string) (uint, error) {
	slots, err := p.GetSlotList(true)
	if err != nil {
		return 0, fmt.Errorf("pkcs11: get slot list: %w", err)
	}
	for _, slot := range slots {
		info, err := p.GetTokenInfo(slot)
		if err != nil {
			continue
		}
		if info.Label == label {
			return slot, nil
		}
	}
	return 0, domain.ErrTransportUnavailable.WithDetails("no token labelled %q", label)
}

// Close waits for a running command and releases the token.
func (d *Device) Close() error {
	d.wg.Wait()

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.api == nil {
		return nil
	}
	err := teardown(d.lowAPI, &d.session, d.api)
	d.api = nil
	d.lowAPI = nil
	d.logger.Debug("token closed")
	return err
}

// lowLevel is the part of *pkcs11.Ctx released on close.
type lowLevel interface {
	CloseSession(pkcs11.SessionHandle) error
	Destroy()
}

// teardown releases the borrowed low-level handle before closing the
// crypto11 context, which finalizes the library. No PKCS#11 call may follow
// that finalize.
func teardown(low lowLevel, session *pkcs11.SessionHandle, api io.Closer) error {
	if session != nil {
		_ = low.CloseSession(*session)
	}
	low.Destroy()
	if err := api.Close(); err != nil {
		return fmt.Errorf("pkcs11: close module: %w", err)
	}
	return nil
}

func teardownWith(low lowLevel, session *pkcs11.SessionHandle, api io.Closer, cause error) error {
	_ = teardown(low, session, api)
	return cause
}

// Reset waits for the running command to return. A PKCS#11 call cannot be
// interrupted; its late completion is dropped by the caller.
func (d *Device) Reset(ctx context.Context) error {
	stopped := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(stopped)
	}()
	select {
	case <-stopped:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("pkcs11: reset: %w", ctx.Err())
	}
}

// Submit runs cmd on a worker goroutine.
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
	if d.api == nil {
		return &element.SubmitError{Status: domain.StatusCommsError, Err: ErrNotOpen}
	}
	if d.busy {
		return &element.SubmitError{Status: domain.StatusBusy}
	}
	d.busy = true
	d.wg.Add(1)
	go d.run(cmd, done)
	return nil
}

func (d *Device) run(cmd *element.Command, done element.CompletionFunc) {
	defer d.wg.Done()

	result := d.execute(cmd)

	d.mu.Lock()
	d.busy = false
	d.mu.Unlock()

	d.logger.Debug("command done", "request", cmd.ID.String(), "op", cmd.Op.String(), "status", result.Status.String())
	done(result)
}

func (d *Device) execute(cmd *element.Command) element.Completion {
	p, sh := d.lowAPI, d.session

	var key pkcs11.ObjectHandle
	if cmd.HostKey != nil {
		h, err := createPublicKey(p, sh, cmd.HostKey.DER)
		if err != nil {
			d.logger.Warn("host key import failed", "error", err)
			return element.Completion{Status: statusOf(err)}
		}
		defer func() { _ = p.DestroyObject(sh, h) }()
		key = h
	} else {
		h, err := findObject(p, sh, []*pkcs11.Attribute{
			pkcs11.NewAttribute(pkcs11.CKA_CLASS, pkcs11.CKO_PUBLIC_KEY),
			pkcs11.NewAttribute(pkcs11.CKA_ID, oidBytes(cmd.OID)),
		})
		if err != nil {
			return element.Completion{Status: statusOf(err)}
		}
		key = h
	}

	switch cmd.Op {
	case element.OpReadMetadata:
		attrs, err := p.GetAttributeValue(sh, key, []*pkcs11.Attribute{pkcs11.NewAttribute(pkcs11.CKA_MODULUS, nil)})
		if err != nil || len(attrs) == 0 {
			return element.Completion{Status: statusOf(err)}
		}
		bits := new(big.Int).SetBytes(attrs[0].Value).BitLen()
		return element.Completion{Data: element.Metadata{
			Version:   1,
			Algorithm: domain.KeySize(bits).KeyTypeTag(),
			KeyUsage:  element.KeyUsageEncrypt,
		}.Encode()}

	case element.OpEncryptRSA:
		if cmd.Scheme != domain.SchemeRSAESPKCS1v15 {
			return element.Completion{Status: domain.StatusInvalidParamField}
		}
		mech := []*pkcs11.Mechanism{pkcs11.NewMechanism(pkcs11.CKM_RSA_PKCS, nil)}
		if err := p.EncryptInit(sh, mech, key); err != nil {
			return element.Completion{Status: statusOf(err)}
		}
		ct, err := p.Encrypt(sh, cmd.Payload)
		if err != nil {
			return element.Completion{Status: statusOf(err)}
		}
		return element.Completion{Data: ct}

	default:
		return element.Completion{Status: domain.StatusInvalidCommand}
	}
}

// createPublicKey creates a session object for a PKCS#1 RSA public key.
func createPublicKey(p *pkcs11.Ctx, sh pkcs11.SessionHandle, der []byte) (pkcs11.ObjectHandle, error) {
	pub, err := x509.ParsePKCS1PublicKey(der)
	if err != nil {
		return 0, errInvalidData
	}
	return p.CreateObject(sh, []*pkcs11.Attribute{
		pkcs11.NewAttribute(pkcs11.CKA_CLASS, pkcs11.CKO_PUBLIC_KEY),
		pkcs11.NewAttribute(pkcs11.CKA_KEY_TYPE, pkcs11.CKK_RSA),
		pkcs11.NewAttribute(pkcs11.CKA_TOKEN, false),
		pkcs11.NewAttribute(pkcs11.CKA_ENCRYPT, true),
		pkcs11.NewAttribute(pkcs11.CKA_MODULUS, pub.N.Bytes()),
		pkcs11.NewAttribute(pkcs11.CKA_PUBLIC_EXPONENT, big.NewInt(int64(pub.E)).Bytes()),
	})
}

func findObject(p *pkcs11.Ctx, sh pkcs11.SessionHandle, template []*pkcs11.Attribute) (handle pkcs11.ObjectHandle, err error) {
	if err = p.FindObjectsInit(sh, template); err != nil {
		return 0, err
	}
	defer func() {
		if ferr := p.FindObjectsFinal(sh); err == nil {
			err = ferr
		}
	}()

	handles, _, err := p.FindObjects(sh, 1)
	if err != nil {
		return 0, err
	}
	if len(handles) == 0 {
		return 0, errNotFound
	}
	return handles[0], nil
}

// oidBytes encodes oid as the CKA_ID of its key pair.
func oidBytes(oid domain.ObjectID) []byte {
	b := make([]byte, 2)
	binary.BigEndian.PutUint16(b, uint16(oid))
	return b
}

var (
	errNotFound    = errors.New("pkcs11: object not found")
	errInvalidData = errors.New("pkcs11: invalid key data")
)

func isCode(err error, code uint) bool {
	var perr pkcs11.Error
	return errors.As(err, &perr) && uint(perr) == code
}

// statusOf maps a PKCS#11 failure onto an element status.
func statusOf(err error) domain.StatusCode {
	if err == nil {
		return domain.StatusDeviceError
	}
	if errors.Is(err, errNotFound) {
		return domain.StatusInvalidOID
	}
	if errors.Is(err, errInvalidData) {
		return domain.StatusInvalidDataField
	}

	var perr pkcs11.Error
	if !errors.As(err, &perr) {
		return domain.StatusDeviceError
	}
	switch uint(perr) {
	case pkcs11.CKR_KEY_HANDLE_INVALID, pkcs11.CKR_OBJECT_HANDLE_INVALID:
		return domain.StatusInvalidOID
	case pkcs11.CKR_DATA_LEN_RANGE, pkcs11.CKR_DATA_INVALID:
		return domain.StatusInvalidLengthField
	case pkcs11.CKR_ATTRIBUTE_VALUE_INVALID, pkcs11.CKR_TEMPLATE_INCONSISTENT, pkcs11.CKR_TEMPLATE_INCOMPLETE:
		return domain.StatusInvalidDataField
	case pkcs11.CKR_MECHANISM_INVALID, pkcs11.CKR_MECHANISM_PARAM_INVALID, pkcs11.CKR_KEY_TYPE_INCONSISTENT:
		return domain.StatusInvalidParamField
	case pkcs11.CKR_USER_NOT_LOGGED_IN, pkcs11.CKR_KEY_FUNCTION_NOT_PERMITTED:
		return domain.StatusAccessDenied
	case pkcs11.CKR_OPERATION_ACTIVE:
		return domain.StatusCommandOutOfSequence
	case pkcs11.CKR_DEVICE_MEMORY, pkcs11.CKR_HOST_MEMORY:
		return domain.StatusInsufficientMemory
	case pkcs11.CKR_FUNCTION_NOT_SUPPORTED:
		return domain.StatusCommandUnavailable
	case pkcs11.CKR_DEVICE_REMOVED, pkcs11.CKR_SESSION_HANDLE_INVALID, pkcs11.CKR_SESSION_CLOSED:
		return domain.StatusCommsError
	default:
		return domain.StatusDeviceError
	}
}

// Provision generates a key pair in object oid, replacing an existing one.
func (d *Device) Provision(ctx context.Context, oid domain.ObjectID, bits int) (*rsa.PublicKey, error) {
	if _, err := domain.ClassifyKeySize(bits); err != nil {
		return nil, err
	}
	api, err := d.context()
	if err != nil {
		return nil, err
	}

	id := oidBytes(oid)
	if old, err := api.FindKeyPair(id, nil); err == nil && old != nil {
		if err := old.Delete(); err != nil {
			return nil, domain.ErrOperationFailed.WithDetails("delete %s", oid).WithCause(err)
		}
	}

	signer, err := api.GenerateRSAKeyPair(id, bits)
	if err != nil {
		return nil, domain.ErrOperationFailed.WithDetails("generate RSA-%d", bits).WithCause(err)
	}
	pub, ok := signer.Public().(*rsa.PublicKey)
	if !ok {
		return nil, domain.ErrUnsupportedKeyType.WithDetails("%T", signer.Public())
	}
	d.logger.Info("key provisioned", "oid", oid.String(), "bits", bits)
	return pub, nil
}

// PublicKey returns the public half of the key pair in object oid.
func (d *Device) PublicKey(ctx context.Context, oid domain.ObjectID) (*rsa.PublicKey, error) {
	api, err := d.context()
	if err != nil {
		return nil, err
	}
	signer, err := api.FindKeyPair(oidBytes(oid), nil)
	if err != nil {
		return nil, domain.ErrOperationFailed.WithDetails("find %s", oid).WithCause(err)
	}
	if signer == nil {
		return nil, domain.ErrObjectNotFound.WithDetails("%s", oid).WithStatus(domain.StatusInvalidOID)
	}
	pub, ok := signer.Public().(*rsa.PublicKey)
	if !ok {
		return nil, domain.ErrUnsupportedKeyType.WithDetails("%s holds %T", oid, signer.Public())
	}
	return pub, nil
}

func (d *Device) context() (*crypto11.Context, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.api == nil {
		return nil, domain.ErrSessionClosed.WithCause(ErrNotOpen)
	}
	return d.api, nil
}

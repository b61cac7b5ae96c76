package element

import (
	"context"

	"github.com/oklog/ulid/v2"

	"github.com/yndnr/trustm-go/internal/core/domain"
)

// Opcode identifies a command understood by a Device.
type Opcode byte

const (
	// OpEncryptRSA encrypts Command.Payload with an RSA public key.
	OpEncryptRSA Opcode = 0x1E
	// OpReadMetadata returns the metadata TLV of Command.OID.
	OpReadMetadata Opcode = 0x01
)

// String returns the opcode name used in logs and metrics.
func (o Opcode) String() string {
	switch o {
	case OpEncryptRSA:
		return "encrypt_rsa"
	case OpReadMetadata:
		return "read_metadata"
	default:
		return "unknown"
	}
}

// HostKey is a public key supplied by the host for a single command.
type HostKey struct {
	// DER is the PKCS#1 RSAPublicKey encoding.
	DER []byte
	// KeyType is the element key type tag (0x41 RSA-1024, 0x42 RSA-2048).
	KeyType byte
}

// Command is one request handed to a Device.
type Command struct {
	ID     ulid.ULID
	Op     Opcode
	Scheme domain.EncryptionScheme
	// Payload is the message for OpEncryptRSA.
	Payload []byte
	// OID addresses the on-chip object when HostKey is nil.
	OID     domain.ObjectID
	HostKey *HostKey
}

// Completion is the outcome a Device reports for a submitted command.
type Completion struct {
	Status domain.StatusCode
	// Data is the response body. It is owned by the receiver once delivered.
	Data []byte
}

// CompletionFunc receives the outcome of a submitted command.
type CompletionFunc func(Completion)

// Device is the driver boundary to a secure element.
//
// Submit either returns an error, in which case done is never called, or
// arranges for done to be called exactly once, possibly from another
// goroutine. A Device processes one command at a time and may reject a
// submission while another is in flight. Reset aborts the in-flight command;
// its done callback may still fire, with StatusAborted.
type Device interface {
	// Name identifies the physical element; one session per name.
	Name() string
	Open(ctx context.Context) error
	Close() error
	Reset(ctx context.Context) error
	Submit(cmd *Command, done CompletionFunc) error
}

// SubmitError is returned by Device.Submit when the element refuses a
// command before processing it.
type SubmitError struct {
	Status domain.StatusCode
	Err    error
}

func (e *SubmitError) Error() string {
	if e.Err != nil {
		return "submit: " + e.Status.String() + ": " + e.Err.Error()
	}
	return "submit: " + e.Status.String()
}

func (e *SubmitError) Unwrap() error { return e.Err }

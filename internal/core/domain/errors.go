package domain

import (
	"errors"
	"fmt"
)

// DomainError represents an engine error with a structured error code.
//
// Codes use the format SE-<KIND>-<NNNN>, where KIND names the stage that
// failed (see Kind). Status carries the element status word when the element
// itself reported the failure.
type DomainError struct {
	Code    string     // Error code (e.g., "SE-OPER-5000")
	Message string     // Human-readable message
	Details string     // Optional additional details
	Status  StatusCode // Element status, zero when not applicable
	Cause   error      // Underlying error (if any)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Code, e.Message)
	if e.Details != "" {
		msg += ": " + e.Details
	}
	if e.Status != StatusSuccess {
		msg += fmt.Sprintf(" (status %s)", e.Status)
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap returns the underlying error for errors.Unwrap() support.
func (e *DomainError) Unwrap() error {
	return e.Cause
}

// Is implements errors.Is() support. Two DomainErrors match on code.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// NewDomainError creates a new DomainError with the given code and message.
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// WithDetails returns a copy of the error with additional details.
func (e *DomainError) WithDetails(format string, args ...any) *DomainError {
	c := *e
	c.Details = fmt.Sprintf(format, args...)
	return &c
}

// WithCause returns a copy of the error wrapping the given cause.
func (e *DomainError) WithCause(cause error) *DomainError {
	c := *e
	c.Cause = cause
	return &c
}

// WithStatus returns a copy of the error carrying an element status code.
func (e *DomainError) WithStatus(status StatusCode) *DomainError {
	c := *e
	c.Status = status
	return &c
}

// Kind returns the error kind encoded in the code.
func (e *DomainError) Kind() Kind {
	if len(e.Code) < 7 {
		return KindUnknown
	}
	switch e.Code[3:7] {
	case "TRAN":
		return KindTransport
	case "VALD":
		return KindValidation
	case "SUBM":
		return KindSubmission
	case "OPER":
		return KindOperation
	case "IOER":
		return KindIO
	default:
		return KindUnknown
	}
}

// IsDomainError checks if an error is a DomainError with the given code.
// If code is empty, it only checks if the error is a DomainError.
func IsDomainError(err error, code string) bool {
	var de *DomainError
	if errors.As(err, &de) {
		if code == "" {
			return true
		}
		return de.Code == code
	}
	return false
}

// GetErrorCode extracts the error code from an error if it's a DomainError.
func GetErrorCode(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

// GetStatus extracts the element status code from err, if any.
func GetStatus(err error) (StatusCode, bool) {
	var de *DomainError
	if errors.As(err, &de) && de.Status != StatusSuccess {
		return de.Status, true
	}
	return StatusSuccess, false
}

// Kind classifies errors by the stage that produced them.
type Kind int

const (
	KindUnknown Kind = iota
	// KindTransport covers link and session failures.
	KindTransport
	// KindValidation covers bad input caught before the element is involved.
	KindValidation
	// KindSubmission covers commands the element refused before processing.
	KindSubmission
	// KindOperation covers failures the element reported after processing.
	KindOperation
	// KindIO covers file read and write failures.
	KindIO
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindTransport:
		return "TransportError"
	case KindValidation:
		return "ValidationError"
	case KindSubmission:
		return "SubmissionError"
	case KindOperation:
		return "OperationError"
	case KindIO:
		return "IoError"
	default:
		return "UnknownError"
	}
}

// KindOf returns the kind of err, or KindUnknown for non-domain errors.
func KindOf(err error) Kind {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Kind()
	}
	return KindUnknown
}

// ============================================================================
// Transport Errors (TRAN)
// ============================================================================

var (
	// ErrTransportUnavailable indicates the element could not be reached.
	ErrTransportUnavailable = NewDomainError("SE-TRAN-5030", "secure element unreachable")

	// ErrSessionAlreadyOpen indicates the element already has an open session.
	ErrSessionAlreadyOpen = NewDomainError("SE-TRAN-4090", "session already open for element")

	// ErrSessionClosed indicates a command was issued on a closed session.
	ErrSessionClosed = NewDomainError("SE-TRAN-4100", "session closed")

	// ErrHandshakeFailed indicates the element failed its open handshake.
	ErrHandshakeFailed = NewDomainError("SE-TRAN-5020", "element handshake failed")
)

// ============================================================================
// Validation Errors (VALD)
// ============================================================================

var (
	// ErrUnsupportedKeyType indicates a key family other than RSA.
	ErrUnsupportedKeyType = NewDomainError("SE-VALD-4001", "unsupported key type")

	// ErrUnsupportedKeySize indicates an RSA modulus outside the supported tiers.
	ErrUnsupportedKeySize = NewDomainError("SE-VALD-4002", "unsupported key size")

	// ErrPayloadTooLarge indicates the plaintext exceeds the key's capacity.
	ErrPayloadTooLarge = NewDomainError("SE-VALD-4003", "payload exceeds key capacity")

	// ErrInvalidKeyReference indicates a malformed key reference.
	ErrInvalidKeyReference = NewDomainError("SE-VALD-4004", "invalid key reference")

	// ErrInvalidPublicKeyFile indicates a PEM file that is not a public key.
	ErrInvalidPublicKeyFile = NewDomainError("SE-VALD-4005", "Invalid Public Key File")

	// ErrEmptyPayload indicates an empty plaintext.
	ErrEmptyPayload = NewDomainError("SE-VALD-4006", "empty payload")

	// ErrUnsupportedScheme indicates an encryption scheme the engine does not offer.
	ErrUnsupportedScheme = NewDomainError("SE-VALD-4007", "unsupported encryption scheme")

	// ErrBufferTooSmall indicates the destination cannot hold the result.
	ErrBufferTooSmall = NewDomainError("SE-VALD-4008", "destination buffer too small")

	// ErrInvalidArgument indicates an invalid command-line argument.
	ErrInvalidArgument = NewDomainError("SE-VALD-4009", "invalid argument")

	// ErrMissingArgument indicates a required argument is missing.
	ErrMissingArgument = NewDomainError("SE-VALD-4010", "missing required argument")

	// ErrArgumentConflict indicates conflicting arguments.
	ErrArgumentConflict = NewDomainError("SE-VALD-4011", "argument conflict")
)

// ============================================================================
// Submission Errors (SUBM)
// ============================================================================

var (
	// ErrSubmissionRejected indicates the element refused the command.
	ErrSubmissionRejected = NewDomainError("SE-SUBM-4220", "element rejected command")

	// ErrTransportBusy indicates another command still holds the session.
	ErrTransportBusy = NewDomainError("SE-SUBM-4290", "transport busy")
)

// ============================================================================
// Operation Errors (OPER)
// ============================================================================

var (
	// ErrOperationFailed indicates the element reported a failure status.
	ErrOperationFailed = NewDomainError("SE-OPER-5000", "element operation failed")

	// ErrObjectNotFound indicates the addressed object is not provisioned.
	ErrObjectNotFound = NewDomainError("SE-OPER-4040", "object not found on element")

	// ErrOperationTimeout indicates the element did not complete in time.
	ErrOperationTimeout = NewDomainError("SE-OPER-5040", "element operation timed out")

	// ErrResultOverflow indicates the element reported more data than the key allows.
	ErrResultOverflow = NewDomainError("SE-OPER-5001", "element result exceeds key modulus")
)

// ============================================================================
// IO Errors (IOER)
// ============================================================================

var (
	// ErrReadFailed indicates an input file could not be read.
	ErrReadFailed = NewDomainError("SE-IOER-5001", "read failed")

	// ErrWriteFailed indicates an output file could not be written.
	ErrWriteFailed = NewDomainError("SE-IOER-5002", "write failed")
)

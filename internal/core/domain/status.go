package domain

import "fmt"

// StatusCode is a status word reported by the secure element or its driver.
//
// Device errors have the 0x8000 bit set and carry the element's error byte in
// the low bits. Library errors (communication, timeouts) live below 0x8000.
type StatusCode uint32

const (
	StatusSuccess StatusCode = 0x0000
	StatusBusy    StatusCode = 0x0001

	// Library errors.
	StatusCommsError   StatusCode = 0x0102
	StatusTimeout      StatusCode = 0x0103
	StatusCommandError StatusCode = 0x0104
	StatusAborted      StatusCode = 0x0105

	// Device errors.
	StatusDeviceError          StatusCode = 0x8000
	StatusInvalidOID           StatusCode = 0x8001
	StatusInvalidParamField    StatusCode = 0x8003
	StatusInvalidLengthField   StatusCode = 0x8004
	StatusInvalidDataField     StatusCode = 0x8005
	StatusInternalProcessError StatusCode = 0x8006
	StatusAccessDenied         StatusCode = 0x8007
	StatusInvalidCommand       StatusCode = 0x800A
	StatusCommandOutOfSequence StatusCode = 0x800B
	StatusCommandUnavailable   StatusCode = 0x800C
	StatusInsufficientMemory   StatusCode = 0x800D
)

var statusNames = map[StatusCode]string{
	StatusSuccess:              "success",
	StatusBusy:                 "busy",
	StatusCommsError:           "communication error",
	StatusTimeout:              "timeout",
	StatusCommandError:         "command error",
	StatusAborted:              "aborted",
	StatusDeviceError:          "device error",
	StatusInvalidOID:           "invalid object identifier",
	StatusInvalidParamField:    "invalid parameter field",
	StatusInvalidLengthField:   "invalid length field",
	StatusInvalidDataField:     "invalid data field",
	StatusInternalProcessError: "internal process error",
	StatusAccessDenied:         "access conditions not satisfied",
	StatusInvalidCommand:       "invalid command",
	StatusCommandOutOfSequence: "command out of sequence",
	StatusCommandUnavailable:   "command not available",
	StatusInsufficientMemory:   "insufficient memory",
}

// String formats the code as 0xNNNNNNNN, followed by its name when known.
func (s StatusCode) String() string {
	if name, ok := statusNames[s]; ok {
		return fmt.Sprintf("0x%.8X %s", uint32(s), name)
	}
	return fmt.Sprintf("0x%.8X", uint32(s))
}

// IsDeviceError reports whether the element itself produced the code.
func (s StatusCode) IsDeviceError() bool {
	return s&StatusDeviceError != 0
}

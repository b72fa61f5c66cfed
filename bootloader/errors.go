package bootloader

import (
	"errors"
	"fmt"
)

// Sentinel errors for the bootloader protocol.
var (
	// Transport errors.
	ErrSyncWriteFailed = errors.New("bootloader: sync byte write failed")
	ErrWriteFailed     = errors.New("bootloader: frame write failed")
	ErrSyncMismatch    = errors.New("bootloader: response sync byte mismatch")
	ErrReadTimeout     = errors.New("bootloader: response timed out")
	ErrReadFailed      = errors.New("bootloader: response read failed")

	// Protocol errors.
	ErrUnexpectedCommand  = errors.New("bootloader: unexpected command in response")
	ErrUnsupportedVersion = errors.New("bootloader: unsupported bootloader version")
	ErrPayloadTooLong     = errors.New("bootloader: response payload too long")
	ErrInvalidFrame       = errors.New("bootloader: invalid frame")
	ErrShortResponse      = errors.New("bootloader: response shorter than expected")

	// Client errors.
	ErrInvalidLength = errors.New("bootloader: invalid data length")
)

// TransportError reports that the link failed while exchanging a frame:
// the sync byte could not be written or read, a write or read timed out,
// or the line reported an error.
type TransportError struct {
	// Command is the command being exchanged.
	Command Command
	// Op is the step that failed, e.g. "write sync" or "read header".
	Op string
	// Err wraps one of the transport sentinels and the underlying cause.
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Command, e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ProtocolError reports a well-formed exchange with an unusable answer:
// a wrong command echo, an unsupported version or an impossible length.
type ProtocolError struct {
	Command Command
	Err     error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("%s: %v", e.Command, e.Err)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// DeviceError reports that the device answered with a non-success status.
type DeviceError struct {
	Command Command
	// Address is the word address of the request.
	Address uint32
	Status  Status
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("%s at 0x%04X rejected by device: %s (0x%02X)",
		e.Command, e.Address, e.Status, byte(e.Status))
}

// IsTransportError returns true if err contains a *TransportError.
func IsTransportError(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// IsProtocolError returns true if err contains a *ProtocolError.
func IsProtocolError(err error) bool {
	var pe *ProtocolError
	return errors.As(err, &pe)
}

// IsDeviceError returns true if err contains a *DeviceError.
func IsDeviceError(err error) bool {
	var de *DeviceError
	return errors.As(err, &de)
}

// IsLinkError returns true for transport and protocol errors, the failures
// that indicate a broken or corrupted link rather than a device refusal.
func IsLinkError(err error) bool {
	return IsTransportError(err) || IsProtocolError(err)
}

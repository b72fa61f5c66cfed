package flasher

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidRange is wrapped by every *RangeError.
	ErrInvalidRange = errors.New("flasher: invalid image range")
	// ErrEraseFailed reports a failed erase of the target range.
	ErrEraseFailed = errors.New("flasher: erase failed")
	// ErrChecksumFailed reports that the device checksum could not be read.
	ErrChecksumFailed = errors.New("flasher: checksum read failed")
)

// RangeError reports an image whose address range cannot be programmed.
// It is returned before the device is contacted.
type RangeError struct {
	Range  Range
	Reason string
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("%s %s: %s", ErrInvalidRange, e.Range, e.Reason)
}

func (e *RangeError) Unwrap() error { return ErrInvalidRange }

// BlockWriteError reports a write block that failed twice. The content of
// the block is undefined and the range must be programmed again.
type BlockWriteError struct {
	// Address is the byte address of the block.
	Address uint32
	Err     error
}

func (e *BlockWriteError) Error() string {
	return fmt.Sprintf("flasher: write block at 0x%04X failed after retry, flash content undefined: %v",
		e.Address/2, e.Err)
}

func (e *BlockWriteError) Unwrap() error { return e.Err }

// ChecksumMismatchError reports that the device checksum over the
// programmed range differs from the checksum of the image.
type ChecksumMismatchError struct {
	// Address is the byte address the checksum starts at.
	Address  uint32
	Length   int
	Expected Checksum
	Actual   Checksum
}

func (e *ChecksumMismatchError) Error() string {
	return fmt.Sprintf("flasher: checksum mismatch over 0x%04X+%d: expected %s, device reports %s",
		e.Address/2, e.Length, e.Expected, e.Actual)
}

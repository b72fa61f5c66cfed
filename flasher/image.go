package flasher

import "fmt"

// Flash geometry in byte addresses. A byte address is twice the word
// address used on the wire.
const (
	BootBytesEnd  = 0x0800 // end of the boot block, start of the application
	FlashBytesEnd = 0x8000 // end of flash
	BlockWords    = 32     // words per write block
	BlockBytes    = 2 * BlockWords

	// RangeAlignment is the required alignment of an image start address.
	RangeAlignment = 16
)

// Image is a firmware image: byte values by byte address plus the address
// range the image covers.
type Image interface {
	// Range returns the first and last byte address of the image.
	Range() Range
	// Lookup returns the byte at addr and whether the image defines it.
	Lookup(addr uint32) (byte, bool)
}

// Range is an address range of an image. End is the address of the last
// image byte, so the range holds End-Start+1 bytes.
type Range struct {
	Start uint32
	End   uint32
}

func (r Range) String() string {
	return fmt.Sprintf("0x%04X-0x%04X", r.Start, r.End)
}

// ValidateRange checks that r lies in the application region and starts on
// a 16 byte boundary.
func ValidateRange(r Range) error {
	switch {
	case r.Start < BootBytesEnd:
		return &RangeError{Range: r, Reason: "starts inside the boot block"}
	case r.End >= FlashBytesEnd:
		return &RangeError{Range: r, Reason: "ends beyond flash"}
	case r.End < r.Start:
		return &RangeError{Range: r, Reason: "ends before it starts"}
	case r.Start%RangeAlignment != 0:
		return &RangeError{Range: r, Reason: "start is not 16 byte aligned"}
	}

	return nil
}

// FillByte returns the value of an undefined image byte: the low byte of an
// erased 14-bit word is 0xFF, the high byte 0x3F.
func FillByte(addr uint32) byte {
	if addr&1 == 1 {
		return 0x3F
	}

	return 0xFF
}

// readBlock fills buf with the image bytes at start, using FillByte for
// undefined addresses. It reports whether the image defined any byte.
func readBlock(img Image, start uint32, buf []byte) bool {
	defined := false
	for i := range buf {
		addr := start + uint32(i) //nolint:gosec // buf is one block
		if v, ok := img.Lookup(addr); ok {
			buf[i] = v
			defined = true
		} else {
			buf[i] = FillByte(addr)
		}
	}

	return defined
}

// blockStart returns addr rounded down to a write block boundary.
func blockStart(addr uint32) uint32 {
	return addr &^ (BlockBytes - 1)
}

// blockCount returns the number of write blocks from the block holding
// r.Start up to and including the block holding r.End.
func blockCount(r Range) int {
	return int((blockStart(r.End)-blockStart(r.Start))/BlockBytes) + 1
}

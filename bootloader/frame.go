package bootloader

import (
	"encoding/binary"
	"fmt"
)

// HeaderSize is the fixed size of the frame header in bytes.
const HeaderSize = 9

// MaxPayloadSize is the maximum number of payload bytes carried by one frame.
// It equals one flash write block of 32 words.
const MaxPayloadSize = 64

// SyncByte is sent before every request and prefixes every response. The
// device's EUSART auto-baud detector measures the bit time from it.
const SyncByte byte = 0x55

// Erase/write guard bytes required by every command that modifies persistent
// storage.
const (
	EraseWriteKey1 byte = 0x55
	EraseWriteKey2 byte = 0xAA
)

// UnknownLength tells the transport to take the response payload length from
// the dataLength field of the received header.
const UnknownLength = -1

// Frame is a single bootloader protocol message.
//
// On the wire a frame is [Header(9)][Payload(0-64)]:
//
//	0     command
//	1..2  dataLength (little-endian)
//	3     erase/write key 1
//	4     erase/write key 2
//	5..7  address low, high, upper (24-bit word address)
//	8     reserved
type Frame struct {
	Header  [HeaderSize]byte
	Payload []byte
}

// NewFrame returns a frame for cmd with an empty payload.
func NewFrame(cmd Command) *Frame {
	f := &Frame{}
	f.SetCommand(cmd)

	return f
}

// --- Header accessors ---

// Command returns the command opcode from header byte 0.
func (f *Frame) Command() Command {
	return Command(f.Header[0])
}

// SetCommand sets the command opcode.
func (f *Frame) SetCommand(cmd Command) {
	f.Header[0] = byte(cmd)
}

// DataLength returns the 16-bit dataLength field from header bytes 1-2.
func (f *Frame) DataLength() uint16 {
	return binary.LittleEndian.Uint16(f.Header[1:3])
}

// SetDataLength sets the dataLength field.
func (f *Frame) SetDataLength(n uint16) {
	binary.LittleEndian.PutUint16(f.Header[1:3], n)
}

// EraseWriteKey returns the two guard bytes from header bytes 3-4.
func (f *Frame) EraseWriteKey() (byte, byte) {
	return f.Header[3], f.Header[4]
}

// SetEraseWriteKey stores the guard bytes unlocking erase and write operations.
func (f *Frame) SetEraseWriteKey() {
	f.Header[3] = EraseWriteKey1
	f.Header[4] = EraseWriteKey2
}

// HasEraseWriteKey reports whether the guard bytes are present.
func (f *Frame) HasEraseWriteKey() bool {
	return f.Header[3] == EraseWriteKey1 && f.Header[4] == EraseWriteKey2
}

// Address returns the 24-bit word address from header bytes 5-7.
func (f *Frame) Address() uint32 {
	return uint32(f.Header[5]) | uint32(f.Header[6])<<8 | uint32(f.Header[7])<<16
}

// SetAddress sets the 24-bit word address. Bits above 24 are dropped.
func (f *Frame) SetAddress(addr uint32) {
	f.Header[5] = byte(addr)
	f.Header[6] = byte(addr >> 8)
	f.Header[7] = byte(addr >> 16)
}

// SetPayload sets the payload and makes dataLength match its size.
// Panics if data exceeds MaxPayloadSize; callers never build such frames.
func (f *Frame) SetPayload(data []byte) {
	if len(data) > MaxPayloadSize {
		panic(fmt.Sprintf("bootloader: payload of %d bytes exceeds %d", len(data), MaxPayloadSize))
	}
	f.Payload = data
	f.SetDataLength(uint16(len(data))) //nolint:gosec // bounded above
}

// Len returns the encoded size of the frame.
func (f *Frame) Len() int {
	return HeaderSize + len(f.Payload)
}

// --- Wire encoding ---

// Pack serializes the frame to its wire format: header followed by payload.
// The sync byte is not part of the frame.
func (f *Frame) Pack() []byte {
	buf := make([]byte, f.Len())
	copy(buf, f.Header[:])
	copy(buf[HeaderSize:], f.Payload)

	return buf
}

// ParseHeader decodes a received header. The payload is left empty.
func ParseHeader(header []byte) (*Frame, error) {
	if len(header) != HeaderSize {
		return nil, fmt.Errorf("%w: header is %d bytes, want %d", ErrInvalidFrame, len(header), HeaderSize)
	}

	f := &Frame{}
	copy(f.Header[:], header)

	return f, nil
}

// ParseFrame decodes a frame from its header and payload bytes.
//
// The payload is copied. dataLength is not required to match the payload
// size: responses to fixed-length commands carry the request's dataLength.
func ParseFrame(header []byte, payload []byte) (*Frame, error) {
	f, err := ParseHeader(header)
	if err != nil {
		return nil, err
	}

	if len(payload) > MaxPayloadSize {
		return nil, fmt.Errorf("%w: payload is %d bytes, max %d", ErrInvalidFrame, len(payload), MaxPayloadSize)
	}

	if len(payload) > 0 {
		f.Payload = make([]byte, len(payload))
		copy(f.Payload, payload)
	}

	return f, nil
}

// String returns a short description used in diagnostics.
func (f *Frame) String() string {
	return fmt.Sprintf("%s len=%d addr=0x%04X payload=%d", f.Command(), f.DataLength(), f.Address(), len(f.Payload))
}

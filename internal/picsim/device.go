// Package picsim emulates the adapter's bootloader on the far side of a
// byte stream, for tests.
//
// The emulator speaks the same framing as the real device: a sync byte,
// a 9 byte header and up to 64 payload bytes, answered by a sync byte and a
// response frame. Flash behaves like PIC flash: erase sets words to 0x3FFF,
// writes can only clear bits.
package picsim

import (
	"encoding/binary"
	"errors"
	"io"
	"net"
	"sync"
)

// Memory geometry.
const (
	FlashBytes   = 0x8000
	BootBytesEnd = 0x0800
	ConfigBytes  = 0x0200 * 2
	EEBytes      = 0x0100
	BlockBytes   = 64
	headerSize   = 9
	maxPayload   = 64
	syncByte     = 0x55
)

// Opcodes understood by the emulator.
const (
	OpReadVersion  byte = 0x00
	OpReadFlash    byte = 0x01
	OpWriteFlash   byte = 0x02
	OpEraseFlash   byte = 0x03
	OpReadEEData   byte = 0x04
	OpWriteEEData  byte = 0x05
	OpReadConfig   byte = 0x06
	OpWriteConfig  byte = 0x07
	OpCalcChecksum byte = 0x08
	OpResetDevice  byte = 0x09
)

// Status bytes.
const (
	StatusSuccess           byte = 0x01
	StatusAddressOutOfRange byte = 0xFE
	StatusInvalidCommand    byte = 0xFF
)

// Request is a frame received by the emulator.
type Request struct {
	Command    byte
	DataLength uint16
	Key1, Key2 byte
	Address    uint32
	Payload    []byte
}

// HasKey reports whether the erase/write guard bytes were sent.
func (r Request) HasKey() bool {
	return r.Key1 == 0x55 && r.Key2 == 0xAA
}

// Device is an emulated bootloader. The zero value is not usable; use New.
type Device struct {
	mu sync.Mutex

	flash  [FlashBytes]byte
	config [ConfigBytes]byte
	ee     [EEBytes]byte

	version  [16]byte
	requests []Request
	resets   int

	failWrites     int
	failStatus     byte
	dropWrites     int
	dropNext       int
	badSyncNext    int
	eraseStatus    byte
	checksumOffset uint16
	tail           []byte
}

// New returns a device with erased flash, a default identity block and a
// version answer for a PIC16F15356 running bootloader protocol 0.8.
func New() *Device {
	d := &Device{eraseStatus: StatusSuccess}

	for i := 0; i < FlashBytes; i += 2 {
		d.flash[i] = 0xFF
		d.flash[i+1] = 0x3F
	}
	for i := 0; i < ConfigBytes; i += 2 {
		d.config[i] = 0xFF
		d.config[i+1] = 0x3F
	}
	for i := range d.ee {
		d.ee[i] = 0xFF
	}

	// revision 2.2, device id 0x30B0
	copy(d.config[0x0005*2:], []byte{0x82, 0x20, 0xB0, 0x30})
	// MUI words, the MAC window at 0x0106 carries 0x11, 0x22, 0x33
	copy(d.config[0x0106*2:], []byte{0x11, 0x00, 0x22, 0x00, 0x33, 0x00, 0x44, 0x00})

	d.version = [16]byte{
		0x08, 0x00, // minor, major
		headerSize + maxPayload, 0x00, // max packet size
		0x00, 0x00,
		0xB0, 0x30, // device id
		0x00, 0x00,
		0x20, 0x20, // erase and write block size in words
		0xFF, 0xFF, 0xFF, 0xFF, // user ids
	}

	return d
}

// --- Setup ---

// SetVersion overrides the minor and major version of the version answer.
func (d *Device) SetVersion(minor, major byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.version[0], d.version[1] = minor, major
}

// LoadFlash copies data into flash at the byte address, bypassing the
// erase-before-write rule.
func (d *Device) LoadFlash(byteAddr int, data []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	copy(d.flash[byteAddr:], data)
}

// LoadConfig copies data into configuration space at the word address.
func (d *Device) LoadConfig(wordAddr int, data []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	copy(d.config[wordAddr*2:], data)
}

// --- Fault injection ---

// FailWrites answers the next n flash writes with status without
// programming anything.
func (d *Device) FailWrites(n int, status byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failWrites, d.failStatus = n, status
}

// DropWrites leaves the next n flash writes unanswered and unprogrammed.
func (d *Device) DropWrites(n int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dropWrites = n
}

// DropNext leaves the next n requests of any kind unanswered.
func (d *Device) DropNext(n int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dropNext = n
}

// BadSyncNext answers the next n requests with a wrong sync byte only.
func (d *Device) BadSyncNext(n int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.badSyncNext = n
}

// SetEraseStatus makes every erase answer with status.
func (d *Device) SetEraseStatus(status byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.eraseStatus = status
}

// SetChecksumOffset adds offset to every checksum the device reports.
func (d *Device) SetChecksumOffset(offset uint16) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.checksumOffset = offset
}

// SetTail appends tail to every response. At most 4 bytes are drained by
// the host, so a longer tail desynchronizes the link.
func (d *Device) SetTail(tail []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.tail = append([]byte(nil), tail...)
}

// --- Inspection ---

// Requests returns the frames received so far.
func (d *Device) Requests() []Request {
	d.mu.Lock()
	defer d.mu.Unlock()

	return append([]Request(nil), d.requests...)
}

// RequestsFor returns the received frames with the given opcode.
func (d *Device) RequestsFor(op byte) []Request {
	d.mu.Lock()
	defer d.mu.Unlock()

	var out []Request
	for _, r := range d.requests {
		if r.Command == op {
			out = append(out, r)
		}
	}

	return out
}

// Flash returns a copy of n flash bytes at the byte address.
func (d *Device) Flash(byteAddr, n int) []byte {
	d.mu.Lock()
	defer d.mu.Unlock()

	return append([]byte(nil), d.flash[byteAddr:byteAddr+n]...)
}

// Config returns a copy of n configuration bytes at the word address.
func (d *Device) Config(wordAddr, n int) []byte {
	d.mu.Lock()
	defer d.mu.Unlock()

	return append([]byte(nil), d.config[wordAddr*2:wordAddr*2+n]...)
}

// Resets returns how many reset requests were accepted.
func (d *Device) Resets() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.resets
}

// Checksum computes the device checksum over n flash bytes at the byte
// address, as the checksum command does.
func (d *Device) Checksum(byteAddr, n int) uint16 {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.checksum(byteAddr, n)
}

// --- Serving ---

// Connect serves d on one end of an in-memory pipe and returns the other
// end. Closing the returned conn stops the device.
func (d *Device) Connect() net.Conn {
	host, dev := net.Pipe()
	go func() {
		_ = d.Serve(dev)
		_ = dev.Close()
	}()

	return host
}

// Serve answers requests read from rw until it fails. A closed stream ends
// Serve with a nil error.
func (d *Device) Serve(rw io.ReadWriter) error {
	var lead [1]byte
	header := make([]byte, headerSize)

	for {
		if _, err := io.ReadFull(rw, lead[:]); err != nil {
			return ignoreClosed(err)
		}
		if lead[0] != syncByte {
			continue
		}

		if _, err := io.ReadFull(rw, header); err != nil {
			return ignoreClosed(err)
		}

		req := Request{
			Command:    header[0],
			DataLength: binary.LittleEndian.Uint16(header[1:3]),
			Key1:       header[3],
			Key2:       header[4],
			Address:    uint32(header[5]) | uint32(header[6])<<8 | uint32(header[7])<<16,
		}

		if carriesPayload(req.Command) && req.DataLength > 0 {
			n := int(req.DataLength)
			if n > maxPayload {
				n = maxPayload
			}
			req.Payload = make([]byte, n)
			if _, err := io.ReadFull(rw, req.Payload); err != nil {
				return ignoreClosed(err)
			}
		}

		resp := d.handle(req, header)
		if len(resp) == 0 {
			continue
		}
		if _, err := rw.Write(resp); err != nil {
			return ignoreClosed(err)
		}
	}
}

func carriesPayload(op byte) bool {
	return op == OpWriteFlash || op == OpWriteConfig || op == OpWriteEEData
}

func ignoreClosed(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) {
		return nil
	}

	return err
}

// handle applies req and returns the encoded answer, sync byte and tail
// included, or nil to stay silent.
func (d *Device) handle(req Request, header []byte) []byte {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.requests = append(d.requests, req)

	if d.dropNext > 0 {
		d.dropNext--
		return nil
	}
	if d.badSyncNext > 0 {
		d.badSyncNext--
		return []byte{0x00}
	}

	var payload []byte

	switch req.Command {
	case OpReadVersion:
		payload = append([]byte(nil), d.version[:]...)

	case OpReadFlash:
		start := int(req.Address) * 2
		n := int(req.DataLength)
		if start+n > FlashBytes || n > maxPayload {
			payload = []byte{StatusAddressOutOfRange}
		} else {
			payload = append([]byte(nil), d.flash[start:start+n]...)
		}

	case OpWriteFlash:
		if d.dropWrites > 0 {
			d.dropWrites--
			return nil
		}
		if d.failWrites > 0 {
			d.failWrites--
			payload = []byte{d.failStatus}
			break
		}
		payload = []byte{d.writeFlash(req)}

	case OpEraseFlash:
		payload = []byte{d.eraseFlash(req)}

	case OpReadConfig:
		start := int(req.Address) * 2
		n := int(req.DataLength)
		if start+n > ConfigBytes || n > maxPayload {
			payload = []byte{StatusAddressOutOfRange}
		} else {
			payload = append([]byte(nil), d.config[start:start+n]...)
		}

	case OpWriteConfig:
		payload = []byte{d.writeMemory(req, d.config[:], int(req.Address)*2)}

	case OpReadEEData:
		start := int(req.Address)
		n := int(req.DataLength)
		if start+n > EEBytes || n > maxPayload {
			payload = []byte{StatusAddressOutOfRange}
		} else {
			payload = append([]byte(nil), d.ee[start:start+n]...)
		}

	case OpWriteEEData:
		payload = []byte{d.writeMemory(req, d.ee[:], int(req.Address))}

	case OpCalcChecksum:
		start := int(req.Address) * 2
		n := int(req.DataLength)
		if start+n > FlashBytes {
			n = FlashBytes - start
		}
		sum := d.checksum(start, n) + d.checksumOffset
		payload = binary.LittleEndian.AppendUint16(nil, sum)

	case OpResetDevice:
		d.resets++
		payload = []byte{StatusSuccess}

	default:
		payload = []byte{StatusInvalidCommand}
	}

	out := make([]byte, 0, 1+headerSize+len(payload)+len(d.tail))
	out = append(out, syncByte)
	out = append(out, header...)
	out = append(out, payload...)
	out = append(out, d.tail...)

	return out
}

func (d *Device) writeFlash(req Request) byte {
	if !req.HasKey() {
		return StatusInvalidCommand
	}

	start := int(req.Address) * 2
	if start < BootBytesEnd || start+len(req.Payload) > FlashBytes {
		return StatusAddressOutOfRange
	}

	for i, b := range req.Payload {
		d.flash[start+i] &= b
	}

	return StatusSuccess
}

func (d *Device) eraseFlash(req Request) byte {
	if !req.HasKey() {
		return StatusInvalidCommand
	}
	if d.eraseStatus != StatusSuccess {
		return d.eraseStatus
	}

	start := int(req.Address) * 2
	end := start + int(req.DataLength)*BlockBytes
	if start < BootBytesEnd || end > FlashBytes || start%BlockBytes != 0 {
		return StatusAddressOutOfRange
	}

	for i := start; i < end; i += 2 {
		d.flash[i] = 0xFF
		d.flash[i+1] = 0x3F
	}

	return StatusSuccess
}

func (d *Device) writeMemory(req Request, mem []byte, start int) byte {
	if !req.HasKey() {
		return StatusInvalidCommand
	}
	if start+len(req.Payload) > len(mem) {
		return StatusAddressOutOfRange
	}
	copy(mem[start:], req.Payload)

	return StatusSuccess
}

func (d *Device) checksum(start, n int) uint16 {
	var sum uint16
	for i := 0; i < n; i++ {
		sum += uint16(d.flash[start+i]) << ((i & 1) * 8)
	}

	return sum
}

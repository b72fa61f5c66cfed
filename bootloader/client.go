package bootloader

import (
	"context"
	"encoding/binary"
	"fmt"
	"time"
)

// Device memory map, in word addresses.
const (
	AddrIdentity       uint32 = 0x0000 // user ID words, 8 bytes
	AddrDeviceRevision uint32 = 0x0005 // revision and device id, 4 bytes
	AddrConfigWords    uint32 = 0x0007 // configuration words, 10 bytes
	AddrMUI            uint32 = 0x0100 // microchip unique identifier, 18 bytes
	AddrMUIMAC         uint32 = 0x0106 // MUI window holding the MAC suffix
	AddrEUI            uint32 = 0x010A // factory EUI, 16 bytes
)

// Flash geometry of the device.
const (
	FlashReadSize   = 16 // bytes requested by ReadFlash
	EraseBlockWords = 32
	WriteBlockWords = 32
	WriteBlockBytes = 2 * WriteBlockWords
)

const (
	statusResponseSize   = 1
	checksumResponseSize = 2
)

// Extra response time for commands that keep the device busy.
const (
	writeConfigExtra   = 50 * time.Millisecond
	writeEEDataPerByte = 5 * time.Millisecond
	writeFlashPerWord  = 30 * time.Millisecond
	eraseFlashPerBlock = 5 * time.Millisecond
	checksumPerWord    = time.Millisecond
)

// Client issues bootloader commands, one exchange per call.
//
// Failures are *TransportError or *ProtocolError when the link broke and
// *DeviceError when the device answered with a non-success status.
type Client struct {
	t *Transport
}

// NewClient creates a client talking over conn. A nil cfg uses the defaults.
func NewClient(conn Conn, cfg *Config) *Client {
	return &Client{t: NewTransport(conn, cfg)}
}

// NewClientWithTransport creates a client over an existing transport.
func NewClientWithTransport(t *Transport) *Client {
	return &Client{t: t}
}

// Transport returns the underlying transport.
func (c *Client) Transport() *Transport { return c.t }

// Metrics returns the transport counters.
func (c *Client) Metrics() *Metrics { return c.t.Metrics() }

// ReadVersion queries the bootloader version and device information.
// A protocol version other than 0.8 is rejected with ErrUnsupportedVersion.
func (c *Client) ReadVersion(ctx context.Context) (*VersionInfo, error) {
	resp, err := c.t.Exchange(ctx, NewFrame(CmdReadVersion), VersionResponseSize)
	if err != nil {
		return nil, err
	}

	v, err := parseVersion(resp.Payload)
	if err != nil {
		return nil, &ProtocolError{Command: CmdReadVersion, Err: err}
	}

	return v, nil
}

// ReadConfig reads length bytes of configuration space at address.
func (c *Client) ReadConfig(ctx context.Context, address uint32, length int) ([]byte, error) {
	return c.read(ctx, CmdReadConfig, address, length)
}

// WriteConfig writes data to configuration space at address.
func (c *Client) WriteConfig(ctx context.Context, address uint32, data []byte) error {
	return c.write(ctx, CmdWriteConfig, address, data, writeConfigExtra)
}

// ReadEEData reads length bytes of data EEPROM at address.
func (c *Client) ReadEEData(ctx context.Context, address uint32, length int) ([]byte, error) {
	return c.read(ctx, CmdReadEEData, address, length)
}

// WriteEEData writes data to the data EEPROM at address.
func (c *Client) WriteEEData(ctx context.Context, address uint32, data []byte) error {
	return c.write(ctx, CmdWriteEEData, address, data, time.Duration(len(data))*writeEEDataPerByte)
}

// ReadFlash reads flash at the word address. The device decides how many
// bytes it returns; the request asks for FlashReadSize.
func (c *Client) ReadFlash(ctx context.Context, address uint32) ([]byte, error) {
	req := NewFrame(CmdReadFlash)
	req.SetAddress(address)
	req.SetDataLength(FlashReadSize)

	resp, err := c.t.Exchange(ctx, req, UnknownLength)
	if err != nil {
		return nil, err
	}

	return resp.Payload, nil
}

// WriteFlash programs at most one write block (32 words) at the word
// address. The target must have been erased.
//
// Pass Quietly() for a first attempt whose failure the caller will retry.
func (c *Client) WriteFlash(ctx context.Context, address uint32, data []byte, opts ...ExchangeOption) error {
	if len(data) == 0 || len(data) > WriteBlockBytes {
		return fmt.Errorf("%w: write flash of %d bytes", ErrInvalidLength, len(data))
	}

	words := (len(data) + 1) / 2
	extra := time.Duration(words) * writeFlashPerWord

	return c.write(ctx, CmdWriteFlash, address, data, extra, opts...)
}

// EraseFlash erases the erase blocks covering words words from the word
// address on.
func (c *Client) EraseFlash(ctx context.Context, address uint32, words int) error {
	if words <= 0 {
		return fmt.Errorf("%w: erase of %d words", ErrInvalidLength, words)
	}

	blocks := EraseBlocks(words)
	if blocks > 0xFFFF {
		return fmt.Errorf("%w: erase of %d blocks", ErrInvalidLength, blocks)
	}

	req := NewFrame(CmdEraseFlash)
	req.SetAddress(address)
	req.SetDataLength(uint16(blocks)) //nolint:gosec // bounded above
	req.SetEraseWriteKey()

	resp, err := c.t.Exchange(ctx, req, statusResponseSize,
		WithExtraTimeout(time.Duration(blocks)*eraseFlashPerBlock))
	if err != nil {
		return err
	}

	return checkStatus(resp, address)
}

// EraseBlocks returns the number of erase blocks needed for words words.
func EraseBlocks(words int) int {
	return (words + EraseBlockWords - 1) / EraseBlockWords
}

// CalcChecksum asks the device for the 16-bit additive checksum over length
// bytes of flash starting at the word address.
func (c *Client) CalcChecksum(ctx context.Context, address uint32, length int) (uint16, error) {
	if length <= 0 || length > 0xFFFF {
		return 0, fmt.Errorf("%w: checksum over %d bytes", ErrInvalidLength, length)
	}

	req := NewFrame(CmdCalcChecksum)
	req.SetAddress(address)
	req.SetDataLength(uint16(length)) //nolint:gosec // bounded above

	resp, err := c.t.Exchange(ctx, req, checksumResponseSize,
		WithExtraTimeout(time.Duration(length/2)*checksumPerWord))
	if err != nil {
		return 0, err
	}

	return binary.LittleEndian.Uint16(resp.Payload), nil
}

// ResetDevice leaves the bootloader and starts the application.
func (c *Client) ResetDevice(ctx context.Context) error {
	resp, err := c.t.Exchange(ctx, NewFrame(CmdResetDevice), statusResponseSize)
	if err != nil {
		return err
	}

	return checkStatus(resp, 0)
}

// ReadDeviceRevision reads the silicon revision.
func (c *Client) ReadDeviceRevision(ctx context.Context) (Revision, error) {
	data, err := c.ReadConfig(ctx, AddrDeviceRevision, 4)
	if err != nil {
		return Revision{}, err
	}

	rev, err := parseRevision(data)
	if err != nil {
		return Revision{}, &ProtocolError{Command: CmdReadConfig, Err: err}
	}

	return rev, nil
}

func (c *Client) read(ctx context.Context, cmd Command, address uint32, length int) ([]byte, error) {
	if length <= 0 || length > MaxPayloadSize {
		return nil, fmt.Errorf("%w: %s of %d bytes", ErrInvalidLength, cmd, length)
	}

	req := NewFrame(cmd)
	req.SetAddress(address)
	req.SetDataLength(uint16(length)) //nolint:gosec // bounded above

	resp, err := c.t.Exchange(ctx, req, length)
	if err != nil {
		return nil, err
	}

	return resp.Payload, nil
}

func (c *Client) write(ctx context.Context, cmd Command, address uint32, data []byte,
	extra time.Duration, opts ...ExchangeOption,
) error {
	if len(data) == 0 || len(data) > MaxPayloadSize {
		return fmt.Errorf("%w: %s of %d bytes", ErrInvalidLength, cmd, len(data))
	}

	req := NewFrame(cmd)
	req.SetAddress(address)
	req.SetEraseWriteKey()
	req.SetPayload(data)

	opts = append(opts, WithExtraTimeout(extra))
	resp, err := c.t.Exchange(ctx, req, statusResponseSize, opts...)
	if err != nil {
		return err
	}

	return checkStatus(resp, address)
}

// checkStatus turns a non-success status byte into a *DeviceError.
func checkStatus(resp *Frame, address uint32) error {
	if len(resp.Payload) < statusResponseSize {
		return &ProtocolError{Command: resp.Command(), Err: ErrShortResponse}
	}

	status := Status(resp.Payload[0])
	if !status.OK() {
		return &DeviceError{Command: resp.Command(), Address: address, Status: status}
	}

	return nil
}

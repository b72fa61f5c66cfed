package bootloader

import (
	"io"
	"net"
	"testing"
	"time"

	"github.com/arloliu/go-picloader/internal/picsim"
	"github.com/stretchr/testify/assert"
)

// newTestConfig creates a Config with short timeouts suitable for tests.
func newTestConfig(t *testing.T, opts ...Option) *Config {
	t.Helper()

	defaults := []Option{
		WithResponseTimeout(50 * time.Millisecond),
		WithByteTimeout(50 * time.Millisecond),
		WithTailTimeout(5 * time.Millisecond),
	}

	cfg, err := NewConfig(append(defaults, opts...)...)
	if err != nil {
		t.Fatalf("newTestConfig: %v", err)
	}

	return cfg
}

// newTestTransport creates a Transport backed by the local end of net.Pipe().
// Returns the transport and the remote end for simulating the device.
func newTestTransport(t *testing.T, cfg *Config) (*Transport, net.Conn) {
	t.Helper()

	local, remote := net.Pipe()
	t.Cleanup(func() {
		_ = local.Close()
		_ = remote.Close()
	})

	return NewTransport(local, cfg), remote
}

// newTestClient creates a Client connected to an emulated device.
func newTestClient(t *testing.T, opts ...Option) (*Client, *picsim.Device) {
	t.Helper()

	dev := picsim.New()
	conn := dev.Connect()
	t.Cleanup(func() { _ = conn.Close() })

	return NewClient(conn, newTestConfig(t, opts...)), dev
}

// readRequest reads one sync-prefixed request with payloadLen payload bytes
// from the remote end.
func readRequest(t *testing.T, r io.Reader, payloadLen int) *Frame {
	t.Helper()

	sync := readExactly(t, r, 1)
	assert.Equal(t, SyncByte, sync[0])

	header := readExactly(t, r, HeaderSize)
	var payload []byte
	if payloadLen > 0 {
		payload = readExactly(t, r, payloadLen)
	}

	f, err := ParseFrame(header, payload)
	assert.NoError(t, err)

	return f
}

// respond writes a sync byte and a response frame echoing cmd with payload.
func respond(t *testing.T, w io.Writer, cmd Command, payload []byte, extra ...byte) {
	t.Helper()

	resp := NewFrame(cmd)
	resp.Payload = payload
	resp.SetDataLength(uint16(len(payload))) //nolint:gosec // test payloads are small

	buf := append([]byte{SyncByte}, resp.Pack()...)
	buf = append(buf, extra...)
	_, err := w.Write(buf)
	assert.NoError(t, err)
}

// readExactly reads exactly n bytes from r.
func readExactly(t *testing.T, r io.Reader, n int) []byte {
	t.Helper()

	buf := make([]byte, n)
	_, err := io.ReadFull(r, buf)
	assert.NoError(t, err)

	return buf
}

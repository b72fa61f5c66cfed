package bootloader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"time"

	"github.com/arloliu/go-picloader/internal/pool"
	"github.com/arloliu/go-picloader/internal/util"
	"github.com/arloliu/go-picloader/logger"
)

// Conn is the byte stream a Transport talks over. *os.File (a tty opened in
// non-blocking mode), *serialport.Port and net.Conn satisfy it.
type Conn interface {
	io.ReadWriter
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
}

// Transport exchanges one request frame for one response frame.
//
// Every exchange starts with the sync byte so the device can measure the
// line rate, and every response starts with the sync byte echoed back. All
// reads and writes are bounded by deadlines, so an exchange never blocks
// longer than its timeouts.
//
// This type is NOT goroutine-safe. The protocol is strictly
// request-then-response and only one exchange may be in flight.
type Transport struct {
	conn    Conn
	cfg     *Config
	logger  logger.Logger
	metrics *Metrics

	rxBuf   [HeaderSize + MaxPayloadSize]byte
	tailBuf [16]byte
}

// NewTransport creates a transport over conn. A nil cfg uses the defaults.
func NewTransport(conn Conn, cfg *Config) *Transport {
	if conn == nil {
		panic("bootloader: conn cannot be nil")
	}
	if cfg == nil {
		cfg, _ = NewConfig()
	}

	return &Transport{
		conn:    conn,
		cfg:     cfg,
		logger:  cfg.GetLogger(),
		metrics: newMetrics(),
	}
}

// Config returns the transport configuration.
func (t *Transport) Config() *Config { return t.cfg }

// Metrics returns the transport counters.
func (t *Transport) Metrics() *Metrics { return t.metrics }

type exchangeOptions struct {
	quiet        bool
	extraTimeout time.Duration
}

// ExchangeOption adjusts a single exchange.
type ExchangeOption func(*exchangeOptions)

// Quietly logs a failed exchange at debug level instead of error level.
// The error is still returned; only the diagnostics change.
func Quietly() ExchangeOption {
	return func(o *exchangeOptions) {
		o.quiet = true
	}
}

// WithExtraTimeout extends the wait for the response sync byte, for commands
// that keep the device busy before it answers.
func WithExtraTimeout(d time.Duration) ExchangeOption {
	return func(o *exchangeOptions) {
		if d > 0 {
			o.extraTimeout += d
		}
	}
}

// Exchange sends req and returns the device's response.
//
// respLen is the number of payload bytes expected in the response, or
// UnknownLength to take it from the response header.
func (t *Transport) Exchange(ctx context.Context, req *Frame, respLen int, opts ...ExchangeOption) (*Frame, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	if respLen > MaxPayloadSize || respLen < UnknownLength {
		return nil, fmt.Errorf("%w: response length %d", ErrInvalidLength, respLen)
	}

	var o exchangeOptions
	for _, opt := range opts {
		opt(&o)
	}

	t.metrics.incCommand(req.Command())

	resp, err := t.exchange(ctx, req, respLen, o.extraTimeout)
	if err != nil {
		t.metrics.incFailureCount()
		if errors.Is(err, ErrReadTimeout) || isTimeout(err) {
			t.metrics.incTimeoutCount()
		}
		t.logFailure(o.quiet, req, err)

		return nil, err
	}

	t.metrics.incExchangeCount()
	t.logger.Debug("bootloader: exchange", "request", req.String(), "response", resp.String())

	return resp, nil
}

func (t *Transport) exchange(ctx context.Context, req *Frame, respLen int, extra time.Duration) (*Frame, error) {
	cmd := req.Command()

	// Step 1: sync byte for the auto-baud detector.
	if err := t.writeAll([]byte{SyncByte}); err != nil {
		return nil, &TransportError{Command: cmd, Op: "write sync", Err: fmt.Errorf("%w: %w", ErrSyncWriteFailed, err)}
	}

	// Step 2: let the detector settle before real data arrives.
	if err := pool.Wait(ctx, t.cfg.baudDetectDelay); err != nil {
		return nil, err
	}

	// Step 3: header and payload.
	if err := t.writeAll(req.Pack()); err != nil {
		return nil, &TransportError{Command: cmd, Op: "write frame", Err: fmt.Errorf("%w: %w", ErrWriteFailed, err)}
	}

	// Step 4: response sync byte within the (extended) response timeout.
	b, err := t.readByte(t.cfg.responseTimeout + extra)
	if err != nil {
		return nil, &TransportError{Command: cmd, Op: "read sync", Err: readErr(err)}
	}
	if b != SyncByte {
		return nil, &TransportError{
			Command: cmd,
			Op:      "read sync",
			Err:     fmt.Errorf("%w: got 0x%02X, want 0x%02X", ErrSyncMismatch, b, SyncByte),
		}
	}

	// Step 5: header, then as many payload bytes as expected.
	header := t.rxBuf[:HeaderSize]
	if err := t.readFull(header); err != nil {
		return nil, &TransportError{Command: cmd, Op: "read header", Err: readErr(err)}
	}

	resp, err := ParseHeader(header)
	if err != nil {
		return nil, &ProtocolError{Command: cmd, Err: err}
	}

	n := respLen
	if n == UnknownLength {
		n = int(resp.DataLength())
	}
	if n > MaxPayloadSize {
		return nil, &ProtocolError{Command: cmd, Err: fmt.Errorf("%w: %d bytes", ErrPayloadTooLong, n)}
	}

	if n > 0 {
		payload := t.rxBuf[HeaderSize : HeaderSize+n]
		if err := t.readFull(payload); err != nil {
			return nil, &TransportError{Command: cmd, Op: "read payload", Err: readErr(err)}
		}
		resp.Payload = util.CloneSlice(payload, 0)
	}

	// Step 6: the device sometimes emits a few bytes after the frame.
	t.drainTail(cmd)

	// Step 7: the response must answer the request.
	if resp.Command() != cmd {
		return nil, &ProtocolError{
			Command: cmd,
			Err:     fmt.Errorf("%w: got %s", ErrUnexpectedCommand, resp.Command()),
		}
	}

	return resp, nil
}

// --- Low-level I/O helpers ---

// writeAll writes data, applying the byte timeout to every write call.
func (t *Transport) writeAll(data []byte) error {
	for written := 0; written < len(data); {
		if err := t.conn.SetWriteDeadline(time.Now().Add(t.cfg.byteTimeout)); err != nil {
			return err
		}

		n, err := t.conn.Write(data[written:])
		written += n
		t.metrics.addBytesSent(n)

		if err != nil {
			return err
		}
		if n == 0 {
			return io.ErrShortWrite
		}
	}

	return nil
}

// readByte reads a single byte with the given timeout.
func (t *Transport) readByte(timeout time.Duration) (byte, error) {
	if err := t.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return 0, err
	}

	var b [1]byte
	n, err := t.conn.Read(b[:])
	t.metrics.addBytesRecv(n)
	if n == 1 {
		return b[0], nil
	}
	if err == nil {
		err = io.ErrNoProgress
	}

	return 0, err
}

// readFull reads exactly len(buf) bytes, applying the byte timeout as a
// per-read-call deadline. The timer restarts after each chunk of data.
func (t *Transport) readFull(buf []byte) error {
	for read := 0; read < len(buf); {
		if err := t.conn.SetReadDeadline(time.Now().Add(t.cfg.byteTimeout)); err != nil {
			return err
		}

		n, err := t.conn.Read(buf[read:])
		read += n
		t.metrics.addBytesRecv(n)

		if read == len(buf) {
			return nil
		}
		if err != nil {
			return err
		}
		if n == 0 {
			return io.ErrNoProgress
		}
	}

	return nil
}

// drainTail reads and discards up to TailLength bytes. Silence is the
// normal case and not an error.
func (t *Transport) drainTail(cmd Command) {
	if t.cfg.tailTimeout <= 0 || t.cfg.tailLength <= 0 {
		return
	}

	if err := t.conn.SetReadDeadline(time.Now().Add(t.cfg.tailTimeout)); err != nil {
		return
	}

	n, _ := t.conn.Read(t.tailBuf[:t.cfg.tailLength])
	if n > 0 {
		t.metrics.addBytesRecv(n)
		t.metrics.addTailBytes(n)
		t.logger.Debug("bootloader: discarded response tail",
			"command", cmd.String(),
			"bytes", fmt.Sprintf("% x", t.tailBuf[:n]),
		)
	}
}

func (t *Transport) logFailure(quiet bool, req *Frame, err error) {
	kv := []any{
		"command", req.Command().String(),
		"address", fmt.Sprintf("0x%04X", req.Address()),
		"error", err,
	}
	if quiet {
		t.logger.Debug("bootloader: exchange failed", kv...)
		return
	}
	t.logger.Error("bootloader: exchange failed", kv...)
}

// readErr classifies a read failure as a timeout or a link error.
func readErr(err error) error {
	if isTimeout(err) {
		return fmt.Errorf("%w: %w", ErrReadTimeout, err)
	}

	return fmt.Errorf("%w: %w", ErrReadFailed, err)
}

func isTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}

	var ne net.Error

	return errors.As(err, &ne) && ne.Timeout()
}

// Package serialport opens the adapter's serial device for exclusive use.
//
// A Port holds an advisory exclusive lock on the device, puts the line into
// raw 8N1 mode at the requested speed and restores the original line
// settings on Close. Reads and writes honour deadlines, so a Port can be
// used as a bootloader.Conn.
package serialport

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"syscall"
	"time"

	"github.com/arloliu/go-picloader/logger"
)

// Supported line speeds.
const (
	BaudSlow = 115200
	BaudFast = 921600
)

var (
	// ErrLocked is returned when another process holds the device lock.
	ErrLocked = errors.New("serialport: device is locked by another process")
	// ErrUnsupportedBaud is returned for a speed other than BaudSlow or
	// BaudFast.
	ErrUnsupportedBaud = errors.New("serialport: unsupported baud rate")
)

// Option configures Open.
type Option func(*Port)

// WithLogger sets the logger used for open and close events.
func WithLogger(l logger.Logger) Option {
	return func(p *Port) {
		if l != nil {
			p.logger = l
		}
	}
}

// Port is an open serial device.
type Port struct {
	f      *os.File
	rc     syscall.RawConn
	name   string
	baud   int
	saved  *lineState
	logger logger.Logger

	closeOnce sync.Once
	closeErr  error
}

// Open opens the device at name, locks it and configures it for baud.
// Nothing is left open or locked when Open fails.
func Open(name string, baud int, opts ...Option) (*Port, error) {
	if baud != BaudSlow && baud != BaudFast {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedBaud, baud)
	}

	p := &Port{name: name, baud: baud, logger: logger.GetLogger()}
	for _, opt := range opts {
		opt(p)
	}

	f, err := os.OpenFile(name, os.O_RDWR|openFlags, 0)
	if err != nil {
		return nil, fmt.Errorf("serialport: open %s: %w", name, err)
	}

	rc, err := f.SyscallConn()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("serialport: open %s: %w", name, err)
	}

	if err := lock(rc); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("serialport: lock %s: %w", name, err)
	}

	saved, err := configure(rc, baud)
	if err != nil {
		_ = unlock(rc)
		_ = f.Close()
		return nil, fmt.Errorf("serialport: configure %s: %w", name, err)
	}

	p.f, p.rc, p.saved = f, rc, saved
	p.logger.Debug("serialport: opened", "port", name, "baud", baud)

	return p, nil
}

// With opens the device, runs fn and closes the device on every path.
// A Close error is returned only when fn succeeded.
func With(name string, baud int, fn func(*Port) error, opts ...Option) (err error) {
	p, err := Open(name, baud, opts...)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := p.Close(); err == nil {
			err = cerr
		}
	}()

	return fn(p)
}

// Name returns the device path.
func (p *Port) Name() string { return p.name }

// Baud returns the configured speed.
func (p *Port) Baud() int { return p.baud }

func (p *Port) Read(b []byte) (int, error) { return p.f.Read(b) }

func (p *Port) Write(b []byte) (int, error) { return p.f.Write(b) }

// SetReadDeadline sets the deadline for pending and future reads.
func (p *Port) SetReadDeadline(t time.Time) error { return p.f.SetReadDeadline(t) }

// SetWriteDeadline sets the deadline for pending and future writes.
func (p *Port) SetWriteDeadline(t time.Time) error { return p.f.SetWriteDeadline(t) }

// Close restores the original line settings, releases the lock and closes
// the device. It is safe to call more than once.
func (p *Port) Close() error {
	p.closeOnce.Do(func() {
		var errs []error
		if err := restore(p.rc, p.saved); err != nil {
			errs = append(errs, fmt.Errorf("restore line settings: %w", err))
		}
		if err := unlock(p.rc); err != nil {
			errs = append(errs, fmt.Errorf("unlock: %w", err))
		}
		if err := p.f.Close(); err != nil {
			errs = append(errs, err)
		}

		if len(errs) > 0 {
			p.closeErr = fmt.Errorf("serialport: close %s: %w", p.name, errors.Join(errs...))
			p.logger.Warn("serialport: close failed", "port", p.name, "error", p.closeErr)

			return
		}
		p.logger.Debug("serialport: closed", "port", p.name)
	})

	return p.closeErr
}

// control runs fn with the raw descriptor and returns the first error of
// either the call or fn.
func control(rc syscall.RawConn, fn func(fd int) error) error {
	var opErr error
	if err := rc.Control(func(fd uintptr) {
		opErr = fn(int(fd)) //nolint:gosec // descriptors fit in int
	}); err != nil {
		return err
	}

	return opErr
}

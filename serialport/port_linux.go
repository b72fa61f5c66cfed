//go:build linux

package serialport

import (
	"errors"
	"syscall"

	"golang.org/x/sys/unix"
)

// lineState is the saved termios of the device.
type lineState = unix.Termios

const openFlags = unix.O_NOCTTY | unix.O_NONBLOCK

var baudFlags = map[int]uint32{
	BaudSlow: unix.B115200,
	BaudFast: unix.B921600,
}

func lock(rc syscall.RawConn) error {
	err := control(rc, func(fd int) error {
		return unix.Flock(fd, unix.LOCK_EX|unix.LOCK_NB)
	})
	if errors.Is(err, unix.EWOULDBLOCK) {
		return ErrLocked
	}

	return err
}

func unlock(rc syscall.RawConn) error {
	return control(rc, func(fd int) error {
		return unix.Flock(fd, unix.LOCK_UN)
	})
}

// configure saves the current termios and switches the line to raw 8N1
// without flow control. Stale input and output are discarded.
func configure(rc syscall.RawConn, baud int) (*lineState, error) {
	speed, ok := baudFlags[baud]
	if !ok {
		return nil, ErrUnsupportedBaud
	}

	var saved *unix.Termios
	err := control(rc, func(fd int) error {
		t, err := unix.IoctlGetTermios(fd, unix.TCGETS)
		if err != nil {
			return err
		}
		saved = t

		raw := unix.Termios{
			Cflag:  unix.CS8 | unix.CREAD | unix.CLOCAL | speed,
			Ispeed: speed,
			Ospeed: speed,
		}
		raw.Cc[unix.VMIN] = 1
		raw.Cc[unix.VTIME] = 0

		if err := unix.IoctlSetTermios(fd, unix.TCSETS, &raw); err != nil {
			return err
		}

		return unix.IoctlSetInt(fd, unix.TCFLSH, unix.TCIOFLUSH)
	})
	if err != nil {
		return nil, err
	}

	return saved, nil
}

func restore(rc syscall.RawConn, saved *lineState) error {
	if saved == nil {
		return nil
	}

	return control(rc, func(fd int) error {
		return unix.IoctlSetTermios(fd, unix.TCSETS, saved)
	})
}

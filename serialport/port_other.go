//go:build !linux

package serialport

import (
	"errors"
	"syscall"
)

type lineState struct{}

const openFlags = 0

var errUnsupportedPlatform = errors.New("serialport: line configuration is only implemented on linux")

func lock(syscall.RawConn) error { return nil }

func unlock(syscall.RawConn) error { return nil }

func configure(syscall.RawConn, int) (*lineState, error) {
	return nil, errUnsupportedPlatform
}

func restore(syscall.RawConn, *lineState) error { return nil }

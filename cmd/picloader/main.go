// Command picloader flashes firmware to an eBUS adapter's PIC16F15356 and
// reads or changes the adapter's IP settings through its bootloader.
//
// Usage:
//
//	picloader [flags] PORT
//	picloader -f firmware.hex
//	picloader ports
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := newRootCmd(newApp(os.Stdout, os.Stderr)).ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/arloliu/go-picloader/bootloader"
	"github.com/arloliu/go-picloader/logger"
	"github.com/arloliu/go-picloader/serialport"
)

// errFailed reports a session that ran but did not complete every
// requested step. The details were already printed.
var errFailed = errors.New("picloader: one or more steps failed")

var errMissingPort = errors.New("picloader: missing PORT")

// deviceConn is an open link to the adapter.
type deviceConn interface {
	bootloader.Conn
	io.Closer
}

// opener opens the link to the adapter at name.
type opener func(name string, baud int, l logger.Logger) (deviceConn, error)

func openSerial(name string, baud int, l logger.Logger) (deviceConn, error) {
	p, err := serialport.Open(name, baud, serialport.WithLogger(l))
	if err != nil {
		return nil, err
	}

	return p, nil
}

// options holds the command line flags.
type options struct {
	verbose   bool
	dhcp      bool
	ip        string
	mask      string
	macFromIP bool
	flashFile string
	reset     bool
	slow      bool
}

// app carries the outputs and the link opener of one invocation.
type app struct {
	out    io.Writer
	errOut io.Writer
	open   opener
	// listPorts is replaced in tests.
	listPorts func() ([]serialport.Info, error)
	// bootloaderOpts are appended to the transport options; tests shorten
	// the timeouts with them.
	bootloaderOpts []bootloader.Option
}

func newApp(out, errOut io.Writer) *app {
	return &app{
		out:       out,
		errOut:    errOut,
		open:      openSerial,
		listPorts: serialport.List,
	}
}

func (a *app) logger(verbose bool) logger.Logger {
	level := logger.WarnLevel
	if verbose {
		level = logger.DebugLevel
	}

	return logger.NewSlogWithWriter(a.errOut, level, false)
}

func newRootCmd(a *app) *cobra.Command {
	var opts options

	cmd := &cobra.Command{
		Use:   "picloader [flags] PORT",
		Short: "Flash firmware and IP settings of an eBUS adapter",
		Long: `Talks to the bootloader of an eBUS adapter over the serial port PORT.

It reports the device, bootloader and firmware versions and the IP
settings, then optionally flashes a new firmware image, changes the IP
settings and resets the device.

Without PORT but with --flash, the image's firmware version and checksum
are printed.`,
		Example: `  # show device information
  picloader /dev/ttyUSB0

  # flash firmware and reset into it
  picloader -f firmware.hex -r /dev/ttyUSB0

  # set a fixed IP address with a MAC derived from it
  picloader -i 192.168.0.10 -m 24 -M /dev/ttyUSB0

  # check a firmware image offline
  picloader -f firmware.hex`,
		Args:          cobra.MaximumNArgs(1),
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			port := ""
			if len(args) > 0 {
				port = args[0]
			}

			return a.run(cmd, port, opts)
		},
	}

	f := cmd.Flags()
	f.BoolVarP(&opts.verbose, "verbose", "v", false, "enable verbose output")
	f.BoolVarP(&opts.dhcp, "dhcp", "d", false, "set dynamic IP address via DHCP")
	f.StringVarP(&opts.ip, "ip", "i", "", "set fixed IP address (e.g. 192.168.0.10)")
	f.StringVarP(&opts.mask, "mask", "m", "", "set fixed IP mask length (e.g. 24)")
	f.BoolVarP(&opts.macFromIP, "macip", "M", false, "set the MAC address suffix from the IP address")
	f.StringVarP(&opts.flashFile, "flash", "f", "", "flash the HEX file `FILE`")
	f.BoolVarP(&opts.reset, "reset", "r", false, "reset the device at the end on success")
	f.BoolVarP(&opts.slow, "slow", "s", false, fmt.Sprintf("use low speed (%d baud) for transfer", bootloader.BaudRateSlow))

	cmd.AddCommand(newPortsCmd(a))

	return cmd
}

func newPortsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "ports",
		Short: "List the serial ports of this system",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmd.SilenceUsage = true

			ports, err := a.listPorts()
			if err != nil {
				fmt.Fprintln(a.errOut, err)
				return err
			}
			if len(ports) == 0 {
				fmt.Fprintln(a.out, "no serial ports found")
				return nil
			}
			for _, p := range ports {
				fmt.Fprintln(a.out, p.String())
			}

			return nil
		},
	}
}

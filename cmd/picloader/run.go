package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/arloliu/go-picloader/bootloader"
	"github.com/arloliu/go-picloader/flasher"
	"github.com/arloliu/go-picloader/hexfile"
	"github.com/arloliu/go-picloader/identity"
	"github.com/arloliu/go-picloader/logger"
)

// run validates the arguments, then drives one session with the adapter:
// report, flash, write IP settings, reset.
func (a *app) run(cmd *cobra.Command, port string, opts options) error {
	settings, err := identity.ParseSettings(opts.dhcp, opts.ip, opts.mask, opts.macFromIP)
	if err != nil {
		fmt.Fprintln(a.errOut, err)
		return err
	}

	var img *hexfile.Image
	if opts.flashFile != "" {
		img, err = hexfile.ParseFile(opts.flashFile)
		if err != nil {
			fmt.Fprintln(a.errOut, err)
			return err
		}
		if err := flasher.ValidateRange(img.Range()); err != nil {
			fmt.Fprintln(a.errOut, err)
			return err
		}
	}

	if port == "" {
		if img == nil {
			fmt.Fprintln(a.errOut, errMissingPort)
			return errMissingPort
		}
		a.printImage(img)

		return nil
	}
	cmd.SilenceUsage = true

	log := a.logger(opts.verbose)
	logger.SetLogger(log)
	cfg, err := bootloader.NewConfig(append([]bootloader.Option{
		bootloader.WithLowSpeed(opts.slow),
		bootloader.WithLogger(log),
	}, a.bootloaderOpts...)...)
	if err != nil {
		fmt.Fprintln(a.errOut, err)
		return err
	}

	conn, err := a.open(port, cfg.BaudRate(), log)
	if err != nil {
		fmt.Fprintln(a.errOut, err)
		return err
	}
	defer conn.Close()

	client := bootloader.NewClient(conn, cfg)
	s := &session{
		app:      a,
		ctx:      cmd.Context(),
		client:   client,
		ids:      identity.NewManager(client, log),
		log:      log,
		verbose:  opts.verbose,
		settings: settings,
	}

	return s.run(img, opts.reset)
}

// printImage prints the firmware version and checksum an image will leave
// on the device.
func (a *app) printImage(img *hexfile.Image) {
	version := "not found"
	if v, ok := flasher.ImageFirmwareVersion(img); ok {
		version = fmt.Sprintf("%d", v)
	}
	fmt.Fprintf(a.out, "New firmware version: %s [%s]\n", version, flasher.ImageChecksum(img))
}

// session is one run against an open device.
type session struct {
	*app
	ctx      context.Context //nolint:containedctx // scoped to one run
	client   *bootloader.Client
	ids      *identity.Manager
	log      logger.Logger
	verbose  bool
	settings identity.Settings
}

func (s *session) run(img *hexfile.Image, reset bool) error {
	if err := s.report(); err != nil {
		fmt.Fprintln(s.errOut, err)
		return err
	}
	fmt.Fprintln(s.out)

	ok := true
	if img != nil {
		s.printImage(img)
		if err := s.flash(img); err != nil {
			fmt.Fprintf(s.errOut, "flashing failed: %v\n", err)
			ok = false
		}
	}

	if s.settings.Requested() {
		fmt.Fprint(s.out, "Writing IP settings: ")
		if err := s.ids.Write(s.ctx, s.settings); err != nil {
			fmt.Fprintln(s.out, "failed")
			fmt.Fprintln(s.errOut, err)
			ok = false
		} else {
			fmt.Fprintln(s.out, "done.")
			fmt.Fprintln(s.out, "IP settings changed to:")
			if err := s.printIdentity(); err != nil {
				fmt.Fprintln(s.errOut, err)
				ok = false
			}
		}
	}

	if !ok {
		return errFailed
	}

	if reset {
		fmt.Fprintln(s.out, "resetting device.")
		if err := s.client.ResetDevice(s.ctx); err != nil {
			fmt.Fprintln(s.errOut, err)
			return err
		}
	}

	return nil
}

func (s *session) flash(img *hexfile.Image) error {
	bar := newProgressBar(s.out)

	p := flasher.New(s.client,
		flasher.WithLogger(s.log),
		flasher.WithProgressCallback(bar.update),
	)

	rng := img.Range()
	fmt.Fprintf(s.out, "flashing: 0x%04X - 0x%04X\n", rng.Start/2, rng.End/2)

	res, err := p.Program(s.ctx, img)
	bar.finish()
	if err != nil {
		return err
	}

	fmt.Fprintf(s.out, "flashing succeeded: %d blocks written, %d blank, %d retried [%s] in %s\n",
		res.Written, res.Skipped, res.Retries, res.Checksum, res.Elapsed.Round(time.Millisecond))

	return nil
}

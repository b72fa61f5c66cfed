package main

import (
	"fmt"

	"github.com/arloliu/go-picloader/bootloader"
	"github.com/arloliu/go-picloader/flasher"
	"github.com/arloliu/go-picloader/internal/util"
)

// Regions shown in the report, in word addresses and bytes.
const (
	bootloaderChecksumBytes = flasher.BootBytesEnd
	firmwareChecksumBytes   = flasher.FlashBytesEnd - flasher.BootBytesEnd

	revisionBytes    = 4
	configWordsBytes = 5 * 2
	muiBytes         = 9 * 2
	euiBytes         = 8 * 2
)

// report prints what the device tells about itself. Only a failing version
// read is fatal.
func (s *session) report() error {
	v, err := s.client.ReadVersion(s.ctx)
	if err != nil {
		return fmt.Errorf("read version: %w", err)
	}

	name := v.DeviceName()
	if name == "" {
		name = "unknown"
	}
	fmt.Fprintf(s.out, "Device ID: %04x (%s)\n", v.DeviceID, name)

	if s.verbose {
		fmt.Fprintf(s.out, "Bootloader protocol: %d.%d\n", v.Major, v.Minor)
		fmt.Fprintf(s.out, "Max packet size: %d\n", v.MaxPacketSize)
		fmt.Fprintf(s.out, "Erase block size: %d words\n", v.EraseBlockSize)
		fmt.Fprintf(s.out, "Write block size: %d words\n", v.WriteBlockSize)
		for i, id := range v.UserIDs {
			fmt.Fprintf(s.out, "User ID %d: %02x\n", i+1, id)
		}
		s.dump("User ID:", bootloader.AddrIdentity, 8, false)
		s.dump("Rev ID, Device ID:", bootloader.AddrDeviceRevision, revisionBytes, false)
	}

	if rev, err := s.client.ReadDeviceRevision(s.ctx); err != nil {
		fmt.Fprintf(s.errOut, "unable to read device revision: %v\n", err)
	} else {
		fmt.Fprintf(s.out, "Device revision: %s\n", rev)
	}

	if s.verbose {
		s.dump("Configuration words:", bootloader.AddrConfigWords, configWordsBytes, false)
		s.dump("MUI:", bootloader.AddrMUI, muiBytes, true)
		s.dump("EUI:", bootloader.AddrEUI, euiBytes, false)
	}

	s.printRegion("Bootloader", 0, bootloaderChecksumBytes, flasher.BootloaderMarker)
	s.printRegion("Firmware", flasher.FirmwareVersionWord, firmwareChecksumBytes, flasher.FirmwareMarker)

	if err := s.printIdentity(); err != nil {
		fmt.Fprintln(s.errOut, err)
	}

	return nil
}

// printRegion prints the version found behind marker at word and the
// device checksum over length bytes from there.
func (s *session) printRegion(label string, word uint32, length int, marker byte) {
	data, err := s.client.ReadFlash(s.ctx, word)
	if err != nil {
		fmt.Fprintf(s.errOut, "unable to read %s version: %v\n", label, err)
		return
	}
	if s.verbose {
		fmt.Fprintf(s.out, "Flash at 0x%04x:\n", word)
		s.printLines(util.WordDump(word, data, false))
	}

	version, ok := flasher.FirmwareVersion(data, marker)
	if !ok {
		fmt.Fprintf(s.out, "%s version not found\n", label)
		return
	}

	sum, err := s.client.CalcChecksum(s.ctx, word, length)
	if err != nil {
		fmt.Fprintf(s.out, "%s version: %d [checksum unavailable]\n", label, version)
		fmt.Fprintln(s.errOut, err)

		return
	}
	fmt.Fprintf(s.out, "%s version: %d [%s]\n", label, version, flasher.Checksum(sum))
}

func (s *session) printIdentity() error {
	id, err := s.ids.Read(s.ctx)
	if err != nil {
		return err
	}

	fmt.Fprintf(s.out, "MAC address: %s\n", id.MAC)
	fmt.Fprintf(s.out, "IP address: %s\n", id.Address())

	return nil
}

// dump prints a hex dump of a configuration region; failures are reported
// and skipped.
func (s *session) dump(title string, word uint32, length int, skipHigh bool) {
	data, err := s.client.ReadConfig(s.ctx, word, length)
	if err != nil {
		fmt.Fprintf(s.errOut, "unable to read config at 0x%04x: %v\n", word, err)
		return
	}

	fmt.Fprintln(s.out, title)
	s.printLines(util.WordDump(word, data, skipHigh))
}

func (s *session) printLines(lines []string) {
	for _, l := range lines {
		fmt.Fprintln(s.out, l)
	}
}

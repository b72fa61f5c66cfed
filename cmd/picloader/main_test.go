package main

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arloliu/go-picloader/bootloader"
	"github.com/arloliu/go-picloader/flasher"
	"github.com/arloliu/go-picloader/hexfile"
	"github.com/arloliu/go-picloader/identity"
	"github.com/arloliu/go-picloader/internal/picsim"
	"github.com/arloliu/go-picloader/logger"
	"github.com/arloliu/go-picloader/serialport"
)

type testEnv struct {
	app    *app
	dev    *picsim.Device
	out    *bytes.Buffer
	errOut *bytes.Buffer
	opened []string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	env := &testEnv{
		dev:    picsim.New(),
		out:    &bytes.Buffer{},
		errOut: &bytes.Buffer{},
	}
	env.app = newApp(env.out, env.errOut)
	env.app.open = func(name string, _ int, _ logger.Logger) (deviceConn, error) {
		env.opened = append(env.opened, name)
		return env.dev.Connect(), nil
	}
	env.app.bootloaderOpts = []bootloader.Option{
		bootloader.WithResponseTimeout(50 * time.Millisecond),
		bootloader.WithByteTimeout(50 * time.Millisecond),
		bootloader.WithTailTimeout(time.Millisecond),
	}

	return env
}

func (env *testEnv) execute(args ...string) error {
	cmd := newRootCmd(env.app)
	cmd.SetArgs(args)
	cmd.SetOut(env.out)
	cmd.SetErr(env.errOut)

	return cmd.ExecuteContext(context.Background())
}

// installVersions puts version markers for bootloader 3 and firmware 7 into
// the device's flash.
func (env *testEnv) installVersions() {
	env.dev.LoadFlash(0x0000, []byte{0x00, 0x31, 0x8C, 0x2A, 0xAB, 0x34, 0x03, 0x34})
	env.dev.LoadFlash(0x0800, []byte{0x00, 0x31, 0x8C, 0x2A, 0xAE, 0x34, 0x07, 0x34})
}

// hexRecord formats one Intel HEX record with its checksum.
func hexRecord(addr uint16, typ byte, data []byte) string {
	b := []byte{byte(len(data)), byte(addr >> 8), byte(addr), typ}
	b = append(b, data...)

	var sum byte
	for _, v := range b {
		sum += v
	}
	b = append(b, 0-sum)

	return ":" + strings.ToUpper(hex.EncodeToString(b)) + "\n"
}

var firmwareBytes = []byte{
	0x00, 0x31, 0x8C, 0x2A, 0xAE, 0x34, 0x08, 0x34,
	0x01, 0x00, 0x02, 0x00, 0x03, 0x00, 0x04, 0x00,
}

func writeHex(t *testing.T, records ...string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "firmware.hex")
	src := strings.Join(records, "") + ":00000001FF\n"
	require.NoError(t, os.WriteFile(path, []byte(src), 0o600))

	return path
}

func firmwareHex(t *testing.T) string {
	t.Helper()

	return writeHex(t,
		hexRecord(0x0800, 0x00, firmwareBytes),
		hexRecord(0x0900, 0x00, []byte{0x11, 0x22, 0x33, 0x04}),
	)
}

func TestRun_ConflictingSettingsRejectedBeforeOpen(t *testing.T) {
	env := newTestEnv(t)

	err := env.execute("-d", "-i", "192.168.0.10", "-m", "24", "/dev/ttyUSB0")
	require.ErrorIs(t, err, identity.ErrConflictingSettings)
	assert.Empty(t, env.opened)
	assert.Empty(t, env.dev.Requests())
}

func TestRun_IncompleteSettingsRejectedBeforeOpen(t *testing.T) {
	tests := [][]string{
		{"-i", "192.168.0.10", "/dev/ttyUSB0"},
		{"-m", "24", "/dev/ttyUSB0"},
		{"-M", "/dev/ttyUSB0"},
	}

	for _, args := range tests {
		t.Run(strings.Join(args, " "), func(t *testing.T) {
			env := newTestEnv(t)

			err := env.execute(args...)
			require.ErrorIs(t, err, identity.ErrIncompleteSettings)
			assert.Empty(t, env.opened)
		})
	}
}

func TestRun_InvalidImageRejectedBeforeOpen(t *testing.T) {
	env := newTestEnv(t)
	path := writeHex(t, hexRecord(0x0000, 0x00, []byte{0x8C, 0x31}))

	err := env.execute("-f", path, "/dev/ttyUSB0")
	require.ErrorIs(t, err, flasher.ErrInvalidRange)
	assert.Empty(t, env.opened)
	assert.Contains(t, env.errOut.String(), "starts inside the boot block")
}

func TestRun_MalformedImageRejectedBeforeOpen(t *testing.T) {
	env := newTestEnv(t)
	path := filepath.Join(t.TempDir(), "broken.hex")
	require.NoError(t, os.WriteFile(path, []byte("not hex\n"), 0o600))

	err := env.execute("-f", path, "/dev/ttyUSB0")
	require.ErrorIs(t, err, hexfile.ErrMalformedImage)
	assert.Empty(t, env.opened)
}

func TestRun_ImageWithoutPort(t *testing.T) {
	env := newTestEnv(t)
	path := firmwareHex(t)

	img, err := hexfile.ParseFile(path)
	require.NoError(t, err)

	require.NoError(t, env.execute("-f", path))
	assert.Empty(t, env.opened)
	assert.Equal(t,
		fmt.Sprintf("New firmware version: 8 [%s]\n", flasher.ImageChecksum(img)),
		env.out.String())
}

func TestRun_MissingPort(t *testing.T) {
	env := newTestEnv(t)

	err := env.execute()
	require.ErrorIs(t, err, errMissingPort)
	assert.Contains(t, env.out.String()+env.errOut.String(), "Usage:")
}

func TestRun_Report(t *testing.T) {
	env := newTestEnv(t)
	env.installVersions()

	require.NoError(t, env.execute("/dev/ttyUSB0"))
	assert.Equal(t, []string{"/dev/ttyUSB0"}, env.opened)

	out := env.out.String()
	assert.Contains(t, out, "Device ID: 30b0 (PIC16F15356)\n")
	assert.Contains(t, out, "Device revision: 2.2\n")
	assert.Contains(t, out, fmt.Sprintf("Bootloader version: 3 [%04x]\n", env.dev.Checksum(0x0000, 0x0800)))
	assert.Contains(t, out, fmt.Sprintf("Firmware version: 7 [%04x]\n", env.dev.Checksum(0x0800, 0x7800)))
	assert.Contains(t, out, "MAC address: ae:b0:53:11:22:33\n")
	assert.Contains(t, out, "IP address: DHCP\n")
	assert.NotContains(t, out, "MUI:")

	assert.Empty(t, env.dev.RequestsFor(picsim.OpWriteFlash))
	assert.Empty(t, env.dev.RequestsFor(picsim.OpWriteConfig))
	assert.Zero(t, env.dev.Resets(), "no reset without --reset")
}

func TestRun_ReportMissingVersions(t *testing.T) {
	env := newTestEnv(t)

	require.NoError(t, env.execute("/dev/ttyUSB0"))
	assert.Contains(t, env.out.String(), "Bootloader version not found\n")
	assert.Contains(t, env.out.String(), "Firmware version not found\n")
	assert.Empty(t, env.dev.RequestsFor(picsim.OpCalcChecksum))
}

func TestRun_Verbose(t *testing.T) {
	env := newTestEnv(t)
	env.installVersions()

	require.NoError(t, env.execute("-v", "/dev/ttyUSB0"))

	out := env.out.String()
	assert.Contains(t, out, "Bootloader protocol: 0.8\n")
	assert.Contains(t, out, "Max packet size: 73\n")
	assert.Contains(t, out, "Write block size: 32 words\n")
	assert.Contains(t, out, "Configuration words:\n")
	assert.Contains(t, out, "MUI:\n0100:")
	assert.Contains(t, out, "EUI:\n010a:")
	assert.Contains(t, out, "0005: 82 20 b0 30\n")
}

func TestRun_UnsupportedBootloader(t *testing.T) {
	env := newTestEnv(t)
	env.dev.SetVersion(0x07, 0x00)

	err := env.execute("/dev/ttyUSB0")
	require.ErrorIs(t, err, bootloader.ErrUnsupportedVersion)
}

func TestRun_FlashSetIPAndReset(t *testing.T) {
	env := newTestEnv(t)
	env.installVersions()
	path := firmwareHex(t)

	require.NoError(t, env.execute("-f", path, "-i", "192.168.0.10", "-m", "24", "-M", "-r", "/dev/ttyUSB0"))

	assert.Equal(t, firmwareBytes, env.dev.Flash(0x0800, len(firmwareBytes)))
	assert.Equal(t, []byte{0x11, 0x22, 0x33, 0x04}, env.dev.Flash(0x0900, 4))
	assert.Equal(t, []byte{0xFF, 0x3F}, env.dev.Flash(0x0810, 2), "blank blocks stay erased")
	assert.Len(t, env.dev.RequestsFor(picsim.OpWriteFlash), 2)
	assert.Equal(t, []byte{192, 0x3F, 168, 0x3F, 0, 0x3F, 10, 0x18}, env.dev.Config(0x0000, 8))
	assert.Equal(t, 1, env.dev.Resets())

	out := env.out.String()
	assert.Contains(t, out, "New firmware version: 8 [")
	assert.Contains(t, out, "flashing succeeded: 2 blocks written, 3 blank, 0 retried")
	assert.Contains(t, out, "IP settings changed to:\nMAC address: ae:b0:53:a8:00:0a\nIP address: 192.168.0.10/24\n")
	assert.Contains(t, out, "resetting device.\n")
}

func TestRun_FlashFailureSkipsReset(t *testing.T) {
	env := newTestEnv(t)
	env.dev.FailWrites(2, picsim.StatusAddressOutOfRange)
	path := firmwareHex(t)

	err := env.execute("-f", path, "-d", "-r", "/dev/ttyUSB0")
	require.ErrorIs(t, err, errFailed)

	assert.Contains(t, env.errOut.String(), "flashing failed")
	assert.Contains(t, env.errOut.String(), "flash content undefined")
	assert.Zero(t, env.dev.Resets())
	assert.Len(t, env.dev.RequestsFor(picsim.OpWriteConfig), 1, "IP settings are still written")
}

func TestRun_OpenFailure(t *testing.T) {
	env := newTestEnv(t)
	env.app.open = func(string, int, logger.Logger) (deviceConn, error) {
		return nil, serialport.ErrLocked
	}

	err := env.execute("/dev/ttyUSB0")
	require.ErrorIs(t, err, serialport.ErrLocked)
	assert.Contains(t, env.errOut.String(), "locked")
}

func TestRun_SlowSpeed(t *testing.T) {
	env := newTestEnv(t)

	var baud int
	open := env.app.open
	env.app.open = func(name string, b int, l logger.Logger) (deviceConn, error) {
		baud = b
		return open(name, b, l)
	}

	require.NoError(t, env.execute("-s", "/dev/ttyUSB0"))
	assert.Equal(t, serialport.BaudSlow, baud)

	require.NoError(t, env.execute("/dev/ttyUSB0"))
	assert.Equal(t, serialport.BaudFast, baud)
}

func TestPortsCmd(t *testing.T) {
	env := newTestEnv(t)
	env.app.listPorts = func() ([]serialport.Info, error) {
		return []serialport.Info{
			{Name: "/dev/ttyACM0", IsUSB: true, VID: "04d8", PID: "000a"},
			{Name: "/dev/ttyS0"},
		}, nil
	}

	require.NoError(t, env.execute("ports"))
	assert.Equal(t, "/dev/ttyACM0 [04d8:000a]\n/dev/ttyS0\n", env.out.String())
	assert.Empty(t, env.opened)

	env.out.Reset()
	env.app.listPorts = func() ([]serialport.Info, error) { return nil, nil }
	require.NoError(t, env.execute("ports"))
	assert.Equal(t, "no serial ports found\n", env.out.String())

	boom := errors.New("boom")
	env.app.listPorts = func() ([]serialport.Info, error) { return nil, boom }
	require.ErrorIs(t, env.execute("ports"), boom)
}

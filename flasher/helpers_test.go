package flasher

import (
	"testing"
	"time"

	"github.com/arloliu/go-picloader/bootloader"
	"github.com/arloliu/go-picloader/internal/picsim"
)

// testImage is an in-memory Image with an explicit range.
type testImage struct {
	rng  Range
	data map[uint32]byte
}

func newTestImage(start, end uint32) *testImage {
	return &testImage{rng: Range{Start: start, End: end}, data: make(map[uint32]byte)}
}

func (m *testImage) Range() Range { return m.rng }

func (m *testImage) Lookup(addr uint32) (byte, bool) {
	b, ok := m.data[addr]
	return b, ok
}

// fill defines n bytes from start with a pattern that is valid flash
// content: high bytes keep to 14-bit words.
func (m *testImage) fill(start uint32, n int) *testImage {
	for i := 0; i < n; i++ {
		addr := start + uint32(i) //nolint:gosec // small test values
		v := byte(addr*7 + 3)
		if addr&1 == 1 {
			v &= 0x3F
		}
		m.data[addr] = v
	}

	return m
}

// newTestDevice returns a client connected to an emulated device.
func newTestDevice(t *testing.T) (*bootloader.Client, *picsim.Device) {
	t.Helper()

	dev := picsim.New()
	conn := dev.Connect()
	t.Cleanup(func() { _ = conn.Close() })

	cfg, err := bootloader.NewConfig(
		bootloader.WithResponseTimeout(50*time.Millisecond),
		bootloader.WithByteTimeout(50*time.Millisecond),
		bootloader.WithTailTimeout(time.Millisecond),
	)
	if err != nil {
		t.Fatalf("newTestDevice: %v", err)
	}

	return bootloader.NewClient(conn, cfg), dev
}

// expectedChecksum sums the filled image over n bytes from start.
func expectedChecksum(img Image, start uint32, n int) Checksum {
	var sum Checksum
	for i := 0; i < n; i++ {
		addr := start + uint32(i) //nolint:gosec // small test values
		b, ok := img.Lookup(addr)
		if !ok {
			b = FillByte(addr)
		}
		sum.Add(addr, b)
	}

	return sum
}

package flasher

import "fmt"

// Checksum is the device's flash checksum: a 16-bit wrapping sum of all
// words, each word taken low byte first.
type Checksum uint16

// Add folds the byte at addr into the sum. Bytes at even addresses add
// their value, bytes at odd addresses add their value shifted by 8 bits.
func (c *Checksum) Add(addr uint32, b byte) {
	*c += Checksum(b) << ((addr & 1) * 8)
}

// AddBlock folds block, starting at an even address, into the sum.
func (c *Checksum) AddBlock(block []byte) {
	for i, b := range block {
		c.Add(uint32(i), b) //nolint:gosec // i is bounded by the block size
	}
}

func (c Checksum) String() string {
	return fmt.Sprintf("%04x", uint16(c))
}

// ImageChecksum returns the checksum the device reports for the whole
// application region once img is programmed: undefined bytes count with
// their fill values.
func ImageChecksum(img Image) Checksum {
	var sum Checksum
	buf := make([]byte, BlockBytes)

	for start := uint32(BootBytesEnd); start < FlashBytesEnd; start += BlockBytes {
		readBlock(img, start, buf)
		sum.AddBlock(buf)
	}

	return sum
}

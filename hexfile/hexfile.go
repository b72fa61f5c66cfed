// Package hexfile loads Intel HEX firmware images for the flasher.
package hexfile

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/marcinbor85/gohex"

	"github.com/arloliu/go-picloader/flasher"
)

var (
	// ErrMalformedImage is returned when the input is not valid Intel HEX.
	ErrMalformedImage = errors.New("hexfile: malformed image")
	// ErrEmptyImage is returned when the input defines no data bytes.
	ErrEmptyImage = errors.New("hexfile: image holds no data")
)

// Segment is a run of contiguous image bytes.
type Segment struct {
	Address uint32
	Data    []byte
}

// End returns the address of the last byte of s.
func (s Segment) End() uint32 {
	return s.Address + uint32(len(s.Data)) - 1 //nolint:gosec // segments are non-empty
}

// Image is a parsed HEX file. It implements flasher.Image.
type Image struct {
	segments []Segment
	size     int
}

var _ flasher.Image = (*Image)(nil)

// Parse reads an Intel HEX image from r.
func Parse(r io.Reader) (*Image, error) {
	mem := gohex.NewMemory()
	if err := mem.ParseIntelHex(r); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedImage, err)
	}

	img := &Image{}
	for _, seg := range mem.GetDataSegments() {
		if len(seg.Data) == 0 {
			continue
		}
		img.segments = append(img.segments, Segment{Address: seg.Address, Data: seg.Data})
		img.size += len(seg.Data)
	}
	if len(img.segments) == 0 {
		return nil, ErrEmptyImage
	}

	sort.Slice(img.segments, func(i, j int) bool {
		return img.segments[i].Address < img.segments[j].Address
	})

	return img, nil
}

// ParseFile reads the Intel HEX image stored at path.
func ParseFile(path string) (*Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("hexfile: %w", err)
	}
	defer f.Close()

	img, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return img, nil
}

// Range returns the first and last defined byte address.
func (img *Image) Range() flasher.Range {
	return flasher.Range{
		Start: img.segments[0].Address,
		End:   img.segments[len(img.segments)-1].End(),
	}
}

// Lookup returns the byte at addr and whether the image defines it.
func (img *Image) Lookup(addr uint32) (byte, bool) {
	i := sort.Search(len(img.segments), func(i int) bool {
		return img.segments[i].End() >= addr
	})
	if i == len(img.segments) || addr < img.segments[i].Address {
		return 0, false
	}

	seg := img.segments[i]

	return seg.Data[addr-seg.Address], true
}

// Segments returns the contiguous runs of the image in address order.
func (img *Image) Segments() []Segment {
	return img.segments
}

// Size returns the number of defined bytes.
func (img *Image) Size() int {
	return img.size
}

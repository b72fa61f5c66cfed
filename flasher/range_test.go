package flasher

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateRange(t *testing.T) {
	tests := []struct {
		name  string
		rng   Range
		valid bool
	}{
		{"whole application region", Range{BootBytesEnd, FlashBytesEnd - 1}, true},
		{"single block", Range{0x0800, 0x083F}, true},
		{"16 byte aligned start", Range{0x0810, 0x0900}, true},
		{"single byte", Range{0x1000, 0x1000}, true},
		{"starts in boot block", Range{0x07F0, 0x0900}, false},
		{"starts at zero", Range{0x0000, 0x0900}, false},
		{"ends at flash end", Range{0x0800, FlashBytesEnd}, false},
		{"ends beyond flash", Range{0x0800, 0x9000}, false},
		{"ends before start", Range{0x1000, 0x0FFF}, false},
		{"unaligned start", Range{0x0808, 0x0900}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateRange(tt.rng)
			if tt.valid {
				require.NoError(t, err)
				return
			}

			require.ErrorIs(t, err, ErrInvalidRange)
			var re *RangeError
			require.ErrorAs(t, err, &re)
			assert.Equal(t, tt.rng, re.Range)
		})
	}
}

func TestRangeError_Message(t *testing.T) {
	err := ValidateRange(Range{0x0808, 0x0900})
	assert.Equal(t, "flasher: invalid image range 0x0808-0x0900: start is not 16 byte aligned", err.Error())
}

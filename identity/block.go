// Package identity reads and writes the adapter's network identity, the
// 8 byte block stored in the device's user ID words.
//
// Block layout:
//
//	0, 2, 4, 6  IP address octets
//	7           flags: bits 0-4 mask length (0x1f means DHCP),
//	            bit 5 set takes the MAC suffix from the factory MUI
//	1, 3, 5     unused high bytes of the user ID words
//
// The MAC address always starts with ae:b0:53. Its last three bytes come
// either from the MUI or from IP octets 2-4.
package identity

import (
	"fmt"
	"net"
)

// BlockSize is the size of the identity block in bytes.
const BlockSize = 8

// Flag bits of the identity block.
const (
	FlagsOffset = 7
	MaskBits    = 0x1f
	MUIBit      = 0x20

	// MaskDHCP is the mask length stored for DHCP.
	MaskDHCP = 0x1f
	// MaxMaskLen is the longest mask length accepted for a fixed address.
	MaxMaskLen = 0x1e
)

// MACPrefix is the fixed part of the adapter's MAC address.
var MACPrefix = [3]byte{0xae, 0xb0, 0x53}

// Block is the raw identity block.
type Block [BlockSize]byte

// DefaultBlock is an erased identity block: DHCP, MAC from MUI.
var DefaultBlock = Block{0xff, 0x3f, 0xff, 0x3f, 0xff, 0x3f, 0xff, 0x3f}

// IP returns the stored address octets.
func (b Block) IP() [4]byte {
	return [4]byte{b[0], b[2], b[4], b[6]}
}

// SetIP stores the address octets.
func (b *Block) SetIP(ip [4]byte) {
	for i, o := range ip {
		b[i*2] = o
	}
}

// MaskLen returns the stored mask length.
func (b Block) MaskLen() int {
	return int(b[FlagsOffset] & MaskBits)
}

// SetMaskLen stores the mask length, keeping the other flag bits.
func (b *Block) SetMaskLen(n int) {
	b[FlagsOffset] = b[FlagsOffset]&^MaskBits | byte(n)&MaskBits
}

// UseMUI reports whether the MAC suffix comes from the factory MUI.
func (b Block) UseMUI() bool {
	return b[FlagsOffset]&MUIBit != 0
}

// SetUseMUI selects the MAC suffix source.
func (b *Block) SetUseMUI(use bool) {
	if use {
		b[FlagsOffset] |= MUIBit
	} else {
		b[FlagsOffset] &^= MUIBit
	}
}

// DHCP reports whether the block selects DHCP: the mask sentinel or an
// all-zero address.
func (b Block) DHCP() bool {
	ip := b.IP()
	return b.MaskLen() == MaskDHCP || ip == [4]byte{}
}

// Identity is a decoded identity block.
type Identity struct {
	Block Block
	// MAC is the effective MAC address.
	MAC net.HardwareAddr
	// MACFromMUI reports whether the MAC suffix comes from the MUI.
	MACFromMUI bool
	// DHCP is set when the adapter obtains its address dynamically; IP and
	// MaskLen are then meaningless.
	DHCP    bool
	IP      [4]byte
	MaskLen int
}

// Decode decodes b. mui is the MUI window read at the MAC address: bytes
// 0, 2 and 4 supply the MAC suffix when the block selects the MUI.
func Decode(b Block, mui []byte) *Identity {
	id := &Identity{
		Block:      b,
		MACFromMUI: b.UseMUI(),
		DHCP:       b.DHCP(),
		IP:         b.IP(),
		MaskLen:    b.MaskLen(),
	}

	mac := net.HardwareAddr{MACPrefix[0], MACPrefix[1], MACPrefix[2], 0xef, 0xfe, 0xef}
	if id.MACFromMUI {
		for i := 0; i < 3 && i*2 < len(mui); i++ {
			mac[3+i] = mui[i*2]
		}
	} else {
		mac[3], mac[4], mac[5] = b[2], b[4], b[6]
	}
	id.MAC = mac

	return id
}

// Address returns "DHCP" or the address in CIDR notation.
func (id *Identity) Address() string {
	if id.DHCP {
		return "DHCP"
	}

	return fmt.Sprintf("%s/%d", net.IPv4(id.IP[0], id.IP[1], id.IP[2], id.IP[3]), id.MaskLen)
}

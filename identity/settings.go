package identity

import (
	"errors"
	"fmt"
	"net/netip"
	"strconv"
)

var (
	// ErrConflictingSettings reports DHCP requested together with a fixed
	// address or mask.
	ErrConflictingSettings = errors.New("identity: either DHCP or a fixed IP address is allowed")
	// ErrIncompleteSettings reports an address without a mask, a mask
	// without an address, or a MAC from an address that is not set.
	ErrIncompleteSettings = errors.New("identity: incomplete IP settings")
	// ErrInvalidSettings reports an unusable address or mask.
	ErrInvalidSettings = errors.New("identity: invalid IP settings")
)

// Settings is a requested identity change.
type Settings struct {
	// DHCP selects a dynamic address.
	DHCP bool
	// IP is the fixed address; the zero Addr means none.
	IP netip.Addr
	// MaskLen is the fixed mask length, valid when HasMask is set.
	MaskLen int
	HasMask bool
	// MACFromIP takes the MAC suffix from the last three IP octets instead
	// of the factory MUI.
	MACFromIP bool
}

// Requested reports whether s asks for any change.
func (s Settings) Requested() bool {
	return s.DHCP || s.IP.IsValid() || s.HasMask
}

// Validate checks that s describes one consistent identity.
func (s Settings) Validate() error {
	hasIP := s.IP.IsValid()

	if s.DHCP && (hasIP || s.HasMask) {
		return ErrConflictingSettings
	}
	if hasIP != s.HasMask {
		return fmt.Errorf("%w: IP address and mask must be given together", ErrIncompleteSettings)
	}
	if s.MACFromIP && !hasIP {
		return fmt.Errorf("%w: MAC from IP needs a fixed IP address", ErrIncompleteSettings)
	}

	if hasIP {
		if !s.IP.Is4() {
			return fmt.Errorf("%w: %s is not an IPv4 address", ErrInvalidSettings, s.IP)
		}
		if s.IP.IsUnspecified() {
			return fmt.Errorf("%w: address 0.0.0.0", ErrInvalidSettings)
		}
	}
	if s.HasMask && (s.MaskLen < 0 || s.MaskLen > MaxMaskLen) {
		return fmt.Errorf("%w: mask length %d not in 0..%d", ErrInvalidSettings, s.MaskLen, MaxMaskLen)
	}

	return nil
}

// Block builds the identity block for s, starting from DefaultBlock.
func (s Settings) Block() Block {
	b := DefaultBlock

	if s.MACFromIP {
		b.SetUseMUI(false)
	}
	if s.HasMask {
		b.SetMaskLen(s.MaskLen)
	} else {
		b.SetMaskLen(MaskDHCP)
	}
	if s.IP.IsValid() {
		b.SetIP(s.IP.As4())
	}

	return b
}

// ParseSettings builds validated settings from command line values. Empty
// ip and mask strings mean not given.
func ParseSettings(dhcp bool, ip, mask string, macFromIP bool) (Settings, error) {
	s := Settings{DHCP: dhcp, MACFromIP: macFromIP}

	if ip != "" {
		addr, err := netip.ParseAddr(ip)
		if err != nil {
			return Settings{}, fmt.Errorf("%w: %w", ErrInvalidSettings, err)
		}
		s.IP = addr
	}

	if mask != "" {
		n, err := strconv.Atoi(mask)
		if err != nil {
			return Settings{}, fmt.Errorf("%w: mask %q: %w", ErrInvalidSettings, mask, err)
		}
		s.MaskLen, s.HasMask = n, true
	}

	if err := s.Validate(); err != nil {
		return Settings{}, err
	}

	return s, nil
}

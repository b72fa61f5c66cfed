package identity

import (
	"context"
	"fmt"

	"github.com/arloliu/go-picloader/bootloader"
	"github.com/arloliu/go-picloader/logger"
)

// Device is the part of the bootloader command set the manager needs.
// *bootloader.Client implements it.
type Device interface {
	ReadConfig(ctx context.Context, address uint32, length int) ([]byte, error)
	WriteConfig(ctx context.Context, address uint32, data []byte) error
}

var _ Device = (*bootloader.Client)(nil)

// muiWindowSize is the number of MUI bytes read for the MAC suffix.
const muiWindowSize = 8

// Manager reads and writes the identity block of a device.
type Manager struct {
	dev    Device
	logger logger.Logger
}

// NewManager creates a manager for dev. A nil logger uses the default.
func NewManager(dev Device, l logger.Logger) *Manager {
	if l == nil {
		l = logger.GetLogger()
	}

	return &Manager{dev: dev, logger: l}
}

// Read reads and decodes the identity block. The MUI is read as well when
// the block takes the MAC suffix from it.
func (m *Manager) Read(ctx context.Context) (*Identity, error) {
	data, err := m.dev.ReadConfig(ctx, bootloader.AddrIdentity, BlockSize)
	if err != nil {
		return nil, fmt.Errorf("identity: read block: %w", err)
	}
	if len(data) < BlockSize {
		return nil, fmt.Errorf("identity: read block: %w", bootloader.ErrShortResponse)
	}

	var b Block
	copy(b[:], data)

	var mui []byte
	if b.UseMUI() {
		mui, err = m.dev.ReadConfig(ctx, bootloader.AddrMUIMAC, muiWindowSize)
		if err != nil {
			return nil, fmt.Errorf("identity: read MUI: %w", err)
		}
	}

	return Decode(b, mui), nil
}

// Write validates s and stores the resulting block with one write.
func (m *Manager) Write(ctx context.Context, s Settings) error {
	if err := s.Validate(); err != nil {
		return err
	}

	b := s.Block()
	m.logger.Debug("identity: writing block", "block", fmt.Sprintf("% x", b[:]))

	if err := m.dev.WriteConfig(ctx, bootloader.AddrIdentity, b[:]); err != nil {
		return fmt.Errorf("identity: write block: %w", err)
	}

	return nil
}

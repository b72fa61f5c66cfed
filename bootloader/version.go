package bootloader

import (
	"encoding/binary"
	"fmt"
)

// Protocol version spoken by the adapter's bootloader.
const (
	ExpectedMinorVersion byte = 0x08
	ExpectedMajorVersion byte = 0x00
)

// VersionResponseSize is the payload size of a read version response.
const VersionResponseSize = 16

// DevicePIC16F15356 is the device id reported by the adapter's controller.
const DevicePIC16F15356 uint16 = 0x30B0

var deviceNames = map[uint16]string{
	DevicePIC16F15356: "PIC16F15356",
}

// VersionInfo is the decoded answer to a read version request.
//
// Payload layout:
//
//	0     minor version
//	1     major version
//	2..3  max packet size (LE)
//	6..7  device id (LE)
//	10    erase block size in words
//	11    write block size in words
//	12..15 user id bytes
type VersionInfo struct {
	Minor          byte
	Major          byte
	MaxPacketSize  uint16
	DeviceID       uint16
	EraseBlockSize byte
	WriteBlockSize byte
	UserIDs        [4]byte
}

// parseVersion decodes a read version payload.
func parseVersion(data []byte) (*VersionInfo, error) {
	if len(data) < VersionResponseSize {
		return nil, fmt.Errorf("%w: %d of %d bytes", ErrShortResponse, len(data), VersionResponseSize)
	}

	v := &VersionInfo{
		Minor:          data[0],
		Major:          data[1],
		MaxPacketSize:  binary.LittleEndian.Uint16(data[2:4]),
		DeviceID:       binary.LittleEndian.Uint16(data[6:8]),
		EraseBlockSize: data[10],
		WriteBlockSize: data[11],
	}
	copy(v.UserIDs[:], data[12:16])

	if v.Minor != ExpectedMinorVersion || v.Major != ExpectedMajorVersion {
		return v, fmt.Errorf("%w: %d.%d, want %d.%d",
			ErrUnsupportedVersion, v.Major, v.Minor, ExpectedMajorVersion, ExpectedMinorVersion)
	}

	return v, nil
}

// DeviceName returns the name of a known device id, or "" for unknown ids.
func (v *VersionInfo) DeviceName() string {
	return deviceNames[v.DeviceID]
}

// Revision is the silicon revision read from the device information area.
type Revision struct {
	Major byte
	Minor byte
}

// parseRevision decodes the revision id word at config word 0x0005.
// The major revision spans bits 6-11, the minor revision bits 0-5.
func parseRevision(data []byte) (Revision, error) {
	if len(data) < 2 {
		return Revision{}, fmt.Errorf("%w: %d of 2 bytes", ErrShortResponse, len(data))
	}

	return Revision{
		Major: (data[1]&0x0f)<<2 | (data[0]&0xc0)>>6,
		Minor: data[0] & 0x3f,
	}, nil
}

func (r Revision) String() string {
	return fmt.Sprintf("%d.%d", r.Major, r.Minor)
}

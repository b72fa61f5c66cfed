package bootloader

import "fmt"

// Command is a bootloader command opcode.
type Command byte

// Command codes of the Microchip unified bootloader.
const (
	CmdReadVersion  Command = 0x00
	CmdReadFlash    Command = 0x01
	CmdWriteFlash   Command = 0x02
	CmdEraseFlash   Command = 0x03
	CmdReadEEData   Command = 0x04
	CmdWriteEEData  Command = 0x05
	CmdReadConfig   Command = 0x06
	CmdWriteConfig  Command = 0x07
	CmdCalcChecksum Command = 0x08
	CmdResetDevice  Command = 0x09
	CmdCalcCRC      Command = 0x0A
)

var commandNames = map[Command]string{
	CmdReadVersion:  "read version",
	CmdReadFlash:    "read flash",
	CmdWriteFlash:   "write flash",
	CmdEraseFlash:   "erase flash",
	CmdReadEEData:   "read EE data",
	CmdWriteEEData:  "write EE data",
	CmdReadConfig:   "read config",
	CmdWriteConfig:  "write config",
	CmdCalcChecksum: "calc checksum",
	CmdResetDevice:  "reset device",
	CmdCalcCRC:      "calc CRC",
}

func (c Command) String() string {
	if name, ok := commandNames[c]; ok {
		return name
	}

	return fmt.Sprintf("command 0x%02X", byte(c))
}

// Status is the one byte result code returned by commands that modify the device.
type Status byte

// Status codes returned by the device.
const (
	StatusSuccess           Status = 0x01
	StatusAddressOutOfRange Status = 0xFE
	StatusInvalidCommand    Status = 0xFF
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusAddressOutOfRange:
		return "address out of range"
	case StatusInvalidCommand:
		return "invalid command"
	default:
		return fmt.Sprintf("unknown status 0x%02X", byte(s))
	}
}

// OK reports whether s is StatusSuccess.
func (s Status) OK() bool {
	return s == StatusSuccess
}

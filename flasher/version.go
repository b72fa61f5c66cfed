package flasher

// Version markers. The bootloader and the firmware each start with a
// "retlw marker; retlw version" instruction pair at words 2 and 3.
const (
	BootloaderMarker byte = 0xAB
	FirmwareMarker   byte = 0xAE

	retlwHigh byte = 0x34
)

// Word address of the firmware's version marker, the first application word.
const FirmwareVersionWord = BootBytesEnd / 2

// FirmwareVersion returns the version stored after marker in data, the
// first 16 bytes of a bootloader or firmware region.
func FirmwareVersion(data []byte, marker byte) (byte, bool) {
	if len(data) < 8 {
		return 0, false
	}
	if data[4] != marker || data[5] != retlwHigh || data[7] != retlwHigh {
		return 0, false
	}

	return data[6], true
}

// ImageFirmwareVersion returns the firmware version carried by img.
func ImageFirmwareVersion(img Image) (byte, bool) {
	buf := make([]byte, 16)
	readBlock(img, BootBytesEnd, buf)

	return FirmwareVersion(buf, FirmwareMarker)
}

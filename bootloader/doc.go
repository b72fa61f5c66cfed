// Package bootloader implements the host side of the Microchip unified
// bootloader protocol as spoken by the PIC16F15356 on the eBUS adapter.
//
// The protocol runs over a half-duplex serial line. The device detects the
// line rate from the first byte it sees, so every request is preceded by a
// sync byte (0x55) and every response starts with the same byte echoed back.
//
// # Frame Layout
//
// A frame is a 9 byte header followed by at most 64 payload bytes:
//
//   - command (1 byte)
//   - dataLength (2 bytes, little-endian)
//   - erase/write guard bytes 0x55 0xAA (2 bytes), required by every command
//     that modifies flash, configuration words or EEPROM
//   - word address (3 bytes, little-endian)
//   - reserved (1 byte)
//
// The meaning of dataLength depends on the command: the number of bytes
// requested by reads, the payload size of writes, the number of erase blocks
// of an erase.
//
// # Timeouts
//
// Every write and read call is bounded by a deadline on the connection:
//
//   - byte timeout (200ms): each chunk of a request or response
//   - response timeout (100ms): until the response sync byte, extended per
//     command for writes, erases and checksums
//   - tail timeout (200ms): after a response, up to 4 stray bytes the device
//     sometimes emits are drained and discarded
//
// # Errors
//
// Failures fall in three classes: [TransportError] (the link failed),
// [ProtocolError] (the answer is unusable) and [DeviceError] (the device
// refused the command with a status byte). Only the latter means the link is
// known to be healthy.
package bootloader

// Package protocol implements the Growatt datalogger wire format: the 8-byte
// frame header, the encryption and CRC envelope, and the typed record variants
// exchanged between server, datalogger and inverter.
package protocol

import (
	"encoding/binary"
)

// Protocol versions carried in header word 1.
const (
	ProtocolV2 uint16 = 0x02 // TCP protocol (unencrypted, no CRC)
	ProtocolV5 uint16 = 0x05
	ProtocolV6 uint16 = 0x06 // Encrypted, with 20 bytes of padding after the datalogger id
)

// Device ID constants
const (
	DeviceDatalogger uint8 = 0x01 // Standard datalogger device ID
)

const (
	// HeaderLength is the size of the fixed frame header.
	HeaderLength = 8

	// CRCLength is the size of the CRC16 trailer on encrypted frames.
	CRCLength = 2

	// DefaultSendSequence is written by constructors. Its meaning is undocumented.
	DefaultSendSequence uint16 = 1

	// MaxBodyLength is the largest body the 16-bit length field can describe.
	MaxBodyLength = 0xFFFF - CRCLength
)

// Header is the first 8 bytes of every frame. It is never encrypted.
type Header struct {
	SendSequence uint16 `json:"send_sequence"`
	Protocol     uint16 `json:"protocol"`
	BodyLength   uint16 `json:"body_length"` // body + CRC; advisory only
	DeviceID     uint8  `json:"device_id"`
	RecordType   uint8  `json:"record_type"`
}

// ParseHeader reads the big-endian header fields from the start of raw.
func ParseHeader(raw []byte) (Header, error) {
	if len(raw) < HeaderLength {
		return Header{}, truncated("header", 0, HeaderLength, len(raw))
	}

	return Header{
		SendSequence: binary.BigEndian.Uint16(raw[0:2]),
		Protocol:     binary.BigEndian.Uint16(raw[2:4]),
		BodyLength:   binary.BigEndian.Uint16(raw[4:6]),
		DeviceID:     raw[6],
		RecordType:   raw[7],
	}, nil
}

// BuildHeader creates a header with the default send sequence.
func BuildHeader(protocol uint16, deviceID, recordType uint8, bodyLength uint16) []byte {
	h := Header{
		SendSequence: DefaultSendSequence,
		Protocol:     protocol,
		BodyLength:   bodyLength,
		DeviceID:     deviceID,
		RecordType:   recordType,
	}
	return h.AppendTo(make([]byte, 0, HeaderLength))
}

// AppendTo appends the encoded header to dst.
func (h Header) AppendTo(dst []byte) []byte {
	dst = binary.BigEndian.AppendUint16(dst, h.SendSequence)
	dst = binary.BigEndian.AppendUint16(dst, h.Protocol)
	dst = binary.BigEndian.AppendUint16(dst, h.BodyLength)
	return append(dst, h.DeviceID, h.RecordType)
}

// Bytes returns the encoded header.
func (h Header) Bytes() []byte {
	return h.AppendTo(make([]byte, 0, HeaderLength))
}

// PaddingLength returns the number of zero bytes between the datalogger id
// and the variant fields.
func PaddingLength(protocol uint16) int {
	if protocol == ProtocolV6 {
		return 20
	}
	return 0
}

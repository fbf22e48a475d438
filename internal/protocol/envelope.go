package protocol

import (
	"encoding/binary"

	"github.com/sigurn/crc16"
)

// crcTable is the CRC16 Modbus table (reflected 0x8005, i.e. 0xA001 LSB-first, init 0xFFFF).
var crcTable = crc16.MakeTable(crc16.CRC16_MODBUS)

// Checksum computes the CRC16 Modbus checksum of data.
func Checksum(data []byte) uint16 {
	return crc16.Checksum(data, crcTable)
}

// Cipher is the reversible transform applied to frames whose protocol is not 2.
// Implementations must not modify their input.
type Cipher interface {
	Encrypt(frame []byte) []byte
	Decrypt(frame []byte) []byte
}

// XORCipher XORs every byte after the header with a repeating key.
type XORCipher struct {
	key []byte
}

// NewXORCipher creates a cipher using the given key. The key is copied.
func NewXORCipher(key []byte) *XORCipher {
	return &XORCipher{key: append([]byte(nil), key...)}
}

// GrowattCipher is the mask used by Growatt dataloggers.
var GrowattCipher = NewXORCipher([]byte("Growatt"))

// Encrypt masks frame. The header is copied unchanged.
func (c *XORCipher) Encrypt(frame []byte) []byte {
	return c.apply(frame)
}

// Decrypt unmasks frame. XOR is its own inverse.
func (c *XORCipher) Decrypt(frame []byte) []byte {
	return c.apply(frame)
}

func (c *XORCipher) apply(data []byte) []byte {
	result := make([]byte, len(data))
	copy(result, data)
	if len(c.key) == 0 {
		return result
	}

	for i := HeaderLength; i < len(data); i++ {
		result[i] = data[i] ^ c.key[(i-HeaderLength)%len(c.key)]
	}
	return result
}

// Envelope removes and applies the encryption and CRC trailer.
type Envelope struct {
	cipher    Cipher
	verifyCRC bool
}

// NewEnvelope creates an envelope. A nil cipher selects GrowattCipher.
func NewEnvelope(cipher Cipher, verifyCRC bool) *Envelope {
	if cipher == nil {
		cipher = GrowattCipher
	}
	return &Envelope{cipher: cipher, verifyCRC: verifyCRC}
}

// Encrypted reports whether frames of the given protocol carry an envelope.
func Encrypted(protocol uint16) bool {
	return protocol != ProtocolV2
}

// Open returns the decrypted frame (header included) without its CRC trailer.
// Protocol 2 frames are returned unchanged.
func (e *Envelope) Open(raw []byte, protocol uint16) ([]byte, error) {
	if !Encrypted(protocol) {
		return raw, nil
	}

	if len(raw) < HeaderLength+CRCLength {
		return nil, truncated("crc", len(raw), HeaderLength+CRCLength, len(raw))
	}

	frame := raw[:len(raw)-CRCLength]
	if e.verifyCRC {
		received := binary.BigEndian.Uint16(raw[len(frame):])
		calculated := Checksum(frame)
		if received != calculated {
			return nil, &FormatError{
				Kind:     ErrCRCMismatch,
				Field:    "crc",
				Offset:   len(frame),
				Expected: int(calculated),
				Actual:   int(received),
			}
		}
	}

	return e.cipher.Decrypt(frame), nil
}

// Seal encrypts the frame and appends the big-endian CRC16 of the encrypted
// bytes. Protocol 2 frames are returned unchanged.
func (e *Envelope) Seal(frame []byte, protocol uint16) []byte {
	if !Encrypted(protocol) {
		return frame
	}

	encrypted := e.cipher.Encrypt(frame)
	return binary.BigEndian.AppendUint16(encrypted, Checksum(encrypted))
}

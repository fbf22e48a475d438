package protocol

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChecksum(t *testing.T) {
	// Modbus check value.
	assert.Equal(t, uint16(0x4B37), Checksum([]byte("123456789")))
	assert.Equal(t, uint16(0xFFFF), Checksum(nil))
}

func TestXORCipher(t *testing.T) {
	data := []byte{0x00, 0x01, 0x00, 0x06, 0x00, 0x0A, 0x01, 0x18, 0x54, 0x45, 0x53, 0x54}
	encrypted := GrowattCipher.Encrypt(data)

	// Header is unchanged
	assert.Equal(t, data[:HeaderLength], encrypted[:HeaderLength])
	assert.Equal(t, len(data), len(encrypted))
	assert.Equal(t, byte(0x54^'G'), encrypted[8])
	assert.Equal(t, byte(0x54^'w'), encrypted[11])

	// Input is not modified
	assert.Equal(t, byte(0x54), data[8])

	assert.Equal(t, data, GrowattCipher.Decrypt(encrypted))
}

func TestXORCipherKeyWraps(t *testing.T) {
	data := make([]byte, HeaderLength+9)
	encrypted := NewXORCipher([]byte("ab")).Encrypt(data)
	assert.Equal(t, []byte("ababababa"), encrypted[HeaderLength:])
}

func TestXORCipherShortFrame(t *testing.T) {
	data := []byte{0x00, 0x01, 0x00}
	assert.Equal(t, data, GrowattCipher.Encrypt(data))
}

func TestEnvelopeSealOpen(t *testing.T) {
	frame := append(BuildHeader(ProtocolV6, 1, RecordTypeAnnounce, 4), 0x01, 0x02)

	tests := []struct {
		name     string
		protocol uint16
		sealLen  int
	}{
		{name: "protocol 02 passes through", protocol: ProtocolV2, sealLen: len(frame)},
		{name: "protocol 05 encrypted", protocol: ProtocolV5, sealLen: len(frame) + CRCLength},
		{name: "protocol 06 encrypted", protocol: ProtocolV6, sealLen: len(frame) + CRCLength},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := NewEnvelope(nil, true)
			sealed := env.Seal(frame, tt.protocol)
			require.Len(t, sealed, tt.sealLen)

			opened, err := env.Open(sealed, tt.protocol)
			require.NoError(t, err)
			assert.Equal(t, frame, opened)
		})
	}
}

func TestEnvelopeCRCTrailer(t *testing.T) {
	frame := append(BuildHeader(ProtocolV6, 1, RecordTypeAnnounce, 4), 0x01, 0x02)
	sealed := NewEnvelope(nil, false).Seal(frame, ProtocolV6)

	body := sealed[:len(sealed)-CRCLength]
	assert.Equal(t, Checksum(body), binary.BigEndian.Uint16(sealed[len(body):]))
}

func TestEnvelopeCRCMismatch(t *testing.T) {
	frame := append(BuildHeader(ProtocolV6, 1, RecordTypeAnnounce, 4), 0x01, 0x02)
	sealed := NewEnvelope(nil, false).Seal(frame, ProtocolV6)
	sealed[len(sealed)-1] ^= 0xFF

	_, err := NewEnvelope(nil, true).Open(sealed, ProtocolV6)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCRCMismatch)

	// Without verification the trailer is only stripped.
	opened, err := NewEnvelope(nil, false).Open(sealed, ProtocolV6)
	require.NoError(t, err)
	assert.Equal(t, frame, opened)
}

func TestEnvelopeOpenTooShort(t *testing.T) {
	_, err := NewEnvelope(nil, false).Open(BuildHeader(ProtocolV6, 1, RecordTypeAnnounce, 2), ProtocolV6)
	assert.ErrorIs(t, err, ErrTruncatedInput)
}

package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseHeader(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		expected Header
	}{
		{
			name: "protocol 02 announce",
			data: []byte{0x00, 0x01, 0x00, 0x02, 0x00, 0x02, 0x01, 0x03},
			expected: Header{
				SendSequence: 1,
				Protocol:     ProtocolV2,
				BodyLength:   2,
				DeviceID:     1,
				RecordType:   RecordTypeAnnounce,
			},
		},
		{
			name: "protocol 06 with trailing body",
			data: []byte{0x12, 0x34, 0x00, 0x06, 0x01, 0x00, 0x05, 0x10, 0xFF, 0xFF},
			expected: Header{
				SendSequence: 0x1234,
				Protocol:     ProtocolV6,
				BodyLength:   0x0100,
				DeviceID:     5,
				RecordType:   RecordTypeInverterPutMulti,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, err := ParseHeader(tt.data)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, h)
		})
	}
}

func TestParseHeaderTooShort(t *testing.T) {
	_, err := ParseHeader([]byte{0x00, 0x01, 0x00, 0x06, 0x00})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTruncatedInput)

	var formatErr *FormatError
	require.ErrorAs(t, err, &formatErr)
	assert.Equal(t, "header", formatErr.Field)
	assert.Equal(t, HeaderLength, formatErr.Expected)
	assert.Equal(t, 5, formatErr.Actual)
}

func TestBuildHeader(t *testing.T) {
	tests := []struct {
		name       string
		protocol   uint16
		deviceID   uint8
		recordType uint8
		bodyLen    uint16
		expected   []byte
	}{
		{
			name:       "protocol 06",
			protocol:   ProtocolV6,
			deviceID:   DeviceDatalogger,
			recordType: RecordTypeDataloggerPut,
			bodyLen:    10,
			expected:   []byte{0x00, 0x01, 0x00, 0x06, 0x00, 0x0A, 0x01, 0x18},
		},
		{
			name:       "protocol 05",
			protocol:   ProtocolV5,
			deviceID:   DeviceDatalogger,
			recordType: RecordTypeDataloggerGet,
			bodyLen:    5,
			expected:   []byte{0x00, 0x01, 0x00, 0x05, 0x00, 0x05, 0x01, 0x19},
		},
		{
			name:       "protocol 02",
			protocol:   ProtocolV2,
			deviceID:   3,
			recordType: RecordTypeInverterGet,
			bodyLen:    8,
			expected:   []byte{0x00, 0x01, 0x00, 0x02, 0x00, 0x08, 0x03, 0x05},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := BuildHeader(tt.protocol, tt.deviceID, tt.recordType, tt.bodyLen)
			assert.Equal(t, tt.expected, result)

			parsed, err := ParseHeader(result)
			require.NoError(t, err)
			assert.Equal(t, result, parsed.Bytes())
		})
	}
}

func TestPaddingLength(t *testing.T) {
	assert.Equal(t, 0, PaddingLength(ProtocolV2))
	assert.Equal(t, 0, PaddingLength(ProtocolV5))
	assert.Equal(t, 20, PaddingLength(ProtocolV6))
	assert.Equal(t, 0, PaddingLength(7))
}

func TestID(t *testing.T) {
	id, err := ParseID("ABC123")
	require.NoError(t, err)
	assert.Equal(t, ID{'A', 'B', 'C', '1', '2', '3'}, id)
	assert.Equal(t, "ABC123", id.String())

	_, err = ParseID("ABCDEFGHIJK")
	assert.Error(t, err)

	text, err := MustParseID("XGD6CMM2VY").MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "XGD6CMM2VY", string(text))

	var parsed ID
	require.NoError(t, parsed.UnmarshalText(text))
	assert.Equal(t, MustParseID("XGD6CMM2VY"), parsed)
}

func TestIDText(t *testing.T) {
	tests := []struct {
		name string
		id   ID
		text string
	}{
		{"serial", MustParseID("XGD6CMM2VY"), "XGD6CMM2VY"},
		{"short serial", MustParseID("ABC"), "ABC"},
		{"empty", ID{}, ""},
		{"binary", ID{0xFF, 0xFE, 'A', 'B', 'C', 'D', 'E', 'F', 'G', 'H'}, "0xfffe4142434445464748"},
		{"hex prefixed serial", MustParseID("0x12"), "0x30783132000000000000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			text, err := tt.id.MarshalText()
			require.NoError(t, err)
			assert.Equal(t, tt.text, string(text))

			var parsed ID
			require.NoError(t, parsed.UnmarshalText(text))
			assert.Equal(t, tt.id, parsed)
		})
	}

	var id ID
	assert.Error(t, id.UnmarshalText([]byte("0xzzfe4142434445464748")))
}

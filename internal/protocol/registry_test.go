package protocol

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryLookup(t *testing.T) {
	tests := []struct {
		registry   *Registry
		recordType uint8
		expected   string
		found      bool
	}{
		{ServerRegistry, RecordTypeInverterGet, "InverterGetMultiple", true},
		{ServerRegistry, RecordTypeInverterPut, "InverterPutSingle", true},
		{ServerRegistry, RecordTypeInverterPutMulti, "InverterPutMultiple", true},
		{ServerRegistry, RecordTypeDataloggerGet, "DataloggerGetCommand", true},
		{ServerRegistry, RecordTypeAnnounce, "", false},
		{DataloggerRegistry, RecordTypeAnnounce, "Announce", true},
		{DataloggerRegistry, RecordTypeInverterGet, "InverterGetResponse", true},
		{DataloggerRegistry, RecordTypeInverterPut, "InverterPutSingleAck", true},
		{DataloggerRegistry, RecordTypeInverterPutMulti, "InverterPutMultipleAck", true},
		{DataloggerRegistry, RecordTypeDataloggerGet, "DataloggerGetResponse", true},
		{DataloggerRegistry, RecordTypeDataloggerPut, "DataloggerPutAck", true},
		{DataloggerRegistry, 0x42, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.registry.Direction().String()+"/"+tt.expected, func(t *testing.T) {
			name, ok := tt.registry.Lookup(tt.recordType)
			assert.Equal(t, tt.found, ok)
			assert.Equal(t, tt.expected, name)
		})
	}
}

func TestRegistryRecordTypes(t *testing.T) {
	assert.Equal(t, []uint8{0x05, 0x06, 0x10, 0x19}, ServerRegistry.RecordTypes())
	assert.Equal(t, []uint8{0x03, 0x05, 0x06, 0x10, 0x18, 0x19}, DataloggerRegistry.RecordTypes())
}

func TestRegistryFilter(t *testing.T) {
	onlyAcks := DataloggerRegistry.Filter(func(name string) bool {
		return strings.HasSuffix(name, "Ack")
	})
	assert.Equal(t, FromDatalogger, onlyAcks.Direction())
	assert.Equal(t, []uint8{0x06, 0x10, 0x18}, onlyAcks.RecordTypes())

	// The package registry is untouched.
	assert.Len(t, DataloggerRegistry.RecordTypes(), 6)

	raw, err := Serialize(NewAnnounce(ProtocolV6, 1, testDatalogger, testInverter))
	require.NoError(t, err)
	msg, _, err := Deserialize(raw, onlyAcks)
	require.NoError(t, err)
	assert.IsType(t, &GenericMessage{}, msg)
}

func TestRegistryFor(t *testing.T) {
	assert.Same(t, ServerRegistry, RegistryFor(FromServer))
	assert.Same(t, DataloggerRegistry, RegistryFor(FromDatalogger))
}

func TestParseDirection(t *testing.T) {
	d, err := ParseDirection("server")
	require.NoError(t, err)
	assert.Equal(t, FromServer, d)

	d, err = ParseDirection("Datalogger")
	require.NoError(t, err)
	assert.Equal(t, FromDatalogger, d)

	_, err = ParseDirection("inverter")
	assert.Error(t, err)

	assert.Equal(t, "Direction(7)", Direction(7).String())
}

func TestSelectRegistries(t *testing.T) {
	tests := []struct {
		name     string
		source   string
		address  string
		expected []*Registry
	}{
		{
			name:     "datalogger capture",
			source:   "2024-01-02T10:00:00--192.168.0.12-5279--3.bin",
			address:  "192.168.0",
			expected: []*Registry{DataloggerRegistry},
		},
		{
			name:     "server capture",
			source:   "2024-01-02T10:00:00--47.91.67.66-5279--5.bin",
			address:  "192.168.0",
			expected: []*Registry{ServerRegistry},
		},
		{
			name:     "no address searches both",
			source:   "capture.bin",
			address:  "",
			expected: []*Registry{ServerRegistry, DataloggerRegistry},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, SelectRegistries(tt.source, tt.address))
		})
	}
}

func TestVariantName(t *testing.T) {
	assert.Equal(t, "Announce", VariantName(&Announce{}))
	assert.Equal(t, "GenericMessage", VariantName(&GenericMessage{}))
	assert.Equal(t, "DataloggerPutAck", VariantName(&DataloggerPutAck{}))
}

func TestMarshalMessage(t *testing.T) {
	data, err := MarshalMessage(NewInverterPutSingle(ProtocolV6, 1, testDatalogger, 3, 1))
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, "InverterPutSingle", doc["variant"])

	header := doc["header"].(map[string]any)
	assert.Equal(t, float64(6), header["protocol"])
	assert.Equal(t, float64(IDLength+20+4+CRCLength), header["body_length"])

	message := doc["message"].(map[string]any)
	assert.Equal(t, "XGD6CMM2VY", message["datalogger_id"])
	assert.Equal(t, float64(3), message["register"])
	assert.Equal(t, float64(1), message["value"])
}

func TestUnmarshalMessage(t *testing.T) {
	messages := []Message{
		&GenericMessage{
			Base:    Base{SendSequence: 9, Protocol: ProtocolV2, DeviceID: 1, RecordType: 0x42},
			Payload: HexBytes{0xDE, 0xAD},
		},
	}
	for _, s := range sampleMessages(ProtocolV6) {
		messages = append(messages, s.msg)
	}

	for _, msg := range messages {
		t.Run(VariantName(msg), func(t *testing.T) {
			data, err := MarshalMessage(msg)
			require.NoError(t, err)

			decoded, err := UnmarshalMessage(data)
			require.NoError(t, err)
			assert.Equal(t, msg, decoded)
		})
	}
}

func TestUnmarshalMessageBinaryID(t *testing.T) {
	datalogger := ID{0xFF, 0xFE, 'A', 'B', 'C', 'D', 'E', 'F', 'G', 'H'}
	msg := NewAnnounce(ProtocolV6, 1, datalogger, testInverter)

	data, err := MarshalMessage(msg)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"datalogger_id":"0xfffe4142434445464748"`)

	decoded, err := UnmarshalMessage(data)
	require.NoError(t, err)
	assert.Equal(t, msg, decoded)
}

func TestUnmarshalMessageRecordType(t *testing.T) {
	data := []byte(`{"variant":"Announce","message":{"protocol":6,"device_id":1,"record_type":6,` +
		`"datalogger_id":"XGD6CMM2VY","inverter_id":"TLMX2A0013"}}`)

	decoded, err := UnmarshalMessage(data)
	require.NoError(t, err)
	assert.Equal(t, RecordTypeAnnounce, decoded.Meta().RecordType)

	raw, err := Serialize(decoded)
	require.NoError(t, err)
	assert.Equal(t, RecordTypeAnnounce, raw[7])

	generic, err := UnmarshalMessage([]byte(`{"variant":"GenericMessage","message":{"protocol":2,"record_type":66}}`))
	require.NoError(t, err)
	assert.Equal(t, uint8(66), generic.Meta().RecordType)
}

func TestUnmarshalMessageErrors(t *testing.T) {
	_, err := UnmarshalMessage([]byte(`{"variant":"Bogus","message":{}}`))
	assert.Error(t, err)

	_, err = UnmarshalMessage([]byte(`not json`))
	assert.Error(t, err)

	_, err = UnmarshalMessage([]byte(`{"variant":"Announce","message":{"inverter_id":"ABCDEFGHIJKL"}}`))
	assert.Error(t, err)
}

func TestRegisterValues(t *testing.T) {
	tests := []struct {
		msg      Message
		expected []uint16
		ok       bool
	}{
		{NewInverterGetResponse(ProtocolV6, 1, testDatalogger, 3, 7), []uint16{7}, true},
		{NewInverterPutSingleAck(ProtocolV6, 1, testDatalogger, 3, 0, 9), []uint16{9}, true},
		{NewDataloggerGetResponse(ProtocolV6, testDatalogger, 3, 4, []uint16{1, 2}), []uint16{1, 2}, true},
		{NewInverterGetMultiple(ProtocolV6, 1, testDatalogger, 3, 4), nil, false},
		{NewAnnounce(ProtocolV6, 1, testDatalogger, testInverter), nil, false},
	}

	for _, tt := range tests {
		t.Run(VariantName(tt.msg), func(t *testing.T) {
			values, ok := RegisterValues(tt.msg)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.expected, values)
		})
	}
}

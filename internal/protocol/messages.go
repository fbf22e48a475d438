package protocol

import (
	"encoding/binary"
	"encoding/hex"
)

// Message is implemented by every record variant. The set of implementations
// is closed; use a type switch on the concrete pointer types to inspect fields.
type Message interface {
	// Meta returns the header fields stored in the message.
	Meta() *Base
	appendBody(dst []byte) []byte
}

// validator is implemented by field sets that carry invariants beyond their layout.
type validator interface {
	validate() error
}

type valuer interface {
	registerValues() []uint16
}

// RegisterValues returns the register values carried by m and true, or nil
// and false for variants without values.
func RegisterValues(m Message) ([]uint16, bool) {
	v, ok := m.(valuer)
	if !ok {
		return nil, false
	}
	return v.registerValues(), true
}

// Body returns the unencrypted body of m, i.e. everything after the header.
func Body(m Message) []byte {
	return m.appendBody(nil)
}

// HeaderOf returns the header that Serialize writes for m.
func HeaderOf(m Message) Header {
	meta := m.Meta()
	return Header{
		SendSequence: meta.SendSequence,
		Protocol:     meta.Protocol,
		BodyLength:   uint16(len(Body(m)) + CRCLength),
		DeviceID:     meta.DeviceID,
		RecordType:   meta.RecordType,
	}
}

// Base holds the header fields every message carries. Body length is derived
// on encode and is not stored.
type Base struct {
	SendSequence uint16 `json:"send_sequence"`
	Protocol     uint16 `json:"protocol"`
	DeviceID     uint8  `json:"device_id"`
	RecordType   uint8  `json:"record_type"`
}

func decodeBase(h Header) Base {
	return Base{
		SendSequence: h.SendSequence,
		Protocol:     h.Protocol,
		DeviceID:     h.DeviceID,
		RecordType:   h.RecordType,
	}
}

// Meta implements Message.
func (b *Base) Meta() *Base {
	return b
}

func (b *Base) appendBody(dst []byte) []byte {
	return dst
}

// HexBytes is a byte slice that marshals to a hex string.
type HexBytes []byte

// MarshalText implements encoding.TextMarshaler.
func (h HexBytes) MarshalText() ([]byte, error) {
	return []byte(hex.EncodeToString(h)), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (h *HexBytes) UnmarshalText(text []byte) error {
	b, err := hex.DecodeString(string(text))
	if err != nil {
		return err
	}
	*h = b
	return nil
}

// GenericMessage is returned for record types no registry knows about.
// Payload holds the decrypted body verbatim.
type GenericMessage struct {
	Base
	Payload HexBytes `json:"payload"`
}

func (m *GenericMessage) appendBody(dst []byte) []byte {
	return append(dst, m.Payload...)
}

// DataMessage carries the datalogger id followed by protocol dependent padding.
type DataMessage struct {
	Base
	DataloggerID ID `json:"datalogger_id"`
}

func decodeDataMessage(r *reader, h Header) (DataMessage, error) {
	id, err := r.id("datalogger_id")
	if err != nil {
		return DataMessage{}, err
	}
	if err := r.skip("padding", PaddingLength(h.Protocol)); err != nil {
		return DataMessage{}, err
	}
	return DataMessage{Base: decodeBase(h), DataloggerID: id}, nil
}

func (m *DataMessage) appendBody(dst []byte) []byte {
	dst = m.Base.appendBody(dst)
	dst = append(dst, m.DataloggerID[:]...)
	return append(dst, make([]byte, PaddingLength(m.Protocol))...)
}

// SingleRegisterMessage addresses one register.
type SingleRegisterMessage struct {
	DataMessage
	Register uint16 `json:"register"`
}

func decodeSingleRegisterMessage(r *reader, h Header) (SingleRegisterMessage, error) {
	parent, err := decodeDataMessage(r, h)
	if err != nil {
		return SingleRegisterMessage{}, err
	}
	register, err := r.uint16("register")
	if err != nil {
		return SingleRegisterMessage{}, err
	}
	return SingleRegisterMessage{DataMessage: parent, Register: register}, nil
}

func (m *SingleRegisterMessage) appendBody(dst []byte) []byte {
	dst = m.DataMessage.appendBody(dst)
	return binary.BigEndian.AppendUint16(dst, m.Register)
}

// SingleRegisterValueMessage addresses one register and carries its value.
type SingleRegisterValueMessage struct {
	SingleRegisterMessage
	Value uint16 `json:"value"`
}

func decodeSingleRegisterValueMessage(r *reader, h Header) (SingleRegisterValueMessage, error) {
	parent, err := decodeSingleRegisterMessage(r, h)
	if err != nil {
		return SingleRegisterValueMessage{}, err
	}
	value, err := r.uint16("value")
	if err != nil {
		return SingleRegisterValueMessage{}, err
	}
	return SingleRegisterValueMessage{SingleRegisterMessage: parent, Value: value}, nil
}

func (m *SingleRegisterValueMessage) appendBody(dst []byte) []byte {
	dst = m.SingleRegisterMessage.appendBody(dst)
	return binary.BigEndian.AppendUint16(dst, m.Value)
}

func (m *SingleRegisterValueMessage) registerValues() []uint16 {
	return []uint16{m.Value}
}

// SingleRegisterAck acknowledges a single register write.
type SingleRegisterAck struct {
	SingleRegisterMessage
	Result uint8  `json:"result"`
	Value  uint16 `json:"value"`
}

func decodeSingleRegisterAck(r *reader, h Header) (SingleRegisterAck, error) {
	parent, err := decodeSingleRegisterMessage(r, h)
	if err != nil {
		return SingleRegisterAck{}, err
	}
	result, err := r.uint8("result")
	if err != nil {
		return SingleRegisterAck{}, err
	}
	value, err := r.uint16("value")
	if err != nil {
		return SingleRegisterAck{}, err
	}
	return SingleRegisterAck{SingleRegisterMessage: parent, Result: result, Value: value}, nil
}

func (m *SingleRegisterAck) appendBody(dst []byte) []byte {
	dst = m.SingleRegisterMessage.appendBody(dst)
	dst = append(dst, m.Result)
	return binary.BigEndian.AppendUint16(dst, m.Value)
}

func (m *SingleRegisterAck) registerValues() []uint16 {
	return []uint16{m.Value}
}

// MultiRegisterMessage addresses the inclusive register range [StartRegister, EndRegister].
type MultiRegisterMessage struct {
	DataMessage
	StartRegister uint16 `json:"start_register"`
	EndRegister   uint16 `json:"end_register"`
}

func decodeMultiRegisterMessage(r *reader, h Header) (MultiRegisterMessage, error) {
	parent, err := decodeDataMessage(r, h)
	if err != nil {
		return MultiRegisterMessage{}, err
	}
	start, err := r.uint16("start_register")
	if err != nil {
		return MultiRegisterMessage{}, err
	}
	end, err := r.uint16("end_register")
	if err != nil {
		return MultiRegisterMessage{}, err
	}
	return MultiRegisterMessage{DataMessage: parent, StartRegister: start, EndRegister: end}, nil
}

func (m *MultiRegisterMessage) appendBody(dst []byte) []byte {
	dst = m.DataMessage.appendBody(dst)
	dst = binary.BigEndian.AppendUint16(dst, m.StartRegister)
	return binary.BigEndian.AppendUint16(dst, m.EndRegister)
}

// RegisterCount returns the number of registers in the range, or 0 when the
// range is inverted.
func (m *MultiRegisterMessage) RegisterCount() int {
	if m.EndRegister < m.StartRegister {
		return 0
	}
	return int(m.EndRegister-m.StartRegister) + 1
}

func (m *MultiRegisterMessage) rangeError(offset int) error {
	return &FormatError{
		Kind:     ErrInconsistentRegisterRange,
		Field:    "end_register",
		Offset:   offset,
		Expected: int(m.StartRegister),
		Actual:   int(m.EndRegister),
	}
}

// MultiRegisterValueMessage carries one value per register in the range.
type MultiRegisterValueMessage struct {
	MultiRegisterMessage
	Values []uint16 `json:"values"`
}

func decodeMultiRegisterValueMessage(r *reader, h Header) (MultiRegisterValueMessage, error) {
	parent, err := decodeMultiRegisterMessage(r, h)
	if err != nil {
		return MultiRegisterValueMessage{}, err
	}

	count := parent.RegisterCount()
	if count == 0 {
		return MultiRegisterValueMessage{}, parent.rangeError(r.offset() - 2)
	}

	// Checked before allocating so a malformed range cannot force a large slice.
	raw, err := r.next("values", 2*count)
	if err != nil {
		return MultiRegisterValueMessage{}, err
	}

	values := make([]uint16, count)
	for i := range values {
		values[i] = binary.BigEndian.Uint16(raw[2*i:])
	}
	return MultiRegisterValueMessage{MultiRegisterMessage: parent, Values: values}, nil
}

func (m *MultiRegisterValueMessage) appendBody(dst []byte) []byte {
	dst = m.MultiRegisterMessage.appendBody(dst)
	for _, v := range m.Values {
		dst = binary.BigEndian.AppendUint16(dst, v)
	}
	return dst
}

func (m *MultiRegisterValueMessage) registerValues() []uint16 {
	return append([]uint16(nil), m.Values...)
}

func (m *MultiRegisterValueMessage) validate() error {
	count := m.RegisterCount()
	if count == 0 {
		return m.rangeError(HeaderLength + IDLength + PaddingLength(m.Protocol) + 2)
	}
	if len(m.Values) != count {
		return &FormatError{
			Kind:     ErrInconsistentRegisterRange,
			Field:    "values",
			Offset:   HeaderLength + IDLength + PaddingLength(m.Protocol) + 4,
			Expected: 2 * count,
			Actual:   2 * len(m.Values),
		}
	}
	return nil
}

// MultiRegisterAck acknowledges a multi register write.
type MultiRegisterAck struct {
	MultiRegisterMessage
	Result uint8 `json:"result"`
}

func decodeMultiRegisterAck(r *reader, h Header) (MultiRegisterAck, error) {
	parent, err := decodeMultiRegisterMessage(r, h)
	if err != nil {
		return MultiRegisterAck{}, err
	}
	result, err := r.uint8("result")
	if err != nil {
		return MultiRegisterAck{}, err
	}
	return MultiRegisterAck{MultiRegisterMessage: parent, Result: result}, nil
}

func (m *MultiRegisterAck) appendBody(dst []byte) []byte {
	dst = m.MultiRegisterMessage.appendBody(dst)
	return append(dst, m.Result)
}

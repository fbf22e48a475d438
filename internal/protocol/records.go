package protocol

// Record types carried in header byte 7. The same value can name different
// records depending on which side sent the frame.
const (
	RecordTypeAnnounce         uint8 = 0x03
	RecordTypeInverterGet      uint8 = 0x05
	RecordTypeInverterPut      uint8 = 0x06
	RecordTypeInverterPutMulti uint8 = 0x10
	RecordTypeDataloggerPut    uint8 = 0x18
	RecordTypeDataloggerGet    uint8 = 0x19
)

// Announce is sent by the datalogger to introduce the inverter behind it.
type Announce struct {
	DataMessage
	InverterID ID `json:"inverter_id"`
}

func (m *Announce) appendBody(dst []byte) []byte {
	dst = m.DataMessage.appendBody(dst)
	return append(dst, m.InverterID[:]...)
}

func decodeAnnounce(r *reader, h Header) (Message, error) {
	parent, err := decodeDataMessage(r, h)
	if err != nil {
		return nil, err
	}
	inverterID, err := r.id("inverter_id")
	if err != nil {
		return nil, err
	}
	return &Announce{DataMessage: parent, InverterID: inverterID}, nil
}

// NewAnnounce creates an announce record.
func NewAnnounce(protocol uint16, deviceID uint8, dataloggerID, inverterID ID) *Announce {
	return &Announce{
		DataMessage: newDataMessage(protocol, deviceID, RecordTypeAnnounce, dataloggerID),
		InverterID:  inverterID,
	}
}

// InverterGetMultiple asks the inverter for a register range.
type InverterGetMultiple struct {
	MultiRegisterMessage
}

func decodeInverterGetMultiple(r *reader, h Header) (Message, error) {
	m, err := decodeMultiRegisterMessage(r, h)
	if err != nil {
		return nil, err
	}
	return &InverterGetMultiple{m}, nil
}

// NewInverterGetMultiple creates a read command for registers start..end.
func NewInverterGetMultiple(protocol uint16, deviceID uint8, dataloggerID ID, start, end uint16) *InverterGetMultiple {
	return &InverterGetMultiple{
		newMultiRegisterMessage(protocol, deviceID, RecordTypeInverterGet, dataloggerID, start, end),
	}
}

// InverterGetResponse carries the value of a single inverter register.
type InverterGetResponse struct {
	SingleRegisterValueMessage
}

func decodeInverterGetResponse(r *reader, h Header) (Message, error) {
	m, err := decodeSingleRegisterValueMessage(r, h)
	if err != nil {
		return nil, err
	}
	return &InverterGetResponse{m}, nil
}

// NewInverterGetResponse creates a single register read response.
func NewInverterGetResponse(protocol uint16, deviceID uint8, dataloggerID ID, register, value uint16) *InverterGetResponse {
	return &InverterGetResponse{
		newSingleRegisterValueMessage(protocol, deviceID, RecordTypeInverterGet, dataloggerID, register, value),
	}
}

// InverterPutSingle writes one inverter register.
type InverterPutSingle struct {
	SingleRegisterValueMessage
}

func decodeInverterPutSingle(r *reader, h Header) (Message, error) {
	m, err := decodeSingleRegisterValueMessage(r, h)
	if err != nil {
		return nil, err
	}
	return &InverterPutSingle{m}, nil
}

// NewInverterPutSingle creates a single register write command.
func NewInverterPutSingle(protocol uint16, deviceID uint8, dataloggerID ID, register, value uint16) *InverterPutSingle {
	return &InverterPutSingle{
		newSingleRegisterValueMessage(protocol, deviceID, RecordTypeInverterPut, dataloggerID, register, value),
	}
}

// InverterPutSingleAck acknowledges InverterPutSingle.
type InverterPutSingleAck struct {
	SingleRegisterAck
}

func decodeInverterPutSingleAck(r *reader, h Header) (Message, error) {
	m, err := decodeSingleRegisterAck(r, h)
	if err != nil {
		return nil, err
	}
	return &InverterPutSingleAck{m}, nil
}

// NewInverterPutSingleAck creates a single register write acknowledgement.
func NewInverterPutSingleAck(protocol uint16, deviceID uint8, dataloggerID ID, register uint16, result uint8, value uint16) *InverterPutSingleAck {
	return &InverterPutSingleAck{
		newSingleRegisterAck(protocol, deviceID, RecordTypeInverterPut, dataloggerID, register, result, value),
	}
}

// InverterPutMultiple writes a contiguous register range.
type InverterPutMultiple struct {
	MultiRegisterValueMessage
}

func decodeInverterPutMultiple(r *reader, h Header) (Message, error) {
	m, err := decodeMultiRegisterValueMessage(r, h)
	if err != nil {
		return nil, err
	}
	return &InverterPutMultiple{m}, nil
}

// NewInverterPutMultiple creates a multi register write command.
func NewInverterPutMultiple(protocol uint16, deviceID uint8, dataloggerID ID, start, end uint16, values []uint16) *InverterPutMultiple {
	return &InverterPutMultiple{
		newMultiRegisterValueMessage(protocol, deviceID, RecordTypeInverterPutMulti, dataloggerID, start, end, values),
	}
}

// InverterPutMultipleAck acknowledges InverterPutMultiple.
type InverterPutMultipleAck struct {
	MultiRegisterAck
}

func decodeInverterPutMultipleAck(r *reader, h Header) (Message, error) {
	m, err := decodeMultiRegisterAck(r, h)
	if err != nil {
		return nil, err
	}
	return &InverterPutMultipleAck{m}, nil
}

// NewInverterPutMultipleAck creates a multi register write acknowledgement.
func NewInverterPutMultipleAck(protocol uint16, deviceID uint8, dataloggerID ID, start, end uint16, result uint8) *InverterPutMultipleAck {
	return &InverterPutMultipleAck{
		MultiRegisterAck{
			MultiRegisterMessage: newMultiRegisterMessage(protocol, deviceID, RecordTypeInverterPutMulti, dataloggerID, start, end),
			Result:               result,
		},
	}
}

// DataloggerGetCommand reads datalogger configuration registers.
type DataloggerGetCommand struct {
	MultiRegisterMessage
}

func decodeDataloggerGetCommand(r *reader, h Header) (Message, error) {
	m, err := decodeMultiRegisterMessage(r, h)
	if err != nil {
		return nil, err
	}
	return &DataloggerGetCommand{m}, nil
}

// NewDataloggerGetCommand creates a datalogger read command. Datalogger
// records always use device id 1.
func NewDataloggerGetCommand(protocol uint16, dataloggerID ID, start, end uint16) *DataloggerGetCommand {
	return &DataloggerGetCommand{
		newMultiRegisterMessage(protocol, DeviceDatalogger, RecordTypeDataloggerGet, dataloggerID, start, end),
	}
}

// DataloggerGetResponse carries datalogger configuration register values.
type DataloggerGetResponse struct {
	MultiRegisterValueMessage
}

func decodeDataloggerGetResponse(r *reader, h Header) (Message, error) {
	m, err := decodeMultiRegisterValueMessage(r, h)
	if err != nil {
		return nil, err
	}
	return &DataloggerGetResponse{m}, nil
}

// NewDataloggerGetResponse creates a datalogger read response.
func NewDataloggerGetResponse(protocol uint16, dataloggerID ID, start, end uint16, values []uint16) *DataloggerGetResponse {
	return &DataloggerGetResponse{
		newMultiRegisterValueMessage(protocol, DeviceDatalogger, RecordTypeDataloggerGet, dataloggerID, start, end, values),
	}
}

// DataloggerPutAck acknowledges a datalogger configuration write.
type DataloggerPutAck struct {
	SingleRegisterAck
}

func decodeDataloggerPutAck(r *reader, h Header) (Message, error) {
	m, err := decodeSingleRegisterAck(r, h)
	if err != nil {
		return nil, err
	}
	return &DataloggerPutAck{m}, nil
}

// NewDataloggerPutAck creates a datalogger write acknowledgement.
func NewDataloggerPutAck(protocol uint16, dataloggerID ID, register uint16, result uint8, value uint16) *DataloggerPutAck {
	return &DataloggerPutAck{
		newSingleRegisterAck(protocol, DeviceDatalogger, RecordTypeDataloggerPut, dataloggerID, register, result, value),
	}
}

func newDataMessage(protocol uint16, deviceID, recordType uint8, dataloggerID ID) DataMessage {
	return DataMessage{
		Base: Base{
			SendSequence: DefaultSendSequence,
			Protocol:     protocol,
			DeviceID:     deviceID,
			RecordType:   recordType,
		},
		DataloggerID: dataloggerID,
	}
}

func newSingleRegisterValueMessage(protocol uint16, deviceID, recordType uint8, dataloggerID ID, register, value uint16) SingleRegisterValueMessage {
	return SingleRegisterValueMessage{
		SingleRegisterMessage: SingleRegisterMessage{
			DataMessage: newDataMessage(protocol, deviceID, recordType, dataloggerID),
			Register:    register,
		},
		Value: value,
	}
}

func newSingleRegisterAck(protocol uint16, deviceID, recordType uint8, dataloggerID ID, register uint16, result uint8, value uint16) SingleRegisterAck {
	return SingleRegisterAck{
		SingleRegisterMessage: SingleRegisterMessage{
			DataMessage: newDataMessage(protocol, deviceID, recordType, dataloggerID),
			Register:    register,
		},
		Result: result,
		Value:  value,
	}
}

func newMultiRegisterMessage(protocol uint16, deviceID, recordType uint8, dataloggerID ID, start, end uint16) MultiRegisterMessage {
	return MultiRegisterMessage{
		DataMessage:   newDataMessage(protocol, deviceID, recordType, dataloggerID),
		StartRegister: start,
		EndRegister:   end,
	}
}

func newMultiRegisterValueMessage(protocol uint16, deviceID, recordType uint8, dataloggerID ID, start, end uint16, values []uint16) MultiRegisterValueMessage {
	return MultiRegisterValueMessage{
		MultiRegisterMessage: newMultiRegisterMessage(protocol, deviceID, recordType, dataloggerID, start, end),
		Values:               values,
	}
}

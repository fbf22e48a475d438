package protocol

import (
	"encoding/json"
	"fmt"
)

// Document is the JSON form of a message.
type Document struct {
	Variant string          `json:"variant"`
	Header  Header          `json:"header"`
	Message json.RawMessage `json:"message"`
}

// MarshalMessage encodes m as a Document.
func MarshalMessage(m Message) ([]byte, error) {
	fields, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s: %w", VariantName(m), err)
	}

	return json.Marshal(Document{
		Variant: VariantName(m),
		Header:  HeaderOf(m),
		Message: fields,
	})
}

// UnmarshalMessage builds a message from a Document produced by MarshalMessage.
// The header in the document is ignored; header fields are read from the
// message object.
func UnmarshalMessage(data []byte) (Message, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse message document: %w", err)
	}

	var m Message
	var v variant
	if doc.Variant == "GenericMessage" {
		m = &GenericMessage{}
	} else {
		var ok bool
		if v, ok = variantsByName[doc.Variant]; !ok {
			return nil, fmt.Errorf("unknown message variant %q", doc.Variant)
		}
		m = v.zero()
	}

	if len(doc.Message) > 0 {
		if err := json.Unmarshal(doc.Message, m); err != nil {
			return nil, fmt.Errorf("failed to parse %s fields: %w", doc.Variant, err)
		}
	}

	// The variant owns its record type; a record_type field in the
	// message object only applies to GenericMessage.
	if v.zero != nil {
		m.Meta().RecordType = v.recordType
	}

	return m, nil
}

package protocol

import (
	"encoding/hex"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// DefaultMaxFrameLength bounds the frames accepted by Deserialize: the
// largest body the length field can describe plus header and CRC.
const DefaultMaxFrameLength = HeaderLength + MaxBodyLength + CRCLength

// Codec decodes and encodes frames. A Codec holds no mutable state and is
// safe for concurrent use.
type Codec struct {
	envelope       *Envelope
	cipher         Cipher
	verifyCRC      bool
	maxFrameLength int
	logger         zerolog.Logger
}

// Option configures a Codec.
type Option func(*Codec)

// WithCipher replaces the Growatt XOR cipher.
func WithCipher(cipher Cipher) Option {
	return func(c *Codec) {
		c.cipher = cipher
	}
}

// WithCRCVerification makes Deserialize reject frames whose CRC trailer does
// not match the encrypted bytes.
func WithCRCVerification(verify bool) Option {
	return func(c *Codec) {
		c.verifyCRC = verify
	}
}

// WithMaxFrameLength overrides DefaultMaxFrameLength. Zero or negative disables the bound.
func WithMaxFrameLength(n int) Option {
	return func(c *Codec) {
		c.maxFrameLength = n
	}
}

// WithLogger sets the logger used for debug output.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Codec) {
		c.logger = logger.With().Str("component", "codec").Logger()
	}
}

// NewCodec creates a codec.
func NewCodec(opts ...Option) *Codec {
	c := &Codec{
		maxFrameLength: DefaultMaxFrameLength,
		logger:         log.With().Str("component", "codec").Logger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.envelope = NewEnvelope(c.cipher, c.verifyCRC)
	return c
}

var defaultCodec = NewCodec()

// Deserialize decodes raw with the default codec.
func Deserialize(raw []byte, registries ...*Registry) (Message, []byte, error) {
	return defaultCodec.Deserialize(raw, registries...)
}

// Serialize encodes m with the default codec.
func Serialize(m Message, opts ...SerializeOption) ([]byte, error) {
	return defaultCodec.Serialize(m, opts...)
}

// Open checks the frame bound and returns the decrypted frame without its CRC
// trailer, using the codec's cipher and CRC setting.
func (c *Codec) Open(raw []byte) ([]byte, error) {
	_, frame, err := c.open(raw)
	return frame, err
}

func (c *Codec) open(raw []byte) (Header, []byte, error) {
	if c.maxFrameLength > 0 && len(raw) > c.maxFrameLength {
		return Header{}, nil, &FormatError{
			Kind:     ErrFrameTooLarge,
			Field:    "frame",
			Expected: c.maxFrameLength,
			Actual:   len(raw),
		}
	}

	header, err := ParseHeader(raw)
	if err != nil {
		return Header{}, nil, err
	}

	frame, err := c.envelope.Open(raw, header.Protocol)
	if err != nil {
		return Header{}, nil, err
	}
	return header, frame, nil
}

// searchOrder drops nil registries. When none remain the server registry is
// searched before the datalogger registry.
func searchOrder(registries []*Registry) []*Registry {
	order := make([]*Registry, 0, len(registries))
	for _, r := range registries {
		if r != nil {
			order = append(order, r)
		}
	}
	if len(order) == 0 {
		return []*Registry{ServerRegistry, DataloggerRegistry}
	}
	return order
}

// Deserialize decodes one frame. The record type selects a variant from the
// given registries, searched in order. Nil registries are skipped; with none
// left the server registry is searched before the datalogger registry.
//
// Registered variants must consume the whole body, so the returned leftover is
// empty for them. Unknown record types decode to a *GenericMessage and the
// leftover holds the body verbatim.
func (c *Codec) Deserialize(raw []byte, registries ...*Registry) (Message, []byte, error) {
	header, frame, err := c.open(raw)
	if err != nil {
		return nil, nil, err
	}

	if e := c.logger.Debug(); e.Enabled() {
		e.Uint16("protocol", header.Protocol).
			Uint8("record_type", header.RecordType).
			Str("decrypted", hex.EncodeToString(frame)).
			Msg("Decoding frame")
	}

	registries = searchOrder(registries)

	r := newReader(frame[HeaderLength:])
	for _, registry := range registries {
		v, ok := registry.entries[header.RecordType]
		if !ok {
			continue
		}

		msg, err := v.decode(r, header)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to decode %s: %w", v.name, err)
		}

		if r.remaining() > 0 {
			return nil, nil, &FormatError{
				Kind:   ErrUnexpectedTrailingBytes,
				Field:  v.name,
				Offset: r.offset(),
				Actual: r.remaining(),
			}
		}

		c.logger.Debug().
			Str("variant", v.name).
			Str("direction", registry.direction.String()).
			Msg("Decoded frame")
		return msg, nil, nil
	}

	c.logger.Debug().
		Uint8("record_type", header.RecordType).
		Int("body_length", r.remaining()).
		Msg("Unknown record type, falling back to generic message")

	return &GenericMessage{Base: decodeBase(header), Payload: r.rest()}, r.rest(), nil
}

// SerializeOption adjusts how Serialize writes the header.
type SerializeOption func(*serializeOptions)

type serializeOptions struct {
	bodyLength *uint16
}

// WithBodyLength writes n into the header's advisory length field instead of
// the computed body length. Used to reproduce captured frames byte for byte.
func WithBodyLength(n uint16) SerializeOption {
	return func(o *serializeOptions) {
		o.bodyLength = &n
	}
}

// Serialize builds the wire bytes for m: header, body, and for encrypted
// protocols the XOR mask and CRC trailer.
func (c *Codec) Serialize(m Message, opts ...SerializeOption) ([]byte, error) {
	var o serializeOptions
	for _, opt := range opts {
		opt(&o)
	}

	if v, ok := m.(validator); ok {
		if err := v.validate(); err != nil {
			return nil, fmt.Errorf("failed to encode %s: %w", VariantName(m), err)
		}
	}

	body := m.appendBody(nil)
	if len(body) > MaxBodyLength {
		return nil, &FormatError{
			Kind:     ErrFrameTooLarge,
			Field:    "body",
			Offset:   HeaderLength,
			Expected: MaxBodyLength,
			Actual:   len(body),
		}
	}

	meta := m.Meta()
	header := Header{
		SendSequence: meta.SendSequence,
		Protocol:     meta.Protocol,
		BodyLength:   uint16(len(body) + CRCLength),
		DeviceID:     meta.DeviceID,
		RecordType:   meta.RecordType,
	}
	if o.bodyLength != nil {
		header.BodyLength = *o.bodyLength
	}

	frame := header.AppendTo(make([]byte, 0, HeaderLength+len(body)+CRCLength))
	frame = append(frame, body...)
	return c.envelope.Seal(frame, meta.Protocol), nil
}

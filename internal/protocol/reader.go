package protocol

import (
	"encoding/binary"
)

// reader is a cursor over the decrypted body. Offsets reported in errors are
// absolute frame offsets.
type reader struct {
	buf  []byte
	base int
	pos  int
}

func newReader(body []byte) *reader {
	return &reader{buf: body, base: HeaderLength}
}

func (r *reader) remaining() int {
	return len(r.buf) - r.pos
}

func (r *reader) offset() int {
	return r.base + r.pos
}

// rest returns a copy of the unconsumed bytes.
func (r *reader) rest() []byte {
	return append([]byte{}, r.buf[r.pos:]...)
}

func (r *reader) next(field string, n int) ([]byte, error) {
	if r.remaining() < n {
		return nil, truncated(field, r.offset(), n, r.remaining())
	}
	b := r.buf[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

func (r *reader) skip(field string, n int) error {
	_, err := r.next(field, n)
	return err
}

func (r *reader) uint8(field string) (uint8, error) {
	b, err := r.next(field, 1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *reader) uint16(field string) (uint16, error) {
	b, err := r.next(field, 2)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b), nil
}

func (r *reader) id(field string) (ID, error) {
	var id ID
	b, err := r.next(field, IDLength)
	if err != nil {
		return id, err
	}
	copy(id[:], b)
	return id, nil
}

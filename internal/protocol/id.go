package protocol

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"strings"
	"unicode/utf8"
)

// IDLength is the size of datalogger and inverter identifiers.
const IDLength = 10

// idHexPrefix marks the hex text form of an identifier.
const idHexPrefix = "0x"

// ID is a fixed 10-byte device identifier, usually an ASCII serial number.
type ID [IDLength]byte

// ParseID converts a serial number to an ID, padding it with zero bytes.
func ParseID(s string) (ID, error) {
	var id ID
	if len(s) > IDLength {
		return id, fmt.Errorf("identifier %q longer than %d bytes", s, IDLength)
	}
	copy(id[:], s)
	return id, nil
}

// MustParseID is like ParseID but panics on error.
func MustParseID(s string) ID {
	id, err := ParseID(s)
	if err != nil {
		panic(err)
	}
	return id
}

// String returns the identifier without trailing zero bytes.
func (id ID) String() string {
	return string(bytes.TrimRight(id[:], "\x00"))
}

// MarshalText implements encoding.TextMarshaler. Identifiers that are not
// valid UTF-8, or that would read as the hex form, are written as "0x"
// followed by all ten bytes in hex.
func (id ID) MarshalText() ([]byte, error) {
	s := id.String()
	if utf8.ValidString(s) && !strings.HasPrefix(s, idHexPrefix) {
		return []byte(s), nil
	}
	return []byte(idHexPrefix + hex.EncodeToString(id[:])), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. It accepts both forms
// written by MarshalText.
func (id *ID) UnmarshalText(text []byte) error {
	s := string(text)
	if strings.HasPrefix(s, idHexPrefix) && len(s) == len(idHexPrefix)+2*IDLength {
		raw, err := hex.DecodeString(s[len(idHexPrefix):])
		if err != nil {
			return fmt.Errorf("invalid hex identifier %q: %w", s, err)
		}
		copy(id[:], raw)
		return nil
	}

	parsed, err := ParseID(s)
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

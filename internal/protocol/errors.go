package protocol

import (
	"errors"
	"fmt"
)

// Decode error kinds. Every error returned by the codec wraps one of these.
var (
	ErrTruncatedInput            = errors.New("truncated input")
	ErrUnexpectedTrailingBytes   = errors.New("unexpected trailing bytes")
	ErrInconsistentRegisterRange = errors.New("inconsistent register range")
	ErrCRCMismatch               = errors.New("crc mismatch")
	ErrFrameTooLarge             = errors.New("frame too large")
)

// FormatError describes where in a frame decoding or encoding went wrong.
// Offset is counted from the first header byte.
type FormatError struct {
	Kind     error
	Field    string
	Offset   int
	Expected int
	Actual   int
}

func (e *FormatError) Error() string {
	switch {
	case e.Kind == ErrInconsistentRegisterRange && e.Field == "end_register":
		return fmt.Sprintf("%v: %s at offset %d: start register %d, end register %d",
			e.Kind, e.Field, e.Offset, e.Expected, e.Actual)
	case e.Kind == ErrCRCMismatch:
		return fmt.Sprintf("%v: %s at offset %d: expected 0x%04X, got 0x%04X",
			e.Kind, e.Field, e.Offset, e.Expected, e.Actual)
	case e.Kind == ErrUnexpectedTrailingBytes:
		return fmt.Sprintf("%v: %s left %d bytes unconsumed at offset %d",
			e.Kind, e.Field, e.Actual, e.Offset)
	default:
		return fmt.Sprintf("%v: %s at offset %d: expected %d bytes, got %d",
			e.Kind, e.Field, e.Offset, e.Expected, e.Actual)
	}
}

// Unwrap lets errors.Is match the error kind.
func (e *FormatError) Unwrap() error {
	return e.Kind
}

func truncated(field string, offset, expected, actual int) error {
	return &FormatError{
		Kind:     ErrTruncatedInput,
		Field:    field,
		Offset:   offset,
		Expected: expected,
		Actual:   actual,
	}
}

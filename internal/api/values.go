package api

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// ValueFormat selects how register values are rendered in decode responses.
type ValueFormat string

// Supported value formats.
const (
	FormatDec  ValueFormat = "dec"
	FormatHex  ValueFormat = "hex"
	FormatText ValueFormat = "text"
)

// ParseValueFormat validates a format name. An empty name selects FormatDec.
func ParseValueFormat(format string) (ValueFormat, error) {
	switch f := ValueFormat(strings.ToLower(format)); f {
	case "":
		return FormatDec, nil
	case FormatDec, FormatHex, FormatText:
		return f, nil
	default:
		return "", fmt.Errorf("invalid format specified: %s (supported: dec, hex, text)", format)
	}
}

// FormatValues renders register values. Text joins the big-endian bytes of
// all values and trims NUL padding, which is how dataloggers store strings
// such as IP addresses across consecutive registers.
func FormatValues(values []uint16, format ValueFormat) interface{} {
	switch format {
	case FormatHex:
		out := make([]string, len(values))
		for i, v := range values {
			out[i] = fmt.Sprintf("%04x", v)
		}
		return out
	case FormatText:
		raw := make([]byte, 0, 2*len(values))
		for _, v := range values {
			raw = binary.BigEndian.AppendUint16(raw, v)
		}
		return strings.TrimRight(string(raw), "\x00")
	default:
		return values
	}
}

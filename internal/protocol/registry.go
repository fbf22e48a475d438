package protocol

import (
	"fmt"
	"reflect"
	"slices"
	"strings"
)

// Direction identifies which side of the link sent a frame.
type Direction int

const (
	// FromServer covers commands sent by the server to the datalogger.
	FromServer Direction = iota
	// FromDatalogger covers responses, acknowledgements and announcements.
	FromDatalogger
)

func (d Direction) String() string {
	switch d {
	case FromServer:
		return "server"
	case FromDatalogger:
		return "datalogger"
	default:
		return fmt.Sprintf("Direction(%d)", int(d))
	}
}

// ParseDirection parses "server" or "datalogger".
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(s) {
	case "server":
		return FromServer, nil
	case "datalogger":
		return FromDatalogger, nil
	default:
		return 0, fmt.Errorf("unknown direction %q", s)
	}
}

type decodeFunc func(r *reader, h Header) (Message, error)

// variant binds a concrete record type to its decoder.
type variant struct {
	name       string
	recordType uint8
	direction  Direction
	decode     decodeFunc
	zero       func() Message
}

var variants = []variant{
	{"InverterGetMultiple", RecordTypeInverterGet, FromServer, decodeInverterGetMultiple, func() Message { return &InverterGetMultiple{} }},
	{"InverterPutSingle", RecordTypeInverterPut, FromServer, decodeInverterPutSingle, func() Message { return &InverterPutSingle{} }},
	{"InverterPutMultiple", RecordTypeInverterPutMulti, FromServer, decodeInverterPutMultiple, func() Message { return &InverterPutMultiple{} }},
	{"DataloggerGetCommand", RecordTypeDataloggerGet, FromServer, decodeDataloggerGetCommand, func() Message { return &DataloggerGetCommand{} }},

	{"Announce", RecordTypeAnnounce, FromDatalogger, decodeAnnounce, func() Message { return &Announce{} }},
	{"InverterGetResponse", RecordTypeInverterGet, FromDatalogger, decodeInverterGetResponse, func() Message { return &InverterGetResponse{} }},
	{"InverterPutSingleAck", RecordTypeInverterPut, FromDatalogger, decodeInverterPutSingleAck, func() Message { return &InverterPutSingleAck{} }},
	{"InverterPutMultipleAck", RecordTypeInverterPutMulti, FromDatalogger, decodeInverterPutMultipleAck, func() Message { return &InverterPutMultipleAck{} }},
	{"DataloggerGetResponse", RecordTypeDataloggerGet, FromDatalogger, decodeDataloggerGetResponse, func() Message { return &DataloggerGetResponse{} }},
	{"DataloggerPutAck", RecordTypeDataloggerPut, FromDatalogger, decodeDataloggerPutAck, func() Message { return &DataloggerPutAck{} }},
}

var variantsByName = func() map[string]variant {
	byName := make(map[string]variant, len(variants))
	for _, v := range variants {
		byName[v.name] = v
	}
	return byName
}()

// Registry maps record types to decoders for one direction. Registries are
// immutable once built and safe for concurrent use.
type Registry struct {
	direction Direction
	entries   map[uint8]variant
}

// Package registries, built once at startup.
var (
	ServerRegistry     = newRegistry(FromServer)
	DataloggerRegistry = newRegistry(FromDatalogger)
)

func newRegistry(direction Direction) *Registry {
	r := &Registry{direction: direction, entries: make(map[uint8]variant)}
	for _, v := range variants {
		if v.direction != direction {
			continue
		}
		if existing, ok := r.entries[v.recordType]; ok {
			panic(fmt.Sprintf("record type 0x%02x registered twice for %s: %s and %s",
				v.recordType, direction, existing.name, v.name))
		}
		r.entries[v.recordType] = v
	}
	return r
}

// RegistryFor returns the package registry for a direction.
func RegistryFor(d Direction) *Registry {
	if d == FromDatalogger {
		return DataloggerRegistry
	}
	return ServerRegistry
}

// Direction returns the direction the registry decodes.
func (r *Registry) Direction() Direction {
	return r.direction
}

// Lookup returns the variant name registered for a record type.
func (r *Registry) Lookup(recordType uint8) (string, bool) {
	v, ok := r.entries[recordType]
	return v.name, ok
}

// RecordTypes returns the registered record types in ascending order.
func (r *Registry) RecordTypes() []uint8 {
	types := make([]uint8, 0, len(r.entries))
	for t := range r.entries {
		types = append(types, t)
	}
	slices.Sort(types)
	return types
}

// Filter returns a registry holding only the variants for which keep returns true.
func (r *Registry) Filter(keep func(name string) bool) *Registry {
	filtered := &Registry{direction: r.direction, entries: make(map[uint8]variant)}
	for t, v := range r.entries {
		if keep(v.name) {
			filtered.entries[t] = v
		}
	}
	return filtered
}

// VariantName returns the record variant name of m, e.g. "InverterPutSingle".
func VariantName(m Message) string {
	t := reflect.TypeOf(m)
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t.Name()
}

// SelectRegistries picks the registries used to decode a capture. Sources
// containing dataloggerAddress came from the datalogger; anything else came
// from the server. An empty dataloggerAddress searches both.
func SelectRegistries(source, dataloggerAddress string) []*Registry {
	if dataloggerAddress == "" {
		return []*Registry{ServerRegistry, DataloggerRegistry}
	}
	if strings.Contains(source, dataloggerAddress) {
		return []*Registry{DataloggerRegistry}
	}
	return []*Registry{ServerRegistry}
}

// Package collector keeps a bounded in-memory set of captured frames and
// writes them to disk for later decoding.
package collector

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/resident-x/grott-messages/internal/domain"
	"github.com/resident-x/grott-messages/internal/protocol"
)

// ErrCollectorFull is returned by Add once the capture limit is reached.
var ErrCollectorFull = errors.New("collector full")

// Defaults used when the configuration leaves them empty.
const (
	DefaultStorePath        = "collected_messages"
	DefaultFilenameTemplate = "{datetime}--{address}-{port}--{record_type}.bin"
	ManifestFilename        = "manifest.yaml"

	// Colons are avoided so stored files are portable.
	filenameTimeLayout = "2006-01-02T15-04-05.000000"
)

// Capture is one raw frame together with where and when it was seen.
type Capture struct {
	Data      []byte
	Address   string
	Port      int
	Timestamp time.Time
}

// RecordType returns header byte 7, or 0 when the capture is shorter than a header.
func (c Capture) RecordType() uint8 {
	if len(c.Data) < protocol.HeaderLength {
		return 0
	}
	return c.Data[7]
}

// Collector stores captures up to a fixed limit. It is safe for concurrent use.
type Collector struct {
	mu          sync.RWMutex
	maxMessages int
	captures    []Capture

	codec             *protocol.Codec
	dataloggerAddress string
	registry          domain.Registry
	logger            zerolog.Logger
	now               func() time.Time
}

// Option configures a Collector.
type Option func(*Collector)

// WithCodec sets the codec used to decode captures.
func WithCodec(codec *protocol.Codec) Option {
	return func(c *Collector) {
		c.codec = codec
	}
}

// WithDataloggerAddress sets the address prefix that marks captures sent by
// the datalogger. See protocol.SelectRegistries.
func WithDataloggerAddress(address string) Option {
	return func(c *Collector) {
		c.dataloggerAddress = address
	}
}

// WithRegistry registers devices from announce captures in registry.
func WithRegistry(registry domain.Registry) Option {
	return func(c *Collector) {
		c.registry = registry
	}
}

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Collector) {
		c.logger = logger.With().Str("component", "collector").Logger()
	}
}

// WithClock overrides time.Now for capture timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Collector) {
		c.now = now
	}
}

// New creates a collector holding at most maxMessages captures. Zero or
// negative means no limit.
func New(maxMessages int, opts ...Option) *Collector {
	c := &Collector{
		maxMessages: maxMessages,
		codec:       protocol.NewCodec(),
		logger:      log.With().Str("component", "collector").Logger(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Add stores a copy of data.
func (c *Collector) Add(data []byte, address string, port int) (Capture, error) {
	capture := Capture{
		Data:      append([]byte(nil), data...),
		Address:   address,
		Port:      port,
		Timestamp: c.now(),
	}

	c.mu.Lock()
	if c.maxMessages > 0 && len(c.captures) >= c.maxMessages {
		c.mu.Unlock()
		return Capture{}, fmt.Errorf("%w: max messages reached (%d)", ErrCollectorFull, c.maxMessages)
	}
	c.captures = append(c.captures, capture)
	count := len(c.captures)
	c.mu.Unlock()

	c.logger.Debug().
		Str("address", address).
		Int("port", port).
		Uint8("record_type", capture.RecordType()).
		Int("size", len(data)).
		Int("count", count).
		Msg("Captured frame")

	if c.registry != nil {
		c.registerDevices(capture)
	}

	return capture, nil
}

// Decode decodes a capture with the registries matching its address.
func (c *Collector) Decode(capture Capture) (protocol.Message, error) {
	msg, _, err := c.codec.Deserialize(capture.Data, protocol.SelectRegistries(capture.Address, c.dataloggerAddress)...)
	return msg, err
}

func (c *Collector) registerDevices(capture Capture) {
	if capture.RecordType() != protocol.RecordTypeAnnounce {
		return
	}

	msg, err := c.Decode(capture)
	if err != nil {
		c.logger.Debug().Err(err).Str("address", capture.Address).Msg("Failed to decode announce")
		return
	}

	announce, ok := msg.(*protocol.Announce)
	if !ok {
		return
	}

	dataloggerID := announce.DataloggerID.String()
	if err := c.registry.RegisterDatalogger(dataloggerID, capture.Address, capture.Port, announce.Protocol); err != nil {
		c.logger.Warn().Err(err).Msg("Failed to register datalogger")
		return
	}
	if err := c.registry.RegisterInverter(dataloggerID, announce.InverterID.String(), announce.DeviceID); err != nil {
		c.logger.Warn().Err(err).Msg("Failed to register inverter")
		return
	}

	c.logger.Info().
		Str("datalogger_id", dataloggerID).
		Str("inverter_id", announce.InverterID.String()).
		Str("address", capture.Address).
		Msg("Registered devices from announce")
}

// Len returns the number of stored captures.
func (c *Collector) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.captures)
}

// Max returns the capture limit.
func (c *Collector) Max() int {
	return c.maxMessages
}

// Captures returns a snapshot of the stored captures in arrival order.
func (c *Collector) Captures() []Capture {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]Capture(nil), c.captures...)
}

// Reset drops all captures.
func (c *Collector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.captures = nil
}

// ManifestEntry describes one stored capture in manifest.yaml.
type ManifestEntry struct {
	File       string    `yaml:"file"`
	Address    string    `yaml:"address"`
	Port       int       `yaml:"port"`
	Timestamp  time.Time `yaml:"timestamp"`
	RecordType uint8     `yaml:"record_type"`
	Size       int       `yaml:"size"`
	Variant    string    `yaml:"variant,omitempty"`
}

// Store writes every capture to its own file under path and a manifest
// describing them. An empty path or template selects the defaults. It returns
// the manifest entries in capture order.
func (c *Collector) Store(path, filenameTemplate string) ([]ManifestEntry, error) {
	if path == "" {
		path = DefaultStorePath
	}
	if filenameTemplate == "" {
		filenameTemplate = DefaultFilenameTemplate
	}

	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	captures := c.Captures()
	entries := make([]ManifestEntry, 0, len(captures))
	used := make(map[string]int, len(captures))

	for _, capture := range captures {
		name, err := filename(filenameTemplate, capture)
		if err != nil {
			return entries, err
		}
		name = uniqueName(used, name)

		if err := os.WriteFile(filepath.Join(path, name), capture.Data, 0o644); err != nil {
			return entries, fmt.Errorf("failed to write capture %s: %w", name, err)
		}

		entry := ManifestEntry{
			File:       name,
			Address:    capture.Address,
			Port:       capture.Port,
			Timestamp:  capture.Timestamp,
			RecordType: capture.RecordType(),
			Size:       len(capture.Data),
		}
		if msg, err := c.Decode(capture); err == nil {
			entry.Variant = protocol.VariantName(msg)
		}
		entries = append(entries, entry)
	}

	manifest, err := yaml.Marshal(entries)
	if err != nil {
		return entries, fmt.Errorf("failed to encode manifest: %w", err)
	}
	if err := os.WriteFile(filepath.Join(path, ManifestFilename), manifest, 0o644); err != nil {
		return entries, fmt.Errorf("failed to write manifest: %w", err)
	}

	c.logger.Info().
		Str("path", path).
		Int("count", len(entries)).
		Msg("Stored captures")

	return entries, nil
}

func filename(template string, capture Capture) (string, error) {
	name := strings.NewReplacer(
		"{datetime}", capture.Timestamp.Format(filenameTimeLayout),
		"{address}", capture.Address,
		"{port}", strconv.Itoa(capture.Port),
		"{record_type}", strconv.Itoa(int(capture.RecordType())),
	).Replace(template)

	if name == "" || name != filepath.Base(name) || name == ManifestFilename {
		return "", fmt.Errorf("invalid capture filename %q from template %q", name, template)
	}
	return name, nil
}

// uniqueName appends -N before the extension when name was already used.
func uniqueName(used map[string]int, name string) string {
	n := used[name]
	used[name] = n + 1
	if n == 0 {
		return name
	}

	ext := filepath.Ext(name)
	candidate := fmt.Sprintf("%s-%d%s", strings.TrimSuffix(name, ext), n, ext)
	return uniqueName(used, candidate)
}

// Export is the JSON form of a capture.
type Export struct {
	Data       string          `json:"data"`
	Address    string          `json:"address"`
	Port       int             `json:"port"`
	Datetime   time.Time       `json:"datetime"`
	RecordType uint8           `json:"record_type"`
	Message    json.RawMessage `json:"message,omitempty"`
	Error      string          `json:"error,omitempty"`
}

// Export returns the captures with hex data and, when the frame decodes, the
// decoded message.
func (c *Collector) Export() []Export {
	captures := c.Captures()
	exports := make([]Export, 0, len(captures))
	for _, capture := range captures {
		e := Export{
			Data:       hex.EncodeToString(capture.Data),
			Address:    capture.Address,
			Port:       capture.Port,
			Datetime:   capture.Timestamp,
			RecordType: capture.RecordType(),
		}

		msg, err := c.Decode(capture)
		if err == nil {
			e.Message, err = protocol.MarshalMessage(msg)
		}
		if err != nil {
			e.Error = err.Error()
		}
		exports = append(exports, e)
	}
	return exports
}

// ToJSON returns Export as a JSON array.
func (c *Collector) ToJSON() ([]byte, error) {
	return json.Marshal(c.Export())
}

// Package main provides the grott-messages command line tool.
package main

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"

	"github.com/resident-x/grott-messages/internal/api"
	"github.com/resident-x/grott-messages/internal/collector"
	"github.com/resident-x/grott-messages/internal/config"
	"github.com/resident-x/grott-messages/internal/domain"
	"github.com/resident-x/grott-messages/internal/protocol"
	"github.com/resident-x/grott-messages/internal/pubsub"
)

var (
	Version = "unknown" // Default version, can be overridden by build flags
)

const usage = `Usage: grott-messages [--config FILE] [--version] <command> [flags]

Commands:
  decode FILE...   decode captured frames
  serve            run the HTTP API
`

func main() {
	code := run(os.Args[1:], os.Stdout, os.Stderr)
	os.Exit(code)
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := pflag.NewFlagSet("grott-messages", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.SetInterspersed(false)
	fs.Usage = func() {
		fmt.Fprint(stderr, usage)
		fs.PrintDefaults()
	}
	configFile := fs.String("config", "", "Path to configuration file")
	showVersion := fs.Bool("version", false, "Show version information")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		return 2
	}

	if *showVersion {
		fmt.Fprintf(stdout, "grott-messages %s\n", Version)
		return 0
	}

	if fs.NArg() == 0 {
		fs.Usage()
		return 2
	}

	switch cmd := fs.Arg(0); cmd {
	case "decode":
		return runDecode(fs.Args()[1:], stdout, stderr)
	case "serve":
		return runServe(*configFile, fs.Args()[1:], stderr)
	default:
		fmt.Fprintf(stderr, "unknown command %q\n\n", cmd)
		fs.Usage()
		return 2
	}
}

// decodeOptions controls how captured frames are decoded.
type decodeOptions struct {
	dataloggerAddress string
	verbose           bool
	includeDatalogger bool
	failOnError       bool
}

func runDecode(args []string, stdout, stderr io.Writer) int {
	fs := pflag.NewFlagSet("decode", pflag.ContinueOnError)
	fs.SetOutput(stderr)

	var opts decodeOptions
	fs.StringVar(&opts.dataloggerAddress, "datalogger-address", config.DefaultConfig().Collector.DataloggerAddress,
		"files whose name contains this address were sent by the datalogger")
	fs.BoolVarP(&opts.verbose, "verbose", "v", false, "print raw and re-serialized frames")
	fs.BoolVar(&opts.includeDatalogger, "include-datalogger", false,
		"include datalogger configuration messages (skipped by default)")
	fs.BoolVar(&opts.failOnError, "fail-on-error", false, "stop at the first frame that fails to decode")
	verifyCRC := fs.Bool("verify-crc", false, "reject encrypted frames with a bad CRC trailer")
	logLevel := fs.String("log-level", "warn", "log level (trace, debug, info, warn, error)")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		return 2
	}
	if fs.NArg() == 0 {
		fmt.Fprintln(stderr, "decode: at least one capture file is required")
		return 2
	}

	initLogger(*logLevel, stderr)

	codec := protocol.NewCodec(protocol.WithCRCVerification(*verifyCRC))
	if err := decodeFiles(codec, opts, fs.Args(), stdout); err != nil {
		log.Error().Err(err).Msg("Decoding failed")
		return 1
	}
	return 0
}

// decodeFiles decodes every file and prints the result. Failures are
// reported and skipped unless failOnError is set.
func decodeFiles(codec *protocol.Codec, opts decodeOptions, files []string, out io.Writer) error {
	for _, file := range files {
		if err := decodeFile(codec, opts, file, out); err != nil && opts.failOnError {
			return err
		}
	}
	return nil
}

func decodeFile(codec *protocol.Codec, opts decodeOptions, file string, out io.Writer) error {
	fmt.Fprintf(out, "\n=== %s ===\n", file)

	registries, ignored := decodeRegistries(file, opts)
	if opts.verbose {
		for _, r := range registries {
			fmt.Fprintf(out, "Using message variants from %s: %s\n", r.Direction(), variantNames(r))
		}
	}

	raw, err := os.ReadFile(file)
	if err != nil {
		fmt.Fprintf(out, "Could not read %s: %v\n", file, err)
		return fmt.Errorf("failed to read %s: %w", file, err)
	}

	msg, _, err := codec.Deserialize(raw, registries...)
	if err != nil {
		fmt.Fprintf(out, "Could not deserialize message in %s: %v\n", file, err)
		if opts.verbose {
			fmt.Fprintf(out, "Raw: %s\n", hex.EncodeToString(raw))
		}
		return fmt.Errorf("failed to decode %s: %w", file, err)
	}

	if ignored[msg.Meta().RecordType] {
		return nil
	}

	doc, err := protocol.MarshalMessage(msg)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Message: %s\n", doc)

	decrypted, err := codec.Open(raw)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Decrypted: %s\n", hex.EncodeToString(decrypted))

	if opts.verbose {
		reserialized, err := codec.Serialize(msg, protocol.WithBodyLength(headerBodyLength(raw)))
		if err != nil {
			return fmt.Errorf("failed to serialize %s: %w", file, err)
		}
		fmt.Fprintln(out, hex.EncodeToString(reserialized))
	}

	return nil
}

// decodeRegistries picks the registry for a capture from its file name and,
// unless datalogger messages are included, strips the Datalogger variants.
// The returned set lists the record types of the stripped variants.
func decodeRegistries(file string, opts decodeOptions) ([]*protocol.Registry, map[uint8]bool) {
	registries := protocol.SelectRegistries(file, opts.dataloggerAddress)
	ignored := make(map[uint8]bool)
	if opts.includeDatalogger {
		return registries, ignored
	}

	filtered := make([]*protocol.Registry, 0, len(registries))
	for _, r := range registries {
		for _, rt := range r.RecordTypes() {
			if name, _ := r.Lookup(rt); isDataloggerVariant(name) {
				ignored[rt] = true
			}
		}
		filtered = append(filtered, r.Filter(func(name string) bool {
			return !isDataloggerVariant(name)
		}))
	}
	return filtered, ignored
}

func isDataloggerVariant(name string) bool {
	return strings.Contains(name, "Datalogger")
}

func variantNames(r *protocol.Registry) string {
	names := make([]string, 0, len(r.RecordTypes()))
	for _, rt := range r.RecordTypes() {
		name, _ := r.Lookup(rt)
		names = append(names, name)
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}

func headerBodyLength(raw []byte) uint16 {
	h, err := protocol.ParseHeader(raw)
	if err != nil {
		return 0
	}
	return h.BodyLength
}

func runServe(configFile string, args []string, stderr io.Writer) int {
	fs := pflag.NewFlagSet("serve", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	config.RegisterFlags(fs)

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		return 2
	}

	// Load configuration
	cfg, err := config.Load(configFile, fs)
	if err != nil {
		fmt.Fprintf(stderr, "Failed to load configuration: %v\n", err)
		return 1
	}

	// Initialize logger with the configured log level
	initLogger(cfg.LogLevel, stderr)

	log.Info().Str("version", Version).Msg("Starting grott-messages server")
	cfg.Print()

	if !cfg.API.Enabled {
		log.Error().Msg("HTTP API is disabled, nothing to serve")
		return 1
	}

	// Initialize context cancelled by SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	publisher := newPublisher(ctx, cfg)
	defer publisher.Close()

	registry := domain.NewDeviceRegistry()
	codec := protocol.NewCodec(
		protocol.WithCRCVerification(cfg.Codec.VerifyCRC),
		protocol.WithMaxFrameLength(cfg.Codec.MaxFrameLength),
	)
	captures := collector.New(cfg.Collector.MaxMessages,
		collector.WithCodec(codec),
		collector.WithRegistry(registry),
		collector.WithDataloggerAddress(cfg.Collector.DataloggerAddress),
	)

	srv := api.NewServer(cfg, registry,
		api.WithCodec(codec),
		api.WithCollector(captures),
		api.WithPublisher(publisher),
		api.WithVersion(Version),
	)
	if err := srv.Start(ctx); err != nil {
		log.Error().Err(err).Msg("Failed to start HTTP API server")
		return 1
	}

	// Wait for shutdown signal
	<-ctx.Done()
	log.Info().Msg("Shutdown signal received")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error stopping server")
		return 1
	}

	log.Info().Int("captures", captures.Len()).Msg("Server stopped")
	return 0
}

// newPublisher connects to MQTT when enabled and falls back to a noop
// publisher otherwise.
func newPublisher(ctx context.Context, cfg *config.Config) domain.MessagePublisher {
	if !cfg.MQTT.Enabled {
		log.Info().Msg("MQTT disabled, using noop publisher")
		return pubsub.NewNoopPublisher()
	}

	mqttPublisher := pubsub.NewMQTTPublisher(cfg)
	if err := mqttPublisher.Connect(ctx); err != nil {
		log.Warn().Err(err).Msg("Failed to connect to MQTT broker, using noop publisher")
		return pubsub.NewNoopPublisher()
	}

	log.Info().Msg("MQTT publisher connected successfully")
	return mqttPublisher
}

// initLogger configures the global zerolog logger.
func initLogger(level string, out io.Writer) {
	output := zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}

	// Parse the log level
	logLevel, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || level == "" {
		fmt.Fprintf(out, "Invalid log level '%s', defaulting to 'info'\n", level)
		logLevel = zerolog.InfoLevel
	}

	// Configure global logger
	zerolog.SetGlobalLevel(logLevel)
	log.Logger = zerolog.New(output).
		With().
		Timestamp().
		Caller().
		Logger()
}

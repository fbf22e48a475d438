// Package config provides configuration management for grott-messages.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/resident-x/grott-messages/internal/protocol"
)

// Config holds all application configuration.
type Config struct {
	// General settings
	LogLevel string `mapstructure:"log_level"`

	// Frame codec settings
	Codec struct {
		VerifyCRC      bool `mapstructure:"verify_crc"`
		MaxFrameLength int  `mapstructure:"max_frame_length"`
	} `mapstructure:"codec"`

	// Capture collector settings
	Collector struct {
		MaxMessages       int    `mapstructure:"max_messages"`
		StorePath         string `mapstructure:"store_path"`
		FilenameTemplate  string `mapstructure:"filename_template"`
		DataloggerAddress string `mapstructure:"datalogger_address"`
	} `mapstructure:"collector"`

	// HTTP API settings
	API struct {
		Enabled bool   `mapstructure:"enabled"`
		Host    string `mapstructure:"host"`
		Port    int    `mapstructure:"port"`
	} `mapstructure:"api"`

	// MQTT settings
	MQTT struct {
		Enabled  bool   `mapstructure:"enabled"`
		Host     string `mapstructure:"host"`
		Port     int    `mapstructure:"port"`
		Username string `mapstructure:"username"`
		Password string `mapstructure:"password"`
		Topic    string `mapstructure:"topic"`
		Retain   bool   `mapstructure:"retain"`
	} `mapstructure:"mqtt"`
}

// DefaultConfig returns a configuration with default values.
func DefaultConfig() *Config {
	cfg := &Config{
		LogLevel: "info",
	}

	// Default codec settings
	cfg.Codec.VerifyCRC = false
	cfg.Codec.MaxFrameLength = protocol.DefaultMaxFrameLength

	// Default collector settings
	cfg.Collector.MaxMessages = 1000
	cfg.Collector.StorePath = "collected_messages"
	cfg.Collector.FilenameTemplate = "{datetime}--{address}-{port}--{record_type}.bin"
	cfg.Collector.DataloggerAddress = "192.168.0"

	// Default API settings
	cfg.API.Enabled = true
	cfg.API.Host = "0.0.0.0"
	cfg.API.Port = 8080

	// Default MQTT settings
	cfg.MQTT.Enabled = false
	cfg.MQTT.Host = "localhost"
	cfg.MQTT.Port = 1883
	cfg.MQTT.Topic = "energy/growatt/messages"
	cfg.MQTT.Retain = false

	return cfg
}

// Flag names bound to configuration keys by Load.
var flagKeys = map[string]string{
	"log-level":          "log_level",
	"verify-crc":         "codec.verify_crc",
	"max-messages":       "collector.max_messages",
	"store-path":         "collector.store_path",
	"datalogger-address": "collector.datalogger_address",
	"api-host":           "api.host",
	"api-port":           "api.port",
	"mqtt":               "mqtt.enabled",
	"mqtt-host":          "mqtt.host",
	"mqtt-port":          "mqtt.port",
	"mqtt-topic":         "mqtt.topic",
}

// RegisterFlags adds the flags understood by Load to fs, using the defaults
// from DefaultConfig.
func RegisterFlags(fs *pflag.FlagSet) {
	def := DefaultConfig()
	fs.String("log-level", def.LogLevel, "log level (trace, debug, info, warn, error)")
	fs.Bool("verify-crc", def.Codec.VerifyCRC, "reject encrypted frames with a bad CRC trailer")
	fs.Int("max-messages", def.Collector.MaxMessages, "maximum number of captures held by the collector (0 for unlimited)")
	fs.String("store-path", def.Collector.StorePath, "directory captures are stored to")
	fs.String("datalogger-address", def.Collector.DataloggerAddress, "address prefix identifying datalogger-side captures")
	fs.String("api-host", def.API.Host, "HTTP API listen host")
	fs.Int("api-port", def.API.Port, "HTTP API listen port")
	fs.Bool("mqtt", def.MQTT.Enabled, "publish decoded messages to MQTT")
	fs.String("mqtt-host", def.MQTT.Host, "MQTT broker host")
	fs.Int("mqtt-port", def.MQTT.Port, "MQTT broker port")
	fs.String("mqtt-topic", def.MQTT.Topic, "MQTT topic prefix")
}

// Load reads the configuration from a file, environment variables and, when
// fs is not nil, command line flags. Flags only override values when they
// were set explicitly.
func Load(configPath string, fs *pflag.FlagSet) (*Config, error) {
	cfg := DefaultConfig()

	// Set up Viper
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	// Override with specific config file if provided
	if configPath != "" {
		v.SetConfigFile(configPath)
	}

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		// Config file not found, use defaults
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if errors.As(err, &configFileNotFoundError) {
			log.Debug().Str("component", "config").Msg("No configuration file found, using defaults")
		} else {
			// Other errors (like invalid YAML) should be returned
			return nil, fmt.Errorf("error reading config: %w", err)
		}
	}

	// Bind environment variables; keys must be known to viper for
	// AutomaticEnv to apply during Unmarshal.
	setDefaults(v, cfg)
	v.SetEnvPrefix("GROTT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if fs != nil {
		for name, key := range flagKeys {
			flag := fs.Lookup(name)
			if flag == nil || !flag.Changed {
				continue
			}
			if err := v.BindPFlag(key, flag); err != nil {
				return nil, fmt.Errorf("unable to bind flag %s: %w", name, err)
			}
		}
	}

	// Unmarshal config
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("log_level", cfg.LogLevel)
	v.SetDefault("codec.verify_crc", cfg.Codec.VerifyCRC)
	v.SetDefault("codec.max_frame_length", cfg.Codec.MaxFrameLength)
	v.SetDefault("collector.max_messages", cfg.Collector.MaxMessages)
	v.SetDefault("collector.store_path", cfg.Collector.StorePath)
	v.SetDefault("collector.filename_template", cfg.Collector.FilenameTemplate)
	v.SetDefault("collector.datalogger_address", cfg.Collector.DataloggerAddress)
	v.SetDefault("api.enabled", cfg.API.Enabled)
	v.SetDefault("api.host", cfg.API.Host)
	v.SetDefault("api.port", cfg.API.Port)
	v.SetDefault("mqtt.enabled", cfg.MQTT.Enabled)
	v.SetDefault("mqtt.host", cfg.MQTT.Host)
	v.SetDefault("mqtt.port", cfg.MQTT.Port)
	v.SetDefault("mqtt.username", cfg.MQTT.Username)
	v.SetDefault("mqtt.password", cfg.MQTT.Password)
	v.SetDefault("mqtt.topic", cfg.MQTT.Topic)
	v.SetDefault("mqtt.retain", cfg.MQTT.Retain)
}

// Print displays the current configuration.
func (c *Config) Print() {
	logger := log.With().Str("component", "config").Logger()
	logger.Info().Msg("grott-messages Configuration:")
	logger.Info().Msg("-----------------------------")
	logger.Info().Str("log_level", c.LogLevel).Msg("Log Level")

	logger.Info().
		Bool("verify_crc", c.Codec.VerifyCRC).
		Int("max_frame_length", c.Codec.MaxFrameLength).
		Msg("Codec")

	logger.Info().
		Int("max_messages", c.Collector.MaxMessages).
		Str("store_path", c.Collector.StorePath).
		Str("filename_template", c.Collector.FilenameTemplate).
		Str("datalogger_address", c.Collector.DataloggerAddress).
		Msg("Collector")

	logger.Info().Bool("enabled", c.API.Enabled).Msg("API Enabled")
	if c.API.Enabled {
		logger.Info().
			Str("host", c.API.Host).
			Int("port", c.API.Port).
			Msg("API Server")
	}

	logger.Info().Bool("enabled", c.MQTT.Enabled).Msg("MQTT Enabled")
	if c.MQTT.Enabled {
		logger.Info().
			Str("host", c.MQTT.Host).
			Int("port", c.MQTT.Port).
			Str("topic", c.MQTT.Topic).
			Bool("retain", c.MQTT.Retain).
			Msg("MQTT Configuration")
	}

	logger.Info().Msg("-----------------------------")
}

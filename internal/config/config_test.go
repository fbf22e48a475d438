package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "info", cfg.LogLevel)

	// Codec defaults
	assert.Equal(t, false, cfg.Codec.VerifyCRC)
	assert.Equal(t, 65543, cfg.Codec.MaxFrameLength)

	// Collector defaults
	assert.Equal(t, 1000, cfg.Collector.MaxMessages)
	assert.Equal(t, "collected_messages", cfg.Collector.StorePath)
	assert.Equal(t, "{datetime}--{address}-{port}--{record_type}.bin", cfg.Collector.FilenameTemplate)
	assert.Equal(t, "192.168.0", cfg.Collector.DataloggerAddress)

	// API defaults
	assert.Equal(t, true, cfg.API.Enabled)
	assert.Equal(t, "0.0.0.0", cfg.API.Host)
	assert.Equal(t, 8080, cfg.API.Port)

	// MQTT defaults
	assert.Equal(t, false, cfg.MQTT.Enabled)
	assert.Equal(t, "localhost", cfg.MQTT.Host)
	assert.Equal(t, 1883, cfg.MQTT.Port)
	assert.Equal(t, "energy/growatt/messages", cfg.MQTT.Topic)
	assert.Equal(t, false, cfg.MQTT.Retain)
}

func TestLoadConfigWithNonExistentFile(t *testing.T) {
	_, err := Load("nonexistent_config.yaml", nil)

	// Should error when file doesn't exist
	require.Error(t, err)
	assert.Contains(t, err.Error(), "error reading config")
}

func TestLoadConfigWithValidYAML(t *testing.T) {
	tempDir := t.TempDir()
	configFile := filepath.Join(tempDir, "test_config.yaml")

	configContent := `
log_level: debug
codec:
  verify_crc: true
  max_frame_length: 4096
collector:
  max_messages: 50
  store_path: /tmp/captures
  filename_template: "{record_type}-{port}.bin"
  datalogger_address: 10.0.0
api:
  enabled: false
  host: 192.168.1.1
  port: 9000
mqtt:
  enabled: true
  host: mqtt.example.com
  port: 8883
  username: testuser
  password: testpass
  topic: test/topic
  retain: true
`

	err := os.WriteFile(configFile, []byte(configContent), 0o644)
	require.NoError(t, err)

	cfg, err := Load(configFile, nil)
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, "debug", cfg.LogLevel)

	assert.Equal(t, true, cfg.Codec.VerifyCRC)
	assert.Equal(t, 4096, cfg.Codec.MaxFrameLength)

	assert.Equal(t, 50, cfg.Collector.MaxMessages)
	assert.Equal(t, "/tmp/captures", cfg.Collector.StorePath)
	assert.Equal(t, "{record_type}-{port}.bin", cfg.Collector.FilenameTemplate)
	assert.Equal(t, "10.0.0", cfg.Collector.DataloggerAddress)

	assert.Equal(t, false, cfg.API.Enabled)
	assert.Equal(t, "192.168.1.1", cfg.API.Host)
	assert.Equal(t, 9000, cfg.API.Port)

	assert.Equal(t, true, cfg.MQTT.Enabled)
	assert.Equal(t, "mqtt.example.com", cfg.MQTT.Host)
	assert.Equal(t, 8883, cfg.MQTT.Port)
	assert.Equal(t, "testuser", cfg.MQTT.Username)
	assert.Equal(t, "testpass", cfg.MQTT.Password)
	assert.Equal(t, "test/topic", cfg.MQTT.Topic)
	assert.Equal(t, true, cfg.MQTT.Retain)
}

func TestLoadConfigPartialYAMLKeepsDefaults(t *testing.T) {
	configFile := filepath.Join(t.TempDir(), "partial.yaml")
	require.NoError(t, os.WriteFile(configFile, []byte("collector:\n  max_messages: 5\n"), 0o644))

	cfg, err := Load(configFile, nil)
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.Collector.MaxMessages)
	assert.Equal(t, "collected_messages", cfg.Collector.StorePath)
	assert.Equal(t, 8080, cfg.API.Port)
}

func TestLoadConfigWithInvalidYAML(t *testing.T) {
	tempDir := t.TempDir()
	configFile := filepath.Join(tempDir, "invalid_config.yaml")

	invalidContent := `
invalid: yaml: content: [
`

	err := os.WriteFile(configFile, []byte(invalidContent), 0o644)
	require.NoError(t, err)

	_, err = Load(configFile, nil)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "error reading config")
}

func TestLoadConfigFromEnvironment(t *testing.T) {
	t.Setenv("GROTT_LOG_LEVEL", "warn")
	t.Setenv("GROTT_CODEC_VERIFY_CRC", "true")
	t.Setenv("GROTT_MQTT_PORT", "1884")

	configFile := filepath.Join(t.TempDir(), "empty.yaml")
	require.NoError(t, os.WriteFile(configFile, []byte("api:\n  port: 9000\n"), 0o644))

	cfg, err := Load(configFile, nil)
	require.NoError(t, err)

	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, true, cfg.Codec.VerifyCRC)
	assert.Equal(t, 1884, cfg.MQTT.Port)
	assert.Equal(t, 9000, cfg.API.Port)
}

func TestLoadConfigWithFlags(t *testing.T) {
	configFile := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(configFile, []byte("api:\n  port: 9000\ncollector:\n  max_messages: 5\n"), 0o644))

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs)
	require.NoError(t, fs.Parse([]string{"--api-port", "9100", "--mqtt", "--datalogger-address", "172.16"}))

	cfg, err := Load(configFile, fs)
	require.NoError(t, err)

	// Explicit flags override the file, unset flags leave it alone.
	assert.Equal(t, 9100, cfg.API.Port)
	assert.Equal(t, true, cfg.MQTT.Enabled)
	assert.Equal(t, "172.16", cfg.Collector.DataloggerAddress)
	assert.Equal(t, 5, cfg.Collector.MaxMessages)
}

func TestPrint(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LogLevel = "debug"
	cfg.MQTT.Enabled = true

	// This test mainly ensures Print() doesn't panic
	assert.NotPanics(t, func() {
		cfg.Print()
	})
}

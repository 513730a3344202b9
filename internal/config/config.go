// Package config loads the service configuration from a TOML file.
// Values absent from the file keep their defaults.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// ErrInvalidConfig is returned when a decoded configuration fails validation.
var ErrInvalidConfig = errors.New("invalid config")

// Duration is a time.Duration written as a Go duration string ("15m").
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// HTTP configures the intake and status server.
type HTTP struct {
	Addr string `toml:"addr"` // empty disables the server
}

// MQTT configures the result publisher.
type MQTT struct {
	Broker     string `toml:"broker"` // empty disables publishing
	ClientID   string `toml:"client_id"`
	BufferSize int    `toml:"buffer_size"`
}

// Log configures the process logger.
type Log struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Service holds daemon-level settings.
type Service struct {
	Heartbeat Duration `toml:"heartbeat"` // 0 disables heartbeats
}

// Config is the full service configuration.
type Config struct {
	HTTP    HTTP    `toml:"http"`
	MQTT    MQTT    `toml:"mqtt"`
	Log     Log     `toml:"log"`
	Service Service `toml:"service"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		HTTP: HTTP{Addr: ":8080"},
		MQTT: MQTT{
			Broker:     "tcp://localhost:1883",
			ClientID:   "asthma-review",
			BufferSize: 100,
		},
		Log:     Log{Level: "info", Format: "text"},
		Service: Service{Heartbeat: Duration{15 * time.Minute}},
	}
}

// Parse decodes TOML content over the defaults and validates the result.
// Unknown keys are rejected.
func Parse(content []byte) (*Config, error) {
	cfg := Default()
	dec := toml.NewDecoder(bytes.NewReader(content)).DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile reads and parses the file at path.
func LoadFile(path string) (*Config, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(content)
}

// Validate checks values that would otherwise fail at startup.
func (c *Config) Validate() error {
	if c.Service.Heartbeat.Duration < 0 {
		return fmt.Errorf("%w: service.heartbeat must not be negative", ErrInvalidConfig)
	}
	if c.MQTT.BufferSize < 1 {
		return fmt.Errorf("%w: mqtt.buffer_size must be at least 1", ErrInvalidConfig)
	}
	if c.MQTT.Broker != "" && c.MQTT.ClientID == "" {
		return fmt.Errorf("%w: mqtt.client_id is required when a broker is set", ErrInvalidConfig)
	}
	return nil
}

// Package config loads cow-shake settings from a YAML file with
// environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Mteixeira88/cow-shake/logger"
	"github.com/Mteixeira88/cow-shake/session"
	"github.com/Mteixeira88/cow-shake/transport"
	"github.com/Mteixeira88/cow-shake/util"
	"github.com/Mteixeira88/cow-shake/wire"
)

// LogLevelEnv overrides the configured log level
const LogLevelEnv = "COWSHAKE_LOG_LEVEL"

// Transport names
const (
	TransportWire = "wire" // socket simulator
	TransportBLE  = "ble"  // real radio
)

// Protocol holds the GATT identifiers and timers
type Protocol struct {
	ServiceUUID        string `yaml:"service_uuid"`
	CharacteristicUUID string `yaml:"characteristic_uuid"`

	MaxRetries       int `yaml:"max_retries"`
	RetryDelayMS     int `yaml:"retry_delay_ms"`
	ReceiveTimeoutMS int `yaml:"receive_timeout_ms"`
	ScanTimeoutMS    int `yaml:"scan_timeout_ms"`
}

// Timings converts the millisecond fields for session.WithTimings
func (p Protocol) Timings() session.Timings {
	return session.Timings{
		MaxRetries:     p.MaxRetries,
		RetryDelay:     time.Duration(p.RetryDelayMS) * time.Millisecond,
		ReceiveTimeout: time.Duration(p.ReceiveTimeoutMS) * time.Millisecond,
		ScanTimeout:    time.Duration(p.ScanTimeoutMS) * time.Millisecond,
	}
}

// Config is the on-disk configuration
type Config struct {
	DataDir    string                 `yaml:"data_dir"`
	LogLevel   string                 `yaml:"log_level"`
	Transport  string                 `yaml:"transport"`
	DeviceName string                 `yaml:"device_name"`
	EventsAddr string                 `yaml:"events_addr,omitempty"`
	Protocol   Protocol               `yaml:"protocol"`
	Simulation *wire.SimulationConfig `yaml:"simulation,omitempty"`
}

// Default returns the built-in configuration
func Default() *Config {
	t := session.DefaultTimings()
	return &Config{
		DataDir:    util.GetDataDir(),
		LogLevel:   logger.INFO.String(),
		Transport:  TransportWire,
		DeviceName: defaultDeviceName(),
		Protocol: Protocol{
			ServiceUUID:        transport.ServiceUUID,
			CharacteristicUUID: transport.CharacteristicUUID,
			MaxRetries:         t.MaxRetries,
			RetryDelayMS:       int(t.RetryDelay / time.Millisecond),
			ReceiveTimeoutMS:   int(t.ReceiveTimeout / time.Millisecond),
			ScanTimeoutMS:      int(t.ScanTimeout / time.Millisecond),
		},
		Simulation: wire.DefaultSimulationConfig(),
	}
}

func defaultDeviceName() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return "cow"
	}
	return host
}

// Path returns the default config file location
func Path() string {
	return filepath.Join(util.GetDataDir(), "config.yaml")
}

// Load reads path over the defaults. A missing file is not an error.
// Environment overrides are applied last.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("failed to read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	}

	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv applies COWSHAKE_DIR and COWSHAKE_LOG_LEVEL
func (c *Config) ApplyEnv() {
	if dir := os.Getenv(util.DataDirEnv); dir != "" {
		c.DataDir = dir
	}
	if lvl := os.Getenv(LogLevelEnv); lvl != "" {
		c.LogLevel = lvl
	}
}

// Validate rejects settings the session cannot run with
func (c *Config) Validate() error {
	switch c.Transport {
	case TransportWire, TransportBLE:
	default:
		return fmt.Errorf("unknown transport %q (want %s or %s)", c.Transport, TransportWire, TransportBLE)
	}
	if c.DataDir == "" {
		return errors.New("data_dir must be set")
	}
	if c.Protocol.ServiceUUID == "" || c.Protocol.CharacteristicUUID == "" {
		return errors.New("protocol service and characteristic uuids must be set")
	}
	p := c.Protocol
	if p.MaxRetries < 0 || p.RetryDelayMS < 0 || p.ReceiveTimeoutMS < 0 || p.ScanTimeoutMS < 0 {
		return errors.New("protocol timings must not be negative")
	}
	if s := c.Simulation; s != nil {
		for name, rate := range map[string]float64{
			"connection_failure_rate": s.ConnectionFailureRate,
			"packet_loss_rate":        s.PacketLossRate,
			"status_failure_rate":     s.StatusFailureRate,
		} {
			if rate < 0 || rate > 1 {
				return fmt.Errorf("simulation %s must be within [0,1], got %v", name, rate)
			}
		}
	}
	return nil
}

// Save writes the configuration as YAML
func (c *Config) Save(path string) error {
	out, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config dir: %w", err)
	}
	return os.WriteFile(path, out, 0644)
}

// SessionOptions translates the protocol section into session options
func (c *Config) SessionOptions() []session.Option {
	return []session.Option{
		session.WithName(c.DeviceName),
		session.WithTimings(c.Protocol.Timings()),
		session.WithUUIDs(c.Protocol.ServiceUUID, c.Protocol.CharacteristicUUID),
	}
}

// Package config holds the tool's runtime configuration: bus selection,
// daemon naming, timeouts, output format, and the logger factory.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Bus selection values. Anything else is treated as a raw bus address.
const (
	BusSystem  = "system"
	BusSession = "session"
)

// Output format values.
const (
	OutputTable = "table"
	OutputJSON  = "json"
)

// Config is the tool configuration. DefaultConfig fills every field from
// its default tag; a YAML file layers on top of that.
type Config struct {
	// LogLevel is a logrus level name (panic, fatal, error, warn, info,
	// debug, trace).
	LogLevel string `yaml:"log_level" default:"warning"`

	// Bus selects the connection: system, session, or a raw bus address
	// ("unix:path=/run/mybus").
	Bus string `yaml:"bus" default:"system"`

	// Service is the daemon's well-known bus name.
	Service string `yaml:"service" default:"org.bluez"`

	// CallTimeout bounds each remote call issued by the CLI.
	CallTimeout time.Duration `yaml:"call_timeout" default:"10s"`

	// DiscoveryDuration is how long a discovery session runs by default.
	DiscoveryDuration time.Duration `yaml:"discovery_duration" default:"10s"`

	// OutputFormat picks the CLI rendering.
	OutputFormat string `yaml:"output_format" default:"table"`
}

// DefaultConfig returns the configuration with every field at its default.
func DefaultConfig() *Config {
	cfg := &Config{}
	defaults.SetDefaults(cfg)
	return cfg
}

// UnmarshalYAML overrides only the fields the document sets, so a partial
// file layers over whatever the receiver already holds.
func (c *Config) UnmarshalYAML(value *yaml.Node) error {
	type raw struct {
		LogLevel          *string `yaml:"log_level"`
		Bus               *string `yaml:"bus"`
		Service           *string `yaml:"service"`
		CallTimeout       *string `yaml:"call_timeout"`
		DiscoveryDuration *string `yaml:"discovery_duration"`
		OutputFormat      *string `yaml:"output_format"`
	}
	var r raw
	if err := value.Decode(&r); err != nil {
		return err
	}

	if r.LogLevel != nil {
		c.LogLevel = *r.LogLevel
	}
	if r.Bus != nil {
		c.Bus = *r.Bus
	}
	if r.Service != nil {
		c.Service = *r.Service
	}
	if r.CallTimeout != nil {
		d, err := time.ParseDuration(*r.CallTimeout)
		if err != nil {
			return fmt.Errorf("invalid call_timeout: %w", err)
		}
		c.CallTimeout = d
	}
	if r.DiscoveryDuration != nil {
		d, err := time.ParseDuration(*r.DiscoveryDuration)
		if err != nil {
			return fmt.Errorf("invalid discovery_duration: %w", err)
		}
		c.DiscoveryDuration = d
	}
	if r.OutputFormat != nil {
		c.OutputFormat = *r.OutputFormat
	}
	return nil
}

// Load layers YAML bytes over the defaults and validates the result.
func Load(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile reads path and layers it over the defaults.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Load(data)
}

// Validate checks the enum and range constraints.
func (c *Config) Validate() error {
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid log_level %q", c.LogLevel)
	}
	switch c.Bus {
	case BusSystem, BusSession:
	default:
		// Raw bus addresses carry a transport prefix ("unix:...").
		if !strings.Contains(c.Bus, ":") {
			return fmt.Errorf("invalid bus %q (system, session, or a bus address)", c.Bus)
		}
	}
	if c.Service == "" {
		return errors.New("service must not be empty")
	}
	if c.CallTimeout <= 0 {
		return fmt.Errorf("call_timeout must be positive, got %s", c.CallTimeout)
	}
	if c.DiscoveryDuration <= 0 {
		return fmt.Errorf("discovery_duration must be positive, got %s", c.DiscoveryDuration)
	}
	switch c.OutputFormat {
	case OutputTable, OutputJSON:
	default:
		return fmt.Errorf("invalid output_format %q (table, json)", c.OutputFormat)
	}
	return nil
}

// NewLogger builds the configured logger: text formatter with full RFC3339
// timestamps, level from LogLevel.
func (c *Config) NewLogger() (*logrus.Logger, error) {
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid log_level %q", c.LogLevel)
	}

	logger := logrus.New()
	logger.SetLevel(level)
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})
	return logger, nil
}

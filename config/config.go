// Package config loads settings from defaults, an optional file and ESCPOS_* environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/nixxel-company-limited/escpos-printkit/adapter"
	"github.com/nixxel-company-limited/escpos-printkit/discovery"
	"github.com/nixxel-company-limited/escpos-printkit/driver"
	"github.com/nixxel-company-limited/escpos-printkit/identify"
)

// EnvPrefix is prepended to every environment override, e.g. ESCPOS_SERVER_ADDRESS
const EnvPrefix = "ESCPOS"

// Config is the typed view of all settings
type Config struct {
	Server struct {
		Address string `mapstructure:"address"`
		// Printer is the port spec the bridge forwards to; empty picks the first USB printer
		Printer string `mapstructure:"printer"`
	} `mapstructure:"server"`
	API struct {
		Address string `mapstructure:"address"`
	} `mapstructure:"api"`
	Transport struct {
		ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
		WriteTimeout   time.Duration `mapstructure:"write_timeout"`
		Grace          time.Duration `mapstructure:"grace"`
	} `mapstructure:"transport"`
	Identify struct {
		Timeout         time.Duration `mapstructure:"timeout"`
		RequireResponse bool          `mapstructure:"require_response"`
	} `mapstructure:"identify"`
	Discovery struct {
		Port           int           `mapstructure:"port"`
		Timeout        time.Duration `mapstructure:"timeout"`
		WindowBits     int           `mapstructure:"window_bits"`
		CIDR           string        `mapstructure:"cidr"`
		MaxConcurrency int           `mapstructure:"max_concurrency"`
	} `mapstructure:"discovery"`
	Printer struct {
		// Columns overrides every model's line width when positive
		Columns  int    `mapstructure:"columns"`
		Codepage string `mapstructure:"codepage"`
	} `mapstructure:"printer"`
}

// SetDefaults registers every key with its default value
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.address", "localhost:9100")
	v.SetDefault("server.printer", "")
	v.SetDefault("api.address", "localhost:8080")
	v.SetDefault("transport.connect_timeout", adapter.DefaultConnectTimeout)
	v.SetDefault("transport.write_timeout", adapter.DefaultWriteTimeout)
	v.SetDefault("transport.grace", adapter.DefaultGrace)
	v.SetDefault("identify.timeout", identify.DefaultTimeout)
	v.SetDefault("identify.require_response", false)
	v.SetDefault("discovery.port", discovery.DefaultProbePort)
	v.SetDefault("discovery.timeout", discovery.DefaultProbeTimeout)
	v.SetDefault("discovery.window_bits", discovery.DefaultWindowBits)
	v.SetDefault("discovery.cidr", "")
	v.SetDefault("discovery.max_concurrency", 0)
	v.SetDefault("printer.columns", 0)
	v.SetDefault("printer.codepage", "")
}

// New returns a viper instance with defaults and environment overrides, and no file
func New() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads path when it is not empty and decodes the result
func Load(path string) (*Config, error) {
	v := New()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	return Decode(v)
}

// Decode unmarshals v into a Config
func Decode(v *viper.Viper) (*Config, error) {
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &c, nil
}

// TransportOptions converts the transport section
func (c *Config) TransportOptions() adapter.Options {
	return adapter.Options{
		ConnectTimeout: c.Transport.ConnectTimeout,
		WriteTimeout:   c.Transport.WriteTimeout,
		Grace:          c.Transport.Grace,
	}
}

// ScanConfig converts the discovery section
func (c *Config) ScanConfig() discovery.ScanConfig {
	return discovery.ScanConfig{
		Port:           c.Discovery.Port,
		Timeout:        c.Discovery.Timeout,
		WindowBits:     c.Discovery.WindowBits,
		MaxConcurrency: c.Discovery.MaxConcurrency,
	}
}

// DriverOptions converts the identify and printer sections.
// Zero columns keeps each model's own line width.
func (c *Config) DriverOptions() driver.Options {
	return driver.Options{
		RequireResponse: c.Identify.RequireResponse,
		Columns:         c.Printer.Columns,
		Codepage:        c.Printer.Codepage,
	}
}

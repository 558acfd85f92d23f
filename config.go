package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Config holds the application configuration
type Config struct {
	// BindAddress is the address the server listens on (e.g. "0.0.0.0:8080")
	BindAddress string `yaml:"bind_address" toml:"bind_address"`
	// SerialPort is the path to the modem's serial port (e.g. "/dev/ttyUSB0")
	SerialPort string `yaml:"serial_port" toml:"serial_port"`
	// BaudRate is the baud rate for serial communication with the modem (e.g. 115200)
	BaudRate int `yaml:"baud_rate" toml:"baud_rate"`
	// ResetPin is the modem-control line wired to the modem reset input
	// ("dtr", "rts" or "none")
	ResetPin string `yaml:"reset_pin" toml:"reset_pin"`
	// LogLevel sets the logging level (e.g. "debug", "info", "warn", "error")
	LogLevel string `yaml:"log_level" toml:"log_level"`

	// APN is the access point name of the cellular data bearer
	APN string `yaml:"apn" toml:"apn"`
	// BrokerHost and BrokerPort address the MQTT broker
	BrokerHost string `yaml:"broker_host" toml:"broker_host"`
	BrokerPort int    `yaml:"broker_port" toml:"broker_port"`
	ClientID   string `yaml:"client_id" toml:"client_id"`
	Username   string `yaml:"username" toml:"username"`
	Password   string `yaml:"password" toml:"password"`
	// KeepAlive is the MQTT keep-alive interval; pings are sent at this period
	KeepAlive time.Duration `yaml:"keep_alive" toml:"keep_alive"`
	// Topic is subscribed once the session is up; empty disables it
	Topic string `yaml:"topic" toml:"topic"`
}

// ConfigOption is a function that modifies a Config
type ConfigOption func(*Config) error

// LoadConfig creates a new config by applying the given options in order
func LoadConfig(opts ...ConfigOption) (*Config, error) {
	config := &Config{}

	for _, opt := range opts {
		if err := opt(config); err != nil {
			return nil, err
		}
	}

	return config, nil
}

// WithDefaults applies default configuration values
func WithDefaults() ConfigOption {
	return func(c *Config) error {
		c.BindAddress = "0.0.0.0:8080"
		c.SerialPort = "/dev/ttyUSB0"
		c.BaudRate = 115200
		c.ResetPin = "none"
		c.LogLevel = "info"
		c.APN = "internet"
		c.BrokerPort = 1883
		c.ClientID = "simmqtt"
		c.KeepAlive = 60 * time.Second
		return nil
	}
}

// WithFile overlays settings from a YAML or TOML file, chosen by extension.
// An empty path is ignored.
func WithFile(path string) ConfigOption {
	return func(c *Config) error {
		if path == "" {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read config file: %w", err)
		}

		switch ext := strings.ToLower(filepath.Ext(path)); ext {
		case ".yaml", ".yml":
			if err := yaml.Unmarshal(data, c); err != nil {
				return fmt.Errorf("parse %s: %w", path, err)
			}
		case ".toml":
			if err := toml.Unmarshal(data, c); err != nil {
				return fmt.Errorf("parse %s: %w", path, err)
			}
		default:
			return fmt.Errorf("unsupported config file type %q", ext)
		}
		return nil
	}
}

// WithEnv loads configuration from environment variables
func WithEnv() ConfigOption {
	return func(c *Config) error {
		strs := map[string]*string{
			"BIND_ADDRESS": &c.BindAddress,
			"SERIAL_PORT":  &c.SerialPort,
			"RESET_PIN":    &c.ResetPin,
			"LOG_LEVEL":    &c.LogLevel,
			"APN":          &c.APN,
			"MQTT_HOST":    &c.BrokerHost,
			"MQTT_CLIENT":  &c.ClientID,
			"MQTT_USER":    &c.Username,
			"MQTT_PASS":    &c.Password,
			"MQTT_TOPIC":   &c.Topic,
		}
		for key, dst := range strs {
			if v := os.Getenv(key); v != "" {
				*dst = v
			}
		}

		if baud := os.Getenv("BAUD_RATE"); baud != "" {
			if b, err := strconv.Atoi(baud); err == nil {
				c.BaudRate = b
			}
		}

		if port := os.Getenv("MQTT_PORT"); port != "" {
			if p, err := strconv.Atoi(port); err == nil {
				c.BrokerPort = p
			}
		}

		if ka := os.Getenv("MQTT_KEEP_ALIVE"); ka != "" {
			if d, err := time.ParseDuration(ka); err == nil {
				c.KeepAlive = d
			}
		}

		return nil
	}
}

// WithFlags loads configuration from command-line flags
func WithFlags(fSet *flag.FlagSet) ConfigOption {
	return func(c *Config) error {
		fSet.Visit(func(f *flag.Flag) {
			switch f.Name {
			case "bind-address":
				c.BindAddress = f.Value.String()
			case "serial-port":
				c.SerialPort = f.Value.String()
			case "baud-rate":
				if b, err := strconv.Atoi(f.Value.String()); err == nil {
					c.BaudRate = b
				}
			case "reset-pin":
				c.ResetPin = f.Value.String()
			case "log-level":
				c.LogLevel = f.Value.String()
			case "apn":
				c.APN = f.Value.String()
			case "broker-host":
				c.BrokerHost = f.Value.String()
			case "broker-port":
				if p, err := strconv.Atoi(f.Value.String()); err == nil {
					c.BrokerPort = p
				}
			case "client-id":
				c.ClientID = f.Value.String()
			case "username":
				c.Username = f.Value.String()
			case "password":
				c.Password = f.Value.String()
			case "keep-alive":
				if d, err := time.ParseDuration(f.Value.String()); err == nil {
					c.KeepAlive = d
				}
			case "topic":
				c.Topic = f.Value.String()
			}
		})
		return nil
	}
}

// Validate checks the settings needed to bring up a session.
func (c *Config) Validate() error {
	if c.BrokerHost == "" {
		return fmt.Errorf("broker host is required")
	}
	if c.BrokerPort <= 0 || c.BrokerPort > 65535 {
		return fmt.Errorf("broker port %d out of range", c.BrokerPort)
	}
	if c.KeepAlive < 0 || c.KeepAlive > 65535*time.Second {
		return fmt.Errorf("keep alive %s out of range", c.KeepAlive)
	}
	return nil
}

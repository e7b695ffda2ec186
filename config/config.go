// Package config provides YAML configuration parsing for the nasbridge
// binary.
//
// Example configuration:
//
//	nas:
//	  host: 192.168.1.10
//	  username: ${UGREEN_USER}
//	  password: ${UGREEN_PASS}
//
//	poll:
//	  config_interval: 60s
//	  status_interval: 5s
//
//	mqtt:
//	  broker: tcp://localhost:1883
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// minInterval is the shortest allowed poll interval.
const minInterval = 1 * time.Second

const (
	defaultNASPort        = 9999
	defaultAuthPort       = 4115
	defaultConfigInterval = 60 * time.Second
	defaultStatusInterval = 5 * time.Second
	defaultMaxConcurrency = 4
	defaultServerPort     = 8080
	defaultTitle          = "UGREEN NAS"
)

// Config is the root configuration structure.
//
// It maps directly to the YAML configuration file structure.
// Use [Load] or [Parse] to create a Config from YAML.
type Config struct {
	NAS    NASConfig    `yaml:"nas"`
	Poll   PollConfig   `yaml:"poll"`
	Format FormatConfig `yaml:"format"`
	Server ServerConfig `yaml:"server"`
	MQTT   MQTTConfig   `yaml:"mqtt"`
}

// NASConfig locates the NAS and holds its credentials.
//
// Host, Username and Password support ${VAR} and ${VAR:-default}.
type NASConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	AuthPort int    `yaml:"auth_port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`

	UseHTTPS  bool `yaml:"use_https"`
	VerifyTLS bool `yaml:"verify_tls"`

	// Timeout bounds each request. Zero uses the client default.
	Timeout Duration `yaml:"timeout"`
	// AuthTimeout bounds each token request. Zero uses the client default.
	AuthTimeout Duration `yaml:"auth_timeout"`
}

// PollConfig sets the two refresh cadences.
type PollConfig struct {
	// ConfigInterval refreshes configuration values. Defaults to 60s.
	ConfigInterval Duration `yaml:"config_interval"`

	// StatusInterval refreshes live status values. Defaults to 5s.
	StatusInterval Duration `yaml:"status_interval"`

	// MaxConcurrency bounds concurrent fetches within a cycle. Defaults to 4.
	MaxConcurrency int `yaml:"max_concurrency"`
}

// FormatConfig tunes value formatting.
type FormatConfig struct {
	TemperatureDecimals int `yaml:"temperature_decimals"`
}

// ServerConfig configures the dashboard server.
type ServerConfig struct {
	Port    int    `yaml:"port"`
	Title   string `yaml:"title"`
	Metrics bool   `yaml:"metrics"`
}

// MQTTConfig enables Home Assistant discovery when Broker is set.
//
// Broker, Username and Password support environment variable substitution.
type MQTTConfig struct {
	Broker          string `yaml:"broker"`
	ClientID        string `yaml:"client_id"`
	Username        string `yaml:"username"`
	Password        string `yaml:"password"`
	DiscoveryPrefix string `yaml:"discovery_prefix"`
	TopicPrefix     string `yaml:"topic_prefix"`
}

// Enabled reports whether a broker is configured.
func (m MQTTConfig) Enabled() bool {
	return m.Broker != ""
}

// Duration wraps time.Duration for YAML unmarshalling.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}

	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}

	*d = Duration(parsed)
	return nil
}

// Duration returns the underlying time.Duration value.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// envVarPattern matches ${VAR} and ${VAR:-default}.
// Group 1: variable name
// Group 2: the ":-default" part, present when a default was given
// Group 3: the default value, possibly empty
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(:-([^}]*))?\}`)

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment values.
func expandEnvVars(s string) (string, error) {
	var firstErr error

	result := envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		if firstErr != nil {
			return match
		}

		m := envVarPattern.FindStringSubmatch(match)
		if len(m) < 2 {
			return match
		}

		name := m[1]
		hasDefault := len(m) > 2 && m[2] != ""

		value, exists := os.LookupEnv(name)
		if !exists {
			if hasDefault {
				return m[3]
			}
			firstErr = fmt.Errorf("environment variable %q is not set", name)
			return match
		}
		return value
	})

	if firstErr != nil {
		return "", firstErr
	}
	return result, nil
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse parses YAML configuration data, applies defaults, expands
// environment variables and validates the result.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.expandAndValidate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.NAS.Port == 0 {
		c.NAS.Port = defaultNASPort
	}
	if c.NAS.AuthPort == 0 {
		c.NAS.AuthPort = defaultAuthPort
	}
	if c.Poll.ConfigInterval == 0 {
		c.Poll.ConfigInterval = Duration(defaultConfigInterval)
	}
	if c.Poll.StatusInterval == 0 {
		c.Poll.StatusInterval = Duration(defaultStatusInterval)
	}
	if c.Poll.MaxConcurrency == 0 {
		c.Poll.MaxConcurrency = defaultMaxConcurrency
	}
	if c.Server.Port == 0 {
		c.Server.Port = defaultServerPort
	}
	if c.Server.Title == "" {
		c.Server.Title = defaultTitle
	}
}

// expandAndValidate expands environment variables and validates the config.
func (c *Config) expandAndValidate() error {
	for _, f := range []struct {
		name string
		ptr  *string
	}{
		{"nas.host", &c.NAS.Host},
		{"nas.username", &c.NAS.Username},
		{"nas.password", &c.NAS.Password},
		{"mqtt.broker", &c.MQTT.Broker},
		{"mqtt.username", &c.MQTT.Username},
		{"mqtt.password", &c.MQTT.Password},
	} {
		expanded, err := expandEnvVars(*f.ptr)
		if err != nil {
			return fmt.Errorf("%s: %w", f.name, err)
		}
		*f.ptr = expanded
	}

	if c.NAS.Host == "" {
		return errors.New("nas.host is required")
	}
	if c.NAS.Username == "" || c.NAS.Password == "" {
		return errors.New("nas.username and nas.password are required")
	}
	for _, p := range []struct {
		name string
		port int
	}{
		{"nas.port", c.NAS.Port},
		{"nas.auth_port", c.NAS.AuthPort},
		{"server.port", c.Server.Port},
	} {
		if p.port < 1 || p.port > 65535 {
			return fmt.Errorf("%s must be between 1 and 65535, got %d", p.name, p.port)
		}
	}
	if c.NAS.Timeout < 0 {
		return fmt.Errorf("nas.timeout cannot be negative, got %s", c.NAS.Timeout.Duration())
	}
	if c.NAS.AuthTimeout < 0 {
		return fmt.Errorf("nas.auth_timeout cannot be negative, got %s", c.NAS.AuthTimeout.Duration())
	}

	if d := c.Poll.StatusInterval.Duration(); d < minInterval {
		return fmt.Errorf("poll.status_interval must be at least %s, got %s", minInterval, d)
	}
	if d := c.Poll.ConfigInterval.Duration(); d < c.Poll.StatusInterval.Duration() {
		return fmt.Errorf("poll.config_interval must not be shorter than poll.status_interval, got %s", d)
	}
	if c.Poll.MaxConcurrency < 0 {
		return fmt.Errorf("poll.max_concurrency must be positive, got %d", c.Poll.MaxConcurrency)
	}

	if n := c.Format.TemperatureDecimals; n < 0 || n > 6 {
		return fmt.Errorf("format.temperature_decimals must be between 0 and 6, got %d", n)
	}

	if c.MQTT.Enabled() {
		u, err := url.Parse(c.MQTT.Broker)
		if err != nil {
			return fmt.Errorf("mqtt.broker: invalid url: %w", err)
		}
		switch u.Scheme {
		case "tcp", "ssl", "tls", "ws", "wss", "mqtt", "mqtts":
		default:
			return fmt.Errorf("mqtt.broker scheme must be tcp, ssl, tls, ws, wss, mqtt or mqtts, got %q", u.Scheme)
		}
	}

	return nil
}

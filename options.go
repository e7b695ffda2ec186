package nasbridge

import (
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// NASConfig holds the connection settings for the NAS and its token service.
type NASConfig struct {
	Host string
	// Port serves the vendor API, 9999 on stock firmware.
	Port int
	// AuthPort serves the token service, always over plain http.
	AuthPort int
	Username string
	Password string

	UseHTTPS  bool
	VerifyTLS bool

	// Timeout bounds each request. Zero uses the client default of 10s.
	Timeout time.Duration
	// AuthTimeout bounds each token request, which waits on a browser
	// login. Zero uses the client default of 60s.
	AuthTimeout time.Duration
}

// MQTTConfig enables Home Assistant MQTT discovery.
type MQTTConfig struct {
	// Broker is the broker URL, for example tcp://localhost:1883.
	Broker   string
	ClientID string
	Username string
	Password string

	// DiscoveryPrefix defaults to "homeassistant".
	DiscoveryPrefix string
	// TopicPrefix roots state, command and availability topics. Defaults to
	// "nasbridge".
	TopicPrefix string
}

// bridgeConfig holds mutable state during Bridge construction.
type bridgeConfig struct {
	nas                 *NASConfig
	mqtt                *MQTTConfig
	title               string
	configInterval      time.Duration
	statusInterval      time.Duration
	port                int
	maxConcurrency      int
	temperatureDecimals int
	metrics             bool
	logger              *slog.Logger
	updateCallbacks     []func(Update)
}

// Option configures a [Bridge] during construction. Options return an error
// if validation fails.
type Option func(*bridgeConfig) error

// WithNAS sets the NAS to poll. It is required.
//
// Example:
//
//	b, err := nasbridge.New(
//	    nasbridge.WithNAS(nasbridge.NASConfig{
//	        Host:     "192.168.1.10",
//	        Port:     9999,
//	        AuthPort: 4115,
//	        Username: "admin",
//	        Password: os.Getenv("UGREEN_PASS"),
//	    }),
//	)
func WithNAS(cfg NASConfig) Option {
	return func(c *bridgeConfig) error {
		if cfg.Host == "" {
			return errors.New("nas host is required")
		}
		if err := validPort("nas port", cfg.Port); err != nil {
			return err
		}
		if err := validPort("nas auth port", cfg.AuthPort); err != nil {
			return err
		}
		if cfg.Timeout < 0 {
			return errors.New("nas timeout cannot be negative")
		}
		if cfg.AuthTimeout < 0 {
			return errors.New("nas auth timeout cannot be negative")
		}
		c.nas = &cfg
		return nil
	}
}

// WithMQTT publishes every entity to Home Assistant through an MQTT broker
// and routes button commands back to [Bridge.Press].
func WithMQTT(cfg MQTTConfig) Option {
	return func(c *bridgeConfig) error {
		if cfg.Broker == "" {
			return errors.New("mqtt broker is required")
		}
		c.mqtt = &cfg
		return nil
	}
}

// WithConfigInterval sets how often configuration values (model, hardware,
// pools, disks) are refreshed. Defaults to 60 seconds.
//
// Returns an error if the duration is zero or negative.
func WithConfigInterval(d time.Duration) Option {
	return func(c *bridgeConfig) error {
		if d <= 0 {
			return errors.New("config interval must be positive")
		}
		c.configInterval = d
		return nil
	}
}

// WithStatusInterval sets how often live status values (usage, temperatures,
// rates) are refreshed. Defaults to 5 seconds.
//
// Returns an error if the duration is zero or negative.
func WithStatusInterval(d time.Duration) Option {
	return func(c *bridgeConfig) error {
		if d <= 0 {
			return errors.New("status interval must be positive")
		}
		c.statusInterval = d
		return nil
	}
}

// WithPort sets the HTTP port for the dashboard and API. Defaults to 8080.
//
// Returns an error if the port is outside the valid range (1-65535).
func WithPort(port int) Option {
	return func(c *bridgeConfig) error {
		if err := validPort("port", port); err != nil {
			return err
		}
		c.port = port
		return nil
	}
}

// WithMaxConcurrency limits how many NAS endpoints are fetched at once
// within a cycle. Defaults to 4.
//
// Returns an error if the value is zero or negative.
func WithMaxConcurrency(n int) Option {
	return func(c *bridgeConfig) error {
		if n <= 0 {
			return errors.New("max concurrency must be positive")
		}
		c.maxConcurrency = n
		return nil
	}
}

// WithTemperatureDecimals sets the rounding precision of temperatures.
// Defaults to 0 (whole degrees).
func WithTemperatureDecimals(n int) Option {
	return func(c *bridgeConfig) error {
		if n < 0 || n > 6 {
			return fmt.Errorf("temperature decimals must be between 0 and 6, got %d", n)
		}
		c.temperatureDecimals = n
		return nil
	}
}

// WithMetrics serves Prometheus metrics at /metrics. Metrics are always
// collected; this only controls the route.
func WithMetrics(enabled bool) Option {
	return func(c *bridgeConfig) error {
		c.metrics = enabled
		return nil
	}
}

// WithLogger sets a custom [slog.Logger]. If not specified, [slog.Default]
// is used.
//
// Returns an error if the logger is nil.
func WithLogger(logger *slog.Logger) Option {
	return func(c *bridgeConfig) error {
		if logger == nil {
			return errors.New("logger cannot be nil")
		}
		c.logger = logger
		return nil
	}
}

// WithUpdateCallback registers a function called after every poll cycle,
// once the new values are stored.
//
// Callbacks run synchronously, in registration order, from a single
// goroutine; a slow callback delays the next cycle's delivery. Panics are
// recovered and logged. Each callback receives its own copy of the result.
//
// Example:
//
//	b, err := nasbridge.New(
//	    nasbridge.WithNAS(cfg),
//	    nasbridge.WithUpdateCallback(func(u nasbridge.Update) {
//	        if v := u.Result["cpu_temperature"].Value; v != nil {
//	            log.Printf("cpu at %v°C", v)
//	        }
//	    }),
//	)
//
// Nil callbacks are ignored.
func WithUpdateCallback(cb func(Update)) Option {
	return func(c *bridgeConfig) error {
		if cb == nil {
			return nil
		}
		c.updateCallbacks = append(c.updateCallbacks, cb)
		return nil
	}
}

// WithTitle sets the dashboard title. Defaults to "UGREEN NAS".
func WithTitle(title string) Option {
	return func(c *bridgeConfig) error {
		c.title = title
		return nil
	}
}

func validPort(name string, port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("%s must be between 1 and 65535, got %d", name, port)
	}
	return nil
}

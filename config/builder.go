package config

import (
	"log/slog"

	"github.com/jpalmerr/nasbridge"
)

// BuildOptions converts a parsed configuration into bridge options.
//
// The logger, when non-nil, is passed through with [nasbridge.WithLogger].
func BuildOptions(cfg *Config, logger *slog.Logger) []nasbridge.Option {
	opts := []nasbridge.Option{
		nasbridge.WithNAS(nasbridge.NASConfig{
			Host:        cfg.NAS.Host,
			Port:        cfg.NAS.Port,
			AuthPort:    cfg.NAS.AuthPort,
			Username:    cfg.NAS.Username,
			Password:    cfg.NAS.Password,
			UseHTTPS:    cfg.NAS.UseHTTPS,
			VerifyTLS:   cfg.NAS.VerifyTLS,
			Timeout:     cfg.NAS.Timeout.Duration(),
			AuthTimeout: cfg.NAS.AuthTimeout.Duration(),
		}),
		nasbridge.WithConfigInterval(cfg.Poll.ConfigInterval.Duration()),
		nasbridge.WithStatusInterval(cfg.Poll.StatusInterval.Duration()),
		nasbridge.WithMaxConcurrency(cfg.Poll.MaxConcurrency),
		nasbridge.WithTemperatureDecimals(cfg.Format.TemperatureDecimals),
		nasbridge.WithPort(cfg.Server.Port),
		nasbridge.WithTitle(cfg.Server.Title),
		nasbridge.WithMetrics(cfg.Server.Metrics),
	}

	if cfg.MQTT.Enabled() {
		opts = append(opts, nasbridge.WithMQTT(nasbridge.MQTTConfig{
			Broker:          cfg.MQTT.Broker,
			ClientID:        cfg.MQTT.ClientID,
			Username:        cfg.MQTT.Username,
			Password:        cfg.MQTT.Password,
			DiscoveryPrefix: cfg.MQTT.DiscoveryPrefix,
			TopicPrefix:     cfg.MQTT.TopicPrefix,
		}))
	}

	if logger != nil {
		opts = append(opts, nasbridge.WithLogger(logger))
	}
	return opts
}

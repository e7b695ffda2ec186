package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jpalmerr/nasbridge"
	"github.com/jpalmerr/nasbridge/config"
	"github.com/spf13/cobra"
)

const (
	shutdownTimeout = 10 * time.Second
)

// newLogger creates a JSON logger for CLI use.
func newLogger(level string) (*slog.Logger, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q", level)
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: l,
	})), nil
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Poll the NAS and serve the dashboard",
	Long: `Start polling the configured NAS.

The bridge will:
  - Log in and discover every available sensor and button
  - Refresh configuration values and live status on their own cadences
  - Serve the dashboard UI and JSON API on the configured port
  - Publish to Home Assistant over MQTT when a broker is configured

Send SIGHUP to rerun discovery, for example after adding a disk.
The bridge runs until interrupted (Ctrl+C) or receives SIGTERM.

Example:
  nasbridge serve -c nasbridge.yaml
  nasbridge serve --config /etc/nasbridge/nasbridge.yaml --log-level debug`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringP("config", "c", "", "path to config file (required)")
	_ = serveCmd.MarkFlagRequired("config")
}

func runServe(cmd *cobra.Command, args []string) error {
	level, _ := cmd.Flags().GetString("log-level")
	logger, err := newLogger(level)
	if err != nil {
		return err
	}

	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger.Info("config loaded",
		"nas", cfg.NAS.Host,
		"config_interval", cfg.Poll.ConfigInterval.Duration().String(),
		"status_interval", cfg.Poll.StatusInterval.Duration().String(),
		"mqtt", cfg.MQTT.Enabled(),
	)

	b, err := nasbridge.New(config.BuildOptions(cfg, logger)...)
	if err != nil {
		return fmt.Errorf("failed to create bridge: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go rediscoverOnHangup(ctx, b, logger)

	errChan := make(chan error, 1)
	go func() {
		errChan <- b.Start(ctx)
	}()

	select {
	case err := <-errChan:
		if err != nil {
			return fmt.Errorf("bridge error: %w", err)
		}
		logger.Info("shutdown complete")
		return nil

	case <-ctx.Done():
		select {
		case err := <-errChan:
			if err != nil {
				return fmt.Errorf("bridge error: %w", err)
			}
			logger.Info("shutdown complete")
			return nil
		case <-time.After(shutdownTimeout):
			logger.Warn("shutdown timed out",
				"timeout", shutdownTimeout.String(),
				"action", "forcing exit",
			)
			return nil
		}
	}
}

func rediscoverOnHangup(ctx context.Context, b *nasbridge.Bridge, logger *slog.Logger) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			err := b.Rediscover(ctx)
			switch {
			case errors.Is(err, nasbridge.ErrNotReady):
				logger.Warn("rediscovery skipped", "reason", "bridge not set up yet")
			case err != nil:
				logger.Error("rediscovery failed", "error", err)
			}
		}
	}
}

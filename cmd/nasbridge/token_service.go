package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/jpalmerr/nasbridge/internal/tokensvc"
	"github.com/spf13/cobra"
)

const defaultTokenServicePort = 4115

var tokenServiceCmd = &cobra.Command{
	Use:   "token-service",
	Short: "Serve NAS API tokens obtained through a headless browser",
	Long: `Run the token helper the bridge logs in through.

GET /token?username=&password= opens the NAS web UI in headless Chrome,
signs in and answers with the API token the UI stores.

The NAS is located through the environment:
  UGREEN_NAS_API_SCHEME      http or https (default https)
  UGREEN_NAS_API_PORT        web UI port (default 9999)
  UGREEN_NAS_API_VERIFY_SSL  verify the certificate (default true)
  UGREEN_NAS_API_IP          NAS address when host.docker.internal
                             does not resolve (default 127.0.0.1)

Example:
  UGREEN_NAS_API_IP=192.168.1.10 nasbridge token-service --port 4115`,
	RunE: runTokenService,
}

func init() {
	rootCmd.AddCommand(tokenServiceCmd)

	tokenServiceCmd.Flags().Int("port", defaultTokenServicePort, "port to listen on")
}

func runTokenService(cmd *cobra.Command, args []string) error {
	level, _ := cmd.Flags().GetString("log-level")
	logger, err := newLogger(level)
	if err != nil {
		return err
	}

	port, _ := cmd.Flags().GetInt("port")
	if port < 1 || port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", port)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := tokensvc.LoadConfig(ctx, net.DefaultResolver.LookupHost, os.LookupEnv)
	if err != nil {
		return fmt.Errorf("invalid environment: %w", err)
	}

	handler := tokensvc.NewHandler(tokensvc.NewBrowserFetcher(cfg, logger), logger)
	srv := &http.Server{
		Addr:              net.JoinHostPort("", strconv.Itoa(port)),
		Handler:           handler.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		logger.Info("token service listening", "port", port, "nas", cfg.URL())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
		close(errChan)
	}()

	select {
	case err := <-errChan:
		if err != nil {
			return fmt.Errorf("token service error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown timed out", "timeout", shutdownTimeout.String(), "error", err)
		return nil
	}
	logger.Info("shutdown complete")
	return nil
}

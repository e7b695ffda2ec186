package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jpalmerr/nasbridge"
	"github.com/jpalmerr/nasbridge/example/mocknas"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// start the fake NAS (see mocknas)
	nas := mocknas.New("admin", "secret", slog.Default())
	go func() {
		if err := nas.ListenAndServe(ctx, ":9999"); err != nil {
			slog.Error("mock nas error", "error", err)
		}
	}()
	time.Sleep(100 * time.Millisecond)

	b, err := nasbridge.New(
		nasbridge.WithNAS(nasbridge.NASConfig{
			Host:     "127.0.0.1",
			Port:     9999,
			AuthPort: 9999,
			Username: "admin",
			Password: "secret",
		}),
		nasbridge.WithStatusInterval(5*time.Second),
		nasbridge.WithTemperatureDecimals(1),
		nasbridge.WithMetrics(true),
		nasbridge.WithPort(8080),
		nasbridge.WithUpdateCallback(func(u nasbridge.Update) {
			if u.Job != nasbridge.JobStatus {
				return
			}
			cpu := u.Result["cpu_usage"]
			slog.Info("status refreshed", "cpu_usage", cpu.Value, "unit", cpu.Unit, "took", u.Duration.String())
		}),
	)
	if err != nil {
		slog.Error("failed to create bridge", "error", err)
		os.Exit(1)
	}

	fmt.Println()
	fmt.Println("  ╔═══════════════════════════════════════════════════════╗")
	fmt.Println("  ║                                                       ║")
	fmt.Println("  ║   nasbridge Demo                                      ║")
	fmt.Println("  ║                                                       ║")
	fmt.Println("  ║   Open http://localhost:8080 in your browser          ║")
	fmt.Println("  ║   Metrics at http://localhost:8080/metrics            ║")
	fmt.Println("  ║                                                       ║")
	fmt.Println("  ║   Mock NAS on :9999, tokens expire every 2 minutes    ║")
	fmt.Println("  ║                                                       ║")
	fmt.Println("  ║   Press Ctrl+C to stop                                ║")
	fmt.Println("  ║                                                       ║")
	fmt.Println("  ╚═══════════════════════════════════════════════════════╝")
	fmt.Println()

	if err := b.Start(ctx); err != nil {
		slog.Error("bridge error", "error", err)
		os.Exit(1)
	}
}

// Standalone fake NAS for trying the CLI.
//
// Usage:
//
//	go run ./example/cmd/mocknas
//
// Then in another terminal:
//
//	go run ./cmd/nasbridge serve -c example/nasbridge.yaml
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jpalmerr/nasbridge/example/mocknas"
)

func main() {
	addr := flag.String("addr", ":9999", "listen address")
	flag.Parse()

	fmt.Printf("Mock UGREEN NAS starting on %s (login admin/secret)\n", *addr)
	fmt.Println("Tokens expire every 2 minutes")
	fmt.Println("Press Ctrl+C to stop")
	fmt.Println()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := mocknas.New("admin", "secret", slog.Default()).ListenAndServe(ctx, *addr); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}

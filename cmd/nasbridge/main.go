// Package main is the entry point for the nasbridge CLI.
//
// Usage:
//
//	nasbridge serve -c nasbridge.yaml    # Poll the NAS and serve the dashboard
//	nasbridge validate -c nasbridge.yaml # Validate configuration
//	nasbridge token-service              # Run the browser token helper
//	nasbridge version                    # Show version info
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information, set at build time via ldflags.
// Example: go build -ldflags "-X main.version=1.0.0"
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "nasbridge",
	Short: "Expose a UGREEN NAS as a set of sensors and buttons",
	Long: `nasbridge polls a UGREEN NAS over its HTTP API and exposes every
discovered value as a sensor. Configuration values refresh every minute,
live status values every few seconds.

Quick start:
  1. Run the token helper next to the NAS: nasbridge token-service
  2. Create a config file (nasbridge.yaml)
  3. Run: nasbridge serve -c nasbridge.yaml
  4. Open http://localhost:8080 in your browser

Example config:
  nas:
    host: 192.168.1.10
    username: ${UGREEN_USER}
    password: ${UGREEN_PASS}
  mqtt:
    broker: tcp://localhost:1883`,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func main() {
	Execute()
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Print the version, commit hash, and build date of this nasbridge binary.`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("nasbridge %s\n", version)
		fmt.Printf("  commit: %s\n", commit)
		fmt.Printf("  built:  %s\n", date)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
}

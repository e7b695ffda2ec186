package main

import (
	"fmt"

	"github.com/jpalmerr/nasbridge/config"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a config file",
	Long: `Validate a nasbridge configuration file without contacting the NAS.

This command parses the YAML, expands environment variables, and validates
all fields.

Exit codes:
  0 - Config is valid
  1 - Config is invalid (error details printed to stderr)

Example:
  nasbridge validate -c nasbridge.yaml`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().StringP("config", "c", "", "path to config file (required)")
	_ = validateCmd.MarkFlagRequired("config")
}

func runValidate(cmd *cobra.Command, args []string) error {
	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	mqtt := "disabled"
	if cfg.MQTT.Enabled() {
		mqtt = cfg.MQTT.Broker
	}

	fmt.Printf("Config is valid!\n")
	fmt.Printf("  NAS:             %s:%d (auth %d)\n", cfg.NAS.Host, cfg.NAS.Port, cfg.NAS.AuthPort)
	fmt.Printf("  Config interval: %s\n", cfg.Poll.ConfigInterval.Duration())
	fmt.Printf("  Status interval: %s\n", cfg.Poll.StatusInterval.Duration())
	fmt.Printf("  Server port:     %d\n", cfg.Server.Port)
	fmt.Printf("  MQTT:            %s\n", mqtt)

	return nil
}

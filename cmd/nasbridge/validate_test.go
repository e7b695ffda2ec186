package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// executeValidateCmd runs the validate command with the given config path
// and returns captured stdout and any error.
func executeValidateCmd(t *testing.T, configPath string) (string, error) {
	t.Helper()

	old := os.Stdout
	r, w, _ := os.Pipe()
	os.Stdout = w

	rootCmd.SetArgs([]string{"validate", "-c", configPath})
	err := rootCmd.Execute()

	_ = w.Close()
	os.Stdout = old
	var buf bytes.Buffer
	_, _ = buf.ReadFrom(r)

	return buf.String(), err
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "nasbridge.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return path
}

func TestRunValidate_ValidConfig(t *testing.T) {
	path := writeConfig(t, `
nas:
  host: 192.168.1.10
  username: admin
  password: secret
poll:
  status_interval: 10s
mqtt:
  broker: tcp://broker:1883
`)

	output, err := executeValidateCmd(t, path)
	if err != nil {
		t.Fatalf("validate command error = %v", err)
	}

	for _, phrase := range []string{
		"Config is valid!",
		"NAS:             192.168.1.10:9999 (auth 4115)",
		"Config interval: 1m0s",
		"Status interval: 10s",
		"Server port:     8080",
		"MQTT:            tcp://broker:1883",
	} {
		if !strings.Contains(output, phrase) {
			t.Errorf("output missing %q\nGot: %s", phrase, output)
		}
	}
}

func TestRunValidate_MQTTDisabled(t *testing.T) {
	path := writeConfig(t, "nas:\n  host: nas\n  username: a\n  password: b\n")

	output, err := executeValidateCmd(t, path)
	if err != nil {
		t.Fatalf("validate command error = %v", err)
	}
	if !strings.Contains(output, "MQTT:            disabled") {
		t.Errorf("output should report MQTT disabled\nGot: %s", output)
	}
}

func TestRunValidate_InvalidConfig(t *testing.T) {
	path := writeConfig(t, "nas:\n  username: admin\n  password: secret\n")

	_, err := executeValidateCmd(t, path)
	if err == nil {
		t.Fatal("validate command expected error for invalid config, got nil")
	}
	if !strings.Contains(err.Error(), "nas.host is required") {
		t.Errorf("error should mention 'nas.host is required', got: %v", err)
	}
}

func TestRunValidate_MissingFile(t *testing.T) {
	_, err := executeValidateCmd(t, "/nonexistent/path/nasbridge.yaml")
	if err == nil {
		t.Fatal("validate command expected error for missing file, got nil")
	}
	if !strings.Contains(err.Error(), "failed to read") {
		t.Errorf("error should mention 'failed to read', got: %v", err)
	}
}

func TestNewLogger(t *testing.T) {
	for _, level := range []string{"debug", "info", "WARN", "error"} {
		if _, err := newLogger(level); err != nil {
			t.Errorf("newLogger(%q) error = %v", level, err)
		}
	}
	if _, err := newLogger("loud"); err == nil {
		t.Error("newLogger(loud) expected error, got nil")
	}
}

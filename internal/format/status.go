package format

import (
	"fmt"
	"strings"

	"github.com/spf13/cast"
)

// statusRule maps a family of keys to its code table.
type statusRule struct {
	name   string
	match  func(key string) bool
	labels map[int]string
}

// statusRules are evaluated in order. The overall fan status must precede
// the per-fan rule because both keys contain "fan" and "status".
var statusRules = []statusRule{
	{
		name:   "server",
		match:  func(k string) bool { return strings.Contains(k, "server_status") },
		labels: map[int]string{2: "Normal"},
	},
	{
		name:   "disk",
		match:  func(k string) bool { return strings.HasPrefix(k, "disk") && strings.HasSuffix(k, "_status") },
		labels: map[int]string{1: "Normal"},
	},
	{
		name:   "fan overall",
		match:  func(k string) bool { return strings.Contains(k, "fan") && strings.Contains(k, "overall") },
		labels: map[int]string{0: "Normal"},
	},
	{
		name:   "fan",
		match:  func(k string) bool { return strings.HasPrefix(k, "fan") && strings.HasSuffix(k, "_status") },
		labels: map[int]string{0: "ERROR!", 1: "Normal"},
	},
	{
		name: "disk type",
		match: func(k string) bool {
			return strings.HasPrefix(k, "disk") && strings.HasSuffix(k, "_type") && !strings.Contains(k, "interface")
		},
		labels: map[int]string{0: "HDD", 1: "SSD", 2: "M.2"},
	},
	{
		name:   "volume health",
		match:  func(k string) bool { return strings.HasPrefix(k, "volume") && strings.HasSuffix(k, "_health") },
		labels: map[int]string{0: "Normal"},
	},
	{
		name:   "usb type",
		match:  func(k string) bool { return strings.HasPrefix(k, "usb_device") && strings.HasSuffix(k, "_type") },
		labels: map[int]string{0: "Generic USB Device"},
	},
}

// statusTableFor returns the code table for key, or nil if key is not a
// status-code key.
func statusTableFor(key string) map[int]string {
	for _, r := range statusRules {
		if r.match(key) {
			return r.labels
		}
	}
	return nil
}

// IsStatusKey reports whether key is rendered through a status table.
func IsStatusKey(key string) bool {
	return statusTableFor(key) != nil
}

// StatusLabel maps an integer status code through labels.
func StatusLabel(raw any, labels map[int]string) string {
	if raw == nil {
		return fmt.Sprintf("Invalid value: %v", raw)
	}
	code, err := cast.ToIntE(raw)
	if err != nil {
		return fmt.Sprintf("Invalid value: %v", raw)
	}
	if label, ok := labels[code]; ok {
		return label
	}
	return fmt.Sprintf("Unknown status: %v", raw)
}

package catalog

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// RootDeviceID identifies a NAS that reports no serial. Pools, disks and
// volumes are attached to the root device as sub-devices.
const RootDeviceID = "ugreen_nas"

// Manufacturer is reported for every device.
const Manufacturer = "UGREEN"

// Identity describes the NAS as reported by the common endpoint.
type Identity struct {
	Name    string `json:"name"`
	Model   string `json:"model"`
	Version string `json:"version"`
	Serial  string `json:"serial,omitempty"`
}

var nodeUnsafe = regexp.MustCompile(`[^a-z0-9]+`)

// NodeID is the root device id for this NAS: RootDeviceID suffixed with
// the lowercased serial, so several units never share ids or discovery
// topics. Without a serial it is RootDeviceID.
func (id Identity) NodeID() string {
	serial := strings.Trim(nodeUnsafe.ReplaceAllString(strings.ToLower(id.Serial), "_"), "_")
	if serial == "" {
		return RootDeviceID
	}
	return RootDeviceID + "_" + serial
}

// Device is the grouping an entity belongs to.
type Device struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Manufacturer string `json:"manufacturer"`
	Model        string `json:"model,omitempty"`
	Version      string `json:"version,omitempty"`
	// ViaDevice is empty for the root device.
	ViaDevice string `json:"via_device,omitempty"`
}

var (
	diskKey   = regexp.MustCompile(`^disk(\d+)_pool(\d+)_`)
	volumeKey = regexp.MustCompile(`^volume(\d+)_pool(\d+)_`)
	poolKey   = regexp.MustCompile(`^pool(\d+)_`)
)

// DeviceFor returns the device an entity key is grouped under.
func DeviceFor(key string, id Identity) Device {
	root := RootDevice(id)
	sub := func(suffix, label string) Device {
		return Device{
			ID:           root.ID + "_" + suffix,
			Name:         fmt.Sprintf("UGREEN NAS (%s)", label),
			Manufacturer: Manufacturer,
			Model:        id.Model,
			Version:      id.Version,
			ViaDevice:    root.ID,
		}
	}

	if m := diskKey.FindStringSubmatch(key); m != nil {
		d, p := atoi(m[1]), atoi(m[2])
		return sub(fmt.Sprintf("disk_%d_%d", p, d), fmt.Sprintf("Pool %d | Disk %d", p, d))
	}
	if m := volumeKey.FindStringSubmatch(key); m != nil {
		v, p := atoi(m[1]), atoi(m[2])
		return sub(fmt.Sprintf("volume_%d_%d", p, v), fmt.Sprintf("Pool %d | Volume %d", p, v))
	}
	if m := poolKey.FindStringSubmatch(key); m != nil {
		p := atoi(m[1])
		return sub(fmt.Sprintf("pool_%d", p), fmt.Sprintf("Pool %d", p))
	}
	return root
}

// RootDevice returns the NAS device itself.
func RootDevice(id Identity) Device {
	name := id.Name
	if name == "" {
		name = "UGREEN NAS"
	}
	return Device{
		ID:           id.NodeID(),
		Name:         name,
		Manufacturer: Manufacturer,
		Model:        id.Model,
		Version:      id.Version,
	}
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

package nasbridge

import (
	"errors"
	"time"

	"github.com/jpalmerr/nasbridge/internal/catalog"
	"github.com/jpalmerr/nasbridge/internal/collector"
)

var (
	// ErrUnknownEntity is returned by [Bridge.Press] for a key that is not a
	// button of the current catalog.
	ErrUnknownEntity = errors.New("unknown entity")

	// ErrNotReady is returned when an operation needs the catalog before
	// [Bridge.Setup] has completed.
	ErrNotReady = errors.New("bridge not set up")
)

// Entity kinds.
const (
	KindSensor = "sensor"
	KindButton = "button"
)

// Poll job names reported in [Update.Job].
const (
	JobConfig = "config"
	JobStatus = "status"
)

// Entity describes one displayed value or action of the NAS.
//
// Entities are derived from the descriptor catalog built by [Bridge.Setup].
// The key is stable across restarts and unique within a bridge.
type Entity struct {
	Key      string
	Name     string
	Icon     string
	Unit     string
	Category string
	// Kind is [KindSensor] or [KindButton].
	Kind string
	// Device is the id of the device the entity is grouped under: the NAS
	// itself, or one of its pools, disks or volumes.
	Device string
}

// Reading is a formatted sensor value.
//
// Value is nil when the NAS did not report the field. Unit may differ from
// the entity's declared unit when byte sizes and rates are rescaled.
type Reading struct {
	Value any
	Raw   any
	Unit  string
}

// Result maps entity keys to readings.
type Result map[string]Reading

// Update is delivered to callbacks registered with [WithUpdateCallback]
// after every poll cycle.
type Update struct {
	// Job is [JobConfig] or [JobStatus].
	Job string

	// Result holds a reading for every sensor the job covers.
	Result Result

	StartedAt time.Time
	Duration  time.Duration

	// Error is set when the cycle panicked. Result is empty in that case.
	Error error
}

func toEntity(d catalog.Descriptor, id catalog.Identity) Entity {
	return Entity{
		Key:      d.Key,
		Name:     d.Name,
		Icon:     d.Icon,
		Unit:     d.Unit,
		Category: string(d.Category),
		Kind:     d.Kind.String(),
		Device:   catalog.DeviceFor(d.Key, id).ID,
	}
}

// toResult copies a collector result into the public type.
func toResult(r collector.Result) Result {
	out := make(Result, len(r))
	for k, v := range r {
		out[k] = Reading{Value: v.Value, Raw: v.Raw, Unit: v.Unit}
	}
	return out
}

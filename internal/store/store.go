package store

import "time"

// EntityState is the stored representation of one entity, shaped for the
// REST API and SSE stream.
type EntityState struct {
	Key      string `json:"key"`
	Name     string `json:"name"`
	Icon     string `json:"icon,omitempty"`
	Category string `json:"category"`

	// Kind is "sensor" or "button".
	Kind string `json:"kind"`

	// Device is the id of the device the entity is grouped under.
	Device string `json:"device"`

	// Value is the formatted value; nil means the last cycle had no data.
	Value any    `json:"value"`
	Raw   any    `json:"raw,omitempty"`
	Unit  string `json:"unit,omitempty"`

	// UpdatedAt is when the value was last refreshed. Zero for buttons.
	UpdatedAt time.Time `json:"updated_at"`

	// Removed marks a tombstone sent to subscribers when the entity left
	// the catalog. Stored states never carry it.
	Removed bool `json:"removed,omitempty"`
}

// Store defines storage and subscription for entity states.
//
// Implementations must be safe for concurrent access.
type Store interface {
	// Update stores states keyed by Key and notifies subscribers with the
	// whole batch. Later states replace earlier ones with the same key.
	Update(states ...EntityState)

	// Remove deletes keys and notifies subscribers with one tombstone per
	// key that was present.
	Remove(keys ...string)

	// Get returns the state for key.
	Get(key string) (EntityState, bool)

	// GetAll returns a snapshot of all states sorted by key.
	GetAll() []EntityState

	// Subscribe returns a channel receiving update batches.
	// Caller must call Unsubscribe when done.
	Subscribe() <-chan []EntityState

	// Unsubscribe removes a subscription and closes the channel.
	// Safe to call with a channel that was already unsubscribed.
	Unsubscribe(ch <-chan []EntityState)
}

package store

import (
	"sort"
	"sync"
)

// subscriberBuffer is the number of batches a subscriber may lag behind.
const subscriberBuffer = 16

// MemoryStore is an in-memory implementation of [Store].
type MemoryStore struct {
	mu          sync.RWMutex
	states      map[string]EntityState
	subscribers map[chan []EntityState]struct{}
	subMu       sync.RWMutex
}

// NewMemoryStore creates an empty [MemoryStore].
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		states:      make(map[string]EntityState),
		subscribers: make(map[chan []EntityState]struct{}),
	}
}

// Update stores states and notifies all subscribers with a copy of the batch.
// An empty call is a no-op.
func (m *MemoryStore) Update(states ...EntityState) {
	if len(states) == 0 {
		return
	}

	m.mu.Lock()
	for _, s := range states {
		m.states[s.Key] = s
	}
	m.mu.Unlock()

	batch := make([]EntityState, len(states))
	copy(batch, states)
	m.notifySubscribers(batch)
}

// Remove deletes keys. Subscribers receive a batch of tombstones for the
// keys that existed; unknown keys are ignored.
func (m *MemoryStore) Remove(keys ...string) {
	var gone []EntityState
	m.mu.Lock()
	for _, k := range keys {
		if _, ok := m.states[k]; ok {
			delete(m.states, k)
			gone = append(gone, EntityState{Key: k, Removed: true})
		}
	}
	m.mu.Unlock()

	if len(gone) > 0 {
		m.notifySubscribers(gone)
	}
}

// Get returns the state stored for key.
func (m *MemoryStore) Get(key string) (EntityState, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.states[key]
	return s, ok
}

// GetAll returns all stored states sorted by key. The slice is a copy.
func (m *MemoryStore) GetAll() []EntityState {
	m.mu.RLock()
	out := make([]EntityState, 0, len(m.states))
	for _, s := range m.states {
		out = append(out, s)
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Subscribe creates a subscription. If the subscriber falls more than
// subscriberBuffer batches behind, newer batches are dropped for it.
func (m *MemoryStore) Subscribe() <-chan []EntityState {
	ch := make(chan []EntityState, subscriberBuffer)

	m.subMu.Lock()
	m.subscribers[ch] = struct{}{}
	m.subMu.Unlock()

	return ch
}

// Unsubscribe removes a subscription and closes its channel.
func (m *MemoryStore) Unsubscribe(ch <-chan []EntityState) {
	m.subMu.Lock()
	defer m.subMu.Unlock()

	for subCh := range m.subscribers {
		if subCh == ch {
			delete(m.subscribers, subCh)
			close(subCh)
			break
		}
	}
}

func (m *MemoryStore) notifySubscribers(batch []EntityState) {
	m.subMu.RLock()
	defer m.subMu.RUnlock()

	for ch := range m.subscribers {
		select {
		case ch <- batch:
		default:
			// slow subscriber, drop
		}
	}
}

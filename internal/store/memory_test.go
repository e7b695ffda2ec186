package store

import (
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestNewMemoryStore(t *testing.T) {
	store := NewMemoryStore()
	if store == nil {
		t.Fatal("NewMemoryStore() = nil")
	}

	if len(store.GetAll()) != 0 {
		t.Errorf("GetAll() = %v items, want 0", len(store.GetAll()))
	}
}

func TestMemoryStore_Update(t *testing.T) {
	store := NewMemoryStore()
	now := time.Now()

	state := EntityState{
		Key:       "cpu_usage",
		Name:      "CPU Usage",
		Category:  "Status",
		Kind:      "sensor",
		Device:    "ugreen_nas",
		Value:     int64(12),
		Raw:       12.4,
		Unit:      "%",
		UpdatedAt: now,
	}
	store.Update(state)

	got, ok := store.Get("cpu_usage")
	if !ok {
		t.Fatal("Get(cpu_usage) not found")
	}
	if diff := cmp.Diff(state, got); diff != "" {
		t.Errorf("Get() mismatch (-want +got):\n%s", diff)
	}

	if _, ok := store.Get("missing"); ok {
		t.Error("Get(missing) found, want not found")
	}
}

func TestMemoryStore_UpdateOverwrites(t *testing.T) {
	store := NewMemoryStore()

	store.Update(EntityState{Key: "model", Value: "DXP2800"})
	store.Update(EntityState{Key: "model", Value: "DXP4800 Plus"})

	all := store.GetAll()
	if len(all) != 1 {
		t.Fatalf("GetAll() = %v items, want 1", len(all))
	}
	if all[0].Value != "DXP4800 Plus" {
		t.Errorf("GetAll()[0].Value = %v, want %v", all[0].Value, "DXP4800 Plus")
	}
}

func TestMemoryStore_GetAllSorted(t *testing.T) {
	store := NewMemoryStore()

	store.Update(
		EntityState{Key: "serial"},
		EntityState{Key: "cpu_usage"},
		EntityState{Key: "model"},
	)

	var got []string
	for _, s := range store.GetAll() {
		got = append(got, s.Key)
	}
	want := []string{"cpu_usage", "model", "serial"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("GetAll() order mismatch (-want +got):\n%s", diff)
	}
}

func TestMemoryStore_EmptyUpdate(t *testing.T) {
	store := NewMemoryStore()
	ch := store.Subscribe()
	defer store.Unsubscribe(ch)

	store.Update()

	select {
	case batch := <-ch:
		t.Errorf("received %v, want no batch", batch)
	case <-time.After(50 * time.Millisecond):
	}
}

// recv waits briefly for the next batch on ch.
func recv(t *testing.T, ch <-chan []EntityState) []EntityState {
	t.Helper()
	select {
	case batch, ok := <-ch:
		if !ok {
			t.Fatal("subscription closed")
		}
		return batch
	case <-time.After(time.Second):
		t.Fatal("no batch delivered")
		return nil
	}
}

func keys(batch []EntityState) []string {
	out := make([]string, len(batch))
	for i, s := range batch {
		out[i] = s.Key
	}
	return out
}

func TestMemoryStore_SubscribeReceivesBatch(t *testing.T) {
	store := NewMemoryStore()
	ch := store.Subscribe()
	defer store.Unsubscribe(ch)

	store.Update(EntityState{Key: "lan_upload"}, EntityState{Key: "lan_download"})

	if diff := cmp.Diff([]string{"lan_upload", "lan_download"}, keys(recv(t, ch))); diff != "" {
		t.Errorf("batch keys mismatch (-want +got):\n%s", diff)
	}
}

func TestMemoryStore_BatchIsCopied(t *testing.T) {
	store := NewMemoryStore()
	ch := store.Subscribe()
	defer store.Unsubscribe(ch)

	states := []EntityState{{Key: "a", Value: 1}}
	store.Update(states...)
	states[0].Value = 2

	if got := recv(t, ch)[0].Value; got != 1 {
		t.Errorf("batch value = %v, want 1", got)
	}
}

func TestMemoryStore_EverySubscriberGetsBatch(t *testing.T) {
	store := NewMemoryStore()

	subs := make([]<-chan []EntityState, 3)
	for i := range subs {
		subs[i] = store.Subscribe()
	}

	store.Update(EntityState{Key: "disk1_temperature"})

	for i, ch := range subs {
		if got := keys(recv(t, ch)); len(got) != 1 || got[0] != "disk1_temperature" {
			t.Errorf("subscriber %d got %v", i, got)
		}
		store.Unsubscribe(ch)
	}
}

func TestMemoryStore_Remove(t *testing.T) {
	store := NewMemoryStore()
	store.Update(EntityState{Key: "disk2_pool1_model"}, EntityState{Key: "cpu_usage"})
	ch := store.Subscribe()
	defer store.Unsubscribe(ch)

	store.Remove("disk2_pool1_model", "fan1_speed")

	if _, ok := store.Get("disk2_pool1_model"); ok {
		t.Error("removed key still stored")
	}
	if diff := cmp.Diff([]string{"cpu_usage"}, keys(store.GetAll())); diff != "" {
		t.Errorf("remaining keys mismatch (-want +got):\n%s", diff)
	}

	want := []EntityState{{Key: "disk2_pool1_model", Removed: true}}
	if diff := cmp.Diff(want, recv(t, ch)); diff != "" {
		t.Errorf("tombstones mismatch (-want +got):\n%s", diff)
	}

	// nothing left to remove, nothing sent
	store.Remove("disk2_pool1_model")
	select {
	case batch := <-ch:
		t.Errorf("received %v, want no batch", batch)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestMemoryStore_Unsubscribe(t *testing.T) {
	store := NewMemoryStore()
	ch := store.Subscribe()
	store.Unsubscribe(ch)

	if _, ok := <-ch; ok {
		t.Error("channel still open after Unsubscribe()")
	}

	// idempotent
	store.Unsubscribe(ch)

	store.Update(EntityState{Key: "a"})
}

func TestMemoryStore_LaggingSubscriberDropsBatches(t *testing.T) {
	store := NewMemoryStore()
	stalled := store.Subscribe()
	defer store.Unsubscribe(stalled)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < subscriberBuffer+5; i++ {
			store.Update(EntityState{Key: "cpu_usage", Value: i})
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Update() blocked on a stalled subscriber")
	}

	if n := len(stalled); n != subscriberBuffer {
		t.Errorf("buffered batches = %d, want %d", n, subscriberBuffer)
	}
	if first := recv(t, stalled)[0].Value; first != 0 {
		t.Errorf("oldest batch value = %v, want 0", first)
	}
	if got, _ := store.Get("cpu_usage"); got.Value != subscriberBuffer+4 {
		t.Errorf("stored value = %v, want %d", got.Value, subscriberBuffer+4)
	}
}

func TestMemoryStore_ConcurrentAccess(t *testing.T) {
	store := NewMemoryStore()

	var wg sync.WaitGroup
	run := func(fn func(i int)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				fn(i)
			}
		}()
	}

	for w := 0; w < 8; w++ {
		run(func(i int) { store.Update(EntityState{Key: "cpu_usage", Value: i}) })
		run(func(int) {
			_ = store.GetAll()
			_, _ = store.Get("cpu_usage")
		})
		run(func(int) { store.Unsubscribe(store.Subscribe()) })
	}

	wg.Wait()
}

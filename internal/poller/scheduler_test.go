package poller

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// testLogger returns a logger that discards all output for clean test output.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// countingJob returns a job that increments n on every run and returns the
// new count.
func countingJob(name string, interval time.Duration, n *atomic.Int64) Job[int64] {
	return Job[int64]{
		Name:     name,
		Interval: interval,
		Run: func(ctx context.Context) int64 {
			return n.Add(1)
		},
	}
}

// TestScheduler_StopBeforeStart verifies that calling Stop() on a scheduler
// that was never started does not panic and is a safe no-op.
func TestScheduler_StopBeforeStart(t *testing.T) {
	var n atomic.Int64
	scheduler := NewScheduler([]Job[int64]{countingJob("config", time.Minute, &n)}, time.Minute, 1, testLogger())

	scheduler.Stop()

	if _, ok := <-scheduler.Results(); ok {
		t.Error("expected results channel to be closed")
	}
}

// TestScheduler_StopTwice verifies that Stop() is idempotent.
func TestScheduler_StopTwice(t *testing.T) {
	var n atomic.Int64
	scheduler := NewScheduler([]Job[int64]{countingJob("config", time.Minute, &n)}, time.Minute, 1, testLogger())
	scheduler.Start(context.Background())

	go func() {
		for range scheduler.Results() {
		}
	}()

	scheduler.Stop()
	scheduler.Stop()
}

// TestScheduler_StopBeforeStartThenStart verifies that Start after Stop is a no-op.
func TestScheduler_StopBeforeStartThenStart(t *testing.T) {
	var n atomic.Int64
	scheduler := NewScheduler([]Job[int64]{countingJob("config", time.Minute, &n)}, time.Minute, 1, testLogger())

	scheduler.Stop()
	scheduler.Start(context.Background())

	time.Sleep(50 * time.Millisecond)
	if got := n.Load(); got != 0 {
		t.Errorf("job ran %d times after Stop, want 0", got)
	}
}

// TestScheduler_StartTwice verifies that a second Start does not run jobs twice.
func TestScheduler_StartTwice(t *testing.T) {
	var n atomic.Int64
	scheduler := NewScheduler([]Job[int64]{countingJob("config", time.Minute, &n)}, time.Minute, 1, testLogger())

	scheduler.Start(context.Background())
	scheduler.Start(context.Background())

	select {
	case <-scheduler.Results():
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for first cycle")
	}

	time.Sleep(50 * time.Millisecond)
	scheduler.Stop()

	if got := n.Load(); got != 1 {
		t.Errorf("job ran %d times, want 1", got)
	}
}

// TestScheduler_ImmediateRunOnStart verifies every job runs once right away.
func TestScheduler_ImmediateRunOnStart(t *testing.T) {
	var config, status atomic.Int64
	jobs := []Job[int64]{
		countingJob("config", time.Minute, &config),
		countingJob("status", 30*time.Second, &status),
	}

	scheduler := NewScheduler(jobs, time.Minute, 2, testLogger())
	scheduler.Start(context.Background())
	defer scheduler.Stop()

	seen := map[string]bool{}
	timeout := time.After(2 * time.Second)
	for len(seen) < 2 {
		select {
		case c := <-scheduler.Results():
			seen[c.Job] = true
			if c.Value != 1 {
				t.Errorf("cycle %s value = %d, want 1", c.Job, c.Value)
			}
			if c.StartedAt.IsZero() {
				t.Errorf("cycle %s StartedAt is zero", c.Job)
			}
		case <-timeout:
			t.Fatalf("only saw %d/2 jobs", len(seen))
		}
	}
}

// TestScheduler_FastJobKeepsCadence verifies that a 1s job runs repeatedly
// while a long-interval job runs only once.
func TestScheduler_FastJobKeepsCadence(t *testing.T) {
	if testing.Short() {
		t.Skip("timing test")
	}

	var slow, fast atomic.Int64
	jobs := []Job[int64]{
		countingJob("config", time.Hour, &slow),
		countingJob("status", time.Second, &fast),
	}

	scheduler := NewScheduler(jobs, time.Minute, 2, testLogger())
	scheduler.Start(context.Background())

	go func() {
		for range scheduler.Results() {
		}
	}()

	time.Sleep(2500 * time.Millisecond)
	scheduler.Stop()

	if got := slow.Load(); got != 1 {
		t.Errorf("slow job ran %d times, want 1", got)
	}
	if got := fast.Load(); got < 2 {
		t.Errorf("fast job ran %d times, want at least 2", got)
	}
}

// TestScheduler_JobPanicRecovery verifies a panicking job yields a cycle with
// a correlation id and does not stop other jobs.
func TestScheduler_JobPanicRecovery(t *testing.T) {
	var n atomic.Int64
	jobs := []Job[int64]{
		{
			Name:     "broken",
			Interval: time.Minute,
			Run: func(ctx context.Context) int64 {
				panic("boom")
			},
		},
		countingJob("healthy", time.Minute, &n),
	}

	scheduler := NewScheduler(jobs, time.Minute, 2, testLogger())
	scheduler.Start(context.Background())
	defer scheduler.Stop()

	got := map[string]Cycle[int64]{}
	timeout := time.After(2 * time.Second)
	for len(got) < 2 {
		select {
		case c := <-scheduler.Results():
			got[c.Job] = c
		case <-timeout:
			t.Fatalf("only saw %d/2 cycles", len(got))
		}
	}

	broken := got["broken"]
	if broken.Error == nil {
		t.Fatal("broken cycle Error = nil, want panic error")
	}
	if !strings.Contains(broken.Error.Error(), "correlation_id") {
		t.Errorf("broken cycle error %q missing correlation_id", broken.Error)
	}
	if broken.Value != 0 {
		t.Errorf("broken cycle value = %d, want 0", broken.Value)
	}

	if got["healthy"].Error != nil {
		t.Errorf("healthy cycle error = %v", got["healthy"].Error)
	}
}

// TestScheduler_ContextCancellation verifies the results channel closes when
// the parent context is cancelled.
func TestScheduler_ContextCancellation(t *testing.T) {
	var n atomic.Int64
	ctx, cancel := context.WithCancel(context.Background())

	scheduler := NewScheduler([]Job[int64]{countingJob("config", time.Minute, &n)}, time.Minute, 1, testLogger())
	scheduler.Start(ctx)

	<-scheduler.Results()
	cancel()

	done := make(chan struct{})
	go func() {
		for range scheduler.Results() {
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("results channel not closed after context cancellation")
	}
	scheduler.Stop()
}

// TestScheduler_ConcurrentStartStop verifies Start and Stop do not race.
// Run with: go test -race ./internal/poller/...
func TestScheduler_ConcurrentStartStop(t *testing.T) {
	for i := 0; i < 100; i++ {
		var n atomic.Int64
		scheduler := NewScheduler([]Job[int64]{countingJob("config", time.Minute, &n)}, time.Minute, 1, testLogger())

		var wg sync.WaitGroup
		wg.Add(2)

		go func() {
			defer wg.Done()
			scheduler.Start(context.Background())
		}()

		go func() {
			defer wg.Done()
			scheduler.Stop()
		}()

		wg.Wait()
		scheduler.Stop()

		for range scheduler.Results() {
		}
	}
}

func TestScheduler_GCDCalculation(t *testing.T) {
	tests := []struct {
		name      string
		intervals []time.Duration
		global    time.Duration
		want      time.Duration
	}{
		{"slow and fast", []time.Duration{60 * time.Second, 5 * time.Second}, time.Minute, 5 * time.Second},
		{"coprime", []time.Duration{7 * time.Second, 5 * time.Second}, time.Minute, time.Second},
		{"default used", []time.Duration{0, 20 * time.Second}, 30 * time.Second, 10 * time.Second},
		{"sub-second floored", []time.Duration{500 * time.Millisecond}, time.Minute, time.Second},
		{"no jobs", nil, 15 * time.Second, 15 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			jobs := make([]Job[int64], len(tt.intervals))
			for i, iv := range tt.intervals {
				jobs[i] = Job[int64]{Name: string(rune('a' + i)), Interval: iv}
			}
			s := NewScheduler(jobs, tt.global, 1, testLogger())
			if got := s.calculateBaseInterval(); got != tt.want {
				t.Errorf("calculateBaseInterval() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestScheduler_NonPositiveConcurrency(t *testing.T) {
	var n atomic.Int64
	scheduler := NewScheduler([]Job[int64]{countingJob("config", time.Minute, &n)}, time.Minute, 0, testLogger())
	scheduler.Start(context.Background())
	defer scheduler.Stop()

	select {
	case <-scheduler.Results():
	case <-time.After(time.Second):
		t.Fatal("job never ran with maxConcurrency 0")
	}
}

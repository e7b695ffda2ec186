package poller

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Job is a named unit of periodic work, such as the slow configuration poll
// or the fast status poll.
type Job[T any] struct {
	// Name identifies the job. Names must be unique within a scheduler.
	Name string

	// Interval is the time between runs. If 0, the scheduler's default is used.
	Interval time.Duration

	// Run performs one cycle. It receives the scheduler's context.
	Run func(ctx context.Context) T
}

// Cycle is the outcome of a single job run.
type Cycle[T any] struct {
	// Job is the name of the job that produced this cycle.
	Job string

	// Value is what Run returned. Zero if Run panicked.
	Value T

	// StartedAt is when the run began.
	StartedAt time.Time

	// Duration is how long Run took.
	Duration time.Duration

	// Error is set when Run panicked; it carries a correlation id that
	// matches the logged stack trace.
	Error error
}

// Scheduler runs jobs periodically.
//
// Every job runs immediately on start. After that the scheduler ticks at the
// GCD of all job intervals and runs only the jobs that are due. Due jobs run
// concurrently up to maxConcurrency. Results are emitted on [Scheduler.Results].
//
// All lifecycle methods (Start, Stop) are safe for concurrent use.
type Scheduler[T any] struct {
	jobs           []Job[T]
	interval       time.Duration // default interval
	maxConcurrency int
	results        chan Cycle[T]
	logger         *slog.Logger
	ctx            context.Context
	cancel         context.CancelFunc
	wg             sync.WaitGroup

	mu        sync.Mutex
	started   bool
	stopped   bool
	closeOnce sync.Once

	lastRunAt    map[string]time.Time
	running      map[string]bool
	baseInterval time.Duration
}

// NewScheduler creates a new [Scheduler].
//
// The scheduler must be started with [Scheduler.Start] and stopped with
// [Scheduler.Stop].
func NewScheduler[T any](jobs []Job[T], interval time.Duration, maxConcurrency int, logger *slog.Logger) *Scheduler[T] {
	if maxConcurrency < 1 {
		maxConcurrency = 1
	}
	return &Scheduler[T]{
		jobs:           jobs,
		interval:       interval,
		maxConcurrency: maxConcurrency,
		results:        make(chan Cycle[T], len(jobs)),
		logger:         logger,
	}
}

// Results returns a receive-only channel that emits one [Cycle] per run.
// The channel is closed when the scheduler stops.
func (s *Scheduler[T]) Results() <-chan Cycle[T] {
	return s.results
}

// calculateBaseInterval returns the GCD of all job intervals, floored at 1s.
func (s *Scheduler[T]) calculateBaseInterval() time.Duration {
	if len(s.jobs) == 0 {
		return s.interval
	}

	result := s.intervalOf(s.jobs[0])
	for _, j := range s.jobs[1:] {
		result = gcdDuration(result, s.intervalOf(j))
	}

	// floor at 1 second to prevent CPU thrashing
	if result < time.Second {
		result = time.Second
	}

	return result
}

func (s *Scheduler[T]) intervalOf(j Job[T]) time.Duration {
	if j.Interval > 0 {
		return j.Interval
	}
	return s.interval
}

// gcdDuration calculates the greatest common divisor of two durations.
func gcdDuration(a, b time.Duration) time.Duration {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

// Start begins the scheduling loop in a background goroutine.
//
// Start is non-blocking. If ctx is nil, context.Background() is used.
// Start is idempotent; if Stop was called before Start, Start is a no-op.
func (s *Scheduler[T]) Start(ctx context.Context) {
	s.mu.Lock()
	if s.started || s.stopped {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.lastRunAt = make(map[string]time.Time, len(s.jobs))
	s.running = make(map[string]bool, len(s.jobs))
	s.baseInterval = s.calculateBaseInterval()

	if ctx == nil {
		ctx = context.Background()
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	runCtx := s.ctx // capture under lock to avoid race
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		defer s.closeOnce.Do(func() { close(s.results) })

		var inflight sync.WaitGroup
		defer inflight.Wait()

		s.runDueJobs(runCtx, true, &inflight)

		ticker := time.NewTicker(s.baseInterval)
		defer ticker.Stop()

		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				s.runDueJobs(runCtx, false, &inflight)
			}
		}
	}()
}

// Stop halts the scheduler and waits for running jobs to return.
//
// Stop is idempotent and safe to call before Start.
func (s *Scheduler[T]) Stop() {
	s.mu.Lock()
	if !s.stopped {
		s.stopped = true
		if s.cancel != nil {
			s.cancel()
		}
	}
	s.mu.Unlock()

	s.wg.Wait()

	// ensure channel is closed even if Start() was never called
	s.closeOnce.Do(func() { close(s.results) })
}

// runDueJobs starts every job whose interval has elapsed. A job that is
// still running from a previous tick is skipped, so a slow configuration
// poll never overlaps itself while the fast poll keeps its cadence.
//
// lastRunAt is updated when a run STARTS, not when it completes.
func (s *Scheduler[T]) runDueJobs(ctx context.Context, immediate bool, inflight *sync.WaitGroup) {
	now := time.Now()
	due := make([]Job[T], 0, len(s.jobs))

	s.mu.Lock()
	for _, j := range s.jobs {
		if s.running[j.Name] {
			continue
		}
		last, exists := s.lastRunAt[j.Name]
		if immediate || !exists || now.Sub(last) >= s.intervalOf(j) {
			due = append(due, j)
			s.lastRunAt[j.Name] = now
			s.running[j.Name] = true
		}
	}
	s.mu.Unlock()

	if len(due) == 0 {
		return
	}

	inflight.Add(1)
	go func() {
		defer inflight.Done()
		s.runJobs(ctx, due)
	}()
}

// runJobs runs a batch of jobs concurrently, respecting maxConcurrency.
func (s *Scheduler[T]) runJobs(ctx context.Context, jobs []Job[T]) {
	queue := make(chan Job[T], len(jobs))

	var wg sync.WaitGroup
	for i := 0; i < s.maxConcurrency && i < len(jobs); i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range queue {
				cycle := s.runJob(ctx, j)

				s.mu.Lock()
				s.running[j.Name] = false
				s.mu.Unlock()

				select {
				case s.results <- cycle:
				case <-ctx.Done():
				}
			}
		}()
	}

	for _, j := range jobs {
		queue <- j
	}
	close(queue)

	wg.Wait()
}

// runJob calls Run with panic recovery.
// A panic is logged with its stack trace under a correlation id; the cycle
// carries the same id in its error.
func (s *Scheduler[T]) runJob(ctx context.Context, j Job[T]) (cycle Cycle[T]) {
	cycle = Cycle[T]{Job: j.Name, StartedAt: time.Now()}

	defer func() {
		cycle.Duration = time.Since(cycle.StartedAt)
		if r := recover(); r != nil {
			correlationID := uuid.NewString()
			s.logger.Error("job panic",
				"job", j.Name,
				"correlation_id", correlationID,
				"panic", fmt.Sprintf("%v", r),
				"stack", string(debug.Stack()),
			)
			var zero T
			cycle.Value = zero
			cycle.Error = fmt.Errorf("job %s panic (correlation_id: %s)", j.Name, correlationID)
		}
	}()

	cycle.Value = j.Run(ctx)
	return cycle
}

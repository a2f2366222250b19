package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/abdulachik/littlebird/internal/metrics"
)

// ErrShutdownTimeout is joined to Run's result when cycles were still
// running after the shutdown timeout. Resources those cycles use, such as the
// state database, must not be closed.
var ErrShutdownTimeout = errors.New("cycles still running after shutdown timeout")

const (
	defaultSupervisionInterval = 60 * time.Second
	defaultShutdownTimeout     = 10 * time.Second
)

// Scheduler owns the fixed set of tasks. Each task runs one cycle per worker
// goroutine; on every supervision tick the scheduler relaunches workers that
// have finished and whose interval has elapsed. A source never has two
// cycles in flight.
type Scheduler struct {
	tick            time.Duration
	shutdownTimeout time.Duration
	health          *Health
	metrics         *metrics.Recorder

	mu      sync.Mutex
	workers map[string]*worker
	order   []string
	wg      sync.WaitGroup
}

// worker is the handle for one task's current or last cycle.
type worker struct {
	task       *Task
	running    bool
	launches   uint64
	lastStart  time.Time
	lastFinish time.Time
	lastErr    error
}

// WorkerStatus is a point-in-time view of one source's worker.
type WorkerStatus struct {
	Source     string
	Running    bool
	Launches   uint64
	LastStart  time.Time
	LastFinish time.Time
	LastError  string
}

// Config holds scheduler configuration.
type Config struct {
	Tasks               []*Task
	SupervisionInterval time.Duration // default 60s
	ShutdownTimeout     time.Duration // default 10s
	Health              *Health       // created if nil
	Metrics             *metrics.Recorder
}

// New creates a new scheduler. Source keys must be unique.
func New(cfg Config) (*Scheduler, error) {
	if len(cfg.Tasks) == 0 {
		return nil, fmt.Errorf("at least one task is required")
	}

	tick := cfg.SupervisionInterval
	if tick <= 0 {
		tick = defaultSupervisionInterval
	}
	shutdownTimeout := cfg.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = defaultShutdownTimeout
	}
	health := cfg.Health
	if health == nil {
		health = NewHealth()
	}

	s := &Scheduler{
		tick:            tick,
		shutdownTimeout: shutdownTimeout,
		health:          health,
		metrics:         cfg.Metrics,
		workers:         make(map[string]*worker, len(cfg.Tasks)),
	}
	for _, task := range cfg.Tasks {
		key := task.Key()
		if _, dup := s.workers[key]; dup {
			return nil, fmt.Errorf("duplicate source %q", key)
		}
		s.workers[key] = &worker{task: task}
		s.order = append(s.order, key)
	}

	return s, nil
}

// Run launches every task and supervises them until ctx is cancelled. It then
// waits up to the shutdown timeout for in-flight cycles and returns ctx.Err(),
// joined with ErrShutdownTimeout if some did not finish.
func (s *Scheduler) Run(ctx context.Context) error {
	slog.Info("starting scheduler",
		"sources", s.order,
		"supervision_interval", s.tick,
	)

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	s.supervise(ctx)

	for {
		select {
		case <-ctx.Done():
			slog.Info("scheduler shutting down")
			if !s.wait() {
				return errors.Join(ctx.Err(), ErrShutdownTimeout)
			}
			return ctx.Err()

		case <-ticker.C:
			s.supervise(ctx)
		}
	}
}

// supervise launches every idle worker whose interval has elapsed since its
// last cycle finished.
func (s *Scheduler) supervise(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, key := range s.order {
		w := s.workers[key]
		if w.running {
			slog.Debug("cycle still running", "source", key, "since", w.lastStart)
			continue
		}
		if !w.lastFinish.IsZero() && now.Sub(w.lastFinish) < w.task.Interval() {
			continue
		}
		s.launch(ctx, w, now)
	}
}

// launch starts one cycle for w. Callers hold s.mu.
func (s *Scheduler) launch(ctx context.Context, w *worker, now time.Time) {
	w.running = true
	w.lastStart = now
	w.launches++
	s.metrics.IncLaunch(w.task.Key())

	s.wg.Add(1)
	go s.runWorker(ctx, w)
}

func (s *Scheduler) runWorker(ctx context.Context, w *worker) {
	key := w.task.Key()
	var (
		outcome string
		err     error
	)

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
			s.metrics.IncPanic(key)
			slog.Error("cycle panicked", "source", key, "panic", r, "stack", string(debug.Stack()))
		}
		s.finish(w, outcome, err)
		s.wg.Done()
	}()

	outcome, err = w.task.RunCycle(ctx)
}

func (s *Scheduler) finish(w *worker, outcome string, err error) {
	key := w.task.Key()

	s.mu.Lock()
	w.running = false
	w.lastFinish = time.Now()
	w.lastErr = err
	s.mu.Unlock()

	switch {
	case errors.Is(err, context.Canceled):
		// Shutdown, not a source failure.
	case err != nil:
		s.health.SetUnhealthy(key, err)
		slog.Error("cycle failed", "source", key, "error", err)
	default:
		s.health.SetHealthy(key, outcome)
	}
}

// wait reports whether every worker finished within the shutdown timeout.
func (s *Scheduler) wait() bool {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return true
	case <-time.After(s.shutdownTimeout):
		slog.Warn("cycles still running after shutdown timeout", "timeout", s.shutdownTimeout, "running", s.running())
		return false
	}
}

func (s *Scheduler) running() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var keys []string
	for _, key := range s.order {
		if s.workers[key].running {
			keys = append(keys, key)
		}
	}
	return keys
}

// Snapshot returns the state of every worker in source order.
func (s *Scheduler) Snapshot() []WorkerStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]WorkerStatus, 0, len(s.order))
	for _, key := range s.order {
		w := s.workers[key]
		st := WorkerStatus{
			Source:     key,
			Running:    w.running,
			Launches:   w.launches,
			LastStart:  w.lastStart,
			LastFinish: w.lastFinish,
		}
		if w.lastErr != nil {
			st.LastError = w.lastErr.Error()
		}
		out = append(out, st)
	}
	return out
}

// Health returns the health tracker.
func (s *Scheduler) Health() *Health {
	return s.health
}

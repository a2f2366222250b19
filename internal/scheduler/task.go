package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/abdulachik/littlebird/internal/detect"
	"github.com/abdulachik/littlebird/internal/metrics"
	"github.com/abdulachik/littlebird/internal/monitor"
	"github.com/abdulachik/littlebird/internal/notify"
	"github.com/abdulachik/littlebird/internal/state"
	"github.com/google/uuid"
)

const defaultCycleTimeout = 30 * time.Second

// History records delivery attempts. It is optional.
type History interface {
	RecordDelivery(ctx context.Context, key, message string, deliveryErr error) error
}

// Task binds one source to its detector, notifier and interval. RunCycle
// performs a single fetch, compare, notify and persist pass; the Scheduler
// decides when to run it again.
type Task struct {
	fetcher  monitor.Fetcher
	detector *detect.Detector
	notifier notify.Notifier
	store    state.Store
	history  History
	interval time.Duration
	timeout  time.Duration
	metrics  *metrics.Recorder
}

// TaskConfig holds task configuration.
type TaskConfig struct {
	Fetcher  monitor.Fetcher
	Strategy detect.Strategy
	Notifier notify.Notifier
	Store    state.Store
	History  History
	Interval time.Duration // wait after a cycle finishes before the next one
	Timeout  time.Duration // bound on one cycle's fetch and delivery, default 30s
	Metrics  *metrics.Recorder
}

// NewTask creates a task.
func NewTask(cfg TaskConfig) (*Task, error) {
	if cfg.Fetcher == nil {
		return nil, fmt.Errorf("fetcher is required")
	}
	if cfg.Notifier == nil {
		return nil, fmt.Errorf("notifier is required")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if cfg.Interval <= 0 {
		return nil, fmt.Errorf("interval must be positive for %s", cfg.Fetcher.Name())
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultCycleTimeout
	}

	return &Task{
		fetcher:  cfg.Fetcher,
		detector: detect.New(cfg.Store, cfg.Strategy),
		notifier: cfg.Notifier,
		store:    cfg.Store,
		history:  cfg.History,
		interval: cfg.Interval,
		timeout:  timeout,
		metrics:  cfg.Metrics,
	}, nil
}

// Key returns the source key.
func (t *Task) Key() string {
	return t.fetcher.Name()
}

// Interval returns the polling interval.
func (t *Task) Interval() time.Duration {
	return t.interval
}

// RunCycle runs one cycle and returns its outcome. Errors are reported for
// logging only; state is written solely by the final persist step.
func (t *Task) RunCycle(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	key := t.Key()
	log := slog.With("source", key, "cycle_id", uuid.NewString())
	start := time.Now()

	cycleCtx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	log.Debug("running cycle")

	fetched := t.fetcher.Fetch(cycleCtx)
	if !fetched.OK {
		log.Debug("no usable data this cycle")
		t.metrics.ObserveCycle(key, metrics.OutcomeNoData, time.Since(start))
		return metrics.OutcomeNoData, nil
	}

	decision := t.detector.Detect(cycleCtx, key, fetched)

	// Once a notification may have gone out, the remaining bookkeeping must
	// not be skipped because of shutdown.
	persistCtx := context.WithoutCancel(ctx)

	var cycleErr error
	if decision.Notify {
		err := t.notifier.Send(cycleCtx, notify.Notification{Source: key, Body: decision.Value})
		t.metrics.IncDelivery(key, err == nil)
		if err != nil {
			log.Warn("notification failed", "error", err)
			cycleErr = fmt.Errorf("deliver: %w", err)
		}
		if t.history != nil {
			if herr := t.history.RecordDelivery(persistCtx, key, decision.Value, err); herr != nil {
				log.Warn("failed to record delivery", "error", herr)
			}
		}
	}

	if decision.Persist {
		err := t.store.Put(persistCtx, key, decision.Value)
		t.metrics.IncStateWrite(key, err == nil)
		if err != nil {
			log.Error("failed to persist state", "error", err)
			cycleErr = errors.Join(cycleErr, fmt.Errorf("persist: %w", err))
		}
	}

	outcome := metrics.OutcomeUnchanged
	switch {
	case cycleErr != nil:
		outcome = metrics.OutcomeFailed
	case decision.Notify:
		outcome = metrics.OutcomeNotified
	}
	t.metrics.ObserveCycle(key, outcome, time.Since(start))

	log.Info("cycle complete",
		"outcome", outcome,
		"strategy", t.detector.Strategy(),
		"duration", time.Since(start),
	)

	return outcome, cycleErr
}

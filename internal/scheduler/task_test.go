package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/abdulachik/littlebird/internal/detect"
	"github.com/abdulachik/littlebird/internal/metrics"
	"github.com/abdulachik/littlebird/internal/monitor"
	"github.com/abdulachik/littlebird/internal/notify"
	"github.com/abdulachik/littlebird/internal/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedFetcher returns queued results, then nothing.
type scriptedFetcher struct {
	name    string
	mu      sync.Mutex
	results []monitor.Result
	calls   int
}

func (f *scriptedFetcher) Name() string { return f.name }

func (f *scriptedFetcher) Fetch(ctx context.Context) monitor.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if len(f.results) == 0 {
		return monitor.Result{}
	}
	r := f.results[0]
	f.results = f.results[1:]
	return r
}

// recordingNotifier keeps every notification it is asked to send.
type recordingNotifier struct {
	mu   sync.Mutex
	sent []notify.Notification
	err  error
}

func (n *recordingNotifier) Send(ctx context.Context, notification notify.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, notification)
	return nil
}

func (n *recordingNotifier) bodies() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, 0, len(n.sent))
	for _, s := range n.sent {
		out = append(out, s.Body)
	}
	return out
}

// readOnlyStore serves reads from a MemoryStore and fails every write.
type readOnlyStore struct {
	*state.MemoryStore
}

func (readOnlyStore) Put(ctx context.Context, key, value string) error {
	return errors.New("read-only file system")
}

type historyEntry struct {
	key, message string
	err          error
}

type recordingHistory struct {
	entries []historyEntry
}

func (h *recordingHistory) RecordDelivery(ctx context.Context, key, message string, deliveryErr error) error {
	h.entries = append(h.entries, historyEntry{key, message, deliveryErr})
	return nil
}

func newTestTask(t *testing.T, cfg TaskConfig) *Task {
	t.Helper()
	if cfg.Interval == 0 {
		cfg.Interval = time.Minute
	}
	task, err := NewTask(cfg)
	require.NoError(t, err)
	return task
}

func storedValue(t *testing.T, store state.Store, key string) string {
	t.Helper()
	v, _, err := store.Get(context.Background(), key)
	require.NoError(t, err)
	return v
}

func TestNewTask(t *testing.T) {
	base := TaskConfig{
		Fetcher:  &scriptedFetcher{name: "news"},
		Notifier: &recordingNotifier{},
		Store:    state.NewMemoryStore(),
		Interval: time.Minute,
	}

	task, err := NewTask(base)
	require.NoError(t, err)
	assert.Equal(t, "news", task.Key())
	assert.Equal(t, time.Minute, task.Interval())
	assert.Equal(t, defaultCycleTimeout, task.timeout)

	noInterval := base
	noInterval.Interval = 0
	_, err = NewTask(noInterval)
	assert.Error(t, err)

	noStore := base
	noStore.Store = nil
	_, err = NewTask(noStore)
	assert.Error(t, err)
}

func TestTask_TimelineScenario(t *testing.T) {
	ctx := context.Background()
	store := state.NewMemoryStore()
	notifier := &recordingNotifier{}
	fetcher := &scriptedFetcher{name: "news", results: []monitor.Result{
		monitor.Found("BBC: Breaking https://x"),
		monitor.Found("BBC: Breaking https://x"),
		monitor.Found("BBC: Other https://y"),
	}}
	task := newTestTask(t, TaskConfig{Fetcher: fetcher, Strategy: detect.Equality, Notifier: notifier, Store: store})

	outcome, err := task.RunCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, metrics.OutcomeNotified, outcome)
	assert.Equal(t, []string{"BBC: Breaking https://x"}, notifier.bodies())
	assert.Equal(t, "BBC: Breaking https://x", storedValue(t, store, "news"))

	outcome, err = task.RunCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, metrics.OutcomeUnchanged, outcome)
	assert.Len(t, notifier.bodies(), 1)
	assert.Equal(t, "BBC: Breaking https://x", storedValue(t, store, "news"))

	outcome, err = task.RunCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, metrics.OutcomeNotified, outcome)
	assert.Equal(t, []string{"BBC: Breaking https://x", "BBC: Other https://y"}, notifier.bodies())
	assert.Equal(t, "BBC: Other https://y", storedValue(t, store, "news"))
}

func TestTask_WeatherScenario(t *testing.T) {
	ctx := context.Background()
	store := state.NewMemoryStore()
	require.NoError(t, store.Put(ctx, "weather", "2mm of rain in Portland"))

	notifier := &recordingNotifier{}
	fetcher := &scriptedFetcher{name: "weather", results: []monitor.Result{
		monitor.Found("1mm of rain in Portland"),
		monitor.Found("3mm of rain in Portland"),
	}}
	task := newTestTask(t, TaskConfig{Fetcher: fetcher, Strategy: detect.LexicallyGreater, Notifier: notifier, Store: store})

	outcome, err := task.RunCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, metrics.OutcomeUnchanged, outcome)
	assert.Empty(t, notifier.bodies())
	assert.Equal(t, "2mm of rain in Portland", storedValue(t, store, "weather"))

	outcome, err = task.RunCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, metrics.OutcomeNotified, outcome)
	assert.Equal(t, []string{"3mm of rain in Portland"}, notifier.bodies())
	assert.Equal(t, "3mm of rain in Portland", storedValue(t, store, "weather"))
}

func TestTask_NoDataLeavesStateAlone(t *testing.T) {
	ctx := context.Background()
	for _, strategy := range []detect.Strategy{detect.Equality, detect.LexicallyGreater} {
		t.Run(strategy.String(), func(t *testing.T) {
			store := state.NewMemoryStore()
			require.NoError(t, store.Put(ctx, "news", "previous"))
			notifier := &recordingNotifier{}
			task := newTestTask(t, TaskConfig{
				Fetcher:  &scriptedFetcher{name: "news"},
				Strategy: strategy,
				Notifier: notifier,
				Store:    store,
			})

			outcome, err := task.RunCycle(ctx)
			require.NoError(t, err)
			assert.Equal(t, metrics.OutcomeNoData, outcome)
			assert.Empty(t, notifier.bodies())
			assert.Equal(t, "previous", storedValue(t, store, "news"))
		})
	}
}

func TestTask_DeliveryFailureStillPersists(t *testing.T) {
	ctx := context.Background()
	store := state.NewMemoryStore()
	history := &recordingHistory{}
	notifier := &recordingNotifier{err: errors.New("rate limited")}
	task := newTestTask(t, TaskConfig{
		Fetcher:  &scriptedFetcher{name: "news", results: []monitor.Result{monitor.Found("BBC: Breaking https://x")}},
		Strategy: detect.Equality,
		Notifier: notifier,
		Store:    store,
		History:  history,
	})

	outcome, err := task.RunCycle(ctx)
	assert.Error(t, err)
	assert.Equal(t, metrics.OutcomeFailed, outcome)
	assert.Equal(t, "BBC: Breaking https://x", storedValue(t, store, "news"))

	require.Len(t, history.entries, 1)
	assert.Equal(t, "news", history.entries[0].key)
	assert.EqualError(t, history.entries[0].err, "rate limited")
}

func TestTask_PersistFailureIsReported(t *testing.T) {
	ctx := context.Background()
	store := readOnlyStore{state.NewMemoryStore()}
	notifier := &recordingNotifier{}
	task := newTestTask(t, TaskConfig{
		Fetcher:  &scriptedFetcher{name: "news", results: []monitor.Result{monitor.Found("BBC: Breaking https://x")}},
		Strategy: detect.Equality,
		Notifier: notifier,
		Store:    store,
	})

	outcome, err := task.RunCycle(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "persist")
	assert.Equal(t, metrics.OutcomeFailed, outcome)
	assert.Len(t, notifier.bodies(), 1)
}

func TestTask_CancelledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	fetcher := &scriptedFetcher{name: "news", results: []monitor.Result{monitor.Found("x https://x")}}
	task := newTestTask(t, TaskConfig{Fetcher: fetcher, Notifier: &recordingNotifier{}, Store: state.NewMemoryStore()})

	_, err := task.RunCycle(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, fetcher.calls)
}

// blockingFetcher waits for its context to end.
type blockingFetcher struct {
	name    string
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func newBlockingFetcher(name string) *blockingFetcher {
	return &blockingFetcher{name: name, started: make(chan struct{}), release: make(chan struct{})}
}

func (f *blockingFetcher) Name() string { return f.name }

func (f *blockingFetcher) Fetch(ctx context.Context) monitor.Result {
	f.once.Do(func() { close(f.started) })
	select {
	case <-ctx.Done():
	case <-f.release:
	}
	return monitor.Result{}
}

func TestTask_TimeoutBoundsFetch(t *testing.T) {
	task := newTestTask(t, TaskConfig{
		Fetcher:  newBlockingFetcher("news"),
		Notifier: &recordingNotifier{},
		Store:    state.NewMemoryStore(),
		Timeout:  20 * time.Millisecond,
	})

	start := time.Now()
	outcome, err := task.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, metrics.OutcomeNoData, outcome)
	assert.Less(t, time.Since(start), time.Second)
}

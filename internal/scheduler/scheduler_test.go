package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/abdulachik/littlebird/internal/detect"
	"github.com/abdulachik/littlebird/internal/metrics"
	"github.com/abdulachik/littlebird/internal/monitor"
	"github.com/abdulachik/littlebird/internal/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingFetcher returns the same content on every call.
type countingFetcher struct {
	name    string
	content string
	calls   atomic.Int64
}

func (f *countingFetcher) Name() string { return f.name }

func (f *countingFetcher) Fetch(ctx context.Context) monitor.Result {
	f.calls.Add(1)
	return monitor.Found(f.content)
}

// panickingFetcher panics on every call.
type panickingFetcher struct {
	name  string
	calls atomic.Int64
}

func (f *panickingFetcher) Name() string { return f.name }

func (f *panickingFetcher) Fetch(ctx context.Context) monitor.Result {
	f.calls.Add(1)
	panic("boom")
}

func startScheduler(t *testing.T, cfg Config) (*Scheduler, context.CancelFunc, <-chan error) {
	t.Helper()
	if cfg.SupervisionInterval == 0 {
		cfg.SupervisionInterval = 5 * time.Millisecond
	}
	s, err := New(cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- s.Run(ctx) }()
	t.Cleanup(cancel)
	return s, cancel, errCh
}

func launches(s *Scheduler, source string) uint64 {
	for _, st := range s.Snapshot() {
		if st.Source == source {
			return st.Launches
		}
	}
	return 0
}

func TestNew(t *testing.T) {
	t.Run("requires tasks", func(t *testing.T) {
		_, err := New(Config{})
		assert.Error(t, err)
	})

	t.Run("rejects duplicate sources", func(t *testing.T) {
		store := state.NewMemoryStore()
		a := newTestTask(t, TaskConfig{Fetcher: &countingFetcher{name: "news"}, Notifier: &recordingNotifier{}, Store: store})
		b := newTestTask(t, TaskConfig{Fetcher: &countingFetcher{name: "news"}, Notifier: &recordingNotifier{}, Store: store})

		_, err := New(Config{Tasks: []*Task{a, b}})
		assert.Error(t, err)
	})

	t.Run("defaults", func(t *testing.T) {
		task := newTestTask(t, TaskConfig{Fetcher: &countingFetcher{name: "news"}, Notifier: &recordingNotifier{}, Store: state.NewMemoryStore()})
		s, err := New(Config{Tasks: []*Task{task}})
		require.NoError(t, err)
		assert.Equal(t, defaultSupervisionInterval, s.tick)
		assert.Equal(t, defaultShutdownTimeout, s.shutdownTimeout)
		assert.NotNil(t, s.Health())
	})
}

func TestScheduler_RelaunchesAfterInterval(t *testing.T) {
	fetcher := &countingFetcher{name: "news", content: "BBC: Breaking https://x"}
	notifier := &recordingNotifier{}
	task := newTestTask(t, TaskConfig{
		Fetcher:  fetcher,
		Strategy: detect.Equality,
		Notifier: notifier,
		Store:    state.NewMemoryStore(),
		Interval: 10 * time.Millisecond,
	})

	s, _, _ := startScheduler(t, Config{Tasks: []*Task{task}})

	assert.Eventually(t, func() bool { return fetcher.calls.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)
	// Identical content is delivered once only.
	assert.Equal(t, []string{"BBC: Breaking https://x"}, notifier.bodies())

	status := s.Health().GetStatus("news")
	require.NotNil(t, status)
	assert.True(t, status.Healthy)
}

func TestScheduler_WaitsForInterval(t *testing.T) {
	fetcher := &countingFetcher{name: "weather", content: "1mm of rain in Portland"}
	task := newTestTask(t, TaskConfig{
		Fetcher:  fetcher,
		Strategy: detect.LexicallyGreater,
		Notifier: &recordingNotifier{},
		Store:    state.NewMemoryStore(),
		Interval: time.Hour,
	})

	s, _, _ := startScheduler(t, Config{Tasks: []*Task{task}})

	assert.Eventually(t, func() bool { return fetcher.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int64(1), fetcher.calls.Load())
	assert.Equal(t, uint64(1), launches(s, "weather"))
}

func TestScheduler_NoOverlappingCycles(t *testing.T) {
	blocker := newBlockingFetcher("news")
	task := newTestTask(t, TaskConfig{
		Fetcher:  blocker,
		Notifier: &recordingNotifier{},
		Store:    state.NewMemoryStore(),
		Interval: time.Millisecond,
		Timeout:  time.Hour,
	})

	s, _, _ := startScheduler(t, Config{Tasks: []*Task{task}})

	<-blocker.started
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, uint64(1), launches(s, "news"))
	assert.True(t, s.Snapshot()[0].Running)

	close(blocker.release)
	assert.Eventually(t, func() bool { return launches(s, "news") >= 2 }, time.Second, 5*time.Millisecond)
}

func TestScheduler_SourcesDoNotBlockEachOther(t *testing.T) {
	blocker := newBlockingFetcher("news")
	defer close(blocker.release)

	weather := &countingFetcher{name: "weather", content: "1mm of rain in Portland"}
	store := state.NewMemoryStore()

	slow := newTestTask(t, TaskConfig{Fetcher: blocker, Notifier: &recordingNotifier{}, Store: store, Timeout: time.Hour})
	fast := newTestTask(t, TaskConfig{
		Fetcher:  weather,
		Strategy: detect.LexicallyGreater,
		Notifier: &recordingNotifier{},
		Store:    store,
		Interval: 5 * time.Millisecond,
	})

	startScheduler(t, Config{Tasks: []*Task{slow, fast}})

	<-blocker.started
	assert.Eventually(t, func() bool { return weather.calls.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)
}

func TestScheduler_RecoversPanickingCycle(t *testing.T) {
	ctx := context.Background()
	store := state.NewMemoryStore()
	require.NoError(t, store.Put(ctx, "news", "before"))

	fetcher := &panickingFetcher{name: "news"}
	rec := metrics.NewRecorder()
	task := newTestTask(t, TaskConfig{
		Fetcher:  fetcher,
		Notifier: &recordingNotifier{},
		Store:    store,
		Interval: 5 * time.Millisecond,
	})

	s, _, _ := startScheduler(t, Config{Tasks: []*Task{task}, Metrics: rec})

	assert.Eventually(t, func() bool { return fetcher.calls.Load() >= 2 }, 2*time.Second, 5*time.Millisecond)

	status := s.Health().GetStatus("news")
	require.NotNil(t, status)
	assert.False(t, status.Healthy)
	assert.Contains(t, status.Message, "panic")
	assert.Equal(t, "before", storedValue(t, store, "news"))
}

func TestScheduler_Shutdown(t *testing.T) {
	blocker := newBlockingFetcher("news")
	task := newTestTask(t, TaskConfig{
		Fetcher:  blocker,
		Notifier: &recordingNotifier{},
		Store:    state.NewMemoryStore(),
		Timeout:  time.Hour,
	})

	s, cancel, errCh := startScheduler(t, Config{Tasks: []*Task{task}, ShutdownTimeout: time.Second})

	<-blocker.started
	cancel()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}

	// The in-flight fetch observed cancellation and the worker finished.
	assert.False(t, s.Snapshot()[0].Running)
}

// stallingStore blocks writes until released, ignoring cancellation.
type stallingStore struct {
	*state.MemoryStore
	release chan struct{}
}

func (s stallingStore) Put(ctx context.Context, key, value string) error {
	<-s.release
	return s.MemoryStore.Put(ctx, key, value)
}

func TestScheduler_ShutdownTimeoutReportsRunningCycles(t *testing.T) {
	store := stallingStore{MemoryStore: state.NewMemoryStore(), release: make(chan struct{})}
	notifier := &recordingNotifier{}
	task := newTestTask(t, TaskConfig{
		Fetcher:  &countingFetcher{name: "news", content: "BBC: Breaking https://x"},
		Notifier: notifier,
		Store:    store,
	})

	s, cancel, errCh := startScheduler(t, Config{Tasks: []*Task{task}, ShutdownTimeout: 20 * time.Millisecond})

	assert.Eventually(t, func() bool { return len(notifier.bodies()) == 1 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, ErrShutdownTimeout)
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}
	assert.True(t, s.Snapshot()[0].Running)

	// The write still lands once the store responds.
	close(store.release)
	assert.Eventually(t, func() bool { return !s.Snapshot()[0].Running }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "BBC: Breaking https://x", storedValue(t, store, "news"))
}

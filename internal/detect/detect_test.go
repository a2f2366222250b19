package detect

import (
	"context"
	"errors"
	"testing"

	"github.com/abdulachik/littlebird/internal/monitor"
	"github.com/abdulachik/littlebird/internal/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// failingStore returns an error from every read.
type failingStore struct{}

func (failingStore) Get(ctx context.Context, key string) (string, bool, error) {
	return "", false, errors.New("disk on fire")
}

func (failingStore) Put(ctx context.Context, key, value string) error {
	return errors.New("disk on fire")
}

func TestDecide_Equality(t *testing.T) {
	tests := []struct {
		name    string
		last    string
		exists  bool
		fetched monitor.Result
		want    Decision
	}{
		{
			name:    "first poll notifies",
			fetched: monitor.Found("BBC: Breaking https://x"),
			want:    Decision{Notify: true, Persist: true, Value: "BBC: Breaking https://x"},
		},
		{
			name:    "same content is refreshed silently",
			last:    "BBC: Breaking https://x",
			exists:  true,
			fetched: monitor.Found("BBC: Breaking https://x"),
			want:    Decision{Notify: false, Persist: true, Value: "BBC: Breaking https://x"},
		},
		{
			name:    "different content notifies",
			last:    "BBC: Breaking https://x",
			exists:  true,
			fetched: monitor.Found("BBC: Other https://y"),
			want:    Decision{Notify: true, Persist: true, Value: "BBC: Other https://y"},
		},
		{
			name:    "empty stored value counts as absent",
			last:    "",
			exists:  true,
			fetched: monitor.Found("BBC: Breaking https://x"),
			want:    Decision{Notify: true, Persist: true, Value: "BBC: Breaking https://x"},
		},
		{
			name:    "nothing fetched",
			last:    "BBC: Breaking https://x",
			exists:  true,
			fetched: monitor.Result{},
			want:    Decision{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Decide(Equality, tt.last, tt.exists, tt.fetched))
		})
	}
}

func TestDecide_LexicallyGreater(t *testing.T) {
	tests := []struct {
		name    string
		last    string
		fetched string
		notify  bool
	}{
		{"lesser", "2mm of rain in Portland", "1mm of rain in Portland", false},
		{"greater", "2mm of rain in Portland", "3mm of rain in Portland", true},
		{"equal", "2mm of rain in Portland", "2mm of rain in Portland", false},
		{"empty store", "", "0.0mm of rain in Portland", true},
		// String order, not numeric: "10mm" < "2mm".
		{"textual not numeric", "2mm of rain in Portland", "10mm of rain in Portland", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Decide(LexicallyGreater, tt.last, tt.last != "", monitor.Found(tt.fetched))
			assert.Equal(t, tt.notify, d.Notify)
			assert.Equal(t, tt.notify, d.Persist)
			assert.Equal(t, tt.fetched, d.Value)
		})
	}

	t.Run("nothing fetched", func(t *testing.T) {
		assert.Equal(t, Decision{}, Decide(LexicallyGreater, "", false, monitor.Result{}))
	})
}

func TestDetector_Detect(t *testing.T) {
	ctx := context.Background()

	t.Run("reads stored value", func(t *testing.T) {
		store := state.NewMemoryStore()
		require.NoError(t, store.Put(ctx, "weather", "2mm of rain in Portland"))

		d := New(store, LexicallyGreater)
		assert.False(t, d.Detect(ctx, "weather", monitor.Found("1mm of rain in Portland")).Notify)
		assert.True(t, d.Detect(ctx, "weather", monitor.Found("3mm of rain in Portland")).Notify)
	})

	t.Run("does not write", func(t *testing.T) {
		store := state.NewMemoryStore()
		d := New(store, Equality)

		decision := d.Detect(ctx, "news", monitor.Found("BBC: Breaking https://x"))
		assert.True(t, decision.Notify)

		_, exists, err := store.Get(ctx, "news")
		require.NoError(t, err)
		assert.False(t, exists)
	})

	t.Run("read failure looks like first poll", func(t *testing.T) {
		d := New(failingStore{}, Equality)
		decision := d.Detect(ctx, "news", monitor.Found("BBC: Breaking https://x"))
		assert.True(t, decision.Notify)
		assert.True(t, decision.Persist)
	})

	t.Run("skips store when nothing fetched", func(t *testing.T) {
		d := New(failingStore{}, Equality)
		assert.Equal(t, Decision{}, d.Detect(ctx, "news", monitor.Result{}))
	})
}

func TestParseStrategy(t *testing.T) {
	for _, s := range []Strategy{Equality, LexicallyGreater} {
		got, err := ParseStrategy(s.String())
		require.NoError(t, err)
		assert.Equal(t, s, got)
	}

	_, err := ParseStrategy("numeric")
	assert.Error(t, err)
}

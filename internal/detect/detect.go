// Package detect decides whether freshly fetched content is new relative to
// the stored last value of a source.
package detect

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/abdulachik/littlebird/internal/monitor"
	"github.com/abdulachik/littlebird/internal/state"
)

// Strategy selects how fetched content is compared with the stored value.
type Strategy int

const (
	// Equality notifies whenever content differs from the stored value and
	// stores every successful fetch.
	Equality Strategy = iota

	// LexicallyGreater notifies only when content sorts strictly after the
	// stored value as a plain string, and stores only what it notified.
	// "10mm" sorts before "2mm"; the comparison is intentionally textual.
	LexicallyGreater
)

func (s Strategy) String() string {
	switch s {
	case Equality:
		return "equality"
	case LexicallyGreater:
		return "lexically-greater"
	default:
		return fmt.Sprintf("strategy(%d)", int(s))
	}
}

// ParseStrategy parses the name returned by String.
func ParseStrategy(name string) (Strategy, error) {
	switch name {
	case "equality":
		return Equality, nil
	case "lexically-greater":
		return LexicallyGreater, nil
	default:
		return 0, fmt.Errorf("unknown detection strategy %q", name)
	}
}

// Decision is the outcome of comparing one fetch with stored state.
type Decision struct {
	Notify  bool
	Persist bool
	Value   string // value to persist when Persist is set
}

// Decide applies strategy to a fetch result and the stored value.
func Decide(strategy Strategy, last string, exists bool, fetched monitor.Result) Decision {
	if !fetched.OK {
		return Decision{}
	}

	switch strategy {
	case LexicallyGreater:
		changed := fetched.Content > last
		return Decision{Notify: changed, Persist: changed, Value: fetched.Content}
	default:
		changed := !exists || last == "" || fetched.Content != last
		return Decision{Notify: changed, Persist: true, Value: fetched.Content}
	}
}

// Detector compares fetches against a Store.
type Detector struct {
	store    state.Store
	strategy Strategy
}

// New creates a detector reading from store.
func New(store state.Store, strategy Strategy) *Detector {
	return &Detector{store: store, strategy: strategy}
}

// Strategy returns the configured strategy.
func (d *Detector) Strategy() Strategy {
	return d.strategy
}

// Detect reads the stored value for key and decides. A failed read is
// treated as no prior value, which makes the fetch look new.
func (d *Detector) Detect(ctx context.Context, key string, fetched monitor.Result) Decision {
	if !fetched.OK {
		return Decision{}
	}

	last, exists, err := d.store.Get(ctx, key)
	if err != nil {
		slog.Warn("failed to read state, treating as first poll", "source", key, "error", err)
		last, exists = "", false
	}

	return Decide(d.strategy, last, exists, fetched)
}

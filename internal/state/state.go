// Package state persists the last value seen for each monitored source.
package state

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidKey is returned for source keys that cannot name a record.
var ErrInvalidKey = errors.New("invalid source key")

// Store is durable key to last-value storage. A missing record is reported as
// exists=false with an empty value, never as an error.
type Store interface {
	// Get returns the last value stored for key.
	Get(ctx context.Context, key string) (value string, exists bool, err error)

	// Put overwrites the value stored for key.
	Put(ctx context.Context, key, value string) error
}

func validateKey(key string) error {
	if key == "" || strings.ContainsAny(key, `/\`) || key == "." || key == ".." {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return nil
}

package monitor

import (
	"context"
)

// Result is the content fetched from a source in one cycle.
// OK is false when the source had nothing usable, including when the
// request failed. It is not an error and leaves stored state untouched.
type Result struct {
	Content string
	OK      bool
}

// Found returns a usable result. Empty content is never usable.
func Found(content string) Result {
	return Result{Content: content, OK: content != ""}
}

// Fetcher is the interface for monitored sources.
type Fetcher interface {
	// Name returns the name of this source.
	Name() string

	// Fetch retrieves the latest content. Transport and parse failures are
	// logged and reported as a Result with OK false.
	Fetch(ctx context.Context) Result
}

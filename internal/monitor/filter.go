package monitor

import (
	"fmt"
	"regexp"
)

// DefaultLinkPattern matches items that carry a link.
const DefaultLinkPattern = `https?://`

// Filter selects timeline items that match a pattern.
type Filter struct {
	pattern *regexp.Regexp
}

// FilterConfig holds filter configuration.
type FilterConfig struct {
	Pattern string // default: DefaultLinkPattern
}

// NewFilter creates a new filter.
func NewFilter(cfg FilterConfig) (*Filter, error) {
	pattern := cfg.Pattern
	if pattern == "" {
		pattern = DefaultLinkPattern
	}

	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("compile filter pattern: %w", err)
	}

	return &Filter{pattern: re}, nil
}

// FilterResult contains the filter decision.
type FilterResult struct {
	Pass   bool
	Reason string
}

// Check examines an item and returns whether it should be considered.
func (f *Filter) Check(item string) FilterResult {
	if item == "" {
		return FilterResult{Pass: false, Reason: "empty item"}
	}
	if !f.pattern.MatchString(item) {
		return FilterResult{Pass: false, Reason: "no match for " + f.pattern.String()}
	}
	return FilterResult{Pass: true}
}

// First returns the first item that passes, preserving the caller's order.
func (f *Filter) First(items []string) (string, bool) {
	for _, item := range items {
		if f.Check(item).Pass {
			return item, true
		}
	}
	return "", false
}

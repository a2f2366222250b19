package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/abdulachik/littlebird/internal/twitter"
)

const timelineDefaultCount = 20

// TimelineReader lists recent tweets of an account, newest first.
type TimelineReader interface {
	UserTimeline(ctx context.Context, screenName string, count int) ([]twitter.Tweet, error)
}

// TimelineFetcher yields the newest tweet of an account that matches the
// filter, formatted as "<author>: <text>".
type TimelineFetcher struct {
	name    string
	reader  TimelineReader
	account string
	count   int
	filter  *Filter
}

// TimelineConfig holds configuration for the timeline fetcher.
type TimelineConfig struct {
	Name    string // default: "news"
	Reader  TimelineReader
	Account string
	Count   int
	Filter  *Filter
}

// NewTimelineFetcher creates a new timeline fetcher.
func NewTimelineFetcher(cfg TimelineConfig) (*TimelineFetcher, error) {
	if cfg.Reader == nil {
		return nil, fmt.Errorf("timeline reader is required")
	}
	if cfg.Account == "" {
		return nil, fmt.Errorf("timeline account is required")
	}

	name := cfg.Name
	if name == "" {
		name = "news"
	}
	count := cfg.Count
	if count <= 0 {
		count = timelineDefaultCount
	}
	filter := cfg.Filter
	if filter == nil {
		var err error
		if filter, err = NewFilter(FilterConfig{}); err != nil {
			return nil, err
		}
	}

	return &TimelineFetcher{
		name:    name,
		reader:  cfg.Reader,
		account: cfg.Account,
		count:   count,
		filter:  filter,
	}, nil
}

// Name returns the source name.
func (f *TimelineFetcher) Name() string {
	return f.name
}

// Fetch returns the newest matching item.
func (f *TimelineFetcher) Fetch(ctx context.Context) Result {
	tweets, err := f.reader.UserTimeline(ctx, f.account, f.count)
	if err != nil {
		slog.Info("timeline fetch failed", "source", f.name, "account", f.account, "error", err)
		return Result{}
	}

	items := make([]string, 0, len(tweets))
	for _, tw := range tweets {
		items = append(items, FormatTweet(tw))
	}

	item, ok := f.filter.First(items)
	if !ok {
		slog.Debug("no matching timeline items", "source", f.name, "fetched", len(tweets))
		return Result{}
	}
	return Found(item)
}

// FormatTweet renders a tweet as "<author>: <text>".
func FormatTweet(tw twitter.Tweet) string {
	author := tw.User.Name
	if author == "" {
		author = tw.User.ScreenName
	}
	text := strings.Join(strings.Fields(tw.Body()), " ")
	return fmt.Sprintf("%s: %s", author, text)
}

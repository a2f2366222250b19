package notify

import (
	"context"
	"log/slog"
)

// LogNotifier writes notifications to the log instead of delivering them.
// It backs dry runs.
type LogNotifier struct {
	toHandle string
}

// NewLogNotifier creates a new log notifier. toHandle is only reported.
func NewLogNotifier(toHandle string) *LogNotifier {
	return &LogNotifier{toHandle: toHandle}
}

// Send logs the notification.
func (l *LogNotifier) Send(ctx context.Context, notification Notification) error {
	slog.Info("notification",
		"to", l.toHandle,
		"source", notification.Source,
		"body", notification.Body,
	)
	return nil
}

package notify

import "context"

// Notification represents a notification message.
type Notification struct {
	Source string // key of the source that produced the message
	Body   string
}

// Notifier is the interface for sending notifications.
type Notifier interface {
	// Send delivers a notification. Failures are not retried by the caller.
	Send(ctx context.Context, notification Notification) error
}

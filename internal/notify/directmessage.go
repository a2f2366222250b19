package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/abdulachik/littlebird/internal/twitter"
)

// DirectMessenger is the subset of the Twitter client used for delivery.
type DirectMessenger interface {
	LookupUser(ctx context.Context, screenName string) (*twitter.User, error)
	SendDirectMessage(ctx context.Context, recipientID, text string) error
}

// DirectMessageNotifier sends notifications as private direct messages.
type DirectMessageNotifier struct {
	client     DirectMessenger
	screenName string

	mu          sync.Mutex
	recipientID string
}

// DirectMessageConfig holds configuration for direct message notifications.
type DirectMessageConfig struct {
	Client     DirectMessenger
	ScreenName string // Recipient's screen name
}

// NewDirectMessageNotifier creates a new direct message notifier.
func NewDirectMessageNotifier(cfg DirectMessageConfig) (*DirectMessageNotifier, error) {
	if cfg.Client == nil {
		return nil, fmt.Errorf("direct message client is required")
	}
	if cfg.ScreenName == "" {
		return nil, fmt.Errorf("recipient screen name is required")
	}
	return &DirectMessageNotifier{
		client:     cfg.Client,
		screenName: cfg.ScreenName,
	}, nil
}

// Resolve looks up the recipient's user id. Send calls it when needed; calling
// it at startup surfaces a bad recipient before any source is polled.
func (d *DirectMessageNotifier) Resolve(ctx context.Context) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.recipientID != "" {
		return d.recipientID, nil
	}

	user, err := d.client.LookupUser(ctx, d.screenName)
	if err != nil {
		return "", fmt.Errorf("resolve recipient: %w", err)
	}
	d.recipientID = user.ID

	slog.Debug("resolved notification recipient", "screen_name", d.screenName, "id", user.ID)
	return d.recipientID, nil
}

// Send delivers the notification body as a direct message.
func (d *DirectMessageNotifier) Send(ctx context.Context, notification Notification) error {
	recipientID, err := d.Resolve(ctx)
	if err != nil {
		return err
	}

	if err := d.client.SendDirectMessage(ctx, recipientID, notification.Body); err != nil {
		return fmt.Errorf("deliver %s notification: %w", notification.Source, err)
	}

	slog.Info("notification delivered", "source", notification.Source, "to", d.screenName)
	return nil
}

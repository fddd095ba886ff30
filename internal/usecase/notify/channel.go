// Package notify fans classified changes out to the configured delivery
// channels. Delivery is asynchronous: the orchestrator hands a change over
// and moves on, while each channel sends in its own goroutine behind a
// worker pool and a per-channel circuit breaker.
package notify

import (
	"context"

	"regwatch/internal/infra/notifier"
)

// Channel is one delivery target. Implementations rate limit and retry on
// their own and must be safe for concurrent use.
type Channel interface {
	// Name is the lowercase identifier used in logs, metrics and health output.
	Name() string
	IsEnabled() bool
	// Send returns an error only when delivery finally failed.
	Send(ctx context.Context, msg *notifier.Message) error
}

// webhookChannel adapts a notifier.Notifier to Channel.
type webhookChannel struct {
	name     string
	enabled  bool
	notifier notifier.Notifier
}

// NewWebhookChannel wraps n. A disabled channel rejects Send with
// ErrChannelDisabled.
func NewWebhookChannel(name string, enabled bool, n notifier.Notifier) Channel {
	return &webhookChannel{name: name, enabled: enabled, notifier: n}
}

func NewSlackChannel(cfg notifier.WebhookConfig) Channel {
	return NewWebhookChannel("slack", cfg.Enabled, notifier.NewSlackNotifier(cfg))
}

func NewDiscordChannel(cfg notifier.WebhookConfig) Channel {
	return NewWebhookChannel("discord", cfg.Enabled, notifier.NewDiscordNotifier(cfg))
}

func (c *webhookChannel) Name() string    { return c.name }
func (c *webhookChannel) IsEnabled() bool { return c.enabled }

func (c *webhookChannel) Send(ctx context.Context, msg *notifier.Message) error {
	if !c.enabled {
		return ErrChannelDisabled
	}
	if msg == nil || msg.ChangeID == "" {
		return ErrInvalidMessage
	}
	return c.notifier.NotifyChange(ctx, msg)
}

package notifier

import (
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	pkgconfig "regwatch/internal/pkg/config"
)

const (
	defaultTimeout     = 30 * time.Second
	defaultMaxAttempts = 2
	defaultRetryDelay  = 5 * time.Second
)

// WebhookConfig configures one webhook channel.
type WebhookConfig struct {
	Enabled    bool
	WebhookURL string
	Timeout    time.Duration

	// MaxAttempts and RetryDelay drive the in-call retry loop. Zero values
	// fall back to 2 attempts and 5s.
	MaxAttempts int
	RetryDelay  time.Duration
}

func (c WebhookConfig) withDefaults() WebhookConfig {
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = defaultMaxAttempts
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = defaultRetryDelay
	}
	return c
}

// LoadSlackConfig reads SLACK_ENABLED, SLACK_WEBHOOK_URL and
// SLACK_TIMEOUT. A malformed URL disables the channel with a warning.
func LoadSlackConfig(logger *slog.Logger) WebhookConfig {
	return loadWebhookConfig(logger, "SLACK", "hooks.slack.com", "/services/")
}

// LoadDiscordConfig reads DISCORD_ENABLED, DISCORD_WEBHOOK_URL and
// DISCORD_TIMEOUT.
func LoadDiscordConfig(logger *slog.Logger) WebhookConfig {
	return loadWebhookConfig(logger, "DISCORD", "discord.com", "/api/webhooks/")
}

func loadWebhookConfig(logger *slog.Logger, prefix, host, pathPrefix string) WebhookConfig {
	enabled := pkgconfig.LoadEnvBool(prefix+"_ENABLED", false)
	for _, w := range enabled.Warnings {
		logger.Warn(w)
	}
	if !enabled.Value.(bool) {
		return WebhookConfig{}
	}

	webhookURL := pkgconfig.LoadEnvString(prefix+"_WEBHOOK_URL", "")
	if err := ValidateWebhookURL(webhookURL, host, pathPrefix); err != nil {
		logger.Warn("invalid webhook URL, disabling notifications",
			slog.String("channel", strings.ToLower(prefix)),
			slog.Any("error", err))
		return WebhookConfig{}
	}

	timeout := pkgconfig.LoadEnvDuration(prefix+"_TIMEOUT", defaultTimeout, func(d time.Duration) error {
		return pkgconfig.ValidateDuration(d, time.Second, 2*time.Minute)
	})
	for _, w := range timeout.Warnings {
		logger.Warn(w)
	}

	return WebhookConfig{
		Enabled:    true,
		WebhookURL: webhookURL,
		Timeout:    timeout.Value.(time.Duration),
	}.withDefaults()
}

// ValidateWebhookURL requires an https URL on host whose path starts with
// pathPrefix.
func ValidateWebhookURL(raw, host, pathPrefix string) error {
	if raw == "" {
		return fmt.Errorf("webhook URL is empty")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("parse webhook URL: %w", err)
	}
	if u.Scheme != "https" {
		return fmt.Errorf("webhook URL must use https, got %q", u.Scheme)
	}
	if u.Host != host {
		return fmt.Errorf("webhook host must be %s, got %q", host, u.Host)
	}
	if !strings.HasPrefix(u.Path, pathPrefix) {
		return fmt.Errorf("webhook path must start with %s", pathPrefix)
	}
	return nil
}

package notifier

import (
	"context"
	"net/http"
	"time"

	"regwatch/internal/domain/entity"
)

const (
	// Embed limits.
	maxEmbedTitleLength       = 256
	maxEmbedDescriptionLength = 4096
	maxEmbedFooterLength      = 2048
)

var impactColors = map[entity.Impact]int{
	entity.ImpactCritical:      0xE74C3C,
	entity.ImpactHigh:          0xE67E22,
	entity.ImpactMedium:        0xF1C40F,
	entity.ImpactLow:           0x3498DB,
	entity.ImpactInformational: 0x95A5A6,
}

const unclassifiedColor = 0x7F8C8D

// DiscordNotifier posts embeds to a Discord webhook.
type DiscordNotifier struct {
	hook *webhook
}

// NewDiscordNotifier rate limits to 30 requests per minute with a burst of 3.
func NewDiscordNotifier(cfg WebhookConfig) *DiscordNotifier {
	cfg = cfg.withDefaults()
	return &DiscordNotifier{hook: &webhook{
		service:     "discord",
		url:         cfg.WebhookURL,
		client:      &http.Client{Timeout: cfg.Timeout},
		limiter:     NewRateLimiter(0.5, 3),
		maxAttempts: cfg.MaxAttempts,
		baseDelay:   cfg.RetryDelay,
	}}
}

type DiscordWebhookPayload struct {
	Embeds []DiscordEmbed `json:"embeds"`
}

type DiscordEmbed struct {
	Title       string             `json:"title"`
	Description string             `json:"description"`
	URL         string             `json:"url"`
	Color       int                `json:"color"`
	Footer      DiscordEmbedFooter `json:"footer"`
	Timestamp   string             `json:"timestamp"`
}

type DiscordEmbedFooter struct {
	Text string `json:"text"`
}

func buildDiscordPayload(msg *Message) DiscordWebhookPayload {
	color, ok := impactColors[msg.Impact]
	if !ok {
		color = unclassifiedColor
	}
	return DiscordWebhookPayload{Embeds: []DiscordEmbed{{
		Title:       truncate(msg.Title(), maxEmbedTitleLength, truncationSuffix),
		Description: truncate(msg.Body(), maxEmbedDescriptionLength, truncationSuffix),
		URL:         msg.URL,
		Color:       color,
		Footer:      DiscordEmbedFooter{Text: truncate(msg.Footer(), maxEmbedFooterLength, truncationSuffix)},
		Timestamp:   msg.DetectedAt.UTC().Format(time.RFC3339),
	}}}
}

// NotifyChange delivers msg as a single embed colored by impact.
func (d *DiscordNotifier) NotifyChange(ctx context.Context, msg *Message) error {
	return d.hook.deliver(ctx, msg, buildDiscordPayload(msg))
}

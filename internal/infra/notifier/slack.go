package notifier

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

const (
	// Block Kit limits.
	maxSectionTextLength = 3000
	maxContextTextLength = 2000
	maxFallbackLength    = 150

	truncationSuffix = "..."
)

// SlackNotifier posts Block Kit messages to a Slack incoming webhook.
type SlackNotifier struct {
	hook *webhook
}

// NewSlackNotifier rate limits to 1 message per second, the webhook limit.
func NewSlackNotifier(cfg WebhookConfig) *SlackNotifier {
	cfg = cfg.withDefaults()
	return &SlackNotifier{hook: &webhook{
		service:     "slack",
		url:         cfg.WebhookURL,
		client:      &http.Client{Timeout: cfg.Timeout},
		limiter:     NewRateLimiter(1.0, 1),
		maxAttempts: cfg.MaxAttempts,
		baseDelay:   cfg.RetryDelay,
	}}
}

type SlackWebhookPayload struct {
	Text   string       `json:"text"`
	Blocks []SlackBlock `json:"blocks"`
}

type SlackBlock struct {
	Type     string            `json:"type"`
	Text     *SlackTextObject  `json:"text,omitempty"`
	Elements []SlackTextObject `json:"elements,omitempty"`
}

type SlackTextObject struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// buildSlackPayload renders a header section with the linked title and
// body, followed by a context line with the metadata.
func buildSlackPayload(msg *Message) SlackWebhookPayload {
	fallback := truncate(msg.Title(), maxFallbackLength, truncationSuffix)

	section := fmt.Sprintf("*<%s|%s>*\n\n%s", msg.URL, msg.Title(), msg.Body())
	section = truncate(section, maxSectionTextLength, truncationSuffix)

	footer := fmt.Sprintf("%s • %s", msg.Footer(), msg.DetectedAt.UTC().Format(time.RFC3339))
	footer = truncate(footer, maxContextTextLength, truncationSuffix)

	return SlackWebhookPayload{
		Text: fallback,
		Blocks: []SlackBlock{
			{Type: "section", Text: &SlackTextObject{Type: "mrkdwn", Text: section}},
			{Type: "context", Elements: []SlackTextObject{{Type: "mrkdwn", Text: footer}}},
		},
	}
}

// NotifyChange delivers msg, retrying server errors and honoring 429s.
func (s *SlackNotifier) NotifyChange(ctx context.Context, msg *Message) error {
	return s.hook.deliver(ctx, msg, buildSlackPayload(msg))
}

package classifier

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// Claude classifies changes with Anthropic's Messages API.
type Claude struct {
	llmClassifier
	client anthropic.Client
}

// NewClaude builds a Claude classifier. SDK-level retries are disabled;
// transient failures are retried by the classifier and by the
// classification queue.
func NewClaude(cfg Config, logger *slog.Logger) (*Claude, error) {
	cfg.Provider = ProviderClaude
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.AnthropicAPIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	c := &Claude{
		llmClassifier: newLLMClassifier(string(ProviderClaude), cfg, logger),
		client:        anthropic.NewClient(opts...),
	}
	c.complete = c.send
	c.logger.Info("initialized classifier",
		slog.String("model", cfg.ClaudeModel),
		slog.Int("max_input_chars", cfg.MaxInputChars))
	return c, nil
}

func (c *Claude) send(ctx context.Context, system, prompt string) (string, error) {
	message, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(c.cfg.ClaudeModel),
		MaxTokens: int64(c.cfg.MaxTokens),
		System:    []anthropic.TextBlockParam{{Text: system}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			return "", providerStatusError("claude", apiErr.StatusCode, err)
		}
		return "", fmt.Errorf("claude api error: %w", err)
	}

	var b strings.Builder
	for _, block := range message.Content {
		if tb, ok := block.AsAny().(anthropic.TextBlock); ok {
			b.WriteString(tb.Text)
		}
	}
	if strings.TrimSpace(b.String()) == "" {
		return "", ErrEmptyResponse
	}
	return b.String(), nil
}

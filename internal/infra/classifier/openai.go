package classifier

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAI classifies changes with the Chat Completions API in JSON mode.
type OpenAI struct {
	llmClassifier
	client *openai.Client
}

func NewOpenAI(cfg Config, logger *slog.Logger) (*OpenAI, error) {
	cfg.Provider = ProviderOpenAI
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	clientCfg := openai.DefaultConfig(cfg.OpenAIAPIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	o := &OpenAI{
		llmClassifier: newLLMClassifier(string(ProviderOpenAI), cfg, logger),
		client:        openai.NewClientWithConfig(clientCfg),
	}
	o.complete = o.send
	o.logger.Info("initialized classifier",
		slog.String("model", cfg.OpenAIModel),
		slog.Int("max_input_chars", cfg.MaxInputChars))
	return o, nil
}

func (o *OpenAI) send(ctx context.Context, system, prompt string) (string, error) {
	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     o.cfg.OpenAIModel,
		MaxTokens: o.cfg.MaxTokens,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) {
			return "", providerStatusError("openai", apiErr.HTTPStatusCode, err)
		}
		var reqErr *openai.RequestError
		if errors.As(err, &reqErr) {
			return "", providerStatusError("openai", reqErr.HTTPStatusCode, err)
		}
		return "", fmt.Errorf("openai api error: %w", err)
	}

	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "", ErrEmptyResponse
	}
	return resp.Choices[0].Message.Content, nil
}

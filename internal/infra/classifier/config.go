package classifier

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"regwatch/internal/pkg/config"
	"regwatch/internal/resilience/retry"
)

// Provider selects the classifier implementation.
type Provider string

const (
	ProviderClaude  Provider = "claude"
	ProviderOpenAI  Provider = "openai"
	ProviderKeyword Provider = "keyword"
)

const (
	DefaultMaxInputChars = 5000
	minInputChars        = 500
	maxInputChars        = 100000

	DefaultClaudeModel = "claude-sonnet-4-5-20250929"
	DefaultOpenAIModel = "gpt-4o-mini"
)

// Config holds classifier settings. Only the fields of the selected
// provider are used.
type Config struct {
	Provider Provider

	AnthropicAPIKey string
	OpenAIAPIKey    string
	ClaudeModel     string
	OpenAIModel     string

	// BaseURL overrides the provider endpoint, e.g. for a gateway.
	BaseURL string

	// MaxInputChars bounds the content sent to the model, in runes.
	MaxInputChars int

	MaxTokens int
	Timeout   time.Duration

	// Retry governs in-call retries of transient provider errors.
	Retry retry.Config
}

func DefaultConfig() Config {
	return Config{
		Provider:      ProviderKeyword,
		ClaudeModel:   DefaultClaudeModel,
		OpenAIModel:   DefaultOpenAIModel,
		MaxInputChars: DefaultMaxInputChars,
		MaxTokens:     1024,
		Timeout:       60 * time.Second,
		Retry:         retry.ClassifierAPIConfig(),
	}
}

// Validate checks the settings of the selected provider.
func (c Config) Validate() error {
	switch c.Provider {
	case ProviderClaude:
		if c.AnthropicAPIKey == "" {
			return fmt.Errorf("claude classifier requires ANTHROPIC_API_KEY")
		}
		if c.ClaudeModel == "" {
			return fmt.Errorf("claude model cannot be empty")
		}
	case ProviderOpenAI:
		if c.OpenAIAPIKey == "" {
			return fmt.Errorf("openai classifier requires OPENAI_API_KEY")
		}
		if c.OpenAIModel == "" {
			return fmt.Errorf("openai model cannot be empty")
		}
	case ProviderKeyword:
		return nil
	default:
		return fmt.Errorf("unknown classifier provider %q", c.Provider)
	}

	if err := config.ValidateIntRange(c.MaxInputChars, minInputChars, maxInputChars); err != nil {
		return fmt.Errorf("max input chars: %w", err)
	}
	if c.MaxTokens <= 0 {
		return fmt.Errorf("max tokens must be positive, got %d", c.MaxTokens)
	}
	if err := config.ValidatePositiveDuration(c.Timeout); err != nil {
		return fmt.Errorf("timeout: %w", err)
	}
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry max attempts must be at least 1, got %d", c.Retry.MaxAttempts)
	}
	return nil
}

// LoadConfig reads the classifier settings from the environment. Invalid
// values fall back to defaults with a warning. A provider whose API key is
// missing falls back to the keyword classifier, so a fresh checkout still
// classifies changes.
//
// Environment variables:
//   - CLASSIFIER_TYPE: claude, openai or keyword (default keyword)
//   - ANTHROPIC_API_KEY, OPENAI_API_KEY
//   - CLAUDE_MODEL, OPENAI_MODEL
//   - CLASSIFIER_BASE_URL
//   - CLASSIFIER_MAX_INPUT_CHARS (default 5000)
//   - CLASSIFIER_TIMEOUT (default 60s)
func LoadConfig(logger *slog.Logger) Config {
	if logger == nil {
		logger = slog.Default()
	}
	cfg := DefaultConfig()

	results := map[string]config.ConfigLoadResult{}
	results["CLASSIFIER_TYPE"] = config.LoadEnvWithFallback("CLASSIFIER_TYPE", string(ProviderKeyword), validateProvider)
	results["CLASSIFIER_MAX_INPUT_CHARS"] = config.LoadEnvInt("CLASSIFIER_MAX_INPUT_CHARS", DefaultMaxInputChars, func(v int) error {
		return config.ValidateIntRange(v, minInputChars, maxInputChars)
	})
	results["CLASSIFIER_TIMEOUT"] = config.LoadEnvDuration("CLASSIFIER_TIMEOUT", cfg.Timeout, config.ValidatePositiveDuration)
	for key, res := range results {
		for _, w := range res.Warnings {
			logger.Warn("classifier configuration fallback", slog.String("key", key), slog.String("warning", w))
		}
	}

	cfg.Provider = Provider(strings.ToLower(results["CLASSIFIER_TYPE"].Value.(string)))
	cfg.MaxInputChars = results["CLASSIFIER_MAX_INPUT_CHARS"].Value.(int)
	cfg.Timeout = results["CLASSIFIER_TIMEOUT"].Value.(time.Duration)
	cfg.AnthropicAPIKey = config.LoadEnvString("ANTHROPIC_API_KEY", "")
	cfg.OpenAIAPIKey = config.LoadEnvString("OPENAI_API_KEY", "")
	cfg.ClaudeModel = config.LoadEnvString("CLAUDE_MODEL", DefaultClaudeModel)
	cfg.OpenAIModel = config.LoadEnvString("OPENAI_MODEL", DefaultOpenAIModel)
	cfg.BaseURL = config.LoadEnvString("CLASSIFIER_BASE_URL", "")

	if err := cfg.Validate(); err != nil {
		logger.Warn("classifier configuration invalid, using keyword classifier",
			slog.String("provider", string(cfg.Provider)),
			slog.String("error", err.Error()))
		cfg.Provider = ProviderKeyword
	}
	return cfg
}

func validateProvider(v string) error {
	switch Provider(strings.ToLower(v)) {
	case ProviderClaude, ProviderOpenAI, ProviderKeyword:
		return nil
	default:
		return fmt.Errorf("must be one of claude, openai, keyword")
	}
}

package classifier_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"regwatch/internal/infra/classifier"
)

func TestLoadConfig(t *testing.T) {
	tests := []struct {
		name         string
		env          map[string]string
		wantProvider classifier.Provider
		wantMaxChars int
	}{
		{
			name:         "defaults to keyword",
			env:          map[string]string{},
			wantProvider: classifier.ProviderKeyword,
			wantMaxChars: classifier.DefaultMaxInputChars,
		},
		{
			name:         "claude with key",
			env:          map[string]string{"CLASSIFIER_TYPE": "Claude", "ANTHROPIC_API_KEY": "k", "CLASSIFIER_MAX_INPUT_CHARS": "8000"},
			wantProvider: classifier.ProviderClaude,
			wantMaxChars: 8000,
		},
		{
			name:         "openai without key falls back",
			env:          map[string]string{"CLASSIFIER_TYPE": "openai"},
			wantProvider: classifier.ProviderKeyword,
			wantMaxChars: classifier.DefaultMaxInputChars,
		},
		{
			name:         "unknown provider falls back",
			env:          map[string]string{"CLASSIFIER_TYPE": "gemini", "ANTHROPIC_API_KEY": "k"},
			wantProvider: classifier.ProviderKeyword,
			wantMaxChars: classifier.DefaultMaxInputChars,
		},
		{
			name:         "out of range input size falls back",
			env:          map[string]string{"CLASSIFIER_TYPE": "openai", "OPENAI_API_KEY": "k", "CLASSIFIER_MAX_INPUT_CHARS": "10"},
			wantProvider: classifier.ProviderOpenAI,
			wantMaxChars: classifier.DefaultMaxInputChars,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, key := range []string{"CLASSIFIER_TYPE", "ANTHROPIC_API_KEY", "OPENAI_API_KEY", "CLASSIFIER_MAX_INPUT_CHARS", "CLASSIFIER_TIMEOUT", "CLASSIFIER_BASE_URL"} {
				t.Setenv(key, "")
			}
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			cfg := classifier.LoadConfig(nil)
			assert.Equal(t, tt.wantProvider, cfg.Provider)
			assert.Equal(t, tt.wantMaxChars, cfg.MaxInputChars)
			require.NoError(t, cfg.Validate())
		})
	}
}

func TestNew_SelectsProvider(t *testing.T) {
	cfg := classifier.DefaultConfig()
	cfg.Provider = classifier.ProviderOpenAI
	cfg.OpenAIAPIKey = "k"
	c, err := classifier.New(cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, "openai", c.Name())

	cfg.Provider = "bard"
	_, err = classifier.New(cfg, nil)
	assert.Error(t, err)
}

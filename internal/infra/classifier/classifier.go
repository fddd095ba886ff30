// Package classifier implements the compliance classification collaborator
// on top of Claude, OpenAI or a local keyword matcher.
//
// Every implementation reports failures through the Err arm of
// entity.ClassificationResult. Model answers are decoded strictly; an
// answer that does not match the expected JSON object is rejected as a
// transient schema mismatch and retried through the classification queue.
package classifier

import (
	"fmt"
	"log/slog"

	"regwatch/internal/usecase/monitor"
)

var (
	_ monitor.Classifier = (*Claude)(nil)
	_ monitor.Classifier = (*OpenAI)(nil)
	_ monitor.Classifier = (*Keyword)(nil)
)

// New builds the classifier selected by cfg.Provider.
func New(cfg Config, logger *slog.Logger) (monitor.Classifier, error) {
	switch cfg.Provider {
	case ProviderClaude:
		c, err := NewClaude(cfg, logger)
		if err != nil {
			return nil, err
		}
		return c, nil
	case ProviderOpenAI:
		o, err := NewOpenAI(cfg, logger)
		if err != nil {
			return nil, err
		}
		return o, nil
	case ProviderKeyword, "":
		return NewKeyword(), nil
	default:
		return nil, fmt.Errorf("unknown classifier provider %q", cfg.Provider)
	}
}

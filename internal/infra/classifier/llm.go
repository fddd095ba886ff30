package classifier

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker"

	"regwatch/internal/domain/entity"
	"regwatch/internal/resilience/circuitbreaker"
	"regwatch/internal/resilience/retry"
	"regwatch/internal/usecase/monitor"
	"regwatch/internal/utils/text"
)

// completeFunc sends one system and user prompt pair to a model and returns
// the raw answer text.
type completeFunc func(ctx context.Context, system, prompt string) (string, error)

// llmClassifier holds what the Claude and OpenAI classifiers share: prompt
// construction, the breaker and retry wrapping, and the strict decode.
type llmClassifier struct {
	provider string
	complete completeFunc
	breaker  *circuitbreaker.CircuitBreaker
	cfg      Config
	logger   *slog.Logger
	now      func() time.Time
}

func newLLMClassifier(provider string, cfg Config, logger *slog.Logger) llmClassifier {
	if logger == nil {
		logger = slog.Default()
	}
	return llmClassifier{
		provider: provider,
		breaker:  circuitbreaker.New(circuitbreaker.ClassifierConfig(provider)),
		cfg:      cfg,
		logger:   logger.With(slog.String("component", "classifier"), slog.String("provider", provider)),
		now:      time.Now,
	}
}

func (c *llmClassifier) Name() string { return c.provider }

// Classify implements monitor.Classifier.
func (c *llmClassifier) Classify(ctx context.Context, content string, meta monitor.SourceMetadata) entity.ClassificationResult {
	if strings.TrimSpace(content) == "" {
		return entity.ClassificationFailed(entity.FailurePermanent, CodeEmptyContent, "no content to classify")
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	requestID := uuid.New().String()
	prompt, truncated := buildPrompt(content, meta, c.cfg.MaxInputChars)
	if truncated {
		inputTruncatedTotal.WithLabelValues(c.provider).Inc()
		c.logger.WarnContext(ctx, "content truncated for classifier",
			slog.String("request_id", requestID),
			slog.String("source_id", meta.SourceID),
			slog.Int("original_length", text.CountRunes(content)),
			slog.Int("max_chars", c.cfg.MaxInputChars))
	}

	start := time.Now()
	var answer string
	err := retry.WithBackoff(ctx, c.cfg.Retry, func() error {
		out, err := circuitbreaker.Run(c.breaker, func() (string, error) {
			return c.complete(ctx, systemPrompt, prompt)
		})
		if err != nil {
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				return errors.Join(ErrCircuitOpen, err)
			}
			return err
		}
		answer = out
		return nil
	})
	duration := time.Since(start)
	recordRequest(c.provider, err, duration)

	if err != nil {
		res := failure(err)
		c.logger.WarnContext(ctx, "classification request failed",
			slog.String("request_id", requestID),
			slog.String("source_id", meta.SourceID),
			slog.String("code", res.Err.Code),
			slog.String("kind", string(res.Err.Kind)),
			slog.Duration("duration", duration),
			slog.Any("error", err))
		return res
	}

	cls, err := decodeClassification(answer)
	if err != nil {
		c.logger.WarnContext(ctx, "classifier answer rejected",
			slog.String("request_id", requestID),
			slog.String("source_id", meta.SourceID),
			slog.Int("answer_length", len(answer)),
			slog.Any("error", err))
		return failure(err)
	}
	cls.ClassifiedAt = c.now().UTC()

	c.logger.InfoContext(ctx, "change classified",
		slog.String("request_id", requestID),
		slog.String("source_id", meta.SourceID),
		slog.String("category", string(cls.Category)),
		slog.String("impact", string(cls.Impact)),
		slog.Float64("confidence", cls.Confidence),
		slog.Duration("duration", duration))
	return entity.Classified(cls)
}

package monitor

import (
	"fmt"
	"time"

	"regwatch/internal/domain/entity"
	"regwatch/internal/resilience/retry"
)

// Config is the immutable runtime configuration of an Orchestrator.
// Workers never read the environment; infra/worker builds this value.
type Config struct {
	Workers   int // concurrent job workers
	QueueSize int // buffered job ids waiting for a worker

	FetchTimeout    time.Duration
	ClassifyTimeout time.Duration

	// StaleAfter is how long an in_progress job may go untouched before a
	// sweep treats its worker as lost and fails the attempt.
	StaleAfter time.Duration

	// BatchSize bounds every list query issued by a sweep or reconcile pass.
	BatchSize int

	Retry         retry.Policy // job attempts
	ClassifyRetry retry.Policy // classification queue attempts

	// NotifyMinImpact is the lowest impact that triggers a notification.
	NotifyMinImpact entity.Impact
}

// DefaultConfig returns the configuration used when nothing is overridden.
func DefaultConfig() Config {
	classify := retry.DefaultPolicy()
	classify.BaseDelay = 30 * time.Second
	classify.MaxDelay = 30 * time.Minute
	classify.MaxAttempts = 5

	return Config{
		Workers:         8,
		QueueSize:       256,
		FetchTimeout:    30 * time.Second,
		ClassifyTimeout: 60 * time.Second,
		StaleAfter:      10 * time.Minute,
		BatchSize:       500,
		Retry:           retry.DefaultPolicy(),
		ClassifyRetry:   classify,
		NotifyMinImpact: entity.ImpactHigh,
	}
}

// Validate checks the configuration for values that would stall or
// overload the pipeline.
func (c Config) Validate() error {
	if c.Workers < 1 || c.Workers > 64 {
		return fmt.Errorf("workers must be between 1 and 64, got %d", c.Workers)
	}
	if c.QueueSize < c.Workers {
		return fmt.Errorf("queue size %d must be at least the worker count %d", c.QueueSize, c.Workers)
	}
	if c.FetchTimeout <= 0 {
		return fmt.Errorf("fetch timeout must be positive, got %s", c.FetchTimeout)
	}
	if c.ClassifyTimeout <= 0 {
		return fmt.Errorf("classify timeout must be positive, got %s", c.ClassifyTimeout)
	}
	if c.StaleAfter <= c.FetchTimeout+c.ClassifyTimeout {
		return fmt.Errorf("stale threshold %s must exceed fetch plus classify timeout %s",
			c.StaleAfter, c.FetchTimeout+c.ClassifyTimeout)
	}
	if c.BatchSize < 1 {
		return fmt.Errorf("batch size must be positive, got %d", c.BatchSize)
	}
	if err := c.Retry.Validate(); err != nil {
		return fmt.Errorf("job %w", err)
	}
	if err := c.ClassifyRetry.Validate(); err != nil {
		return fmt.Errorf("classification %w", err)
	}
	if _, err := entity.ParseImpact(string(c.NotifyMinImpact)); err != nil {
		return fmt.Errorf("notify min impact: %w", err)
	}
	return nil
}

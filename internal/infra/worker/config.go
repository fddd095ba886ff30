package worker

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"regwatch/internal/domain/entity"
	"regwatch/internal/pkg/config"
	"regwatch/internal/usecase/monitor"
	"regwatch/internal/usecase/notify"
)

// WorkerConfig holds the daemon settings read from the environment. It is
// loaded once at startup; the orchestrator receives the derived
// monitor.Config and never reads the environment itself.
type WorkerConfig struct {
	// SweepSchedule and ReconcileSchedule are five-field cron expressions
	// evaluated in Timezone.
	SweepSchedule     string
	ReconcileSchedule string
	Timezone          string

	Concurrency int // 1-64 job workers
	QueueSize   int // at least Concurrency

	FetchTimeout    time.Duration
	ClassifyTimeout time.Duration
	// SweepTimeout bounds one scheduled sweep plus classification retry pass.
	SweepTimeout time.Duration

	RetryBaseDelay      time.Duration
	RetryMaxDelay       time.Duration
	RetryMaxAttempts    int
	RetryJitter         float64
	ClassifyMaxAttempts int

	NotifyMaxConcurrent int
	NotifyMinImpact     entity.Impact

	HealthPort  int
	MetricsPort int
}

// DefaultConfig checks sources every five minutes and reconciles every
// half hour, in UTC.
func DefaultConfig() WorkerConfig {
	return WorkerConfig{
		SweepSchedule:       "*/5 * * * *",
		ReconcileSchedule:   "*/30 * * * *",
		Timezone:            "UTC",
		Concurrency:         8,
		QueueSize:           256,
		FetchTimeout:        30 * time.Second,
		ClassifyTimeout:     60 * time.Second,
		SweepTimeout:        30 * time.Minute,
		RetryBaseDelay:      time.Second,
		RetryMaxDelay:       30 * time.Second,
		RetryMaxAttempts:    3,
		RetryJitter:         0.2,
		ClassifyMaxAttempts: 5,
		NotifyMaxConcurrent: 10,
		NotifyMinImpact:     entity.ImpactHigh,
		HealthPort:          9091,
		MetricsPort:         9090,
	}
}

// Validate reports every invalid field at once.
func (c *WorkerConfig) Validate() error {
	var errs []error
	check := func(field string, err error) {
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", field, err))
		}
	}

	check("sweep schedule", config.ValidateCronSchedule(c.SweepSchedule))
	check("reconcile schedule", config.ValidateCronSchedule(c.ReconcileSchedule))
	check("timezone", config.ValidateTimezone(c.Timezone))
	check("concurrency", config.ValidateIntRange(c.Concurrency, 1, 64))
	check("queue size", config.ValidateIntRange(c.QueueSize, c.Concurrency, 100000))
	check("fetch timeout", config.ValidateDuration(c.FetchTimeout, time.Second, 10*time.Minute))
	check("classify timeout", config.ValidateDuration(c.ClassifyTimeout, time.Second, 10*time.Minute))
	check("sweep timeout", config.ValidateDuration(c.SweepTimeout, time.Minute, 4*time.Hour))
	check("retry base delay", config.ValidatePositiveDuration(c.RetryBaseDelay))
	check("retry max delay", config.ValidateDuration(c.RetryMaxDelay, c.RetryBaseDelay, 24*time.Hour))
	check("retry max attempts", config.ValidateIntRange(c.RetryMaxAttempts, 1, 20))
	check("retry jitter", config.ValidateFloatRange(c.RetryJitter, 0, 1.0/3))
	check("classify max attempts", config.ValidateIntRange(c.ClassifyMaxAttempts, 1, 20))
	check("notify max concurrent", config.ValidateIntRange(c.NotifyMaxConcurrent, 1, 50))
	_, err := entity.ParseImpact(string(c.NotifyMinImpact))
	check("notify min impact", err)
	check("health port", config.ValidateIntRange(c.HealthPort, 1024, 65535))
	check("metrics port", config.ValidateIntRange(c.MetricsPort, 1024, 65535))
	if c.HealthPort == c.MetricsPort {
		errs = append(errs, fmt.Errorf("health port and metrics port must differ, both are %d", c.HealthPort))
	}

	if len(errs) > 0 {
		return fmt.Errorf("validation failed: %w", errors.Join(errs...))
	}
	return nil
}

// LoadConfigFromEnv reads every field from the environment. Invalid values
// fall back to their defaults with a logged warning and a fallback metric,
// so the returned config is always usable and the error is always nil.
//
//	SWEEP_SCHEDULE, RECONCILE_SCHEDULE, WORKER_TIMEZONE,
//	WORKER_CONCURRENCY, WORKER_QUEUE_SIZE,
//	FETCH_TIMEOUT, CLASSIFY_TIMEOUT, SWEEP_TIMEOUT,
//	RETRY_BASE_DELAY, RETRY_MAX_DELAY, RETRY_MAX_ATTEMPTS, RETRY_JITTER,
//	CLASSIFY_MAX_ATTEMPTS, NOTIFY_MAX_CONCURRENT, NOTIFY_MIN_IMPACT,
//	WORKER_HEALTH_PORT, METRICS_PORT
func LoadConfigFromEnv(logger *slog.Logger, metrics *WorkerMetrics) (*WorkerConfig, error) {
	cfg := DefaultConfig()
	fallback := false
	report := func(field string, r config.ConfigLoadResult) config.ConfigLoadResult {
		if metrics.Report(logger, field, r) {
			fallback = true
		}
		return r
	}
	intRange := func(min, max int) func(int) error {
		return func(v int) error { return config.ValidateIntRange(v, min, max) }
	}
	durRange := func(min, max time.Duration) func(time.Duration) error {
		return func(d time.Duration) error { return config.ValidateDuration(d, min, max) }
	}

	cfg.SweepSchedule = report("sweep_schedule",
		config.LoadEnvWithFallback("SWEEP_SCHEDULE", cfg.SweepSchedule, config.ValidateCronSchedule)).Value.(string)
	cfg.ReconcileSchedule = report("reconcile_schedule",
		config.LoadEnvWithFallback("RECONCILE_SCHEDULE", cfg.ReconcileSchedule, config.ValidateCronSchedule)).Value.(string)
	cfg.Timezone = report("timezone",
		config.LoadEnvWithFallback("WORKER_TIMEZONE", cfg.Timezone, config.ValidateTimezone)).Value.(string)

	cfg.Concurrency = report("concurrency",
		config.LoadEnvInt("WORKER_CONCURRENCY", cfg.Concurrency, intRange(1, 64))).Value.(int)
	cfg.QueueSize = report("queue_size",
		config.LoadEnvInt("WORKER_QUEUE_SIZE", cfg.QueueSize, intRange(1, 100000))).Value.(int)
	if cfg.QueueSize < cfg.Concurrency {
		logger.Warn("configuration fallback applied",
			slog.String("field", "queue_size"),
			slog.String("warning", fmt.Sprintf("queue size %d below concurrency %d, raising it", cfg.QueueSize, cfg.Concurrency)))
		metrics.RecordFallback("queue_size")
		fallback = true
		cfg.QueueSize = cfg.Concurrency
	}

	cfg.FetchTimeout = report("fetch_timeout",
		config.LoadEnvDuration("FETCH_TIMEOUT", cfg.FetchTimeout, durRange(time.Second, 10*time.Minute))).Value.(time.Duration)
	cfg.ClassifyTimeout = report("classify_timeout",
		config.LoadEnvDuration("CLASSIFY_TIMEOUT", cfg.ClassifyTimeout, durRange(time.Second, 10*time.Minute))).Value.(time.Duration)
	cfg.SweepTimeout = report("sweep_timeout",
		config.LoadEnvDuration("SWEEP_TIMEOUT", cfg.SweepTimeout, durRange(time.Minute, 4*time.Hour))).Value.(time.Duration)

	cfg.RetryBaseDelay = report("retry_base_delay",
		config.LoadEnvDuration("RETRY_BASE_DELAY", cfg.RetryBaseDelay, config.ValidatePositiveDuration)).Value.(time.Duration)
	cfg.RetryMaxDelay = report("retry_max_delay",
		config.LoadEnvDuration("RETRY_MAX_DELAY", cfg.RetryMaxDelay, durRange(cfg.RetryBaseDelay, 24*time.Hour))).Value.(time.Duration)
	if cfg.RetryMaxDelay < cfg.RetryBaseDelay {
		// The default max can sit below a large configured base.
		cfg.RetryMaxDelay = cfg.RetryBaseDelay
	}
	cfg.RetryMaxAttempts = report("retry_max_attempts",
		config.LoadEnvInt("RETRY_MAX_ATTEMPTS", cfg.RetryMaxAttempts, intRange(1, 20))).Value.(int)
	cfg.RetryJitter = report("retry_jitter",
		config.LoadEnvFloat("RETRY_JITTER", cfg.RetryJitter, func(v float64) error {
			return config.ValidateFloatRange(v, 0, 1.0/3)
		})).Value.(float64)
	cfg.ClassifyMaxAttempts = report("classify_max_attempts",
		config.LoadEnvInt("CLASSIFY_MAX_ATTEMPTS", cfg.ClassifyMaxAttempts, intRange(1, 20))).Value.(int)

	cfg.NotifyMaxConcurrent = report("notify_max_concurrent",
		config.LoadEnvInt("NOTIFY_MAX_CONCURRENT", cfg.NotifyMaxConcurrent, intRange(1, 50))).Value.(int)
	impact := report("notify_min_impact",
		config.LoadEnvWithFallback("NOTIFY_MIN_IMPACT", string(cfg.NotifyMinImpact), func(s string) error {
			_, err := entity.ParseImpact(s)
			return err
		})).Value.(string)
	cfg.NotifyMinImpact = entity.Impact(impact)

	cfg.HealthPort = report("health_port",
		config.LoadEnvInt("WORKER_HEALTH_PORT", cfg.HealthPort, intRange(1024, 65535))).Value.(int)
	cfg.MetricsPort = report("metrics_port",
		config.LoadEnvInt("METRICS_PORT", cfg.MetricsPort, intRange(1024, 65535))).Value.(int)
	if cfg.MetricsPort == cfg.HealthPort {
		def := DefaultConfig()
		logger.Warn("configuration fallback applied",
			slog.String("field", "metrics_port"),
			slog.String("warning", "metrics port collides with health port, using defaults for both"))
		metrics.RecordFallback("metrics_port")
		fallback = true
		cfg.HealthPort, cfg.MetricsPort = def.HealthPort, def.MetricsPort
	}

	metrics.SetFallbackActive(fallback)
	metrics.RecordLoadTimestamp()
	return &cfg, nil
}

// MonitorConfig derives the orchestrator configuration.
func (c *WorkerConfig) MonitorConfig() monitor.Config {
	mc := monitor.DefaultConfig()
	mc.Workers = c.Concurrency
	mc.QueueSize = c.QueueSize
	mc.FetchTimeout = c.FetchTimeout
	mc.ClassifyTimeout = c.ClassifyTimeout
	mc.NotifyMinImpact = c.NotifyMinImpact

	// A job untouched for twice its longest possible attempt is presumed lost.
	if stale := 2 * (c.FetchTimeout + c.ClassifyTimeout); stale > mc.StaleAfter {
		mc.StaleAfter = stale
	}

	mc.Retry.BaseDelay = c.RetryBaseDelay
	mc.Retry.MaxDelay = c.RetryMaxDelay
	mc.Retry.MaxAttempts = c.RetryMaxAttempts
	mc.Retry.JitterFraction = c.RetryJitter

	mc.ClassifyRetry.MaxAttempts = c.ClassifyMaxAttempts
	mc.ClassifyRetry.JitterFraction = c.RetryJitter
	return mc
}

// NotifyConfig derives the notification dispatcher configuration.
func (c *WorkerConfig) NotifyConfig() notify.Config {
	nc := notify.DefaultConfig()
	nc.MaxConcurrent = c.NotifyMaxConcurrent
	return nc
}

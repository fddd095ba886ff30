package worker

import (
	"bytes"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"regwatch/internal/domain/entity"
)

// Worker metrics register with the default registry, so every test in the
// package shares one instance.
var testMetrics = sync.OnceValue(NewWorkerMetrics)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.SweepSchedule != "*/5 * * * *" {
		t.Errorf("SweepSchedule = %q", cfg.SweepSchedule)
	}
	if cfg.Timezone != "UTC" {
		t.Errorf("Timezone = %q", cfg.Timezone)
	}
	if cfg.Concurrency != 8 || cfg.QueueSize != 256 {
		t.Errorf("Concurrency/QueueSize = %d/%d", cfg.Concurrency, cfg.QueueSize)
	}
	if cfg.NotifyMinImpact != entity.ImpactHigh {
		t.Errorf("NotifyMinImpact = %q", cfg.NotifyMinImpact)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestWorkerConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*WorkerConfig)
		wantErr string
	}{
		{"bad sweep cron", func(c *WorkerConfig) { c.SweepSchedule = "every minute" }, "sweep schedule"},
		{"bad timezone", func(c *WorkerConfig) { c.Timezone = "Mars/Olympus" }, "timezone"},
		{"zero concurrency", func(c *WorkerConfig) { c.Concurrency = 0 }, "concurrency"},
		{"queue below concurrency", func(c *WorkerConfig) { c.QueueSize = 4 }, "queue size"},
		{"max delay below base", func(c *WorkerConfig) { c.RetryMaxDelay = time.Millisecond }, "retry max delay"},
		{"jitter too large", func(c *WorkerConfig) { c.RetryJitter = 0.5 }, "retry jitter"},
		{"unknown impact", func(c *WorkerConfig) { c.NotifyMinImpact = "severe" }, "notify min impact"},
		{"port collision", func(c *WorkerConfig) { c.MetricsPort = c.HealthPort }, "must differ"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestWorkerConfig_ValidateReportsAllErrors(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Concurrency = 0
	cfg.Timezone = "nowhere"
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error")
	}
	for _, want := range []string{"concurrency", "timezone"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q missing %q", err, want)
		}
	}
}

func TestLoadConfigFromEnv_Defaults(t *testing.T) {
	m := testMetrics()
	cfg, err := LoadConfigFromEnv(discardLogger(), m)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	def := DefaultConfig()
	if *cfg != def {
		t.Errorf("config = %+v, want defaults %+v", *cfg, def)
	}
	if got := testutil.ToFloat64(m.FallbackActive); got != 0 {
		t.Errorf("fallback active = %v, want 0", got)
	}
}

func TestLoadConfigFromEnv_ValidValues(t *testing.T) {
	t.Setenv("SWEEP_SCHEDULE", "0 * * * *")
	t.Setenv("WORKER_TIMEZONE", "Europe/Brussels")
	t.Setenv("WORKER_CONCURRENCY", "16")
	t.Setenv("WORKER_QUEUE_SIZE", "64")
	t.Setenv("FETCH_TIMEOUT", "45s")
	t.Setenv("RETRY_JITTER", "0.1")
	t.Setenv("NOTIFY_MIN_IMPACT", "medium")
	t.Setenv("WORKER_HEALTH_PORT", "8081")

	cfg, err := LoadConfigFromEnv(discardLogger(), testMetrics())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.SweepSchedule != "0 * * * *" || cfg.Timezone != "Europe/Brussels" {
		t.Errorf("schedule/timezone = %q/%q", cfg.SweepSchedule, cfg.Timezone)
	}
	if cfg.Concurrency != 16 || cfg.QueueSize != 64 {
		t.Errorf("concurrency/queue = %d/%d", cfg.Concurrency, cfg.QueueSize)
	}
	if cfg.FetchTimeout != 45*time.Second {
		t.Errorf("FetchTimeout = %v", cfg.FetchTimeout)
	}
	if cfg.RetryJitter != 0.1 {
		t.Errorf("RetryJitter = %v", cfg.RetryJitter)
	}
	if cfg.NotifyMinImpact != entity.ImpactMedium {
		t.Errorf("NotifyMinImpact = %q", cfg.NotifyMinImpact)
	}
	if cfg.HealthPort != 8081 {
		t.Errorf("HealthPort = %d", cfg.HealthPort)
	}
}

func TestLoadConfigFromEnv_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("SWEEP_SCHEDULE", "not a cron")
	t.Setenv("WORKER_CONCURRENCY", "1000")
	t.Setenv("CLASSIFY_TIMEOUT", "forever")
	t.Setenv("NOTIFY_MIN_IMPACT", "catastrophic")

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	m := testMetrics()
	before := testutil.ToFloat64(m.FallbacksTotal.WithLabelValues("concurrency"))

	cfg, err := LoadConfigFromEnv(logger, m)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	def := DefaultConfig()
	if cfg.SweepSchedule != def.SweepSchedule {
		t.Errorf("SweepSchedule = %q, want default", cfg.SweepSchedule)
	}
	if cfg.Concurrency != def.Concurrency {
		t.Errorf("Concurrency = %d, want default", cfg.Concurrency)
	}
	if cfg.ClassifyTimeout != def.ClassifyTimeout {
		t.Errorf("ClassifyTimeout = %v, want default", cfg.ClassifyTimeout)
	}
	if cfg.NotifyMinImpact != def.NotifyMinImpact {
		t.Errorf("NotifyMinImpact = %q, want default", cfg.NotifyMinImpact)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("fallback config invalid: %v", err)
	}

	if got := testutil.ToFloat64(m.FallbacksTotal.WithLabelValues("concurrency")); got != before+1 {
		t.Errorf("concurrency fallbacks = %v, want %v", got, before+1)
	}
	if got := testutil.ToFloat64(m.FallbackActive); got != 1 {
		t.Errorf("fallback active = %v, want 1", got)
	}
	if !strings.Contains(buf.String(), "field=sweep_schedule") {
		t.Errorf("missing sweep_schedule warning in log:\n%s", buf.String())
	}
}

func TestLoadConfigFromEnv_CrossFieldFixes(t *testing.T) {
	t.Run("queue raised to concurrency", func(t *testing.T) {
		t.Setenv("WORKER_CONCURRENCY", "32")
		t.Setenv("WORKER_QUEUE_SIZE", "10")
		cfg, _ := LoadConfigFromEnv(discardLogger(), testMetrics())
		if cfg.QueueSize != 32 {
			t.Errorf("QueueSize = %d, want 32", cfg.QueueSize)
		}
	})

	t.Run("max delay clamped to base", func(t *testing.T) {
		t.Setenv("RETRY_BASE_DELAY", "2m")
		cfg, _ := LoadConfigFromEnv(discardLogger(), testMetrics())
		if cfg.RetryMaxDelay != 2*time.Minute {
			t.Errorf("RetryMaxDelay = %v, want 2m", cfg.RetryMaxDelay)
		}
	})

	t.Run("port collision resets both", func(t *testing.T) {
		t.Setenv("WORKER_HEALTH_PORT", "8000")
		t.Setenv("METRICS_PORT", "8000")
		cfg, _ := LoadConfigFromEnv(discardLogger(), testMetrics())
		if cfg.HealthPort != 9091 || cfg.MetricsPort != 9090 {
			t.Errorf("ports = %d/%d, want defaults", cfg.HealthPort, cfg.MetricsPort)
		}
	})
}

func TestWorkerConfig_MonitorConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Concurrency = 4
	cfg.QueueSize = 40
	cfg.FetchTimeout = 5 * time.Minute
	cfg.ClassifyTimeout = 5 * time.Minute
	cfg.RetryMaxAttempts = 7
	cfg.ClassifyMaxAttempts = 2

	mc := cfg.MonitorConfig()
	if mc.Workers != 4 || mc.QueueSize != 40 {
		t.Errorf("Workers/QueueSize = %d/%d", mc.Workers, mc.QueueSize)
	}
	if mc.StaleAfter != 20*time.Minute {
		t.Errorf("StaleAfter = %v, want 20m", mc.StaleAfter)
	}
	if mc.Retry.MaxAttempts != 7 || mc.ClassifyRetry.MaxAttempts != 2 {
		t.Errorf("attempts = %d/%d", mc.Retry.MaxAttempts, mc.ClassifyRetry.MaxAttempts)
	}
	if err := mc.Validate(); err != nil {
		t.Errorf("derived monitor config invalid: %v", err)
	}

	defCfg := DefaultConfig()
	if got := defCfg.MonitorConfig().StaleAfter; got != 10*time.Minute {
		t.Errorf("default StaleAfter = %v, want 10m", got)
	}
}

func TestWorkerConfig_NotifyConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.NotifyMaxConcurrent = 3
	if got := cfg.NotifyConfig().MaxConcurrent; got != 3 {
		t.Errorf("MaxConcurrent = %d, want 3", got)
	}
}

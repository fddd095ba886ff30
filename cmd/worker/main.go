package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"regwatch/internal/app"
	hhttp "regwatch/internal/handler/http"
	"regwatch/internal/infra/notifier"
	workerPkg "regwatch/internal/infra/worker"
	"regwatch/internal/observability/logging"
	"regwatch/internal/observability/tracing"
	"regwatch/internal/usecase/monitor"
	"regwatch/internal/usecase/notify"
)

func main() {
	if err := run(); err != nil {
		slog.Error("worker exited", slog.Any("error", logging.SanitizeError(err)))
		os.Exit(1)
	}
}

func run() error {
	logger := logging.NewLogger()
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing := tracing.Init()
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logger.Error("failed to shut down tracer provider", slog.Any("error", err))
		}
	}()

	// Invalid values fall back to defaults, so loading never stops the worker.
	workerMetrics := workerPkg.NewWorkerMetrics()
	cfg, err := workerPkg.LoadConfigFromEnv(logger, workerMetrics)
	if err != nil {
		return fmt.Errorf("load worker configuration: %w", err)
	}
	logger.Info("worker configuration loaded",
		slog.String("sweep_schedule", cfg.SweepSchedule),
		slog.String("reconcile_schedule", cfg.ReconcileSchedule),
		slog.String("timezone", cfg.Timezone),
		slog.Int("concurrency", cfg.Concurrency),
		slog.String("notify_min_impact", string(cfg.NotifyMinImpact)),
		slog.Int("health_port", cfg.HealthPort),
		slog.Int("metrics_port", cfg.MetricsPort))

	store, err := app.OpenPostgres(ctx, os.Getenv("DATABASE_URL"), os.Getenv("DB_AUTO_MIGRATE") == "true", logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("failed to close database", slog.Any("error", err))
		}
	}()
	store.ReportPoolStats(ctx, 15*time.Second)

	notifyService := notify.NewService(notifyChannels(logger), cfg.NotifyConfig(), logger)

	pipeline, err := app.NewPipeline(store, app.Options{
		Monitor:  cfg.MonitorConfig(),
		Notifier: notifyService,
		Logger:   logger,
	})
	if err != nil {
		return err
	}
	orch := pipeline.Orchestrator

	workerPkg.StartMetricsServer(ctx, fmt.Sprintf(":%d", cfg.MetricsPort),
		workerPkg.MetricsHandler(notifyService.ChannelHealth), logger)

	healthServer := workerPkg.NewHealthServer(fmt.Sprintf(":%d", cfg.HealthPort), logger,
		func(ctx context.Context) (any, error) { return orch.Status(ctx) })
	healthServer.Mount(hhttp.NewRouter(pipeline.Sources, store.Changes, logger))
	go func() {
		if err := healthServer.Start(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("health server failed", slog.Any("error", err))
		}
	}()

	if err := orch.Start(ctx); err != nil {
		return fmt.Errorf("start orchestrator: %w", err)
	}

	scheduler, err := newScheduler(logger, orch, cfg, workerMetrics)
	if err != nil {
		return err
	}
	scheduler.Start()
	healthServer.SetReady(true)
	logger.Info("worker started")

	// Pick up anything left over from the previous process right away.
	go runSweep(ctx, logger, orch, cfg, workerMetrics)
	go runClassificationRetries(ctx, logger, orch, cfg, workerMetrics)

	<-ctx.Done()
	logger.Info("shutdown signal received")
	healthServer.SetReady(false)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	select {
	case <-scheduler.Stop().Done():
	case <-shutdownCtx.Done():
		logger.Warn("scheduled runs still in progress at shutdown")
	}
	if err := orch.Stop(shutdownCtx); err != nil {
		logger.Error("orchestrator did not stop cleanly", slog.Any("error", err))
	}
	if err := notifyService.Shutdown(shutdownCtx); err != nil {
		logger.Error("notification service did not stop cleanly", slog.Any("error", err))
	}
	logger.Info("worker stopped")
	return nil
}

// notifyChannels builds the Slack and Discord channels. A channel whose
// webhook is disabled or invalid is still registered so it shows up in
// /health/channels.
func notifyChannels(logger *slog.Logger) []notify.Channel {
	channels := []notify.Channel{
		notify.NewSlackChannel(notifier.LoadSlackConfig(logger)),
		notify.NewDiscordChannel(notifier.LoadDiscordConfig(logger)),
	}
	for _, ch := range channels {
		logger.Info("notification channel configured",
			slog.String("channel", ch.Name()),
			slog.Bool("enabled", ch.IsEnabled()))
	}
	return channels
}

// scheduledTask is one cron entry.
type scheduledTask struct {
	name string
	spec string
	run  func()
}

// scheduledTasks lists the daemon's cron entries. Classification retries are
// an entry of their own, so a slow classifier cannot hold the sweep's slot.
func scheduledTasks(logger *slog.Logger, orch *monitor.Orchestrator, cfg *workerPkg.WorkerConfig, metrics *workerPkg.WorkerMetrics) []scheduledTask {
	return []scheduledTask{
		{"sweep", cfg.SweepSchedule, func() {
			runSweep(context.Background(), logger, orch, cfg, metrics)
		}},
		{"classify", cfg.SweepSchedule, func() {
			runClassificationRetries(context.Background(), logger, orch, cfg, metrics)
		}},
		{"reconcile", cfg.ReconcileSchedule, func() {
			runReconcile(logger, orch, cfg, metrics)
		}},
	}
}

// newScheduler registers scheduledTasks. cron.SkipIfStillRunning wraps each
// entry separately, so a slow run only skips its own next tick.
func newScheduler(logger *slog.Logger, orch *monitor.Orchestrator, cfg *workerPkg.WorkerConfig, metrics *workerPkg.WorkerMetrics) (*cron.Cron, error) {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		logger.Error("invalid timezone, using UTC", slog.String("timezone", cfg.Timezone), slog.Any("error", err))
		loc = time.UTC
	}
	c := cron.New(
		cron.WithLocation(loc),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)

	for _, task := range scheduledTasks(logger, orch, cfg, metrics) {
		if _, err := c.AddFunc(task.spec, task.run); err != nil {
			return nil, fmt.Errorf("schedule %s: %w", task.name, err)
		}
	}
	return c, nil
}

// runSweep enqueues due work for the worker pool.
func runSweep(ctx context.Context, logger *slog.Logger, orch *monitor.Orchestrator, cfg *workerPkg.WorkerConfig, metrics *workerPkg.WorkerMetrics) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, cfg.SweepTimeout)
	defer cancel()

	stats, err := orch.Sweep(ctx)
	if err != nil {
		logger.Error("sweep failed", slog.String("error", logging.SanitizeError(err)))
	} else {
		metrics.RecordSweep(stats)
		logger.Info("sweep completed",
			slog.Int("due", stats.Due),
			slog.Int("created", stats.Created),
			slog.Int("enqueued", stats.Enqueued),
			slog.Int("promoted", stats.Promoted),
			slog.Int("recovered", stats.Recovered),
			slog.Duration("duration", time.Since(start)))
	}
	metrics.RecordRun("sweep", err, time.Since(start))
}

// runClassificationRetries retries due classifications.
func runClassificationRetries(ctx context.Context, logger *slog.Logger, orch *monitor.Orchestrator, cfg *workerPkg.WorkerConfig, metrics *workerPkg.WorkerMetrics) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, cfg.SweepTimeout)
	defer cancel()

	report, err := orch.ProcessClassificationRetries(ctx)
	if err != nil {
		logger.Error("classification retries failed", slog.String("error", logging.SanitizeError(err)))
	} else if report.Due > 0 {
		logger.Info("classification retries completed",
			slog.Int("due", report.Due),
			slog.Int("classified", report.Classified),
			slog.Int("gave_up", report.GaveUp),
			slog.Duration("duration", time.Since(start)))
	}
	metrics.RecordRun("classify", err, time.Since(start))
}

func runReconcile(logger *slog.Logger, orch *monitor.Orchestrator, cfg *workerPkg.WorkerConfig, metrics *workerPkg.WorkerMetrics) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), cfg.SweepTimeout)
	defer cancel()

	report, err := orch.Reconcile(ctx)
	if err != nil {
		logger.Error("reconcile failed", slog.String("error", logging.SanitizeError(err)))
	} else if report.Recorded > 0 {
		logger.Warn("reconcile regenerated change records",
			slog.Int("unrecorded", report.Unrecorded),
			slog.Int("recorded", report.Recorded))
	}
	metrics.RecordRun("reconcile", err, time.Since(start))
}

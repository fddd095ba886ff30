package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"regwatch/internal/app"
	"regwatch/internal/domain/entity"
	"regwatch/internal/infra/notifier"
	workerPkg "regwatch/internal/infra/worker"
	"regwatch/internal/usecase/monitor"
	"regwatch/internal/usecase/notify"
	"regwatch/internal/usecase/source"
)

var workerMetrics = sync.OnceValue(workerPkg.NewWorkerMetrics)

// loadMonitorConfig reads the same environment as the worker daemon.
func loadMonitorConfig(logger *slog.Logger) (monitor.Config, error) {
	cfg, err := workerPkg.LoadConfigFromEnv(logger, workerMetrics())
	if err != nil {
		return monitor.Config{}, err
	}
	return cfg.MonitorConfig(), nil
}

func newRunOnceCmd(c *cli) *cobra.Command {
	var (
		opts    monitor.RunOptions
		seed    string
		notifyF bool
	)
	cmd := &cobra.Command{
		Use:   "run-once",
		Short: "Check every due source once and exit non-zero if any job failed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			var svc *notify.Service
			if notifyF {
				svc = notify.NewService([]notify.Channel{
					notify.NewSlackChannel(notifier.LoadSlackConfig(c.logger)),
					notify.NewDiscordChannel(notifier.LoadDiscordConfig(c.logger)),
				}, notify.DefaultConfig(), c.logger)
				c.options.Notifier = svc
				defer shutdownNotify(c.logger, svc)
			}

			return c.withPipeline(ctx, func(p *app.Pipeline) error {
				if seed != "" {
					if err := importFile(ctx, c, p.Sources, seed); err != nil {
						return err
					}
				}
				report, err := p.Orchestrator.RunOnce(ctx, opts)
				if report != nil {
					printRunReport(c, report)
				}
				if err != nil {
					return err
				}
				if report.Failed > 0 {
					return errJobsFailed
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&opts.Drain, "drain", false, "wait for scheduled retries so every job settles")
	cmd.Flags().DurationVar(&opts.MaxWait, "max-wait", 5*time.Minute, "longest single wait for a retry when draining")
	cmd.Flags().StringVar(&seed, "sources", "", "YAML seed file to import before the run")
	cmd.Flags().BoolVar(&notifyF, "notify", false, "send Slack/Discord notifications for high-impact changes")
	return cmd
}

func shutdownNotify(logger *slog.Logger, svc *notify.Service) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := svc.Shutdown(ctx); err != nil {
		logger.Warn("notifications still in flight at exit", slog.Any("error", err))
	}
}

func printRunReport(c *cli, r *monitor.RunReport) {
	w := tabwriter.NewWriter(c.out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "due\t%d\n", r.Due)
	fmt.Fprintf(w, "created\t%d\n", r.Created)
	fmt.Fprintf(w, "completed\t%d\n", r.Completed)
	fmt.Fprintf(w, "failed\t%d\n", r.Failed)
	fmt.Fprintf(w, "retry_scheduled\t%d\n", r.RetryScheduled)
	fmt.Fprintf(w, "cancelled\t%d\n", r.Cancelled)
	fmt.Fprintf(w, "changes\t%d\n", r.Changes)
	fmt.Fprintf(w, "unchanged\t%d\n", r.Unchanged)
	fmt.Fprintf(w, "classified\t%d\n", r.Classified)
	fmt.Fprintf(w, "classifications_queued\t%d\n", r.ClassificationsQueued)
	fmt.Fprintf(w, "classifications_gave_up\t%d\n", r.ClassificationsGaveUp)
	fmt.Fprintf(w, "reconciled\t%d\n", r.Reconciled)
	fmt.Fprintf(w, "store_errors\t%d\n", r.StoreErrors)
	fmt.Fprintf(w, "duration\t%s\n", r.Duration.Round(time.Millisecond))
	_ = w.Flush()
}

func newStatusCmd(c *cli) *cobra.Command {
	var worker string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show job counts per state and pending classification retries",
		Long: `Show job counts per state and pending classification retries.

Store error counts live in the process that hit them. With --worker the
report, store errors included, comes from a running worker's /status
endpoint; without it store_errors only covers this command.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if worker != "" {
				st, err := fetchWorkerStatus(cmd.Context(), worker)
				if err != nil {
					return err
				}
				return printStatus(c.out, st, "store_errors")
			}
			return c.withPipeline(cmd.Context(), func(p *app.Pipeline) error {
				st, err := p.Orchestrator.Status(cmd.Context())
				if err != nil {
					return err
				}
				return printStatus(c.out, st, "store_errors (this process)")
			})
		},
	}
	cmd.Flags().StringVar(&worker, "worker", "", "base URL of a worker health server, e.g. http://localhost:9091")
	return cmd
}

// fetchWorkerStatus reads the StatusReport a worker serves on /status.
func fetchWorkerStatus(ctx context.Context, baseURL string) (*monitor.StatusReport, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(baseURL, "/")+"/status", nil)
	if err != nil {
		return nil, fmt.Errorf("worker status: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("worker status: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("worker status: %s", resp.Status)
	}
	var st monitor.StatusReport
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		return nil, fmt.Errorf("worker status: decode: %w", err)
	}
	return &st, nil
}

func printStatus(out io.Writer, st *monitor.StatusReport, storeLabel string) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "JOBS")
	for _, s := range entity.JobStatuses {
		fmt.Fprintf(w, "  %s\t%d\n", s, st.Jobs[s])
	}
	fmt.Fprintln(w, "CLASSIFICATIONS")
	keys := make([]string, 0, len(st.Classifications))
	for k := range st.Classifications {
		keys = append(keys, string(k))
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(w, "  %s\t%d\n", k, st.Classifications[entity.ClassificationTaskStatus(k)])
	}
	fmt.Fprintf(w, "active_sources\t%d\n", st.ActiveSources)
	fmt.Fprintf(w, "unrecorded_snapshots\t%d\n", st.UnrecordedSnapshots)
	fmt.Fprintf(w, "%s\t%d\n", storeLabel, st.StoreErrors)
	return w.Flush()
}

func newCancelCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel JOB_ID",
		Short: "Cancel a pending, running or retry-scheduled job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withPipeline(cmd.Context(), func(p *app.Pipeline) error {
				job, err := p.Orchestrator.Cancel(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(c.out, "job %s cancelled\n", job.ID)
				return nil
			})
		},
	}
}

func newReconcileCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Regenerate change records missing for committed snapshots",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withPipeline(cmd.Context(), func(p *app.Pipeline) error {
				r, err := p.Orchestrator.Reconcile(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(c.out, "unrecorded %d, recorded %d\n", r.Unrecorded, r.Recorded)
				return nil
			})
		},
	}
}

func importFile(ctx context.Context, c *cli, svc *source.Service, path string) error {
	f, err := os.Open(path) // #nosec G304 -- operator supplied path
	if err != nil {
		return fmt.Errorf("open seed file: %w", err)
	}
	defer func() { _ = f.Close() }()

	report, err := svc.Import(ctx, f)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "imported %d, skipped %d, invalid %d\n",
		len(report.Created), len(report.Skipped), len(report.Invalid))
	for url, reason := range report.Invalid {
		c.logger.Warn("invalid seed entry", slog.String("url", url), slog.String("reason", reason))
	}
	return nil
}

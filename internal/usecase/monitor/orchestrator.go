// Package monitor drives the regulatory monitoring pipeline: it decides which
// sources are due, turns them into jobs, runs each job through
// fetch, change detection and classification, and applies the job state
// machine and retry policy to the outcome.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"regwatch/internal/observability/metrics"
	"regwatch/internal/repository"
	"regwatch/internal/usecase/detect"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// ErrAlreadyRunning is returned by Start when the worker pool is running.
var ErrAlreadyRunning = errors.New("orchestrator already running")

// Deps are the collaborators of an Orchestrator. Notifier, Normalizer,
// Clock, Sleep, NewID and Logger are optional.
type Deps struct {
	Sources   repository.SourceRepository
	Jobs      repository.JobRepository
	Snapshots repository.SnapshotRepository
	Contents  repository.ContentStore
	Changes   repository.ChangeRecordRepository
	Queue     repository.ClassificationQueue

	Fetcher    Fetcher
	Classifier Classifier
	Notifier   ChangeNotifier
	Normalizer *detect.Normalizer

	Clock  func() time.Time
	Sleep  func(ctx context.Context, d time.Duration) error
	NewID  func() string
	Logger *slog.Logger
}

func (d Deps) validate() error {
	switch {
	case d.Sources == nil:
		return errors.New("source repository is required")
	case d.Jobs == nil:
		return errors.New("job repository is required")
	case d.Snapshots == nil:
		return errors.New("snapshot repository is required")
	case d.Contents == nil:
		return errors.New("content store is required")
	case d.Changes == nil:
		return errors.New("change record repository is required")
	case d.Queue == nil:
		return errors.New("classification queue is required")
	case d.Fetcher == nil:
		return errors.New("fetcher is required")
	case d.Classifier == nil:
		return errors.New("classifier is required")
	}
	return nil
}

// Orchestrator owns the job queue and worker pool.
type Orchestrator struct {
	cfg      Config
	deps     Deps
	detector *detect.Detector
	logger   *slog.Logger

	queue chan string

	mu       sync.Mutex
	queued   map[string]struct{}
	inflight map[string]context.CancelFunc
	locks    *sourceLocks

	running bool
	cancel  context.CancelFunc
	group   *errgroup.Group

	storeErrors atomic.Int64
	daemon      runStats // outcomes of jobs run by the Start pool
}

// New validates cfg and deps and returns an idle Orchestrator.
func New(deps Deps, cfg Config) (*Orchestrator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("monitor config: %w", err)
	}
	if err := deps.validate(); err != nil {
		return nil, fmt.Errorf("monitor deps: %w", err)
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	if deps.Sleep == nil {
		deps.Sleep = sleepContext
	}
	if deps.NewID == nil {
		deps.NewID = uuid.NewString
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	return &Orchestrator{
		cfg:      cfg,
		deps:     deps,
		detector: detect.NewDetector(deps.Snapshots, deps.Normalizer),
		logger:   deps.Logger.With(slog.String("component", "monitor")),
		queue:    make(chan string, cfg.QueueSize),
		queued:   make(map[string]struct{}),
		inflight: make(map[string]context.CancelFunc),
		locks:    newSourceLocks(),
	}, nil
}

// Config returns the configuration the orchestrator was built with.
func (o *Orchestrator) Config() Config {
	return o.cfg
}

// Start launches cfg.Workers goroutines that drain the job queue until Stop
// is called or ctx is cancelled. Sweeps are driven separately.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.running {
		return ErrAlreadyRunning
	}

	runCtx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(runCtx)
	for i := 0; i < o.cfg.Workers; i++ {
		id := i
		g.Go(func() error {
			o.runWorker(gctx, id)
			return nil
		})
	}

	o.running = true
	o.cancel = cancel
	o.group = g
	o.logger.Info("worker pool started", slog.Int("workers", o.cfg.Workers))
	return nil
}

// Stop signals the workers and waits for them to return or for ctx to end.
// Jobs interrupted mid-flight stay in_progress and are recovered by a later
// sweep once they go stale.
func (o *Orchestrator) Stop(ctx context.Context) error {
	o.mu.Lock()
	if !o.running {
		o.mu.Unlock()
		return nil
	}
	cancel, g := o.cancel, o.group
	o.running = false
	o.cancel, o.group = nil, nil
	o.mu.Unlock()

	cancel()
	done := make(chan struct{})
	go func() {
		_ = g.Wait()
		close(done)
	}()

	select {
	case <-done:
		o.logger.Info("worker pool stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("stop worker pool: %w", ctx.Err())
	}
}

func (o *Orchestrator) runWorker(ctx context.Context, id int) {
	logger := o.logger.With(slog.Int("worker", id))
	logger.Debug("worker started")
	for {
		select {
		case <-ctx.Done():
			logger.Debug("worker stopped")
			return
		case jobID := <-o.queue:
			o.dequeued(jobID)
			o.processJob(ctx, jobID, &o.daemon)
		}
	}
}

// enqueue offers a job id to the workers. It reports false when the id is
// already waiting or the queue is full; the next sweep offers it again.
func (o *Orchestrator) enqueue(jobID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, ok := o.queued[jobID]; ok {
		return false
	}
	select {
	case o.queue <- jobID:
		o.queued[jobID] = struct{}{}
		return true
	default:
		return false
	}
}

func (o *Orchestrator) dequeued(jobID string) {
	o.mu.Lock()
	delete(o.queued, jobID)
	o.mu.Unlock()
}

// queueDepth is the number of job ids waiting for a worker.
func (o *Orchestrator) queueDepth() int {
	return len(o.queue)
}

func (o *Orchestrator) trackInflight(jobID string, cancel context.CancelFunc) {
	o.mu.Lock()
	o.inflight[jobID] = cancel
	o.mu.Unlock()
}

func (o *Orchestrator) untrackInflight(jobID string) {
	o.mu.Lock()
	delete(o.inflight, jobID)
	o.mu.Unlock()
}

func (o *Orchestrator) isInflight(jobID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, ok := o.inflight[jobID]
	return ok
}

// interrupt cancels the context of a job running in this process.
func (o *Orchestrator) interrupt(jobID string) bool {
	o.mu.Lock()
	cancel, ok := o.inflight[jobID]
	o.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}

func (o *Orchestrator) now() time.Time {
	return o.deps.Clock().UTC()
}

func (o *Orchestrator) storeError(op string, err error) {
	o.storeErrors.Add(1)
	metrics.RecordStoreError(op)
	o.logger.Error("store operation failed",
		slog.String("operation", op),
		slog.Any("error", err))
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// sourceLocks serializes work per source inside this process. The job
// table's one-active-job rule covers the cross-process case.
type sourceLocks struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func newSourceLocks() *sourceLocks {
	return &sourceLocks{held: make(map[string]struct{})}
}

// TryAcquire never blocks; a losing caller skips the source this cycle.
func (l *sourceLocks) TryAcquire(sourceID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.held[sourceID]; ok {
		return false
	}
	l.held[sourceID] = struct{}{}
	return true
}

func (l *sourceLocks) Release(sourceID string) {
	l.mu.Lock()
	delete(l.held, sourceID)
	l.mu.Unlock()
}

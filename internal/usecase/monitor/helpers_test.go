package monitor_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"regwatch/internal/domain/entity"
	"regwatch/internal/infra/adapter/persistence/memory"
	"regwatch/internal/usecase/monitor"
)

var t0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

/*──────────────────────────────── clock ────────────────────────────────*/

type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	c.mu.Lock()
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
	c.mu.Unlock()
	return ctx.Err()
}

func (c *fakeClock) Sleeps() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.sleeps...)
}

/*──────────────────────────────── fetcher ────────────────────────────────*/

type stubFetcher struct {
	mu    sync.Mutex
	pages map[string]string
	errs  map[string]error
	hook  func(ctx context.Context, url string) error
	calls map[string]int
}

func newStubFetcher() *stubFetcher {
	return &stubFetcher{
		pages: make(map[string]string),
		errs:  make(map[string]error),
		calls: make(map[string]int),
	}
}

func (f *stubFetcher) Set(url, content string) {
	f.mu.Lock()
	f.pages[url] = content
	delete(f.errs, url)
	f.mu.Unlock()
}

func (f *stubFetcher) Fail(url string, err error) {
	f.mu.Lock()
	f.errs[url] = err
	f.mu.Unlock()
}

func (f *stubFetcher) Calls(url string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[url]
}

func (f *stubFetcher) Fetch(ctx context.Context, url string) (*monitor.FetchResult, error) {
	f.mu.Lock()
	f.calls[url]++
	hook := f.hook
	f.mu.Unlock()

	if hook != nil {
		if err := hook(ctx, url); err != nil {
			return nil, err
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.errs[url]; ok {
		return nil, err
	}
	content, ok := f.pages[url]
	if !ok {
		return nil, fmt.Errorf("no page for %s", url)
	}
	return &monitor.FetchResult{Content: content, ContentType: "text/html", FetchedAt: t0}, nil
}

/*──────────────────────────────── classifier ────────────────────────────────*/

type stubClassifier struct {
	mu      sync.Mutex
	results []entity.ClassificationResult // consumed in order, then OK
	calls   int
	seen    []monitor.SourceMetadata
}

func (c *stubClassifier) Name() string { return "stub" }

func (c *stubClassifier) Push(res ...entity.ClassificationResult) {
	c.mu.Lock()
	c.results = append(c.results, res...)
	c.mu.Unlock()
}

func (c *stubClassifier) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func (c *stubClassifier) Classify(_ context.Context, _ string, meta monitor.SourceMetadata) entity.ClassificationResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	c.seen = append(c.seen, meta)
	if len(c.results) > 0 {
		res := c.results[0]
		c.results = c.results[1:]
		return res
	}
	return entity.Classified(entity.Classification{
		Category:   entity.CategoryProductSafety,
		Impact:     entity.ImpactHigh,
		Confidence: 0.9,
		Reasoning:  "recall notice",
	})
}

/*──────────────────────────────── notifier ────────────────────────────────*/

type recordingNotifier struct {
	mu      sync.Mutex
	changes []*entity.ChangeRecord
}

func (n *recordingNotifier) NotifyChange(_ context.Context, _ *entity.Source, rec *entity.ChangeRecord) error {
	n.mu.Lock()
	n.changes = append(n.changes, rec)
	n.mu.Unlock()
	return nil
}

func (n *recordingNotifier) Count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.changes)
}

/*──────────────────────────────── harness ────────────────────────────────*/

type harness struct {
	store      *memory.Store
	clock      *fakeClock
	fetcher    *stubFetcher
	classifier *stubClassifier
	notifier   *recordingNotifier
	orch       *monitor.Orchestrator
	deps       monitor.Deps
}

// newHarness builds an orchestrator over a fresh memory store with jitter
// disabled. mutate may adjust the config or deps before construction.
func newHarness(t *testing.T, mutate func(*monitor.Config, *monitor.Deps)) *harness {
	t.Helper()
	h := &harness{
		store:      memory.NewStore(),
		clock:      &fakeClock{now: t0},
		fetcher:    newStubFetcher(),
		classifier: &stubClassifier{},
		notifier:   &recordingNotifier{},
	}

	cfg := monitor.DefaultConfig()
	cfg.Workers = 4
	cfg.QueueSize = 16
	cfg.Retry.Rand = func() float64 { return 0.5 }
	cfg.ClassifyRetry.Rand = func() float64 { return 0.5 }

	var idMu sync.Mutex
	n := 0
	h.deps = monitor.Deps{
		Sources:    h.store.Sources(),
		Jobs:       h.store.Jobs(),
		Snapshots:  h.store.Snapshots(),
		Contents:   h.store.Contents(),
		Changes:    h.store.Changes(),
		Queue:      h.store.Queue(),
		Fetcher:    h.fetcher,
		Classifier: h.classifier,
		Notifier:   h.notifier,
		Clock:      h.clock.Now,
		Sleep:      h.clock.Sleep,
		NewID: func() string {
			idMu.Lock()
			defer idMu.Unlock()
			n++
			return fmt.Sprintf("id-%d", n)
		},
	}
	if mutate != nil {
		mutate(&cfg, &h.deps)
	}

	orch, err := monitor.New(h.deps, cfg)
	require.NoError(t, err)
	h.orch = orch
	return h
}

func (h *harness) addSource(t *testing.T, id, url string) *entity.Source {
	t.Helper()
	src := &entity.Source{
		ID:             id,
		URL:            url,
		Jurisdiction:   "EU",
		Agency:         "RAPEX",
		CheckFrequency: 24 * time.Hour,
		Active:         true,
		CreatedAt:      t0,
	}
	require.NoError(t, h.store.Sources().Create(context.Background(), src))
	return src
}

func (h *harness) source(t *testing.T, id string) *entity.Source {
	t.Helper()
	src, err := h.store.Sources().Get(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, src)
	return src
}

func (h *harness) jobsFor(t *testing.T, sourceID string) []*entity.Job {
	t.Helper()
	var out []*entity.Job
	for _, st := range entity.JobStatuses {
		jobs, err := h.store.Jobs().ListByStatus(context.Background(), st, 0)
		require.NoError(t, err)
		for _, j := range jobs {
			if j.SourceID == sourceID {
				out = append(out, j)
			}
		}
	}
	return out
}

func (h *harness) changesFor(t *testing.T, sourceID string) []*entity.ChangeRecord {
	t.Helper()
	recs, err := h.store.Changes().ListBySource(context.Background(), sourceID, 0)
	require.NoError(t, err)
	return recs
}

func (h *harness) runOnce(t *testing.T, opts monitor.RunOptions) *monitor.RunReport {
	t.Helper()
	report, err := h.orch.RunOnce(context.Background(), opts)
	require.NoError(t, err)
	return report
}

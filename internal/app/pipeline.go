package app

import (
	"fmt"
	"log/slog"
	"os"

	"regwatch/internal/infra/classifier"
	"regwatch/internal/infra/fetcher"
	"regwatch/internal/usecase/detect"
	"regwatch/internal/usecase/monitor"
	"regwatch/internal/usecase/source"
)

// Options select the collaborators of a pipeline. Zero values fall back to
// the environment: fetcher and classifier settings are read from it, and
// NORMALIZER_RULES_FILE names an optional YAML rules file.
type Options struct {
	Monitor  monitor.Config
	Notifier monitor.ChangeNotifier

	Fetcher    monitor.Fetcher
	Classifier monitor.Classifier
	RulesFile  string

	Logger *slog.Logger
}

// Pipeline is an assembled orchestrator and the source registry over the
// same store.
type Pipeline struct {
	Store        *Store
	Orchestrator *monitor.Orchestrator
	Sources      *source.Service
}

// NewPipeline wires store and opts into an idle orchestrator.
func NewPipeline(store *Store, opts Options) (*Pipeline, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	fetch := opts.Fetcher
	if fetch == nil {
		cfg, err := fetcher.LoadConfigFromEnv()
		if err != nil {
			return nil, fmt.Errorf("fetcher config: %w", err)
		}
		f, err := fetcher.NewHTTPFetcher(cfg, logger)
		if err != nil {
			return nil, fmt.Errorf("fetcher: %w", err)
		}
		fetch = f
	}

	classify := opts.Classifier
	if classify == nil {
		c, err := classifier.New(classifier.LoadConfig(logger), logger)
		if err != nil {
			return nil, fmt.Errorf("classifier: %w", err)
		}
		classify = c
	}
	logger.Info("classifier selected", slog.String("provider", classify.Name()))

	normalizer, err := loadNormalizer(opts.RulesFile)
	if err != nil {
		return nil, err
	}

	orch, err := monitor.New(monitor.Deps{
		Sources:    store.Sources,
		Jobs:       store.Jobs,
		Snapshots:  store.Snapshots,
		Contents:   store.Contents,
		Changes:    store.Changes,
		Queue:      store.Queue,
		Fetcher:    fetch,
		Classifier: classify,
		Notifier:   opts.Notifier,
		Normalizer: normalizer,
		Logger:     logger,
	}, opts.Monitor)
	if err != nil {
		return nil, err
	}

	return &Pipeline{
		Store:        store,
		Orchestrator: orch,
		Sources:      NewSourceService(store),
	}, nil
}

// NewSourceService returns the registry over store. SOURCE_ALLOW_PRIVATE=true
// admits loopback and private-network URLs.
func NewSourceService(store *Store) *source.Service {
	return &source.Service{
		Repo:         store.Sources,
		AllowPrivate: os.Getenv("SOURCE_ALLOW_PRIVATE") == "true",
	}
}

func loadNormalizer(path string) (*detect.Normalizer, error) {
	if path == "" {
		path = os.Getenv("NORMALIZER_RULES_FILE")
	}
	rules, err := detect.LoadRulesFile(path)
	if err != nil {
		return nil, fmt.Errorf("normalizer rules: %w", err)
	}
	return detect.NewNormalizer(rules), nil
}

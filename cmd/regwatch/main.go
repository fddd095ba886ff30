// Command regwatch is the operator CLI for the monitoring pipeline.
//
//	regwatch run-once [--drain] [--max-wait 2m] [--sources seed.yaml]
//	regwatch status [--worker http://localhost:9091]
//	regwatch cancel JOB_ID
//	regwatch reconcile
//	regwatch sources add|list|deactivate|import
//	regwatch changes [--source ID] [--category C] [--min-impact high]
//	regwatch migrate up|down
//
// The store is Postgres at DATABASE_URL unless --memory is given, in which
// case state lives only for the duration of the command.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"regwatch/internal/app"
	"regwatch/internal/observability/logging"
)

// errJobsFailed makes run-once exit non-zero without printing a usage error.
var errJobsFailed = errors.New("one or more jobs failed")

type cli struct {
	memory  bool
	dsn     string
	migrate bool

	out    io.Writer
	logger *slog.Logger

	// openStore and options are replaced in tests.
	openStore func(ctx context.Context) (*app.Store, error)
	options   app.Options
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c := &cli{out: os.Stdout, logger: logging.NewTextLogger()}
	if err := newRootCmd(c).ExecuteContext(ctx); err != nil {
		if !errors.Is(err, errJobsFailed) {
			fmt.Fprintln(os.Stderr, "error:", logging.SanitizeError(err))
		}
		os.Exit(1)
	}
}

func newRootCmd(c *cli) *cobra.Command {
	root := &cobra.Command{
		Use:           "regwatch",
		Short:         "Monitor regulatory sources for content changes",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(c.out)

	flags := root.PersistentFlags()
	flags.BoolVar(&c.memory, "memory", false, "use an in-memory store instead of Postgres")
	flags.StringVar(&c.dsn, "database-url", os.Getenv("DATABASE_URL"), "Postgres connection string")
	flags.BoolVar(&c.migrate, "migrate", false, "apply the schema before running the command")

	root.AddCommand(
		newRunOnceCmd(c),
		newStatusCmd(c),
		newCancelCmd(c),
		newReconcileCmd(c),
		newSourcesCmd(c),
		newChangesCmd(c),
		newMigrateCmd(c),
	)
	return root
}

func (c *cli) store(ctx context.Context) (*app.Store, error) {
	if c.openStore != nil {
		return c.openStore(ctx)
	}
	if c.memory {
		return app.NewMemoryStore(), nil
	}
	return app.OpenPostgres(ctx, c.dsn, c.migrate, c.logger)
}

// withStore opens the store, runs fn and closes the store.
func (c *cli) withStore(ctx context.Context, fn func(*app.Store) error) error {
	store, err := c.store(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			c.logger.Error("failed to close store", slog.Any("error", err))
		}
	}()
	return fn(store)
}

// withPipeline is withStore plus an assembled orchestrator.
func (c *cli) withPipeline(ctx context.Context, fn func(*app.Pipeline) error) error {
	return c.withStore(ctx, func(store *app.Store) error {
		opts := c.options
		opts.Logger = c.logger
		if opts.Monitor.Workers == 0 {
			cfg, err := loadMonitorConfig(c.logger)
			if err != nil {
				return err
			}
			opts.Monitor = cfg
		}
		p, err := app.NewPipeline(store, opts)
		if err != nil {
			return err
		}
		return fn(p)
	})
}

package main

import (
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"regwatch/internal/app"
	"regwatch/internal/domain/entity"
	"regwatch/internal/infra/db"
	"regwatch/internal/repository"
)

type changesFlags struct {
	source       string
	category     string
	minImpact    string
	since        time.Duration
	unclassified bool
	limit        int
}

func (f changesFlags) filters(now time.Time) (repository.ChangeFilters, error) {
	out := repository.ChangeFilters{Unclassified: f.unclassified, Limit: f.limit}
	if f.source != "" {
		out.SourceID = &f.source
	}
	if f.category != "" {
		c, err := entity.ParseCategory(f.category)
		if err != nil {
			return out, err
		}
		out.Category = &c
	}
	if f.minImpact != "" {
		i, err := entity.ParseImpact(f.minImpact)
		if err != nil {
			return out, err
		}
		out.MinImpact = &i
	}
	if f.since > 0 {
		from := now.Add(-f.since)
		out.From = &from
	}
	return out, nil
}

func newChangesCmd(c *cli) *cobra.Command {
	var f changesFlags
	cmd := &cobra.Command{
		Use:   "changes",
		Short: "Search detected changes, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			filters, err := f.filters(time.Now())
			if err != nil {
				return err
			}
			return c.withStore(cmd.Context(), func(store *app.Store) error {
				recs, err := store.Changes.Search(cmd.Context(), filters)
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(c.out, 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tSOURCE\tKIND\tDETECTED\tDELTA\tCATEGORY\tIMPACT\tKEYWORDS")
				for _, r := range recs {
					category, impact, keywords := "-", "-", ""
					if cl := r.Classification; cl != nil {
						category, impact = string(cl.Category), string(cl.Impact)
						keywords = strings.Join(cl.Keywords, ",")
					}
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%+d\t%s\t%s\t%s\n",
						r.ID, r.SourceID, r.Kind, r.DetectedAt.UTC().Format(time.RFC3339),
						r.SizeDelta, category, impact, keywords)
				}
				return w.Flush()
			})
		},
	}
	cmd.Flags().StringVar(&f.source, "source", "", "only changes of this source id")
	cmd.Flags().StringVar(&f.category, "category", "", "only changes in this compliance category")
	cmd.Flags().StringVar(&f.minImpact, "min-impact", "", "only changes at or above this impact")
	cmd.Flags().DurationVar(&f.since, "since", 0, "only changes detected within this window, e.g. 72h")
	cmd.Flags().BoolVar(&f.unclassified, "unclassified", false, "only changes still waiting for classification")
	cmd.Flags().IntVar(&f.limit, "limit", 50, "maximum number of changes")
	return cmd
}

func newMigrateCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or roll back the Postgres schema",
	}
	up := &cobra.Command{
		Use:  "up",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if c.memory {
				return errors.New("migrate up needs a Postgres store")
			}
			c.migrate = true
			return c.withStore(cmd.Context(), func(*app.Store) error {
				fmt.Fprintln(c.out, "schema up to date")
				return nil
			})
		},
	}
	down := &cobra.Command{
		Use:  "down",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withStore(cmd.Context(), func(store *app.Store) error {
				if store.DB == nil {
					return errors.New("migrate down needs a Postgres store")
				}
				if err := db.MigrateDown(cmd.Context(), store.DB); err != nil {
					return err
				}
				fmt.Fprintln(c.out, "schema dropped")
				return nil
			})
		},
	}
	cmd.AddCommand(up, down)
	return cmd
}

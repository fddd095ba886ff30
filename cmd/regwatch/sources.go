package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"regwatch/internal/app"
	"regwatch/internal/usecase/source"
)

func newSourcesCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sources",
		Short: "Manage monitored sources",
	}
	cmd.AddCommand(newSourcesAddCmd(c), newSourcesListCmd(c), newSourcesDeactivateCmd(c), newSourcesImportCmd(c))
	return cmd
}

func newSourcesAddCmd(c *cli) *cobra.Command {
	var in source.RegisterInput
	cmd := &cobra.Command{
		Use:   "add URL",
		Short: "Register a source",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in.URL = args[0]
			return c.withStore(cmd.Context(), func(store *app.Store) error {
				src, err := app.NewSourceService(store).Register(cmd.Context(), in)
				if err != nil {
					return err
				}
				fmt.Fprintln(c.out, src.ID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&in.Jurisdiction, "jurisdiction", "", "jurisdiction, e.g. EU or US")
	cmd.Flags().StringVar(&in.Agency, "agency", "", "publishing agency")
	cmd.Flags().DurationVar(&in.CheckFrequency, "frequency", source.DefaultCheckFrequency, "how often to check the source")
	return cmd
}

func newSourcesListCmd(c *cli) *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List sources",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withStore(cmd.Context(), func(store *app.Store) error {
				srcs, err := app.NewSourceService(store).List(cmd.Context(), !all)
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(c.out, 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tAGENCY\tJURISDICTION\tFREQUENCY\tACTIVE\tLAST CHECKED\tURL")
				for _, s := range srcs {
					last := "never"
					if s.LastCheckedAt != nil {
						last = s.LastCheckedAt.UTC().Format(time.RFC3339)
					}
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%t\t%s\t%s\n",
						s.ID, s.Agency, s.Jurisdiction, s.CheckFrequency, s.Active, last, s.URL)
				}
				return w.Flush()
			})
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "include deactivated sources")
	return cmd
}

func newSourcesDeactivateCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "deactivate SOURCE_ID",
		Short: "Stop scheduling a source; its history is kept",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withStore(cmd.Context(), func(store *app.Store) error {
				if err := app.NewSourceService(store).Deactivate(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintf(c.out, "source %s deactivated\n", args[0])
				return nil
			})
		},
	}
}

func newSourcesImportCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "import FILE",
		Short: "Register every source in a YAML seed file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withStore(cmd.Context(), func(store *app.Store) error {
				return importFile(cmd.Context(), c, app.NewSourceService(store), args[0])
			})
		},
	}
}

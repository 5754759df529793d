package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/japaniel/dictbuild/pkg/db"
)

func newHistoryCmd() *cobra.Command {
	var (
		dbPath  string
		limit   int
		buildID string
		surface string
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List builds recorded in the catalog",
		Example: `  dictbuild history --db builds.db
  dictbuild history --db builds.db --build 3f0c... --surface 猫`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, err := db.Open(dbPath)
			if err != nil {
				return fmt.Errorf("failed to open catalog: %w", err)
			}
			defer conn.Close()

			w := cmd.OutOrStdout()
			if buildID == "" {
				builds, err := db.ListBuilds(conn, limit)
				if err != nil {
					return err
				}
				printBuilds(w, builds)
				return nil
			}

			b, err := db.GetBuild(conn, buildID)
			if err != nil {
				return err
			}
			printBuilds(w, []db.Build{b})
			if surface == "" {
				n, err := db.CountEntries(conn, buildID)
				if err != nil {
					return err
				}
				fmt.Fprintf(w, "%d exported entries\n", n)
				return nil
			}
			rows, err := db.LookupEntries(conn, buildID, surface)
			if err != nil {
				return err
			}
			if len(rows) == 0 {
				missColor.Fprintf(w, "%s: no exported entries\n", surface)
			}
			for _, r := range rows {
				fmt.Fprintf(w, "%d\t%s\t%d\t%d\t%d\t%s\n", r.Seq, r.Surface, r.LeftID, r.RightID, r.Cost, r.Features)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&dbPath, "db", "dictbuild.db", "sqlite build catalog")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of builds to list, 0 for all")
	cmd.Flags().StringVar(&buildID, "build", "", "show one build and its exported entries")
	cmd.Flags().StringVar(&surface, "surface", "", "with --build, look up exported entries by surface form")
	return cmd
}

func printBuilds(w io.Writer, builds []db.Build) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTARTED\tVARIANT\tSTATUS\tKEYS\tENTRIES\tDURATION\tOUTPUT")
	for _, b := range builds {
		status := color.GreenString(b.Status)
		if b.Status != db.StatusOK {
			status = color.RedString(b.Status)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\t%v\t%s\n",
			b.ID, b.StartedAt.Local().Format(time.DateTime), b.Variant, status,
			b.Keys, b.Entries, b.Duration.Round(time.Millisecond), b.Output)
	}
	tw.Flush()
	for _, b := range builds {
		if b.Error != "" {
			fmt.Fprintf(w, "%s: %s\n", b.ID, b.Error)
		}
	}
}

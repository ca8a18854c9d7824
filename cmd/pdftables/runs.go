package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/pdftables/constants"
	"github.com/joseph-ayodele/pdftables/internal/repository"
)

func newRunsCmd(c *cli) *cobra.Command {
	var (
		limit  int
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recent extraction runs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			runs, closeRuns, err := openRuns(ctx, c.cfg.Database, c.logger)
			if err != nil {
				return err
			}
			defer closeRuns()

			list, err := runs.List(ctx, limit)
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(list)
			}
			printRuns(cmd.OutOrStdout(), list)
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of runs to show")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of a table")
	return cmd
}

func printRuns(w io.Writer, runs []repository.Run) {
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs recorded yet.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "STARTED\tDOCUMENT\tSTATUS\tROWS\tPAGES\tOUTPUT")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d/%d\t%s\n",
			r.StartedAt.Local().Format(time.DateTime),
			r.DocumentID,
			statusColor(r.Status).Sprint(r.Status),
			r.Rows,
			r.PagesWithData, r.PagesProcessed,
			r.OutputPath,
		)
	}
	_ = tw.Flush()
}

func statusColor(s constants.RunStatus) *color.Color {
	switch s {
	case constants.RunStatusSucceeded:
		return successStyle
	case constants.RunStatusFailed:
		return failStyle
	case constants.RunStatusCancelled, constants.RunStatusQueued:
		return warnStyle
	default:
		return dimStyle
	}
}

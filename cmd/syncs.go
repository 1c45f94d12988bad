package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/mobilifiver/feedwise/internal/model"
)

var syncsLimit int

var syncsCmd = &cobra.Command{
	Use:   "syncs",
	Short: "List import run history",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		runs, err := st.ListImportRuns(ctx, syncsLimit)
		if err != nil {
			return eris.Wrap(err, "syncs list")
		}
		if len(runs) == 0 {
			fmt.Fprintln(os.Stderr, "No import runs found.")
			return nil
		}

		formatSyncsList(os.Stdout, runs)
		return nil
	},
}

func formatSyncsList(w io.Writer, runs []model.ImportRun) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tVERSION\tSTARTED\tSTATUS\tTOTAL\tADDED\tUPDATED\tREMOVED")
	for _, r := range runs {
		status := "running"
		if r.CompletedAt != nil {
			if r.Success {
				status = "ok"
			} else {
				status = "failed"
			}
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%d\t%d\t%d\t%d\n",
			r.ID, r.VersionLabel, r.StartedAt.Format("2006-01-02 15:04"),
			status, r.Total, r.Added, r.Updated, r.Removed)
	}
	tw.Flush()
}

func init() {
	syncsCmd.Flags().IntVar(&syncsLimit, "limit", 20, "maximum runs to list")
	rootCmd.AddCommand(syncsCmd)
}

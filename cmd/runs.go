package cmd

import (
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/sqlflow-dev/sqlflow/internal/core"
	"github.com/sqlflow-dev/sqlflow/internal/runtime"
)

var flagRunsPrune time.Duration

func init() {
	runsCmd.Flags().DurationVar(&flagRunsPrune, "prune", 0, "delete runs older than this duration, e.g. 720h")
	rootCmd.AddCommand(runsCmd)
}

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recorded runs",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		opts := runtime.DefaultOptions()
		if flagStateDir != "" {
			opts.StateDir = flagStateDir
		}
		store := runtime.NewRunStore(opts.StateDir)

		if flagRunsPrune > 0 {
			removed, err := store.Prune(flagRunsPrune)
			if err != nil {
				return exitWith(core.ExitIO, err)
			}
			cmd.Printf("Pruned %d run(s)\n", removed)
		}

		ids, err := store.List()
		if err != nil {
			return exitWith(core.ExitIO, err)
		}

		t := table.NewWriter()
		t.SetOutputMirror(cmd.OutOrStdout())
		t.SetStyle(table.StyleLight)
		t.AppendHeader(table.Row{"RUN ID", "PIPELINE", "STATUS", "STARTED", "STEPS"})
		for _, id := range ids {
			doc, err := store.Load(id)
			if err != nil {
				continue
			}
			t.AppendRow(table.Row{
				doc.Record.RunID,
				doc.Record.Pipeline,
				string(doc.Record.Status),
				doc.Record.StartTime.Format(time.RFC3339),
				len(doc.Record.StepResults),
			})
		}
		t.Render()
		return nil
	},
}

package cmd

import (
	"fmt"
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/sqlflow-dev/sqlflow/internal/core"
)

// printRunResult renders the per-step outcome table and a one-line
// summary.
func printRunResult(w io.Writer, result *core.RunResult) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"STEP", "TYPE", "STATUS", "ROWS", "DURATION", "ERROR"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "ROWS", Align: text.AlignRight},
		{Name: "DURATION", Align: text.AlignRight},
		{Name: "ERROR", WidthMax: 60},
	})

	for _, step := range result.StepResults {
		errMsg := ""
		if step.Error != nil {
			errMsg = step.Error.Message
		}
		t.AppendRow(table.Row{
			step.StepID,
			string(step.StepType),
			step.Status.String(),
			step.RowsAffected,
			step.Duration.Round(time.Millisecond).String(),
			errMsg,
		})
	}
	t.Render()

	fmt.Fprintf(w, "\nRun %s: %s (%d steps executed in %s)\n",
		result.RunID, result.Status, len(result.ExecutedSteps),
		result.ExecutionTime.Round(time.Millisecond))
	if result.FailedStep != "" {
		fmt.Fprintf(w, "First failure: %s (%s)\n", result.FailedStep, result.FailedStepType)
	}
}

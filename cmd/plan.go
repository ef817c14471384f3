package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sqlflow-dev/sqlflow/internal/core"
	"github.com/sqlflow-dev/sqlflow/internal/logger"
	"github.com/sqlflow-dev/sqlflow/internal/planner"
)

var flagPlanOutput string

func init() {
	planCmd.Flags().StringVarP(&flagPlanOutput, "output", "o", "", "write the plan JSON to a file instead of stdout")
	rootCmd.AddCommand(planCmd)
}

var planCmd = &cobra.Command{
	Use:   "plan <pipeline.yml>",
	Short: "Build a pipeline's execution plan and print it as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := commandContext(cmd)

		pipeline, store, _, err := preparePipeline(args[0])
		if err != nil {
			return err
		}

		plan, warnings, err := planner.New(store).BuildPlan(ctx, pipeline)
		if err != nil {
			return exitWith(core.ExitPlanning, err)
		}
		for _, warning := range warnings {
			logger.Warn(ctx, "Plan warning", "step", warning.StepID, "message", warning.Message)
		}

		doc, err := json.MarshalIndent(plan, "", "  ")
		if err != nil {
			return exitWith(core.ExitIO, err)
		}
		if flagPlanOutput != "" {
			if err := os.WriteFile(flagPlanOutput, append(doc, '\n'), 0o644); err != nil {
				return exitWith(core.ExitIO, err)
			}
			logger.Info(ctx, "Plan written", "path", flagPlanOutput, "steps", len(plan.Steps))
			return nil
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(doc))
		return nil
	},
}

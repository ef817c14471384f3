package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sqlflow-dev/sqlflow/internal/config"
	"github.com/sqlflow-dev/sqlflow/internal/core"
	"github.com/sqlflow-dev/sqlflow/internal/engine"
	"github.com/sqlflow-dev/sqlflow/internal/logger"
	"github.com/sqlflow-dev/sqlflow/internal/planner"
	"github.com/sqlflow-dev/sqlflow/internal/runtime"
	"github.com/sqlflow-dev/sqlflow/internal/vars"
)

func init() {
	rootCmd.AddCommand(runCmd)
}

var runCmd = &cobra.Command{
	Use:   "run <pipeline.yml>",
	Short: "Plan and execute a pipeline",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := commandContext(cmd)

		pipeline, store, profile, err := preparePipeline(args[0])
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

		eng, err := openEngine()
		if err != nil {
			return exitWith(core.ExitIO, err)
		}
		defer eng.Close()

		exec := runtime.New(eng, nil, buildOptions(profile))
		result, err := exec.Run(ctx, plan, pipeline.Name, store.Snapshot())
		if err != nil {
			return exitWith(core.ExitCode(err), err)
		}

		printRunResult(cmd.OutOrStdout(), result)
		if result.Status != "success" {
			return exitWith(core.ExitExecution,
				fmt.Errorf("run %s finished with status %s", result.RunID, result.Status))
		}
		return nil
	},
}

// preparePipeline loads the pipeline document and assembles the
// variable store from the profile, the environment and CLI overrides.
func preparePipeline(path string) (*core.Pipeline, *vars.Store, *config.Profile, error) {
	profile, err := config.LoadProfile(flagProfile)
	if err != nil {
		return nil, nil, nil, exitWith(core.ExitValidation, err)
	}
	cliVars, err := config.ParseCLIVars(flagVars)
	if err != nil {
		return nil, nil, nil, exitWith(core.ExitValidation, err)
	}
	pipeline, err := config.LoadPipeline(path)
	if err != nil {
		return nil, nil, nil, exitWith(core.ExitValidation, err)
	}
	return pipeline, config.BuildStore(profile, cliVars), profile, nil
}

func openEngine() (engine.SQLEngine, error) {
	path := flagDatabase
	if path == "" {
		path = ":memory:"
	}
	return engine.NewSQLite(path)
}

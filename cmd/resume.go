package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sqlflow-dev/sqlflow/internal/config"
	"github.com/sqlflow-dev/sqlflow/internal/core"
	"github.com/sqlflow-dev/sqlflow/internal/runtime"
)

var flagResumeLast bool

func init() {
	resumeCmd.Flags().BoolVar(&flagResumeLast, "last", false, "resume the most recent run")
	rootCmd.AddCommand(resumeCmd)
}

var resumeCmd = &cobra.Command{
	Use:   "resume [run-id]",
	Short: "Resume a failed run from its first failed step",
	Long:  "resume re-executes a recorded run. Steps that already succeeded keep their recorded results; the failed step and everything downstream of it run again.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := commandContext(cmd)

		profile, err := config.LoadProfile(flagProfile)
		if err != nil {
			return exitWith(core.ExitValidation, err)
		}
		cliVars, err := config.ParseCLIVars(flagVars)
		if err != nil {
			return exitWith(core.ExitValidation, err)
		}
		store := config.BuildStore(profile, cliVars)

		eng, err := openEngine()
		if err != nil {
			return exitWith(core.ExitIO, err)
		}
		defer eng.Close()

		exec := runtime.New(eng, nil, buildOptions(profile))

		runID := ""
		switch {
		case len(args) == 1:
			runID = args[0]
		case flagResumeLast:
			doc, err := exec.Runs().Latest()
			if err != nil {
				return exitWith(core.ExitIO, err)
			}
			runID = doc.Record.RunID
		default:
			return exitWith(core.ExitValidation,
				fmt.Errorf("a run id is required unless --last is set"))
		}

		result, err := exec.Resume(ctx, runID, store.Snapshot())
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

// Package cmd wires the CLI commands around the planner and executor.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sqlflow-dev/sqlflow/internal/config"
	"github.com/sqlflow-dev/sqlflow/internal/core"
	"github.com/sqlflow-dev/sqlflow/internal/logger"
	"github.com/sqlflow-dev/sqlflow/internal/runtime"
)

var rootCmd = &cobra.Command{
	Use:           "sqlflow",
	Short:         "SQL-centric data pipeline runner",
	Long:          "sqlflow plans and executes SQL-centric data pipelines: sources, loads, transforms and exports over an embedded SQL engine.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var (
	flagDebug     bool
	flagQuiet     bool
	flagLogFormat string
	flagProfile   string
	flagVars      string
	flagDatabase  string
	flagStateDir  string
	flagWorkers   int
	flagNoFail    bool
)

func init() {
	pf := rootCmd.PersistentFlags()
	pf.BoolVar(&flagDebug, "debug", false, "enable debug logging")
	pf.BoolVar(&flagQuiet, "quiet", false, "suppress log output")
	pf.StringVar(&flagLogFormat, "log-format", "text", "log format (text or json)")
	pf.StringVar(&flagProfile, "profile", "", "profile YAML file with variables and runtime settings")
	pf.StringVar(&flagVars, "vars", "", "variable overrides as JSON or name=value,name=value")
	pf.StringVar(&flagDatabase, "database", "", "SQLite database path (default in-memory)")
	pf.StringVar(&flagStateDir, "state-dir", "", "directory for run records and watermarks")
	pf.IntVar(&flagWorkers, "workers", 0, "max concurrent steps (default: CPU count)")
	pf.BoolVar(&flagNoFail, "continue-on-error", false, "keep executing independent steps after a failure")
}

// exitError carries an explicit CLI exit code through cobra.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func exitWith(code int, err error) error {
	return &exitError{code: code, err: err}
}

// Execute runs the CLI and returns the process exit code.
func Execute() int {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		var ee *exitError
		if errors.As(err, &ee) {
			return ee.code
		}
		return core.ExitCode(err)
	}
	return core.ExitOK
}

// commandContext builds the logging context every command runs under.
func commandContext(cmd *cobra.Command) context.Context {
	opts := []logger.Option{logger.WithFormat(flagLogFormat)}
	if flagDebug {
		opts = append(opts, logger.WithDebug())
	}
	if flagQuiet {
		opts = append(opts, logger.WithQuiet())
	}
	return logger.WithLogger(cmd.Context(), logger.NewLogger(opts...))
}

// buildOptions folds flags and the profile into executor options.
func buildOptions(profile *config.Profile) runtime.Options {
	opts := runtime.DefaultOptions()
	config.ApplyRuntime(&opts, profile.Runtime)
	if flagWorkers > 0 {
		opts.Workers = flagWorkers
	}
	if flagStateDir != "" {
		opts.StateDir = flagStateDir
	}
	if flagNoFail {
		opts.FailFast = false
	}
	return opts
}

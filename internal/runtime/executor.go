package runtime

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/sqlflow-dev/sqlflow/internal/connector"
	"github.com/sqlflow-dev/sqlflow/internal/core"
	"github.com/sqlflow-dev/sqlflow/internal/engine"
	"github.com/sqlflow-dev/sqlflow/internal/logger"
	"github.com/sqlflow-dev/sqlflow/internal/logger/tag"
	"github.com/sqlflow-dev/sqlflow/internal/metrics"
	"github.com/sqlflow-dev/sqlflow/internal/vars"
)

// Executor runs execution plans against a SQL engine. One Executor can
// run many plans; each run gets its own graph, metrics and scheduler.
type Executor struct {
	opts       Options
	engine     engine.SQLEngine
	connectors *connector.Registry
	runs       *RunStore
	watermarks *WatermarkStore
}

// New builds an executor. A nil registry gets the built-in connectors.
func New(eng engine.SQLEngine, registry *connector.Registry, opts Options) *Executor {
	opts = opts.withDefaults()
	if registry == nil {
		registry = connector.DefaultRegistry()
	}
	if opts.SerializeEngine {
		eng = engine.Serialize(eng)
	}
	return &Executor{
		opts:       opts,
		engine:     eng,
		connectors: registry,
		runs:       NewRunStore(opts.StateDir),
		watermarks: NewWatermarkStore(opts.StateDir),
	}
}

// Runs exposes the run-record store for CLI listing and pruning.
func (e *Executor) Runs() *RunStore { return e.runs }

// Run executes a plan from scratch under a fresh run id.
func (e *Executor) Run(ctx context.Context, plan *core.ExecutionPlan, pipeline string, store *vars.Store) (*core.RunResult, error) {
	g, err := NewGraph(plan)
	if err != nil {
		return nil, err
	}
	runID := uuid.NewString()
	return e.execute(ctx, g, plan, pipeline, store, runID, time.Now())
}

// Resume re-drives a recorded run. Steps that succeeded keep their
// recorded results untouched; the first failed step and everything
// downstream of it run again, as does anything that never started.
func (e *Executor) Resume(ctx context.Context, runID string, store *vars.Store) (*core.RunResult, error) {
	doc, err := e.runs.Load(runID)
	if err != nil {
		return nil, err
	}
	g, err := NewGraph(doc.Plan)
	if err != nil {
		return nil, err
	}

	results := make(map[string]*core.StepExecutionResult, len(doc.Record.StepResults))
	for i := range doc.Record.StepResults {
		result := doc.Record.StepResults[i]
		results[result.StepID] = &result
	}
	g.Restore(doc.States, results)

	logger.Info(ctx, "Resuming run", tag.RunID(runID), "pipeline", doc.Record.Pipeline)
	return e.execute(ctx, g, doc.Plan, doc.Record.Pipeline, store, runID, doc.Record.StartTime)
}

func (e *Executor) execute(ctx context.Context, g *Graph, plan *core.ExecutionPlan, pipeline string, store *vars.Store, runID string, recordStart time.Time) (*core.RunResult, error) {
	registry := metrics.NewRegistry()
	ec := &Context{
		RunID:      runID,
		Pipeline:   pipeline,
		Vars:       store,
		Engine:     e.engine,
		Connectors: e.connectors,
		Metrics:    registry,
		Alerter:    metrics.NewAlerter(metrics.DefaultAlerterConfig(), registry),
		Watermarks: e.watermarks,
		Options:    e.opts,
	}

	logger.Info(ctx, "Run started",
		tag.RunID(runID), "pipeline", pipeline, "steps", len(plan.Steps), "workers", e.opts.Workers)
	start := time.Now()

	scheduler := NewScheduler(e.opts)
	schedErr := scheduler.Schedule(ctx, g, ec)

	result := e.assembleResult(g, plan, scheduler, runID, time.Since(start))
	if schedErr != nil && result.Error == "" {
		result.Error = schedErr.Error()
		result.Status = "failed"
	}

	doc := &RunDocument{
		Record: core.RunRecord{
			RunID:       runID,
			Pipeline:    pipeline,
			StartTime:   recordStart,
			EndTime:     time.Now(),
			Status:      recordStatus(result.Status),
			StepResults: result.StepResults,
			Metrics:     flattenMetrics(registry),
		},
		Plan:   plan,
		States: g.States(),
	}
	if err := e.runs.Save(doc); err != nil {
		logger.Warn(ctx, "Failed to persist run record", tag.RunID(runID), tag.Error(err))
	}

	logger.Info(ctx, "Run finished",
		tag.RunID(runID), "status", result.Status, "duration", result.ExecutionTime.String())
	return result, nil
}

// assembleResult folds the graph's terminal state into the caller-facing
// run result. Executed steps and results follow plan order, so resumed
// runs report carried-forward successes in their original position.
func (e *Executor) assembleResult(g *Graph, plan *core.ExecutionPlan, scheduler *Scheduler, runID string, elapsed time.Duration) *core.RunResult {
	result := &core.RunResult{
		Status:        "success",
		RunID:         runID,
		ExecutedSteps: []string{},
		ExecutionTime: elapsed,
	}

	failures := 0
	for i, node := range g.Nodes() {
		if stepResult := node.Result(); stepResult != nil {
			result.StepResults = append(result.StepResults, *stepResult)
		}
		switch node.Status() {
		case core.TaskSuccess:
			result.ExecutedSteps = append(result.ExecutedSteps, node.ID())
		case core.TaskFailed:
			failures++
			if result.FailedStep == "" {
				index := i
				result.FailedStep = node.ID()
				result.FailedStepType = node.Step().Type
				result.FailedAtIndex = &index
			}
		}
	}

	if first := scheduler.FirstFailed(); first != "" {
		if node, ok := g.NodeByID(first); ok {
			result.FailedStep = first
			result.FailedStepType = node.Step().Type
			for i, step := range plan.Steps {
				if step.ID == first {
					index := i
					result.FailedAtIndex = &index
					break
				}
			}
		}
	}

	if failures > 0 {
		result.Status = "failed"
		if !e.opts.FailFast && len(result.ExecutedSteps) > 0 {
			result.Status = "partial_success"
		}
		if node, ok := g.NodeByID(result.FailedStep); ok {
			if state := node.State(); state.Error != "" {
				result.Error = state.Error
			}
		}
	}
	return result
}

func recordStatus(status string) core.RunStatus {
	switch status {
	case "success":
		return core.RunSuccess
	case "partial_success":
		return core.RunPartialSuccess
	default:
		return core.RunFailed
	}
}

// flattenMetrics converts the registry snapshot into the flat numeric
// map stored on the run record.
func flattenMetrics(registry *metrics.Registry) map[string]float64 {
	out := make(map[string]float64)
	for kind, stats := range registry.Snapshot() {
		out[kind+".calls"] = float64(stats.Calls)
		out[kind+".failures"] = float64(stats.Failures)
		out[kind+".rows"] = float64(stats.TotalRows)
		out[kind+".avg_duration_ms"] = float64(stats.AvgDuration().Milliseconds())
		out[kind+".success_rate"] = stats.SuccessRate()
	}
	return out
}

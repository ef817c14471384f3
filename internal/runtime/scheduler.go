package runtime

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sqlflow-dev/sqlflow/internal/core"
	"github.com/sqlflow-dev/sqlflow/internal/logger"
	"github.com/sqlflow-dev/sqlflow/internal/logger/tag"
)

// Scheduler drives a graph to completion over a bounded worker pool.
// Dispatch follows plan order among runnable nodes, so a single-worker
// scheduler executes exactly the planner's emission order.
type Scheduler struct {
	opts Options

	mu           sync.Mutex
	cancel       context.CancelFunc
	stopDispatch bool
	firstFailed  string
}

func NewScheduler(opts Options) *Scheduler {
	return &Scheduler{opts: opts.withDefaults()}
}

// Cancel stops dispatching and cancels every running step's context.
// Steps already running finish on their own; none are killed mid-write.
func (sc *Scheduler) Cancel() {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.stopDispatch = true
	if sc.cancel != nil {
		sc.cancel()
	}
}

func (sc *Scheduler) stopped() bool {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.stopDispatch
}

// FirstFailed returns the id of the first step to fail, or "".
func (sc *Scheduler) FirstFailed() string {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.firstFailed
}

// Schedule runs every node in the graph, respecting dependencies and
// the worker bound. It returns nil even when steps failed; the caller
// reads outcomes from the graph.
func (sc *Scheduler) Schedule(ctx context.Context, g *Graph, ec *Context) error {
	if sc.opts.RunTimeout > 0 {
		var cancelTimeout context.CancelFunc
		ctx, cancelTimeout = context.WithTimeout(ctx, sc.opts.RunTimeout)
		defer cancelTimeout()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	sc.mu.Lock()
	sc.cancel = cancel
	sc.mu.Unlock()

	g.markInitialRunnable()

	done := make(chan *Node, len(g.Nodes()))
	running := 0

	for {
		if ctx.Err() != nil {
			break
		}
		if !sc.stopped() {
			for _, node := range g.Nodes() {
				if running >= sc.opts.Workers {
					break
				}
				if node.start() {
					running++
					go sc.runNode(ctx, ec, node, done)
				}
			}
		}
		if running == 0 {
			break
		}
		node := <-done
		running--
		sc.onFinished(ctx, g, node, ec)
	}

	for running > 0 {
		node := <-done
		running--
		sc.onFinished(ctx, g, node, ec)
	}
	return ctx.Err()
}

// runNode executes one step and reports back on the done channel. A
// panicking handler is converted into a step failure so one bad step
// cannot take the whole run down.
func (sc *Scheduler) runNode(ctx context.Context, ec *Context, node *Node, done chan<- *Node) {
	step := node.Step()
	stepCtx := ctx
	if sc.opts.StepTimeout > 0 {
		var cancel context.CancelFunc
		stepCtx, cancel = context.WithTimeout(ctx, sc.opts.StepTimeout)
		defer cancel()
	}

	logger.Info(ctx, "Step started", tag.Step(step.ID), "type", string(step.Type))

	var out *outcome
	handler, err := handlerFor(step.Type)
	if err == nil {
		func() {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("%w: step %s panicked: %v", core.ErrStepExecution, step.ID, r)
				}
			}()
			out, err = handler(stepCtx, ec, step)
		}()
	}

	result := sc.buildResult(node, step, out, err)
	node.finish(result, err)

	if err != nil {
		logger.Error(ctx, "Step failed", tag.Step(step.ID), tag.Error(err))
	} else {
		logger.Info(ctx, "Step finished",
			tag.Step(step.ID), "rows", result.RowsAffected, "duration", result.Duration.String())
	}
	done <- node
}

func (sc *Scheduler) buildResult(node *Node, step core.PlanStep, out *outcome, err error) *core.StepExecutionResult {
	start := node.State().StartTime
	end := time.Now()
	result := &core.StepExecutionResult{
		StepID:    step.ID,
		StepType:  step.Type,
		StartTime: start,
		EndTime:   end,
		Duration:  end.Sub(start),
	}
	if out != nil {
		result.RowsAffected = out.Rows
		result.BytesRead = out.Bytes
		result.InputSchema = out.InputSchema
		result.OutputSchema = out.OutputSchema
		result.Warnings = out.Warnings
		result.Lineage = out.Lineage
	}
	if err != nil {
		result.Status = core.TaskFailed
		var stepErr *core.StepError
		if !errors.As(err, &stepErr) {
			stepErr = &core.StepError{StepID: step.ID, StepType: step.Type, Err: err}
		}
		result.Error = stepErr.Detail()
	} else {
		result.Status = core.TaskSuccess
	}
	return result
}

// onFinished propagates a completed node's outcome: successes wake
// their dependents, failures stop dispatch under fail-fast. Dependents
// of a failed step never become runnable either way.
func (sc *Scheduler) onFinished(ctx context.Context, g *Graph, node *Node, ec *Context) {
	result := node.Result()
	failed := node.Status() == core.TaskFailed
	if ec.Metrics != nil && result != nil {
		ec.Metrics.Observe(string(node.Step().Type), result.Duration, result.RowsAffected, failed)
	}
	if ec.Alerter != nil && result != nil {
		ec.Alerter.CheckStep(ctx, node.ID(), result.Duration)
	}

	if failed {
		sc.mu.Lock()
		if sc.firstFailed == "" {
			sc.firstFailed = node.ID()
		}
		if sc.opts.FailFast {
			sc.stopDispatch = true
		}
		sc.mu.Unlock()
		return
	}

	for _, id := range g.Dependents(node.ID()) {
		if dep, ok := g.NodeByID(id); ok {
			dep.satisfyDependency()
		}
	}
}

package runtime

import (
	"sync"
	"time"

	"github.com/sqlflow-dev/sqlflow/internal/core"
)

// NodeData is the mutable record behind one plan step. It is only ever
// touched through Node's locked accessors.
type NodeData struct {
	Step   core.PlanStep
	State  core.TaskState
	Result *core.StepExecutionResult
}

// Node pairs a plan step with its execution state. All state access is
// serialized by the node's own lock so the scheduler and a running
// handler never race.
type Node struct {
	mu   sync.RWMutex
	data NodeData
}

func newNode(step core.PlanStep) *Node {
	return &Node{data: NodeData{
		Step: step,
		State: core.TaskState{
			Status:            core.TaskPending,
			Dependencies:      append([]string(nil), step.DependsOn...),
			UnmetDependencies: len(step.DependsOn),
		},
	}}
}

// ID returns the step's plan id. The id never changes after planning,
// so no lock is needed.
func (n *Node) ID() string { return n.data.Step.ID }

// Step returns a copy of the underlying plan step.
func (n *Node) Step() core.PlanStep {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.data.Step
}

// State returns a copy of the current task state.
func (n *Node) State() core.TaskState {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.data.State
}

func (n *Node) Status() core.TaskStatus {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.data.State.Status
}

func (n *Node) setStatus(status core.TaskStatus) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.data.State.Status = status
}

// markRunnable promotes a pending node whose dependencies are all met.
func (n *Node) markRunnable() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.data.State.Status == core.TaskPending {
		n.data.State.Status = core.TaskRunnable
	}
}

// start transitions RUNNABLE to RUNNING and stamps the start time.
// It returns false if the node was already claimed, which guarantees
// at-most-once dispatch.
func (n *Node) start() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.data.State.Status != core.TaskRunnable {
		return false
	}
	n.data.State.Status = core.TaskRunning
	n.data.State.StartTime = time.Now()
	n.data.State.Attempts++
	return true
}

// finish records the terminal outcome of a handler invocation.
func (n *Node) finish(result *core.StepExecutionResult, err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.data.State.EndTime = time.Now()
	n.data.Result = result
	if err != nil {
		n.data.State.Status = core.TaskFailed
		n.data.State.Error = err.Error()
		return
	}
	n.data.State.Status = core.TaskSuccess
}

// satisfyDependency decrements the unmet counter and reports whether
// the node just became runnable.
func (n *Node) satisfyDependency() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.data.State.UnmetDependencies > 0 {
		n.data.State.UnmetDependencies--
	}
	if n.data.State.UnmetDependencies == 0 && n.data.State.Status == core.TaskPending {
		n.data.State.Status = core.TaskRunnable
		return true
	}
	return false
}

// Result returns the recorded execution result, or nil while the node
// has not finished.
func (n *Node) Result() *core.StepExecutionResult {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.data.Result
}

// restore seeds a node from a prior run's record. Used by resume to
// carry successful work forward untouched.
func (n *Node) restore(state core.TaskState, result *core.StepExecutionResult) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.data.State = state
	n.data.Result = result
}

// reset returns a node to PENDING with its full dependency count. Any
// prior result and error are discarded.
func (n *Node) reset() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.data.State = core.TaskState{
		Status:            core.TaskPending,
		Dependencies:      n.data.State.Dependencies,
		UnmetDependencies: len(n.data.State.Dependencies),
	}
	n.data.Result = nil
}

package runtime

import (
	"fmt"

	"github.com/sqlflow-dev/sqlflow/internal/core"
)

// Graph is the runtime view of an execution plan: one node per plan
// step plus the reverse adjacency needed to wake dependents when a
// step finishes. Nodes keep the plan's emission order.
type Graph struct {
	nodes      []*Node
	byID       map[string]*Node
	dependents map[string][]string
}

// NewGraph builds a graph from a plan, verifying that every dependency
// resolves to a step in the plan. The planner guarantees acyclicity;
// the unmet counters here will simply never drain if that guarantee is
// broken, so we re-check up front to fail loudly instead of hanging.
func NewGraph(plan *core.ExecutionPlan) (*Graph, error) {
	g := &Graph{
		byID:       make(map[string]*Node, len(plan.Steps)),
		dependents: make(map[string][]string),
	}
	for _, step := range plan.Steps {
		if _, dup := g.byID[step.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate step id %q", core.ErrPlanning, step.ID)
		}
		node := newNode(step)
		g.nodes = append(g.nodes, node)
		g.byID[step.ID] = node
	}
	for _, step := range plan.Steps {
		for _, dep := range step.DependsOn {
			if _, ok := g.byID[dep]; !ok {
				return nil, fmt.Errorf("%w: step %q depends on unknown step %q",
					core.ErrPlanning, step.ID, dep)
			}
			g.dependents[dep] = append(g.dependents[dep], step.ID)
		}
	}
	if err := g.checkAcyclic(); err != nil {
		return nil, err
	}
	return g, nil
}

// checkAcyclic runs Kahn's algorithm over the dependency counts.
func (g *Graph) checkAcyclic() error {
	indegree := make(map[string]int, len(g.nodes))
	for _, node := range g.nodes {
		indegree[node.ID()] = len(node.data.Step.DependsOn)
	}
	queue := make([]string, 0, len(g.nodes))
	for _, node := range g.nodes {
		if indegree[node.ID()] == 0 {
			queue = append(queue, node.ID())
		}
	}
	visited := 0
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		visited++
		for _, dep := range g.dependents[id] {
			indegree[dep]--
			if indegree[dep] == 0 {
				queue = append(queue, dep)
			}
		}
	}
	if visited != len(g.nodes) {
		return fmt.Errorf("%w: dependency graph contains a cycle", core.ErrPlanning)
	}
	return nil
}

// Nodes returns the nodes in plan order.
func (g *Graph) Nodes() []*Node { return g.nodes }

// NodeByID resolves one node.
func (g *Graph) NodeByID(id string) (*Node, bool) {
	node, ok := g.byID[id]
	return node, ok
}

// Dependents returns the ids of steps that depend on the given step.
func (g *Graph) Dependents(id string) []string { return g.dependents[id] }

// markInitialRunnable promotes every node with no dependencies.
func (g *Graph) markInitialRunnable() {
	for _, node := range g.nodes {
		if node.State().UnmetDependencies == 0 {
			node.markRunnable()
		}
	}
}

// Restore seeds the graph from a prior run for resume. Successful
// steps keep their recorded state and result byte for byte. Failed
// steps and everything downstream of them reset to PENDING; steps that
// never ran stay pending too. Unmet counters are then recomputed so
// carried-forward successes do not block their dependents.
func (g *Graph) Restore(states map[string]core.TaskState, results map[string]*core.StepExecutionResult) {
	// Walk from each failure to collect everything that must rerun.
	rerun := make(map[string]bool)
	var queue []string
	for id, state := range states {
		if state.Status == core.TaskFailed {
			queue = append(queue, id)
		}
	}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if rerun[id] {
			continue
		}
		rerun[id] = true
		queue = append(queue, g.dependents[id]...)
	}

	for _, node := range g.nodes {
		id := node.ID()
		state, ran := states[id]
		switch {
		case rerun[id] || !ran || state.Status != core.TaskSuccess:
			node.reset()
		default:
			node.restore(state, results[id])
		}
	}

	for _, node := range g.nodes {
		if node.Status() == core.TaskSuccess {
			continue
		}
		unmet := 0
		for _, dep := range node.State().Dependencies {
			if depNode, ok := g.byID[dep]; ok && depNode.Status() != core.TaskSuccess {
				unmet++
			}
		}
		node.mu.Lock()
		node.data.State.UnmetDependencies = unmet
		node.mu.Unlock()
	}
}

// States snapshots every node's state keyed by step id.
func (g *Graph) States() map[string]core.TaskState {
	out := make(map[string]core.TaskState, len(g.nodes))
	for _, node := range g.nodes {
		out[node.ID()] = node.State()
	}
	return out
}

// Results snapshots every finished node's result keyed by step id.
func (g *Graph) Results() map[string]*core.StepExecutionResult {
	out := make(map[string]*core.StepExecutionResult, len(g.nodes))
	for _, node := range g.nodes {
		if result := node.Result(); result != nil {
			out[node.ID()] = result
		}
	}
	return out
}

package planner

import (
	"context"
	"fmt"

	"github.com/sqlflow-dev/sqlflow/internal/core"
	"github.com/sqlflow-dev/sqlflow/internal/logger"
	"github.com/sqlflow-dev/sqlflow/internal/vars"
)

// Warning is a non-fatal diagnostic attached to a plan step.
type Warning struct {
	StepID  string
	Message string
}

// Planner turns a parsed pipeline and a variable store into a linear,
// dependency-ordered execution plan.
type Planner struct {
	store *vars.Store
}

func New(store *vars.Store) *Planner {
	return &Planner{store: store}
}

// BuildPlan runs the planning stages in order:
//
//  1. variable-reference validation
//  2. conditional flattening (SET folding happens here)
//  3. step-id assignment
//  4. table-to-step mapping
//  5. dependency inference
//  6. cycle detection
//  7. topological order emission
//
// followed by the warn-only SQL sanity pass. The returned plan is
// topologically ordered and acyclic.
func (p *Planner) BuildPlan(ctx context.Context, pipeline *core.Pipeline) (*core.ExecutionPlan, []Warning, error) {
	if err := p.validateReferences(ctx, pipeline); err != nil {
		return nil, nil, err
	}

	flat, err := p.flatten(ctx, pipeline.Steps)
	if err != nil {
		return nil, nil, err
	}

	entries, err := p.assignIDs(flat)
	if err != nil {
		return nil, nil, err
	}

	producers, err := tableProducers(entries)
	if err != nil {
		return nil, nil, err
	}

	var warnings []Warning
	warnings = append(warnings, p.inferDependencies(ctx, entries, producers)...)

	if err := detectCycles(entries); err != nil {
		return nil, nil, err
	}

	ordered := topoSort(entries)

	plan := &core.ExecutionPlan{}
	for _, entry := range ordered {
		step, err := p.emitStep(ctx, entry)
		if err != nil {
			return nil, nil, err
		}
		plan.Steps = append(plan.Steps, step)
	}

	warnings = append(warnings, sqlSanityPass(entries)...)
	for _, w := range warnings {
		logger.Warn(ctx, "Planning warning", "step", w.StepID, "message", w.Message)
	}

	return plan, warnings, nil
}

// planEntry is the planner's working representation of one flattened
// step before emission.
type planEntry struct {
	id    string
	index int // original pipeline order, used for deterministic emission
	step  core.Step
	deps  []string
	// connector is the connector type of the resolved source definition,
	// filled during dependency inference for load steps.
	connector string
}

// emitStep builds the serializable plan step, resolving variables in the
// payload where appropriate.
func (p *Planner) emitStep(ctx context.Context, entry *planEntry) (core.PlanStep, error) {
	out := core.PlanStep{
		ID:        entry.id,
		DependsOn: entry.deps,
	}
	if out.DependsOn == nil {
		out.DependsOn = []string{}
	}

	step := entry.step
	switch step.Kind {
	case core.StepSourceDefinition:
		out.Type = core.PlanSourceDefinition
		out.Name = step.Name
		out.SourceConnectorType = step.ConnectorType
		params, err := vars.SubstituteInMap(ctx, step.Params, p.store)
		if err != nil {
			return out, err
		}
		out.Query = params

	case core.StepLoad:
		out.Type = core.PlanLoad
		out.Name = step.TargetTable
		out.SourceConnectorType = entry.connector
		query := core.LoadQuery{
			Source:     step.SourceName,
			Mode:       step.Mode,
			UpsertKeys: step.UpsertKeys,
		}
		if query.Mode == "" {
			query.Mode = core.LoadReplace
		}
		if step.Options != nil {
			options, err := vars.SubstituteInMap(ctx, step.Options, p.store)
			if err != nil {
				return out, err
			}
			query.Options = options
			if mode, ok := options["sync_mode"].(string); ok {
				query.SyncMode = core.SyncMode(mode)
			}
			if field, ok := options["cursor_field"].(string); ok {
				query.CursorField = field
			}
		}
		out.Query = query

	case core.StepTransform:
		out.Type = core.PlanTransform
		out.Name = step.TargetTable
		sql, err := vars.Substitute(ctx, step.SQL, p.store, vars.ForSQL())
		if err != nil {
			return out, err
		}
		out.Query = sql

	case core.StepExport:
		out.Type = core.PlanExport
		out.SourceTable = step.SourceTable
		sql, err := vars.Substitute(ctx, step.SQL, p.store, vars.ForSQL())
		if err != nil {
			return out, err
		}
		destination, err := vars.Substitute(ctx, step.Destination, p.store)
		if err != nil {
			return out, err
		}
		options, err := vars.SubstituteInMap(ctx, step.Options, p.store)
		if err != nil {
			return out, err
		}
		out.Query = core.ExportQuery{
			SQL:         sql,
			Destination: destination,
			Connector:   step.ConnectorType,
			Options:     options,
		}

	default:
		return out, core.NewPlanningError(
			fmt.Sprintf("step kind %q cannot be emitted into a plan", step.Kind))
	}

	return out, nil
}

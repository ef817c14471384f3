package planner

import (
	"context"

	"github.com/sqlflow-dev/sqlflow/internal/cond"
	"github.com/sqlflow-dev/sqlflow/internal/core"
	"github.com/sqlflow-dev/sqlflow/internal/logger"
	"github.com/sqlflow-dev/sqlflow/internal/vars"
)

// flatten walks the pipeline in declaration order, folding SET steps
// into the variable store and resolving conditional blocks against it.
// The output contains no SET steps and no conditional blocks.
func (p *Planner) flatten(ctx context.Context, steps []core.Step) ([]core.Step, error) {
	var flat []core.Step
	for _, step := range steps {
		switch step.Kind {
		case core.StepSet:
			if err := p.foldSet(ctx, step); err != nil {
				return nil, err
			}

		case core.StepConditional:
			chosen, err := p.selectBranch(ctx, step)
			if err != nil {
				return nil, err
			}
			nested, err := p.flatten(ctx, chosen)
			if err != nil {
				return nil, err
			}
			flat = append(flat, nested...)

		default:
			flat = append(flat, step)
		}
	}
	return flat, nil
}

// foldSet resolves the SET value expression against the store as it
// stands and records the result at the SET tier. A self-referential
// SET name = ${name|default} therefore resolves to the default.
func (p *Planner) foldSet(ctx context.Context, step core.Step) error {
	resolved, err := vars.Substitute(ctx, step.Value, p.store)
	if err != nil {
		return err
	}
	value := vars.Parse(resolved)
	p.store.Set(vars.TierSet, step.Variable, value)
	logger.Debug(ctx, "Folded SET into variable store",
		"variable", step.Variable, "value", value.Raw())
	return nil
}

// selectBranch evaluates branch conditions in declaration order and
// returns the steps of the first branch whose condition holds. If no
// branch matches, the else-branch is used; with no else-branch, the
// block contributes no steps.
func (p *Planner) selectBranch(ctx context.Context, step core.Step) ([]core.Step, error) {
	for i := range step.Branches {
		branch := &step.Branches[i]
		matched, err := cond.EvaluateWithStore(ctx, branch.Condition, p.store)
		if err != nil {
			return nil, err
		}
		if matched {
			return branch.Steps, nil
		}
	}
	return step.Else, nil
}

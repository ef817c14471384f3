package planner

import (
	"context"
	"fmt"
	"sort"

	"github.com/sqlflow-dev/sqlflow/internal/core"
	"github.com/sqlflow-dev/sqlflow/internal/logger"
	"github.com/sqlflow-dev/sqlflow/internal/vars"
)

// refLocation records where a variable reference occurs, for the
// missing-variable report.
type refLocation struct {
	stepKind core.StepKind
	line     int
	field    string
}

func (l refLocation) String() string {
	if l.line > 0 {
		return fmt.Sprintf("%s (line %d, %s)", l.stepKind, l.line, l.field)
	}
	return fmt.Sprintf("%s (%s)", l.stepKind, l.field)
}

// validateReferences collects every variable reference from every
// step's text-bearing fields, including inactive conditional branches,
// and verifies that each is resolvable or has a valid default. Names
// declared by any SET step earlier in the document count as resolvable,
// since SET folding happens before the reference is used.
func (p *Planner) validateReferences(ctx context.Context, pipeline *core.Pipeline) error {
	missing := make(map[string][]refLocation)
	var invalidDefaults []string

	declared := make(map[string]struct{})
	p.walkSteps(ctx, pipeline.Steps, declared, missing, &invalidDefaults)

	var problems []string
	names := make([]string, 0, len(missing))
	for name := range missing {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		locations := missing[name]
		locs := make([]string, len(locations))
		for i, loc := range locations {
			locs[i] = loc.String()
		}
		problems = append(problems,
			fmt.Sprintf("variable %q is not defined and has no default; referenced in: %s",
				name, joinLocations(locs)))
	}
	for _, expr := range invalidDefaults {
		problems = append(problems,
			fmt.Sprintf("invalid default in %q: a default containing whitespace must be quoted", expr))
	}

	if len(problems) > 0 {
		return core.NewPlanningError(problems...)
	}
	return nil
}

func (p *Planner) walkSteps(
	ctx context.Context,
	steps []core.Step,
	declared map[string]struct{},
	missing map[string][]refLocation,
	invalidDefaults *[]string,
) {
	for i := range steps {
		step := &steps[i]

		for field, text := range step.TextFields() {
			p.checkText(ctx, text, step, field, declared, missing, invalidDefaults)
		}

		switch step.Kind {
		case core.StepSet:
			declared[step.Variable] = struct{}{}
		case core.StepConditional:
			for b := range step.Branches {
				p.walkSteps(ctx, step.Branches[b].Steps, declared, missing, invalidDefaults)
			}
			p.walkSteps(ctx, step.Else, declared, missing, invalidDefaults)
		}
	}
}

func (p *Planner) checkText(
	ctx context.Context,
	text string,
	step *core.Step,
	field string,
	declared map[string]struct{},
	missing map[string][]refLocation,
	invalidDefaults *[]string,
) {
	for _, ref := range vars.ParseReferences(text) {
		if ref.Invalid != "" {
			if ref.Invalid == "default value with whitespace must be quoted" {
				*invalidDefaults = append(*invalidDefaults, ref.Raw)
				continue
			}
			// Other malformed references are left literal; warn only.
			logger.Warn(ctx, "Malformed variable reference",
				"reference", ref.Raw, "reason", ref.Invalid, "step", step.String())
			continue
		}
		if ref.HasDefault {
			continue
		}
		if _, ok := p.store.Resolve(ref.Name); ok {
			continue
		}
		if _, ok := declared[ref.Name]; ok {
			continue
		}
		missing[ref.Name] = append(missing[ref.Name], refLocation{
			stepKind: step.Kind,
			line:     step.Line,
			field:    field,
		})
	}
}

func joinLocations(locs []string) string {
	out := ""
	for i, loc := range locs {
		if i > 0 {
			out += ", "
		}
		out += loc
	}
	return out
}

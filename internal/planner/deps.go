package planner

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/sqlflow-dev/sqlflow/internal/core"
	"github.com/sqlflow-dev/sqlflow/internal/logger"
	"github.com/sqlflow-dev/sqlflow/internal/stringutil"
)

// assignIDs derives a stable id per flattened step from its kind and
// principal name. Export ids fall back to the step index when no table
// name can be derived; duplicate export ids get a numeric suffix.
func (p *Planner) assignIDs(steps []core.Step) ([]*planEntry, error) {
	entries := make([]*planEntry, 0, len(steps))
	seen := make(map[string]int)

	for i, step := range steps {
		if err := step.ValidateMode(); err != nil {
			return nil, core.NewPlanningError(err.Error())
		}

		var id string
		switch step.Kind {
		case core.StepSourceDefinition:
			id = "source_" + step.Name
		case core.StepLoad:
			id = "load_" + step.TargetTable
		case core.StepTransform:
			id = "transform_" + step.TargetTable
		case core.StepExport:
			id = exportID(step, i)
		default:
			return nil, core.NewPlanningError(
				fmt.Sprintf("unexpected %s step after flattening", step.Kind))
		}

		if n, dup := seen[id]; dup {
			if step.Kind == core.StepExport {
				seen[id] = n + 1
				id = fmt.Sprintf("%s_%d", id, n+1)
			}
			// Duplicate load/transform ids are duplicate table
			// definitions; tableProducers reports those.
		}
		seen[id] = seen[id] + 1

		entries = append(entries, &planEntry{id: id, index: i, step: step})
	}
	return entries, nil
}

func exportID(step core.Step, index int) string {
	connector := step.ConnectorType
	if connector == "" {
		connector = "file"
	}
	name := step.SourceTable
	if name == "" {
		if tables := extractTables(step.SQL); len(tables) > 0 {
			name = tables[0]
		}
	}
	if name == "" {
		name = fmt.Sprintf("%d", index)
	}
	return fmt.Sprintf("export_%s_%s", connector, name)
}

// tableProducers maps every defined table name to the entry producing
// it. A table defined by two steps is a planning error.
func tableProducers(entries []*planEntry) (map[string]*planEntry, error) {
	producers := make(map[string]*planEntry)
	var problems []string
	for _, entry := range entries {
		var table string
		switch entry.step.Kind {
		case core.StepLoad, core.StepTransform:
			table = stringutil.NormalizeIdent(entry.step.TargetTable)
		default:
			continue
		}
		if prior, dup := producers[table]; dup {
			problems = append(problems, fmt.Sprintf(
				"table %q is defined by both %q and %q; target tables must be unique",
				table, prior.id, entry.id))
			continue
		}
		producers[table] = entry
	}
	if len(problems) > 0 {
		return nil, core.NewPlanningError(problems...)
	}
	return producers, nil
}

// inferDependencies fills each entry's deps from the data flow:
// loads depend on their source definition, transforms and inline-query
// exports depend on the producers of every table their SQL references,
// and table-backed exports depend on their source table's producer.
func (p *Planner) inferDependencies(ctx context.Context, entries []*planEntry, producers map[string]*planEntry) []Warning {
	sources := make(map[string]*planEntry)
	for _, entry := range entries {
		if entry.step.Kind == core.StepSourceDefinition {
			sources[entry.step.Name] = entry
		}
	}

	var warnings []Warning
	for _, entry := range entries {
		switch entry.step.Kind {
		case core.StepLoad:
			if src, ok := sources[entry.step.SourceName]; ok {
				entry.deps = append(entry.deps, src.id)
				entry.connector = src.step.ConnectorType
			}

		case core.StepTransform:
			warnings = append(warnings, p.sqlDeps(ctx, entry, entry.step.SQL, producers)...)

		case core.StepExport:
			if entry.step.SQL != "" {
				warnings = append(warnings, p.sqlDeps(ctx, entry, entry.step.SQL, producers)...)
				break
			}
			table := stringutil.NormalizeIdent(entry.step.SourceTable)
			if producer, ok := producers[table]; ok {
				entry.deps = append(entry.deps, producer.id)
			} else if table != "" {
				warnings = append(warnings, Warning{
					StepID:  entry.id,
					Message: fmt.Sprintf("table %q is not produced by this pipeline; the engine may resolve it at runtime", table),
				})
			}
		}
	}
	return warnings
}

func (p *Planner) sqlDeps(ctx context.Context, entry *planEntry, sql string, producers map[string]*planEntry) []Warning {
	var warnings []Warning
	for _, table := range extractTables(sql) {
		producer, ok := producers[table]
		if !ok {
			warnings = append(warnings, Warning{
				StepID:  entry.id,
				Message: fmt.Sprintf("table %q is not produced by this pipeline; the engine may resolve it at runtime", table),
			})
			continue
		}
		if producer == entry {
			continue // a transform may read the table it replaces
		}
		if !contains(entry.deps, producer.id) {
			entry.deps = append(entry.deps, producer.id)
		}
	}
	logger.Debug(ctx, "Inferred dependencies", "step", entry.id, "depends_on", entry.deps)
	return warnings
}

var (
	// FROM <ident>, including comma-separated lists.
	reFrom = regexp.MustCompile(`(?i)\bFROM\s+([A-Za-z_][\w]*(?:\s*,\s*[A-Za-z_][\w]*)*)`)
	// JOIN <ident>.
	reJoin = regexp.MustCompile(`(?i)\bJOIN\s+([A-Za-z_][\w]*)`)
	// The table-UDF pattern python_func('module.fn', <ident>).
	rePythonFunc = regexp.MustCompile(`(?i)python_func\(\s*'[^']+'\s*,\s*([A-Za-z_][\w]*)`)
)

// sqlKeywords are idents that follow FROM/JOIN syntactically but are
// never table names.
var sqlKeywords = map[string]struct{}{
	"select": {}, "where": {}, "group": {}, "order": {}, "limit": {},
	"on": {}, "as": {}, "lateral": {}, "unnest": {}, "values": {},
}

// extractTables returns the normalized table names referenced by the
// SQL text, in order of first appearance.
func extractTables(sql string) []string {
	var tables []string
	seen := make(map[string]struct{})
	add := func(name string) {
		name = stringutil.NormalizeIdent(name)
		if name == "" {
			return
		}
		if _, keyword := sqlKeywords[name]; keyword {
			return
		}
		if _, dup := seen[name]; dup {
			return
		}
		seen[name] = struct{}{}
		tables = append(tables, name)
	}

	for _, match := range reFrom.FindAllStringSubmatch(sql, -1) {
		for _, name := range strings.Split(match[1], ",") {
			add(name)
		}
	}
	for _, match := range reJoin.FindAllStringSubmatch(sql, -1) {
		add(match[1])
	}
	for _, match := range rePythonFunc.FindAllStringSubmatch(sql, -1) {
		add(match[1])
	}
	return tables
}

func contains(list []string, item string) bool {
	for _, elem := range list {
		if elem == item {
			return true
		}
	}
	return false
}

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-yaml"

	"github.com/sqlflow-dev/sqlflow/internal/core"
)

// LoadPipeline reads a pipeline document from a YAML file. The
// pipeline name defaults to the file's base name when the document
// does not set one.
func LoadPipeline(path string) (*core.Pipeline, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading pipeline %q: %w", path, err)
	}
	pipeline, err := ParsePipeline(data)
	if err != nil {
		return nil, fmt.Errorf("pipeline %q: %w", path, err)
	}
	if pipeline.Name == "" {
		base := filepath.Base(path)
		pipeline.Name = strings.TrimSuffix(base, filepath.Ext(base))
	}
	return pipeline, nil
}

// ParsePipeline decodes a pipeline document. Both a bare step list and
// a document with name/steps keys are accepted.
func ParsePipeline(data []byte) (*core.Pipeline, error) {
	var pipeline core.Pipeline
	if err := yaml.Unmarshal(data, &pipeline); err == nil && len(pipeline.Steps) > 0 {
		return &pipeline, validateSteps(pipeline.Steps)
	}

	var steps []core.Step
	if err := yaml.Unmarshal(data, &steps); err != nil {
		return nil, fmt.Errorf("invalid pipeline document: %w", err)
	}
	pipeline = core.Pipeline{Steps: steps}
	return &pipeline, validateSteps(steps)
}

// validateSteps checks structural invariants that do not need planning
// context, recursing into conditional branches.
func validateSteps(steps []core.Step) error {
	for i := range steps {
		step := &steps[i]
		switch step.Kind {
		case core.StepSourceDefinition:
			if step.Name == "" {
				return fmt.Errorf("step %d: source_definition requires a name", i+1)
			}
		case core.StepLoad:
			if step.TargetTable == "" {
				return fmt.Errorf("step %d: load requires target_table", i+1)
			}
			if step.SourceName == "" {
				return fmt.Errorf("step %d: load requires source_name", i+1)
			}
			if err := step.ValidateMode(); err != nil {
				return fmt.Errorf("step %d: %w", i+1, err)
			}
		case core.StepTransform:
			if step.TargetTable == "" || step.SQL == "" {
				return fmt.Errorf("step %d: transform requires target_table and sql", i+1)
			}
		case core.StepExport:
			if step.Destination == "" {
				return fmt.Errorf("step %d: export requires destination", i+1)
			}
			if step.SourceTable == "" && step.SQL == "" {
				return fmt.Errorf("step %d: export requires source_table or sql", i+1)
			}
		case core.StepSet:
			if step.Variable == "" {
				return fmt.Errorf("step %d: set requires a variable name", i+1)
			}
		case core.StepConditional:
			if len(step.Branches) == 0 {
				return fmt.Errorf("step %d: conditional requires at least one branch", i+1)
			}
			for _, branch := range step.Branches {
				if branch.Condition == "" {
					return fmt.Errorf("step %d: conditional branch requires a condition", i+1)
				}
				if err := validateSteps(branch.Steps); err != nil {
					return err
				}
			}
			if err := validateSteps(step.Else); err != nil {
				return err
			}
		case "":
			return fmt.Errorf("step %d: missing kind", i+1)
		default:
			return fmt.Errorf("step %d: unknown kind %q", i+1, step.Kind)
		}
	}
	return nil
}

package core

import (
	"fmt"
	"strings"
)

// StepKind identifies the variant of a pipeline step.
type StepKind string

const (
	StepSourceDefinition StepKind = "source_definition"
	StepLoad             StepKind = "load"
	StepTransform        StepKind = "transform"
	StepExport           StepKind = "export"
	StepSet              StepKind = "set"
	StepConditional      StepKind = "conditional"
)

// LoadMode controls how loaded rows are applied to the target table.
type LoadMode string

const (
	LoadReplace LoadMode = "REPLACE"
	LoadAppend  LoadMode = "APPEND"
	LoadUpsert  LoadMode = "UPSERT"
)

// SyncMode controls whether a load performs a full or incremental read.
type SyncMode string

const (
	SyncFull        SyncMode = "full_refresh"
	SyncIncremental SyncMode = "incremental"
)

// Step is one entry of a parsed pipeline. The Kind field selects which
// of the variant fields are meaningful; steps are created by the pipeline
// parser and are treated as immutable afterwards.
type Step struct {
	// Kind is the variant discriminator.
	Kind StepKind `json:"kind" yaml:"kind"`

	// Line is the 1-based source line the step was parsed from, used in
	// planning diagnostics. Zero when unknown.
	Line int `json:"line,omitempty" yaml:"line,omitempty"`

	// Name is the source name for source_definition steps.
	Name string `json:"name,omitempty" yaml:"name,omitempty"`
	// ConnectorType is the connector kind for source and export steps.
	ConnectorType string `json:"connector_type,omitempty" yaml:"connector_type,omitempty"`
	// Params holds connector parameters for source_definition steps.
	Params map[string]any `json:"params,omitempty" yaml:"params,omitempty"`

	// TargetTable is the table written by load and transform steps.
	TargetTable string `json:"target_table,omitempty" yaml:"target_table,omitempty"`
	// SourceName is the source read by a load step; either the name of a
	// source_definition or a direct file path.
	SourceName string `json:"source_name,omitempty" yaml:"source_name,omitempty"`
	// Mode is the load mode (REPLACE, APPEND, UPSERT).
	Mode LoadMode `json:"mode,omitempty" yaml:"mode,omitempty"`
	// UpsertKeys are the key columns for UPSERT loads.
	UpsertKeys []string `json:"upsert_keys,omitempty" yaml:"upsert_keys,omitempty"`

	// SQL is the query text for transform steps and inline-query exports.
	SQL string `json:"sql,omitempty" yaml:"sql,omitempty"`

	// SourceTable is the table exported by a table-backed export step.
	SourceTable string `json:"source_table,omitempty" yaml:"source_table,omitempty"`
	// Destination is the export destination URI.
	Destination string `json:"destination,omitempty" yaml:"destination,omitempty"`
	// Options holds export connector options.
	Options map[string]any `json:"options,omitempty" yaml:"options,omitempty"`

	// Variable and Value describe a SET step.
	Variable string `json:"variable,omitempty" yaml:"variable,omitempty"`
	Value    string `json:"value,omitempty" yaml:"value,omitempty"`

	// Branches and Else describe a conditional block.
	Branches []ConditionalBranch `json:"branches,omitempty" yaml:"branches,omitempty"`
	Else     []Step              `json:"else,omitempty" yaml:"else,omitempty"`
}

// ConditionalBranch is one condition-gated arm of a conditional block.
type ConditionalBranch struct {
	Condition string `json:"condition" yaml:"condition"`
	Steps     []Step `json:"steps" yaml:"steps"`
}

// Pipeline is an ordered sequence of steps, as produced by the parser.
type Pipeline struct {
	Name  string `json:"name,omitempty" yaml:"name,omitempty"`
	Steps []Step `json:"steps" yaml:"steps"`
}

// String returns a short human-readable description used in diagnostics
// and cycle messages, e.g. "LOAD users" or "CREATE TABLE adults".
func (s *Step) String() string {
	switch s.Kind {
	case StepSourceDefinition:
		return fmt.Sprintf("SOURCE %s", s.Name)
	case StepLoad:
		return fmt.Sprintf("LOAD %s", s.TargetTable)
	case StepTransform:
		return fmt.Sprintf("CREATE TABLE %s", s.TargetTable)
	case StepExport:
		if s.SourceTable != "" {
			return fmt.Sprintf("EXPORT %s", s.SourceTable)
		}
		return "EXPORT"
	case StepSet:
		return fmt.Sprintf("SET %s", s.Variable)
	case StepConditional:
		return "IF block"
	default:
		return string(s.Kind)
	}
}

// PrincipalName returns the name used for stable plan-step id derivation.
func (s *Step) PrincipalName() string {
	switch s.Kind {
	case StepSourceDefinition:
		return s.Name
	case StepLoad, StepTransform:
		return s.TargetTable
	case StepExport:
		return s.SourceTable
	case StepSet:
		return s.Variable
	default:
		return ""
	}
}

// ValidateMode checks load-specific invariants that do not require
// planning context.
func (s *Step) ValidateMode() error {
	if s.Kind != StepLoad {
		return nil
	}
	switch s.Mode {
	case LoadReplace, LoadAppend, "":
		return nil
	case LoadUpsert:
		if len(s.UpsertKeys) == 0 {
			return fmt.Errorf("load %s: UPSERT requires at least one key column", s.TargetTable)
		}
		return nil
	default:
		return fmt.Errorf("load %s: unknown mode %q", s.TargetTable, s.Mode)
	}
}

// TextFields returns every text-bearing field of the step that may
// contain variable references, labeled for diagnostics.
func (s *Step) TextFields() map[string]string {
	fields := make(map[string]string)
	add := func(label, text string) {
		if strings.Contains(text, "${") {
			fields[label] = text
		}
	}
	add("sql", s.SQL)
	add("destination", s.Destination)
	add("value", s.Value)
	add("source", s.SourceName)
	for key, val := range s.Params {
		if str, ok := val.(string); ok {
			add("param."+key, str)
		}
	}
	for key, val := range s.Options {
		if str, ok := val.(string); ok {
			add("option."+key, str)
		}
	}
	for i := range s.Branches {
		add(fmt.Sprintf("condition[%d]", i), s.Branches[i].Condition)
	}
	return fields
}

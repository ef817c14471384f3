package core

import (
	"encoding/json"
	"fmt"
)

// PlanStepType identifies the kind of an emitted plan step. Set steps
// are folded into the variable store before planning and never appear.
type PlanStepType string

const (
	PlanSourceDefinition PlanStepType = "source_definition"
	PlanLoad             PlanStepType = "load"
	PlanTransform        PlanStepType = "transform"
	PlanExport           PlanStepType = "export"
)

// PlanStep is a single node of an execution plan. Relationships are
// keyed on string ids rather than pointers so the plan graph stays
// acyclic at the object level.
type PlanStep struct {
	ID        string       `json:"id"`
	Type      PlanStepType `json:"type"`
	DependsOn []string     `json:"depends_on"`

	// Name is the principal name: source name for sources, target table
	// for loads and transforms.
	Name string `json:"name,omitempty"`

	// SourceConnectorType is set for source_definition and load steps.
	SourceConnectorType string `json:"source_connector_type,omitempty"`

	// Query is the kind-dependent payload: a parameter map for sources,
	// a load descriptor for loads, SQL text for transforms and inline
	// exports.
	Query any `json:"query,omitempty"`

	// SourceTable is set for table-backed export steps.
	SourceTable string `json:"source_table,omitempty"`

	// Unknown carries fields this version does not understand so that
	// plan documents round-trip losslessly.
	Unknown map[string]json.RawMessage `json:"-"`
}

// LoadQuery is the payload of a load plan step.
type LoadQuery struct {
	Source      string         `json:"source"`
	Mode        LoadMode       `json:"mode"`
	UpsertKeys  []string       `json:"upsert_keys,omitempty"`
	SyncMode    SyncMode       `json:"sync_mode,omitempty"`
	CursorField string         `json:"cursor_field,omitempty"`
	Options     map[string]any `json:"options,omitempty"`
}

// ExportQuery is the payload of an export plan step.
type ExportQuery struct {
	SQL         string         `json:"sql,omitempty"`
	Destination string         `json:"destination"`
	Connector   string         `json:"connector"`
	Options     map[string]any `json:"options,omitempty"`
}

// ExecutionPlan is a topologically ordered sequence of plan steps: for
// every step, all depends_on ids appear earlier in the slice.
type ExecutionPlan struct {
	Steps []PlanStep
}

// StepByID returns the step with the given id, or nil.
func (p *ExecutionPlan) StepByID(id string) *PlanStep {
	for i := range p.Steps {
		if p.Steps[i].ID == id {
			return &p.Steps[i]
		}
	}
	return nil
}

// IDs returns the plan-step ids in execution order.
func (p *ExecutionPlan) IDs() []string {
	ids := make([]string, len(p.Steps))
	for i := range p.Steps {
		ids[i] = p.Steps[i].ID
	}
	return ids
}

// knownPlanFields lists the JSON keys handled by PlanStep itself; any
// other key is preserved verbatim in Unknown.
var knownPlanFields = map[string]struct{}{
	"id": {}, "type": {}, "depends_on": {}, "name": {},
	"source_connector_type": {}, "query": {}, "source_table": {},
}

// MarshalJSON emits the known fields plus any preserved unknown fields.
func (s PlanStep) MarshalJSON() ([]byte, error) {
	doc := map[string]any{
		"id":         s.ID,
		"type":       s.Type,
		"depends_on": s.DependsOn,
	}
	if s.DependsOn == nil {
		doc["depends_on"] = []string{}
	}
	if s.Name != "" {
		doc["name"] = s.Name
	}
	if s.SourceConnectorType != "" {
		doc["source_connector_type"] = s.SourceConnectorType
	}
	if s.Query != nil {
		doc["query"] = s.Query
	}
	if s.SourceTable != "" {
		doc["source_table"] = s.SourceTable
	}
	for key, raw := range s.Unknown {
		doc[key] = raw
	}
	return json.Marshal(doc)
}

// UnmarshalJSON restores a plan step, keeping unknown fields aside.
func (s *PlanStep) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	type alias PlanStep
	var known alias
	if err := json.Unmarshal(data, &known); err != nil {
		return err
	}
	*s = PlanStep(known)

	for key, val := range raw {
		if _, ok := knownPlanFields[key]; ok {
			continue
		}
		if s.Unknown == nil {
			s.Unknown = make(map[string]json.RawMessage)
		}
		s.Unknown[key] = val
	}
	return nil
}

// MarshalJSON serializes the plan as a JSON array in execution order.
func (p ExecutionPlan) MarshalJSON() ([]byte, error) {
	steps := p.Steps
	if steps == nil {
		steps = []PlanStep{}
	}
	return json.Marshal(steps)
}

// UnmarshalJSON restores a plan from its JSON array form.
func (p *ExecutionPlan) UnmarshalJSON(data []byte) error {
	var steps []PlanStep
	if err := json.Unmarshal(data, &steps); err != nil {
		return fmt.Errorf("invalid execution plan document: %w", err)
	}
	p.Steps = steps
	return nil
}

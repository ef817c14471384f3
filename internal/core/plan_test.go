package core

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlanRoundTrip(t *testing.T) {
	plan := ExecutionPlan{Steps: []PlanStep{
		{ID: "source_s", Type: PlanSourceDefinition, DependsOn: []string{},
			Name: "s", SourceConnectorType: "csv",
			Query: map[string]any{"path": "users.csv"}},
		{ID: "load_users", Type: PlanLoad, DependsOn: []string{"source_s"},
			Name: "users", SourceConnectorType: "csv",
			Query: LoadQuery{Source: "s", Mode: LoadReplace}},
	}}

	data, err := json.Marshal(plan)
	require.NoError(t, err)

	var back ExecutionPlan
	require.NoError(t, json.Unmarshal(data, &back))
	require.Len(t, back.Steps, 2)
	assert.Equal(t, []string{"source_s", "load_users"}, back.IDs())
	assert.Equal(t, []string{"source_s"}, back.Steps[1].DependsOn)
	require.NotNil(t, back.StepByID("load_users"))
	assert.Nil(t, back.StepByID("ghost"))
}

func TestPlanRoundTripPreservesUnknownFields(t *testing.T) {
	doc := []byte(`[{
		"id": "load_users",
		"type": "load",
		"depends_on": ["source_s"],
		"name": "users",
		"query": {"source": "s", "mode": "REPLACE"},
		"x_tuning": {"parallelism": 4},
		"x_note": "keep me"
	}]`)

	var plan ExecutionPlan
	require.NoError(t, json.Unmarshal(doc, &plan))
	require.Len(t, plan.Steps, 1)

	step := plan.Steps[0]
	assert.Equal(t, "load_users", step.ID)
	require.Contains(t, step.Unknown, "x_tuning")
	require.Contains(t, step.Unknown, "x_note")
	assert.JSONEq(t, `{"parallelism": 4}`, string(step.Unknown["x_tuning"]))

	// Fields this version does not understand come back out verbatim.
	out, err := json.Marshal(plan)
	require.NoError(t, err)
	assert.JSONEq(t, string(doc), string(out))
}

func TestPlanUnmarshalInvalidDocument(t *testing.T) {
	var plan ExecutionPlan
	err := json.Unmarshal([]byte(`{"not": "an array"}`), &plan)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid execution plan document")
}

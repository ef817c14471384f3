package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sqlflow-dev/sqlflow/internal/core"
)

func TestLoadPipeline(t *testing.T) {
	path := writeFile(t, "users.yml", `
name: user_metrics
steps:
  - kind: source_definition
    name: users_csv
    connector_type: csv
    params:
      path: users.csv
  - kind: load
    target_table: users
    source_name: users_csv
    mode: REPLACE
  - kind: transform
    target_table: adults
    sql: SELECT * FROM users WHERE age >= 18
  - kind: export
    connector_type: csv
    destination: adults.csv
    sql: SELECT * FROM adults
`)
	pipeline, err := LoadPipeline(path)
	require.NoError(t, err)

	assert.Equal(t, "user_metrics", pipeline.Name)
	require.Len(t, pipeline.Steps, 4)
	assert.Equal(t, core.StepSourceDefinition, pipeline.Steps[0].Kind)
	assert.Equal(t, "users.csv", pipeline.Steps[0].Params["path"])
	assert.Equal(t, core.LoadReplace, pipeline.Steps[1].Mode)
}

func TestLoadPipelineDefaultsNameFromFile(t *testing.T) {
	path := writeFile(t, "nightly.yml", `
steps:
  - kind: set
    variable: env
    value: prod
  - kind: transform
    target_table: t
    sql: SELECT 1 AS one FROM seed
`)
	pipeline, err := LoadPipeline(path)
	require.NoError(t, err)
	assert.Equal(t, "nightly", pipeline.Name)
}

func TestParsePipelineConditional(t *testing.T) {
	pipeline, err := ParsePipeline([]byte(`
steps:
  - kind: conditional
    branches:
      - condition: ${env} == 'prod'
        steps:
          - kind: transform
            target_table: live
            sql: SELECT 1 AS v FROM seed
    else:
      - kind: transform
        target_table: fallback
        sql: SELECT 2 AS v FROM seed
`))
	require.NoError(t, err)
	require.Len(t, pipeline.Steps, 1)
	require.Len(t, pipeline.Steps[0].Branches, 1)
	assert.Equal(t, "${env} == 'prod'", pipeline.Steps[0].Branches[0].Condition)
	require.Len(t, pipeline.Steps[0].Else, 1)
}

func TestParsePipelineValidation(t *testing.T) {
	cases := []struct {
		name string
		doc  string
		want string
	}{
		{"missing kind", "steps:\n  - name: x\n", "missing kind"},
		{"unknown kind", "steps:\n  - kind: teleport\n", "unknown kind"},
		{"load without target", "steps:\n  - kind: load\n    source_name: s\n", "target_table"},
		{"transform without sql", "steps:\n  - kind: transform\n    target_table: t\n", "sql"},
		{"export without destination", "steps:\n  - kind: export\n    source_table: t\n", "destination"},
		{"upsert without keys", "steps:\n  - kind: load\n    target_table: t\n    source_name: s\n    mode: UPSERT\n", "UPSERT"},
		{"conditional without branches", "steps:\n  - kind: conditional\n", "at least one branch"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParsePipeline([]byte(tc.doc))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

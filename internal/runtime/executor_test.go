package runtime

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sqlflow-dev/sqlflow/internal/connector"
	"github.com/sqlflow-dev/sqlflow/internal/core"
	"github.com/sqlflow-dev/sqlflow/internal/vars"
)

func testOptions(t *testing.T) Options {
	t.Helper()
	opts := DefaultOptions()
	opts.Workers = 1
	opts.StateDir = t.TempDir()
	opts.SerializeEngine = false
	return opts
}

func transformStep(id, table, from string, deps ...string) core.PlanStep {
	if deps == nil {
		deps = []string{}
	}
	return core.PlanStep{
		ID:        id,
		Type:      core.PlanTransform,
		DependsOn: deps,
		Name:      table,
		Query:     fmt.Sprintf("SELECT * FROM %s", from),
	}
}

func seedTable(eng *memEngine, name string, rows int) {
	data := make([][]any, rows)
	for i := range data {
		data[i] = []any{int64(i), fmt.Sprintf("row%d", i)}
	}
	eng.tables[name] = &memTable{columns: []string{"id", "name"}, rows: data}
}

func TestRunLinearPlan(t *testing.T) {
	eng := newMemEngine()
	seedTable(eng, "seed", 3)

	conn := &memConnector{chunk: &connector.DataChunk{
		Columns: []string{"id", "name"},
		Rows:    [][]any{{int64(1), "a"}, {int64(2), "b"}},
	}}

	plan := &core.ExecutionPlan{Steps: []core.PlanStep{
		{ID: "source_s", Type: core.PlanSourceDefinition, DependsOn: []string{},
			Name: "s", SourceConnectorType: "mem", Query: map[string]any{}},
		{ID: "load_users", Type: core.PlanLoad, DependsOn: []string{"source_s"},
			Name: "users", SourceConnectorType: "mem",
			Query: core.LoadQuery{Source: "s", Mode: core.LoadReplace}},
		transformStep("transform_adults", "adults", "users", "load_users"),
	}}

	exec := New(eng, testRegistry(conn), testOptions(t))
	result, err := exec.Run(context.Background(), plan, "linear", vars.NewStore())
	require.NoError(t, err)

	assert.Equal(t, "success", result.Status)
	assert.Equal(t, []string{"source_s", "load_users", "transform_adults"}, result.ExecutedSteps)
	assert.Empty(t, result.FailedStep)
	require.Len(t, result.StepResults, 3)

	require.NotNil(t, eng.table("users"))
	assert.Len(t, eng.table("users").rows, 2)
	require.NotNil(t, eng.table("adults"))

	// Staging tables are cleaned up.
	assert.Nil(t, eng.table("_stage_users"))

	loadResult := result.StepResults[1]
	assert.Equal(t, int64(2), loadResult.RowsAffected)
	assert.Equal(t, []string{"s"}, loadResult.Lineage)
}

func TestRunFailFastSkipsDependents(t *testing.T) {
	eng := newMemEngine()
	seedTable(eng, "seed", 1)
	eng.failOn["t2"] = errors.New("boom")

	plan := &core.ExecutionPlan{Steps: []core.PlanStep{
		transformStep("step1", "t1", "seed"),
		transformStep("step2", "t2", "t1", "step1"),
		transformStep("step3", "t3", "t2", "step2"),
	}}

	exec := New(eng, testRegistry(&memConnector{}), testOptions(t))
	result, err := exec.Run(context.Background(), plan, "failfast", vars.NewStore())
	require.NoError(t, err)

	assert.Equal(t, "failed", result.Status)
	assert.Equal(t, "step2", result.FailedStep)
	assert.Equal(t, core.PlanTransform, result.FailedStepType)
	require.NotNil(t, result.FailedAtIndex)
	assert.Equal(t, 1, *result.FailedAtIndex)
	assert.Equal(t, []string{"step1"}, result.ExecutedSteps)
	assert.NotEmpty(t, result.Error)

	// The dependent never started.
	doc, loadErr := exec.Runs().Load(result.RunID)
	require.NoError(t, loadErr)
	assert.Equal(t, core.TaskFailed, doc.States["step2"].Status)
	assert.Equal(t, core.TaskPending, doc.States["step3"].Status)
	assert.Equal(t, core.RunFailed, doc.Record.Status)
}

func TestRunContinueOnError(t *testing.T) {
	eng := newMemEngine()
	seedTable(eng, "seed", 1)
	eng.failOn["t1"] = errors.New("boom")

	// Two independent chains; only the failing one stops.
	plan := &core.ExecutionPlan{Steps: []core.PlanStep{
		transformStep("step1", "t1", "seed"),
		transformStep("step2", "t2", "t1", "step1"),
		transformStep("other1", "u1", "seed"),
		transformStep("other2", "u2", "u1", "other1"),
	}}

	opts := testOptions(t)
	opts.FailFast = false
	exec := New(eng, testRegistry(&memConnector{}), opts)
	result, err := exec.Run(context.Background(), plan, "continue", vars.NewStore())
	require.NoError(t, err)

	assert.Equal(t, "partial_success", result.Status)
	assert.Equal(t, "step1", result.FailedStep)
	assert.ElementsMatch(t, []string{"other1", "other2"}, result.ExecutedSteps)
	assert.NotNil(t, eng.table("u2"))
	assert.Nil(t, eng.table("t2"))
}

func TestResumeRerunsFailedAndDownstream(t *testing.T) {
	eng := newMemEngine()
	seedTable(eng, "seed", 1)
	eng.failOn["t2"] = errors.New("flaky")

	plan := &core.ExecutionPlan{Steps: []core.PlanStep{
		transformStep("s1", "t1", "seed"),
		transformStep("s2", "t2", "t1", "s1"),
		transformStep("s3", "t3", "t2", "s2"),
	}}

	opts := testOptions(t)
	exec := New(eng, testRegistry(&memConnector{}), opts)

	first, err := exec.Run(context.Background(), plan, "resume", vars.NewStore())
	require.NoError(t, err)
	require.Equal(t, "failed", first.Status)
	require.Equal(t, []string{"s1"}, first.ExecutedSteps)
	firstS1 := first.StepResults[0]
	require.Equal(t, "s1", firstS1.StepID)

	// Clear the fault and resume the same run.
	delete(eng.failOn, "t2")
	second, err := exec.Resume(context.Background(), first.RunID, vars.NewStore())
	require.NoError(t, err)

	assert.Equal(t, "success", second.Status)
	assert.Equal(t, first.RunID, second.RunID)
	assert.Equal(t, []string{"s1", "s2", "s3"}, second.ExecutedSteps)
	assert.NotNil(t, eng.table("t3"))

	// The carried-forward step keeps its original timing.
	require.Equal(t, "s1", second.StepResults[0].StepID)
	assert.Equal(t, firstS1.StartTime.UnixNano(), second.StepResults[0].StartTime.UnixNano())
	assert.Equal(t, firstS1.EndTime.UnixNano(), second.StepResults[0].EndTime.UnixNano())
}

func TestRunRetriesTransientConnectorErrors(t *testing.T) {
	eng := newMemEngine()
	conn := &memConnector{
		chunk:     &connector.DataChunk{Columns: []string{"id"}, Rows: [][]any{{int64(1)}}},
		failReads: 2,
		transient: true,
	}

	plan := &core.ExecutionPlan{Steps: []core.PlanStep{
		{ID: "source_s", Type: core.PlanSourceDefinition, DependsOn: []string{},
			Name: "s", SourceConnectorType: "mem", Query: map[string]any{}},
		{ID: "load_users", Type: core.PlanLoad, DependsOn: []string{"source_s"},
			Name: "users", SourceConnectorType: "mem",
			Query: core.LoadQuery{Source: "s", Mode: core.LoadReplace}},
	}}

	exec := New(eng, testRegistry(conn), testOptions(t))
	result, err := exec.Run(context.Background(), plan, "retry", vars.NewStore())
	require.NoError(t, err)

	assert.Equal(t, "success", result.Status)
	assert.Equal(t, 3, conn.reads)
}

func TestRunDoesNotRetryPermanentErrors(t *testing.T) {
	eng := newMemEngine()
	conn := &memConnector{
		chunk:     &connector.DataChunk{Columns: []string{"id"}, Rows: [][]any{{int64(1)}}},
		failReads: 1,
		transient: false,
	}

	plan := &core.ExecutionPlan{Steps: []core.PlanStep{
		{ID: "source_s", Type: core.PlanSourceDefinition, DependsOn: []string{},
			Name: "s", SourceConnectorType: "mem", Query: map[string]any{}},
		{ID: "load_users", Type: core.PlanLoad, DependsOn: []string{"source_s"},
			Name: "users", SourceConnectorType: "mem",
			Query: core.LoadQuery{Source: "s", Mode: core.LoadReplace}},
	}}

	exec := New(eng, testRegistry(conn), testOptions(t))
	result, err := exec.Run(context.Background(), plan, "permanent", vars.NewStore())
	require.NoError(t, err)

	assert.Equal(t, "failed", result.Status)
	assert.Equal(t, "load_users", result.FailedStep)
	assert.Equal(t, 1, conn.reads)

	// The failure carries structured context for the report.
	var detail *core.ErrorDetail
	for _, step := range result.StepResults {
		if step.StepID == "load_users" {
			detail = step.Error
		}
	}
	require.NotNil(t, detail)
	assert.Equal(t, "ConnectorError", detail.Kind)
	assert.Equal(t, "users", detail.Context["target"])
}

func TestRunIncrementalAdvancesWatermark(t *testing.T) {
	eng := newMemEngine()
	opts := testOptions(t)
	require.NoError(t, NewWatermarkStore(opts.StateDir).Set("incr", "s", "id", "99"))

	conn := &memConnector{
		chunk:       &connector.DataChunk{Columns: []string{"id"}, Rows: [][]any{{int64(100)}}},
		incremental: true,
		nextCursor:  "100",
	}
	plan := &core.ExecutionPlan{Steps: []core.PlanStep{
		{ID: "source_s", Type: core.PlanSourceDefinition, DependsOn: []string{},
			Name: "s", SourceConnectorType: "mem", Query: map[string]any{}},
		{ID: "load_events", Type: core.PlanLoad, DependsOn: []string{"source_s"},
			Name: "events", SourceConnectorType: "mem",
			Query: core.LoadQuery{
				Source: "s", Mode: core.LoadAppend,
				SyncMode: core.SyncIncremental, CursorField: "id",
				Options: map[string]any{"batch_size": float64(250)},
			}},
	}}

	exec := New(eng, testRegistry(conn), opts)
	result, err := exec.Run(context.Background(), plan, "incr", vars.NewStore())
	require.NoError(t, err)
	require.Equal(t, "success", result.Status)

	// The stored cursor reached the connector, and the batch size
	// survived its trip through JSON as a float.
	assert.Equal(t, "99", conn.cursorArg)
	assert.Equal(t, 250, conn.batchArg)

	// "100" follows "99" numerically even though it precedes it as a
	// string, so the next run starts past the rows just loaded.
	next, err := NewWatermarkStore(opts.StateDir).Get("incr", "s", "id")
	require.NoError(t, err)
	assert.Equal(t, "100", next)
}

func TestRunIncrementalKeepsWatermarkOnFailure(t *testing.T) {
	eng := newMemEngine()
	eng.failOn["events"] = errors.New("boom")
	opts := testOptions(t)
	require.NoError(t, NewWatermarkStore(opts.StateDir).Set("incr", "s", "ts", "2026-01-01 00:00:00"))

	conn := &memConnector{
		chunk:       &connector.DataChunk{Columns: []string{"ts"}, Rows: [][]any{{"2026-02-01 00:00:00"}}},
		incremental: true,
		nextCursor:  "2026-02-01 00:00:00",
	}
	plan := &core.ExecutionPlan{Steps: []core.PlanStep{
		{ID: "source_s", Type: core.PlanSourceDefinition, DependsOn: []string{},
			Name: "s", SourceConnectorType: "mem", Query: map[string]any{}},
		{ID: "load_events", Type: core.PlanLoad, DependsOn: []string{"source_s"},
			Name: "events", SourceConnectorType: "mem",
			Query: core.LoadQuery{
				Source: "s", Mode: core.LoadReplace,
				SyncMode: core.SyncIncremental, CursorField: "ts",
			}},
	}}

	exec := New(eng, testRegistry(conn), opts)
	result, err := exec.Run(context.Background(), plan, "incr", vars.NewStore())
	require.NoError(t, err)
	require.Equal(t, "failed", result.Status)
	require.Equal(t, "load_events", result.FailedStep)

	// The step failed after the read, so the watermark must not move.
	value, err := NewWatermarkStore(opts.StateDir).Get("incr", "s", "ts")
	require.NoError(t, err)
	assert.Equal(t, "2026-01-01 00:00:00", value)
}

func TestRunExportWritesCSV(t *testing.T) {
	eng := newMemEngine()
	seedTable(eng, "adults", 2)

	dest := filepath.Join(t.TempDir(), "out.csv")
	plan := &core.ExecutionPlan{Steps: []core.PlanStep{
		{ID: "export_csv_adults", Type: core.PlanExport, DependsOn: []string{},
			SourceTable: "adults",
			Query:       core.ExportQuery{Destination: dest, Connector: "csv"}},
	}}

	exec := New(eng, testRegistry(&memConnector{}), testOptions(t))
	result, err := exec.Run(context.Background(), plan, "export", vars.NewStore())
	require.NoError(t, err)

	assert.Equal(t, "success", result.Status)
	assert.FileExists(t, dest)
	assert.Equal(t, int64(2), result.StepResults[0].RowsAffected)
}

func TestRunExportMissingTableWritesEmptyFile(t *testing.T) {
	eng := newMemEngine()

	dest := filepath.Join(t.TempDir(), "empty.csv")
	plan := &core.ExecutionPlan{Steps: []core.PlanStep{
		{ID: "export_csv_nothing", Type: core.PlanExport, DependsOn: []string{},
			SourceTable: "nothing",
			Query:       core.ExportQuery{Destination: dest, Connector: "csv"}},
	}}

	exec := New(eng, testRegistry(&memConnector{}), testOptions(t))
	result, err := exec.Run(context.Background(), plan, "export-missing", vars.NewStore())
	require.NoError(t, err)

	assert.Equal(t, "success", result.Status)
	assert.FileExists(t, dest)
	require.Len(t, result.StepResults, 1)
	assert.NotEmpty(t, result.StepResults[0].Warnings)
}

func TestRunUpsertIssuesDeleteInsertBatch(t *testing.T) {
	eng := newMemEngine()
	seedTable(eng, "users", 3)

	conn := &memConnector{chunk: &connector.DataChunk{
		Columns: []string{"id", "name"},
		Rows:    [][]any{{int64(1), "updated"}, {int64(9), "new"}},
	}}

	plan := &core.ExecutionPlan{Steps: []core.PlanStep{
		{ID: "source_s", Type: core.PlanSourceDefinition, DependsOn: []string{},
			Name: "s", SourceConnectorType: "mem", Query: map[string]any{}},
		{ID: "load_users", Type: core.PlanLoad, DependsOn: []string{"source_s"},
			Name: "users", SourceConnectorType: "mem",
			Query: core.LoadQuery{Source: "s", Mode: core.LoadUpsert, UpsertKeys: []string{"id"}}},
	}}

	exec := New(eng, testRegistry(conn), testOptions(t))
	result, err := exec.Run(context.Background(), plan, "upsert", vars.NewStore())
	require.NoError(t, err)
	require.Equal(t, "success", result.Status)

	// Delete-then-insert runs as one batch.
	require.Len(t, eng.batches, 1)
	require.Len(t, eng.batches[0], 2)
	assert.Equal(t,
		"DELETE FROM users WHERE (id) IN (SELECT id FROM _stage_users)",
		eng.batches[0][0])
	assert.Equal(t,
		"INSERT INTO users SELECT * FROM _stage_users",
		eng.batches[0][1])
}

func TestRunRecordsMetrics(t *testing.T) {
	eng := newMemEngine()
	seedTable(eng, "seed", 4)

	plan := &core.ExecutionPlan{Steps: []core.PlanStep{
		transformStep("a", "t1", "seed"),
		transformStep("b", "t2", "t1", "a"),
	}}

	exec := New(eng, testRegistry(&memConnector{}), testOptions(t))
	result, err := exec.Run(context.Background(), plan, "metrics", vars.NewStore())
	require.NoError(t, err)

	doc, err := exec.Runs().Load(result.RunID)
	require.NoError(t, err)
	assert.Equal(t, float64(2), doc.Record.Metrics["transform.calls"])
	assert.Equal(t, float64(0), doc.Record.Metrics["transform.failures"])
}

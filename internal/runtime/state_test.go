package runtime

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sqlflow-dev/sqlflow/internal/core"
)

func TestWatermarkStoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store := NewWatermarkStore(dir)

	value, err := store.Get("p", "orders", "updated_at")
	require.NoError(t, err)
	assert.Empty(t, value)

	require.NoError(t, store.Set("p", "orders", "updated_at", "2026-01-02 03:04:05"))
	require.NoError(t, store.Set("other", "orders", "updated_at", "2026-06-01 00:00:00"))

	// A fresh store re-reads from disk.
	reopened := NewWatermarkStore(dir)
	value, err = reopened.Get("p", "orders", "updated_at")
	require.NoError(t, err)
	assert.Equal(t, "2026-01-02 03:04:05", value)

	// Keys are scoped per pipeline.
	value, err = reopened.Get("other", "orders", "updated_at")
	require.NoError(t, err)
	assert.Equal(t, "2026-06-01 00:00:00", value)
}

func TestRunStoreRoundTrip(t *testing.T) {
	store := NewRunStore(t.TempDir())

	doc := &RunDocument{
		Record: core.RunRecord{
			RunID:     "run-1",
			Pipeline:  "p",
			StartTime: time.Now().Add(-time.Minute),
			Status:    core.RunFailed,
		},
		Plan: &core.ExecutionPlan{Steps: []core.PlanStep{
			transformStep("a", "ta", "seed"),
		}},
		States: map[string]core.TaskState{
			"a": {Status: core.TaskFailed, Error: "boom"},
		},
	}
	require.NoError(t, store.Save(doc))

	loaded, err := store.Load("run-1")
	require.NoError(t, err)
	assert.Equal(t, "p", loaded.Record.Pipeline)
	assert.Equal(t, core.RunFailed, loaded.Record.Status)
	require.Len(t, loaded.Plan.Steps, 1)
	assert.Equal(t, "a", loaded.Plan.Steps[0].ID)
	assert.Equal(t, core.TaskFailed, loaded.States["a"].Status)
}

func TestRunStoreLatest(t *testing.T) {
	store := NewRunStore(t.TempDir())
	base := time.Now()

	for i, id := range []string{"old", "mid", "new"} {
		require.NoError(t, store.Save(&RunDocument{
			Record: core.RunRecord{
				RunID:     id,
				StartTime: base.Add(time.Duration(i) * time.Hour),
				Status:    core.RunSuccess,
			},
			Plan: &core.ExecutionPlan{},
		}))
	}

	latest, err := store.Latest()
	require.NoError(t, err)
	assert.Equal(t, "new", latest.Record.RunID)

	ids, err := store.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"mid", "new", "old"}, ids)
}

func TestRunStoreEmpty(t *testing.T) {
	store := NewRunStore(t.TempDir())

	ids, err := store.List()
	require.NoError(t, err)
	assert.Empty(t, ids)

	_, err = store.Latest()
	require.Error(t, err)
}

func TestRunStorePrune(t *testing.T) {
	store := NewRunStore(t.TempDir())

	require.NoError(t, store.Save(&RunDocument{
		Record: core.RunRecord{RunID: "ancient", StartTime: time.Now().Add(-48 * time.Hour)},
		Plan:   &core.ExecutionPlan{},
	}))
	require.NoError(t, store.Save(&RunDocument{
		Record: core.RunRecord{RunID: "recent", StartTime: time.Now()},
		Plan:   &core.ExecutionPlan{},
	}))

	removed, err := store.Prune(24 * time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	ids, err := store.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"recent"}, ids)
}

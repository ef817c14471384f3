package runtime

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sqlflow-dev/sqlflow/internal/core"
)

// outcome is what a handler reports back to the scheduler; the
// scheduler folds it into the step's execution result.
type outcome struct {
	Rows         int64
	Bytes        int64
	InputSchema  []core.ColumnSchema
	OutputSchema []core.ColumnSchema
	Warnings     []string
	Lineage      []string
}

// handlerFunc executes one plan step kind.
type handlerFunc func(ctx context.Context, ec *Context, step core.PlanStep) (*outcome, error)

// handlerFor returns the handler for a step type.
func handlerFor(stepType core.PlanStepType) (handlerFunc, error) {
	switch stepType {
	case core.PlanSourceDefinition:
		return handleSourceDefinition, nil
	case core.PlanLoad:
		return handleLoad, nil
	case core.PlanTransform:
		return handleTransform, nil
	case core.PlanExport:
		return handleExport, nil
	default:
		return nil, fmt.Errorf("%w: no handler for step type %q", core.ErrStepExecution, stepType)
	}
}

// decodePayload converts a plan step's query payload into its typed
// form. Plans loaded back from disk carry the payload as generic JSON
// maps, so a round-trip through encoding/json normalizes both cases.
func decodePayload[T any](query any) (T, error) {
	var out T
	if typed, ok := query.(T); ok {
		return typed, nil
	}
	data, err := json.Marshal(query)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, err
	}
	return out, nil
}

// queryText extracts a SQL payload, which may arrive as a plain string
// or as JSON-decoded text.
func queryText(query any) (string, error) {
	switch v := query.(type) {
	case string:
		return v, nil
	case nil:
		return "", nil
	default:
		return "", fmt.Errorf("expected SQL text payload, got %T", query)
	}
}

// paramsMap extracts a source step's parameter map.
func paramsMap(query any) (map[string]any, error) {
	switch v := query.(type) {
	case map[string]any:
		return v, nil
	case nil:
		return map[string]any{}, nil
	default:
		return decodePayload[map[string]any](query)
	}
}

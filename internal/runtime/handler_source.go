package runtime

import (
	"context"
	"fmt"
	"strings"

	"github.com/sqlflow-dev/sqlflow/internal/core"
	"github.com/sqlflow-dev/sqlflow/internal/logger"
)

// handleSourceDefinition validates a source's parameters against its
// connector and stores the normalized definition for downstream loads.
// No data moves here; an unreachable remote surfaces when a load reads
// from it, not when the source is defined.
func handleSourceDefinition(ctx context.Context, ec *Context, step core.PlanStep) (*outcome, error) {
	params, err := paramsMap(step.Query)
	if err != nil {
		return nil, fmt.Errorf("%w: source %q: %v", core.ErrStepExecution, step.Name, err)
	}

	conn, err := ec.Connectors.New(step.SourceConnectorType)
	if err != nil {
		return nil, fmt.Errorf("%w: source %q: %v", core.ErrConnector, step.Name, err)
	}

	if errs := conn.Configure(params); len(errs) > 0 {
		return nil, &core.StepError{
			StepID:   step.ID,
			StepType: step.Type,
			Err: fmt.Errorf("%w: invalid parameters for source %q: %s",
				core.ErrConnector, step.Name, strings.Join(errs, "; ")),
			Context: map[string]string{
				"source":    step.Name,
				"connector": step.SourceConnectorType,
			},
			SuggestedActions: []string{
				"check the source definition's parameters against the connector's documentation",
			},
		}
	}

	ec.StoreSource(SourceDefinition{
		Name:      step.Name,
		Connector: step.SourceConnectorType,
		Params:    params,
	})
	logger.Debug(ctx, "Source definition registered",
		"source", step.Name, "connector", step.SourceConnectorType)

	return &outcome{}, nil
}

package runtime

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sqlflow-dev/sqlflow/internal/backoff"
	"github.com/sqlflow-dev/sqlflow/internal/connector"
	"github.com/sqlflow-dev/sqlflow/internal/core"
	"github.com/sqlflow-dev/sqlflow/internal/engine"
	"github.com/sqlflow-dev/sqlflow/internal/logger"
)

// handleExport writes a table or query result out through a connector.
// Local file exports prefer the engine's COPY TO fast path and fall
// back to materializing the rows and handing them to the connector.
func handleExport(ctx context.Context, ec *Context, step core.PlanStep) (*outcome, error) {
	query, err := decodePayload[core.ExportQuery](step.Query)
	if err != nil {
		return nil, fmt.Errorf("%w: export %q: %v", core.ErrStepExecution, step.ID, err)
	}

	out := &outcome{}
	sql := query.SQL
	if sql == "" {
		table := step.SourceTable
		if table == "" {
			return nil, fmt.Errorf("%w: export %q has neither SQL nor a source table",
				core.ErrStepExecution, step.ID)
		}
		out.Lineage = []string{table}

		exists, err := ec.Engine.TableExists(ctx, table)
		if err != nil {
			return nil, fmt.Errorf("%w: export %q: %v", core.ErrDatabase, step.ID, err)
		}
		if !exists {
			// A missing table exports an empty file rather than failing, so
			// downstream consumers always find their artifact.
			if isFileConnector(query.Connector) {
				if err := writeExport(ctx, ec, query, &connector.DataChunk{}); err != nil {
					return nil, exportError(step, query, err)
				}
				out.Warnings = append(out.Warnings,
					fmt.Sprintf("table %q does not exist; exported an empty file", table))
				return out, nil
			}
			return nil, &core.StepError{
				StepID: step.ID, StepType: step.Type,
				Err:     fmt.Errorf("%w: table %q does not exist", core.ErrDatabase, table),
				Context: map[string]string{"table": table},
			}
		}
		sql = "SELECT * FROM " + table
	}

	if isFileConnector(query.Connector) && !strings.Contains(query.Destination, "://") {
		err := ec.Engine.CopyToFile(ctx, sql, query.Destination, query.Options)
		if err == nil {
			logger.Debug(ctx, "Export used engine copy path", "destination", query.Destination)
			out.Rows = -1
			if rows, countErr := countExportRows(ctx, ec, sql); countErr == nil {
				out.Rows = rows
			}
			return out, nil
		}
		if !errors.Is(err, engine.ErrNotSupported) {
			logger.Warn(ctx, "Engine copy failed; falling back to connector write",
				"destination", query.Destination, "err", err)
		}
	}

	result, err := ec.Engine.Execute(ctx, sql)
	if err != nil {
		return nil, &core.StepError{
			StepID: step.ID, StepType: step.Type,
			Err:     fmt.Errorf("%w: export %q: %v", core.ErrDatabase, step.ID, err),
			Context: map[string]string{"sql": truncateSQL(sql)},
		}
	}
	chunk := chunkFromResult(result)

	if err := writeExport(ctx, ec, query, chunk); err != nil {
		return nil, exportError(step, query, err)
	}
	out.Rows = int64(chunk.RowCount())
	out.InputSchema = result.Columns()
	return out, nil
}

// writeExport pushes the chunk through the destination connector,
// retrying transient failures.
func writeExport(ctx context.Context, ec *Context, query core.ExportQuery, chunk *connector.DataChunk) error {
	kind := query.Connector
	if kind == "" {
		kind = "csv"
	}
	conn, err := ec.Connectors.New(kind)
	if err != nil {
		return err
	}
	if len(query.Options) > 0 {
		params := query.Options
		if isFileConnector(query.Connector) {
			merged := map[string]any{"path": query.Destination}
			for k, v := range query.Options {
				merged[k] = v
			}
			params = merged
		}
		if errs := conn.Configure(params); len(errs) > 0 {
			return fmt.Errorf("%w: invalid export options: %s",
				core.ErrConnector, strings.Join(errs, "; "))
		}
	}
	writer, ok := conn.(connector.Writer)
	if !ok {
		return fmt.Errorf("%w: connector %q cannot write", core.ErrConnector, query.Connector)
	}

	op := func(ctx context.Context) error {
		return writer.Write(ctx, query.Destination, chunk, query.Options)
	}
	return backoff.Retry(ctx, op, backoff.DefaultPolicy(), core.IsTransient)
}

func exportError(step core.PlanStep, query core.ExportQuery, err error) error {
	return &core.StepError{
		StepID:   step.ID,
		StepType: step.Type,
		Err:      err,
		Context: map[string]string{
			"connector":   query.Connector,
			"destination": query.Destination,
		},
		SuggestedActions: suggestedForConnector(err),
	}
}

// isFileConnector reports whether the export lands on the local
// filesystem, where the engine's COPY path applies.
func isFileConnector(kind string) bool {
	return kind == "csv" || kind == "file" || kind == ""
}

func chunkFromResult(result engine.Result) *connector.DataChunk {
	schema := result.Columns()
	columns := make([]string, len(schema))
	for i, col := range schema {
		columns[i] = col.Name
	}
	return &connector.DataChunk{Columns: columns, Rows: result.FetchAll()}
}

func countExportRows(ctx context.Context, ec *Context, sql string) (int64, error) {
	result, err := ec.Engine.Execute(ctx,
		fmt.Sprintf("SELECT COUNT(*) FROM (%s)", strings.TrimRight(strings.TrimSpace(sql), ";")))
	if err != nil {
		return 0, err
	}
	row, ok := result.FetchOne()
	if !ok || len(row) == 0 {
		return 0, nil
	}
	if n, ok := row[0].(int64); ok {
		return n, nil
	}
	return 0, nil
}

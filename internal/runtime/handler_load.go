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

// handleLoad moves rows from a connector into the engine and applies
// the load mode. Data is staged under a scratch table first so REPLACE
// and UPSERT stay atomic from the reader's point of view.
func handleLoad(ctx context.Context, ec *Context, step core.PlanStep) (*outcome, error) {
	query, err := decodePayload[core.LoadQuery](step.Query)
	if err != nil {
		return nil, fmt.Errorf("%w: load %q: %v", core.ErrStepExecution, step.Name, err)
	}
	target := step.Name

	conn, object, err := connectorForLoad(ec, step, query)
	if err != nil {
		return nil, err
	}

	incremental := query.SyncMode == core.SyncIncremental &&
		query.CursorField != "" && conn.SupportsIncremental()

	var cursor string
	if incremental {
		cursor, err = ec.Watermarks.Get(ec.Pipeline, query.Source, query.CursorField)
		if err != nil {
			return nil, fmt.Errorf("%w: load %q: reading watermark: %v", core.ErrStepExecution, target, err)
		}
	}

	chunk, bytesRead, err := readAll(ctx, conn, object, query, incremental, cursor)
	if err != nil {
		return nil, &core.StepError{
			StepID:   step.ID,
			StepType: step.Type,
			Err:      err,
			Context: map[string]string{
				"source": query.Source,
				"target": target,
			},
			SuggestedActions: suggestedForConnector(err),
		}
	}

	out := &outcome{
		Bytes:   bytesRead,
		Lineage: []string{query.Source},
	}
	if incremental && chunk.RowCount() == 0 {
		logger.Info(ctx, "Incremental load found no new rows",
			"target", target, "cursor_field", query.CursorField, "cursor", cursor)
		return out, nil
	}
	if len(chunk.Columns) == 0 {
		out.Warnings = append(out.Warnings,
			fmt.Sprintf("source %q returned no columns; table %q was not modified", query.Source, target))
		return out, nil
	}

	stage := "_stage_" + target
	if err := stageRows(ctx, ec, conn, stage, chunk, incremental); err != nil {
		return nil, &core.StepError{
			StepID: step.ID, StepType: step.Type, Err: err,
			Context: map[string]string{"target": target, "staging_table": stage},
		}
	}
	defer func() {
		if _, dropErr := ec.Engine.Execute(ctx, "DROP TABLE IF EXISTS "+stage); dropErr != nil {
			logger.Warn(ctx, "Failed to drop staging table", "table", stage, "err", dropErr)
		}
	}()

	if err := applyLoadMode(ctx, ec.Engine, target, stage, query); err != nil {
		return nil, &core.StepError{
			StepID: step.ID, StepType: step.Type,
			Err:     fmt.Errorf("%w: applying %s to %q: %v", core.ErrDatabase, query.Mode, target, err),
			Context: map[string]string{"target": target, "mode": string(query.Mode)},
		}
	}

	if incremental {
		if next := conn.CursorValue(); connector.CursorAfter(next, cursor) {
			if err := ec.Watermarks.Set(ec.Pipeline, query.Source, query.CursorField, next); err != nil {
				return nil, fmt.Errorf("%w: load %q: persisting watermark: %v",
					core.ErrStepExecution, target, err)
			}
			logger.Info(ctx, "Watermark advanced",
				"source", query.Source, "cursor_field", query.CursorField, "cursor", next)
		}
	}

	out.Rows = int64(chunk.RowCount())
	out.OutputSchema = schemaFromColumns(chunk.Columns)
	return out, nil
}

// connectorForLoad resolves the step's source definition into a
// configured connector plus the object name to read. A load whose
// source was never defined falls back to treating the source name as a
// direct CSV path.
func connectorForLoad(ec *Context, step core.PlanStep, query core.LoadQuery) (connector.Connector, string, error) {
	def, ok := ec.Source(query.Source)
	if !ok {
		def = SourceDefinition{
			Name:      query.Source,
			Connector: "csv",
			Params:    map[string]any{"path": query.Source},
		}
	}

	conn, err := ec.Connectors.New(def.Connector)
	if err != nil {
		return nil, "", fmt.Errorf("%w: load %q: %v", core.ErrConnector, step.Name, err)
	}
	params := def.Params
	if len(query.Options) > 0 {
		merged := make(map[string]any, len(params)+len(query.Options))
		for k, v := range params {
			merged[k] = v
		}
		for k, v := range query.Options {
			merged[k] = v
		}
		params = merged
	}
	if errs := conn.Configure(params); len(errs) > 0 {
		return nil, "", fmt.Errorf("%w: load %q: invalid connector parameters: %s",
			core.ErrConnector, step.Name, strings.Join(errs, "; "))
	}

	object, _ := params["object"].(string)
	if object == "" {
		object, _ = params["table"].(string)
	}
	return conn, object, nil
}

// readAll drains the connector into one chunk, retrying transient
// failures with the default backoff policy. The whole read restarts on
// retry so partially drained iterators are never stitched together.
func readAll(ctx context.Context, conn connector.Connector, object string, query core.LoadQuery, incremental bool, cursor string) (*connector.DataChunk, int64, error) {
	var combined connector.DataChunk
	var bytes int64

	op := func(ctx context.Context) error {
		combined = connector.DataChunk{}
		bytes = 0

		var it connector.ChunkIterator
		var err error
		if incremental {
			it, err = conn.ReadIncremental(ctx, object, query.CursorField, cursor,
				intOption(query.Options, "batch_size"))
		} else {
			it, err = conn.Read(ctx, object)
		}
		if err != nil {
			return err
		}
		for {
			chunk, err := it.Next(ctx)
			if err != nil {
				return err
			}
			if chunk == nil {
				return nil
			}
			if combined.Columns == nil {
				combined.Columns = chunk.Columns
			}
			combined.Rows = append(combined.Rows, chunk.Rows...)
			bytes += approxChunkBytes(chunk)
		}
	}

	err := backoff.Retry(ctx, op, backoff.DefaultPolicy(), core.IsTransient)
	if err != nil {
		return nil, 0, err
	}
	return &combined, bytes, nil
}

// stageRows materializes the chunk under the staging table. Full reads
// from file-backed connectors above the bulk threshold go through the
// engine's COPY path and fall back to row inserts when the engine does
// not support it.
func stageRows(ctx context.Context, ec *Context, conn connector.Connector, stage string, chunk *connector.DataChunk, incremental bool) error {
	if fb, ok := conn.(connector.FileBacked); ok && !incremental &&
		chunk.RowCount() >= ec.Options.BulkLoadThreshold && fb.FilePath() != "" {
		if _, err := ec.Engine.Execute(ctx, "DROP TABLE IF EXISTS "+stage); err != nil {
			return err
		}
		err := ec.Engine.CopyFromFile(ctx, stage, fb.FilePath(), nil)
		if err == nil {
			return nil
		}
		if !errors.Is(err, engine.ErrNotSupported) {
			logger.Warn(ctx, "Bulk load failed; falling back to row inserts",
				"table", stage, "err", err)
		}
	}
	return ec.Engine.RegisterRows(ctx, stage, chunk.Columns, chunk.Rows)
}

// applyLoadMode folds the staged rows into the target table.
func applyLoadMode(ctx context.Context, eng engine.SQLEngine, target, stage string, query core.LoadQuery) error {
	exists, err := eng.TableExists(ctx, target)
	if err != nil {
		return err
	}

	switch query.Mode {
	case core.LoadReplace, "":
		_, err = eng.Execute(ctx,
			fmt.Sprintf("CREATE OR REPLACE TABLE %s AS SELECT * FROM %s", target, stage))
		return err

	case core.LoadAppend:
		if !exists {
			_, err = eng.Execute(ctx,
				fmt.Sprintf("CREATE TABLE %s AS SELECT * FROM %s", target, stage))
			return err
		}
		_, err = eng.Execute(ctx,
			fmt.Sprintf("INSERT INTO %s SELECT * FROM %s", target, stage))
		return err

	case core.LoadUpsert:
		if len(query.UpsertKeys) == 0 {
			return fmt.Errorf("UPSERT mode requires upsert keys")
		}
		if !exists {
			_, err = eng.Execute(ctx,
				fmt.Sprintf("CREATE TABLE %s AS SELECT * FROM %s", target, stage))
			return err
		}
		keys := strings.Join(query.UpsertKeys, ", ")
		return eng.ExecuteBatch(ctx,
			fmt.Sprintf("DELETE FROM %s WHERE (%s) IN (SELECT %s FROM %s)", target, keys, keys, stage),
			fmt.Sprintf("INSERT INTO %s SELECT * FROM %s", target, stage),
		)

	default:
		return fmt.Errorf("unknown load mode %q", query.Mode)
	}
}

// intOption reads a numeric option that may have round-tripped through
// JSON, where numbers decode as float64.
func intOption(options map[string]any, key string) int {
	switch v := options[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}

func schemaFromColumns(columns []string) []core.ColumnSchema {
	out := make([]core.ColumnSchema, len(columns))
	for i, name := range columns {
		out[i] = core.ColumnSchema{Name: name}
	}
	return out
}

// approxChunkBytes estimates the wire size of a chunk for the
// bytes_processed metric.
func approxChunkBytes(chunk *connector.DataChunk) int64 {
	var total int64
	for _, row := range chunk.Rows {
		for _, cell := range row {
			switch v := cell.(type) {
			case nil:
			case string:
				total += int64(len(v))
			case []byte:
				total += int64(len(v))
			default:
				total += 8
			}
		}
	}
	return total
}

func suggestedForConnector(err error) []string {
	if core.IsTransient(err) {
		return []string{
			"the failure looks transient; rerun with --resume to retry from this step",
		}
	}
	return []string{
		"verify the source's connection parameters and credentials",
		"check that the remote object exists and is readable",
	}
}

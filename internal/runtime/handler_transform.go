package runtime

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/sqlflow-dev/sqlflow/internal/core"
	"github.com/sqlflow-dev/sqlflow/internal/logger"
)

var reUDFCall = regexp.MustCompile(`(?i)\bpython_func\s*\(`)

// handleTransform materializes a SQL transform into its target table.
// Plain SELECTs are wrapped in CREATE OR REPLACE TABLE; statements that
// already manage their own target run as written.
func handleTransform(ctx context.Context, ec *Context, step core.PlanStep) (*outcome, error) {
	sql, err := queryText(step.Query)
	if err != nil {
		return nil, fmt.Errorf("%w: transform %q: %v", core.ErrStepExecution, step.Name, err)
	}
	target := step.Name

	out := &outcome{Lineage: append([]string(nil), step.DependsOn...)}
	if reUDFCall.MatchString(sql) {
		out.Warnings = append(out.Warnings,
			"python_func requires an engine with UDF support; the call is passed through as written")
	}

	statement, wrapped := wrapTransform(target, sql)
	logger.Debug(ctx, "Executing transform", "table", target, "wrapped", wrapped)

	result, err := ec.Engine.Execute(ctx, statement)
	if err != nil {
		return nil, &core.StepError{
			StepID:   step.ID,
			StepType: step.Type,
			Err:      fmt.Errorf("%w: transform %q: %v", core.ErrDatabase, target, err),
			Context:  map[string]string{"table": target, "sql": truncateSQL(sql)},
			SuggestedActions: []string{
				"check the SQL against the tables produced by upstream steps",
			},
		}
	}

	if wrapped {
		out.Rows, err = countRows(ctx, ec, target)
		if err != nil {
			return nil, &core.StepError{
				StepID: step.ID, StepType: step.Type,
				Err: fmt.Errorf("%w: transform %q: %v", core.ErrDatabase, target, err),
			}
		}
		out.OutputSchema = tableSchema(ctx, ec, target)
	} else {
		out.Rows = result.RowsAffected()
	}
	return out, nil
}

// wrapTransform decides whether the SQL needs a CREATE OR REPLACE TABLE
// wrapper. DDL and DML that name their own target are left alone.
func wrapTransform(target, sql string) (string, bool) {
	upper := strings.ToUpper(strings.TrimSpace(sql))
	for _, prefix := range []string{"CREATE", "INSERT", "UPDATE", "DELETE", "DROP"} {
		if strings.HasPrefix(upper, prefix) {
			return sql, false
		}
	}
	return fmt.Sprintf("CREATE OR REPLACE TABLE %s AS %s", target, sql), true
}

func countRows(ctx context.Context, ec *Context, table string) (int64, error) {
	result, err := ec.Engine.Execute(ctx, "SELECT COUNT(*) FROM "+table)
	if err != nil {
		return 0, err
	}
	row, ok := result.FetchOne()
	if !ok || len(row) == 0 {
		return 0, nil
	}
	switch v := row[0].(type) {
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	case float64:
		return int64(v), nil
	default:
		return 0, nil
	}
}

// tableSchema probes the table's column names. Best effort; schema
// reporting never fails a step.
func tableSchema(ctx context.Context, ec *Context, table string) []core.ColumnSchema {
	result, err := ec.Engine.Execute(ctx, fmt.Sprintf("SELECT * FROM %s LIMIT 0", table))
	if err != nil {
		return nil
	}
	return result.Columns()
}

func truncateSQL(sql string) string {
	const max = 200
	sql = strings.Join(strings.Fields(sql), " ")
	if len(sql) > max {
		return sql[:max] + "..."
	}
	return sql
}

package engine

import (
	"context"
	"errors"

	"github.com/sqlflow-dev/sqlflow/internal/core"
)

// ErrNotSupported marks an optional fast path the engine does not
// implement; callers fall back to the row-based path.
var ErrNotSupported = errors.New("operation not supported by engine")

// Result is the materialized outcome of an executed statement.
type Result interface {
	// Columns describes the result schema; empty for statements.
	Columns() []core.ColumnSchema
	// FetchOne returns the next row, or false when exhausted.
	FetchOne() ([]any, bool)
	// FetchAll returns all remaining rows.
	FetchAll() [][]any
	// RowsAffected is the affected-row count for statements.
	RowsAffected() int64
}

// SQLEngine is the contract the execution core drives. Implementations
// need not be safe for concurrent use; the executor serializes access
// by default (see Serialized).
type SQLEngine interface {
	// Execute runs a single SQL statement or query.
	Execute(ctx context.Context, sql string) (Result, error)
	// ExecuteBatch runs the statements in order, transactionally when
	// the engine supports multi-statement transactions and best-effort
	// otherwise.
	ExecuteBatch(ctx context.Context, stmts ...string) error
	// TableExists reports whether a table with the given name exists.
	TableExists(ctx context.Context, name string) (bool, error)
	// RegisterRows stages in-memory rows under the given table name.
	RegisterRows(ctx context.Context, name string, columns []string, rows [][]any) error
	// CopyToFile writes a query result directly to a file. Optional.
	CopyToFile(ctx context.Context, query, path string, options map[string]any) error
	// CopyFromFile bulk-loads a file into a table. Optional.
	CopyFromFile(ctx context.Context, table, path string, options map[string]any) error
	// RegisterUDF registers a scalar function. Optional.
	RegisterUDF(name string, fn any) error
	// Close releases engine resources.
	Close() error
}

// rowsResult is the common materialized Result implementation.
type rowsResult struct {
	columns  []core.ColumnSchema
	rows     [][]any
	pos      int
	affected int64
}

func (r *rowsResult) Columns() []core.ColumnSchema { return r.columns }

func (r *rowsResult) FetchOne() ([]any, bool) {
	if r.pos >= len(r.rows) {
		return nil, false
	}
	row := r.rows[r.pos]
	r.pos++
	return row, true
}

func (r *rowsResult) FetchAll() [][]any {
	rows := r.rows[r.pos:]
	r.pos = len(r.rows)
	return rows
}

func (r *rowsResult) RowsAffected() int64 { return r.affected }

// NewResult builds a materialized result, for engines and tests.
func NewResult(columns []core.ColumnSchema, rows [][]any, affected int64) Result {
	return &rowsResult{columns: columns, rows: rows, affected: affected}
}

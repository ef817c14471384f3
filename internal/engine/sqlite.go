package engine

import (
	"context"
	"database/sql"
	"encoding/csv"
	"fmt"
	"os"
	"regexp"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/sqlflow-dev/sqlflow/internal/core"
)

// SQLiteEngine is the default SQL engine, backed by the CGO-free
// modernc.org/sqlite driver. An empty path opens an in-memory database.
type SQLiteEngine struct {
	db *sql.DB
}

var _ SQLEngine = (*SQLiteEngine)(nil)

func NewSQLite(path string) (*SQLiteEngine, error) {
	dsn := path
	if dsn == "" {
		dsn = ":memory:"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", core.ErrDatabase, dsn, err)
	}
	// The executor serializes access; a single connection keeps
	// temporary state visible across statements.
	db.SetMaxOpenConns(1)
	return &SQLiteEngine{db: db}, nil
}

var reCreateOrReplace = regexp.MustCompile(`(?is)^\s*CREATE\s+OR\s+REPLACE\s+TABLE\s+([A-Za-z_][\w]*)\s+AS\s+(.*)$`)

// normalize translates the dialect-portable statements the handlers
// emit into SQLite's vocabulary. CREATE OR REPLACE TABLE becomes a
// DROP + CREATE pair.
func (e *SQLiteEngine) normalize(stmt string) []string {
	if m := reCreateOrReplace.FindStringSubmatch(stmt); m != nil {
		return []string{
			fmt.Sprintf("DROP TABLE IF EXISTS %s", m[1]),
			fmt.Sprintf("CREATE TABLE %s AS %s", m[1], m[2]),
		}
	}
	return []string{stmt}
}

func (e *SQLiteEngine) Execute(ctx context.Context, stmt string) (Result, error) {
	stmts := e.normalize(stmt)
	if len(stmts) > 1 {
		if err := e.ExecuteBatch(ctx, stmts...); err != nil {
			return nil, err
		}
		return NewResult(nil, nil, 0), nil
	}

	if isQuery(stmt) {
		return e.query(ctx, stmts[0])
	}

	res, err := e.db.ExecContext(ctx, stmts[0])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrDatabase, err)
	}
	affected, _ := res.RowsAffected()
	return NewResult(nil, nil, affected), nil
}

func (e *SQLiteEngine) query(ctx context.Context, query string) (Result, error) {
	rows, err := e.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrDatabase, err)
	}
	defer rows.Close()

	columnNames, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrDatabase, err)
	}
	columns := make([]core.ColumnSchema, len(columnNames))
	if types, err := rows.ColumnTypes(); err == nil {
		for i, t := range types {
			columns[i] = core.ColumnSchema{Name: columnNames[i], Type: t.DatabaseTypeName()}
		}
	} else {
		for i, name := range columnNames {
			columns[i] = core.ColumnSchema{Name: name}
		}
	}

	var collected [][]any
	for rows.Next() {
		row := make([]any, len(columnNames))
		ptrs := make([]any, len(columnNames))
		for i := range row {
			ptrs[i] = &row[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("%w: %v", core.ErrDatabase, err)
		}
		collected = append(collected, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrDatabase, err)
	}
	return NewResult(columns, collected, int64(len(collected))), nil
}

// ExecuteBatch runs the statements inside a single transaction.
func (e *SQLiteEngine) ExecuteBatch(ctx context.Context, stmts ...string) error {
	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin: %v", core.ErrDatabase, err)
	}
	for _, stmt := range stmts {
		for _, normalized := range e.normalize(stmt) {
			if _, err := tx.ExecContext(ctx, normalized); err != nil {
				_ = tx.Rollback()
				return fmt.Errorf("%w: %v", core.ErrDatabase, err)
			}
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %v", core.ErrDatabase, err)
	}
	return nil
}

func (e *SQLiteEngine) TableExists(ctx context.Context, name string) (bool, error) {
	row := e.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sqlite_master WHERE type IN ('table', 'view') AND lower(name) = lower(?)`, name)
	var count int
	if err := row.Scan(&count); err != nil {
		return false, fmt.Errorf("%w: %v", core.ErrDatabase, err)
	}
	return count > 0, nil
}

func (e *SQLiteEngine) RegisterRows(ctx context.Context, name string, columns []string, rows [][]any) error {
	if len(columns) == 0 {
		return fmt.Errorf("%w: register %s: no columns", core.ErrDatabase, name)
	}

	defs := make([]string, len(columns))
	for i, col := range columns {
		defs[i] = fmt.Sprintf("%q %s", col, columnAffinity(rows, i))
	}
	stmts := []string{
		fmt.Sprintf("DROP TABLE IF EXISTS %q", name),
		fmt.Sprintf("CREATE TABLE %q (%s)", name, strings.Join(defs, ", ")),
	}
	if err := e.ExecuteBatch(ctx, stmts...); err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(columns)), ",")
	insert := fmt.Sprintf("INSERT INTO %q VALUES (%s)", name, placeholders)

	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin: %v", core.ErrDatabase, err)
	}
	stmt, err := tx.PrepareContext(ctx, insert)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("%w: %v", core.ErrDatabase, err)
	}
	for _, row := range rows {
		if _, err := stmt.ExecContext(ctx, row...); err != nil {
			_ = stmt.Close()
			_ = tx.Rollback()
			return fmt.Errorf("%w: %v", core.ErrDatabase, err)
		}
	}
	_ = stmt.Close()
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %v", core.ErrDatabase, err)
	}
	return nil
}

// CopyToFile writes a query result to a CSV file with a header row.
func (e *SQLiteEngine) CopyToFile(ctx context.Context, query, path string, _ map[string]any) error {
	result, err := e.Execute(ctx, query)
	if err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("copy to %s: %w", path, err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	columns := result.Columns()
	header := make([]string, len(columns))
	for i, col := range columns {
		header[i] = col.Name
	}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("copy to %s: %w", path, err)
	}
	for _, row := range result.FetchAll() {
		record := make([]string, len(row))
		for i, cell := range row {
			record[i] = formatCell(cell)
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("copy to %s: %w", path, err)
		}
	}
	writer.Flush()
	return writer.Error()
}

// CopyFromFile bulk-loads a CSV file (header row expected) into a table.
func (e *SQLiteEngine) CopyFromFile(ctx context.Context, table, path string, _ map[string]any) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("copy from %s: %w", path, err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	records, err := reader.ReadAll()
	if err != nil {
		return fmt.Errorf("copy from %s: %w", path, err)
	}
	if len(records) == 0 {
		return fmt.Errorf("copy from %s: empty file", path)
	}

	columns := records[0]
	rows := make([][]any, 0, len(records)-1)
	for _, record := range records[1:] {
		row := make([]any, len(record))
		for i, cell := range record {
			row[i] = cell
		}
		rows = append(rows, row)
	}
	return e.RegisterRows(ctx, table, columns, rows)
}

// RegisterUDF is not supported by the SQLite engine; transforms using
// table UDFs fall back to pre-materialized inputs.
func (e *SQLiteEngine) RegisterUDF(string, any) error {
	return ErrNotSupported
}

func (e *SQLiteEngine) Close() error {
	return e.db.Close()
}

func isQuery(stmt string) bool {
	head := strings.ToUpper(strings.TrimSpace(stmt))
	return strings.HasPrefix(head, "SELECT") || strings.HasPrefix(head, "WITH") ||
		strings.HasPrefix(head, "PRAGMA")
}

func columnAffinity(rows [][]any, col int) string {
	for _, row := range rows {
		if col >= len(row) || row[col] == nil {
			continue
		}
		switch row[col].(type) {
		case int, int32, int64:
			return "INTEGER"
		case float32, float64:
			return "REAL"
		case bool:
			return "INTEGER"
		default:
			return "TEXT"
		}
	}
	return "TEXT"
}

func formatCell(cell any) string {
	if cell == nil {
		return ""
	}
	switch v := cell.(type) {
	case []byte:
		return string(v)
	case string:
		return v
	default:
		return fmt.Sprintf("%v", v)
	}
}

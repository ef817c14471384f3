package runtime

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/sqlflow-dev/sqlflow/internal/connector"
	"github.com/sqlflow-dev/sqlflow/internal/core"
	"github.com/sqlflow-dev/sqlflow/internal/engine"
)

// memTable is one table held by the in-memory test engine.
type memTable struct {
	columns []string
	rows    [][]any
}

// memEngine is a minimal in-memory SQLEngine understanding exactly the
// statement shapes the executor emits. Failures can be injected per
// table name.
type memEngine struct {
	mu      sync.Mutex
	tables  map[string]*memTable
	batches [][]string
	stmts   []string
	failOn  map[string]error
}

var _ engine.SQLEngine = (*memEngine)(nil)

func newMemEngine() *memEngine {
	return &memEngine{
		tables: make(map[string]*memTable),
		failOn: make(map[string]error),
	}
}

var (
	reCreateAs = regexp.MustCompile(`(?i)^CREATE (?:OR REPLACE )?TABLE (\w+) AS SELECT \* FROM (\w+)$`)
	reInsertAs = regexp.MustCompile(`(?i)^INSERT INTO (\w+) SELECT \* FROM (\w+)$`)
	reSelAll   = regexp.MustCompile(`(?i)^SELECT \* FROM (\w+)(?: LIMIT 0)?$`)
	reSelCount = regexp.MustCompile(`(?i)^SELECT COUNT\(\*\) FROM (\w+)$`)
	reDropTbl  = regexp.MustCompile(`(?i)^DROP TABLE IF EXISTS (\w+)$`)
	reDeleteIn = regexp.MustCompile(`(?i)^DELETE FROM (\w+) WHERE .+ IN \(SELECT .+ FROM (\w+)\)$`)
)

func (e *memEngine) exec(stmt string) (engine.Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	stmt = strings.TrimSpace(stmt)
	e.stmts = append(e.stmts, stmt)

	switch {
	case reCreateAs.MatchString(stmt):
		m := reCreateAs.FindStringSubmatch(stmt)
		if err := e.failure(m[1]); err != nil {
			return nil, err
		}
		src, ok := e.tables[m[2]]
		if !ok {
			return nil, fmt.Errorf("no such table: %s", m[2])
		}
		e.tables[m[1]] = &memTable{columns: src.columns, rows: append([][]any{}, src.rows...)}
		return engine.NewResult(nil, nil, int64(len(src.rows))), nil

	case reInsertAs.MatchString(stmt):
		m := reInsertAs.FindStringSubmatch(stmt)
		dst, src := e.tables[m[1]], e.tables[m[2]]
		if dst == nil || src == nil {
			return nil, fmt.Errorf("no such table")
		}
		dst.rows = append(dst.rows, src.rows...)
		return engine.NewResult(nil, nil, int64(len(src.rows))), nil

	case reSelCount.MatchString(stmt):
		m := reSelCount.FindStringSubmatch(stmt)
		tbl, ok := e.tables[m[1]]
		if !ok {
			return nil, fmt.Errorf("no such table: %s", m[1])
		}
		return engine.NewResult(
			[]core.ColumnSchema{{Name: "count"}},
			[][]any{{int64(len(tbl.rows))}}, 0), nil

	case reSelAll.MatchString(stmt):
		m := reSelAll.FindStringSubmatch(stmt)
		tbl, ok := e.tables[m[1]]
		if !ok {
			return nil, fmt.Errorf("no such table: %s", m[1])
		}
		if err := e.failure(m[1]); err != nil {
			return nil, err
		}
		schema := make([]core.ColumnSchema, len(tbl.columns))
		for i, col := range tbl.columns {
			schema[i] = core.ColumnSchema{Name: col}
		}
		return engine.NewResult(schema, append([][]any{}, tbl.rows...), 0), nil

	case reDropTbl.MatchString(stmt):
		m := reDropTbl.FindStringSubmatch(stmt)
		delete(e.tables, m[1])
		return engine.NewResult(nil, nil, 0), nil

	case reDeleteIn.MatchString(stmt):
		// Row-level semantics are covered by the SQLite engine tests;
		// here it is enough that the statement was issued.
		return engine.NewResult(nil, nil, 0), nil

	default:
		return nil, fmt.Errorf("memEngine cannot parse %q", stmt)
	}
}

func (e *memEngine) failure(table string) error {
	if err, ok := e.failOn[table]; ok {
		return err
	}
	return nil
}

func (e *memEngine) Execute(_ context.Context, stmt string) (engine.Result, error) {
	return e.exec(stmt)
}

func (e *memEngine) ExecuteBatch(_ context.Context, stmts ...string) error {
	e.mu.Lock()
	e.batches = append(e.batches, stmts)
	e.mu.Unlock()
	for _, stmt := range stmts {
		if _, err := e.exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

func (e *memEngine) TableExists(_ context.Context, name string) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.tables[name]
	return ok, nil
}

func (e *memEngine) RegisterRows(_ context.Context, name string, columns []string, rows [][]any) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.failure(name); err != nil {
		return err
	}
	e.tables[name] = &memTable{columns: columns, rows: rows}
	return nil
}

func (e *memEngine) CopyToFile(context.Context, string, string, map[string]any) error {
	return engine.ErrNotSupported
}

func (e *memEngine) CopyFromFile(context.Context, string, string, map[string]any) error {
	return engine.ErrNotSupported
}

func (e *memEngine) RegisterUDF(string, any) error { return engine.ErrNotSupported }

func (e *memEngine) Close() error { return nil }

func (e *memEngine) table(name string) *memTable {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tables[name]
}

// memConnector serves a fixed chunk and can fail a configurable number
// of reads first, for retry tests. Incremental reads record their
// arguments and advance the cursor to nextCursor on success.
type memConnector struct {
	chunk       *connector.DataChunk
	failReads   int
	transient   bool
	incremental bool
	cursor      string
	nextCursor  string
	reads       int
	cursorArg   string
	batchArg    int
}

var _ connector.Connector = (*memConnector)(nil)

func (c *memConnector) Kind() string                      { return "mem" }
func (c *memConnector) Configure(map[string]any) []string { return nil }
func (c *memConnector) SupportsIncremental() bool         { return c.incremental }
func (c *memConnector) CursorValue() string               { return c.cursor }

func (c *memConnector) Read(ctx context.Context, _ string) (connector.ChunkIterator, error) {
	c.reads++
	if c.failReads > 0 {
		c.failReads--
		return nil, &core.ConnectorError{
			Connector: "mem", Op: "read",
			Err:       fmt.Errorf("injected failure"),
			Transient: c.transient,
		}
	}
	return newSliceIteratorForTest(c.chunk), nil
}

func (c *memConnector) ReadIncremental(ctx context.Context, object, _, cursorValue string, batchSize int) (connector.ChunkIterator, error) {
	c.cursorArg = cursorValue
	c.batchArg = batchSize
	it, err := c.Read(ctx, object)
	if err == nil && c.nextCursor != "" {
		c.cursor = c.nextCursor
	}
	return it, err
}

// newSliceIteratorForTest mirrors the connector package's slice
// iterator without reaching into its internals.
type testIterator struct {
	chunk *connector.DataChunk
	done  bool
}

func newSliceIteratorForTest(chunk *connector.DataChunk) connector.ChunkIterator {
	return &testIterator{chunk: chunk}
}

func (it *testIterator) Next(ctx context.Context) (*connector.DataChunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if it.done {
		return nil, nil
	}
	it.done = true
	return it.chunk, nil
}

// testRegistry returns a registry with csv plus the given mem factory.
func testRegistry(conn *memConnector) *connector.Registry {
	r := connector.NewRegistry()
	r.Register("csv", func() connector.Connector { return connector.NewCSV() })
	r.Register("mem", func() connector.Connector { return conn })
	return r
}

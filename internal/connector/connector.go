package connector

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
)

// DataChunk is one batch of rows moved between a connector and the
// engine. Rows are row-oriented; Columns gives the column order.
type DataChunk struct {
	Columns []string
	Rows    [][]any
}

// RowCount returns the number of rows in the chunk.
func (c *DataChunk) RowCount() int {
	if c == nil {
		return 0
	}
	return len(c.Rows)
}

// ChunkIterator yields chunks until exhausted. Next returns nil with a
// nil error when the stream ends.
type ChunkIterator interface {
	Next(ctx context.Context) (*DataChunk, error)
}

// Connector is the narrow contract the execution core reads data
// through. Instances are not shared across steps; the registry creates
// one per step.
type Connector interface {
	// Kind returns the connector kind, e.g. "csv" or "postgres".
	Kind() string
	// Configure validates and stores the parameters. The returned slice
	// lists validation errors and is empty on success.
	Configure(params map[string]any) []string
	// SupportsIncremental reports whether ReadIncremental is available.
	SupportsIncremental() bool
	// Read performs a full-scan read of the named object.
	Read(ctx context.Context, object string) (ChunkIterator, error)
	// ReadIncremental reads rows whose cursorField exceeds cursorValue.
	// Only valid when SupportsIncremental is true.
	ReadIncremental(ctx context.Context, object, cursorField, cursorValue string, batchSize int) (ChunkIterator, error)
	// CursorValue returns the maximum cursor seen in the last read, or
	// empty when no cursor was tracked.
	CursorValue() string
}

// Writer is implemented by connectors that can export data.
type Writer interface {
	Write(ctx context.Context, destination string, chunk *DataChunk, options map[string]any) error
}

// FileBacked is implemented by connectors whose staged data lives in a
// local file, enabling the engine's bulk COPY fast path.
type FileBacked interface {
	FilePath() string
}

// CursorAfter reports whether candidate is a later cursor position than
// current. When both values parse as numbers the comparison is numeric,
// so integer cursors advance across digit-length boundaries ("100"
// follows "99"); otherwise it is a plain string comparison, which
// orders the watermark timestamp format correctly.
func CursorAfter(candidate, current string) bool {
	if candidate == "" {
		return false
	}
	if current == "" {
		return true
	}
	cf, errC := strconv.ParseFloat(candidate, 64)
	pf, errP := strconv.ParseFloat(current, 64)
	if errC == nil && errP == nil {
		return cf > pf
	}
	return candidate > current
}

// Factory creates a fresh connector instance.
type Factory func() Connector

// Registry maps connector kinds to factories. Lookup is read-only
// during a run.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// DefaultRegistry returns a registry with every built-in connector.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register("csv", func() Connector { return NewCSV() })
	// "file" is an alias kept for pipelines that name the kind by where
	// the data lands rather than its format.
	r.Register("file", func() Connector { return NewCSV() })
	r.Register("postgres", func() Connector { return NewPostgres() })
	r.Register("s3", func() Connector { return NewS3() })
	r.Register("rest", func() Connector { return NewREST() })
	return r
}

func (r *Registry) Register(kind string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[kind] = factory
}

// New creates a connector of the given kind.
func (r *Registry) New(kind string) (Connector, error) {
	r.mu.RLock()
	factory, ok := r.factories[kind]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown connector kind %q (known: %v)", kind, r.Kinds())
	}
	return factory(), nil
}

// Kinds lists the registered connector kinds, sorted.
func (r *Registry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kinds := make([]string, 0, len(r.factories))
	for kind := range r.factories {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)
	return kinds
}

// sliceIterator yields pre-built chunks.
type sliceIterator struct {
	chunks []*DataChunk
	pos    int
}

func newSliceIterator(chunks ...*DataChunk) *sliceIterator {
	return &sliceIterator{chunks: chunks}
}

func (it *sliceIterator) Next(ctx context.Context) (*DataChunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if it.pos >= len(it.chunks) {
		return nil, nil
	}
	chunk := it.chunks[it.pos]
	it.pos++
	return chunk, nil
}

package runtime

import (
	stdruntime "runtime"
	"sync"
	"time"

	"github.com/sqlflow-dev/sqlflow/internal/connector"
	"github.com/sqlflow-dev/sqlflow/internal/engine"
	"github.com/sqlflow-dev/sqlflow/internal/metrics"
	"github.com/sqlflow-dev/sqlflow/internal/vars"
)

// Options configures one run of the executor.
type Options struct {
	// Workers bounds concurrent step handlers. Defaults to the logical
	// CPU count; set 1 for deterministic ordering in tests.
	Workers int
	// FailFast stops dispatching new steps after the first failure.
	// When false, steps whose dependencies still succeed keep running.
	FailFast bool
	// StepTimeout cancels an individual step that exceeds it. Zero
	// disables per-step timeouts.
	StepTimeout time.Duration
	// RunTimeout bounds the whole run. Zero disables it.
	RunTimeout time.Duration
	// StateDir is where run records and watermarks are persisted.
	StateDir string
	// BulkLoadThreshold is the staged row count above which file-backed
	// loads prefer the engine's COPY fast path.
	BulkLoadThreshold int
	// SerializeEngine wraps the SQL engine so all statements execute
	// one at a time. On by default; disable only for engines that are
	// safe for concurrent queries.
	SerializeEngine bool
}

// DefaultOptions returns the executor defaults.
func DefaultOptions() Options {
	return Options{
		Workers:           stdruntime.NumCPU(),
		FailFast:          true,
		StateDir:          ".sqlflow",
		BulkLoadThreshold: 100,
		SerializeEngine:   true,
	}
}

func (o Options) withDefaults() Options {
	if o.Workers <= 0 {
		o.Workers = stdruntime.NumCPU()
	}
	if o.BulkLoadThreshold <= 0 {
		o.BulkLoadThreshold = 100
	}
	if o.StateDir == "" {
		o.StateDir = ".sqlflow"
	}
	return o
}

// SourceDefinition is the normalized form a source_definition step
// stores for downstream loads.
type SourceDefinition struct {
	Name      string
	Connector string
	Params    map[string]any
}

// Context is the per-run execution context handed to step handlers.
// Everything in it is either immutable for the duration of the run or
// safe for concurrent use; the sources map is the one exception and is
// guarded by its own lock.
type Context struct {
	RunID    string
	Pipeline string

	Vars       *vars.Store
	Engine     engine.SQLEngine
	Connectors *connector.Registry
	Metrics    *metrics.Registry
	Alerter    *metrics.Alerter
	Watermarks *WatermarkStore

	Options Options

	mu      sync.RWMutex
	sources map[string]SourceDefinition
}

// StoreSource records a normalized source definition. Storing always
// succeeds even when the remote is unreachable: a definition is not
// data.
func (c *Context) StoreSource(def SourceDefinition) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sources == nil {
		c.sources = make(map[string]SourceDefinition)
	}
	c.sources[def.Name] = def
}

// Source resolves a stored source definition by name.
func (c *Context) Source(name string) (SourceDefinition, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	def, ok := c.sources[name]
	return def, ok
}

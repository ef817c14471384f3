package metrics

import (
	"sync"
	"time"
)

// KindStats aggregates observations for one plan-step kind.
type KindStats struct {
	Calls         int64         `json:"calls"`
	Failures      int64         `json:"failures"`
	TotalDuration time.Duration `json:"total_duration"`
	TotalRows     int64         `json:"total_rows"`
}

// SuccessRate returns the fraction of calls that succeeded.
func (s KindStats) SuccessRate() float64 {
	if s.Calls == 0 {
		return 0
	}
	return float64(s.Calls-s.Failures) / float64(s.Calls)
}

// AvgDuration returns the mean step duration.
func (s KindStats) AvgDuration() time.Duration {
	if s.Calls == 0 {
		return 0
	}
	return s.TotalDuration / time.Duration(s.Calls)
}

// Throughput returns rows per second across all observations.
func (s KindStats) Throughput() float64 {
	seconds := s.TotalDuration.Seconds()
	if seconds == 0 {
		return 0
	}
	return float64(s.TotalRows) / seconds
}

// Registry aggregates per-step-kind execution metrics. It is allocated
// per run and carried in the execution context; all mutation is
// serialized by its lock.
type Registry struct {
	mu    sync.Mutex
	kinds map[string]*KindStats
}

func NewRegistry() *Registry {
	return &Registry{kinds: make(map[string]*KindStats)}
}

// Observe records one completed step execution.
func (r *Registry) Observe(kind string, duration time.Duration, rows int64, failed bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stats, ok := r.kinds[kind]
	if !ok {
		stats = &KindStats{}
		r.kinds[kind] = stats
	}
	stats.Calls++
	stats.TotalDuration += duration
	stats.TotalRows += rows
	if failed {
		stats.Failures++
	}
}

// Stats returns a copy of the aggregates for one kind.
func (r *Registry) Stats(kind string) KindStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	if stats, ok := r.kinds[kind]; ok {
		return *stats
	}
	return KindStats{}
}

// Snapshot returns a copy of every kind's aggregates.
func (r *Registry) Snapshot() map[string]KindStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]KindStats, len(r.kinds))
	for kind, stats := range r.kinds {
		out[kind] = *stats
	}
	return out
}

// Totals collapses all kinds into overall call and failure counts.
func (r *Registry) Totals() (calls, failures int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, stats := range r.kinds {
		calls += stats.Calls
		failures += stats.Failures
	}
	return calls, failures
}

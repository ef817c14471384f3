package engine

import (
	"context"
	"sync"
)

// Serialized wraps an engine so that all calls are executed one at a
// time. It is the default way the executor shares an engine across
// concurrent step handlers; engines known to be safe for concurrent
// queries can be used unwrapped.
type Serialized struct {
	mu    sync.Mutex
	inner SQLEngine
}

var _ SQLEngine = (*Serialized)(nil)

func Serialize(inner SQLEngine) *Serialized {
	if s, ok := inner.(*Serialized); ok {
		return s
	}
	return &Serialized{inner: inner}
}

func (s *Serialized) Execute(ctx context.Context, sql string) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inner.Execute(ctx, sql)
}

func (s *Serialized) ExecuteBatch(ctx context.Context, stmts ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inner.ExecuteBatch(ctx, stmts...)
}

func (s *Serialized) TableExists(ctx context.Context, name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inner.TableExists(ctx, name)
}

func (s *Serialized) RegisterRows(ctx context.Context, name string, columns []string, rows [][]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inner.RegisterRows(ctx, name, columns, rows)
}

func (s *Serialized) CopyToFile(ctx context.Context, query, path string, options map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inner.CopyToFile(ctx, query, path, options)
}

func (s *Serialized) CopyFromFile(ctx context.Context, table, path string, options map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inner.CopyFromFile(ctx, table, path, options)
}

func (s *Serialized) RegisterUDF(name string, fn any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inner.RegisterUDF(name, fn)
}

func (s *Serialized) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inner.Close()
}

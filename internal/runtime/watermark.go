package runtime

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// WatermarkStore persists incremental-load cursors in a single JSON
// file under the state directory. Keys combine pipeline, source and
// cursor field so two pipelines reading the same source never clobber
// each other's progress. Writes go through a temp file and rename so a
// crash mid-write cannot corrupt existing watermarks.
type WatermarkStore struct {
	path string

	mu     sync.Mutex
	loaded bool
	marks  map[string]string
}

func NewWatermarkStore(stateDir string) *WatermarkStore {
	return &WatermarkStore{path: filepath.Join(stateDir, "watermarks.json")}
}

func watermarkKey(pipeline, source, cursorField string) string {
	return fmt.Sprintf("%s/%s/%s", pipeline, source, cursorField)
}

func (w *WatermarkStore) load() error {
	if w.loaded {
		return nil
	}
	w.marks = make(map[string]string)
	w.loaded = true

	data, err := os.ReadFile(w.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	return json.Unmarshal(data, &w.marks)
}

// Get returns the stored cursor value, or "" when none exists.
func (w *WatermarkStore) Get(pipeline, source, cursorField string) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.load(); err != nil {
		return "", err
	}
	return w.marks[watermarkKey(pipeline, source, cursorField)], nil
}

// Set records a new cursor value and flushes the file. Callers must
// only invoke this after the load that produced the cursor has fully
// succeeded.
func (w *WatermarkStore) Set(pipeline, source, cursorField, value string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.load(); err != nil {
		return err
	}
	w.marks[watermarkKey(pipeline, source, cursorField)] = value
	return w.flush()
}

func (w *WatermarkStore) flush() error {
	if err := os.MkdirAll(filepath.Dir(w.path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(w.marks, "", "  ")
	if err != nil {
		return err
	}
	tmp := w.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, w.path)
}

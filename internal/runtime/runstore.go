package runtime

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/sqlflow-dev/sqlflow/internal/core"
)

// RunDocument is everything persisted for one run: the plan that was
// executed plus the per-step outcome. Resume rebuilds its graph from
// this document alone, so a resume can happen from a different process
// than the original run.
type RunDocument struct {
	Record core.RunRecord            `json:"record"`
	Plan   *core.ExecutionPlan       `json:"plan"`
	States map[string]core.TaskState `json:"step_states"`
}

// RunStore persists run documents as one JSON file per run id under
// <state_dir>/runs.
type RunStore struct {
	dir string
}

func NewRunStore(stateDir string) *RunStore {
	return &RunStore{dir: filepath.Join(stateDir, "runs")}
}

func (s *RunStore) path(runID string) string {
	return filepath.Join(s.dir, runID+".json")
}

// Save writes the document, replacing any previous version atomically.
func (s *RunStore) Save(doc *RunDocument) error {
	if doc.Record.RunID == "" {
		return fmt.Errorf("run record has no run id")
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.path(doc.Record.RunID) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path(doc.Record.RunID))
}

// Load reads one run document by id.
func (s *RunStore) Load(runID string) (*RunDocument, error) {
	data, err := os.ReadFile(s.path(runID))
	if err != nil {
		return nil, fmt.Errorf("run %q: %w", runID, err)
	}
	var doc RunDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("run %q: %w", runID, err)
	}
	return &doc, nil
}

// Latest returns the most recently started run, or an error when the
// store is empty.
func (s *RunStore) Latest() (*RunDocument, error) {
	ids, err := s.List()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("no recorded runs under %s", s.dir)
	}

	var latest *RunDocument
	for _, id := range ids {
		doc, err := s.Load(id)
		if err != nil {
			continue
		}
		if latest == nil || doc.Record.StartTime.After(latest.Record.StartTime) {
			latest = doc
		}
	}
	if latest == nil {
		return nil, fmt.Errorf("no readable runs under %s", s.dir)
	}
	return latest, nil
}

// List returns every stored run id, sorted for stable output.
func (s *RunStore) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, ".json"))
	}
	sort.Strings(ids)
	return ids, nil
}

// Prune deletes run documents older than the retention window and
// returns how many were removed.
func (s *RunStore) Prune(retention time.Duration) (int, error) {
	ids, err := s.List()
	if err != nil {
		return 0, err
	}
	cutoff := time.Now().Add(-retention)
	removed := 0
	for _, id := range ids {
		doc, err := s.Load(id)
		if err != nil {
			continue
		}
		if doc.Record.StartTime.Before(cutoff) {
			if err := os.Remove(s.path(id)); err == nil {
				removed++
			}
		}
	}
	return removed, nil
}

package planner

import (
	"fmt"
	"sort"
	"strings"

	"github.com/sqlflow-dev/sqlflow/internal/core"
)

// detectCycles runs a DFS over the dependency graph and raises a
// planning error enumerating every cycle in human-readable form, e.g.
// "Cycle 1: CREATE TABLE a → CREATE TABLE b → CREATE TABLE a".
func detectCycles(entries []*planEntry) error {
	byID := make(map[string]*planEntry, len(entries))
	for _, entry := range entries {
		byID[entry.id] = entry
	}

	const (
		white = 0 // unvisited
		gray  = 1 // on the current DFS path
		black = 2 // fully explored
	)
	color := make(map[string]int, len(entries))
	var path []string
	var cycles [][]string

	var visit func(id string)
	visit = func(id string) {
		color[id] = gray
		path = append(path, id)

		for _, dep := range byID[id].deps {
			switch color[dep] {
			case white:
				visit(dep)
			case gray:
				// Back edge: the cycle is the path segment from dep to
				// the current node, plus the edge back to dep.
				for i, onPath := range path {
					if onPath == dep {
						cycle := append([]string{}, path[i:]...)
						cycle = append(cycle, dep)
						cycles = append(cycles, cycle)
						break
					}
				}
			}
		}

		path = path[:len(path)-1]
		color[id] = black
	}

	for _, entry := range entries {
		if color[entry.id] == white {
			visit(entry.id)
		}
	}

	if len(cycles) == 0 {
		return nil
	}

	problems := make([]string, len(cycles))
	for i, cycle := range cycles {
		names := make([]string, len(cycle))
		for j, id := range cycle {
			step := byID[id].step
			names[j] = step.String()
		}
		problems[i] = fmt.Sprintf("Cycle %d: %s", i+1, strings.Join(names, " → "))
	}
	return core.NewPlanningError(problems...)
}

// topoSort emits entries in dependency order via Kahn's algorithm,
// breaking ties by original pipeline position so plans are
// deterministic. Callers must have run detectCycles first; every entry
// appears exactly once in the result.
func topoSort(entries []*planEntry) []*planEntry {
	byID := make(map[string]*planEntry, len(entries))
	indegree := make(map[string]int, len(entries))
	dependents := make(map[string][]*planEntry)

	for _, entry := range entries {
		byID[entry.id] = entry
		indegree[entry.id] = len(entry.deps)
	}
	for _, entry := range entries {
		for _, dep := range entry.deps {
			dependents[dep] = append(dependents[dep], entry)
		}
	}

	var ready []*planEntry
	for _, entry := range entries {
		if indegree[entry.id] == 0 {
			ready = append(ready, entry)
		}
	}
	sortByIndex(ready)

	ordered := make([]*planEntry, 0, len(entries))
	for len(ready) > 0 {
		next := ready[0]
		ready = ready[1:]
		ordered = append(ordered, next)

		for _, dependent := range dependents[next.id] {
			indegree[dependent.id]--
			if indegree[dependent.id] == 0 {
				ready = append(ready, dependent)
			}
		}
		sortByIndex(ready)
	}
	return ordered
}

func sortByIndex(entries []*planEntry) {
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].index < entries[j].index
	})
}

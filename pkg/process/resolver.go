// Package process builds and executes process trees: dependency
// resolution into parallel waves, wave-by-wave execution with bounded
// concurrency, per-step timeout and retry, and progress event emission.
package process

import (
	"sort"

	"github.com/amtlich/amtlich/pkg/faults"
	"github.com/amtlich/amtlich/pkg/models"
)

// Plan resolves a tree's dependency graph into execution waves. Every
// step in wave n depends only on steps in earlier waves; steps within a
// wave are independent and sorted by id for deterministic scheduling.
// A dependency cycle fails the whole plan before any step runs.
func Plan(tree *models.ProcessTree) ([][]string, error) {
	if err := tree.Validate(); err != nil {
		return nil, faults.Wrap(faults.KindValidation, err, "invalid process tree")
	}
	if err := detectCycle(tree); err != nil {
		return nil, err
	}
	return waves(tree), nil
}

// detectCycle runs a three-colour depth-first search and reports the
// first cycle found with its member steps.
func detectCycle(tree *models.ProcessTree) error {
	const (
		white = 0 // unvisited
		grey  = 1 // on the current path
		black = 2 // finished
	)
	colour := make(map[string]int, len(tree.Steps))
	var path []string

	var visit func(id string) []string
	visit = func(id string) []string {
		colour[id] = grey
		path = append(path, id)
		for _, dep := range tree.Steps[id].DependsOn {
			switch colour[dep] {
			case grey:
				// Cut the path down to the cycle members.
				for i, p := range path {
					if p == dep {
						return append(append([]string(nil), path[i:]...), dep)
					}
				}
				return []string{dep, id, dep}
			case white:
				if cycle := visit(dep); cycle != nil {
					return cycle
				}
			}
		}
		colour[id] = black
		path = path[:len(path)-1]
		return nil
	}

	ids := sortedIDs(tree)
	for _, id := range ids {
		if colour[id] == white {
			path = path[:0]
			if cycle := visit(id); cycle != nil {
				return faults.New(faults.KindCycleDetected,
					"dependency cycle: %v", cycle)
			}
		}
	}
	return nil
}

// waves performs Kahn-style level assignment: a step's wave is one past
// the deepest wave among its dependencies.
func waves(tree *models.ProcessTree) [][]string {
	level := make(map[string]int, len(tree.Steps))

	var depth func(id string) int
	depth = func(id string) int {
		if l, ok := level[id]; ok {
			return l
		}
		max := 0
		for _, dep := range tree.Steps[id].DependsOn {
			if d := depth(dep) + 1; d > max {
				max = d
			}
		}
		level[id] = max
		return max
	}

	deepest := 0
	for _, id := range sortedIDs(tree) {
		if d := depth(id); d > deepest {
			deepest = d
		}
	}

	out := make([][]string, deepest+1)
	for _, id := range sortedIDs(tree) {
		out[level[id]] = append(out[level[id]], id)
	}
	return out
}

func sortedIDs(tree *models.ProcessTree) []string {
	ids := make([]string, 0, len(tree.Steps))
	for id := range tree.Steps {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

package migration

import "sort"

// OrderSheetsByDependency returns sheet names ordered so that every
// sheet appears after the sheets it depends on (via Linked columns),
// a depth-first topological sort with a visited set. Missing
// dependencies (sheets not present in the batch) are ignored; cycles
// are tolerated — a cyclic sheet simply appears at the point its
// first unvisited predecessor was reached.
//
// Unlike the original HashMap-driven walk, the outer loop and each
// dependency list are visited in lexically sorted order, so the
// returned order is deterministic and reproducible across runs.
func OrderSheetsByDependency(sheets map[string]*SheetPair) []string {
	names := make([]string, 0, len(sheets))
	for name := range sheets {
		names = append(names, name)
	}
	sort.Strings(names)

	var ordered []string
	visited := map[string]bool{}

	var visit func(name string)
	visit = func(name string) {
		if visited[name] {
			return
		}
		visited[name] = true

		pair, ok := sheets[name]
		if ok {
			deps := append([]string(nil), pair.Dependencies...)
			sort.Strings(deps)
			for _, dep := range deps {
				if _, exists := sheets[dep]; exists {
					visit(dep)
				}
			}
		}
		ordered = append(ordered, name)
	}

	for _, name := range names {
		visit(name)
	}
	return ordered
}

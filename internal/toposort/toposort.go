// Package toposort implements a deterministic depth-first topological sort,
// used by CREATE-SCHEMA(s) to order one class's initial-rows factories by
// their declared dependencies (spec.md §4.1 step 6); it does not order rows
// across classes.
package toposort

import "fmt"

// Sort returns nodes ordered so that every node appears after all of its
// dependencies (edges[node]). Ties are broken by input order, so the result
// is deterministic given a deterministic input slice.
func Sort(nodes []string, edges map[string][]string) ([]string, error) {
	const (
		white = iota
		gray
		black
	)
	color := make(map[string]int, len(nodes))
	for _, n := range nodes {
		color[n] = white
	}
	var order []string
	var visit func(n string, path []string) error
	visit = func(n string, path []string) error {
		switch color[n] {
		case black:
			return nil
		case gray:
			return fmt.Errorf("toposort: cycle detected at %q (path: %v)", n, append(path, n))
		}
		color[n] = gray
		for _, dep := range edges[n] {
			if err := visit(dep, append(path, n)); err != nil {
				return err
			}
		}
		color[n] = black
		order = append(order, n)
		return nil
	}
	for _, n := range nodes {
		if err := visit(n, nil); err != nil {
			return nil, err
		}
	}
	return order, nil
}

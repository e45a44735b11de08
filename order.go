package main

import (
	"errors"
	"fmt"

	"github.com/dominikbraun/graph"
)

// importOrder computes the table processing order. An explicit order is
// honored verbatim for the tables it ranks; tables it does not mention are
// appended in schema order. Without one, tables are topologically sorted over
// the foreign-key graph so that referenced tables come first, ties broken by
// schema order. Cycles degrade to schema order for the tables involved, with
// a warning: their constraints cannot be fully respected during import.
//
// The clear order is the exact reverse of the returned sequence.
func importOrder(schema *Schema, explicit []string) (order []string, warnings []string) {
	names := schema.TableNames()

	if len(explicit) > 0 {
		present := make(map[string]bool, len(names))
		for _, n := range names {
			present[n] = true
		}
		ranked := make(map[string]bool, len(explicit))
		for _, n := range explicit {
			if present[n] && !ranked[n] {
				order = append(order, n)
				ranked[n] = true
			}
		}
		for _, n := range names {
			if !ranked[n] {
				order = append(order, n)
			}
		}
		return order, nil
	}

	pos := make(map[string]int, len(names))
	for i, n := range names {
		pos[n] = i
	}

	g := graph.New(graph.StringHash, graph.Directed(), graph.PreventCycles())
	for _, n := range names {
		_ = g.AddVertex(n)
	}
	for _, t := range schema.Tables {
		for _, fk := range t.ForeignKeys {
			if fk.RefTable == t.Name {
				continue // self-reference, no ordering constraint
			}
			if _, ok := pos[fk.RefTable]; !ok {
				continue // referenced table not part of this run
			}
			err := g.AddEdge(fk.RefTable, t.Name)
			if errors.Is(err, graph.ErrEdgeAlreadyExists) {
				continue
			}
			if errors.Is(err, graph.ErrEdgeCreatesCycle) {
				warnings = append(warnings, fmt.Sprintf(
					"foreign-key cycle between %s and %s: falling back to schema order, constraints inside the cycle cannot be fully respected",
					t.Name, fk.RefTable))
				continue
			}
		}
	}

	order, err := graph.StableTopologicalSort(g, func(a, b string) bool {
		return pos[a] < pos[b]
	})
	if err != nil {
		// Cannot happen with PreventCycles, but never lose tables over it.
		warnings = append(warnings, fmt.Sprintf("topological sort failed (%v), using schema order", err))
		return names, warnings
	}
	return order, warnings
}

// importLevels groups an import order into dependency levels. Tables within a
// level share no foreign-key edge and may be imported concurrently; levels
// act as barriers. An edge whose referenced table appears later in the order
// (possible only inside a broken cycle) is ignored; the cycle members end up
// in distinct levels either way.
func importLevels(schema *Schema, order []string) [][]string {
	depth := make(map[string]int, len(order))
	maxDepth := 0
	for _, name := range order {
		d := 0
		if t := schema.Table(name); t != nil {
			for _, fk := range t.ForeignKeys {
				if fk.RefTable == name {
					continue
				}
				if rd, placed := depth[fk.RefTable]; placed && rd+1 > d {
					d = rd + 1
				}
			}
		}
		depth[name] = d
		if d > maxDepth {
			maxDepth = d
		}
	}

	levels := make([][]string, maxDepth+1)
	for _, name := range order {
		d := depth[name]
		levels[d] = append(levels[d], name)
	}
	return levels
}

// reversed returns a copy of names in reverse order (the clear order).
func reversed(names []string) []string {
	out := make([]string, len(names))
	for i, n := range names {
		out[len(names)-1-i] = n
	}
	return out
}

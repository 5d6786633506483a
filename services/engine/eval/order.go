// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package eval

import (
	"sort"

	"github.com/aurorafx/aurora/services/engine/graph"
)

// evaluationOrder returns the dirty nodes in dependency order: a node comes
// after every dirty dependency it has. Ordering only considers edges between
// dirty nodes; clean dependencies already have valid results and impose no
// constraint.
//
// Kahn's algorithm over the dirty subgraph, with lexically sorted frontiers
// so the order is deterministic for a given graph and dirty set. Self-loops
// are ignored. Nodes trapped in a cycle never reach indegree zero; they are
// appended afterward in lexical order, which yields the documented
// single-pass-with-staleness behavior for cycle members.
func evaluationOrder(g *graph.Graph, dirty map[graph.NodeID]struct{}) []graph.NodeID {
	if len(dirty) == 0 {
		return nil
	}

	// Indegree counts dirty dependencies only.
	indegree := make(map[graph.NodeID]int, len(dirty))
	for id := range dirty {
		n := 0
		deps, _ := g.Dependencies(id)
		for _, dep := range deps {
			if dep == id {
				continue
			}
			if _, ok := dirty[dep]; ok {
				n++
			}
		}
		indegree[id] = n
	}

	frontier := make([]graph.NodeID, 0, len(dirty))
	for id, n := range indegree {
		if n == 0 {
			frontier = append(frontier, id)
		}
	}
	sortIDs(frontier)

	order := make([]graph.NodeID, 0, len(dirty))
	for len(frontier) > 0 {
		id := frontier[0]
		frontier = frontier[1:]
		order = append(order, id)

		var released []graph.NodeID
		for _, dep := range g.DirectDependents(id) {
			if dep == id {
				continue
			}
			if _, ok := indegree[dep]; !ok {
				continue
			}
			indegree[dep]--
			if indegree[dep] == 0 {
				released = append(released, dep)
			}
		}
		if len(released) > 0 {
			sortIDs(released)
			frontier = mergeSorted(frontier, released)
		}
	}

	// Cycle members: everything the topological sweep could not release.
	if len(order) < len(dirty) {
		rest := make([]graph.NodeID, 0, len(dirty)-len(order))
		seen := make(map[graph.NodeID]struct{}, len(order))
		for _, id := range order {
			seen[id] = struct{}{}
		}
		for id := range dirty {
			if _, ok := seen[id]; !ok {
				rest = append(rest, id)
			}
		}
		sortIDs(rest)
		order = append(order, rest...)
	}
	return order
}

func sortIDs(ids []graph.NodeID) {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
}

// mergeSorted merges two lexically sorted id slices into one.
func mergeSorted(a, b []graph.NodeID) []graph.NodeID {
	out := make([]graph.NodeID, 0, len(a)+len(b))
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		if a[i] <= b[j] {
			out = append(out, a[i])
			i++
		} else {
			out = append(out, b[j])
			j++
		}
	}
	out = append(out, a[i:]...)
	out = append(out, b[j:]...)
	return out
}

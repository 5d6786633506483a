// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package graph

import "sort"

// DirectDependents returns the ids whose dependency list contains id.
//
// Description:
//
//	Served from the maintained reverse index, so cost is proportional to
//	the number of direct dependents, not the graph size. The result is
//	sorted for determinism. Querying an unknown id returns an empty slice;
//	an id may have dependents before it is itself registered.
//
// Inputs:
//
//	id - The id whose consumers are wanted.
//
// Outputs:
//
//	[]NodeID - Direct dependents in lexical order. Empty slice if none.
//
// Thread Safety: Safe for concurrent use. Returns a copy.
func (g *Graph) DirectDependents(id NodeID) []NodeID {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.directDependentsLocked(id)
}

// directDependentsLocked is DirectDependents without locking.
// Caller must hold at least the read lock.
func (g *Graph) directDependentsLocked(id NodeID) []NodeID {
	set, ok := g.dependents[id]
	if !ok || len(set) == 0 {
		return []NodeID{}
	}
	out := make([]NodeID, 0, len(set))
	for dep := range set {
		out = append(out, dep)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// AllDependents returns the transitive closure of dependents of id.
//
// Description:
//
//	Iterative breadth-first traversal over the reverse index with an
//	explicit visited set and work queue. Every reachable node is visited
//	at most once, so cyclic and self-referential graphs terminate in
//	bounded time with no duplicate entries and no recursion depth concerns.
//	The starting id is excluded from the result even when it sits on a
//	cycle that leads back to itself.
//
// Inputs:
//
//	id - The id whose transitive consumers are wanted.
//
// Outputs:
//
//	[]NodeID - Every node downstream of id, sorted, each exactly once.
//
// Thread Safety: Safe for concurrent use. Returns a copy.
func (g *Graph) AllDependents(id NodeID) []NodeID {
	g.mu.RLock()
	defer g.mu.RUnlock()

	visited := map[NodeID]struct{}{id: {}}
	queue := make([]NodeID, 0, len(g.dependents[id]))
	for dep := range g.dependents[id] {
		queue = append(queue, dep)
	}

	out := make([]NodeID, 0, len(queue))
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		if _, seen := visited[current]; seen {
			continue
		}
		visited[current] = struct{}{}
		out = append(out, current)

		for next := range g.dependents[current] {
			if _, seen := visited[next]; !seen {
				queue = append(queue, next)
			}
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// HasCycleThrough reports whether id can reach itself through dependents.
//
// Description:
//
//	Diagnostic helper: cycles are legal in the editor (feedback patches),
//	so this is surfaced as information for the UI, never as a failure.
//	Bounded by the same visited-set discipline as AllDependents.
//
// Thread Safety: Safe for concurrent use.
func (g *Graph) HasCycleThrough(id NodeID) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()

	visited := make(map[NodeID]struct{})
	queue := make([]NodeID, 0, len(g.dependents[id]))
	for dep := range g.dependents[id] {
		queue = append(queue, dep)
	}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		if current == id {
			return true
		}
		if _, seen := visited[current]; seen {
			continue
		}
		visited[current] = struct{}{}
		for next := range g.dependents[current] {
			queue = append(queue, next)
		}
	}
	return false
}

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

import (
	"sort"
	"sync"
)

// Graph owns the set of computation nodes and their dependency edges.
//
// Description:
//
//	Graph maintains both the forward edges (node -> its dependencies) and a
//	reverse index (node -> nodes that depend on it). The reverse index is
//	kept up to date on every mutation so dependent queries stay O(direct
//	dependents) instead of O(all nodes); graphs in the editor routinely
//	exceed a thousand nodes and are queried once per frame.
//
// Thread Safety:
//
//	All methods are safe for concurrent use.
type Graph struct {
	mu    sync.RWMutex
	nodes map[NodeID]*record

	// dependents maps an id to the set of ids whose dependency list
	// contains it. Keys may reference ids that are not registered nodes
	// (unknown dependencies are tolerated).
	dependents map[NodeID]map[NodeID]struct{}
}

// New creates an empty graph.
func New() *Graph {
	return &Graph{
		nodes:      make(map[NodeID]*record),
		dependents: make(map[NodeID]map[NodeID]struct{}),
	}
}

// AddNode registers a node with the given dependency list.
//
// Description:
//
//	If the id is already registered, the node's dependency set is replaced
//	(idempotent re-registration); the reverse index is rewired accordingly.
//	Dependency ids do not need to exist yet, and duplicates in deps are
//	collapsed while preserving first-seen order. Self-dependencies are kept
//	as declared; cycle handling is the evaluator's job, not the graph's.
//
// Inputs:
//
//	id - Node id. Must not be empty.
//	name - Human-readable label for diagnostics. May be empty.
//	deps - Ids this node depends on.
//
// Outputs:
//
//	error - ErrInvalidNode if id is empty, nil otherwise.
//
// Thread Safety: Safe for concurrent use.
func (g *Graph) AddNode(id NodeID, name string, deps ...NodeID) error {
	if id == "" {
		return ErrInvalidNode
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if old, ok := g.nodes[id]; ok {
		for _, dep := range old.deps {
			g.unlink(dep, id)
		}
	}

	rec := &record{
		id:     id,
		name:   name,
		deps:   make([]NodeID, 0, len(deps)),
		depSet: make(map[NodeID]struct{}, len(deps)),
	}
	for _, dep := range deps {
		if _, dup := rec.depSet[dep]; dup {
			continue
		}
		rec.deps = append(rec.deps, dep)
		rec.depSet[dep] = struct{}{}
		g.link(dep, id)
	}
	g.nodes[id] = rec
	return nil
}

// RemoveNode deletes a node and every edge that references it.
//
// Description:
//
//	Other nodes' dependency lists are scrubbed of the removed id, and the
//	reverse index entry is dropped. Removing an unknown id is a no-op, not
//	an error. The graph does not touch cache state; the engine purges the
//	node's cache entry explicitly (the cache holds no back-reference).
//
// Inputs:
//
//	id - Node id to remove.
//
// Outputs:
//
//	bool - True if a node was actually removed.
//
// Thread Safety: Safe for concurrent use.
func (g *Graph) RemoveNode(id NodeID) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	rec, ok := g.nodes[id]
	if !ok {
		return false
	}

	// Drop forward edges out of the removed node.
	for _, dep := range rec.deps {
		g.unlink(dep, id)
	}

	// Scrub the removed id from every dependent's dependency list.
	for depID := range g.dependents[id] {
		dependent, ok := g.nodes[depID]
		if !ok {
			continue
		}
		delete(dependent.depSet, id)
		kept := dependent.deps[:0]
		for _, d := range dependent.deps {
			if d != id {
				kept = append(kept, d)
			}
		}
		dependent.deps = kept
	}
	delete(g.dependents, id)
	delete(g.nodes, id)
	return true
}

// AddDependency appends dependsOn to dependent's dependency list.
//
// Description:
//
//	No-op if the edge already exists. The dependent must be registered;
//	dependsOn may be unknown (the edge is recorded and resolves once the
//	node appears).
//
// Inputs:
//
//	dependent - Id of the node gaining a dependency. Must exist.
//	dependsOn - Id the dependent now depends on. May be unregistered.
//
// Outputs:
//
//	error - ErrNodeNotFound if dependent is not registered.
//
// Thread Safety: Safe for concurrent use.
func (g *Graph) AddDependency(dependent, dependsOn NodeID) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	rec, ok := g.nodes[dependent]
	if !ok {
		return ErrNodeNotFound
	}
	if _, exists := rec.depSet[dependsOn]; exists {
		return nil
	}
	rec.deps = append(rec.deps, dependsOn)
	rec.depSet[dependsOn] = struct{}{}
	g.link(dependsOn, dependent)
	return nil
}

// Node returns a snapshot of the node with the given id.
//
// Thread Safety: Safe for concurrent use. Returns a copy.
func (g *Graph) Node(id NodeID) (Node, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	rec, ok := g.nodes[id]
	if !ok {
		return Node{}, false
	}
	return rec.snapshot(), true
}

// Contains reports whether the id is registered.
//
// Thread Safety: Safe for concurrent use.
func (g *Graph) Contains(id NodeID) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.nodes[id]
	return ok
}

// NodeCount returns the number of registered nodes.
//
// Thread Safety: Safe for concurrent use.
func (g *Graph) NodeCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes)
}

// NodeIDs returns all registered ids in lexical order.
//
// Description:
//
//	Sorted so callers iterating the graph (evaluation ordering, tests,
//	diagnostics dumps) see a deterministic sequence.
//
// Thread Safety: Safe for concurrent use. Returns a copy.
func (g *Graph) NodeIDs() []NodeID {
	g.mu.RLock()
	defer g.mu.RUnlock()

	ids := make([]NodeID, 0, len(g.nodes))
	for id := range g.nodes {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Dependencies returns the dependency list of the given node in
// declaration order.
//
// Outputs:
//
//	[]NodeID - The dependencies. Nil if the node is unknown.
//	bool - True if the node is registered.
//
// Thread Safety: Safe for concurrent use. Returns a copy.
func (g *Graph) Dependencies(id NodeID) ([]NodeID, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	rec, ok := g.nodes[id]
	if !ok {
		return nil, false
	}
	deps := make([]NodeID, len(rec.deps))
	copy(deps, rec.deps)
	return deps, true
}

// link records "dependent depends on dep" in the reverse index.
// Caller must hold the write lock.
func (g *Graph) link(dep, dependent NodeID) {
	set, ok := g.dependents[dep]
	if !ok {
		set = make(map[NodeID]struct{})
		g.dependents[dep] = set
	}
	set[dependent] = struct{}{}
}

// unlink removes "dependent depends on dep" from the reverse index.
// Caller must hold the write lock.
func (g *Graph) unlink(dep, dependent NodeID) {
	set, ok := g.dependents[dep]
	if !ok {
		return
	}
	delete(set, dependent)
	if len(set) == 0 {
		delete(g.dependents, dep)
	}
}

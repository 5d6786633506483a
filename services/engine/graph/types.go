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

// NodeID is the stable, comparable identity of a computation node.
//
// IDs are opaque to the graph: the host application decides their shape
// (operator instance ids, slot paths, uuids). An empty NodeID is invalid.
type NodeID string

// Node is a snapshot of a registered node.
//
// Description:
//
//	Node is a copy handed out by query methods. Mutating it has no effect
//	on the graph; all mutations go through Graph methods.
type Node struct {
	// ID is the unique identifier for the node.
	ID NodeID

	// Name is a human-readable label used only for diagnostics and logs.
	Name string

	// Dependencies lists the ids this node depends on, in declaration
	// order. Entries may reference ids not present in the graph.
	Dependencies []NodeID
}

// record is the internal mutable node state. It is un-exported to enforce
// interaction via NodeIDs rather than direct struct manipulation.
type record struct {
	id   NodeID
	name string

	// deps preserves declaration order; depSet gives O(1) membership.
	deps   []NodeID
	depSet map[NodeID]struct{}
}

// snapshot copies the record into a caller-owned Node.
func (r *record) snapshot() Node {
	deps := make([]NodeID, len(r.deps))
	copy(deps, r.deps)
	return Node{ID: r.id, Name: r.name, Dependencies: deps}
}

// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package graph provides the node graph for the evaluation engine.
//
// The graph package contains the authoritative record of which computation
// nodes exist and how they depend on each other. Nodes are referenced by
// stable opaque ids, never by pointer, so traversal code can use explicit
// visited sets and work queues instead of recursion.
//
// # Ownership Model
//
// The graph exclusively owns node records:
//   - Callers interact through NodeIDs and snapshot copies, never through
//     internal pointers.
//   - A node's dependency list may reference ids that are not (yet)
//     registered. Unknown dependencies are tolerated and simply produce no
//     results at evaluation time.
//   - Dependency edges may form cycles. The graph never rejects a cycle;
//     traversal is bounded by visited sets (see AllDependents).
//
// # Thread Safety
//
// All Graph methods are safe for concurrent use. Structural mutations take
// the write side of a graph-wide RWMutex; queries take the read side.
package graph

import "errors"

// Sentinel errors for graph operations.
var (
	// ErrNodeNotFound is returned when an operation references a node id
	// that is not registered in the graph.
	ErrNodeNotFound = errors.New("node not found")

	// ErrInvalidNode is returned when a node id is empty or otherwise
	// unusable as a key.
	ErrInvalidNode = errors.New("invalid node")
)

// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package eval implements the incremental evaluation engine.
//
// The engine re-executes only the nodes whose inputs changed. Marking a node
// dirty invalidates its cache entry and dirties every transitive dependent;
// an evaluation pass then recomputes the dirty set in dependency order,
// caches each result, and clears the dirty flags. Nodes with no dirty
// ancestry are never touched.
//
// # Cycle Semantics
//
// Dependency cycles are legal (feedback patches in the editor) and evaluated
// single-pass-with-staleness: each cycle member is computed exactly once per
// pass, in deterministic order, reading whatever value its not-yet-updated
// dependency currently holds, which may be the previous pass's result or
// nothing at all. The engine does not iterate to a fixed point; hosts that
// need convergence schedule additional passes themselves. A cyclic graph
// never hangs, recurses, or throws.
//
// # Concurrency Contract
//
// Structural mutations and dirty-marking are serialized against an in-flight
// pass by the engine's state lock. Concurrent Evaluate calls collapse onto a
// single pass via singleflight: the second caller waits for and shares the
// first pass's result, so no node is ever computed twice for one dirty
// transition. A node dirtied mid-pass is picked up by the current pass if
// not yet visited, otherwise it stays dirty for the next pass. It is never
// dropped.
package eval

import (
	"context"
	"time"

	"github.com/aurorafx/aurora/services/engine/capability"
	"github.com/aurorafx/aurora/services/engine/graph"
)

// -----------------------------------------------------------------------------
// Node state machine
// -----------------------------------------------------------------------------

// NodeState is the evaluation state of a node.
type NodeState int

const (
	// StateClean means the node's result is valid.
	StateClean NodeState = iota

	// StateDirty means the result is stale or absent and must be
	// recomputed before being trusted.
	StateDirty

	// StateEvaluating means a pass is currently computing the node.
	StateEvaluating
)

// String returns the string representation of the state.
func (s NodeState) String() string {
	switch s {
	case StateClean:
		return "clean"
	case StateDirty:
		return "dirty"
	case StateEvaluating:
		return "evaluating"
	default:
		return "unknown"
	}
}

// Dirty-source tags recorded by MarkDirty for diagnostics.
const (
	// SourceHost marks changes made by the host application (parameter
	// edits, timeline scrubs).
	SourceHost = "host"

	// SourceWatcher marks changes pushed by an external change feed.
	SourceWatcher = "watcher"

	// SourceManual marks explicit invalidation requested by a user
	// action ("force refresh").
	SourceManual = "manual"

	// SourceRegister marks the implicit dirtying of a newly registered
	// or re-registered node.
	SourceRegister = "register"
)

// -----------------------------------------------------------------------------
// Computation
// -----------------------------------------------------------------------------

// Inputs is what a node computation receives.
type Inputs struct {
	// Self is the id of the node being computed.
	Self graph.NodeID

	// Values maps each declared dependency to its current result. A
	// dependency that has never produced a result (unknown node, cycle
	// member not yet computed, earlier failure) is absent from the map.
	Values map[graph.NodeID]any

	// Capabilities are the external collaborators (rendering, audio,
	// resources) the computation may call through.
	Capabilities capability.Set
}

// Value returns the result of the given dependency, if present.
func (in Inputs) Value(id graph.NodeID) (any, bool) {
	v, ok := in.Values[id]
	return v, ok
}

// ComputeFunc is a node's opaque computation.
//
// Description:
//
//	Called at most once per dirty transition with the node's dependency
//	results. A returned error (or panic, which is recovered) leaves the
//	node dirty for retry on the next pass and never corrupts other nodes.
//	Implementations should honor ctx cancellation for long computations;
//	the engine itself only checks cancellation between nodes.
type ComputeFunc func(ctx context.Context, in Inputs) (any, error)

// -----------------------------------------------------------------------------
// Results and metrics
// -----------------------------------------------------------------------------

// PassResult summarizes one evaluation pass.
type PassResult struct {
	// PassID is a short unique id for correlating logs and traces.
	PassID string

	// Evaluated is the number of nodes recomputed this pass.
	Evaluated int

	// Skipped is the number of dirty nodes left untouched because they
	// sit downstream of a failed node.
	Skipped int

	// Failures lists the nodes whose computations failed. They remain
	// dirty and are retried next pass.
	Failures []NodeError

	// Duration is the wall-clock time of the pass.
	Duration time.Duration

	// Cancelled is true when the pass stopped early on context
	// cancellation. Completed nodes stay clean; unreached nodes stay
	// dirty, so a retry resumes without redoing finished work.
	Cancelled bool

	// RemainingDirty is the dirty-node count when the pass ended.
	RemainingDirty int

	// Shared is true when this result was produced by another caller's
	// concurrent pass and joined via singleflight.
	Shared bool
}

// Metrics is a snapshot of engine counters.
type Metrics struct {
	// TotalEvaluations counts node computations since construction.
	TotalEvaluations int64

	// TotalFailures counts failed node computations since construction.
	TotalFailures int64

	// DirtyNodes is the current dirty-node count.
	DirtyNodes int

	// LastPassDuration is the wall-clock time of the most recent pass.
	LastPassDuration time.Duration

	// LastPassEvaluated is the node count recomputed by the most recent
	// pass.
	LastPassEvaluated int
}

// NodeInfo is a diagnostic snapshot of one node's evaluation state.
type NodeInfo struct {
	// ID is the node id.
	ID graph.NodeID

	// Name is the node's diagnostic label.
	Name string

	// State is the current evaluation state.
	State NodeState

	// DirtySource tags how the node became dirty ("host", "watcher",
	// "register"). Empty when clean.
	DirtySource string

	// Evaluations counts how often the node has been computed.
	Evaluations int64

	// LastEvaluated is when the node last completed successfully.
	// Zero if never evaluated.
	LastEvaluated time.Time
}

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
	"errors"
	"fmt"

	"github.com/aurorafx/aurora/services/engine/graph"
)

// Sentinel errors for engine operations.
var (
	// ErrNilContext is returned when a nil context is provided.
	ErrNilContext = errors.New("context must not be nil")

	// ErrNilCompute is returned when a node is registered without a
	// computation.
	ErrNilCompute = errors.New("compute function must not be nil")

	// ErrEngineClosed is returned by operations on a closed engine.
	ErrEngineClosed = errors.New("evaluation engine is closed")

	// ErrComputePanic wraps a panic recovered from a node computation.
	// The node stays dirty and is retried on the next pass.
	ErrComputePanic = errors.New("node computation panicked")
)

// NodeError records the failure of one node's computation during a pass.
//
// Description:
//
//	A pass never aborts on a computation failure; it collects NodeErrors
//	and keeps evaluating nodes that do not sit downstream of the failure.
type NodeError struct {
	// Node is the id of the node whose computation failed.
	Node graph.NodeID

	// Err is the underlying computation error.
	Err error
}

// Error implements the error interface.
func (e *NodeError) Error() string {
	return fmt.Sprintf("node %s: %v", e.Node, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As.
func (e *NodeError) Unwrap() error {
	return e.Err
}

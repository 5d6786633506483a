// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package guard

import (
	"sync/atomic"
	"time"
)

// ExecutionState accumulates guardrail accounting for the current pass.
//
// Thread Safety:
//
//	Safe for concurrent use. The engine's observer writes it between
//	nodes while the memory monitor and the host read it.
type ExecutionState struct {
	passOps  atomic.Int64
	totalOps atomic.Int64
	memory   atomic.Int64 // last heap sample, bytes
	started  atomic.Int64 // pass start, unix nanos; 0 when idle

	timeBreach   atomic.Bool
	memoryBreach atomic.Bool
	opsBreach    atomic.Bool
}

// StateSnapshot is a point-in-time copy of the execution state.
type StateSnapshot struct {
	// PassOperations is the node count computed in the current or most
	// recent pass.
	PassOperations int64

	// TotalOperations is the node count computed over the context's
	// lifetime.
	TotalOperations int64

	// MemoryBytes is the most recent heap sample.
	MemoryBytes int64

	// Elapsed is the wall-clock time of the current pass, zero when no
	// pass has started.
	Elapsed time.Duration

	// Breaches lists the guardrails exceeded since the pass started.
	Breaches []BreachType
}

// beginPass resets per-pass accounting. Breach flags reset with it; a
// breach describes the pass that produced it, not the context's history.
func (s *ExecutionState) beginPass(now time.Time) {
	s.passOps.Store(0)
	s.started.Store(now.UnixNano())
	s.timeBreach.Store(false)
	s.memoryBreach.Store(false)
	s.opsBreach.Store(false)
}

// recordOp counts one node computation and returns the pass total.
func (s *ExecutionState) recordOp() int64 {
	s.totalOps.Add(1)
	return s.passOps.Add(1)
}

// setMemorySample stores the latest heap reading.
func (s *ExecutionState) setMemorySample(bytes int64) {
	s.memory.Store(bytes)
}

// breach latches the given guardrail flag.
func (s *ExecutionState) breach(t BreachType) {
	switch t {
	case BreachTime:
		s.timeBreach.Store(true)
	case BreachMemory:
		s.memoryBreach.Store(true)
	case BreachOperations:
		s.opsBreach.Store(true)
	}
}

// elapsed returns the wall-clock time since the pass started.
func (s *ExecutionState) elapsed(now time.Time) time.Duration {
	start := s.started.Load()
	if start == 0 {
		return 0
	}
	return now.Sub(time.Unix(0, start))
}

// IsWithinLimits reports whether no guardrail has been breached.
func (s *ExecutionState) IsWithinLimits() bool {
	return !s.timeBreach.Load() && !s.memoryBreach.Load() && !s.opsBreach.Load()
}

// IsOverEvaluationLimit reports whether the pass exceeded its time or
// operation budget.
func (s *ExecutionState) IsOverEvaluationLimit() bool {
	return s.timeBreach.Load() || s.opsBreach.Load()
}

// Breaches returns the guardrails exceeded since the pass started, in
// declaration order.
func (s *ExecutionState) Breaches() []BreachType {
	var out []BreachType
	if s.timeBreach.Load() {
		out = append(out, BreachTime)
	}
	if s.memoryBreach.Load() {
		out = append(out, BreachMemory)
	}
	if s.opsBreach.Load() {
		out = append(out, BreachOperations)
	}
	return out
}

// Snapshot returns a point-in-time copy of the state.
func (s *ExecutionState) Snapshot() StateSnapshot {
	return StateSnapshot{
		PassOperations:  s.passOps.Load(),
		TotalOperations: s.totalOps.Load(),
		MemoryBytes:     s.memory.Load(),
		Elapsed:         s.elapsed(time.Now()),
		Breaches:        s.Breaches(),
	}
}

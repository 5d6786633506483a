// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package guard wraps the evaluation engine with host-facing guardrails.
//
// Guardrails are soft limits. A breach is recorded on the execution state
// for the host to inspect; it never aborts a pass, throws, or cancels the
// context. The host decides whether to reduce scene complexity, pause
// evaluation, or keep going.
package guard

import (
	"errors"
	"time"
)

// Sentinel errors for guard operations.
var (
	// ErrNilEngine is returned when a context is built without an engine.
	ErrNilEngine = errors.New("engine must not be nil")

	// ErrContextClosed is returned by operations on a closed context.
	ErrContextClosed = errors.New("evaluation context is closed")

	// ErrInvalidConfig is returned for uninterpretable guardrail config.
	ErrInvalidConfig = errors.New("invalid guardrail config")
)

// BreachType identifies which guardrail was exceeded.
type BreachType int

const (
	// BreachTime means a pass ran longer than MaxEvalTime.
	BreachTime BreachType = iota

	// BreachMemory means the process heap exceeded MaxMemoryBytes.
	BreachMemory

	// BreachOperations means a pass computed more nodes than
	// MaxOperations.
	BreachOperations
)

// String returns the string representation of the breach type.
func (b BreachType) String() string {
	switch b {
	case BreachTime:
		return "time"
	case BreachMemory:
		return "memory"
	case BreachOperations:
		return "operations"
	default:
		return "unknown"
	}
}

// Default guardrail limits.
const (
	DefaultMaxEvalTime          = 2 * time.Second
	DefaultMaxMemoryBytes       = 512 << 20
	DefaultMaxOperations        = 100_000
	DefaultMemorySampleInterval = 100 * time.Millisecond
)

// GuardrailConfig bounds one evaluation context.
type GuardrailConfig struct {
	// MaxEvalTime is the wall-clock budget for a single pass.
	MaxEvalTime time.Duration

	// MaxMemoryBytes is the heap allocation ceiling.
	MaxMemoryBytes int64

	// MaxOperations caps node computations per pass.
	MaxOperations int64

	// MemorySampleInterval throttles heap sampling.
	MemorySampleInterval time.Duration
}

// Validate checks the config without mutating it. Negative values are
// uninterpretable; zero means "use the default" and is legal.
func (c *GuardrailConfig) Validate() error {
	if c.MaxEvalTime < 0 {
		return errors.Join(ErrInvalidConfig, errors.New("MaxEvalTime must not be negative"))
	}
	if c.MaxMemoryBytes < 0 {
		return errors.Join(ErrInvalidConfig, errors.New("MaxMemoryBytes must not be negative"))
	}
	if c.MaxOperations < 0 {
		return errors.Join(ErrInvalidConfig, errors.New("MaxOperations must not be negative"))
	}
	if c.MemorySampleInterval < 0 {
		return errors.Join(ErrInvalidConfig, errors.New("MemorySampleInterval must not be negative"))
	}
	return nil
}

// ApplyDefaults coerces zero and negative fields to the defaults.
func (c *GuardrailConfig) ApplyDefaults() {
	if c.MaxEvalTime <= 0 {
		c.MaxEvalTime = DefaultMaxEvalTime
	}
	if c.MaxMemoryBytes <= 0 {
		c.MaxMemoryBytes = DefaultMaxMemoryBytes
	}
	if c.MaxOperations <= 0 {
		c.MaxOperations = DefaultMaxOperations
	}
	if c.MemorySampleInterval <= 0 {
		c.MemorySampleInterval = DefaultMemorySampleInterval
	}
}

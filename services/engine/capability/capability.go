// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package capability declares the external collaborators node computations
// run against: the rendering device, the audio engine, and the resource
// manager. The engine never inspects their internals; it only passes the
// bundle through to each computation. Deterministic no-op implementations
// are provided so tests and headless runs need no substitution machinery.
package capability

import (
	"context"
	"errors"
	"sync/atomic"
)

// ErrClosed is returned by every capability method after Close.
//
// Node computations that hit a disposed collaborator surface this as an
// ordinary computation failure; the engine retries the node next pass
// instead of crashing the host.
var ErrClosed = errors.New("capability is closed")

// Rendering is the graphics device boundary.
//
// Thread Safety: Implementations must be safe for concurrent use.
type Rendering interface {
	// RequestFrame asks the device to schedule a redraw of the target.
	RequestFrame(ctx context.Context, target string) error

	// Close releases the device. Further calls return ErrClosed.
	Close() error
}

// Audio is the audio engine boundary.
//
// Thread Safety: Implementations must be safe for concurrent use.
type Audio interface {
	// Level returns the current analysis level for the named band in
	// [0, 1]. Used by audio-reactive node computations.
	Level(ctx context.Context, band string) (float64, error)

	// Close releases the engine. Further calls return ErrClosed.
	Close() error
}

// Resources is the resource-manager boundary (textures, meshes, fonts).
//
// Thread Safety: Implementations must be safe for concurrent use.
type Resources interface {
	// Acquire resolves the named resource to an opaque handle.
	Acquire(ctx context.Context, name string) (any, error)

	// Close releases the manager. Further calls return ErrClosed.
	Close() error
}

// Set bundles the collaborators handed to the engine at construction.
//
// Description:
//
//	Explicit parameter injection: no service container, no globals. Any
//	nil field is replaced by its no-op implementation so computations can
//	always call through the set.
type Set struct {
	Rendering Rendering
	Audio     Audio
	Resources Resources
}

// WithDefaults returns a copy of the set with nil fields filled by no-ops.
func (s Set) WithDefaults() Set {
	if s.Rendering == nil {
		s.Rendering = NewNoopRendering()
	}
	if s.Audio == nil {
		s.Audio = NewNoopAudio()
	}
	if s.Resources == nil {
		s.Resources = NewNoopResources()
	}
	return s
}

// Close closes every collaborator, returning the first error.
func (s Set) Close() error {
	var first error
	for _, c := range []interface{ Close() error }{s.Rendering, s.Audio, s.Resources} {
		if c == nil {
			continue
		}
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// -----------------------------------------------------------------------------
// No-op implementations
// -----------------------------------------------------------------------------

// NoopRendering counts frame requests and otherwise does nothing.
type NoopRendering struct {
	closed atomic.Bool
	frames atomic.Int64
}

// NewNoopRendering returns a fresh no-op rendering capability.
func NewNoopRendering() *NoopRendering { return &NoopRendering{} }

// RequestFrame records the request. Returns ErrClosed after Close.
func (n *NoopRendering) RequestFrame(_ context.Context, _ string) error {
	if n.closed.Load() {
		return ErrClosed
	}
	n.frames.Add(1)
	return nil
}

// Frames returns the number of frame requests observed.
func (n *NoopRendering) Frames() int64 { return n.frames.Load() }

// Close marks the capability disposed. Idempotent.
func (n *NoopRendering) Close() error {
	n.closed.Store(true)
	return nil
}

// NoopAudio reports a constant level for every band.
type NoopAudio struct {
	closed atomic.Bool
}

// NewNoopAudio returns a fresh no-op audio capability.
func NewNoopAudio() *NoopAudio { return &NoopAudio{} }

// Level returns 0 for every band. Returns ErrClosed after Close.
func (n *NoopAudio) Level(_ context.Context, _ string) (float64, error) {
	if n.closed.Load() {
		return 0, ErrClosed
	}
	return 0, nil
}

// Close marks the capability disposed. Idempotent.
func (n *NoopAudio) Close() error {
	n.closed.Store(true)
	return nil
}

// NoopResources resolves every name to itself.
type NoopResources struct {
	closed atomic.Bool
}

// NewNoopResources returns a fresh no-op resource manager.
func NewNoopResources() *NoopResources { return &NoopResources{} }

// Acquire echoes the name back as the handle. Returns ErrClosed after Close.
func (n *NoopResources) Acquire(_ context.Context, name string) (any, error) {
	if n.closed.Load() {
		return nil, ErrClosed
	}
	return name, nil
}

// Close marks the capability disposed. Idempotent.
func (n *NoopResources) Close() error {
	n.closed.Store(true)
	return nil
}

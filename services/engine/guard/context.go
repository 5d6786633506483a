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
	"context"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/aurorafx/aurora/services/engine/cache"
	"github.com/aurorafx/aurora/services/engine/eval"
	"github.com/aurorafx/aurora/services/engine/graph"
)

// Context is the host's handle on a guarded evaluation engine.
//
// Description:
//
//	Context owns an Engine plus the guardrail accounting around it. Node
//	completions feed the operation counter and the wall-clock check; a
//	background monitor samples the heap. Breaches latch flags on the
//	ExecutionState and never interrupt a pass.
//
// Thread Safety:
//
//	Safe for concurrent use. Close is idempotent.
type Context struct {
	engine *eval.Engine
	cfg    GuardrailConfig
	state  *ExecutionState
	logger *slog.Logger

	// limiter throttles observer-side heap sampling so hot passes do not
	// pay ReadMemStats per node.
	limiter *rate.Limiter

	stopCh chan struct{}
	wg     sync.WaitGroup
	closed atomic.Bool
}

// NewContext creates a guarded context around an engine.
//
// Description:
//
//	Zero and negative guardrail fields are coerced to defaults; soft
//	limits never make a config fatal. The context installs itself as the
//	engine's observer and starts the heap monitor. The caller must Close
//	the context to release both.
//
// Inputs:
//
//	engine - The engine to guard. Must not be nil. Ownership transfers;
//	Close closes it.
//	cfg - Guardrail limits. The zero value selects all defaults.
//	logger - Logger for breach warnings. If nil, uses slog.Default().
//
// Outputs:
//
//	*Context - The guarded context.
//	error - ErrNilEngine, or ErrInvalidConfig for negative limits.
func NewContext(engine *eval.Engine, cfg GuardrailConfig, logger *slog.Logger) (*Context, error) {
	if engine == nil {
		return nil, ErrNilEngine
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.ApplyDefaults()
	if logger == nil {
		logger = slog.Default()
	}

	c := &Context{
		engine:  engine,
		cfg:     cfg,
		state:   &ExecutionState{},
		logger:  logger.With(slog.String("subsystem", "guard")),
		limiter: rate.NewLimiter(rate.Every(cfg.MemorySampleInterval), 1),
		stopCh:  make(chan struct{}),
	}

	engine.SetObserver(c.onNodeDone)

	c.wg.Add(1)
	monitor := &memoryMonitor{
		state:    c.state,
		limit:    cfg.MaxMemoryBytes,
		interval: cfg.MemorySampleInterval,
		logger:   c.logger,
	}
	go monitor.Run(c.stopCh, &c.wg)

	return c, nil
}

// onNodeDone is the engine observer: operation accounting plus the
// wall-clock and throttled heap checks, between nodes.
func (c *Context) onNodeDone(id graph.NodeID, d time.Duration, err error) {
	ops := c.state.recordOp()
	if ops > c.cfg.MaxOperations {
		if !c.state.opsBreach.Load() {
			c.logger.Warn("operation guardrail breached",
				slog.String("node", string(id)),
				slog.Int64("operations", ops),
				slog.Int64("limit", c.cfg.MaxOperations),
			)
		}
		c.state.breach(BreachOperations)
	}

	if elapsed := c.state.elapsed(time.Now()); elapsed > c.cfg.MaxEvalTime {
		if !c.state.timeBreach.Load() {
			c.logger.Warn("time guardrail breached",
				slog.String("node", string(id)),
				slog.Duration("elapsed", elapsed),
				slog.Duration("limit", c.cfg.MaxEvalTime),
			)
		}
		c.state.breach(BreachTime)
	}

	if c.limiter.Allow() {
		var memStats runtime.MemStats
		runtime.ReadMemStats(&memStats)
		c.state.setMemorySample(int64(memStats.Alloc))
		if int64(memStats.Alloc) > c.cfg.MaxMemoryBytes {
			c.state.breach(BreachMemory)
		}
	}
}

// Evaluate runs one guarded pass.
//
// Description:
//
//	Per-pass accounting (operation count, wall clock, breach flags) is
//	reset at the start. Breaches latched during the pass are readable
//	from State afterward; the pass itself always runs to completion or
//	cancellation.
//
// Outputs:
//
//	*eval.PassResult - Pass summary from the engine.
//	error - ErrContextClosed, or the engine's error.
func (c *Context) Evaluate(ctx context.Context) (*eval.PassResult, error) {
	if c.closed.Load() {
		return nil, ErrContextClosed
	}
	c.state.beginPass(time.Now())

	res, err := c.engine.Evaluate(ctx)
	if err != nil {
		return nil, err
	}
	if breaches := c.state.Breaches(); len(breaches) > 0 {
		c.logger.Warn("pass completed over guardrail limits",
			slog.String("pass_id", res.PassID),
			slog.Any("breaches", breaches),
			slog.Duration("duration", res.Duration),
		)
	}
	return res, nil
}

// State returns the guardrail accounting for inspection.
func (c *Context) State() *ExecutionState { return c.state }

// Engine returns the underlying engine for direct access.
func (c *Context) Engine() *eval.Engine { return c.engine }

// AddNode registers a node on the guarded engine.
func (c *Context) AddNode(id graph.NodeID, name string, compute eval.ComputeFunc, deps ...graph.NodeID) error {
	if c.closed.Load() {
		return ErrContextClosed
	}
	return c.engine.AddNode(id, name, compute, deps...)
}

// RemoveNode unregisters a node on the guarded engine.
func (c *Context) RemoveNode(id graph.NodeID) bool {
	if c.closed.Load() {
		return false
	}
	return c.engine.RemoveNode(id)
}

// AddDependency declares an edge on the guarded engine.
func (c *Context) AddDependency(dependent, dependsOn graph.NodeID) error {
	if c.closed.Load() {
		return ErrContextClosed
	}
	return c.engine.AddDependency(dependent, dependsOn)
}

// MarkDirty marks a node and its transitive dependents dirty.
func (c *Context) MarkDirty(id graph.NodeID) error {
	if c.closed.Load() {
		return ErrContextClosed
	}
	return c.engine.MarkDirty(id)
}

// CachedResult reads a node's last known result without computing.
func (c *Context) CachedResult(ctx context.Context, id graph.NodeID) (any, bool, bool) {
	return c.engine.CachedResult(ctx, id)
}

// DirtyCount returns the engine's current dirty-node count.
func (c *Context) DirtyCount() int { return c.engine.DirtyCount() }

// Metrics returns the engine's counter snapshot.
func (c *Context) Metrics() eval.Metrics { return c.engine.Metrics() }

// CacheStats returns the result cache counters.
func (c *Context) CacheStats() cache.Stats { return c.engine.CacheStats() }

// Close releases the context deterministically: the monitor stops, the
// observer is removed, and the engine is closed (purging its cache and
// closing its capabilities). Idempotent.
func (c *Context) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	close(c.stopCh)
	c.wg.Wait()
	c.engine.SetObserver(nil)
	return c.engine.Close()
}

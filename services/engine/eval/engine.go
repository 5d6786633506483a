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
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/aurorafx/aurora/services/engine/cache"
	"github.com/aurorafx/aurora/services/engine/capability"
	"github.com/aurorafx/aurora/services/engine/graph"

	"github.com/google/uuid"
)

// Observer is invoked after every node computation with the node id, the
// compute duration, and the computation error (nil on success). Observers
// are called synchronously between nodes and must be fast; they must not
// call back into the engine's mutating methods.
type Observer func(id graph.NodeID, d time.Duration, err error)

// Options configures a new Engine.
type Options struct {
	// CacheSize bounds the result cache. Zero selects the cache default;
	// negative is rejected at construction.
	CacheSize int

	// Capabilities are the external collaborators handed to every
	// computation. Missing entries are filled with deterministic no-ops.
	Capabilities capability.Set

	// Logger receives pass and node logs. Nil uses slog.Default().
	Logger *slog.Logger

	// Disabled starts the engine in pass-through mode: passes still run
	// but results bypass the cache. Used by hosts while debugging.
	Disabled bool
}

// nodeState is the engine-side evaluation record for one node. The state
// handle (result, hasResult) is authoritative; the cache is the bounded
// accounting store and may evict at any time.
type nodeState struct {
	compute       ComputeFunc
	state         NodeState
	dirtySource   string
	result        any
	hasResult     bool
	evaluations   int64
	lastEvaluated time.Time
}

// Engine is the incremental evaluation engine.
//
// Description:
//
//	Engine owns the node graph, the per-node evaluation state, and the
//	bounded result cache. Hosts register nodes with opaque computations,
//	mark them dirty as parameters change, and call Evaluate to bring the
//	dirty set back to clean in dependency order.
//
// Thread Safety:
//
//	Engine is safe for concurrent use. Structural mutations and
//	dirty-marking serialize on an internal lock; concurrent Evaluate
//	calls collapse onto a single pass.
type Engine struct {
	graph  *graph.Graph
	cache  *cache.ResultCache
	caps   capability.Set
	logger *slog.Logger

	mu       sync.Mutex
	states   map[graph.NodeID]*nodeState
	enabled  bool
	closed   bool
	observer Observer

	flight singleflight.Group

	totalEvaluations  atomic.Int64
	totalFailures     atomic.Int64
	lastPassDuration  atomic.Int64 // nanoseconds
	lastPassEvaluated atomic.Int64

	// Metrics (initialized lazily)
	metricsOnce   sync.Once
	nodeLatency   metric.Float64Histogram
	nodeSuccesses metric.Int64Counter
	nodeFailures  metric.Int64Counter
	passLatency   metric.Float64Histogram
	dirtyGauge    metric.Int64UpDownCounter
}

// New creates an Engine.
//
// Inputs:
//
//	opts - Engine options. The zero value is valid.
//
// Outputs:
//
//	*Engine - The configured engine.
//	error - Non-nil if the cache bound is invalid.
func New(opts Options) (*Engine, error) {
	c, err := cache.New(opts.CacheSize)
	if err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		graph:   graph.New(),
		cache:   c,
		caps:    opts.Capabilities.WithDefaults(),
		logger:  logger,
		states:  make(map[graph.NodeID]*nodeState),
		enabled: !opts.Disabled,
	}, nil
}

// AddNode registers a node and its computation.
//
// Description:
//
//	Registration is idempotent: re-registering an existing id replaces
//	its computation and declared dependencies. The node starts dirty, and
//	every existing transitive dependent is dirtied with it. Dependencies
//	on ids not yet registered are legal and become live edges once the
//	dependency registers.
//
// Inputs:
//
//	id - Node id. Must be non-empty.
//	name - Diagnostic label.
//	compute - The node's computation. Must not be nil.
//	deps - Declared dependency ids, duplicates collapsed.
//
// Outputs:
//
//	error - ErrInvalidNode for an empty id, ErrNilCompute for a nil
//	computation, ErrEngineClosed after Close.
func (e *Engine) AddNode(id graph.NodeID, name string, compute ComputeFunc, deps ...graph.NodeID) error {
	if compute == nil {
		return fmt.Errorf("%w: node %q", ErrNilCompute, id)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrEngineClosed
	}
	if err := e.graph.AddNode(id, name, deps...); err != nil {
		return err
	}

	st, existed := e.states[id]
	if !existed {
		st = &nodeState{}
		e.states[id] = st
	}
	st.compute = compute
	// A replaced computation invalidates any prior result outright.
	if existed {
		st.result = nil
		st.hasResult = false
	}
	e.markDirtyLocked(id, SourceRegister)
	return nil
}

// RemoveNode unregisters a node.
//
// Description:
//
//	The node's cache entry is invalidated and every transitive dependent
//	is marked dirty, since their inputs just changed. The removed id is
//	scrubbed from dependents' dependency lists; re-registering it later
//	does not restore the edges, dependents must declare them again.
//	Removing an unknown id is a no-op.
//
// Outputs:
//
//	bool - True if the node existed.
func (e *Engine) RemoveNode(id graph.NodeID) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed || !e.graph.Contains(id) {
		return false
	}

	dependents := e.graph.AllDependents(id)
	e.graph.RemoveNode(id)

	if st, ok := e.states[id]; ok {
		if st.state == StateDirty {
			e.addDirtyGauge(-1)
		}
		delete(e.states, id)
	}
	e.cache.Invalidate(id)

	for _, dep := range dependents {
		e.markDirtyLocked(dep, SourceHost)
	}
	return true
}

// AddDependency declares that dependent reads dependsOn's result.
//
// Description:
//
//	Idempotent. The dependent and its transitive dependents are marked
//	dirty, since the dependent's input set changed. dependsOn may be an
//	id that is not registered yet.
//
// Outputs:
//
//	error - ErrNodeNotFound if dependent is unknown, ErrEngineClosed
//	after Close.
func (e *Engine) AddDependency(dependent, dependsOn graph.NodeID) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrEngineClosed
	}
	if err := e.graph.AddDependency(dependent, dependsOn); err != nil {
		return err
	}
	e.markDirtyLocked(dependent, SourceHost)
	return nil
}

// MarkDirty marks a node and all of its transitive dependents dirty,
// invalidating their cache entries eagerly. Idempotent; marking an already
// dirty node changes nothing. Returns ErrNodeNotFound for an unknown id.
func (e *Engine) MarkDirty(id graph.NodeID) error {
	return e.MarkDirtyWithSource(id, SourceHost)
}

// MarkDirtyWithSource is MarkDirty with an explicit source tag ("host",
// "watcher", "manual") recorded for diagnostics.
func (e *Engine) MarkDirtyWithSource(id graph.NodeID, source string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrEngineClosed
	}
	if !e.graph.Contains(id) {
		return fmt.Errorf("%w: %q", graph.ErrNodeNotFound, id)
	}
	e.markDirtyLocked(id, source)
	return nil
}

// markDirtyLocked dirties id and its transitive dependents. Caller holds
// e.mu. A node mid-computation transitions Evaluating -> Dirty, which the
// pass detects on completion and leaves for the next pass.
func (e *Engine) markDirtyLocked(id graph.NodeID, source string) {
	e.dirtyOneLocked(id, source)
	for _, dep := range e.graph.AllDependents(id) {
		e.dirtyOneLocked(dep, source)
	}
}

func (e *Engine) dirtyOneLocked(id graph.NodeID, source string) {
	st, ok := e.states[id]
	if !ok {
		return
	}
	if st.state != StateDirty {
		st.state = StateDirty
		st.dirtySource = source
		e.addDirtyGauge(1)
	}
	e.cache.Invalidate(id)
}

func (e *Engine) addDirtyGauge(delta int64) {
	e.initMetrics()
	if e.dirtyGauge != nil {
		e.dirtyGauge.Add(context.Background(), delta)
	}
}

// Evaluate runs one evaluation pass over the current dirty set.
//
// Description:
//
//	Dirty nodes are computed dependency-first; cycle members are computed
//	once each with whatever their dependencies currently hold. A failed
//	computation leaves its node dirty and skips its dirty dependents; the
//	rest of the pass continues. Cancellation stops between nodes, keeping
//	completed nodes clean so a retry resumes where it left off. A clean
//	engine returns immediately with an empty result.
//
//	Concurrent callers share a single pass: the second caller blocks and
//	receives the first pass's result with Shared set.
//
// Inputs:
//
//	ctx - Cancellation context. Must not be nil. When passes are shared,
//	the joining caller's ctx does not affect the in-flight pass.
//
// Outputs:
//
//	*PassResult - Pass summary. Non-nil even when nodes failed.
//	error - ErrNilContext, or ErrEngineClosed after Close. Node failures
//	are reported in the result, not here.
func (e *Engine) Evaluate(ctx context.Context) (*PassResult, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}

	v, err, shared := e.flight.Do("evaluate", func() (any, error) {
		return e.runPass(ctx)
	})
	if err != nil {
		return nil, err
	}
	res := v.(*PassResult)
	if shared {
		out := *res
		out.Shared = true
		return &out, nil
	}
	return res, nil
}

func (e *Engine) runPass(ctx context.Context) (*PassResult, error) {
	e.initMetrics()

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil, ErrEngineClosed
	}
	dirty := make(map[graph.NodeID]struct{})
	for id, st := range e.states {
		if st.state == StateDirty {
			dirty[id] = struct{}{}
		}
	}
	e.mu.Unlock()

	passID := uuid.NewString()[:12]
	res := &PassResult{PassID: passID}
	if len(dirty) == 0 {
		return res, nil
	}

	ctx, span := tracer.Start(ctx, "engine.Evaluate",
		trace.WithAttributes(
			attribute.String("pass.id", passID),
			attribute.Int("pass.dirty_count", len(dirty)),
		),
	)
	defer span.End()

	start := time.Now()
	e.logger.Info("evaluation pass started",
		slog.String("pass_id", passID),
		slog.Int("dirty", len(dirty)),
	)

	order := evaluationOrder(e.graph, dirty)
	skip := make(map[graph.NodeID]struct{})

	for _, id := range order {
		select {
		case <-ctx.Done():
			res.Cancelled = true
		default:
		}
		if res.Cancelled {
			span.RecordError(ctx.Err())
			span.SetStatus(codes.Error, "context canceled")
			break
		}
		if _, skipped := skip[id]; skipped {
			res.Skipped++
			continue
		}
		e.evaluateNode(ctx, id, res, skip)
	}

	duration := time.Since(start)
	res.Duration = duration
	res.RemainingDirty = e.DirtyCount()

	e.lastPassDuration.Store(int64(duration))
	e.lastPassEvaluated.Store(int64(res.Evaluated))
	if e.passLatency != nil {
		e.passLatency.Record(ctx, duration.Seconds())
	}

	if len(res.Failures) == 0 && !res.Cancelled {
		span.SetStatus(codes.Ok, "")
	}
	e.logger.Info("evaluation pass completed",
		slog.String("pass_id", passID),
		slog.Duration("duration", duration),
		slog.Int("evaluated", res.Evaluated),
		slog.Int("skipped", res.Skipped),
		slog.Int("failed", len(res.Failures)),
		slog.Bool("cancelled", res.Cancelled),
	)
	return res, nil
}

// evaluateNode computes one dirty node and records the outcome in res.
func (e *Engine) evaluateNode(ctx context.Context, id graph.NodeID, res *PassResult, skip map[graph.NodeID]struct{}) {
	e.mu.Lock()
	st, ok := e.states[id]
	if !ok || st.state != StateDirty {
		// Removed or already settled since the snapshot.
		e.mu.Unlock()
		return
	}
	st.state = StateEvaluating
	e.addDirtyGauge(-1)

	in := Inputs{
		Self:         id,
		Values:       make(map[graph.NodeID]any),
		Capabilities: e.caps,
	}
	deps, _ := e.graph.Dependencies(id)
	for _, dep := range deps {
		if ds, ok := e.states[dep]; ok && ds.hasResult {
			in.Values[dep] = ds.result
		}
	}
	compute := st.compute
	enabled := e.enabled
	e.mu.Unlock()

	// A dirty node is never served from the cache; the probe keeps the
	// miss accounting honest.
	if enabled {
		e.cache.Get(ctx, id)
	}

	nodeCtx, nodeSpan := tracer.Start(ctx, "engine.Node",
		trace.WithAttributes(attribute.String("node.id", string(id))),
	)
	nodeStart := time.Now()
	value, err := safeCompute(nodeCtx, compute, in)
	nodeDuration := time.Since(nodeStart)

	if e.nodeLatency != nil {
		e.nodeLatency.Record(ctx, nodeDuration.Seconds(),
			metric.WithAttributes(attribute.String("node", string(id))),
		)
	}

	e.mu.Lock()
	obs := e.observer
	if err != nil {
		e.totalFailures.Add(1)
		if st.state == StateEvaluating && e.states[id] == st {
			st.state = StateDirty
			e.addDirtyGauge(1)
		}
		res.Failures = append(res.Failures, NodeError{Node: id, Err: err})
		// Dirty dependents cannot compute against a failed input.
		for _, dep := range e.graph.AllDependents(id) {
			skip[dep] = struct{}{}
		}
		e.mu.Unlock()

		nodeSpan.RecordError(err)
		nodeSpan.SetStatus(codes.Error, err.Error())
		nodeSpan.End()
		if e.nodeFailures != nil {
			e.nodeFailures.Add(ctx, 1,
				metric.WithAttributes(attribute.String("node", string(id))),
			)
		}
		e.logger.Warn("node computation failed",
			slog.String("pass_id", res.PassID),
			slog.String("node", string(id)),
			slog.String("error", err.Error()),
		)
		if obs != nil {
			obs(id, nodeDuration, err)
		}
		return
	}

	// The node may have been removed while its computation ran. Its cache
	// entry was already invalidated; storing the result would resurrect a
	// dead entry that CachedResult can never serve.
	removed := e.states[id] != st

	st.result = value
	st.hasResult = true
	st.evaluations++
	st.lastEvaluated = time.Now()
	e.totalEvaluations.Add(1)
	res.Evaluated++

	redirtied := st.state == StateDirty
	if !redirtied && !removed {
		st.state = StateClean
		st.dirtySource = ""
		if enabled {
			e.cache.Put(ctx, id, value)
		}
	}
	e.mu.Unlock()

	nodeSpan.SetStatus(codes.Ok, "")
	nodeSpan.End()
	if e.nodeSuccesses != nil {
		e.nodeSuccesses.Add(ctx, 1,
			metric.WithAttributes(attribute.String("node", string(id))),
		)
	}
	if obs != nil {
		obs(id, nodeDuration, nil)
	}
}

// safeCompute runs a computation with panic containment. A panicking node
// is indistinguishable from a failing one to the rest of the pass.
func safeCompute(ctx context.Context, compute ComputeFunc, in Inputs) (value any, err error) {
	defer func() {
		if r := recover(); r != nil {
			value = nil
			err = fmt.Errorf("%w: %v", ErrComputePanic, r)
		}
	}()
	return compute(ctx, in)
}

// CachedResult returns a node's last known result without computing.
//
// Description:
//
//	The cache is probed first and the probe counts toward hit/miss stats.
//	On a cache miss (evicted or invalidated entry) the engine falls back
//	to its own result handle. stale is true when the node is currently
//	dirty, meaning the payload predates the latest change.
//
// Outputs:
//
//	value - The last result, nil if the node never computed.
//	stale - True when the node is dirty and the payload may be outdated.
//	ok - True when a payload was found.
func (e *Engine) CachedResult(ctx context.Context, id graph.NodeID) (value any, stale bool, ok bool) {
	e.mu.Lock()
	st, exists := e.states[id]
	if !exists {
		e.mu.Unlock()
		return nil, false, false
	}
	dirty := st.state != StateClean
	handle, hasHandle := st.result, st.hasResult
	enabled := e.enabled
	e.mu.Unlock()

	if enabled {
		if v, hit := e.cache.Get(ctx, id); hit {
			return v, dirty, true
		}
	}
	if hasHandle {
		return handle, dirty, true
	}
	return nil, false, false
}

// Info returns the diagnostic snapshot of a node's evaluation state.
func (e *Engine) Info(id graph.NodeID) (NodeInfo, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	st, ok := e.states[id]
	if !ok {
		return NodeInfo{}, false
	}
	n, _ := e.graph.Node(id)
	return NodeInfo{
		ID:            id,
		Name:          n.Name,
		State:         st.state,
		DirtySource:   st.dirtySource,
		Evaluations:   st.evaluations,
		LastEvaluated: st.lastEvaluated,
	}, true
}

// DirtyCount returns the number of nodes currently marked dirty.
func (e *Engine) DirtyCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, st := range e.states {
		if st.state == StateDirty {
			n++
		}
	}
	return n
}

// NodeCount returns the number of registered nodes.
func (e *Engine) NodeCount() int { return e.graph.NodeCount() }

// Contains reports whether the node is registered.
func (e *Engine) Contains(id graph.NodeID) bool { return e.graph.Contains(id) }

// DirectDependents returns the nodes that depend directly on id, sorted.
func (e *Engine) DirectDependents(id graph.NodeID) []graph.NodeID {
	return e.graph.DirectDependents(id)
}

// AllDependents returns the transitive dependents of id, sorted. Safe on
// cyclic graphs.
func (e *Engine) AllDependents(id graph.NodeID) []graph.NodeID {
	return e.graph.AllDependents(id)
}

// CacheStats returns a snapshot of result cache counters.
func (e *Engine) CacheStats() cache.Stats { return e.cache.Stats() }

// Metrics returns a snapshot of engine counters.
func (e *Engine) Metrics() Metrics {
	return Metrics{
		TotalEvaluations:  e.totalEvaluations.Load(),
		TotalFailures:     e.totalFailures.Load(),
		DirtyNodes:        e.DirtyCount(),
		LastPassDuration:  time.Duration(e.lastPassDuration.Load()),
		LastPassEvaluated: int(e.lastPassEvaluated.Load()),
	}
}

// SetObserver installs the per-node completion hook. Pass nil to remove it.
func (e *Engine) SetObserver(obs Observer) {
	e.mu.Lock()
	e.observer = obs
	e.mu.Unlock()
}

// SetEnabled toggles cache participation. A disabled engine still runs
// passes but results bypass the cache.
func (e *Engine) SetEnabled(enabled bool) {
	e.mu.Lock()
	e.enabled = enabled
	e.mu.Unlock()
}

// Enabled reports whether the cache is in use.
func (e *Engine) Enabled() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.enabled
}

// Close releases the engine deterministically: the cache is purged and the
// capabilities are closed. Further mutations and passes return
// ErrEngineClosed. Idempotent.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.mu.Unlock()

	e.cache.Purge()
	return e.caps.Close()
}

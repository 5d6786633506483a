// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package cache

import (
	"container/list"
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aurorafx/aurora/services/engine/graph"
)

// ResultCache is a thread-safe bounded LRU over node results.
//
// Description:
//
//	Fixed-capacity cache keyed by graph.NodeID. Uses container/list for
//	O(1) access, touch, and eviction. Hit/miss/eviction counters are
//	atomics so Stats reads never contend with the access path.
//
// Performance:
//
//	| Operation  | Complexity |
//	|------------|------------|
//	| Get        | O(1)       |
//	| Put        | O(1)       |
//	| Invalidate | O(1)       |
//	| Purge      | O(n)       |
//
// Thread Safety: All methods are safe for concurrent use.
type ResultCache struct {
	mu      sync.Mutex
	maxSize int
	items   map[graph.NodeID]*list.Element
	order   *list.List // Front = most recent, Back = least recent
	policy  Policy

	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64
}

// New creates a ResultCache with the given capacity.
//
// Description:
//
//	Zero capacity is coerced to DefaultMaxSize. Negative capacity cannot be
//	coerced to anything meaningful and fails fast.
//
// Inputs:
//
//	maxSize - Maximum entry count. Zero means DefaultMaxSize; negative errors.
//
// Outputs:
//
//	*ResultCache - The cache. Nil only when error is non-nil.
//	error - ErrInvalidCapacity for negative maxSize.
//
// Thread Safety: The returned cache is safe for concurrent use.
func New(maxSize int) (*ResultCache, error) {
	if maxSize < 0 {
		return nil, ErrInvalidCapacity
	}
	if maxSize == 0 {
		maxSize = DefaultMaxSize
	}
	return &ResultCache{
		maxSize: maxSize,
		items:   make(map[graph.NodeID]*list.Element, maxSize),
		order:   list.New(),
		policy:  AlwaysFresh(),
	}, nil
}

// SetPolicy installs a staleness policy consulted by Get.
//
// Description:
//
//	Replaces the current policy. Nil restores the default no-expiry
//	policy. Existing entries are re-judged lazily on their next Get.
//
// Thread Safety: Safe for concurrent use.
func (c *ResultCache) SetPolicy(p Policy) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if p == nil {
		p = AlwaysFresh()
	}
	c.policy = p
}

// Get returns the cached payload for id, if present and admissible.
//
// Description:
//
//	A found entry is moved to the front of the LRU order (touched). An
//	entry the policy refuses is dropped and the lookup counts as a miss.
//	Hit or miss is recorded in both the local counters and the package
//	metrics.
//
// Inputs:
//
//	ctx - Context for metric attribution. Must not be nil.
//	id - The node whose result is wanted.
//
// Outputs:
//
//	any - The payload (nil if not found).
//	bool - True on a hit.
//
// Thread Safety: Safe for concurrent use.
func (c *ResultCache) Get(ctx context.Context, id graph.NodeID) (any, bool) {
	c.mu.Lock()
	elem, ok := c.items[id]
	if !ok {
		c.mu.Unlock()
		c.misses.Add(1)
		recordMiss(ctx)
		return nil, false
	}

	ent := elem.Value.(*entry)
	if !c.policy.Admit(Entry{ID: ent.id, Payload: ent.payload, StoredAt: ent.storedAt}) {
		c.removeElement(elem)
		c.mu.Unlock()
		c.misses.Add(1)
		recordMiss(ctx)
		return nil, false
	}

	c.order.MoveToFront(elem)
	payload := ent.payload
	c.mu.Unlock()

	c.hits.Add(1)
	recordHit(ctx)
	return payload, true
}

// Put inserts or overwrites the payload for id.
//
// Description:
//
//	Overwriting an existing entry refreshes its recency and timestamp.
//	When the cache is at capacity, the least-recently-accessed entry is
//	evicted first; entries that have never been touched fall out oldest
//	insertion first, because new entries always enter at the front.
//	The size bound holds after every call.
//
// Thread Safety: Safe for concurrent use.
func (c *ResultCache) Put(ctx context.Context, id graph.NodeID, payload any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[id]; ok {
		c.order.MoveToFront(elem)
		ent := elem.Value.(*entry)
		ent.payload = payload
		ent.storedAt = time.Now()
		return
	}

	if c.order.Len() >= c.maxSize {
		c.evictOldest(ctx)
	}

	elem := c.order.PushFront(&entry{id: id, payload: payload, storedAt: time.Now()})
	c.items[id] = elem
}

// Invalidate removes the entry for id without counting a miss.
//
// Description:
//
//	Used when a node is marked dirty or removed: the absence of the entry
//	is expected, so statistics are untouched.
//
// Outputs:
//
//	bool - True if an entry was removed.
//
// Thread Safety: Safe for concurrent use.
func (c *ResultCache) Invalidate(id graph.NodeID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[id]
	if !ok {
		return false
	}
	c.removeElement(elem)
	return true
}

// Purge clears all entries and resets the counters.
//
// Thread Safety: Safe for concurrent use.
func (c *ResultCache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = make(map[graph.NodeID]*list.Element, c.maxSize)
	c.order.Init()
	c.hits.Store(0)
	c.misses.Store(0)
	c.evictions.Store(0)
}

// Len returns the current entry count.
//
// Thread Safety: Safe for concurrent use.
func (c *ResultCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Stats returns a snapshot of the cache accounting.
//
// Thread Safety: Safe for concurrent use.
func (c *ResultCache) Stats() Stats {
	c.mu.Lock()
	size := c.order.Len()
	maxSize := c.maxSize
	c.mu.Unlock()

	return Stats{
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Evictions: c.evictions.Load(),
		Size:      size,
		MaxSize:   maxSize,
	}
}

// evictOldest removes the least recently used entry.
// Caller must hold the lock.
func (c *ResultCache) evictOldest(ctx context.Context) {
	if elem := c.order.Back(); elem != nil {
		c.removeElement(elem)
		c.evictions.Add(1)
		recordEviction(ctx)
	}
}

// removeElement removes an element from both the list and the map.
// Caller must hold the lock.
func (c *ResultCache) removeElement(elem *list.Element) {
	c.order.Remove(elem)
	ent := elem.Value.(*entry)
	delete(c.items, ent.id)
}

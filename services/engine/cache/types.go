// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package cache provides the bounded result cache for the evaluation engine.
//
// The cache maps node ids to the opaque payloads their computations produced.
// It is a pure LRU: when an insertion would exceed the configured capacity,
// the least-recently-accessed entry is evicted (ties broken by insertion
// order, oldest first). Staleness rules beyond recency are expressed through
// the Policy interface so a TTL scheme can be layered on later without
// changing the Get/Put contract.
//
// # Ownership Model
//
// The cache owns its entries but not node lifecycle: when the engine removes
// a node it must call Invalidate explicitly. There is no back-reference from
// the cache to the graph.
package cache

import (
	"errors"
	"time"

	"github.com/aurorafx/aurora/services/engine/graph"
)

// ErrInvalidCapacity is returned when a negative capacity is given at
// construction. Zero is coerced to the default; negative fails fast.
var ErrInvalidCapacity = errors.New("cache capacity must not be negative")

// DefaultMaxSize is the capacity used when the caller passes zero.
const DefaultMaxSize = 1024

// Stats is a point-in-time snapshot of cache accounting.
type Stats struct {
	// Hits is the number of Get calls that returned a live entry.
	Hits int64

	// Misses is the number of Get calls that found nothing (or a payload
	// the policy refused). Invalidate never counts as a miss.
	Misses int64

	// Evictions is the number of entries removed by capacity pressure.
	Evictions int64

	// Size is the current entry count.
	Size int

	// MaxSize is the configured capacity bound.
	MaxSize int
}

// HitRate returns hits / (hits + misses), or 0 when no accesses occurred.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// entry is a stored payload plus the bookkeeping LRU and policies need.
type entry struct {
	id       graph.NodeID
	payload  any
	storedAt time.Time
}

// Entry is the read-only view of a cache entry handed to policies.
type Entry struct {
	// ID is the node the payload belongs to.
	ID graph.NodeID

	// Payload is the opaque computation result.
	Payload any

	// StoredAt is when the entry was written.
	StoredAt time.Time
}

// Policy decides whether a stored entry may still be served.
//
// Description:
//
//	Consulted by Get after the entry is found. Returning false makes the
//	lookup a miss and drops the entry, without any change to the Get/Put
//	signatures. The default policy serves everything; TTLPolicy expires by
//	age. Implementations must be safe for concurrent use.
type Policy interface {
	// Admit reports whether the entry may be served.
	Admit(e Entry) bool
}

// alwaysFresh serves every stored entry. The default policy.
type alwaysFresh struct{}

func (alwaysFresh) Admit(Entry) bool { return true }

// AlwaysFresh returns the default no-expiry policy.
func AlwaysFresh() Policy { return alwaysFresh{} }

// TTLPolicy expires entries older than TTL.
//
// Description:
//
//	Layered staleness: the LRU bound still governs capacity; this policy
//	additionally refuses entries whose age exceeds TTL, turning the lookup
//	into a miss. now is injectable for tests and defaults to time.Now.
type TTLPolicy struct {
	// TTL is the maximum entry age. Must be > 0.
	TTL time.Duration

	// Now overrides the clock. Nil means time.Now.
	Now func() time.Time
}

// Admit reports whether the entry is younger than TTL.
func (p TTLPolicy) Admit(e Entry) bool {
	now := time.Now
	if p.Now != nil {
		now = p.Now
	}
	return now().Sub(e.StoredAt) < p.TTL
}

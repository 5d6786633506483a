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
	"log/slog"
	"runtime"
	"sync"
	"time"
)

// memoryMonitor samples the heap in the background so memory breaches are
// caught even when no nodes are completing.
//
// Thread Safety: Run should only be called once, from a goroutine.
type memoryMonitor struct {
	state    *ExecutionState
	limit    int64
	interval time.Duration
	logger   *slog.Logger
}

// Run starts the sampling loop and blocks until stopCh closes.
func (m *memoryMonitor) Run(stopCh <-chan struct{}, wg *sync.WaitGroup) {
	defer wg.Done()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.logger.Debug("memory monitor started",
		slog.Duration("interval", m.interval),
		slog.Int64("limit_bytes", m.limit),
	)

	for {
		select {
		case <-stopCh:
			m.logger.Debug("memory monitor stopped")
			return
		case <-ticker.C:
			m.sample()
		}
	}
}

// sample reads the heap and latches the memory breach flag when over limit.
func (m *memoryMonitor) sample() {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)
	alloc := int64(memStats.Alloc)
	m.state.setMemorySample(alloc)

	if alloc > m.limit {
		if !m.state.memoryBreach.Load() {
			m.logger.Warn("memory guardrail breached",
				slog.Int64("heap_bytes", alloc),
				slog.Int64("limit_bytes", m.limit),
			)
		}
		m.state.breach(BreachMemory)
	}
}

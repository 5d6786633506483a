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
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

var (
	tracer = otel.Tracer("aurora.engine.eval")
	meter  = otel.Meter("aurora.engine.eval")
)

// initMetrics lazily initializes metrics.
// Logs errors if metric creation fails but continues execution (graceful degradation).
func (e *Engine) initMetrics() {
	e.metricsOnce.Do(func() {
		var initErrors []string

		var err error
		e.nodeLatency, err = meter.Float64Histogram("engine_node_duration_seconds",
			metric.WithDescription("Time spent computing each node"),
			metric.WithUnit("s"),
		)
		if err != nil {
			initErrors = append(initErrors, "node_latency: "+err.Error())
		}

		e.nodeSuccesses, err = meter.Int64Counter("engine_node_success_total",
			metric.WithDescription("Number of successful node computations"),
		)
		if err != nil {
			initErrors = append(initErrors, "node_successes: "+err.Error())
		}

		e.nodeFailures, err = meter.Int64Counter("engine_node_failure_total",
			metric.WithDescription("Number of failed node computations"),
		)
		if err != nil {
			initErrors = append(initErrors, "node_failures: "+err.Error())
		}

		e.passLatency, err = meter.Float64Histogram("engine_pass_duration_seconds",
			metric.WithDescription("Total evaluation pass time"),
			metric.WithUnit("s"),
		)
		if err != nil {
			initErrors = append(initErrors, "pass_latency: "+err.Error())
		}

		e.dirtyGauge, err = meter.Int64UpDownCounter("engine_dirty_nodes",
			metric.WithDescription("Number of nodes currently marked dirty"),
		)
		if err != nil {
			initErrors = append(initErrors, "dirty_gauge: "+err.Error())
		}

		if len(initErrors) > 0 {
			e.logger.Error("failed to initialize some engine metrics (observability degraded)",
				slog.Int("failed_count", len(initErrors)),
				slog.Any("errors", initErrors),
			)
		}
	})
}

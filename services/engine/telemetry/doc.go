// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package telemetry provides OpenTelemetry-based observability for the
// evaluation engine.
//
// This package initializes the OTel SDK with opinionated defaults for
// tracing and metrics, while allowing backend flexibility through exporter
// configuration. Engine packages use otel.Tracer() and otel.Meter()
// directly; swapping backends is a configuration change, not a code change.
//
// # Trace Backend (default: OTLP)
//
// Traces export over OTLP gRPC by default, which any OTLP-compatible
// collector can receive. Use "stdout" during development or "none" to
// disable tracing entirely.
//
// # Metrics Backend (default: Prometheus)
//
// Prometheus is the default metrics backend. Metrics are exposed via
// MetricsHandler() for scraping; the host mounts it wherever it serves
// HTTP.
//
// # Environment Variables
//
// Standard OTel environment variables are supported:
//
//   - OTEL_EXPORTER_OTLP_ENDPOINT: OTLP endpoint (default: localhost:4317)
//   - OTEL_TRACES_EXPORTER: otlp, stdout, or none (default: otlp)
//   - OTEL_METRICS_EXPORTER: prometheus, otlp, stdout, or none (default: prometheus)
//   - AURORA_ENV: environment name (default: development)
//
// # Thread Safety
//
// Init should be called once at startup. All other exported functions are
// safe for concurrent use.
package telemetry

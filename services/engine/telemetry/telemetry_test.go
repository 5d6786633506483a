// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package telemetry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.ServiceName != "aurora-engine" {
		t.Errorf("ServiceName = %q, want %q", cfg.ServiceName, "aurora-engine")
	}
	if cfg.TraceExporter != "otlp" {
		t.Errorf("TraceExporter = %q, want %q", cfg.TraceExporter, "otlp")
	}
	if cfg.MetricExporter != "prometheus" {
		t.Errorf("MetricExporter = %q, want %q", cfg.MetricExporter, "prometheus")
	}
	if cfg.OTLPEndpoint != "localhost:4317" {
		t.Errorf("OTLPEndpoint = %q, want %q", cfg.OTLPEndpoint, "localhost:4317")
	}
}

func TestDefaultConfig_EnvOverrides(t *testing.T) {
	t.Setenv("AURORA_ENV", "production")
	t.Setenv("OTEL_TRACES_EXPORTER", "stdout")

	cfg := DefaultConfig()
	if cfg.Environment != "production" {
		t.Errorf("Environment = %q, want production", cfg.Environment)
	}
	if cfg.TraceExporter != "stdout" {
		t.Errorf("TraceExporter = %q, want stdout", cfg.TraceExporter)
	}
}

func TestInit_NilContext(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TraceExporter = "none"

	if _, err := Init(nil, cfg); !errors.Is(err, ErrNilContext) {
		t.Errorf("Init(nil, cfg) error = %v, want ErrNilContext", err)
	}
}

func TestInit_DisabledExporters(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TraceExporter = "none"
	cfg.MetricExporter = "none"

	shutdown, err := Init(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("shutdown failed: %v", err)
	}
}

// Every exporter value the engine config schema accepts must initialize.
// The otlp exporters connect lazily, so no receiver is needed here; shutdown
// may fail to flush without one and is called for cleanup only.
func TestInit_ExporterMatrix(t *testing.T) {
	cases := []struct {
		name   string
		trace  string
		metric string
	}{
		{"trace-none", "none", "none"},
		{"trace-stdout", "stdout", "none"},
		{"trace-otlp", "otlp", "none"},
		{"metric-stdout", "none", "stdout"},
		{"metric-otlp", "none", "otlp"},
		{"metric-prometheus", "none", "prometheus"},
		{"both-otlp", "otlp", "otlp"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.TraceExporter = tc.trace
			cfg.MetricExporter = tc.metric

			shutdown, err := Init(context.Background(), cfg)
			if err != nil {
				t.Fatalf("Init(%s/%s) failed: %v", tc.trace, tc.metric, err)
			}

			ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
			defer cancel()
			_ = shutdown(ctx)
		})
	}
}

func TestInit_UnknownExporter(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TraceExporter = "smoke-signals"
	cfg.MetricExporter = "none"

	if _, err := Init(context.Background(), cfg); !errors.Is(err, ErrUnknownExporter) {
		t.Errorf("got %v, want ErrUnknownExporter", err)
	}
}

func TestMetricsHandler_NilWithoutPrometheus(t *testing.T) {
	prometheusHandlerMu.Lock()
	prometheusHandler = nil
	prometheusHandlerMu.Unlock()

	if h := MetricsHandler(); h != nil {
		t.Error("MetricsHandler should be nil before prometheus init")
	}
}

// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command engine runs a small animated-parameter demo against the
// incremental evaluation engine: a time node drives a transform chain and a
// color ramp, only the dirtied subgraph recomputes each frame, and the
// engine reports cache and evaluation counters on exit.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/time/rate"

	"github.com/aurorafx/aurora/pkg/logging"
	"github.com/aurorafx/aurora/services/engine/config"
	"github.com/aurorafx/aurora/services/engine/eval"
	"github.com/aurorafx/aurora/services/engine/graph"
	"github.com/aurorafx/aurora/services/engine/guard"
	"github.com/aurorafx/aurora/services/engine/telemetry"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "engine:", err)
		os.Exit(1)
	}
}

func run() error {
	frames := flag.Int("frames", 120, "number of frames to evaluate")
	fps := flag.Float64("fps", 30, "frame pacing")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Get(ctx)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := logging.New(logging.Config{
		Level:   logging.ParseLevel(cfg.Logging.Level),
		LogDir:  cfg.Logging.Dir,
		Service: "engine",
		JSON:    cfg.Logging.JSON,
	})
	defer logger.Close()
	log := logger.Slog()

	tcfg := telemetry.DefaultConfig()
	tcfg.MetricExporter = cfg.Telemetry.Exporter
	tcfg.TraceExporter = cfg.Telemetry.Exporter
	if cfg.Telemetry.Exporter == "prometheus" {
		// Prometheus only does metrics; traces stay off.
		tcfg.TraceExporter = "none"
	}
	if cfg.Telemetry.Endpoint != "" {
		tcfg.OTLPEndpoint = cfg.Telemetry.Endpoint
	}
	shutdown, err := telemetry.Init(ctx, tcfg)
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer shutdown(context.Background())

	if cfg.Telemetry.MetricsAddr != "" {
		if handler := telemetry.MetricsHandler(); handler != nil {
			mux := http.NewServeMux()
			mux.Handle("/metrics", handler)
			go func() {
				if err := http.ListenAndServe(cfg.Telemetry.MetricsAddr, mux); err != nil {
					log.Error("metrics server stopped", slog.String("error", err.Error()))
				}
			}()
			log.Info("metrics exposed", slog.String("addr", cfg.Telemetry.MetricsAddr))
		}
	}

	engine, err := eval.New(eval.Options{
		CacheSize: cfg.CacheMaxSize,
		Logger:    log,
		Disabled:  !cfg.Enabled,
	})
	if err != nil {
		return fmt.Errorf("creating engine: %w", err)
	}
	guarded, err := guard.NewContext(engine, cfg.GuardrailConfig(), log)
	if err != nil {
		return fmt.Errorf("creating guard context: %w", err)
	}
	defer guarded.Close()

	if err := buildDemoGraph(guarded); err != nil {
		return fmt.Errorf("building demo graph: %w", err)
	}

	limiter := rate.NewLimiter(rate.Limit(*fps), 1)
	start := time.Now()

	for frame := 0; frame < *frames; frame++ {
		if err := limiter.Wait(ctx); err != nil {
			log.Info("stopping", slog.String("reason", err.Error()))
			break
		}

		// Only the time node changes between frames; everything
		// downstream re-evaluates, the rest is served from cache state.
		if err := guarded.MarkDirty("time"); err != nil {
			return fmt.Errorf("marking frame dirty: %w", err)
		}
		// Every few seconds a user asks for a ramp refresh.
		if frame > 0 && frame%90 == 0 {
			if err := guarded.Engine().MarkDirtyWithSource("ramp", eval.SourceManual); err != nil {
				return fmt.Errorf("refreshing ramp: %w", err)
			}
		}
		res, err := guarded.Evaluate(ctx)
		if err != nil {
			return fmt.Errorf("frame %d: %w", frame, err)
		}
		if res.Cancelled {
			break
		}
		if frame%30 == 0 {
			v, _, _ := guarded.CachedResult(ctx, "composite")
			log.Info("frame",
				slog.Int("n", frame),
				slog.Int("evaluated", res.Evaluated),
				slog.Any("composite", v),
			)
		}
	}

	m := guarded.Metrics()
	cs := guarded.CacheStats()
	log.Info("demo finished",
		slog.Duration("wall", time.Since(start)),
		slog.Int64("evaluations", m.TotalEvaluations),
		slog.Int64("failures", m.TotalFailures),
		slog.Float64("cache_hit_rate", cs.HitRate()),
		slog.Int64("cache_evictions", cs.Evictions),
		slog.Bool("within_limits", guarded.State().IsWithinLimits()),
	)
	return nil
}

// buildDemoGraph registers a miniature motion-graphics patch: an animated
// time source, a transform chain driven by it, a static color ramp, and a
// composite that reads both.
func buildDemoGraph(c *guard.Context) error {
	var frame int
	nodes := []struct {
		id      graph.NodeID
		name    string
		compute eval.ComputeFunc
		deps    []graph.NodeID
	}{
		{
			id: "time", name: "timeline clock",
			compute: func(ctx context.Context, in eval.Inputs) (any, error) {
				frame++
				return float64(frame) / 30.0, nil
			},
		},
		{
			id: "rotation", name: "rotation driver",
			compute: func(ctx context.Context, in eval.Inputs) (any, error) {
				t, _ := in.Value("time")
				return math.Mod(t.(float64)*45.0, 360.0), nil
			},
			deps: []graph.NodeID{"time"},
		},
		{
			id: "scale", name: "pulse scale",
			compute: func(ctx context.Context, in eval.Inputs) (any, error) {
				t, _ := in.Value("time")
				return 1.0 + 0.25*math.Sin(t.(float64)*2*math.Pi), nil
			},
			deps: []graph.NodeID{"time"},
		},
		{
			id: "ramp", name: "color ramp",
			compute: func(ctx context.Context, in eval.Inputs) (any, error) {
				// Static between manual refreshes.
				return []string{"#1a2b3c", "#e0ffff"}, nil
			},
		},
		{
			id: "composite", name: "composite output",
			compute: func(ctx context.Context, in eval.Inputs) (any, error) {
				rot, _ := in.Value("rotation")
				scl, _ := in.Value("scale")
				return fmt.Sprintf("rot=%.1f scale=%.2f", rot, scl), nil
			},
			deps: []graph.NodeID{"rotation", "scale", "ramp"},
		},
	}

	for _, n := range nodes {
		if err := c.AddNode(n.id, n.name, n.compute, n.deps...); err != nil {
			return err
		}
	}
	return nil
}

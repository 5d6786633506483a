// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config provides configuration loading for the evaluation engine.
//
// The default configuration is embedded; AURORA_ENGINE_CONFIG points at a
// YAML file that replaces it wholesale. An unreadable or invalid override
// fails loading outright; it is never silently swapped for the default.
//
// Thread Safety:
//
//	All exported functions and types are safe for concurrent use.
package config

import (
	"context"
	_ "embed"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"gopkg.in/yaml.v3"

	"github.com/aurorafx/aurora/services/engine/guard"
)

// MaxYAMLFileSize is the maximum allowed config file size (1MB).
const MaxYAMLFileSize = 1024 * 1024

// EnvConfigPath names the environment variable that overrides the embedded
// default configuration.
const EnvConfigPath = "AURORA_ENGINE_CONFIG"

//go:embed engine.yaml
var defaultEngineYAML []byte

var (
	configLoadErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "engine_config_load_errors_total",
		Help: "Total engine config load errors",
	})

	configLoadDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "engine_config_load_duration_seconds",
		Help:    "Duration of engine config loading",
		Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5},
	})
)

var configTracer = otel.Tracer("aurora.engine.config")

// validate is the validator instance for config structs.
var validate *validator.Validate

func init() {
	validate = validator.New()
}

// EngineConfig is the root engine configuration.
type EngineConfig struct {
	// Enabled gates cache participation. A disabled engine still runs
	// passes but results bypass the cache.
	Enabled bool `yaml:"enabled"`

	// CacheMaxSize bounds the result cache. Zero selects the cache
	// package default.
	CacheMaxSize int `yaml:"cache_max_size" validate:"gte=0"`

	Guardrails GuardrailsConfig `yaml:"guardrails"`
	Logging    LoggingConfig    `yaml:"logging"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
}

// GuardrailsConfig carries the soft evaluation limits. Zero fields select
// the guard package defaults.
type GuardrailsConfig struct {
	MaxEvalTimeMS          int64 `yaml:"max_eval_time_ms" validate:"gte=0"`
	MaxMemoryMB            int64 `yaml:"max_memory_mb" validate:"gte=0"`
	MaxOperations          int64 `yaml:"max_operations" validate:"gte=0"`
	MemorySampleIntervalMS int64 `yaml:"memory_sample_interval_ms" validate:"gte=0"`
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	Level string `yaml:"level" validate:"omitempty,oneof=debug info warn error"`
	JSON  bool   `yaml:"json"`
	Dir   string `yaml:"dir"`
}

// TelemetryConfig configures trace and metric export.
type TelemetryConfig struct {
	Exporter    string `yaml:"exporter" validate:"omitempty,oneof=none stdout otlp prometheus"`
	Endpoint    string `yaml:"endpoint"`
	MetricsAddr string `yaml:"metrics_addr"`
}

// GuardrailConfig converts the YAML fields to a guard.GuardrailConfig.
func (c *EngineConfig) GuardrailConfig() guard.GuardrailConfig {
	return guard.GuardrailConfig{
		MaxEvalTime:          time.Duration(c.Guardrails.MaxEvalTimeMS) * time.Millisecond,
		MaxMemoryBytes:       c.Guardrails.MaxMemoryMB << 20,
		MaxOperations:        c.Guardrails.MaxOperations,
		MemorySampleInterval: time.Duration(c.Guardrails.MemorySampleIntervalMS) * time.Millisecond,
	}
}

var (
	configMu      sync.RWMutex
	configOnce    sync.Once
	cachedConfig  *EngineConfig
	configLoadErr error
)

// Get returns the cached engine configuration.
//
// Description:
//
//	Loads the configuration on first call and caches it. The embedded
//	default is used unless AURORA_ENGINE_CONFIG names a readable YAML
//	file.
//
// Inputs:
//
//	ctx - Context for tracing. Must not be nil.
//
// Outputs:
//
//	*EngineConfig - The loaded config. Never nil on success.
//	error - Non-nil if loading failed.
func Get(ctx context.Context) (*EngineConfig, error) {
	if ctx == nil {
		return nil, fmt.Errorf("config.Get: ctx must not be nil")
	}

	configMu.RLock()
	if cachedConfig != nil || configLoadErr != nil {
		cfg, err := cachedConfig, configLoadErr
		configMu.RUnlock()
		return cfg, err
	}
	configMu.RUnlock()

	configMu.Lock()
	defer configMu.Unlock()
	if cachedConfig != nil || configLoadErr != nil {
		return cachedConfig, configLoadErr
	}

	configOnce.Do(func() {
		cachedConfig, configLoadErr = load(ctx)
	})
	return cachedConfig, configLoadErr
}

// Reset clears the cached config so the next Get reloads it.
//
// WARNING: Intended for testing only.
func Reset() {
	configMu.Lock()
	defer configMu.Unlock()
	configOnce = sync.Once{}
	cachedConfig = nil
	configLoadErr = nil
}

// load reads, parses, and validates the configuration.
func load(ctx context.Context) (*EngineConfig, error) {
	_, span := configTracer.Start(ctx, "config.Load")
	defer span.End()

	start := time.Now()
	defer func() {
		configLoadDuration.Observe(time.Since(start).Seconds())
	}()

	raw := defaultEngineYAML
	source := "embedded"
	if path := os.Getenv(EnvConfigPath); path != "" {
		data, err := readConfigFile(path)
		if err != nil {
			configLoadErrors.Inc()
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}
		raw = data
		source = path
	}
	span.SetAttributes(attribute.String("config.source", source))

	cfg, err := Parse(raw)
	if err != nil {
		configLoadErrors.Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetStatus(codes.Ok, "")
	return cfg, nil
}

// Parse decodes and validates YAML config bytes.
func Parse(raw []byte) (*EngineConfig, error) {
	var cfg EngineConfig
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parsing engine config: %w", err)
	}
	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("validating engine config: %w", err)
	}
	return &cfg, nil
}

// readConfigFile reads a config file with a size ceiling.
func readConfigFile(path string) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.Size() > MaxYAMLFileSize {
		return nil, fmt.Errorf("config file %s exceeds %d bytes", path, MaxYAMLFileSize)
	}
	return os.ReadFile(path)
}

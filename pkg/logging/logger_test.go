// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package logging

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLevel_String(t *testing.T) {
	cases := map[Level]string{
		LevelDebug: "DEBUG",
		LevelInfo:  "INFO",
		LevelWarn:  "WARN",
		LevelError: "ERROR",
		Level(99):  "UNKNOWN",
	}
	for level, want := range cases {
		if got := level.String(); got != want {
			t.Errorf("Level(%d).String() = %q, want %q", level, got, want)
		}
	}
}

func TestLevel_toSlogLevel(t *testing.T) {
	cases := map[Level]slog.Level{
		LevelDebug: slog.LevelDebug,
		LevelInfo:  slog.LevelInfo,
		LevelWarn:  slog.LevelWarn,
		LevelError: slog.LevelError,
		Level(99):  slog.LevelInfo,
	}
	for level, want := range cases {
		if got := level.toSlogLevel(); got != want {
			t.Errorf("Level(%d).toSlogLevel() = %v, want %v", level, got, want)
		}
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]Level{
		"debug": LevelDebug,
		"info":  LevelInfo,
		"warn":  LevelWarn,
		"error": LevelError,
		"loud":  LevelInfo,
		"":      LevelInfo,
	}
	for s, want := range cases {
		if got := ParseLevel(s); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", s, got, want)
		}
	}
}

func TestNew_DefaultConfig(t *testing.T) {
	logger := New(Config{})
	defer logger.Close()

	if logger.slog == nil {
		t.Fatal("logger.slog is nil")
	}
	if logger.file != nil {
		t.Error("file handle set without LogDir")
	}
}

func TestNew_QuietModeStillLogs(t *testing.T) {
	logger := New(Config{Quiet: true})
	defer logger.Close()

	// Quiet with no file falls back to stderr rather than dropping logs.
	if logger.slog == nil {
		t.Fatal("logger.slog is nil")
	}
	logger.Info("quiet logger message")
}

func TestNew_WithLogDir(t *testing.T) {
	dir := t.TempDir()
	logger := New(Config{
		LogDir:  dir,
		Service: "engine",
	})

	logger.Info("file log entry", "key", "value")
	if err := logger.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	wantName := "engine_" + time.Now().Format("2006-01-02") + ".log"
	data, err := os.ReadFile(filepath.Join(dir, wantName))
	if err != nil {
		t.Fatalf("reading log file: %v", err)
	}
	if !strings.Contains(string(data), "file log entry") {
		t.Error("log file missing entry")
	}
	if !strings.Contains(string(data), `"service":"engine"`) {
		t.Error("log file missing service attribute")
	}
}

func TestNew_WithLogDir_NoService(t *testing.T) {
	dir := t.TempDir()
	logger := New(Config{LogDir: dir})
	logger.Info("entry")
	logger.Close()

	files, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("reading dir: %v", err)
	}
	found := false
	for _, f := range files {
		if strings.HasPrefix(f.Name(), "aurora_") {
			found = true
		}
	}
	if !found {
		t.Error("expected log file with 'aurora_' prefix")
	}
}

func TestNew_WithLogDir_InvalidPath(t *testing.T) {
	// Unwritable path: the logger degrades to stderr-only, never panics.
	logger := New(Config{LogDir: "/proc/definitely/not/writable"})
	defer logger.Close()
	logger.Info("still works")
}

func TestDefault(t *testing.T) {
	logger := Default()
	defer logger.Close()

	if logger.config.Service != "aurora" {
		t.Errorf("Default service = %q, want aurora", logger.config.Service)
	}
	if logger.config.Level != LevelInfo {
		t.Errorf("Default level = %v, want LevelInfo", logger.config.Level)
	}
}

func TestLogger_With(t *testing.T) {
	parent := New(Config{Quiet: true})
	defer parent.Close()

	child := parent.With("pass_id", "abc123")
	if child == parent {
		t.Error("With returned the parent logger")
	}
	if child.slog == parent.slog {
		t.Error("With did not derive a new slog.Logger")
	}
	child.Info("from child")
	parent.Info("from parent")
}

func TestLogger_Slog(t *testing.T) {
	logger := New(Config{Quiet: true})
	defer logger.Close()

	if logger.Slog() == nil {
		t.Fatal("Slog() returned nil")
	}
	logger.Slog().Info("direct slog usage")
}

func TestLogger_CloseIdempotent(t *testing.T) {
	dir := t.TempDir()
	logger := New(Config{LogDir: dir})
	logger.Info("entry")

	if err := logger.Close(); err != nil {
		t.Fatalf("first Close failed: %v", err)
	}
	if err := logger.Close(); err != nil {
		t.Fatalf("second Close failed: %v", err)
	}
}

func TestLogger_LevelFiltering(t *testing.T) {
	dir := t.TempDir()
	logger := New(Config{
		Level:   LevelWarn,
		LogDir:  dir,
		Service: "engine",
		Quiet:   true,
	})

	logger.Debug("filtered debug")
	logger.Info("filtered info")
	logger.Warn("kept warn")
	logger.Error("kept error")
	logger.Close()

	wantName := "engine_" + time.Now().Format("2006-01-02") + ".log"
	data, err := os.ReadFile(filepath.Join(dir, wantName))
	if err != nil {
		t.Fatalf("reading log file: %v", err)
	}
	out := string(data)
	if strings.Contains(out, "filtered debug") || strings.Contains(out, "filtered info") {
		t.Error("below-level messages written to file")
	}
	if !strings.Contains(out, "kept warn") || !strings.Contains(out, "kept error") {
		t.Error("at-level messages missing from file")
	}
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skipf("no home dir: %v", err)
	}
	if got := expandPath("~/logs"); got != filepath.Join(home, "logs") {
		t.Errorf("expandPath(~/logs) = %q", got)
	}
	if got := expandPath("/var/log"); got != "/var/log" {
		t.Errorf("expandPath(/var/log) = %q", got)
	}
	if got := expandPath("relative/path"); got != "relative/path" {
		t.Errorf("expandPath(relative/path) = %q", got)
	}
}

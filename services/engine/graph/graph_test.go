// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package graph

import (
	"errors"
	"fmt"
	"sync"
	"testing"
)

func TestGraph_AddNode(t *testing.T) {
	g := New()

	if err := g.AddNode("a", "Gradient", "b", "c"); err != nil {
		t.Fatalf("AddNode failed: %v", err)
	}
	if g.NodeCount() != 1 {
		t.Errorf("Expected 1 node, got %d", g.NodeCount())
	}

	node, ok := g.Node("a")
	if !ok {
		t.Fatal("Node(a) not found after AddNode")
	}
	if node.Name != "Gradient" {
		t.Errorf("Expected name Gradient, got %q", node.Name)
	}
	if len(node.Dependencies) != 2 {
		t.Errorf("Expected 2 dependencies, got %d", len(node.Dependencies))
	}
}

func TestGraph_AddNodeEmptyID(t *testing.T) {
	g := New()
	if err := g.AddNode("", "nameless"); !errors.Is(err, ErrInvalidNode) {
		t.Errorf("Expected ErrInvalidNode, got %v", err)
	}
}

func TestGraph_AddNodeUnknownDependenciesTolerated(t *testing.T) {
	g := New()

	// "b" and "c" are never registered; construction must not block on that.
	if err := g.AddNode("a", "", "b", "c"); err != nil {
		t.Fatalf("AddNode with unknown deps failed: %v", err)
	}
	deps, ok := g.Dependencies("a")
	if !ok || len(deps) != 2 {
		t.Fatalf("Expected 2 recorded deps, got %v (ok=%v)", deps, ok)
	}
}

func TestGraph_AddNodeReRegistrationReplacesDeps(t *testing.T) {
	g := New()
	g.AddNode("b", "")
	g.AddNode("c", "")
	g.AddNode("a", "", "b")

	// Re-register with a different dependency set.
	if err := g.AddNode("a", "", "c"); err != nil {
		t.Fatalf("re-registration failed: %v", err)
	}

	deps, _ := g.Dependencies("a")
	if len(deps) != 1 || deps[0] != "c" {
		t.Errorf("Expected deps [c], got %v", deps)
	}
	if got := g.DirectDependents("b"); len(got) != 0 {
		t.Errorf("Stale reverse edge survived re-registration: %v", got)
	}
	if got := g.DirectDependents("c"); len(got) != 1 || got[0] != "a" {
		t.Errorf("Expected dependents of c == [a], got %v", got)
	}
	if g.NodeCount() != 3 {
		t.Errorf("Re-registration changed node count: %d", g.NodeCount())
	}
}

func TestGraph_AddNodeCollapsesDuplicateDeps(t *testing.T) {
	g := New()
	g.AddNode("a", "", "b", "b", "c", "b")

	deps, _ := g.Dependencies("a")
	if len(deps) != 2 || deps[0] != "b" || deps[1] != "c" {
		t.Errorf("Expected deps [b c], got %v", deps)
	}
}

func TestGraph_AddDependency(t *testing.T) {
	g := New()
	g.AddNode("a", "")

	if err := g.AddDependency("a", "b"); err != nil {
		t.Fatalf("AddDependency failed: %v", err)
	}
	// Idempotent.
	if err := g.AddDependency("a", "b"); err != nil {
		t.Fatalf("duplicate AddDependency failed: %v", err)
	}

	deps, _ := g.Dependencies("a")
	if len(deps) != 1 {
		t.Errorf("Expected 1 dep after duplicate add, got %v", deps)
	}
}

func TestGraph_AddDependencyUnknownDependent(t *testing.T) {
	g := New()
	if err := g.AddDependency("ghost", "b"); !errors.Is(err, ErrNodeNotFound) {
		t.Errorf("Expected ErrNodeNotFound, got %v", err)
	}
}

func TestGraph_RemoveNode(t *testing.T) {
	g := New()
	g.AddNode("hub", "")
	g.AddNode("x", "", "hub")
	g.AddNode("y", "", "hub")
	g.AddNode("z", "", "hub", "x")

	if !g.RemoveNode("hub") {
		t.Fatal("RemoveNode returned false for registered node")
	}
	if g.Contains("hub") {
		t.Error("Node still present after RemoveNode")
	}

	// The three dependents no longer reference the removed id.
	for _, id := range []NodeID{"x", "y", "z"} {
		deps, _ := g.Dependencies(id)
		for _, d := range deps {
			if d == "hub" {
				t.Errorf("Node %s still depends on removed hub", id)
			}
		}
	}
	if got := g.DirectDependents("hub"); len(got) != 0 {
		t.Errorf("Expected no dependents for removed node, got %v", got)
	}
}

func TestGraph_RemoveNodeUnknownIsNoop(t *testing.T) {
	g := New()
	if g.RemoveNode("ghost") {
		t.Error("RemoveNode returned true for unknown id")
	}
}

func TestGraph_NodeIDsSorted(t *testing.T) {
	g := New()
	for _, id := range []NodeID{"c", "a", "b"} {
		g.AddNode(id, "")
	}
	ids := g.NodeIDs()
	if len(ids) != 3 || ids[0] != "a" || ids[1] != "b" || ids[2] != "c" {
		t.Errorf("Expected sorted ids [a b c], got %v", ids)
	}
}

func TestGraph_ConcurrentMutation(t *testing.T) {
	g := New()

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			id := NodeID(fmt.Sprintf("n%d", n))
			g.AddNode(id, "")
			g.AddDependency(id, "shared")
			g.DirectDependents("shared")
			g.NodeCount()
		}(i)
	}
	wg.Wait()

	if g.NodeCount() != 32 {
		t.Errorf("Expected 32 nodes, got %d", g.NodeCount())
	}
	if got := g.DirectDependents("shared"); len(got) != 32 {
		t.Errorf("Expected 32 dependents of shared, got %d", len(got))
	}
}

// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package eval

import (
	"testing"

	"github.com/aurorafx/aurora/services/engine/graph"
)

func dirtySet(ids ...graph.NodeID) map[graph.NodeID]struct{} {
	s := make(map[graph.NodeID]struct{}, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

func indexOf(order []graph.NodeID, id graph.NodeID) int {
	for i, v := range order {
		if v == id {
			return i
		}
	}
	return -1
}

func TestEvaluationOrder_Chain(t *testing.T) {
	g := graph.New()
	g.AddNode("a", "a")
	g.AddNode("b", "b", "a")
	g.AddNode("c", "c", "b")

	order := evaluationOrder(g, dirtySet("a", "b", "c"))
	want := []graph.NodeID{"a", "b", "c"}
	if len(order) != len(want) {
		t.Fatalf("order length = %d, want %d", len(order), len(want))
	}
	for i, id := range want {
		if order[i] != id {
			t.Errorf("order[%d] = %s, want %s", i, order[i], id)
		}
	}
}

func TestEvaluationOrder_Diamond(t *testing.T) {
	g := graph.New()
	g.AddNode("root", "root")
	g.AddNode("left", "left", "root")
	g.AddNode("right", "right", "root")
	g.AddNode("sink", "sink", "left", "right")

	order := evaluationOrder(g, dirtySet("root", "left", "right", "sink"))
	if indexOf(order, "root") != 0 {
		t.Errorf("root should come first, got order %v", order)
	}
	if indexOf(order, "sink") != 3 {
		t.Errorf("sink should come last, got order %v", order)
	}
	// Ties break lexically, so the order is fully deterministic.
	if order[1] != "left" || order[2] != "right" {
		t.Errorf("expected lexical tie-break [left right], got %v", order[1:3])
	}
}

func TestEvaluationOrder_CleanDependencyImposesNoConstraint(t *testing.T) {
	g := graph.New()
	g.AddNode("a", "a")
	g.AddNode("b", "b", "a")

	// a is clean, so b has no dirty dependency and orders alone.
	order := evaluationOrder(g, dirtySet("b"))
	if len(order) != 1 || order[0] != "b" {
		t.Fatalf("order = %v, want [b]", order)
	}
}

func TestEvaluationOrder_CycleMembersAppendedOnce(t *testing.T) {
	g := graph.New()
	g.AddNode("a", "a", "c")
	g.AddNode("b", "b", "a")
	g.AddNode("c", "c", "b")
	g.AddNode("z", "z")

	order := evaluationOrder(g, dirtySet("a", "b", "c", "z"))
	if len(order) != 4 {
		t.Fatalf("order length = %d, want 4", len(order))
	}
	if order[0] != "z" {
		t.Errorf("acyclic node should order before cycle members, got %v", order)
	}
	// Cycle members appear exactly once each, in lexical order.
	want := []graph.NodeID{"a", "b", "c"}
	for i, id := range want {
		if order[1+i] != id {
			t.Errorf("order[%d] = %s, want %s", 1+i, order[1+i], id)
		}
	}
}

func TestEvaluationOrder_SelfLoopIgnored(t *testing.T) {
	g := graph.New()
	g.AddNode("a", "a", "a")

	order := evaluationOrder(g, dirtySet("a"))
	if len(order) != 1 || order[0] != "a" {
		t.Fatalf("order = %v, want [a]", order)
	}
}

func TestEvaluationOrder_EmptyDirtySet(t *testing.T) {
	g := graph.New()
	g.AddNode("a", "a")
	if order := evaluationOrder(g, nil); order != nil {
		t.Fatalf("order = %v, want nil", order)
	}
}

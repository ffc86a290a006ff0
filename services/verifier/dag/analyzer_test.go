// Copyright (C) 2025 Clearproof Labs (eng@clearproof.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package dag

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/clearproof/clearproof/services/verifier/datatypes"
)

func task(id string, timeout time.Duration, deps ...string) *datatypes.VerificationTask {
	return &datatypes.VerificationTask{
		ID:           id,
		Type:         datatypes.TaskTypeRuleVerification,
		Dependencies: deps,
		Timeout:      timeout,
	}
}

func TestBuild_Empty(t *testing.T) {
	_, err := Build(nil)
	if !errors.Is(err, ErrNoTasks) {
		t.Fatalf("err = %v, want ErrNoTasks", err)
	}
}

func TestBuild_DuplicateID(t *testing.T) {
	_, err := Build([]*datatypes.VerificationTask{
		task("a", time.Second),
		task("a", time.Second),
	})
	if !errors.Is(err, ErrDuplicateTask) {
		t.Fatalf("err = %v, want ErrDuplicateTask", err)
	}
}

func TestBuild_UnknownDependency(t *testing.T) {
	_, err := Build([]*datatypes.VerificationTask{
		task("a", time.Second, "ghost"),
	})
	if !errors.Is(err, ErrUnknownDependency) {
		t.Fatalf("err = %v, want ErrUnknownDependency", err)
	}
}

func TestBuild_CycleRejected(t *testing.T) {
	_, err := Build([]*datatypes.VerificationTask{
		task("a", time.Second, "b"),
		task("b", time.Second, "a"),
	})
	if !errors.Is(err, ErrCycleDetected) {
		t.Fatalf("err = %v, want ErrCycleDetected", err)
	}

	var cycleErr *CycleError
	if !errors.As(err, &cycleErr) {
		t.Fatal("expected *CycleError")
	}
	msg := err.Error()
	if !strings.Contains(msg, "a") || !strings.Contains(msg, "b") || !strings.Contains(msg, "->") {
		t.Errorf("diagnostic should name the cycle, got %q", msg)
	}
}

func TestBuild_SelfCycle(t *testing.T) {
	_, err := Build([]*datatypes.VerificationTask{
		task("a", time.Second, "a"),
	})
	if !errors.Is(err, ErrCycleDetected) {
		t.Fatalf("err = %v, want ErrCycleDetected", err)
	}
}

func TestLevels_IndependentTasks(t *testing.T) {
	g, err := Build([]*datatypes.VerificationTask{
		task("c", time.Second),
		task("a", time.Second),
		task("b", time.Second),
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	levels := g.Levels()
	if len(levels) != 1 {
		t.Fatalf("levels = %d, want 1", len(levels))
	}
	if len(levels[0]) != 3 {
		t.Fatalf("level 1 size = %d, want 3", len(levels[0]))
	}
	// Sorted for determinism.
	want := []string{"a", "b", "c"}
	for i, id := range levels[0] {
		if id != want[i] {
			t.Errorf("level[0][%d] = %s, want %s", i, id, want[i])
		}
	}
}

func TestLevels_DependenciesStrictlyEarlier(t *testing.T) {
	g, err := Build([]*datatypes.VerificationTask{
		task("a", time.Second),
		task("b", time.Second, "a"),
		task("c", time.Second, "a"),
		task("d", time.Second, "b", "c"),
		task("e", time.Second),
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	levels := g.Levels()
	levelOf := make(map[string]int)
	for i, level := range levels {
		for _, id := range level {
			levelOf[id] = i
		}
	}

	// Every dependency lies in a strictly earlier level.
	for _, level := range levels {
		for _, id := range level {
			tk, _ := g.Task(id)
			for _, dep := range tk.Dependencies {
				if levelOf[dep] >= levelOf[id] {
					t.Errorf("%s (level %d) depends on %s (level %d)", id, levelOf[id], dep, levelOf[dep])
				}
			}
		}
	}

	// No two tasks in one level depend on each other.
	for _, level := range levels {
		members := make(map[string]bool, len(level))
		for _, id := range level {
			members[id] = true
		}
		for _, id := range level {
			tk, _ := g.Task(id)
			for _, dep := range tk.Dependencies {
				if members[dep] {
					t.Errorf("%s and %s share a level but are dependent", id, dep)
				}
			}
		}
	}

	if levelOf["a"] != 0 || levelOf["e"] != 0 {
		t.Error("tasks with no dependencies must be in the first level")
	}
	if levelOf["d"] != 2 {
		t.Errorf("d at level %d, want 2", levelOf["d"])
	}
}

func TestCriticalPath(t *testing.T) {
	g, err := Build([]*datatypes.VerificationTask{
		task("a", 2*time.Second),
		task("b", 1*time.Second, "a"),
		task("c", 5*time.Second, "a"),
		task("d", 1*time.Second, "b"),
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	cp := g.CriticalPath()
	if cp.Weight != 7*time.Second {
		t.Errorf("Weight = %v, want 7s", cp.Weight)
	}
	want := []string{"a", "c"}
	if len(cp.TaskIDs) != len(want) {
		t.Fatalf("TaskIDs = %v, want %v", cp.TaskIDs, want)
	}
	for i, id := range want {
		if cp.TaskIDs[i] != id {
			t.Errorf("TaskIDs[%d] = %s, want %s", i, cp.TaskIDs[i], id)
		}
	}
}

func TestLevels_Deterministic(t *testing.T) {
	tasks := []*datatypes.VerificationTask{
		task("z", time.Second),
		task("m", time.Second, "z"),
		task("a", time.Second, "z"),
	}
	g1, _ := Build(tasks)
	g2, _ := Build(tasks)

	l1 := g1.Levels()
	l2 := g2.Levels()
	if len(l1) != len(l2) {
		t.Fatal("level counts differ")
	}
	for i := range l1 {
		if len(l1[i]) != len(l2[i]) {
			t.Fatalf("level %d sizes differ", i)
		}
		for j := range l1[i] {
			if l1[i][j] != l2[i][j] {
				t.Errorf("level %d pos %d differs: %s vs %s", i, j, l1[i][j], l2[i][j])
			}
		}
	}
}

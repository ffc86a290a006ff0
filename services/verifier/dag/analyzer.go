// Copyright (C) 2025 Clearproof Labs (eng@clearproof.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package dag analyzes the dependency graph of a verification run.
//
// # Description
//
// Tasks declare dependencies by id. The analyzer builds a directed
// graph (dependency → dependent), rejects cycles up front with a
// diagnostic naming the cycle, and computes ordered execution levels:
// every task's dependencies lie in strictly earlier levels, and tasks
// within one level have no dependency relationship among them. Tasks
// with no dependencies form the first level.
//
// The critical path (longest dependency chain weighted by per-task
// timeout) is computed for instrumentation only, never for
// correctness.
//
// # Thread Safety
//
// Graph is safe for concurrent read access after Build returns. Do
// not mutate the underlying tasks while analyzing.
package dag

import (
	"fmt"
	"sort"
	"time"

	"github.com/clearproof/clearproof/services/verifier/datatypes"
)

// Graph is the analyzed dependency graph of one verification run.
type Graph struct {
	tasks map[string]*datatypes.VerificationTask

	// deps maps a task id to its dependency ids.
	deps map[string][]string
}

// CriticalPath describes the longest dependency chain.
type CriticalPath struct {
	// TaskIDs are the chain members in execution order.
	TaskIDs []string `json:"task_ids"`

	// Weight is the summed per-task timeout along the chain.
	Weight time.Duration `json:"weight"`
}

// Build constructs and validates the dependency graph.
//
// Description:
//
//	Validates task ids for uniqueness, resolves every declared
//	dependency, and rejects the whole run if the graph contains a
//	cycle. Cycle rejection happens before any task executes.
//
// Inputs:
//
//	tasks - The run's tasks with declared dependency ids.
//
// Outputs:
//
//	*Graph - The validated graph.
//	error - ErrNoTasks, ErrDuplicateTask, ErrUnknownDependency, or a
//	        *CycleError naming the cycle.
func Build(tasks []*datatypes.VerificationTask) (*Graph, error) {
	if len(tasks) == 0 {
		return nil, ErrNoTasks
	}

	g := &Graph{
		tasks: make(map[string]*datatypes.VerificationTask, len(tasks)),
		deps:  make(map[string][]string, len(tasks)),
	}

	for _, task := range tasks {
		if _, exists := g.tasks[task.ID]; exists {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateTask, task.ID)
		}
		g.tasks[task.ID] = task
	}

	for _, task := range tasks {
		for _, dep := range task.Dependencies {
			if _, ok := g.tasks[dep]; !ok {
				return nil, fmt.Errorf("%w: %s depends on %s", ErrUnknownDependency, task.ID, dep)
			}
			g.deps[task.ID] = append(g.deps[task.ID], dep)
		}
	}

	if cycle := g.findCycle(); cycle != nil {
		return nil, &CycleError{Path: cycle}
	}

	return g, nil
}

// TaskCount returns the number of tasks in the graph.
func (g *Graph) TaskCount() int {
	return len(g.tasks)
}

// Task returns a task by id.
func (g *Graph) Task(id string) (*datatypes.VerificationTask, bool) {
	task, ok := g.tasks[id]
	return task, ok
}

// Levels computes the ordered execution levels.
//
// Description:
//
//	Repeatedly collects the not-yet-placed tasks whose dependencies
//	are all placed in prior levels and emits them as the next level,
//	until exhaustion. Level ids are sorted for determinism.
//
// Outputs:
//
//	[][]string - Ordered levels of task ids. Tasks with no
//	             dependencies form the first level.
func (g *Graph) Levels() [][]string {
	placed := make(map[string]bool, len(g.tasks))
	var levels [][]string

	for len(placed) < len(g.tasks) {
		var level []string
		for id := range g.tasks {
			if placed[id] {
				continue
			}
			ready := true
			for _, dep := range g.deps[id] {
				if !placed[dep] {
					ready = false
					break
				}
			}
			if ready {
				level = append(level, id)
			}
		}
		if len(level) == 0 {
			// Unreachable: Build guarantees acyclicity.
			break
		}
		sort.Strings(level)
		for _, id := range level {
			placed[id] = true
		}
		levels = append(levels, level)
	}

	return levels
}

// CriticalPath computes the longest dependency chain weighted by
// per-task timeout. Instrumentation only; correctness never depends
// on it.
func (g *Graph) CriticalPath() CriticalPath {
	// Longest path ending at each task, computed over the level order.
	weight := make(map[string]time.Duration, len(g.tasks))
	prev := make(map[string]string, len(g.tasks))

	for _, level := range g.Levels() {
		for _, id := range level {
			best := time.Duration(0)
			bestDep := ""
			for _, dep := range g.deps[id] {
				if weight[dep] > best || (weight[dep] == best && bestDep == "") {
					best = weight[dep]
					bestDep = dep
				}
			}
			weight[id] = best + g.tasks[id].Timeout
			if bestDep != "" {
				prev[id] = bestDep
			}
		}
	}

	var endID string
	var endWeight time.Duration
	ids := make([]string, 0, len(g.tasks))
	for id := range g.tasks {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if weight[id] > endWeight {
			endWeight = weight[id]
			endID = id
		}
	}
	if endID == "" && len(ids) > 0 {
		endID = ids[0]
	}

	var chain []string
	for id := endID; id != ""; id = prev[id] {
		chain = append(chain, id)
		if _, ok := prev[id]; !ok {
			break
		}
	}
	// Reverse into execution order.
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}

	return CriticalPath{TaskIDs: chain, Weight: endWeight}
}

// findCycle returns the ids along a dependency cycle, or nil.
func (g *Graph) findCycle() []string {
	const (
		white = 0 // unvisited
		gray  = 1 // on the current DFS path
		black = 2 // fully explored
	)
	color := make(map[string]int, len(g.tasks))
	var stack []string

	ids := make([]string, 0, len(g.tasks))
	for id := range g.tasks {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var visit func(id string) []string
	visit = func(id string) []string {
		color[id] = gray
		stack = append(stack, id)
		for _, dep := range g.deps[id] {
			switch color[dep] {
			case gray:
				// Found: slice the stack from the first occurrence.
				for i, s := range stack {
					if s == dep {
						cycle := append([]string{}, stack[i:]...)
						return append(cycle, dep)
					}
				}
			case white:
				if cycle := visit(dep); cycle != nil {
					return cycle
				}
			}
		}
		color[id] = black
		stack = stack[:len(stack)-1]
		return nil
	}

	for _, id := range ids {
		if color[id] == white {
			if cycle := visit(id); cycle != nil {
				return cycle
			}
		}
	}
	return nil
}

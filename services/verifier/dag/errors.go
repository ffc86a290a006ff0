// Copyright (C) 2025 Clearproof Labs (eng@clearproof.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package dag

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for the dag package.
var (
	// ErrNoTasks is returned when building a graph from an empty task list.
	ErrNoTasks = errors.New("no tasks to analyze")

	// ErrDuplicateTask is returned when two tasks share an id.
	ErrDuplicateTask = errors.New("duplicate task id")

	// ErrUnknownDependency is returned when a task depends on an id that
	// is not part of the run.
	ErrUnknownDependency = errors.New("dependency references unknown task")

	// ErrCycleDetected is returned when the dependency graph contains a
	// cycle. Fatal for the whole request, never per-task.
	ErrCycleDetected = errors.New("cycle detected in dependency graph")
)

// CycleError names the tasks forming a dependency cycle.
type CycleError struct {
	// Path lists the task ids along the cycle, first id repeated last.
	Path []string
}

// Error returns the diagnostic naming the cycle.
func (e *CycleError) Error() string {
	return fmt.Sprintf("%v: %s", ErrCycleDetected, strings.Join(e.Path, " -> "))
}

// Unwrap returns ErrCycleDetected so callers can errors.Is against it.
func (e *CycleError) Unwrap() error {
	return ErrCycleDetected
}

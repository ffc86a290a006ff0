// Copyright (C) 2025 Clearproof Labs (eng@clearproof.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package oracle

import (
	"context"
	"fmt"
)

// DefaultMaxDecisions bounds the DPLL search before it reports unknown.
const DefaultMaxDecisions = 100_000

// DPLLSolver is the built-in propositional backend.
//
// # Description
//
// A plain DPLL search with unit propagation over the CNF the
// translator emits. The atom count of a single verification query is
// small (one atom per distinct predicate occurrence), so no watched
// literals or clause learning are needed. The search is bounded by a
// decision budget and the context deadline; exhausting either yields
// an unknown Solution, never an error.
//
// # Thread Safety
//
// Safe for concurrent use; each Solve call owns its state.
type DPLLSolver struct {
	maxDecisions int
}

// DPLLOption configures a DPLLSolver.
type DPLLOption func(*DPLLSolver)

// WithMaxDecisions sets the decision budget before giving up.
func WithMaxDecisions(n int) DPLLOption {
	return func(s *DPLLSolver) {
		if n > 0 {
			s.maxDecisions = n
		}
	}
}

// NewDPLLSolver creates the built-in solver.
func NewDPLLSolver(opts ...DPLLOption) *DPLLSolver {
	s := &DPLLSolver{maxDecisions: DefaultMaxDecisions}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Ensure DPLLSolver implements Solver.
var _ Solver = (*DPLLSolver)(nil)

// Solve decides satisfiability of the query.
//
// Outputs:
//
//	Solution - Satisfiable with an Assignment, unsatisfiable, or
//	           Unknown when the budget or deadline ran out.
//	error - Non-nil only for a nil context.
func (s *DPLLSolver) Solve(ctx context.Context, q Query) (Solution, error) {
	if ctx == nil {
		return Solution{}, ErrNilContext
	}

	search := &dpllSearch{
		ctx:        ctx,
		clauses:    q.Clauses,
		assignment: make([]int8, len(q.Atoms)),
		budget:     s.maxDecisions,
	}
	for i := range search.assignment {
		search.assignment[i] = unassigned
	}

	sat, err := search.solve()
	if err != nil {
		// Budget or deadline exhausted: a distinct non-error state.
		return Solution{Unknown: true, Message: err.Error()}, nil
	}
	if !sat {
		return Solution{Satisfiable: false}, nil
	}

	result := make([]bool, len(search.assignment))
	for i, v := range search.assignment {
		result[i] = v == assignedTrue
	}
	return Solution{Satisfiable: true, Assignment: result}, nil
}

const (
	unassigned    int8 = -1
	assignedFalse int8 = 0
	assignedTrue  int8 = 1
)

// dpllSearch holds the mutable state of one solve.
type dpllSearch struct {
	ctx        context.Context
	clauses    [][]Literal
	assignment []int8
	decisions  int
	budget     int
}

// solve runs the recursive search. The returned error means the
// search gave up, not that the formula is unsatisfiable.
func (d *dpllSearch) solve() (bool, error) {
	for {
		// Unit propagation to fixpoint.
		progress := false
		allSatisfied := true
		for _, clause := range d.clauses {
			satisfied, unit, unitCount := d.inspect(clause)
			if satisfied {
				continue
			}
			if unitCount == 0 {
				return false, nil // conflict: empty clause
			}
			allSatisfied = false
			if unitCount == 1 {
				d.assign(unit)
				progress = true
			}
		}
		if allSatisfied {
			d.completeAssignment()
			return true, nil
		}
		if progress {
			continue
		}

		// Branch on the first unassigned atom of an unsatisfied clause.
		lit, ok := d.pickBranch()
		if !ok {
			// No unassigned literal left yet not all satisfied.
			return false, nil
		}

		d.decisions++
		if d.decisions > d.budget {
			return false, fmt.Errorf("decision budget exhausted after %d decisions", d.budget)
		}
		if d.decisions%64 == 0 {
			if err := d.ctx.Err(); err != nil {
				return false, fmt.Errorf("solver deadline: %w", err)
			}
		}

		saved := make([]int8, len(d.assignment))
		copy(saved, d.assignment)

		d.assign(lit)
		if sat, err := d.solve(); err != nil {
			return false, err
		} else if sat {
			return true, nil
		}

		copy(d.assignment, saved)
		d.assign(Literal{Atom: lit.Atom, Negated: !lit.Negated})
		return d.solve()
	}
}

// inspect classifies a clause under the current assignment.
func (d *dpllSearch) inspect(clause []Literal) (satisfied bool, unit Literal, unassignedCount int) {
	for _, lit := range clause {
		switch d.assignment[lit.Atom] {
		case unassigned:
			unassignedCount++
			unit = lit
		case assignedTrue:
			if !lit.Negated {
				return true, Literal{}, 0
			}
		case assignedFalse:
			if lit.Negated {
				return true, Literal{}, 0
			}
		}
	}
	return false, unit, unassignedCount
}

// assign makes the literal true.
func (d *dpllSearch) assign(lit Literal) {
	if lit.Negated {
		d.assignment[lit.Atom] = assignedFalse
	} else {
		d.assignment[lit.Atom] = assignedTrue
	}
}

// pickBranch selects an unassigned literal from an unsatisfied clause.
func (d *dpllSearch) pickBranch() (Literal, bool) {
	for _, clause := range d.clauses {
		satisfied, _, count := d.inspect(clause)
		if satisfied || count == 0 {
			continue
		}
		for _, lit := range clause {
			if d.assignment[lit.Atom] == unassigned {
				return lit, true
			}
		}
	}
	return Literal{}, false
}

// completeAssignment defaults any untouched atom to false so the
// reported counterexample is total.
func (d *dpllSearch) completeAssignment() {
	for i, v := range d.assignment {
		if v == unassigned {
			d.assignment[i] = assignedFalse
		}
	}
}

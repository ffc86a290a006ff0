// Copyright (C) 2025 Clearproof Labs (eng@clearproof.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package oracle translates policy rules and proof obligations into a
// satisfiability query and decides logical entailment.
//
// # Description
//
// A rule set R entails an obligation set O iff R ∧ ¬O is unsatisfiable.
// The oracle parses logic-program clauses ("Head :- Body1, Body2" or a
// bare fact), interns each distinct predicate occurrence to one boolean
// atom shared across the whole query, and hands the resulting CNF to a
// Solver. A satisfying assignment is reported as a counterexample.
//
// The general SAT/SMT problem stays behind the Solver interface; the
// built-in backend is a bounded propositional DPLL sufficient for the
// clause shapes the translator emits.
//
// # Thread Safety
//
// Oracle is safe for concurrent use. Each Verify call builds its own
// interner and clause set; no atom state leaks between queries.
package oracle

import (
	"context"
)

// Literal is a possibly-negated reference to an interned atom.
type Literal struct {
	// Atom is the interner index of the atom.
	Atom int

	// Negated is true for ¬atom.
	Negated bool
}

// Query is a propositional CNF formula over interned atoms.
type Query struct {
	// Clauses are disjunctions of literals; the formula is their
	// conjunction.
	Clauses [][]Literal

	// Atoms maps interner index to the atom's display form
	// (e.g. "authorized(user,resource)").
	Atoms []string
}

// Solution is a solver's answer to a Query.
type Solution struct {
	// Satisfiable is true when a satisfying assignment was found.
	Satisfiable bool

	// Unknown is true when the solver gave up (decision budget or
	// deadline exhausted). Satisfiable is meaningless when set.
	Unknown bool

	// Assignment holds the truth value per atom index when
	// Satisfiable is true.
	Assignment []bool

	// Message carries a diagnostic for Unknown solutions.
	Message string
}

// Solver decides satisfiability of a propositional query.
//
// Implementations must treat context cancellation as "unknown", never
// as a hard failure.
type Solver interface {
	// Solve decides the query. A non-nil error is reserved for
	// programming mistakes (nil context); resource exhaustion and
	// timeouts surface as Solution.Unknown.
	Solve(ctx context.Context, q Query) (Solution, error)
}

// Outcome is the oracle's verdict for one entailment check.
type Outcome struct {
	// Entailed is true iff rules ∧ ¬obligations is unsatisfiable.
	Entailed bool `json:"entailed"`

	// Unknown is true when the solver was inconclusive. A distinct
	// non-error state: Entailed is false but nothing was refuted.
	Unknown bool `json:"unknown"`

	// Counterexample is a satisfying assignment refuting entailment,
	// capped to the first few atoms for readability.
	Counterexample string `json:"counterexample,omitempty"`

	// SkippedClauses lists clause texts dropped by the parser.
	SkippedClauses []string `json:"skipped_clauses,omitempty"`

	// Message carries solver diagnostics for Unknown outcomes.
	Message string `json:"message,omitempty"`
}

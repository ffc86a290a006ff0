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
	"log/slog"
	"strings"
)

// DefaultCounterexampleAtoms caps how many atoms a counterexample
// lists, for readability.
const DefaultCounterexampleAtoms = 5

// Oracle decides whether policy rules entail proof obligations.
//
// Thread Safety:
//
//	Oracle is safe for concurrent use.
type Oracle struct {
	solver              Solver
	logger              *slog.Logger
	counterexampleLimit int
}

// Option is a functional option for configuring Oracle.
type Option func(*Oracle)

// WithSolver sets a custom satisfiability backend.
func WithSolver(s Solver) Option {
	return func(o *Oracle) {
		if s != nil {
			o.solver = s
		}
	}
}

// WithLogger sets the logger for parse warnings.
func WithLogger(l *slog.Logger) Option {
	return func(o *Oracle) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithCounterexampleLimit caps the atoms listed in a counterexample.
func WithCounterexampleLimit(n int) Option {
	return func(o *Oracle) {
		if n > 0 {
			o.counterexampleLimit = n
		}
	}
}

// New creates a new Oracle.
//
// Description:
//
//	Creates an oracle backed by the built-in DPLL solver unless
//	WithSolver overrides it.
//
// Outputs:
//
//	*Oracle - The new oracle instance.
func New(opts ...Option) *Oracle {
	o := &Oracle{
		solver:              NewDPLLSolver(),
		logger:              slog.Default(),
		counterexampleLimit: DefaultCounterexampleAtoms,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Verify decides whether rules entail obligations.
//
// Description:
//
//	Builds the CNF query rules ∧ ¬(O1 ∧ ... ∧ Ok) over a fresh atom
//	interner and asks the solver. Entailed is true iff the query is
//	unsatisfiable. A satisfying assignment becomes a counterexample.
//
// Inputs:
//
//	ctx - Context for cancellation; its deadline bounds the solver.
//	rules - Clause texts ("Head :- Body1, Body2" or a bare fact).
//	obligations - Obligation predicates the rules must entail.
//
// Outputs:
//
//	Outcome - The verdict. Solver timeouts and inconclusive results
//	          set Unknown; they are not errors.
//	error - Non-nil only for a nil context.
//
// Behavior:
//
//   - Malformed clauses are skipped with a warning, recorded in
//     Outcome.SkippedClauses; they never abort the query.
//   - If no obligation survives parsing the outcome is Unknown.
//   - Atom state is per-call; nothing leaks across requests.
func (o *Oracle) Verify(ctx context.Context, rules []string, obligations []string) (Outcome, error) {
	if ctx == nil {
		return Outcome{}, ErrNilContext
	}

	in := newInterner()
	outcome := Outcome{}
	var clauses [][]Literal

	for _, text := range rules {
		clause, err := parseClause(text)
		if err != nil {
			o.logger.Warn("skipping malformed rule clause",
				"clause", text,
				"error", err.Error(),
			)
			outcome.SkippedClauses = append(outcome.SkippedClauses, text)
			continue
		}
		clauses = append(clauses, translateRule(in, clause))
	}

	// Obligations are single predicates; negating an implication is
	// not clausal, so rule-form obligations are rejected.
	var negated []Literal
	for _, text := range obligations {
		if strings.Contains(text, ":-") {
			o.logger.Warn("skipping rule-form obligation",
				"clause", text,
			)
			outcome.SkippedClauses = append(outcome.SkippedClauses, text)
			continue
		}
		pred, err := normalizePredicate(strings.TrimSuffix(strings.TrimSpace(text), "."))
		if err != nil {
			o.logger.Warn("skipping malformed obligation",
				"clause", text,
				"error", err.Error(),
			)
			outcome.SkippedClauses = append(outcome.SkippedClauses, text)
			continue
		}
		negated = append(negated, Literal{Atom: in.intern(pred), Negated: true})
	}

	if len(negated) == 0 {
		outcome.Unknown = true
		outcome.Message = ErrNoObligations.Error()
		return outcome, nil
	}

	// ¬(O1 ∧ ... ∧ Ok) is the single clause (¬O1 ∨ ... ∨ ¬Ok).
	clauses = append(clauses, negated)

	query := Query{Clauses: clauses, Atoms: in.atoms}
	solution, err := o.solver.Solve(ctx, query)
	if err != nil {
		// Solver failures never propagate as hard errors.
		outcome.Unknown = true
		outcome.Message = fmt.Sprintf("solver failure: %v", err)
		return outcome, nil
	}

	switch {
	case solution.Unknown:
		outcome.Unknown = true
		outcome.Message = solution.Message
	case solution.Satisfiable:
		outcome.Entailed = false
		outcome.Counterexample = o.formatCounterexample(query.Atoms, solution.Assignment)
	default:
		outcome.Entailed = true
	}

	return outcome, nil
}

// formatCounterexample renders a satisfying assignment, capped to the
// configured atom limit.
func (o *Oracle) formatCounterexample(atoms []string, assignment []bool) string {
	limit := o.counterexampleLimit
	if limit > len(atoms) {
		limit = len(atoms)
	}
	parts := make([]string, 0, limit)
	for i := 0; i < limit; i++ {
		parts = append(parts, fmt.Sprintf("%s=%t", atoms[i], assignment[i]))
	}
	s := strings.Join(parts, ", ")
	if len(atoms) > limit {
		s += fmt.Sprintf(" (+%d more)", len(atoms)-limit)
	}
	return s
}

// Copyright (C) 2025 Clearproof Labs (eng@clearproof.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package oracle

import (
	"fmt"
	"strings"
)

// interner maps normalized predicate text to a dense atom index.
//
// One interner lives for the duration of a single query; atoms are
// shared across all rules and obligations in that query and never leak
// into the next.
type interner struct {
	index map[string]int
	atoms []string
}

func newInterner() *interner {
	return &interner{index: make(map[string]int)}
}

// intern returns the atom index for a normalized predicate, creating
// it on first sight.
func (in *interner) intern(pred string) int {
	if idx, ok := in.index[pred]; ok {
		return idx
	}
	idx := len(in.atoms)
	in.index[pred] = idx
	in.atoms = append(in.atoms, pred)
	return idx
}

// parsedClause is a clause reduced to normalized predicates.
type parsedClause struct {
	// Head is the clause head predicate.
	Head string

	// Body holds the body predicates; empty for a fact.
	Body []string
}

// parseClause parses one logic-program clause.
//
// Accepted forms:
//
//	head_pred(arg1, arg2) :- body_pred(arg1), other(arg2)
//	bare_fact(arg)
//
// Predicates are normalized (whitespace stripped, lowercased) so that
// the same predicate occurrence always interns to the same atom. Parse
// failures come back as a *ClauseError carrying the offending text.
func parseClause(text string) (parsedClause, error) {
	clause, err := parseClauseParts(text)
	if err != nil {
		return parsedClause{}, &ClauseError{Clause: strings.TrimSpace(text), Err: err}
	}
	return clause, nil
}

func parseClauseParts(text string) (parsedClause, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return parsedClause{}, fmt.Errorf("%w: empty clause", ErrMalformedClause)
	}
	trimmed = strings.TrimSuffix(trimmed, ".")

	headText := trimmed
	var bodyText string
	if idx := strings.Index(trimmed, ":-"); idx >= 0 {
		headText = trimmed[:idx]
		bodyText = trimmed[idx+2:]
		if strings.Contains(bodyText, ":-") {
			return parsedClause{}, fmt.Errorf("%w: multiple ':-' operators", ErrMalformedClause)
		}
	}

	head, err := normalizePredicate(headText)
	if err != nil {
		return parsedClause{}, err
	}

	clause := parsedClause{Head: head}
	if bodyText != "" {
		parts, err := splitTopLevel(bodyText)
		if err != nil {
			return parsedClause{}, err
		}
		if len(parts) == 0 {
			return parsedClause{}, fmt.Errorf("%w: empty body", ErrMalformedClause)
		}
		for _, part := range parts {
			pred, err := normalizePredicate(part)
			if err != nil {
				return parsedClause{}, err
			}
			clause.Body = append(clause.Body, pred)
		}
	}

	return clause, nil
}

// normalizePredicate canonicalizes one predicate occurrence:
// "Allow( User , res )" becomes "allow(user,res)". Distinct textual
// occurrences that normalize identically share one atom.
func normalizePredicate(text string) (string, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty predicate", ErrMalformedClause)
	}

	name := trimmed
	var argText string
	hasArgs := false
	if open := strings.IndexByte(trimmed, '('); open >= 0 {
		if !strings.HasSuffix(trimmed, ")") {
			return "", fmt.Errorf("%w: unbalanced parentheses", ErrMalformedClause)
		}
		name = strings.TrimSpace(trimmed[:open])
		argText = trimmed[open+1 : len(trimmed)-1]
		hasArgs = true
	}

	if !isIdentifier(name) {
		return "", fmt.Errorf("%w: invalid predicate name %q", ErrMalformedClause, name)
	}

	if !hasArgs {
		return strings.ToLower(name), nil
	}

	args, err := splitTopLevel(argText)
	if err != nil {
		return "", err
	}
	normalized := make([]string, len(args))
	for i, arg := range args {
		normalized[i] = strings.ToLower(strings.Join(strings.Fields(arg), " "))
		if normalized[i] == "" {
			return "", fmt.Errorf("%w: empty argument", ErrMalformedClause)
		}
	}

	return strings.ToLower(name) + "(" + strings.Join(normalized, ",") + ")", nil
}

// splitTopLevel splits on commas outside parentheses.
func splitTopLevel(text string) ([]string, error) {
	var parts []string
	depth := 0
	start := 0
	for i := 0; i < len(text); i++ {
		switch text[i] {
		case '(':
			depth++
		case ')':
			depth--
			if depth < 0 {
				return nil, fmt.Errorf("%w: unbalanced parentheses", ErrMalformedClause)
			}
		case ',':
			if depth == 0 {
				parts = append(parts, strings.TrimSpace(text[start:i]))
				start = i + 1
			}
		}
	}
	if depth != 0 {
		return nil, fmt.Errorf("%w: unbalanced parentheses", ErrMalformedClause)
	}
	if tail := strings.TrimSpace(text[start:]); tail != "" {
		parts = append(parts, tail)
	}
	return parts, nil
}

// isIdentifier reports whether s is a valid predicate name.
func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		alpha := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || r == '_'
		digit := r >= '0' && r <= '9'
		if i == 0 && !alpha {
			return false
		}
		if !alpha && !digit {
			return false
		}
	}
	return true
}

// translateRule converts a parsed clause to CNF.
//
// "H :- B1, B2" is the implication (B1 ∧ B2) ⇒ H, clausally
// (¬B1 ∨ ¬B2 ∨ H). A fact is the unit clause (H).
func translateRule(in *interner, clause parsedClause) []Literal {
	lits := make([]Literal, 0, len(clause.Body)+1)
	for _, pred := range clause.Body {
		lits = append(lits, Literal{Atom: in.intern(pred), Negated: true})
	}
	lits = append(lits, Literal{Atom: in.intern(clause.Head)})
	return lits
}

// Copyright (C) 2025 Clearproof Labs (eng@clearproof.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package oracle

import (
	"errors"
	"fmt"
)

// Sentinel errors for the oracle package.
var (
	// ErrNilContext is returned when a nil context is passed.
	ErrNilContext = errors.New("context must not be nil")

	// ErrMalformedClause indicates a clause that could not be parsed.
	// Per-clause parse failures are non-fatal; the clause is skipped.
	ErrMalformedClause = errors.New("malformed clause")

	// ErrNoObligations is returned when no obligation survives parsing.
	ErrNoObligations = errors.New("no well-formed obligations to check")
)

// ClauseError wraps a parse failure with the offending clause text.
type ClauseError struct {
	Clause string
	Err    error
}

// Error returns the error message.
func (e *ClauseError) Error() string {
	return fmt.Sprintf("clause %q: %v", e.Clause, e.Err)
}

// Unwrap returns the underlying error.
func (e *ClauseError) Unwrap() error {
	return e.Err
}

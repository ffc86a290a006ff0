// Copyright (C) 2025 Clearproof Labs (eng@clearproof.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package pipeline

import "errors"

var (
	// ErrNilContext indicates Run was called with a nil context.
	ErrNilContext = errors.New("context cannot be nil")

	// ErrInvalidRequest indicates the request failed validation.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrRuleFetch indicates the rule store could not be queried. A
	// request cannot proceed without its rules.
	ErrRuleFetch = errors.New("rule fetch failed")

	// ErrNoRules indicates the store returned none of the requested
	// rules.
	ErrNoRules = errors.New("no rules found")

	// ErrMissingDependency indicates the pipeline was constructed
	// without a required collaborator.
	ErrMissingDependency = errors.New("missing pipeline dependency")
)

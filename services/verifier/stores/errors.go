// Copyright (C) 2025 Clearproof Labs (eng@clearproof.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package stores

import "errors"

var (
	// ErrInvalidInput indicates nil context or empty arguments.
	ErrInvalidInput = errors.New("invalid input")

	// ErrStoreUnavailable indicates the collaborator store could not be
	// reached or answered with a server error.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrNotFound indicates the store has no record for the given id.
	ErrNotFound = errors.New("not found")
)

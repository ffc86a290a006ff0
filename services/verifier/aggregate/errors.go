// Copyright (C) 2025 Clearproof Labs (eng@clearproof.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package aggregate

import "errors"

var (
	// ErrUnknownStrategy is returned for a strategy name the aggregator
	// does not implement.
	ErrUnknownStrategy = errors.New("unknown aggregation strategy")

	// ErrFirstValidDisabled is returned when the first-valid strategy is
	// requested without being explicitly enabled. First-valid trusts the
	// fastest responder and is not Byzantine-safe, so it is opt-in.
	ErrFirstValidDisabled = errors.New("first_valid strategy is not enabled")
)

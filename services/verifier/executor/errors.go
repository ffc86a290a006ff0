// Copyright (C) 2025 Clearproof Labs (eng@clearproof.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package executor

import "errors"

var (
	// ErrExecutorClosed is returned when work is submitted after Shutdown.
	ErrExecutorClosed = errors.New("executor is shut down")

	// ErrNilWorkFunc is returned when Execute is called without a work function.
	ErrNilWorkFunc = errors.New("work function is nil")

	// ErrAttemptsExhausted wraps the last failure after all retries are spent.
	ErrAttemptsExhausted = errors.New("all attempts exhausted")
)

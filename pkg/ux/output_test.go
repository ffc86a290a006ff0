// Copyright (C) 2025 Clearproof Labs (eng@clearproof.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ux

import (
	"strings"
	"testing"
)

func TestVerdict_KeepsStatusText(t *testing.T) {
	// Styling may add escape codes depending on the terminal, but the
	// status text itself must always survive.
	statuses := []string{
		"verified",
		"failed",
		"error",
		"inconclusive",
		"consensus_not_reached",
		"all_verified",
		"some_failed",
		"something_new",
	}
	for _, s := range statuses {
		if got := Verdict(s); !strings.Contains(got, s) {
			t.Errorf("Verdict(%q) = %q, should contain the status", s, got)
		}
	}
}

// Copyright (C) 2025 Clearproof Labs (eng@clearproof.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// This file contains the models exchanged with the rule and principle
// stores. The verifier owns no persisted state of its own; rules and
// principles live in sibling services and verdicts are written back
// through the rule store's status-update call.
package datatypes

import "time"

// Rule is a machine-generated policy rule fetched from the rule store.
type Rule struct {
	// ID is the store-assigned rule identifier.
	ID string `json:"id"`

	// Name is a human-readable label.
	Name string `json:"name"`

	// Clauses are the rule's logic-program clauses, one per entry, in
	// "Head :- Body1, Body2" form (a bare head is a fact).
	Clauses []string `json:"clauses"`

	// PrincipleIDs are the governance principles this rule implements.
	// Verification tasks for the rule depend on obligation tasks for
	// these principles.
	PrincipleIDs []string `json:"principle_ids,omitempty"`

	// Status is the last recorded verification status.
	Status string `json:"status,omitempty"`

	// UpdatedAt is the store's last-modified timestamp.
	UpdatedAt time.Time `json:"updated_at,omitzero"`
}

// Principle is a governance principle fetched from the principle store.
type Principle struct {
	// ID is the store-assigned principle identifier.
	ID string `json:"id"`

	// Name is a human-readable label.
	Name string `json:"name"`

	// Obligations are the formalized proof obligations derived from
	// this principle, in the same clause syntax as rules.
	Obligations []string `json:"obligations"`
}

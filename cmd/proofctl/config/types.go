// Copyright (C) 2025 Clearproof Labs (eng@clearproof.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package config

// ProofctlConfig is the persisted CLI configuration.
type ProofctlConfig struct {
	// Server: where the verifier service lives
	Server ServerConfig `yaml:"server"`

	// Verify: defaults applied to verify submissions
	Verify VerifyConfig `yaml:"verify"`

	// Output: how results are rendered
	Output OutputConfig `yaml:"output"`
}

type ServerConfig struct {
	URL            string `yaml:"url"`             // e.g. http://localhost:12310
	TimeoutSeconds int    `yaml:"timeout_seconds"` // per-request timeout
}

type VerifyConfig struct {
	// Strategy can be "majority_vote", "weighted_average",
	// "byzantine_fault_tolerant", "consensus_threshold", "first_valid".
	// Empty uses the server default.
	Strategy string `yaml:"strategy,omitempty"`
}

type OutputConfig struct {
	// Format is "table" or "json".
	Format string `yaml:"format"`
}

// DefaultConfig returns the configuration written on first run.
func DefaultConfig() ProofctlConfig {
	return ProofctlConfig{
		Server: ServerConfig{
			URL:            "http://localhost:12310",
			TimeoutSeconds: 60,
		},
		Output: OutputConfig{
			Format: "table",
		},
	}
}

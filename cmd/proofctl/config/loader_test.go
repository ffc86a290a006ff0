// Copyright (C) 2025 Clearproof Labs (eng@clearproof.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package config

import (
	"os"
	"path/filepath"
	"testing"

	"gopkg.in/yaml.v3"
)

func TestCreateDefault_WritesParsableConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "proofctl.yaml")

	if err := createDefault(path); err != nil {
		t.Fatalf("createDefault: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}

	var cfg ProofctlConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if cfg.Server.URL != "http://localhost:12310" {
		t.Errorf("Server.URL = %q", cfg.Server.URL)
	}
	if cfg.Server.TimeoutSeconds != 60 {
		t.Errorf("Server.TimeoutSeconds = %d", cfg.Server.TimeoutSeconds)
	}
	if cfg.Output.Format != "table" {
		t.Errorf("Output.Format = %q", cfg.Output.Format)
	}
}

func TestPath_EnvOverride(t *testing.T) {
	t.Setenv("CLEARPROOF_CONFIG", "/tmp/custom.yaml")

	p, err := Path()
	if err != nil {
		t.Fatalf("Path: %v", err)
	}
	if p != "/tmp/custom.yaml" {
		t.Errorf("Path = %q", p)
	}
}

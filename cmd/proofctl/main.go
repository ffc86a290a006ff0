// Copyright (C) 2025 Clearproof Labs (eng@clearproof.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Command proofctl is the Clearproof CLI.
//
// Usage:
//
//	proofctl verify rule-1 rule-2 --strategy majority_vote
//	proofctl verify rule-1 --principle p-retention -o json
//	proofctl health
//	proofctl resources
//
// Configuration lives at ~/.clearproof/proofctl.yaml and is created on
// first run. CLEARPROOF_CONFIG overrides the location.
package main

import (
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/clearproof/clearproof/cmd/proofctl/config"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		if err := config.Load(); err != nil {
			log.Fatalf("Error loading the proofctl config: %v", err)
		}
	}
	rootCmd.SilenceUsage = true
}
